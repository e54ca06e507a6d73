package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oakcrm/quote-approval/internal/application/port"
	"github.com/oakcrm/quote-approval/internal/domain/approval"
	"github.com/oakcrm/quote-approval/internal/infrastructure/persistence/sqlite"
	"github.com/oakcrm/quote-approval/pkg/database"
)

// newTestDB opens a throwaway sqlite database and applies the real
// migration files, so the tests exercise the production schema.
func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	logger := zap.NewNop()

	sqlDB, err := database.Open(database.Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.NewMigrator(sqlDB, logger).Run("../../../../migrations"))
	return sqlite.NewDB(sqlDB, logger)
}

func newTestRepos(t *testing.T) (port.ApprovalRepository, port.WorkflowRepository, port.UserRepository, *sqlite.DB) {
	t.Helper()
	db := newTestDB(t)
	logger := zap.NewNop()
	return NewApprovalRepository(db, logger), NewWorkflowRepository(db, logger), NewUserRepository(db, logger), db
}

func buildApproval(workflowID string) *approval.QuoteApproval {
	steps := []approval.Step{
		{ID: uuid.NewString(), Name: "Manager Review", Order: 1, ApproverIDs: []string{"mgr-1"}, IsRequired: true},
		{ID: uuid.NewString(), Name: "Finance Review", Order: 2, ApproverIDs: []string{"fin-1", "fin-2"}, RequiresAllApprovers: true, IsRequired: true},
	}
	return &approval.QuoteApproval{
		ID:            uuid.NewString(),
		QuoteID:       "q-" + uuid.NewString()[:8],
		WorkflowID:    workflowID,
		Status:        approval.StatusPending,
		CurrentStepID: steps[0].ID,
		Steps:         steps,
		RequestedBy:   "sales-1",
		RequestedAt:   time.Now().UTC(),
		TotalAmount:   15000,
		Priority:      "high",
	}
}

func TestApprovalRepository_CreateAndGetRoundTrip(t *testing.T) {
	repo, _, _, _ := newTestRepos(t)
	ctx := context.Background()

	a := buildApproval("wf-1")
	require.NoError(t, repo.Create(ctx, a))
	assert.EqualValues(t, 1, a.Version)

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, a.QuoteID, got.QuoteID)
	assert.Equal(t, approval.StatusPending, got.Status)
	assert.Equal(t, a.CurrentStepID, got.CurrentStepID)
	assert.EqualValues(t, 1, got.Version)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "Manager Review", got.Steps[0].Name)
	assert.Equal(t, []string{"fin-1", "fin-2"}, got.Steps[1].ApproverIDs)
	assert.True(t, got.Steps[1].RequiresAllApprovers)
	assert.Empty(t, got.Actions)
	assert.WithinDuration(t, a.RequestedAt, got.RequestedAt, time.Second)
}

func TestApprovalRepository_GetByIDMissing(t *testing.T) {
	repo, _, _, _ := newTestRepos(t)

	got, err := repo.GetByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// Two approvals snapshotting the same workflow must both persist; snapshot
// step rows are keyed globally, so each instance carries its own step ids.
func TestApprovalRepository_TwoApprovalsForSameWorkflow(t *testing.T) {
	repo, _, _, _ := newTestRepos(t)
	ctx := context.Background()

	first := buildApproval("wf-1")
	second := buildApproval("wf-1")
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	gotFirst, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	gotSecond, err := repo.GetByID(ctx, second.ID)
	require.NoError(t, err)

	require.Len(t, gotFirst.Steps, 2)
	require.Len(t, gotSecond.Steps, 2)
	for i := range gotFirst.Steps {
		assert.NotEqual(t, gotFirst.Steps[i].ID, gotSecond.Steps[i].ID)
	}
}

func TestApprovalRepository_UpdateVersionConflict(t *testing.T) {
	repo, _, _, _ := newTestRepos(t)
	ctx := context.Background()

	a := buildApproval("wf-1")
	require.NoError(t, repo.Create(ctx, a))

	winner, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	loser, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)

	now := time.Now().UTC()
	winner.Status = approval.StatusApproved
	winner.CurrentStepID = ""
	winner.CompletedAt = &now
	require.NoError(t, repo.Update(ctx, winner))
	assert.EqualValues(t, 2, winner.Version)

	loser.Status = approval.StatusCancelled
	loser.CancelReason = "withdrawn"
	err = repo.Update(ctx, loser)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concurrent modification")

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, got.Status, "the stale write must not land")
	assert.Empty(t, got.CancelReason)
	assert.EqualValues(t, 2, got.Version)
}

// Actions must come back in insertion order even when their timestamps
// are identical; the status engine relies on that for its tie-break.
func TestApprovalRepository_ActionsLoadInInsertionOrder(t *testing.T) {
	repo, _, _, _ := newTestRepos(t)
	ctx := context.Background()

	a := buildApproval("wf-1")
	require.NoError(t, repo.Create(ctx, a))

	actedAt := time.Now().UTC().Truncate(time.Second)
	approvers := []string{"fin-1", "fin-2", "fin-3"}
	for _, approver := range approvers {
		require.NoError(t, repo.AppendAction(ctx, &approval.Action{
			ID:         uuid.NewString(),
			ApprovalID: a.ID,
			StepID:     a.Steps[1].ID,
			ApproverID: approver,
			Action:     approval.DecisionApproved,
			ActedAt:    actedAt,
		}))
	}

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, got.Actions, 3)
	for i, approver := range approvers {
		assert.Equal(t, approver, got.Actions[i].ApproverID)
	}
}

func TestApprovalRepository_ListFilters(t *testing.T) {
	repo, _, _, _ := newTestRepos(t)
	ctx := context.Background()

	pending := buildApproval("wf-1")
	require.NoError(t, repo.Create(ctx, pending))

	cancelled := buildApproval("wf-1")
	cancelled.Status = approval.StatusCancelled
	cancelled.CurrentStepID = ""
	cancelled.CancelReason = "withdrawn"
	require.NoError(t, repo.Create(ctx, cancelled))

	got, err := repo.List(ctx, port.ApprovalFilter{Status: approval.StatusPending})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pending.ID, got[0].ID)

	got, err = repo.List(ctx, port.ApprovalFilter{QuoteID: cancelled.QuoteID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "withdrawn", got[0].CancelReason)

	got, err = repo.List(ctx, port.ApprovalFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestApprovalRepository_ListExpired(t *testing.T) {
	repo, _, _, _ := newTestRepos(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	overdue := buildApproval("wf-1")
	overdue.ExpiresAt = &past
	require.NoError(t, repo.Create(ctx, overdue))

	fresh := buildApproval("wf-1")
	fresh.ExpiresAt = &future
	require.NoError(t, repo.Create(ctx, fresh))

	// already terminal, must not be picked up even though it is overdue
	done := buildApproval("wf-1")
	done.Status = approval.StatusApproved
	done.CurrentStepID = ""
	done.ExpiresAt = &past
	require.NoError(t, repo.Create(ctx, done))

	got, err := repo.ListExpired(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, overdue.ID, got[0].ID)
}

func TestWorkflowRepository_RoundTrip(t *testing.T) {
	_, repo, _, _ := newTestRepos(t)
	ctx := context.Background()

	minAmount, maxAmount := 1000.0, 50000.0
	now := time.Now().UTC()
	wf := &approval.Workflow{
		ID:          uuid.NewString(),
		Name:        "Standard Quote Approval",
		Description: "two step review",
		IsActive:    true,
		Conditions: &approval.Conditions{
			MinAmount:  &minAmount,
			MaxAmount:  &maxAmount,
			Categories: []string{"hardware", "services"},
		},
		Steps: []approval.Step{
			{ID: uuid.NewString(), Name: "Finance Review", Order: 2, ApproverIDs: []string{"fin-1"}, IsRequired: true, TimeoutDays: 3},
			{ID: uuid.NewString(), Name: "Manager Review", Order: 1, ApproverIDs: []string{"mgr-1"}, IsRequired: true},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Create(ctx, wf))

	got, err := repo.GetByID(ctx, wf.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, wf.Name, got.Name)
	assert.True(t, got.IsActive)
	require.NotNil(t, got.Conditions)
	require.NotNil(t, got.Conditions.MinAmount)
	assert.Equal(t, minAmount, *got.Conditions.MinAmount)
	assert.Equal(t, []string{"hardware", "services"}, got.Conditions.Categories)

	// steps come back ordered by step_order regardless of insert order
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "Manager Review", got.Steps[0].Name)
	assert.Equal(t, "Finance Review", got.Steps[1].Name)
	assert.Equal(t, 3, got.Steps[1].TimeoutDays)
}

func TestWorkflowRepository_UpdateReplacesSteps(t *testing.T) {
	_, repo, _, _ := newTestRepos(t)
	ctx := context.Background()

	now := time.Now().UTC()
	wf := &approval.Workflow{
		ID:       uuid.NewString(),
		Name:     "Single Step",
		IsActive: true,
		Steps: []approval.Step{
			{ID: uuid.NewString(), Name: "Manager Review", Order: 1, ApproverIDs: []string{"mgr-1"}, IsRequired: true},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Create(ctx, wf))

	wf.Name = "Two Step"
	wf.Steps = []approval.Step{
		{ID: uuid.NewString(), Name: "Manager Review", Order: 1, ApproverIDs: []string{"mgr-1"}, IsRequired: true},
		{ID: uuid.NewString(), Name: "Finance Review", Order: 2, ApproverIDs: []string{"fin-1"}, IsRequired: true},
	}
	wf.UpdatedAt = time.Now().UTC()
	require.NoError(t, repo.Update(ctx, wf))

	got, err := repo.GetByID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "Two Step", got.Name)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "Finance Review", got.Steps[1].Name)
}

func TestWorkflowRepository_UpdateMissing(t *testing.T) {
	_, repo, _, _ := newTestRepos(t)

	err := repo.Update(context.Background(), &approval.Workflow{ID: "missing", Name: "x"})
	assert.ErrorIs(t, err, approval.ErrNotFound)
}

func TestUserRepository_GetByIDs(t *testing.T) {
	_, _, repo, db := newTestRepos(t)
	ctx := context.Background()

	for _, u := range []approval.User{
		{ID: "mgr-1", Name: "Dana Wu", Email: "dana@example.com", Role: "manager"},
		{ID: "fin-1", Name: "Lee Park", Email: "lee@example.com", Role: "finance"},
	} {
		_, err := db.Executor(ctx).ExecContext(ctx,
			"INSERT INTO users (id, name, email, role) VALUES (?, ?, ?, ?)",
			u.ID, u.Name, u.Email, u.Role)
		require.NoError(t, err)
	}

	users, err := repo.GetByIDs(ctx, []string{"mgr-1", "fin-1", "ghost"})
	require.NoError(t, err)
	require.Len(t, users, 2, "unknown ids are silently absent")

	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}
	assert.Equal(t, "Dana Wu", names["mgr-1"])
	assert.Equal(t, "Lee Park", names["fin-1"])

	empty, err := repo.GetByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
