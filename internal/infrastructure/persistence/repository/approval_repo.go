package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/oakcrm/quote-approval/internal/application/port"
	"github.com/oakcrm/quote-approval/internal/domain/approval"
	"github.com/oakcrm/quote-approval/internal/infrastructure/persistence/sqlite"
)

// ApprovalRepository implements port.ApprovalRepository on sqlite
type ApprovalRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *sqlite.DB, logger *zap.Logger) port.ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists an approval together with its step snapshot
func (r *ApprovalRepository) Create(ctx context.Context, a *approval.QuoteApproval) error {
	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		query := `
			INSERT INTO quote_approvals (
				id, quote_id, workflow_id, status, current_step_id,
				requested_by, requested_at, completed_at, expires_at,
				total_amount, priority, cancel_reason, cancelled_by, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		`
		_, err := r.db.Executor(txCtx).ExecContext(txCtx, query,
			a.ID, a.QuoteID, a.WorkflowID, a.Status, nullable(a.CurrentStepID),
			a.RequestedBy, a.RequestedAt, a.CompletedAt, a.ExpiresAt,
			a.TotalAmount, a.Priority, nullable(a.CancelReason), nullable(a.CancelledBy),
		)
		if err != nil {
			r.logger.Error("Failed to create approval", zap.Error(err))
			return fmt.Errorf("failed to create approval: %w", err)
		}
		a.Version = 1

		stepQuery := `
			INSERT INTO approval_snapshot_steps (
				id, approval_id, name, step_order, approver_role, approver_ids,
				is_required, requires_all_approvers, timeout_days
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		for i := range a.Steps {
			st := &a.Steps[i]
			approverIDs, err := json.Marshal(st.ApproverIDs)
			if err != nil {
				return fmt.Errorf("failed to marshal approver ids: %w", err)
			}
			if _, err := r.db.Executor(txCtx).ExecContext(txCtx, stepQuery,
				st.ID, a.ID, st.Name, st.Order, st.ApproverRole, string(approverIDs),
				st.IsRequired, st.RequiresAllApprovers, st.TimeoutDays,
			); err != nil {
				r.logger.Error("Failed to insert snapshot step", zap.String("step", st.Name), zap.Error(err))
				return fmt.Errorf("failed to insert snapshot step: %w", err)
			}
		}
		return nil
	})
}

// GetByID loads an approval with its snapshot steps and action history
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*approval.QuoteApproval, error) {
	query := `
		SELECT id, quote_id, workflow_id, status, current_step_id,
			requested_by, requested_at, completed_at, expires_at,
			total_amount, priority, cancel_reason, cancelled_by, version
		FROM quote_approvals
		WHERE id = ?
	`
	a, err := r.scanApproval(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get approval", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}

	if err := r.loadDetails(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Update persists the approval's mutable columns. The write is a
// compare-and-swap on the version column so concurrent writers cannot
// silently overwrite each other's status transitions.
func (r *ApprovalRepository) Update(ctx context.Context, a *approval.QuoteApproval) error {
	query := `
		UPDATE quote_approvals
		SET status = ?, current_step_id = ?, completed_at = ?,
			cancel_reason = ?, cancelled_by = ?, version = version + 1,
			updated_at = ?
		WHERE id = ? AND version = ?
	`
	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		a.Status, nullable(a.CurrentStepID), a.CompletedAt,
		nullable(a.CancelReason), nullable(a.CancelledBy), time.Now(),
		a.ID, a.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update approval", zap.String("id", a.ID), zap.Error(err))
		return fmt.Errorf("failed to update approval: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("approval %s version %d: concurrent modification", a.ID, a.Version)
	}
	a.Version++
	return nil
}

// AppendAction inserts one action record. The autoincrement seq column
// preserves insertion order, which is the engine's timestamp tie-break.
func (r *ApprovalRepository) AppendAction(ctx context.Context, act *approval.Action) error {
	query := `
		INSERT INTO approval_actions (
			id, approval_id, step_id, approver_id, action, comments,
			is_automatic, acted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		act.ID, act.ApprovalID, act.StepID, act.ApproverID,
		act.Action, act.Comments, act.IsAutomatic, act.ActedAt,
	)
	if err != nil {
		r.logger.Error("Failed to append action", zap.String("approval_id", act.ApprovalID), zap.Error(err))
		return fmt.Errorf("failed to append action: %w", err)
	}
	return nil
}

// List retrieves approvals matching the filter, most recent first
func (r *ApprovalRepository) List(ctx context.Context, filter port.ApprovalFilter) ([]*approval.QuoteApproval, error) {
	query := `
		SELECT id, quote_id, workflow_id, status, current_step_id,
			requested_by, requested_at, completed_at, expires_at,
			total_amount, priority, cancel_reason, cancelled_by, version
		FROM quote_approvals
		WHERE 1 = 1
	`
	var args []interface{}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.QuoteID != "" {
		query += " AND quote_id = ?"
		args = append(args, filter.QuoteID)
	}
	query += " ORDER BY requested_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	return r.queryApprovals(ctx, query, args...)
}

// ListExpired returns pending approvals whose expiry time has passed
func (r *ApprovalRepository) ListExpired(ctx context.Context, limit int) ([]*approval.QuoteApproval, error) {
	query := `
		SELECT id, quote_id, workflow_id, status, current_step_id,
			requested_by, requested_at, completed_at, expires_at,
			total_amount, priority, cancel_reason, cancelled_by, version
		FROM quote_approvals
		WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?
		ORDER BY expires_at
		LIMIT ?
	`
	return r.queryApprovals(ctx, query, approval.StatusPending, time.Now(), limit)
}

func (r *ApprovalRepository) queryApprovals(ctx context.Context, query string, args ...interface{}) ([]*approval.QuoteApproval, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query approvals", zap.Error(err))
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*approval.QuoteApproval
	for rows.Next() {
		a, err := r.scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approvals = append(approvals, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate approvals: %w", err)
	}

	for _, a := range approvals {
		if err := r.loadDetails(ctx, a); err != nil {
			return nil, err
		}
	}
	return approvals, nil
}

func (r *ApprovalRepository) scanApproval(row rowScanner) (*approval.QuoteApproval, error) {
	var a approval.QuoteApproval
	var currentStepID, cancelReason, cancelledBy sql.NullString
	var completedAt, expiresAt sql.NullTime

	if err := row.Scan(
		&a.ID, &a.QuoteID, &a.WorkflowID, &a.Status, &currentStepID,
		&a.RequestedBy, &a.RequestedAt, &completedAt, &expiresAt,
		&a.TotalAmount, &a.Priority, &cancelReason, &cancelledBy, &a.Version,
	); err != nil {
		return nil, err
	}

	a.CurrentStepID = currentStepID.String
	a.CancelReason = cancelReason.String
	a.CancelledBy = cancelledBy.String
	if completedAt.Valid {
		a.CompletedAt = &completedAt.Time
	}
	if expiresAt.Valid {
		a.ExpiresAt = &expiresAt.Time
	}
	return &a, nil
}

// loadDetails fills in the snapshot steps and action history
func (r *ApprovalRepository) loadDetails(ctx context.Context, a *approval.QuoteApproval) error {
	stepQuery := `
		SELECT id, approval_id, name, step_order, approver_role, approver_ids,
			is_required, requires_all_approvers, timeout_days
		FROM approval_snapshot_steps
		WHERE approval_id = ?
		ORDER BY step_order
	`
	rows, err := r.db.Executor(ctx).QueryContext(ctx, stepQuery, a.ID)
	if err != nil {
		r.logger.Error("Failed to load snapshot steps", zap.String("approval_id", a.ID), zap.Error(err))
		return fmt.Errorf("failed to load snapshot steps: %w", err)
	}
	steps, err := scanSteps(rows)
	rows.Close()
	if err != nil {
		return err
	}
	// snapshot rows reuse the step scanner; the second column is the approval id
	for i := range steps {
		steps[i].WorkflowID = a.WorkflowID
	}
	a.Steps = steps

	actionQuery := `
		SELECT id, approval_id, step_id, approver_id, action, comments,
			is_automatic, acted_at
		FROM approval_actions
		WHERE approval_id = ?
		ORDER BY seq
	`
	actRows, err := r.db.Executor(ctx).QueryContext(ctx, actionQuery, a.ID)
	if err != nil {
		r.logger.Error("Failed to load actions", zap.String("approval_id", a.ID), zap.Error(err))
		return fmt.Errorf("failed to load actions: %w", err)
	}
	defer actRows.Close()

	actions := []approval.Action{}
	for actRows.Next() {
		var act approval.Action
		if err := actRows.Scan(
			&act.ID, &act.ApprovalID, &act.StepID, &act.ApproverID,
			&act.Action, &act.Comments, &act.IsAutomatic, &act.ActedAt,
		); err != nil {
			return fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, act)
	}
	if err := actRows.Err(); err != nil {
		return fmt.Errorf("failed to iterate actions: %w", err)
	}
	a.Actions = actions
	return nil
}

// nullable maps empty strings onto NULL columns
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
