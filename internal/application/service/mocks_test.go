package service

import (
	"context"

	"github.com/oakcrm/quote-approval/internal/application/port"
	"github.com/oakcrm/quote-approval/internal/domain/approval"
)

// nopLogger discards all log output
type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

// mockTxManager runs the function directly; rollback semantics are covered
// by the real transaction manager's own tests
type mockTxManager struct{}

func (mockTxManager) WithTransaction(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

// mockWorkflowRepo is an in-memory workflow store with func-field overrides
type mockWorkflowRepo struct {
	workflows map[string]*approval.Workflow

	getByIDFunc func(ctx context.Context, id string) (*approval.Workflow, error)
}

func newMockWorkflowRepo() *mockWorkflowRepo {
	return &mockWorkflowRepo{workflows: make(map[string]*approval.Workflow)}
}

func (m *mockWorkflowRepo) Create(ctx context.Context, wf *approval.Workflow) error {
	m.workflows[wf.ID] = wf
	return nil
}

func (m *mockWorkflowRepo) GetByID(ctx context.Context, id string) (*approval.Workflow, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return m.workflows[id], nil
}

func (m *mockWorkflowRepo) Update(ctx context.Context, wf *approval.Workflow) error {
	m.workflows[wf.ID] = wf
	return nil
}

func (m *mockWorkflowRepo) List(ctx context.Context, activeOnly bool) ([]*approval.Workflow, error) {
	var out []*approval.Workflow
	for _, wf := range m.workflows {
		if !activeOnly || wf.IsActive {
			out = append(out, wf)
		}
	}
	return out, nil
}

// mockApprovalRepo is an in-memory approval store. GetByID hands out copies
// so callers observe the same load-mutate-update cycle as with a real
// database, and failed operations leave the stored record untouched.
type mockApprovalRepo struct {
	approvals map[string]*approval.QuoteApproval

	appendErr error
	updateErr error
}

func newMockApprovalRepo() *mockApprovalRepo {
	return &mockApprovalRepo{approvals: make(map[string]*approval.QuoteApproval)}
}

func cloneApproval(a *approval.QuoteApproval) *approval.QuoteApproval {
	c := *a
	c.Steps = append([]approval.Step(nil), a.Steps...)
	c.Actions = append([]approval.Action(nil), a.Actions...)
	return &c
}

func (m *mockApprovalRepo) Create(ctx context.Context, a *approval.QuoteApproval) error {
	m.approvals[a.ID] = cloneApproval(a)
	return nil
}

func (m *mockApprovalRepo) GetByID(ctx context.Context, id string) (*approval.QuoteApproval, error) {
	a, ok := m.approvals[id]
	if !ok {
		return nil, nil
	}
	return cloneApproval(a), nil
}

func (m *mockApprovalRepo) Update(ctx context.Context, a *approval.QuoteApproval) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	a.Version++
	m.approvals[a.ID] = cloneApproval(a)
	return nil
}

func (m *mockApprovalRepo) AppendAction(ctx context.Context, act *approval.Action) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	stored, ok := m.approvals[act.ApprovalID]
	if ok {
		stored.Actions = append(stored.Actions, *act)
	}
	return nil
}

func (m *mockApprovalRepo) List(ctx context.Context, filter port.ApprovalFilter) ([]*approval.QuoteApproval, error) {
	var out []*approval.QuoteApproval
	for _, a := range m.approvals {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.QuoteID != "" && a.QuoteID != filter.QuoteID {
			continue
		}
		out = append(out, cloneApproval(a))
	}
	return out, nil
}

func (m *mockApprovalRepo) ListExpired(ctx context.Context, limit int) ([]*approval.QuoteApproval, error) {
	var out []*approval.QuoteApproval
	for _, a := range m.approvals {
		if a.Status != approval.StatusPending || a.ExpiresAt == nil {
			continue
		}
		out = append(out, cloneApproval(a))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// mockUserRepo resolves a fixed directory
type mockUserRepo struct {
	users map[string]*approval.User
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*approval.User, error) {
	return m.users[id], nil
}

func (m *mockUserRepo) GetByIDs(ctx context.Context, ids []string) ([]*approval.User, error) {
	var out []*approval.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}
