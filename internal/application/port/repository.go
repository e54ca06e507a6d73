// Package port defines the persistence interfaces the application services
// depend on. Implementations live in internal/repository.
package port

import (
	"context"

	"github.com/oakcrm/quote-approval/internal/domain/approval"
)

// WorkflowRepository defines persistence operations for approval workflow
// templates and their steps.
type WorkflowRepository interface {
	Create(ctx context.Context, wf *approval.Workflow) error
	GetByID(ctx context.Context, id string) (*approval.Workflow, error)
	Update(ctx context.Context, wf *approval.Workflow) error
	List(ctx context.Context, activeOnly bool) ([]*approval.Workflow, error)
}

// ApprovalFilter narrows approval listings
type ApprovalFilter struct {
	Status  approval.Status
	QuoteID string
	Limit   int
	Offset  int
}

// ApprovalRepository defines persistence operations for quote approvals,
// their snapshot steps, and their append-only actions.
type ApprovalRepository interface {
	// Create persists a new approval together with its step snapshot
	Create(ctx context.Context, a *approval.QuoteApproval) error

	// GetByID loads an approval with its snapshot steps and full action
	// history, in insertion order
	GetByID(ctx context.Context, id string) (*approval.QuoteApproval, error)

	// Update persists status, current step, completion time, and cancel
	// metadata. It is a compare-and-swap on the version column: the write
	// fails if the stored version no longer matches a.Version, and bumps
	// the version on success.
	Update(ctx context.Context, a *approval.QuoteApproval) error

	// AppendAction inserts one action record. Actions are never updated
	// or deleted.
	AppendAction(ctx context.Context, act *approval.Action) error

	List(ctx context.Context, filter ApprovalFilter) ([]*approval.QuoteApproval, error)

	// ListExpired returns pending approvals whose expires_at lies in the past
	ListExpired(ctx context.Context, limit int) ([]*approval.QuoteApproval, error)
}

// UserRepository is the approver directory, used for display names only
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*approval.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*approval.User, error)
}

// TransactionManager runs a function within a database transaction carried
// on the context
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(txCtx context.Context) error) error
}
