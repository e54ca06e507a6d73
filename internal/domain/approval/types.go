package approval

import (
	"sort"
	"time"
)

// Workflow is a reusable template defining an ordered sequence of approval
// steps. Templates are created and edited by administrators; once an approval
// instance references a workflow its steps are snapshotted and later template
// edits never affect the in-flight instance.
type Workflow struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	IsActive    bool        `json:"is_active"`
	Steps       []Step      `json:"steps"`
	Conditions  *Conditions `json:"conditions,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Conditions is an optional applicability predicate for a workflow.
// It is advisory: evaluated by the request initiator, never enforced
// by the engine itself.
type Conditions struct {
	MinAmount  *float64 `json:"min_amount,omitempty"`
	MaxAmount  *float64 `json:"max_amount,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// Matches reports whether the given amount and category satisfy the predicate.
// A nil bound or empty category list matches everything.
func (c *Conditions) Matches(amount float64, category string) bool {
	if c == nil {
		return true
	}
	if c.MinAmount != nil && amount < *c.MinAmount {
		return false
	}
	if c.MaxAmount != nil && amount > *c.MaxAmount {
		return false
	}
	if len(c.Categories) == 0 {
		return true
	}
	for _, cat := range c.Categories {
		if cat == category {
			return true
		}
	}
	return false
}

// Step is one stage of an approval workflow. Order values are unique within
// a workflow and define traversal order.
type Step struct {
	ID                   string   `json:"id"`
	WorkflowID           string   `json:"workflow_id,omitempty"`
	Name                 string   `json:"name"`
	Order                int      `json:"order"`
	ApproverRole         string   `json:"approver_role,omitempty"`
	ApproverIDs          []string `json:"approver_ids"`
	IsRequired           bool     `json:"is_required"`
	RequiresAllApprovers bool     `json:"requires_all_approvers"`
	TimeoutDays          int      `json:"timeout_days,omitempty"`
}

// HasApprover returns true if userID is eligible to act on this step
func (s *Step) HasApprover(userID string) bool {
	for _, id := range s.ApproverIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// QuoteApproval is one concrete request to approve a quote. It owns a
// snapshot copy of the workflow's steps and the append-only action history.
type QuoteApproval struct {
	ID            string     `json:"id"`
	QuoteID       string     `json:"quote_id"`
	WorkflowID    string     `json:"workflow_id"`
	Status        Status     `json:"status"`
	CurrentStepID string     `json:"current_step_id,omitempty"`
	Steps         []Step     `json:"steps"`
	Actions       []Action   `json:"actions"`
	RequestedBy   string     `json:"requested_by"`
	RequestedAt   time.Time  `json:"requested_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	TotalAmount   float64    `json:"total_amount"`
	Priority      string     `json:"priority,omitempty"`
	CancelReason  string     `json:"cancel_reason,omitempty"`
	CancelledBy   string     `json:"cancelled_by,omitempty"`

	// Version supports compare-and-swap updates in the persistence layer
	Version int64 `json:"version"`
}

// StepByID returns the snapshot step with the given id
func (a *QuoteApproval) StepByID(stepID string) (*Step, bool) {
	for i := range a.Steps {
		if a.Steps[i].ID == stepID {
			return &a.Steps[i], true
		}
	}
	return nil, false
}

// CurrentStep returns the step awaiting action, if any
func (a *QuoteApproval) CurrentStep() (*Step, bool) {
	if a.CurrentStepID == "" {
		return nil, false
	}
	return a.StepByID(a.CurrentStepID)
}

// ActionsForStep returns the actions recorded against one step, in
// insertion order
func (a *QuoteApproval) ActionsForStep(stepID string) []Action {
	var acts []Action
	for _, act := range a.Actions {
		if act.StepID == stepID {
			acts = append(acts, act)
		}
	}
	return acts
}

// Action is a single approver's recorded decision on a step within an
// approval. Actions are append-only; they are never mutated or removed.
type Action struct {
	ID          string    `json:"id"`
	ApprovalID  string    `json:"approval_id"`
	StepID      string    `json:"step_id"`
	ApproverID  string    `json:"approver_id"`
	Action      Decision  `json:"action"`
	Comments    string    `json:"comments,omitempty"`
	IsAutomatic bool      `json:"is_automatic,omitempty"`
	ActedAt     time.Time `json:"acted_at"`
}

// User is a directory entry, used for display only. Authorization is
// decided purely by step approver-id membership.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// SortSteps orders steps by ascending order value, in place
func SortSteps(steps []Step) {
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Order < steps[j].Order
	})
}
