// Package approval implements the quote approval workflow engine: step
// status derivation, current-step gating, and overall status transitions.
// Everything in this package is pure computation over an in-memory
// QuoteApproval and its action history; persistence and transport live
// in the application and infrastructure layers.
package approval

import (
	"fmt"
	"time"
)

// ComputeStepStatus derives the status of one step from the approval's
// recorded actions.
//
// A step with no actions is always pending, current or not. When the step
// requires all approvers, a single rejection fails it permanently and
// approval needs one approved action from every distinct approver id.
// Otherwise the single most recent action resolves the step verbatim;
// on identical timestamps the later-appended action wins.
func ComputeStepStatus(a *QuoteApproval, step *Step) StepStatus {
	acts := a.ActionsForStep(step.ID)
	if len(acts) == 0 {
		return StepPending
	}

	if step.RequiresAllApprovers {
		approvedBy := make(map[string]bool)
		for _, act := range acts {
			switch act.Action {
			case DecisionRejected:
				// Rejection is absorbing: later approvals cannot undo it.
				return StepRejected
			case DecisionApproved:
				approvedBy[act.ApproverID] = true
			}
		}
		if len(approvedBy) == len(step.ApproverIDs) {
			return StepApproved
		}
		return StepPending
	}

	// Single-approver semantics: latest action wins. Insertion order breaks
	// timestamp ties, so a non-strict comparison keeps the later entry.
	latest := acts[0]
	for _, act := range acts[1:] {
		if !act.ActedAt.Before(latest.ActedAt) {
			latest = act
		}
	}
	return latest.Action.StepStatus()
}

// CanAct reports whether userID may act on the given step right now:
// the approval must still be pending, the step must be the active one,
// and the user must be in its approver set.
func CanAct(a *QuoteApproval, step *Step, userID string) bool {
	return a.Status == StatusPending &&
		a.CurrentStepID == step.ID &&
		step.HasApprover(userID)
}

// NextStep returns the step with the next-higher order after the given
// step, or false if it is the last one.
func (a *QuoteApproval) NextStep(after *Step) (*Step, bool) {
	var next *Step
	for i := range a.Steps {
		s := &a.Steps[i]
		if s.Order <= after.Order {
			continue
		}
		if next == nil || s.Order < next.Order {
			next = s
		}
	}
	return next, next != nil
}

// DeriveOverallStatus recomputes the approval's status, current step, and
// completion time from the action history. It is called after every
// recorded action.
//
// A rejected current step terminates the approval immediately. An approved
// current step (or a skipped optional one) advances to the next step, or
// approves the whole request when it was the last step. A pending current
// step leaves everything unchanged.
func DeriveOverallStatus(a *QuoteApproval, now time.Time) {
	if a.Status != StatusPending {
		return
	}
	cur, ok := a.CurrentStep()
	if !ok {
		// Precondition violation; the caller guarantees the current step
		// always refers to a snapshot step while pending.
		return
	}

	switch ComputeStepStatus(a, cur) {
	case StepRejected:
		a.Status = StatusRejected
		a.CurrentStepID = ""
		a.CompletedAt = &now
	case StepApproved:
		a.advance(cur, now)
	case StepSkipped:
		if !cur.IsRequired {
			a.advance(cur, now)
		}
	}
}

// advance moves to the next step, or approves the whole request when the
// given step was the last one.
func (a *QuoteApproval) advance(from *Step, now time.Time) {
	next, ok := a.NextStep(from)
	if !ok {
		a.Status = StatusApproved
		a.CurrentStepID = ""
		a.CompletedAt = &now
		return
	}
	a.CurrentStepID = next.ID
}

// ValidateSteps checks a workflow's step configuration: at least one step,
// every step with a non-empty approver set, and no duplicate order values.
func ValidateSteps(steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("%w: workflow has no steps", ErrValidation)
	}
	seenOrder := make(map[int]string, len(steps))
	for _, s := range steps {
		if len(s.ApproverIDs) == 0 {
			return fmt.Errorf("%w: step %q has no approvers", ErrValidation, s.Name)
		}
		seen := make(map[string]bool, len(s.ApproverIDs))
		for _, id := range s.ApproverIDs {
			if id == "" {
				return fmt.Errorf("%w: step %q has an empty approver id", ErrValidation, s.Name)
			}
			if seen[id] {
				return fmt.Errorf("%w: step %q lists approver %s twice", ErrValidation, s.Name, id)
			}
			seen[id] = true
		}
		if other, dup := seenOrder[s.Order]; dup {
			return fmt.Errorf("%w: steps %q and %q share order %d", ErrValidation, other, s.Name, s.Order)
		}
		seenOrder[s.Order] = s.Name
	}
	return nil
}
