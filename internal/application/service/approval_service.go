package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oakcrm/quote-approval/internal/application/dispatcher"
	"github.com/oakcrm/quote-approval/internal/application/port"
	"github.com/oakcrm/quote-approval/internal/domain/approval"
	"github.com/oakcrm/quote-approval/internal/domain/event"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// RequestInput carries the fields needed to open a new quote approval
type RequestInput struct {
	QuoteID     string
	WorkflowID  string
	RequestedBy string
	TotalAmount float64
	Priority    string
	ExpiresAt   *time.Time
}

// ApprovalService records approver actions against quote approvals and
// drives their lifecycle. All writes go through the transaction manager;
// a failed precondition leaves the approval record untouched.
type ApprovalService interface {
	// RequestApproval snapshots the workflow's steps into a new pending
	// approval positioned at the lowest-order step
	RequestApproval(ctx context.Context, in RequestInput) (*approval.QuoteApproval, error)

	// RecordAction validates and appends one approve/reject action, then
	// recomputes the approval's status and current step
	RecordAction(ctx context.Context, approvalID, stepID, approverID string, decision approval.Decision, comments string) (*approval.QuoteApproval, error)

	// SkipStep records an automatic skipped action on the current step.
	// Only optional steps advance on a skip; it is meant for schedulers
	// and admin tooling, not for the approver-facing surface.
	SkipStep(ctx context.Context, approvalID, stepID, actorID, reason string) (*approval.QuoteApproval, error)

	// CancelApproval terminates a pending approval without an approver
	// decision, recording the reason as metadata
	CancelApproval(ctx context.Context, approvalID, reason, cancelledBy string) (*approval.QuoteApproval, error)

	// ExpireOverdue marks pending approvals past their expiry time as
	// expired, returning how many were transitioned
	ExpireOverdue(ctx context.Context, limit int) (int, error)

	GetApproval(ctx context.Context, id string) (*approval.QuoteApproval, error)
	ListApprovals(ctx context.Context, filter port.ApprovalFilter) ([]*approval.QuoteApproval, error)

	// ListPendingForApprover returns pending approvals whose current step
	// lists the given user as an eligible approver
	ListPendingForApprover(ctx context.Context, approverID string) ([]*approval.QuoteApproval, error)
}

type approvalServiceImpl struct {
	approvalRepo port.ApprovalRepository
	workflowRepo port.WorkflowRepository
	txManager    port.TransactionManager
	events       dispatcher.Dispatcher
	logger       Logger
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	approvalRepo port.ApprovalRepository,
	workflowRepo port.WorkflowRepository,
	txManager port.TransactionManager,
	events dispatcher.Dispatcher,
	logger Logger,
) ApprovalService {
	return &approvalServiceImpl{
		approvalRepo: approvalRepo,
		workflowRepo: workflowRepo,
		txManager:    txManager,
		events:       events,
		logger:       logger,
	}
}

// RequestApproval creates a new pending approval bound to a quote and a workflow
func (s *approvalServiceImpl) RequestApproval(ctx context.Context, in RequestInput) (*approval.QuoteApproval, error) {
	if in.QuoteID == "" || in.WorkflowID == "" || in.RequestedBy == "" {
		return nil, fmt.Errorf("%w: quote id, workflow id, and requester are required", approval.ErrValidation)
	}

	wf, err := s.workflowRepo.GetByID(ctx, in.WorkflowID)
	if err != nil {
		s.logger.Error("Failed to load workflow", "error", err, "workflow_id", in.WorkflowID)
		return nil, err
	}
	if wf == nil || !wf.IsActive {
		return nil, fmt.Errorf("%w: workflow %s is inactive or does not exist", approval.ErrNotFound, in.WorkflowID)
	}
	if err := approval.ValidateSteps(wf.Steps); err != nil {
		return nil, err
	}

	now := time.Now()
	steps := snapshotSteps(wf.Steps)
	approval.SortSteps(steps)

	a := &approval.QuoteApproval{
		ID:            uuid.NewString(),
		QuoteID:       in.QuoteID,
		WorkflowID:    wf.ID,
		Status:        approval.StatusPending,
		CurrentStepID: steps[0].ID,
		Steps:         steps,
		Actions:       []approval.Action{},
		RequestedBy:   in.RequestedBy,
		RequestedAt:   now,
		ExpiresAt:     expiryFor(in.ExpiresAt, steps, now),
		TotalAmount:   in.TotalAmount,
		Priority:      in.Priority,
	}

	if err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.approvalRepo.Create(txCtx, a)
	}); err != nil {
		s.logger.Error("Failed to create approval", "error", err, "quote_id", in.QuoteID)
		return nil, err
	}

	s.logger.Info("Approval requested",
		"approval_id", a.ID, "quote_id", a.QuoteID, "workflow_id", wf.ID)
	s.publish(ctx, event.New(event.TypeApprovalRequested, a.ID, a.QuoteID, map[string]interface{}{
		"requested_by": a.RequestedBy,
		"total_amount": a.TotalAmount,
	}))
	return a, nil
}

// snapshotSteps deep-copies the template's steps with fresh ids. Snapshot
// rows are keyed globally, so ids must be unique per instance, not per
// workflow; reissuing also keeps snapshots from ever aliasing template
// steps across later template edits.
func snapshotSteps(template []approval.Step) []approval.Step {
	steps := make([]approval.Step, len(template))
	copy(steps, template)
	for i := range steps {
		steps[i].ID = uuid.NewString()
		steps[i].ApproverIDs = append([]string(nil), template[i].ApproverIDs...)
	}
	return steps
}

// expiryFor picks an explicit expiry when given one, otherwise derives an
// advisory expiry from the snapshot's step timeouts
func expiryFor(explicit *time.Time, steps []approval.Step, now time.Time) *time.Time {
	if explicit != nil {
		return explicit
	}
	days := 0
	for _, st := range steps {
		days += st.TimeoutDays
	}
	if days == 0 {
		return nil
	}
	t := now.Add(time.Duration(days) * 24 * time.Hour)
	return &t
}

// RecordAction appends an approver's decision to the current step
func (s *approvalServiceImpl) RecordAction(ctx context.Context, approvalID, stepID, approverID string, decision approval.Decision, comments string) (*approval.QuoteApproval, error) {
	if !decision.IsRecordable() {
		return nil, fmt.Errorf("%w: decision must be approved or rejected", approval.ErrValidation)
	}
	if decision == approval.DecisionRejected && strings.TrimSpace(comments) == "" {
		return nil, fmt.Errorf("%w: rejection requires comments", approval.ErrValidation)
	}

	return s.appendAndRecompute(ctx, approvalID, stepID, approverID, decision, comments, false)
}

// SkipStep records an automatic skipped action on the current step
func (s *approvalServiceImpl) SkipStep(ctx context.Context, approvalID, stepID, actorID, reason string) (*approval.QuoteApproval, error) {
	return s.appendAndRecompute(ctx, approvalID, stepID, actorID, approval.DecisionSkipped, reason, true)
}

// appendAndRecompute validates the action's preconditions, appends exactly
// one action record, and rederives the overall status inside one transaction
func (s *approvalServiceImpl) appendAndRecompute(ctx context.Context, approvalID, stepID, actorID string, decision approval.Decision, comments string, automatic bool) (*approval.QuoteApproval, error) {
	var result *approval.QuoteApproval
	var transitioned approval.Status
	var advancedTo string

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		a, err := s.approvalRepo.GetByID(txCtx, approvalID)
		if err != nil {
			return err
		}
		if a == nil {
			return fmt.Errorf("%w: approval %s", approval.ErrNotFound, approvalID)
		}
		if a.Status != approval.StatusPending {
			return fmt.Errorf("%w: approval %s is %s", approval.ErrInvalidState, a.ID, a.Status)
		}

		step, ok := a.StepByID(stepID)
		if !ok {
			return fmt.Errorf("%w: step %s", approval.ErrNotFound, stepID)
		}
		if stepID != a.CurrentStepID {
			return fmt.Errorf("%w: step %s", approval.ErrInvalidStep, stepID)
		}
		if !automatic && !step.HasApprover(actorID) {
			return fmt.Errorf("%w: user %s cannot act on step %s", approval.ErrUnauthorized, actorID, stepID)
		}

		now := time.Now()
		act := &approval.Action{
			ID:          uuid.NewString(),
			ApprovalID:  a.ID,
			StepID:      stepID,
			ApproverID:  actorID,
			Action:      decision,
			Comments:    comments,
			IsAutomatic: automatic,
			ActedAt:     now,
		}
		if err := s.approvalRepo.AppendAction(txCtx, act); err != nil {
			return fmt.Errorf("append action: %w", err)
		}
		a.Actions = append(a.Actions, *act)

		before := a.CurrentStepID
		approval.DeriveOverallStatus(a, now)
		if err := s.approvalRepo.Update(txCtx, a); err != nil {
			return fmt.Errorf("update approval: %w", err)
		}

		if a.Status != approval.StatusPending {
			transitioned = a.Status
		} else if a.CurrentStepID != before {
			advancedTo = a.CurrentStepID
		}
		result = a
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to record action",
			"error", err, "approval_id", approvalID, "step_id", stepID, "actor_id", actorID)
		return nil, err
	}

	s.logger.Info("Action recorded",
		"approval_id", result.ID,
		"step_id", stepID,
		"actor_id", actorID,
		"decision", decision,
		"status", result.Status)

	s.publish(ctx, event.New(event.TypeActionRecorded, result.ID, result.QuoteID, map[string]interface{}{
		"step_id":  stepID,
		"actor_id": actorID,
		"decision": decision.String(),
	}))
	switch transitioned {
	case approval.StatusApproved:
		s.publish(ctx, event.New(event.TypeApprovalApproved, result.ID, result.QuoteID, nil))
	case approval.StatusRejected:
		s.publish(ctx, event.New(event.TypeApprovalRejected, result.ID, result.QuoteID, map[string]interface{}{
			"comments": comments,
		}))
	}
	if advancedTo != "" {
		s.publish(ctx, event.New(event.TypeStepAdvanced, result.ID, result.QuoteID, map[string]interface{}{
			"current_step_id": advancedTo,
		}))
	}
	return result, nil
}

// CancelApproval terminates a pending approval
func (s *approvalServiceImpl) CancelApproval(ctx context.Context, approvalID, reason, cancelledBy string) (*approval.QuoteApproval, error) {
	var result *approval.QuoteApproval

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		a, err := s.approvalRepo.GetByID(txCtx, approvalID)
		if err != nil {
			return err
		}
		if a == nil {
			return fmt.Errorf("%w: approval %s", approval.ErrNotFound, approvalID)
		}
		if a.Status != approval.StatusPending {
			return fmt.Errorf("%w: approval %s is %s", approval.ErrInvalidState, a.ID, a.Status)
		}

		now := time.Now()
		a.Status = approval.StatusCancelled
		a.CurrentStepID = ""
		a.CompletedAt = &now
		a.CancelReason = reason
		a.CancelledBy = cancelledBy

		if err := s.approvalRepo.Update(txCtx, a); err != nil {
			return fmt.Errorf("update approval: %w", err)
		}
		result = a
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to cancel approval", "error", err, "approval_id", approvalID)
		return nil, err
	}

	s.logger.Info("Approval cancelled", "approval_id", result.ID, "reason", reason)
	s.publish(ctx, event.New(event.TypeApprovalCancelled, result.ID, result.QuoteID, map[string]interface{}{
		"reason":       reason,
		"cancelled_by": cancelledBy,
	}))
	return result, nil
}

// ExpireOverdue sweeps pending approvals whose expiry time has passed.
// Each approval is re-checked inside its own transaction so a racing
// approver action wins over the sweep.
func (s *approvalServiceImpl) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	overdue, err := s.approvalRepo.ListExpired(ctx, limit)
	if err != nil {
		s.logger.Error("Failed to list expired approvals", "error", err)
		return 0, err
	}

	expired := 0
	for _, candidate := range overdue {
		var result *approval.QuoteApproval
		err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			a, err := s.approvalRepo.GetByID(txCtx, candidate.ID)
			if err != nil {
				return err
			}
			if a == nil || a.Status != approval.StatusPending {
				return nil
			}
			now := time.Now()
			if a.ExpiresAt == nil || a.ExpiresAt.After(now) {
				return nil
			}
			a.Status = approval.StatusExpired
			a.CurrentStepID = ""
			a.CompletedAt = &now
			if err := s.approvalRepo.Update(txCtx, a); err != nil {
				return fmt.Errorf("update approval: %w", err)
			}
			result = a
			return nil
		})
		if err != nil {
			s.logger.Error("Failed to expire approval", "error", err, "approval_id", candidate.ID)
			continue
		}
		if result != nil {
			expired++
			s.publish(ctx, event.New(event.TypeApprovalExpired, result.ID, result.QuoteID, nil))
		}
	}

	if expired > 0 {
		s.logger.Info("Expired overdue approvals", "count", expired)
	}
	return expired, nil
}

// GetApproval retrieves an approval with its steps and action history
func (s *approvalServiceImpl) GetApproval(ctx context.Context, id string) (*approval.QuoteApproval, error) {
	a, err := s.approvalRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get approval", "error", err, "approval_id", id)
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("%w: approval %s", approval.ErrNotFound, id)
	}
	return a, nil
}

// ListApprovals retrieves approvals matching the filter
func (s *approvalServiceImpl) ListApprovals(ctx context.Context, filter port.ApprovalFilter) ([]*approval.QuoteApproval, error) {
	approvals, err := s.approvalRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list approvals", "error", err)
		return nil, err
	}
	return approvals, nil
}

// ListPendingForApprover returns the approver's inbox
func (s *approvalServiceImpl) ListPendingForApprover(ctx context.Context, approverID string) ([]*approval.QuoteApproval, error) {
	pending, err := s.approvalRepo.List(ctx, port.ApprovalFilter{Status: approval.StatusPending})
	if err != nil {
		s.logger.Error("Failed to list pending approvals", "error", err)
		return nil, err
	}

	inbox := make([]*approval.QuoteApproval, 0)
	for _, a := range pending {
		step, ok := a.CurrentStep()
		if ok && approval.CanAct(a, step, approverID) {
			inbox = append(inbox, a)
		}
	}
	return inbox, nil
}

// publish fires an event without blocking the caller
func (s *approvalServiceImpl) publish(ctx context.Context, evt *event.Event) {
	if s.events != nil {
		s.events.DispatchAsync(ctx, evt)
	}
}
