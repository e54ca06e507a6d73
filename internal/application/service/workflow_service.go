package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oakcrm/quote-approval/internal/application/port"
	"github.com/oakcrm/quote-approval/internal/domain/approval"
)

// WorkflowService manages approval workflow templates. Templates are
// referenced, never mutated, by in-flight approvals: each approval keeps
// its own step snapshot, so edits here only affect future requests.
type WorkflowService interface {
	CreateWorkflow(ctx context.Context, wf *approval.Workflow) (*approval.Workflow, error)
	UpdateWorkflow(ctx context.Context, wf *approval.Workflow) (*approval.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (*approval.Workflow, error)
	ListWorkflows(ctx context.Context, activeOnly bool) ([]*approval.Workflow, error)
	SetActive(ctx context.Context, id string, active bool) (*approval.Workflow, error)

	// FindApplicable returns active workflows whose conditions match the
	// given amount and category. The match is advisory: initiators use it
	// to pick a workflow, the engine never re-checks it.
	FindApplicable(ctx context.Context, amount float64, category string) ([]*approval.Workflow, error)
}

type workflowServiceImpl struct {
	workflowRepo port.WorkflowRepository
	logger       Logger
}

// NewWorkflowService creates a new WorkflowService
func NewWorkflowService(workflowRepo port.WorkflowRepository, logger Logger) WorkflowService {
	return &workflowServiceImpl{
		workflowRepo: workflowRepo,
		logger:       logger,
	}
}

// CreateWorkflow validates and persists a new workflow template
func (s *workflowServiceImpl) CreateWorkflow(ctx context.Context, wf *approval.Workflow) (*approval.Workflow, error) {
	if wf.Name == "" {
		return nil, fmt.Errorf("%w: workflow name is required", approval.ErrValidation)
	}
	if err := approval.ValidateSteps(wf.Steps); err != nil {
		return nil, err
	}

	now := time.Now()
	wf.ID = uuid.NewString()
	wf.CreatedAt = now
	wf.UpdatedAt = now
	for i := range wf.Steps {
		wf.Steps[i].ID = uuid.NewString()
		wf.Steps[i].WorkflowID = wf.ID
	}
	approval.SortSteps(wf.Steps)

	if err := s.workflowRepo.Create(ctx, wf); err != nil {
		s.logger.Error("Failed to create workflow", "error", err, "name", wf.Name)
		return nil, err
	}

	s.logger.Info("Workflow created", "workflow_id", wf.ID, "name", wf.Name, "steps", len(wf.Steps))
	return wf, nil
}

// UpdateWorkflow replaces a template's definition. Steps receive fresh ids
// so snapshots taken from the previous revision stay unambiguous.
func (s *workflowServiceImpl) UpdateWorkflow(ctx context.Context, wf *approval.Workflow) (*approval.Workflow, error) {
	if wf.ID == "" {
		return nil, fmt.Errorf("%w: workflow id is required", approval.ErrValidation)
	}
	if wf.Name == "" {
		return nil, fmt.Errorf("%w: workflow name is required", approval.ErrValidation)
	}
	if err := approval.ValidateSteps(wf.Steps); err != nil {
		return nil, err
	}

	existing, err := s.workflowRepo.GetByID(ctx, wf.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: workflow %s", approval.ErrNotFound, wf.ID)
	}

	wf.CreatedAt = existing.CreatedAt
	wf.UpdatedAt = time.Now()
	for i := range wf.Steps {
		wf.Steps[i].ID = uuid.NewString()
		wf.Steps[i].WorkflowID = wf.ID
	}
	approval.SortSteps(wf.Steps)

	if err := s.workflowRepo.Update(ctx, wf); err != nil {
		s.logger.Error("Failed to update workflow", "error", err, "workflow_id", wf.ID)
		return nil, err
	}

	s.logger.Info("Workflow updated", "workflow_id", wf.ID, "name", wf.Name)
	return wf, nil
}

// GetWorkflow retrieves a workflow template with its steps
func (s *workflowServiceImpl) GetWorkflow(ctx context.Context, id string) (*approval.Workflow, error) {
	wf, err := s.workflowRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get workflow", "error", err, "workflow_id", id)
		return nil, err
	}
	if wf == nil {
		return nil, fmt.Errorf("%w: workflow %s", approval.ErrNotFound, id)
	}
	return wf, nil
}

// ListWorkflows retrieves all workflow templates
func (s *workflowServiceImpl) ListWorkflows(ctx context.Context, activeOnly bool) ([]*approval.Workflow, error) {
	workflows, err := s.workflowRepo.List(ctx, activeOnly)
	if err != nil {
		s.logger.Error("Failed to list workflows", "error", err)
		return nil, err
	}
	return workflows, nil
}

// SetActive toggles a template's availability for new approval requests
func (s *workflowServiceImpl) SetActive(ctx context.Context, id string, active bool) (*approval.Workflow, error) {
	wf, err := s.workflowRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, fmt.Errorf("%w: workflow %s", approval.ErrNotFound, id)
	}

	wf.IsActive = active
	wf.UpdatedAt = time.Now()
	if err := s.workflowRepo.Update(ctx, wf); err != nil {
		s.logger.Error("Failed to update workflow", "error", err, "workflow_id", id)
		return nil, err
	}

	s.logger.Info("Workflow activation changed", "workflow_id", id, "active", active)
	return wf, nil
}

// FindApplicable evaluates workflow conditions against an amount and category
func (s *workflowServiceImpl) FindApplicable(ctx context.Context, amount float64, category string) ([]*approval.Workflow, error) {
	active, err := s.workflowRepo.List(ctx, true)
	if err != nil {
		s.logger.Error("Failed to list workflows", "error", err)
		return nil, err
	}

	matched := make([]*approval.Workflow, 0)
	for _, wf := range active {
		if wf.Conditions.Matches(amount, category) {
			matched = append(matched, wf)
		}
	}
	return matched, nil
}
