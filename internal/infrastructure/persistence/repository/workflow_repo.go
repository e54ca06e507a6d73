package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/oakcrm/quote-approval/internal/application/port"
	"github.com/oakcrm/quote-approval/internal/domain/approval"
	"github.com/oakcrm/quote-approval/internal/infrastructure/persistence/sqlite"
)

// WorkflowRepository implements port.WorkflowRepository on sqlite
type WorkflowRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *sqlite.DB, logger *zap.Logger) port.WorkflowRepository {
	return &WorkflowRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a workflow template and its steps
func (r *WorkflowRepository) Create(ctx context.Context, wf *approval.Workflow) error {
	minAmount, maxAmount, categories, err := conditionColumns(wf.Conditions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO approval_workflows (
			id, name, description, is_active, min_amount, max_amount,
			categories, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Executor(ctx).ExecContext(ctx, query,
		wf.ID, wf.Name, wf.Description, wf.IsActive,
		minAmount, maxAmount, categories, wf.CreatedAt, wf.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow", zap.Error(err))
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	return r.insertSteps(ctx, wf)
}

// GetByID retrieves a workflow template with its steps
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*approval.Workflow, error) {
	query := `
		SELECT id, name, description, is_active, min_amount, max_amount,
			categories, created_at, updated_at
		FROM approval_workflows
		WHERE id = ?
	`
	wf, err := r.scanWorkflow(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	steps, err := r.loadSteps(ctx, wf.ID)
	if err != nil {
		return nil, err
	}
	wf.Steps = steps
	return wf, nil
}

// Update replaces a workflow template and its step definitions
func (r *WorkflowRepository) Update(ctx context.Context, wf *approval.Workflow) error {
	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		minAmount, maxAmount, categories, err := conditionColumns(wf.Conditions)
		if err != nil {
			return err
		}

		query := `
			UPDATE approval_workflows
			SET name = ?, description = ?, is_active = ?, min_amount = ?,
				max_amount = ?, categories = ?, updated_at = ?
			WHERE id = ?
		`
		result, err := r.db.Executor(txCtx).ExecContext(txCtx, query,
			wf.Name, wf.Description, wf.IsActive,
			minAmount, maxAmount, categories, wf.UpdatedAt, wf.ID,
		)
		if err != nil {
			r.logger.Error("Failed to update workflow", zap.String("id", wf.ID), zap.Error(err))
			return fmt.Errorf("failed to update workflow: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("%w: workflow %s", approval.ErrNotFound, wf.ID)
		}

		// Steps are replaced wholesale; approval snapshots keep their own copies
		if _, err := r.db.Executor(txCtx).ExecContext(txCtx,
			"DELETE FROM workflow_steps WHERE workflow_id = ?", wf.ID); err != nil {
			return fmt.Errorf("failed to clear workflow steps: %w", err)
		}
		return r.insertSteps(txCtx, wf)
	})
}

// List retrieves workflow templates with their steps
func (r *WorkflowRepository) List(ctx context.Context, activeOnly bool) ([]*approval.Workflow, error) {
	query := `
		SELECT id, name, description, is_active, min_amount, max_amount,
			categories, created_at, updated_at
		FROM approval_workflows
	`
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY name"

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list workflows", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*approval.Workflow
	for rows.Next() {
		wf, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workflows: %w", err)
	}

	for _, wf := range workflows {
		steps, err := r.loadSteps(ctx, wf.ID)
		if err != nil {
			return nil, err
		}
		wf.Steps = steps
	}
	return workflows, nil
}

func (r *WorkflowRepository) insertSteps(ctx context.Context, wf *approval.Workflow) error {
	query := `
		INSERT INTO workflow_steps (
			id, workflow_id, name, step_order, approver_role, approver_ids,
			is_required, requires_all_approvers, timeout_days
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i := range wf.Steps {
		st := &wf.Steps[i]
		approverIDs, err := json.Marshal(st.ApproverIDs)
		if err != nil {
			return fmt.Errorf("failed to marshal approver ids: %w", err)
		}
		if _, err := r.db.Executor(ctx).ExecContext(ctx, query,
			st.ID, wf.ID, st.Name, st.Order, st.ApproverRole, string(approverIDs),
			st.IsRequired, st.RequiresAllApprovers, st.TimeoutDays,
		); err != nil {
			r.logger.Error("Failed to insert workflow step", zap.String("step", st.Name), zap.Error(err))
			return fmt.Errorf("failed to insert workflow step: %w", err)
		}
	}
	return nil
}

func (r *WorkflowRepository) loadSteps(ctx context.Context, workflowID string) ([]approval.Step, error) {
	query := `
		SELECT id, workflow_id, name, step_order, approver_role, approver_ids,
			is_required, requires_all_approvers, timeout_days
		FROM workflow_steps
		WHERE workflow_id = ?
		ORDER BY step_order
	`
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, workflowID)
	if err != nil {
		r.logger.Error("Failed to load workflow steps", zap.String("workflow_id", workflowID), zap.Error(err))
		return nil, fmt.Errorf("failed to load workflow steps: %w", err)
	}
	defer rows.Close()

	return scanSteps(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *WorkflowRepository) scanWorkflow(row rowScanner) (*approval.Workflow, error) {
	var wf approval.Workflow
	var minAmount, maxAmount sql.NullFloat64
	var categories sql.NullString

	if err := row.Scan(
		&wf.ID, &wf.Name, &wf.Description, &wf.IsActive,
		&minAmount, &maxAmount, &categories, &wf.CreatedAt, &wf.UpdatedAt,
	); err != nil {
		return nil, err
	}

	wf.Conditions = conditionsFromColumns(minAmount, maxAmount, categories)
	return &wf, nil
}

// scanSteps reads step rows shared by the template and snapshot queries
func scanSteps(rows *sql.Rows) ([]approval.Step, error) {
	var steps []approval.Step
	for rows.Next() {
		var st approval.Step
		var approverIDs string
		if err := rows.Scan(
			&st.ID, &st.WorkflowID, &st.Name, &st.Order, &st.ApproverRole,
			&approverIDs, &st.IsRequired, &st.RequiresAllApprovers, &st.TimeoutDays,
		); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if err := json.Unmarshal([]byte(approverIDs), &st.ApproverIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal approver ids: %w", err)
		}
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate steps: %w", err)
	}
	return steps, nil
}

func conditionColumns(c *approval.Conditions) (minAmount, maxAmount interface{}, categories interface{}, err error) {
	if c == nil {
		return nil, nil, nil, nil
	}
	if c.MinAmount != nil {
		minAmount = *c.MinAmount
	}
	if c.MaxAmount != nil {
		maxAmount = *c.MaxAmount
	}
	if len(c.Categories) > 0 {
		data, merr := json.Marshal(c.Categories)
		if merr != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal categories: %w", merr)
		}
		categories = string(data)
	}
	return minAmount, maxAmount, categories, nil
}

func conditionsFromColumns(minAmount, maxAmount sql.NullFloat64, categories sql.NullString) *approval.Conditions {
	if !minAmount.Valid && !maxAmount.Valid && !categories.Valid {
		return nil
	}
	c := &approval.Conditions{}
	if minAmount.Valid {
		v := minAmount.Float64
		c.MinAmount = &v
	}
	if maxAmount.Valid {
		v := maxAmount.Float64
		c.MaxAmount = &v
	}
	if categories.Valid && categories.String != "" {
		// Corrupt rows surface as a nil list rather than failing the read
		_ = json.Unmarshal([]byte(categories.String), &c.Categories)
	}
	return c
}
