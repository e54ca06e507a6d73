package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/oakcrm/quote-approval/internal/application/port"
	"github.com/oakcrm/quote-approval/internal/domain/approval"
)

// ExportService renders an approval's step snapshot and action history as
// an XLSX workbook for compliance review.
type ExportService interface {
	ExportHistory(ctx context.Context, approvalID string) ([]byte, string, error)
}

type exportServiceImpl struct {
	approvalRepo port.ApprovalRepository
	userRepo     port.UserRepository
	logger       Logger
}

// NewExportService creates a new ExportService
func NewExportService(approvalRepo port.ApprovalRepository, userRepo port.UserRepository, logger Logger) ExportService {
	return &exportServiceImpl{
		approvalRepo: approvalRepo,
		userRepo:     userRepo,
		logger:       logger,
	}
}

// ExportHistory builds the workbook and returns its bytes and a file name
func (s *exportServiceImpl) ExportHistory(ctx context.Context, approvalID string) ([]byte, string, error) {
	a, err := s.approvalRepo.GetByID(ctx, approvalID)
	if err != nil {
		s.logger.Error("Failed to load approval for export", "error", err, "approval_id", approvalID)
		return nil, "", err
	}
	if a == nil {
		return nil, "", fmt.Errorf("%w: approval %s", approval.ErrNotFound, approvalID)
	}

	names := s.displayNames(ctx, a)

	f := excelize.NewFile()
	defer f.Close()

	const summarySheet = "Summary"
	f.SetSheetName(f.GetSheetName(0), summarySheet)
	s.fillSummary(f, summarySheet, a)

	actionsSheet := "Actions"
	if _, err := f.NewSheet(actionsSheet); err != nil {
		return nil, "", fmt.Errorf("failed to create sheet: %w", err)
	}
	s.fillActions(f, actionsSheet, a, names)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("failed to render workbook: %w", err)
	}

	filename := fmt.Sprintf("approval_%s_history.xlsx", a.ID)
	s.logger.Info("Approval history exported", "approval_id", a.ID, "actions", len(a.Actions))
	return buf.Bytes(), filename, nil
}

func (s *exportServiceImpl) fillSummary(f *excelize.File, sheet string, a *approval.QuoteApproval) {
	rows := [][]interface{}{
		{"Approval ID", a.ID},
		{"Quote ID", a.QuoteID},
		{"Workflow ID", a.WorkflowID},
		{"Status", a.Status.String()},
		{"Requested By", a.RequestedBy},
		{"Requested At", a.RequestedAt.Format(time.RFC3339)},
		{"Total Amount", a.TotalAmount},
		{"Priority", a.Priority},
	}
	if a.CompletedAt != nil {
		rows = append(rows, []interface{}{"Completed At", a.CompletedAt.Format(time.RFC3339)})
	}
	if a.CancelReason != "" {
		rows = append(rows, []interface{}{"Cancel Reason", a.CancelReason})
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		_ = f.SetSheetRow(sheet, cell, &row)
	}

	// Step snapshot below the summary block
	headerRow := len(rows) + 2
	header := []interface{}{"Step", "Order", "Approvers", "Required", "Quorum", "Status"}
	cell, _ := excelize.CoordinatesToCellName(1, headerRow)
	_ = f.SetSheetRow(sheet, cell, &header)

	for i := range a.Steps {
		st := &a.Steps[i]
		quorum := "latest action wins"
		if st.RequiresAllApprovers {
			quorum = "all approvers"
		}
		row := []interface{}{
			st.Name,
			st.Order,
			fmt.Sprintf("%v", st.ApproverIDs),
			st.IsRequired,
			quorum,
			approval.ComputeStepStatus(a, st).String(),
		}
		cell, _ := excelize.CoordinatesToCellName(1, headerRow+1+i)
		_ = f.SetSheetRow(sheet, cell, &row)
	}
}

func (s *exportServiceImpl) fillActions(f *excelize.File, sheet string, a *approval.QuoteApproval, names map[string]string) {
	header := []interface{}{"Timestamp", "Step", "Approver", "Action", "Comments", "Automatic"}
	_ = f.SetSheetRow(sheet, "A1", &header)

	for i, act := range a.Actions {
		stepName := act.StepID
		if st, ok := a.StepByID(act.StepID); ok {
			stepName = st.Name
		}
		actor := act.ApproverID
		if name, ok := names[act.ApproverID]; ok && name != "" {
			actor = fmt.Sprintf("%s (%s)", name, act.ApproverID)
		}
		row := []interface{}{
			act.ActedAt.Format(time.RFC3339),
			stepName,
			actor,
			act.Action.String(),
			act.Comments,
			act.IsAutomatic,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = f.SetSheetRow(sheet, cell, &row)
	}
}

// displayNames resolves approver ids to directory names, best effort
func (s *exportServiceImpl) displayNames(ctx context.Context, a *approval.QuoteApproval) map[string]string {
	names := make(map[string]string)
	if s.userRepo == nil {
		return names
	}

	idSet := make(map[string]bool)
	for _, act := range a.Actions {
		idSet[act.ApproverID] = true
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return names
	}

	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Error("Failed to resolve approver names", "error", err)
		return names
	}
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names
}
