package approval

import (
	"errors"
	"testing"
	"time"
)

var baseTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func twoStepApproval() *QuoteApproval {
	return &QuoteApproval{
		ID:            "ap-1",
		QuoteID:       "q-1",
		WorkflowID:    "wf-1",
		Status:        StatusPending,
		CurrentStepID: "s1",
		Steps: []Step{
			{ID: "s1", Name: "Manager Review", Order: 1, ApproverIDs: []string{"u1"}, IsRequired: true},
			{ID: "s2", Name: "Finance Review", Order: 2, ApproverIDs: []string{"u2"}, IsRequired: true},
		},
		RequestedBy: "u9",
		RequestedAt: baseTime,
	}
}

func action(stepID, approverID string, d Decision, at time.Time) Action {
	return Action{
		ID:         "act-" + stepID + "-" + approverID,
		ApprovalID: "ap-1",
		StepID:     stepID,
		ApproverID: approverID,
		Action:     d,
		ActedAt:    at,
	}
}

func TestComputeStepStatus_NoActions(t *testing.T) {
	a := twoStepApproval()

	for i := range a.Steps {
		if got := ComputeStepStatus(a, &a.Steps[i]); got != StepPending {
			t.Errorf("step %s with no actions = %v, want %v", a.Steps[i].ID, got, StepPending)
		}
	}
}

func TestComputeStepStatus_LatestActionWins(t *testing.T) {
	tests := []struct {
		name    string
		actions []Action
		want    StepStatus
	}{
		{
			name:    "single approval",
			actions: []Action{action("s1", "u1", DecisionApproved, baseTime)},
			want:    StepApproved,
		},
		{
			name:    "single rejection",
			actions: []Action{action("s1", "u1", DecisionRejected, baseTime)},
			want:    StepRejected,
		},
		{
			name: "later action overrides earlier",
			actions: []Action{
				action("s1", "u1", DecisionRejected, baseTime),
				action("s1", "u1", DecisionApproved, baseTime.Add(time.Minute)),
			},
			want: StepApproved,
		},
		{
			name: "out of order timestamps",
			actions: []Action{
				action("s1", "u1", DecisionApproved, baseTime.Add(time.Minute)),
				action("s1", "u1", DecisionRejected, baseTime),
			},
			want: StepApproved,
		},
		{
			name: "equal timestamps: insertion order breaks the tie",
			actions: []Action{
				action("s1", "u1", DecisionApproved, baseTime),
				action("s1", "u1", DecisionRejected, baseTime),
			},
			want: StepRejected,
		},
		{
			name:    "skipped action resolves the step",
			actions: []Action{action("s1", "u1", DecisionSkipped, baseTime)},
			want:    StepSkipped,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := twoStepApproval()
			a.Actions = tt.actions
			if got := ComputeStepStatus(a, &a.Steps[0]); got != tt.want {
				t.Errorf("ComputeStepStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeStepStatus_RequiresAllApprovers(t *testing.T) {
	step := Step{
		ID: "s1", Name: "Board", Order: 1,
		ApproverIDs:          []string{"u1", "u2"},
		IsRequired:           true,
		RequiresAllApprovers: true,
	}

	tests := []struct {
		name    string
		actions []Action
		want    StepStatus
	}{
		{
			name:    "one of two approvals",
			actions: []Action{action("s1", "u1", DecisionApproved, baseTime)},
			want:    StepPending,
		},
		{
			name: "both approvals",
			actions: []Action{
				action("s1", "u1", DecisionApproved, baseTime),
				action("s1", "u2", DecisionApproved, baseTime.Add(time.Minute)),
			},
			want: StepApproved,
		},
		{
			name: "duplicate approvals by the same approver do not count twice",
			actions: []Action{
				action("s1", "u1", DecisionApproved, baseTime),
				action("s1", "u1", DecisionApproved, baseTime.Add(time.Minute)),
			},
			want: StepPending,
		},
		{
			name: "any rejection fails the quorum",
			actions: []Action{
				action("s1", "u1", DecisionApproved, baseTime),
				action("s1", "u2", DecisionRejected, baseTime.Add(time.Minute)),
			},
			want: StepRejected,
		},
		{
			name: "rejection is absorbing even when everyone later approves",
			actions: []Action{
				action("s1", "u1", DecisionRejected, baseTime),
				action("s1", "u1", DecisionApproved, baseTime.Add(time.Minute)),
				action("s1", "u2", DecisionApproved, baseTime.Add(2*time.Minute)),
			},
			want: StepRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := twoStepApproval()
			a.Steps[0] = step
			a.Actions = tt.actions
			if got := ComputeStepStatus(a, &a.Steps[0]); got != tt.want {
				t.Errorf("ComputeStepStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Recording order must not matter for the quorum branch: it counts distinct
// approvers instead of taking the most recent action.
func TestComputeStepStatus_QuorumOrderIndependence(t *testing.T) {
	step := Step{
		ID: "s1", Name: "Board", Order: 1,
		ApproverIDs:          []string{"u1", "u2"},
		RequiresAllApprovers: true,
	}

	forward := []Action{
		action("s1", "u1", DecisionApproved, baseTime),
		action("s1", "u2", DecisionApproved, baseTime.Add(time.Minute)),
	}
	reversed := []Action{forward[1], forward[0]}

	for name, actions := range map[string][]Action{"forward": forward, "reversed": reversed} {
		a := twoStepApproval()
		a.Steps[0] = step
		a.Actions = actions
		if got := ComputeStepStatus(a, &a.Steps[0]); got != StepApproved {
			t.Errorf("%s order: ComputeStepStatus() = %v, want %v", name, got, StepApproved)
		}
	}
}

func TestCanAct(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *QuoteApproval)
		stepID string
		userID string
		want   bool
	}{
		{
			name:   "eligible approver on current step",
			mutate: func(a *QuoteApproval) {},
			stepID: "s1", userID: "u1", want: true,
		},
		{
			name:   "approver of a later step cannot act early",
			mutate: func(a *QuoteApproval) {},
			stepID: "s2", userID: "u2", want: false,
		},
		{
			name:   "user outside the approver set",
			mutate: func(a *QuoteApproval) {},
			stepID: "s1", userID: "u3", want: false,
		},
		{
			name:   "terminal approval blocks everyone",
			mutate: func(a *QuoteApproval) { a.Status = StatusRejected; a.CurrentStepID = "" },
			stepID: "s1", userID: "u1", want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := twoStepApproval()
			tt.mutate(a)
			step, ok := a.StepByID(tt.stepID)
			if !ok {
				t.Fatalf("step %s not found", tt.stepID)
			}
			if got := CanAct(a, step, tt.userID); got != tt.want {
				t.Errorf("CanAct(%s, %s) = %v, want %v", tt.stepID, tt.userID, got, tt.want)
			}
		})
	}
}

func TestDeriveOverallStatus_ApprovalAdvances(t *testing.T) {
	a := twoStepApproval()
	a.Actions = []Action{action("s1", "u1", DecisionApproved, baseTime)}

	DeriveOverallStatus(a, baseTime.Add(time.Second))

	if a.Status != StatusPending {
		t.Errorf("status = %v, want %v", a.Status, StatusPending)
	}
	if a.CurrentStepID != "s2" {
		t.Errorf("current step = %q, want s2", a.CurrentStepID)
	}
	if a.CompletedAt != nil {
		t.Error("completed_at should not be set while pending")
	}
}

func TestDeriveOverallStatus_LastStepApprovesOverall(t *testing.T) {
	a := twoStepApproval()
	a.CurrentStepID = "s2"
	a.Actions = []Action{
		action("s1", "u1", DecisionApproved, baseTime),
		action("s2", "u2", DecisionApproved, baseTime.Add(time.Minute)),
	}
	done := baseTime.Add(2 * time.Minute)

	DeriveOverallStatus(a, done)

	if a.Status != StatusApproved {
		t.Errorf("status = %v, want %v", a.Status, StatusApproved)
	}
	if a.CurrentStepID != "" {
		t.Errorf("current step = %q, want cleared", a.CurrentStepID)
	}
	if a.CompletedAt == nil || !a.CompletedAt.Equal(done) {
		t.Errorf("completed_at = %v, want %v", a.CompletedAt, done)
	}
}

func TestDeriveOverallStatus_RejectionIsTerminal(t *testing.T) {
	a := twoStepApproval()
	a.Actions = []Action{action("s1", "u1", DecisionRejected, baseTime)}

	DeriveOverallStatus(a, baseTime.Add(time.Second))

	if a.Status != StatusRejected {
		t.Errorf("status = %v, want %v", a.Status, StatusRejected)
	}
	if a.CurrentStepID != "" {
		t.Errorf("current step = %q, want cleared", a.CurrentStepID)
	}
	if a.CompletedAt == nil {
		t.Error("completed_at should be set on rejection")
	}
}

func TestDeriveOverallStatus_SkippedStep(t *testing.T) {
	t.Run("optional step advances", func(t *testing.T) {
		a := twoStepApproval()
		a.Steps[0].IsRequired = false
		a.Actions = []Action{action("s1", "u1", DecisionSkipped, baseTime)}

		DeriveOverallStatus(a, baseTime.Add(time.Second))

		if a.Status != StatusPending || a.CurrentStepID != "s2" {
			t.Errorf("got (%v, %q), want (pending, s2)", a.Status, a.CurrentStepID)
		}
	})

	t.Run("required step stays put", func(t *testing.T) {
		a := twoStepApproval()
		a.Actions = []Action{action("s1", "u1", DecisionSkipped, baseTime)}

		DeriveOverallStatus(a, baseTime.Add(time.Second))

		if a.Status != StatusPending || a.CurrentStepID != "s1" {
			t.Errorf("got (%v, %q), want (pending, s1)", a.Status, a.CurrentStepID)
		}
	})
}

func TestDeriveOverallStatus_TerminalApprovalUnchanged(t *testing.T) {
	a := twoStepApproval()
	a.Status = StatusCancelled
	a.CurrentStepID = ""

	DeriveOverallStatus(a, baseTime)

	if a.Status != StatusCancelled {
		t.Errorf("status = %v, want %v", a.Status, StatusCancelled)
	}
}

// Current step order must never decrease across a recorded history.
func TestDeriveOverallStatus_MonotonicStepOrder(t *testing.T) {
	a := twoStepApproval()
	lastOrder := 0

	check := func() {
		cur, ok := a.CurrentStep()
		if !ok {
			return
		}
		if cur.Order < lastOrder {
			t.Fatalf("current step order decreased: %d -> %d", lastOrder, cur.Order)
		}
		lastOrder = cur.Order
	}

	check()
	a.Actions = append(a.Actions, action("s1", "u1", DecisionApproved, baseTime))
	DeriveOverallStatus(a, baseTime)
	check()
	a.Actions = append(a.Actions, action("s2", "u2", DecisionApproved, baseTime.Add(time.Minute)))
	DeriveOverallStatus(a, baseTime.Add(time.Minute))
	check()

	if a.Status != StatusApproved {
		t.Errorf("final status = %v, want %v", a.Status, StatusApproved)
	}
}

func TestValidateSteps(t *testing.T) {
	tests := []struct {
		name    string
		steps   []Step
		wantErr bool
	}{
		{
			name: "valid",
			steps: []Step{
				{Name: "a", Order: 1, ApproverIDs: []string{"u1"}},
				{Name: "b", Order: 2, ApproverIDs: []string{"u2", "u3"}},
			},
		},
		{name: "empty", steps: nil, wantErr: true},
		{
			name:    "no approvers",
			steps:   []Step{{Name: "a", Order: 1}},
			wantErr: true,
		},
		{
			name: "duplicate order",
			steps: []Step{
				{Name: "a", Order: 1, ApproverIDs: []string{"u1"}},
				{Name: "b", Order: 1, ApproverIDs: []string{"u2"}},
			},
			wantErr: true,
		},
		{
			name:    "duplicate approver in one step",
			steps:   []Step{{Name: "a", Order: 1, ApproverIDs: []string{"u1", "u1"}}},
			wantErr: true,
		},
		{
			name:    "empty approver id",
			steps:   []Step{{Name: "a", Order: 1, ApproverIDs: []string{""}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSteps(tt.steps)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSteps() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("ValidateSteps() error = %v, want ErrValidation kind", err)
			}
		})
	}
}
