package approval

// Status represents the overall lifecycle status of a quote approval
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

var validStatuses = map[Status]bool{
	StatusPending:   true,
	StatusApproved:  true,
	StatusRejected:  true,
	StatusCancelled: true,
	StatusExpired:   true,
}

var terminalStatuses = map[Status]bool{
	StatusApproved:  true,
	StatusRejected:  true,
	StatusCancelled: true,
	StatusExpired:   true,
}

// IsTerminal returns true if the status is terminal (no further actions allowed)
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// IsValid returns true if the status is a valid approval status
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// StepStatus represents the derived status of a single approval step
type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepApproved StepStatus = "approved"
	StepRejected StepStatus = "rejected"
	StepSkipped  StepStatus = "skipped"
)

// String returns the string representation of the step status
func (s StepStatus) String() string {
	return string(s)
}

// Decision represents a single approver's recorded decision on a step
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
	DecisionPending  Decision = "pending"
	DecisionSkipped  Decision = "skipped"
)

var validDecisions = map[Decision]bool{
	DecisionApproved: true,
	DecisionRejected: true,
	DecisionPending:  true,
	DecisionSkipped:  true,
}

// IsValid returns true if the decision is a valid action value
func (d Decision) IsValid() bool {
	return validDecisions[d]
}

// IsRecordable returns true if the decision may be submitted by an approver.
// Pending is a derived state, and skipped is reserved for automatic actions.
func (d Decision) IsRecordable() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// StepStatus maps the decision onto the step status it resolves to
func (d Decision) StepStatus() StepStatus {
	switch d {
	case DecisionApproved:
		return StepApproved
	case DecisionRejected:
		return StepRejected
	case DecisionSkipped:
		return StepSkipped
	default:
		return StepPending
	}
}

// String returns the string representation of the decision
func (d Decision) String() string {
	return string(d)
}
