package event

// Type identifies the type of domain event
type Type string

const (
	TypeApprovalRequested Type = "approval.requested"
	TypeActionRecorded    Type = "approval.action_recorded"
	TypeStepAdvanced      Type = "approval.step_advanced"
	TypeApprovalApproved  Type = "approval.approved"
	TypeApprovalRejected  Type = "approval.rejected"
	TypeApprovalCancelled Type = "approval.cancelled"
	TypeApprovalExpired   Type = "approval.expired"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeApprovalRequested,
		TypeActionRecorded,
		TypeStepAdvanced,
		TypeApprovalApproved,
		TypeApprovalRejected,
		TypeApprovalCancelled,
		TypeApprovalExpired:
		return true
	default:
		return false
	}
}
