package domain

// Status represents the lifecycle state of an entity.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusPending    Status = "pending"
	StatusActive     Status = "active"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusSuspended  Status = "suspended"
	StatusExpired    Status = "expired"
	StatusTerminated Status = "terminated"
	StatusCancelled  Status = "cancelled"
	StatusVerified   Status = "verified"
	StatusUnverified Status = "unverified"
	StatusOverdue    Status = "overdue"
	StatusPaid       Status = "paid"
	StatusArchived   Status = "archived"
)

// Operation represents a named lifecycle action that triggers a state transition.
// Entities are never moved between statuses directly; every change goes through
// an operation so the per-kind transition table can validate it.
type Operation string

const (
	OpSubmit      Operation = "submit"
	OpApprove     Operation = "approve"
	OpReject      Operation = "reject"
	OpActivate    Operation = "activate"
	OpDeactivate  Operation = "deactivate"
	OpSuspend     Operation = "suspend"
	OpExpire      Operation = "expire"
	OpRenew       Operation = "renew"
	OpTerminate   Operation = "terminate"
	OpCancel      Operation = "cancel"
	OpVerify      Operation = "verify"
	OpUnverify    Operation = "unverify"
	OpMarkPaid    Operation = "mark_paid"
	OpMarkOverdue Operation = "mark_overdue"
	OpArchive     Operation = "archive"
	OpUnarchive   Operation = "unarchive"
)

// Transition defines a valid state change: an operation moves an entity from Src to Dst.
// Src == Dst is allowed for operations like renew that re-apply side effects
// without changing state.
type Transition struct {
	Op  Operation
	Src Status
	Dst Status
}
