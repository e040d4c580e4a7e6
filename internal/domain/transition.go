package domain

import "time"

// AuditRecord is one entry in an entity's append-only transition history.
// History is never mutated or deleted; the newest record's To always equals
// the entity's current status.
type AuditRecord struct {
	ID       int64
	EntityID int64
	Op       Operation
	Actor    Actor
	From     Status
	To       Status
	Reason   string
	// Noop marks an idempotent re-invocation that changed nothing. Noop
	// records always have From == To.
	Noop bool
	At   time.Time
}

// Archivable reports whether an entity in the given status may be archived:
// any non-terminal, non-archived status.
func Archivable(def Definition, current Status) bool {
	return current != StatusArchived && !def.IsTerminal(current)
}

// TransitionEffects returns the payload side effects a successful operation
// writes, keyed the way the audit trail expects them (submitted_at,
// approved_by, and so on). A nil value clears the field.
func TransitionEffects(op Operation, actor Actor, reason string, now time.Time) Payload {
	at := now.UTC().Format(time.RFC3339)

	switch op {
	case OpSubmit:
		return Payload{"submitted_at": at}
	case OpApprove:
		return Payload{"approved_at": at, "approved_by": actor.OwnerID}
	case OpReject:
		return Payload{"rejected_at": at, "rejected_by": actor.OwnerID, "rejection_reason": reason}
	case OpActivate:
		return Payload{"activated_at": at, "suspended_reason": nil}
	case OpDeactivate:
		return Payload{"deactivated_at": at}
	case OpSuspend:
		return Payload{"suspended_reason": reason}
	case OpExpire:
		return Payload{"expired_at": at}
	case OpRenew:
		return Payload{"renewed_at": at, "expired_at": nil}
	case OpTerminate:
		return Payload{"terminated_at": at}
	case OpCancel:
		return Payload{"cancelled_at": at}
	case OpVerify:
		return Payload{"verified_at": at, "verified_by": actor.OwnerID}
	case OpUnverify:
		return Payload{"verified_at": nil, "verified_by": nil}
	case OpMarkPaid:
		return Payload{"paid_at": at}
	case OpMarkOverdue:
		return Payload{"overdue_at": at}
	}
	return nil
}

// effect keys are not part of any kind's declared payload spec; ApplyEffects
// merges them without re-validating shape.
func ApplyEffects(p Payload, effects Payload) Payload {
	out := p.Clone()
	for k, v := range effects {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// Decision is the outcome of resolving an operation against an entity's
// current state. The repository applies it atomically together with the
// audit record.
type Decision struct {
	Next Status
	// Prior is the value to store in the entity's PriorStatus slot: set on
	// archive, cleared when ClearPrior is true, untouched otherwise.
	Prior      *Status
	ClearPrior bool
	Effects    Payload
	Noop       bool
}

// DecideArchive resolves the archive operation: valid from any non-terminal
// status, idempotent on already-archived entities, and records the prior
// status for later restoration.
func DecideArchive(def Definition, e Entity) (Decision, error) {
	if e.Status == StatusArchived {
		return Decision{Next: StatusArchived, Noop: true}, nil
	}
	if !Archivable(def, e.Status) {
		return Decision{}, &InvalidTransitionError{Kind: def.Kind, Op: OpArchive, Current: e.Status}
	}
	prior := e.Status
	return Decision{Next: StatusArchived, Prior: &prior}, nil
}

// DecideUnarchive resolves the unarchive operation. Only archived entities
// can be unarchived; the restore target follows the kind's policy. Unlike
// other operations this one is never an idempotent no-op: unarchiving an
// entity that is not archived is an InvalidTransitionError.
func DecideUnarchive(def Definition, e Entity) (Decision, error) {
	if e.Status != StatusArchived {
		return Decision{}, &InvalidTransitionError{Kind: def.Kind, Op: OpUnarchive, Current: e.Status}
	}

	target := def.Initial
	switch def.Unarchive {
	case RestoreActive:
		target = StatusActive
	case RestorePrior:
		if e.PriorStatus != nil {
			target = *e.PriorStatus
		}
	}
	return Decision{Next: target, ClearPrior: true}, nil
}

// TargetsCurrent reports whether the operation reaches the entity's current
// status from anywhere in the kind's table. This backs the idempotence
// policy: re-invoking such an operation is a no-op success rather than an
// InvalidTransitionError.
func TargetsCurrent(def Definition, op Operation, current Status) bool {
	for _, dst := range def.Targets(op) {
		if dst == current {
			return true
		}
	}
	return false
}
