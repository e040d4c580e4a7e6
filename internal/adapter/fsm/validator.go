package fsm

import (
	"context"
	"errors"
	"fmt"

	loopfsm "github.com/looplab/fsm"

	"github.com/neomorfeo/commerceiq/internal/domain"
)

// Compile-time check: Validator implements domain.TransitionValidator.
var _ domain.TransitionValidator = (*Validator)(nil)

// kindEvents holds the looplab/fsm event descriptors for every entity kind,
// converted once from the domain transition tables.
var kindEvents = buildKindEvents()

// buildKindEvents converts each kind's domain transitions into looplab/fsm
// EventDesc format. Transitions with the same operation+destination are
// consolidated into a single EventDesc with multiple source states (e.g.
// activate from "approved" and "suspended" both go to "active").
func buildKindEvents() map[domain.Kind][]loopfsm.EventDesc {
	out := make(map[domain.Kind][]loopfsm.EventDesc, len(domain.Kinds))

	for kind, def := range domain.Kinds {
		type key struct {
			op  string
			dst string
		}
		grouped := make(map[key][]string)
		order := make([]key, 0)

		for _, t := range def.Transitions {
			k := key{op: string(t.Op), dst: string(t.Dst)}
			if _, exists := grouped[k]; !exists {
				order = append(order, k)
			}
			grouped[k] = append(grouped[k], string(t.Src))
		}

		events := make([]loopfsm.EventDesc, 0, len(order))
		for _, k := range order {
			events = append(events, loopfsm.EventDesc{
				Name: k.op,
				Src:  grouped[k],
				Dst:  k.dst,
			})
		}
		out[kind] = events
	}
	return out
}

// Validator implements domain.TransitionValidator using looplab/fsm. It
// creates a short-lived FSM instance per Apply call, initialized with the
// entity's current status. This is necessary because looplab/fsm is
// stateful (it tracks the current state internally).
//
// The archive and unarchive operations are not represented here: their
// destinations depend on runtime state (the recorded prior status), which a
// static machine cannot express. They are resolved by domain.DecideArchive
// and domain.DecideUnarchive instead.
type Validator struct{}

// New creates a new FSM-backed transition validator.
func New() *Validator {
	return &Validator{}
}

// Apply checks whether the operation is valid from the current status in
// the kind's table and returns the destination status. Self-edges such as
// renew (active → active) are valid and return the unchanged status.
// Returns a domain.InvalidTransitionError when no edge exists.
func (v *Validator) Apply(ctx context.Context, kind domain.Kind, current domain.Status, op domain.Operation) (domain.Status, error) {
	events, ok := kindEvents[kind]
	if !ok {
		return "", fmt.Errorf("no transition table for kind %q", kind)
	}

	machine := loopfsm.NewFSM(string(current), events, nil)

	if err := machine.Event(ctx, string(op)); err != nil {
		// InvalidEventError: the operation exists in the table but has no
		// edge from the current status. UnknownEventError: the operation
		// does not appear in this kind's table at all. Both are the same
		// condition to callers.
		var invalidEvent loopfsm.InvalidEventError
		var unknownEvent loopfsm.UnknownEventError
		if errors.As(err, &invalidEvent) || errors.As(err, &unknownEvent) {
			return "", &domain.InvalidTransitionError{Kind: kind, Op: op, Current: current}
		}
		// looplab reports declared self-edges (src == dst) as
		// NoTransitionError; for this table shape that is a success.
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &noTransition) {
			return domain.Status(machine.Current()), nil
		}
		return "", err
	}

	return domain.Status(machine.Current()), nil
}
