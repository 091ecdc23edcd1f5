package classentry

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// Transition event names, one per target status.
const (
	EventSchedule   = "schedule"
	EventCancel     = "cancel"
	EventReschedule = "reschedule"
)

var eventForStatus = map[string]string{
	StatusScheduled:   EventSchedule,
	StatusCanceled:    EventCancel,
	StatusRescheduled: EventReschedule,
}

// newStatusMachine builds the lifecycle machine positioned at current.
// Every state reaches every other state and none is terminal.
func newStatusMachine(current string) *fsm.FSM {
	return fsm.NewFSM(
		current,
		fsm.Events{
			{Name: EventSchedule, Src: Statuses, Dst: StatusScheduled},
			{Name: EventCancel, Src: Statuses, Dst: StatusCanceled},
			{Name: EventReschedule, Src: Statuses, Dst: StatusRescheduled},
		},
		fsm.Callbacks{},
	)
}

// Transition moves an entry status to target and returns the resulting state.
// An empty current status is read as scheduled. Re-applying the current state
// is allowed and returns it unchanged.
// PRE: target is one of Statuses
// POST: Returns target, or an ErrValidation error for an unknown status
func Transition(ctx context.Context, current, target string) (string, error) {
	event, ok := eventForStatus[target]
	if !ok {
		return "", Invalid(ErrInvalidStatus)
	}
	if current == "" {
		current = StatusScheduled
	}
	if !IsValidStatus(current) {
		return "", Invalid(ErrInvalidStatus)
	}

	machine := newStatusMachine(current)
	if err := machine.Event(ctx, event); err != nil {
		var same fsm.NoTransitionError
		if !errors.As(err, &same) {
			return "", err
		}
	}
	return machine.Current(), nil
}
