package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
)

// ErrTransitionNotAllowed is returned when an action cannot fire from the
// transaction's current status.
var ErrTransitionNotAllowed = errors.New("domain: transition not allowed")

// NewTransactionFSM builds the pending -> approved|rejected|dropped machine
// starting at the given status. Every destination is terminal.
func NewTransactionFSM(current Status) *fsm.FSM {
	if current == "" {
		current = StatusPending
	}
	return fsm.NewFSM(
		string(current),
		fsm.Events{
			{Name: string(ActionApprove), Src: []string{string(StatusPending)}, Dst: string(StatusApproved)},
			{Name: string(ActionReject), Src: []string{string(StatusPending)}, Dst: string(StatusRejected)},
			{Name: string(ActionDrop), Src: []string{string(StatusPending)}, Dst: string(StatusDropped)},
		},
		fsm.Callbacks{},
	)
}

// CanApply reports whether action may fire against a transaction in status.
func CanApply(status Status, action Action) bool {
	return NewTransactionFSM(status).Can(string(action))
}

// Apply fires action from status and returns the resulting status.
func Apply(ctx context.Context, status Status, action Action) (Status, error) {
	machine := NewTransactionFSM(status)
	if !machine.Can(string(action)) {
		return status, fmt.Errorf("%w: %s from %s", ErrTransitionNotAllowed, action, status)
	}
	if err := machine.Event(ctx, string(action)); err != nil {
		return status, fmt.Errorf("domain: apply %s: %w", action, err)
	}
	return Status(machine.Current()), nil
}
