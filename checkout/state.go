package checkout

import (
	"github.com/looplab/fsm"
)

type State string

const (
	StateIdle           State = "idle"
	StateAwaitingManual State = "awaiting_manual_confirmation"
	StatePolling        State = "polling"
	StateConfirmed      State = "confirmed"
	StateFailed         State = "failed"
)

// Terminal states end the session
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed
}

const (
	ModeAutomatic = "automatic"
	ModeManual    = "manual"
)

const (
	eventChargeCreated = "charge_created"
	eventFallback      = "fallback"
	eventFail          = "fail"
	eventApprove       = "approve"
	eventConfirmManual = "confirm_manual"
	eventExpire        = "expire"
	eventReset         = "reset"
)

func newStateMachine() *fsm.FSM {
	return fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: eventChargeCreated, Src: []string{string(StateIdle)}, Dst: string(StatePolling)},
			{Name: eventFallback, Src: []string{string(StateIdle)}, Dst: string(StateAwaitingManual)},
			{Name: eventFail, Src: []string{string(StateIdle)}, Dst: string(StateFailed)},
			{Name: eventApprove, Src: []string{string(StatePolling)}, Dst: string(StateConfirmed)},
			{Name: eventConfirmManual, Src: []string{string(StateAwaitingManual)}, Dst: string(StateConfirmed)},
			{Name: eventExpire, Src: []string{string(StatePolling)}, Dst: string(StateAwaitingManual)},
			{Name: eventReset, Src: []string{string(StatePolling), string(StateAwaitingManual)}, Dst: string(StateIdle)},
		},
		fsm.Callbacks{},
	)
}
