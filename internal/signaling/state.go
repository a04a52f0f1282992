/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package signaling

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

// Signaling states.
const (
	StateStable    = "stable"
	StateHaveOffer = "have-offer"
	StateClosed    = "closed"
)

// Signaling events, the offer and answer events match the message types.
const (
	EventOffer  = TypeOffer
	EventAnswer = TypeAnswer
	EventClose  = "close"
)

// State tracks the offer/answer exchange of a signaling session. An answer
// is only valid while an offer is outstanding and only one offer can be
// outstanding at a time.
type State struct {
	machine *fsm.FSM
}

// NewState creates a State in StateStable. The optional onChange callback is
// called after every transition.
func NewState(onChange func(from, to string)) *State {
	callbacks := fsm.Callbacks{}
	if onChange != nil {
		callbacks["after_event"] = func(ctx context.Context, e *fsm.Event) {
			onChange(e.Src, e.Dst)
		}
	}

	return &State{
		machine: fsm.NewFSM(
			StateStable,
			fsm.Events{
				{Name: EventOffer, Src: []string{StateStable}, Dst: StateHaveOffer},
				{Name: EventAnswer, Src: []string{StateHaveOffer}, Dst: StateStable},
				{Name: EventClose, Src: []string{StateStable, StateHaveOffer}, Dst: StateClosed},
			},
			callbacks,
		),
	}
}

// Current returns the current state.
func (s *State) Current() string {
	return s.machine.Current()
}

// Can returns true if event is allowed in the current state.
func (s *State) Can(event string) bool {
	return s.machine.Can(event)
}

// Fire triggers event. An event which is not allowed in the current state
// returns an error and leaves the state unchanged.
func (s *State) Fire(ctx context.Context, event string) error {
	from := s.machine.Current()
	if err := s.machine.Event(ctx, event); err != nil {
		return fmt.Errorf("signaling %s not allowed in state %s: %w", event, from, err)
	}
	return nil
}

// Close moves the state to StateClosed. Closing twice is a no-op.
func (s *State) Close(ctx context.Context) {
	if s.machine.Can(EventClose) {
		_ = s.machine.Event(ctx, EventClose)
	}
}
