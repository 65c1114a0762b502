package httpx

import (
	"context"

	"github.com/looplab/fsm"
	"github.com/pkg/errors"
)

// Server lifecycle states.
const (
	stateIdle      = "idle"
	stateListening = "listening"
	stateServing   = "serving"
	stateClosed    = "closed"
)

// Server lifecycle events.
const (
	eventListen = "listen"
	eventServe  = "serve"
	eventClose  = "close"
)

func newLifecycle() *fsm.FSM {
	return fsm.NewFSM(
		stateIdle,
		fsm.Events{
			{Name: eventListen, Src: []string{stateIdle}, Dst: stateListening},
			{Name: eventServe, Src: []string{stateIdle, stateListening}, Dst: stateServing},
			{Name: eventClose, Src: []string{stateIdle, stateListening, stateServing}, Dst: stateClosed},
		},
		fsm.Callbacks{},
	)
}

// lifecycle returns the server's state machine. s.mu must be held.
func (s *Server) lifecycle() *fsm.FSM {
	if s.fsm == nil {
		s.fsm = newLifecycle()
	}
	return s.fsm
}

// is reports whether the server is in state. s.mu must be held.
func (s *Server) is(state string) bool {
	return s.lifecycle().Is(state)
}

// can reports whether event is allowed now, or the error firing it would
// return. s.mu must be held.
func (s *Server) can(event string) error {
	m := s.lifecycle()
	if m.Can(event) {
		return nil
	}
	return stateError(m.Current())
}

// transition fires event. s.mu must be held.
func (s *Server) transition(event string) error {
	err := s.lifecycle().Event(context.Background(), event)
	var inv fsm.InvalidEventError
	if errors.As(err, &inv) {
		return stateError(inv.State)
	}
	return err
}

// stateError is the error for an event refused in state.
func stateError(state string) error {
	if state == stateClosed {
		return ErrServerClosed
	}
	return ErrServerStarted
}
