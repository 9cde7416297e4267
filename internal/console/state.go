// Package console holds the operator side of the admin inbox: a session
// around the bearer token, a transition table for the view lifecycle, the
// loaded page with its selection, and the read-only export of selected rows.
package console

import (
	"errors"
)

var ErrInvalidTransition = errors.New("invalid console transition")

type Phase int

const (
	PhaseUnauthenticated Phase = iota
	PhaseAuthenticated
	PhaseLoading
	PhaseLoaded
	PhaseActionBusy
)

func (p Phase) String() string {
	switch p {
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseLoading:
		return "loading"
	case PhaseLoaded:
		return "loaded"
	case PhaseActionBusy:
		return "action_busy"
	}
	return "unknown"
}

// ReasonUnauthorized is set when the server refused the stored token.
const ReasonUnauthorized = "unauthorized"

type State struct {
	Phase  Phase
	Reason string
}

type EventType int

const (
	EventTokenEntered EventType = iota
	EventLoad
	EventLoadSucceeded
	EventLoadFailed
	EventActionStarted
	EventActionSucceeded
	EventActionFailed
	EventUnauthorized
	EventSignOut
)

type Event struct {
	Type  EventType
	Token string
}

// Reduce applies e to s. Transitions not in the table return s unchanged
// together with ErrInvalidTransition.
func Reduce(s State, e Event) (State, error) {
	switch e.Type {
	case EventTokenEntered:
		if s.Phase == PhaseUnauthenticated && ValidToken(e.Token) {
			return State{Phase: PhaseAuthenticated}, nil
		}
	case EventLoad:
		if s.Phase == PhaseAuthenticated || s.Phase == PhaseLoaded {
			return State{Phase: PhaseLoading}, nil
		}
	case EventLoadSucceeded:
		if s.Phase == PhaseLoading {
			return State{Phase: PhaseLoaded}, nil
		}
	case EventLoadFailed:
		if s.Phase == PhaseLoading {
			return State{Phase: PhaseAuthenticated}, nil
		}
	case EventActionStarted:
		if s.Phase == PhaseLoaded {
			return State{Phase: PhaseActionBusy}, nil
		}
	case EventActionSucceeded, EventActionFailed:
		if s.Phase == PhaseActionBusy {
			return State{Phase: PhaseLoaded}, nil
		}
	case EventUnauthorized:
		if s.Phase == PhaseLoading || s.Phase == PhaseActionBusy {
			return State{Phase: PhaseUnauthenticated, Reason: ReasonUnauthorized}, nil
		}
	case EventSignOut:
		if s.Phase != PhaseUnauthenticated {
			return State{Phase: PhaseUnauthenticated}, nil
		}
	}
	return s, ErrInvalidTransition
}
