package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const goodToken = "0123456789abcdef"

func TestReduce(t *testing.T) {
	st := func(p Phase) State { return State{Phase: p} }

	tests := []struct {
		name string
		from State
		ev   Event
		want State
		err  error
	}{
		{"token entered", st(PhaseUnauthenticated), Event{Type: EventTokenEntered, Token: goodToken}, st(PhaseAuthenticated), nil},
		{"short token", st(PhaseUnauthenticated), Event{Type: EventTokenEntered, Token: " short "}, st(PhaseUnauthenticated), ErrInvalidTransition},
		{"token clears reason", State{Phase: PhaseUnauthenticated, Reason: ReasonUnauthorized}, Event{Type: EventTokenEntered, Token: goodToken}, st(PhaseAuthenticated), nil},
		{"load from authenticated", st(PhaseAuthenticated), Event{Type: EventLoad}, st(PhaseLoading), nil},
		{"reload from loaded", st(PhaseLoaded), Event{Type: EventLoad}, st(PhaseLoading), nil},
		{"load while loading", st(PhaseLoading), Event{Type: EventLoad}, st(PhaseLoading), ErrInvalidTransition},
		{"load succeeded", st(PhaseLoading), Event{Type: EventLoadSucceeded}, st(PhaseLoaded), nil},
		{"load failed", st(PhaseLoading), Event{Type: EventLoadFailed}, st(PhaseAuthenticated), nil},
		{"401 while loading", st(PhaseLoading), Event{Type: EventUnauthorized}, State{Phase: PhaseUnauthenticated, Reason: ReasonUnauthorized}, nil},
		{"action from loaded", st(PhaseLoaded), Event{Type: EventActionStarted}, st(PhaseActionBusy), nil},
		{"action while busy", st(PhaseActionBusy), Event{Type: EventActionStarted}, st(PhaseActionBusy), ErrInvalidTransition},
		{"action before load", st(PhaseAuthenticated), Event{Type: EventActionStarted}, st(PhaseAuthenticated), ErrInvalidTransition},
		{"action succeeded", st(PhaseActionBusy), Event{Type: EventActionSucceeded}, st(PhaseLoaded), nil},
		{"action failed", st(PhaseActionBusy), Event{Type: EventActionFailed}, st(PhaseLoaded), nil},
		{"401 while busy", st(PhaseActionBusy), Event{Type: EventUnauthorized}, State{Phase: PhaseUnauthenticated, Reason: ReasonUnauthorized}, nil},
		{"401 while loaded", st(PhaseLoaded), Event{Type: EventUnauthorized}, st(PhaseLoaded), ErrInvalidTransition},
		{"sign out", st(PhaseLoaded), Event{Type: EventSignOut}, st(PhaseUnauthenticated), nil},
		{"sign out when signed out", st(PhaseUnauthenticated), Event{Type: EventSignOut}, st(PhaseUnauthenticated), ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Reduce(tt.from, tt.ev)
			assert.Equal(t, tt.want, got)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "action_busy", PhaseActionBusy.String())
	assert.Equal(t, "unknown", Phase(42).String())
}
