package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/BTreeMap/ScreenPipe/internal/models"
)

// Conversation modes layered on top of the step pointer.
const (
	ModeActive                = "active"
	ModeBlockedUnacknowledged = "blocked_unacknowledged"
	ModeBlockedAcknowledged   = "blocked_acknowledged"
)

// Mode events.
const (
	EventDecline     = "decline"
	EventDisqualify  = "disqualify"
	EventAcknowledge = "acknowledge"
)

var modeEvents = fsm.Events{
	{Name: EventDecline, Src: []string{ModeActive, ModeBlockedUnacknowledged, ModeBlockedAcknowledged}, Dst: ModeBlockedAcknowledged},
	{Name: EventDisqualify, Src: []string{ModeActive, ModeBlockedUnacknowledged, ModeBlockedAcknowledged}, Dst: ModeBlockedUnacknowledged},
	{Name: EventAcknowledge, Src: []string{ModeBlockedUnacknowledged}, Dst: ModeBlockedAcknowledged},
}

// ModeOf derives the mode from the stored flags.
func ModeOf(f models.Flags) string {
	switch {
	case !f.Blocked:
		return ModeActive
	case f.Acknowledged:
		return ModeBlockedAcknowledged
	default:
		return ModeBlockedUnacknowledged
	}
}

// applyMode fires event on a machine seeded from flags and writes the
// resulting mode back. Firing an event that leaves the mode unchanged is not an error.
func applyMode(ctx context.Context, flags *models.Flags, event string) error {
	m := fsm.NewFSM(ModeOf(*flags), modeEvents, fsm.Callbacks{})
	if err := m.Event(ctx, event); err != nil {
		var same fsm.NoTransitionError
		if !errors.As(err, &same) {
			return fmt.Errorf("mode %s: %w", event, err)
		}
	}
	switch m.Current() {
	case ModeActive:
		flags.Blocked, flags.Acknowledged = false, false
	case ModeBlockedUnacknowledged:
		flags.Blocked, flags.Acknowledged = true, false
	case ModeBlockedAcknowledged:
		flags.Blocked, flags.Acknowledged = true, true
	}
	return nil
}
