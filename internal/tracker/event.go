// Package tracker reconciles browser tab events into per-day aggregates.
//
// A Reconciler owns the identity cache, the single-slot aggregate cache and
// the debounced persistence scheduler. Events are applied one at a time on
// the reconciler's loop in the order they are dispatched.
package tracker

import (
	"context"
	"fmt"
)

// TabID identifies a browser tab for the lifetime of the browser session.
type TabID int64

// EventKind is the type of a tab lifecycle event.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventRemoved   EventKind = "removed"
	EventActivated EventKind = "activated"
)

// ParseEventKind validates an event type name.
func ParseEventKind(s string) (EventKind, error) {
	switch k := EventKind(s); k {
	case EventCreated, EventRemoved, EventActivated:
		return k, nil
	}
	return "", fmt.Errorf("unknown event type %q", s)
}

// Event is a single platform notification.
type Event struct {
	Kind  EventKind
	TabID TabID
}

// StartupReason tells Start why the process is (re)starting.
type StartupReason string

const (
	// ReasonInstall is a first run: events are accepted immediately.
	ReasonInstall StartupReason = "install"
	// ReasonStartup is a browser or session restart: events are accepted
	// after the grace period so session-restore bursts are not counted.
	ReasonStartup StartupReason = "startup"
)

// ParseStartupReason validates a startup reason name.
func ParseStartupReason(s string) (StartupReason, error) {
	switch r := StartupReason(s); r {
	case ReasonInstall, ReasonStartup:
		return r, nil
	}
	return "", fmt.Errorf("unknown startup reason %q", s)
}

// TabSource answers "which tabs are open right now".
type TabSource interface {
	QueryAllTabs(ctx context.Context) ([]TabID, error)
}

// Surface receives the rendered summary.
type Surface interface {
	SetBadgeText(text string)
	SetTooltip(text string)
}
