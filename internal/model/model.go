package model

import (
	"strings"
	"time"
)

// Action is the scheduling verb extracted from an utterance.
type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionCheck  Action = "check"
	ActionList   Action = "list"
	ActionMove   Action = "move"
	ActionNone   Action = "none"
)

// Actions lists the accepted vocabulary in the order it is presented to the
// oracle.
var Actions = []Action{ActionAdd, ActionUpdate, ActionDelete, ActionCheck, ActionList, ActionMove, ActionNone}

// ParseAction maps free text onto the vocabulary. Anything outside of it is
// ActionNone.
func ParseAction(s string) Action {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Actions {
		if a == known {
			return a
		}
	}
	return ActionNone
}

// Command is the structured intent derived from a single utterance.
// Empty strings mean "unknown"; the struct is not mutated after parsing.
type Command struct {
	Action      Action `json:"action"`
	Title       string `json:"title"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Date        string `json:"date"`
	Details     string `json:"details"`
	TargetEvent string `json:"target_event"`
}

// EventTime is an instant paired with the IANA zone it was resolved in.
// Instant always carries an explicit offset when serialized (RFC 3339).
type EventTime struct {
	Instant  time.Time `json:"instant"`
	TimeZone string    `json:"timeZone"`
}

// ResolvedEvent is a fully-qualified event ready to be written to a calendar.
// Start is always strictly before End.
type ResolvedEvent struct {
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Start       EventTime `json:"start"`
	End         EventTime `json:"end"`
}

// CalendarEvent is an event as read back from a calendar backend.
type CalendarEvent struct {
	// ID is opaque and stable for the lifetime of the remote event.
	ID      string    `json:"id"`
	Summary string    `json:"summary"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// Occurrence represents a single concrete instance of an event
// (after recurrence expansion and timezone normalization).
type Occurrence struct {
	// UID is the iCalendar UID of the series the occurrence belongs to.
	UID string

	// InstanceKey uniquely identifies a single occurrence of a recurring
	// event, typically derived from the local start time.
	InstanceKey string

	Summary     string
	Description string
	Location    string

	AllDay bool

	// Start / End are in the configured display timezone.
	Start time.Time
	End   time.Time
}

// CalendarEvent converts an occurrence into the backend-neutral view. The
// series UID is used as ID, so deleting any occurrence removes the series.
func (o Occurrence) CalendarEvent() CalendarEvent {
	return CalendarEvent{
		ID:      o.UID,
		Summary: o.Summary,
		Start:   o.Start,
		End:     o.End,
	}
}
