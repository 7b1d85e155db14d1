// Package gateway defines the calendar primitives the executor relies on and
// ships the Google Calendar implementation.
package gateway

import (
	"context"
	"errors"
	"time"

	"nlcal/internal/model"
)

// ErrNotConnected is returned by every call made without a usable credential.
var ErrNotConnected = errors.New("calendar not connected")

// ListQuery bounds a List call. Results are always chronological and
// recurring events are expanded into single instances.
type ListQuery struct {
	TimeMin    time.Time
	TimeMax    time.Time
	MaxResults int
}

// Gateway is a remote (or local) calendar.
type Gateway interface {
	Create(ctx context.Context, ev model.ResolvedEvent) (model.CalendarEvent, error)
	List(ctx context.Context, q ListQuery) ([]model.CalendarEvent, error)
	Delete(ctx context.Context, id string) error
	// Connected reports whether calls can currently be made.
	Connected() bool
}
