// Package locator finds the calendar event a free-text title refers to.
package locator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nlcal/internal/gateway"
	appLog "nlcal/internal/log"
	"nlcal/internal/model"
)

// Window bounds the search around "now". Old events with the same title must
// not be matched, so the window is deliberately short.
type Window struct {
	Past       time.Duration
	Future     time.Duration
	MaxResults int
}

// DefaultWindow is seven days back, fourteen days ahead, at most 50 events.
var DefaultWindow = Window{
	Past:       7 * 24 * time.Hour,
	Future:     14 * 24 * time.Hour,
	MaxResults: 50,
}

// Locator matches titles against one calendar.
type Locator struct {
	gw     gateway.Gateway
	window Window
	now    func() time.Time
}

// New returns a Locator. Zero fields of w take their DefaultWindow value; now
// may be nil.
func New(gw gateway.Gateway, w Window, now func() time.Time) *Locator {
	if w.Past <= 0 {
		w.Past = DefaultWindow.Past
	}
	if w.Future <= 0 {
		w.Future = DefaultWindow.Future
	}
	if w.MaxResults <= 0 {
		w.MaxResults = DefaultWindow.MaxResults
	}
	if now == nil {
		now = time.Now
	}
	return &Locator{gw: gw, window: w, now: now}
}

// FindBestMatch returns the event best matching title inside the window.
// Exact (case-insensitive, trimmed) matches beat substring matches; within a
// tier the earliest event wins. An empty title never matches. Gateway errors
// are returned unchanged apart from wrapping.
func (l *Locator) FindBestMatch(ctx context.Context, title string) (model.CalendarEvent, bool, error) {
	query := normalize(title)
	if query == "" {
		return model.CalendarEvent{}, false, nil
	}

	now := l.now()
	events, err := l.gw.List(ctx, gateway.ListQuery{
		TimeMin:    now.Add(-l.window.Past),
		TimeMax:    now.Add(l.window.Future),
		MaxResults: l.window.MaxResults,
	})
	if err != nil {
		return model.CalendarEvent{}, false, fmt.Errorf("list events: %w", err)
	}

	ev, ok := Match(query, events)
	appLog.Debug("locator: search finished", "query", query, "candidates", len(events), "matched", ok, "id", ev.ID)
	return ev, ok, nil
}

// Match applies the tiered policy to events, which must already be in
// chronological order.
func Match(title string, events []model.CalendarEvent) (model.CalendarEvent, bool) {
	query := normalize(title)
	if query == "" {
		return model.CalendarEvent{}, false
	}

	for _, ev := range events {
		if normalize(ev.Summary) == query {
			return ev, true
		}
	}
	for _, ev := range events {
		if strings.Contains(normalize(ev.Summary), query) {
			return ev, true
		}
	}
	return model.CalendarEvent{}, false
}

// normalize trims and lower-cases s. Inner whitespace is significant.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
