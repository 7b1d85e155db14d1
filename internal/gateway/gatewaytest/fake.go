// Package gatewaytest provides an in-memory gateway.Gateway that records
// every call, for executor and assistant tests.
package gatewaytest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"nlcal/internal/gateway"
	"nlcal/internal/model"
)

// Call is one recorded gateway invocation.
type Call struct {
	Op    string // "create", "list" or "delete"
	ID    string
	Event model.ResolvedEvent
	Query gateway.ListQuery
}

// Fake is an in-memory calendar. Set the *Err fields to make the matching
// operation fail; set Disconnected to simulate a missing credential.
type Fake struct {
	mu     sync.Mutex
	events []model.CalendarEvent
	calls  []Call
	nextID int

	Disconnected bool
	CreateErr    error
	ListErr      error
	DeleteErr    error
}

// NewFake returns a fake pre-populated with events.
func NewFake(events ...model.CalendarEvent) *Fake {
	return &Fake{events: append([]model.CalendarEvent(nil), events...)}
}

func (f *Fake) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Disconnected
}

func (f *Fake) Create(_ context.Context, ev model.ResolvedEvent) (model.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "create", Event: ev})
	if f.Disconnected {
		return model.CalendarEvent{}, gateway.ErrNotConnected
	}
	if f.CreateErr != nil {
		return model.CalendarEvent{}, f.CreateErr
	}
	f.nextID++
	created := model.CalendarEvent{
		ID:      fmt.Sprintf("fake-%d", f.nextID),
		Summary: ev.Summary,
		Start:   ev.Start.Instant,
		End:     ev.End.Instant,
	}
	f.events = append(f.events, created)
	return created, nil
}

func (f *Fake) List(_ context.Context, q gateway.ListQuery) ([]model.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "list", Query: q})
	if f.Disconnected {
		return nil, gateway.ErrNotConnected
	}
	if f.ListErr != nil {
		return nil, f.ListErr
	}

	out := make([]model.CalendarEvent, 0, len(f.events))
	for _, ev := range f.events {
		if ev.End.Before(q.TimeMin) || ev.Start.After(q.TimeMax) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	if q.MaxResults > 0 && len(out) > q.MaxResults {
		out = out[:q.MaxResults]
	}
	return out, nil
}

func (f *Fake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "delete", ID: id})
	if f.Disconnected {
		return gateway.ErrNotConnected
	}
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	for i, ev := range f.events {
		if ev.ID == id {
			f.events = append(f.events[:i], f.events[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("event %s not found", id)
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Ops returns the recorded operation names in order.
func (f *Fake) Ops() []string {
	calls := f.Calls()
	ops := make([]string, 0, len(calls))
	for _, c := range calls {
		ops = append(ops, c.Op)
	}
	return ops
}

// Mutations returns only create and delete operations, in order.
func (f *Fake) Mutations() []string {
	var out []string
	for _, op := range f.Ops() {
		if op != "list" {
			out = append(out, op)
		}
	}
	return out
}

// Events returns the current calendar contents.
func (f *Fake) Events() []model.CalendarEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.CalendarEvent(nil), f.events...)
}
