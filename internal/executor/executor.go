// Package executor carries out a parsed Command against the calendar.
//
// Each Execute call ends in exactly one Outcome. Gateway calls for a request
// are issued one after another; for a move the delete is observed before the
// create starts, and a failed create is not rolled back.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"nlcal/internal/gateway"
	"nlcal/internal/locator"
	appLog "nlcal/internal/log"
	"nlcal/internal/model"
	"nlcal/internal/timeres"
)

// State is the terminal state of one request.
type State string

const (
	StateDone         State = "done"
	StateNotFound     State = "not_found"
	StateFailed       State = "failed"
	StateUnrecognized State = "unrecognized"
)

// User-facing replies. Nothing outside this set (plus the formatted
// success/not-found lines below) is ever shown to the user.
const (
	MsgUnrecognized = "I don't understand the request."
	MsgMissingTime  = "I couldn't tell when that should happen. Please include a date or time."
	MsgAddFailed    = "I couldn't add the event. Please check that your calendar is connected."
	MsgNotConnected = "Your calendar is not connected. Please reconnect it and try again."
	MsgDeleteFailed = "Sorry, something went wrong while deleting the event."
	MsgMoveFailed   = "Sorry, something went wrong while moving the event."
	MsgMovePartial  = "Sorry, the original event was removed but the new one could not be created. Please add it again."

	fmtAdded    = `Added "%s" on %s.`
	fmtDeleted  = `Deleted "%s".`
	fmtMoved    = `Moved "%s" to %s.`
	fmtNotFound = `I couldn't find an event matching "%s".`
)

// displayLayout is how resolved instants appear in replies.
const displayLayout = "Mon, Jan 2 2006 at 15:04"

// Outcome is the result of executing one Command. Event is set only when an
// event was written.
type Outcome struct {
	State   State
	Message string
	Event   *model.ResolvedEvent
}

// Executor dispatches commands. It holds no per-request state.
type Executor struct {
	gw       gateway.Gateway
	locator  *locator.Locator
	resolver *timeres.Resolver
	now      func() time.Time
}

// New returns an Executor. now may be nil.
func New(gw gateway.Gateway, l *locator.Locator, r *timeres.Resolver, now func() time.Time) *Executor {
	if now == nil {
		now = time.Now
	}
	return &Executor{gw: gw, locator: l, resolver: r, now: now}
}

// Execute runs cmd to completion.
func (e *Executor) Execute(ctx context.Context, cmd model.Command) Outcome {
	switch model.ParseAction(string(cmd.Action)) {
	case model.ActionAdd:
		return e.add(ctx, cmd)
	case model.ActionDelete:
		return e.delete(ctx, cmd)
	case model.ActionMove:
		return e.move(ctx, cmd)
	default:
		// check, update, list and none are valid vocabulary but are not
		// executed as mutations.
		return Outcome{State: StateUnrecognized, Message: MsgUnrecognized}
	}
}

func (e *Executor) add(ctx context.Context, cmd model.Command) Outcome {
	ev, err := e.resolver.Resolve(cmd, e.now())
	if err != nil {
		appLog.Info("executor: add without usable time", "err", err, "start", cmd.Start, "date", cmd.Date)
		return Outcome{State: StateFailed, Message: MsgMissingTime}
	}

	if _, err := e.gw.Create(ctx, ev); err != nil {
		appLog.Error("executor: create failed", err, "action", cmd.Action, "summary", ev.Summary)
		return Outcome{State: StateFailed, Message: MsgAddFailed}
	}

	return Outcome{
		State:   StateDone,
		Message: fmt.Sprintf(fmtAdded, ev.Summary, displayTime(ev.Start)),
		Event:   &ev,
	}
}

func (e *Executor) delete(ctx context.Context, cmd model.Command) Outcome {
	query := targetOf(cmd)
	target, ok, err := e.locator.FindBestMatch(ctx, query)
	if err != nil {
		appLog.Error("executor: event search failed", err, "action", cmd.Action, "query", query)
		return failure(err, MsgDeleteFailed)
	}
	if !ok {
		return Outcome{State: StateNotFound, Message: fmt.Sprintf(fmtNotFound, query)}
	}

	if err := e.gw.Delete(ctx, target.ID); err != nil {
		appLog.Error("executor: delete failed", err, "id", target.ID, "summary", target.Summary)
		return failure(err, MsgDeleteFailed)
	}

	return Outcome{State: StateDone, Message: fmt.Sprintf(fmtDeleted, target.Summary)}
}

// move is delete followed by create. The new event is resolved before
// anything is deleted, so a command without a usable time never removes the
// original.
func (e *Executor) move(ctx context.Context, cmd model.Command) Outcome {
	query := targetOf(cmd)
	target, ok, err := e.locator.FindBestMatch(ctx, query)
	if err != nil {
		appLog.Error("executor: event search failed", err, "action", cmd.Action, "query", query)
		return failure(err, MsgMoveFailed)
	}
	if !ok {
		return Outcome{State: StateNotFound, Message: fmt.Sprintf(fmtNotFound, query)}
	}

	next := cmd
	if strings.TrimSpace(next.Title) == "" {
		next.Title = target.Summary
	}
	ev, err := e.resolver.Resolve(next, e.now())
	if err != nil {
		appLog.Info("executor: move without usable time", "err", err, "id", target.ID)
		return Outcome{State: StateFailed, Message: MsgMissingTime}
	}

	if err := e.gw.Delete(ctx, target.ID); err != nil {
		appLog.Error("executor: move delete failed", err, "id", target.ID, "summary", target.Summary)
		return failure(err, MsgMoveFailed)
	}

	if _, err := e.gw.Create(ctx, ev); err != nil {
		appLog.Error("executor: move create failed after delete; original is gone", err,
			"old_id", target.ID,
			"summary", ev.Summary,
			"start", ev.Start.Instant.Format(time.RFC3339),
			"end", ev.End.Instant.Format(time.RFC3339),
		)
		return Outcome{State: StateFailed, Message: MsgMovePartial}
	}

	return Outcome{
		State:   StateDone,
		Message: fmt.Sprintf(fmtMoved, ev.Summary, displayTime(ev.Start)),
		Event:   &ev,
	}
}

// targetOf returns the event reference of cmd, falling back to its title when
// the oracle put the name there instead.
func targetOf(cmd model.Command) string {
	if t := strings.TrimSpace(cmd.TargetEvent); t != "" {
		return t
	}
	return strings.TrimSpace(cmd.Title)
}

func failure(err error, generic string) Outcome {
	if errors.Is(err, gateway.ErrNotConnected) {
		return Outcome{State: StateFailed, Message: MsgNotConnected}
	}
	return Outcome{State: StateFailed, Message: generic}
}

func displayTime(t model.EventTime) string {
	return t.Instant.Format(displayLayout)
}
