// Package assistant is the entry point exposed to transports: one utterance
// in, one plain-text reply out.
package assistant

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"nlcal/internal/executor"
	"nlcal/internal/gateway"
	"nlcal/internal/intent"
	"nlcal/internal/locator"
	appLog "nlcal/internal/log"
	"nlcal/internal/metrics"
	"nlcal/internal/model"
	"nlcal/internal/oracle"
	"nlcal/internal/timeres"
)

const (
	MsgUnparseable = "I couldn't understand that request. Please rephrase."
	MsgUnavailable = "Sorry, I can't process requests right now. Please try again later."
)

// Response is what Handle returns. Reply is always safe to show verbatim.
type Response struct {
	Reply   string               `json:"reply"`
	Command model.Command        `json:"command"`
	Event   *model.ResolvedEvent `json:"event"`
}

// Options wires an Assistant.
type Options struct {
	Oracle   oracle.Oracle
	Gateway  gateway.Gateway
	Resolver *timeres.Resolver
	Window   locator.Window
	Metrics  *metrics.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

// Assistant handles utterances one at a time per call; concurrent calls
// share only the gateway.
type Assistant struct {
	parser   *intent.Parser
	exec     *executor.Executor
	gw       gateway.Gateway
	resolver *timeres.Resolver
	metrics  *metrics.Metrics
	now      func() time.Time
}

func New(opts Options) *Assistant {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	loc := locator.New(opts.Gateway, opts.Window, now)
	return &Assistant{
		parser:   intent.New(opts.Oracle, opts.Resolver.Location().String()),
		exec:     executor.New(opts.Gateway, loc, opts.Resolver, now),
		gw:       opts.Gateway,
		resolver: opts.Resolver,
		metrics:  opts.Metrics,
		now:      now,
	}
}

// IsConnected reports whether the calendar currently has a usable credential.
func (a *Assistant) IsConnected() bool {
	return a.gw.Connected()
}

// Handle parses utterance and executes the resulting command. It never
// returns an error: every failure is mapped to a fixed reply and logged.
func (a *Assistant) Handle(ctx context.Context, utterance string) Response {
	reqID := uuid.NewString()
	none := model.Command{Action: model.ActionNone}

	if strings.TrimSpace(utterance) == "" {
		a.metrics.Outcome(string(model.ActionNone), string(executor.StateUnrecognized))
		return Response{Reply: executor.MsgUnrecognized, Command: none}
	}

	today := a.resolver.Today(a.now())
	cmd, err := a.parser.Parse(ctx, utterance, today)
	if err != nil {
		if errors.Is(err, intent.ErrUnparseable) {
			appLog.Error("assistant: unparseable oracle output", err, "request_id", reqID)
			a.metrics.ParseFailure("format")
			return Response{Reply: MsgUnparseable, Command: none}
		}
		appLog.Error("assistant: oracle call failed", err, "request_id", reqID)
		a.metrics.ParseFailure("oracle")
		return Response{Reply: MsgUnavailable, Command: none}
	}

	out := a.exec.Execute(ctx, cmd)
	a.metrics.Outcome(string(cmd.Action), string(out.State))
	appLog.Info("assistant: request handled",
		"request_id", reqID,
		"action", cmd.Action,
		"state", out.State,
		"today", today,
	)
	return Response{Reply: out.Message, Command: cmd, Event: out.Event}
}
