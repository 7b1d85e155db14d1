// Package intent turns a user utterance into a model.Command by asking the
// oracle to fill a fixed JSON schema.
package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	appLog "nlcal/internal/log"
	"nlcal/internal/model"
	"nlcal/internal/oracle"
)

// ErrUnparseable means the oracle answered with something that is not a
// single JSON object of the expected shape. It is fatal for the request.
var ErrUnparseable = errors.New("oracle response is not a command object")

const promptTemplate = `You convert calendar requests into JSON.

Today is {{.Today}} ({{.Weekday}}), timezone {{.TimeZone}}.

Reply with exactly one JSON object and nothing else: no prose, no code fences,
no trailing commas. The object must contain all of these string fields:

  "action":       one of {{.Actions}}
  "title":        the event title
  "start":        start as YYYY-MM-DDTHH:MM:SS
  "end":          end as YYYY-MM-DDTHH:MM:SS
  "date":         the day as YYYY-MM-DD
  "details":      any extra notes
  "target_event": title of an existing event the request refers to

Use "" for every field you do not know. Never omit a field.
Always write fully dated ISO values; resolve words like "tomorrow" or
"next friday" against today's date. If only a time of day is given and that
time has already passed today, use tomorrow's date, otherwise use today's date.
Use "move" when an existing event should happen at a different time and
"delete" when it should be removed; put its title in "target_event".

Request: {{.Utterance}}
`

var prompt = template.Must(template.New("intent").Parse(promptTemplate))

// Parser builds the prompt and decodes the oracle's answer.
type Parser struct {
	oracle   oracle.Oracle
	timeZone string
}

// New returns a Parser. timeZone is only used as prompt context.
func New(o oracle.Oracle, timeZone string) *Parser {
	return &Parser{oracle: o, timeZone: timeZone}
}

// Prompt renders the instruction text for utterance.
func (p *Parser) Prompt(utterance, todayISO string) (string, error) {
	weekday := ""
	if d, err := time.Parse("2006-01-02", todayISO); err == nil {
		weekday = d.Weekday().String()
	}

	actions := make([]string, 0, len(model.Actions))
	for _, a := range model.Actions {
		actions = append(actions, string(a))
	}

	var b strings.Builder
	err := prompt.Execute(&b, struct {
		Today     string
		Weekday   string
		TimeZone  string
		Actions   string
		Utterance string
	}{
		Today:     todayISO,
		Weekday:   weekday,
		TimeZone:  p.timeZone,
		Actions:   strings.Join(actions, ", "),
		Utterance: strings.TrimSpace(utterance),
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return b.String(), nil
}

// Parse asks the oracle to interpret utterance. Oracle transport errors are
// returned as-is; a malformed answer yields ErrUnparseable. The command is
// not validated beyond the action vocabulary.
func (p *Parser) Parse(ctx context.Context, utterance, todayISO string) (model.Command, error) {
	text, err := p.Prompt(utterance, todayISO)
	if err != nil {
		return model.Command{}, err
	}

	raw, err := p.oracle.Complete(ctx, text)
	if err != nil {
		return model.Command{}, fmt.Errorf("oracle complete: %w", err)
	}

	cmd, err := Decode(raw)
	if err != nil {
		appLog.Error("intent: oracle output rejected", err, "raw", raw)
		return model.Command{}, err
	}

	appLog.Debug("intent: parsed command",
		"action", cmd.Action,
		"title", cmd.Title,
		"start", cmd.Start,
		"end", cmd.End,
		"date", cmd.Date,
		"target_event", cmd.TargetEvent,
	)
	return cmd, nil
}

// wireCommand mirrors model.Command but keeps action as free text so unknown
// verbs can be mapped to "none" instead of failing.
type wireCommand struct {
	Action      string `json:"action"`
	Title       string `json:"title"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Date        string `json:"date"`
	Details     string `json:"details"`
	TargetEvent string `json:"target_event"`
}

// Decode parses the oracle's answer, which must be exactly one JSON object.
func Decode(raw string) (model.Command, error) {
	body := bytes.TrimSpace([]byte(raw))
	if len(body) == 0 || body[0] != '{' {
		return model.Command{}, ErrUnparseable
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	var w wireCommand
	if err := dec.Decode(&w); err != nil {
		return model.Command{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return model.Command{}, fmt.Errorf("%w: trailing data after object", ErrUnparseable)
	}

	return model.Command{
		Action:      model.ParseAction(w.Action),
		Title:       w.Title,
		Start:       w.Start,
		End:         w.End,
		Date:        w.Date,
		Details:     w.Details,
		TargetEvent: w.TargetEvent,
	}, nil
}
