package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlcal/internal/model"
	"nlcal/internal/oracle"
)

func canned(answer string, seen *string) oracle.Oracle {
	return oracle.Func(func(_ context.Context, prompt string) (string, error) {
		if seen != nil {
			*seen = prompt
		}
		return answer, nil
	})
}

func TestParseFullCommand(t *testing.T) {
	var prompt string
	p := New(canned(`{
		"action": "move",
		"title": "Team Sync",
		"start": "2026-10-16T15:00:00",
		"end": "",
		"date": "2026-10-16",
		"details": "",
		"target_event": "team sync"
	}`, &prompt), "Asia/Seoul")

	cmd, err := p.Parse(context.Background(), "move team sync to 3pm tomorrow", "2026-10-15")
	require.NoError(t, err)

	assert.Equal(t, model.Command{
		Action:      model.ActionMove,
		Title:       "Team Sync",
		Start:       "2026-10-16T15:00:00",
		Date:        "2026-10-16",
		TargetEvent: "team sync",
	}, cmd)

	assert.Contains(t, prompt, "Today is 2026-10-15 (Thursday), timezone Asia/Seoul.")
	assert.Contains(t, prompt, "add, update, delete, check, list, move, none")
	assert.Contains(t, prompt, `"target_event"`)
	assert.Contains(t, prompt, "already passed today, use tomorrow's date")
	assert.Contains(t, prompt, "Request: move team sync to 3pm tomorrow")
}

func TestParseMissingFieldsAreEmpty(t *testing.T) {
	p := New(canned(`{"action":"add","date":"2026-10-20"}`, nil), "UTC")

	cmd, err := p.Parse(context.Background(), "something on the 20th", "2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, model.ActionAdd, cmd.Action)
	assert.Equal(t, "2026-10-20", cmd.Date)
	assert.Empty(t, cmd.Start)
	assert.Empty(t, cmd.TargetEvent)
}

func TestParseUnknownActionBecomesNone(t *testing.T) {
	p := New(canned(`{"action":"reschedule","title":"x"}`, nil), "UTC")

	cmd, err := p.Parse(context.Background(), "x", "2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, model.ActionNone, cmd.Action)
}

func TestParseRejectsMalformedOutput(t *testing.T) {
	for _, raw := range []string{
		"not json",
		`"not json"`,
		"",
		"null",
		`[{"action":"add"}]`,
		"Sure! Here is the JSON: {\"action\":\"add\"}",
		`{"action":"add",}`,
		`{"action":"add"} {"action":"delete"}`,
		`{"action":"add","title":42}`,
		"```json\n{\"action\":\"add\"}\n```",
	} {
		t.Run(raw, func(t *testing.T) {
			p := New(canned(raw, nil), "UTC")
			_, err := p.Parse(context.Background(), "x", "2026-10-15")
			assert.ErrorIs(t, err, ErrUnparseable)
		})
	}
}

func TestParsePropagatesOracleFailure(t *testing.T) {
	boom := errors.New("connection refused")
	p := New(oracle.Func(func(context.Context, string) (string, error) {
		return "", boom
	}), "UTC")

	_, err := p.Parse(context.Background(), "x", "2026-10-15")
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrUnparseable))
}

func TestDecodeToleratesSurroundingWhitespace(t *testing.T) {
	cmd, err := Decode("\n  {\"action\":\" Delete \",\"target_event\":\"Dentist\"}\n")
	require.NoError(t, err)
	assert.Equal(t, model.ActionDelete, cmd.Action)
	assert.Equal(t, "Dentist", cmd.TargetEvent)
}
