package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlcal/internal/gateway"
	"nlcal/internal/gateway/gatewaytest"
	"nlcal/internal/locator"
	"nlcal/internal/model"
	"nlcal/internal/timeres"
)

var (
	kst = time.FixedZone("KST", 9*3600)
	now = time.Date(2026, 10, 15, 10, 0, 0, 0, kst)
)

func newExecutor(t *testing.T, fake *gatewaytest.Fake) *Executor {
	t.Helper()
	r, err := timeres.New(kst, "")
	require.NoError(t, err)
	clock := func() time.Time { return now }
	return New(fake, locator.New(fake, locator.Window{}, clock), r, clock)
}

func teamSync() model.CalendarEvent {
	start := time.Date(2026, 10, 16, 10, 0, 0, 0, kst)
	return model.CalendarEvent{ID: "sync-1", Summary: "Team Sync", Start: start, End: start.Add(30 * time.Minute)}
}

func TestAddWithDateOnly(t *testing.T) {
	fake := gatewaytest.NewFake()
	out := newExecutor(t, fake).Execute(context.Background(), model.Command{
		Action: model.ActionAdd,
		Title:  "Dentist",
		Date:   "2026-10-20",
	})

	require.Equal(t, StateDone, out.State)
	assert.Equal(t, `Added "Dentist" on Tue, Oct 20 2026 at 09:00.`, out.Message)
	require.NotNil(t, out.Event)
	assert.Equal(t, "2026-10-20T09:00:00+09:00", out.Event.Start.Instant.Format(time.RFC3339))
	assert.Equal(t, "2026-10-20T10:00:00+09:00", out.Event.End.Instant.Format(time.RFC3339))
	assert.Equal(t, []string{"create"}, fake.Ops())
}

func TestAddMissingTimeMakesNoCalls(t *testing.T) {
	fake := gatewaytest.NewFake()
	out := newExecutor(t, fake).Execute(context.Background(), model.Command{Action: model.ActionAdd, Title: "Lunch"})

	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, MsgMissingTime, out.Message)
	assert.Empty(t, fake.Calls())
}

func TestAddFailureHidesError(t *testing.T) {
	for name, setup := range map[string]func(*gatewaytest.Fake){
		"not connected": func(f *gatewaytest.Fake) { f.Disconnected = true },
		"remote error":  func(f *gatewaytest.Fake) { f.CreateErr = errors.New("googleapi: Error 403: rateLimitExceeded") },
	} {
		t.Run(name, func(t *testing.T) {
			fake := gatewaytest.NewFake()
			setup(fake)
			out := newExecutor(t, fake).Execute(context.Background(), model.Command{
				Action: model.ActionAdd, Title: "Dentist", Start: "2026-10-20T14:00",
			})
			assert.Equal(t, StateFailed, out.State)
			assert.Equal(t, MsgAddFailed, out.Message)
			assert.Nil(t, out.Event)
		})
	}
}

func TestDelete(t *testing.T) {
	fake := gatewaytest.NewFake(teamSync())
	out := newExecutor(t, fake).Execute(context.Background(), model.Command{
		Action:      model.ActionDelete,
		TargetEvent: "team sync",
	})

	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, `Deleted "Team Sync".`, out.Message)
	assert.Equal(t, []string{"list", "delete"}, fake.Ops())
	assert.Equal(t, "sync-1", fake.Calls()[1].ID)
	assert.Empty(t, fake.Events())
}

func TestDeleteNotFound(t *testing.T) {
	fake := gatewaytest.NewFake(teamSync())
	out := newExecutor(t, fake).Execute(context.Background(), model.Command{
		Action:      model.ActionDelete,
		TargetEvent: "board meeting",
	})

	assert.Equal(t, StateNotFound, out.State)
	assert.Equal(t, `I couldn't find an event matching "board meeting".`, out.Message)
	assert.Empty(t, fake.Mutations())
}

func TestDeleteFailures(t *testing.T) {
	fake := gatewaytest.NewFake(teamSync())
	fake.DeleteErr = errors.New("backend exploded: secret detail")
	out := newExecutor(t, fake).Execute(context.Background(), model.Command{Action: model.ActionDelete, TargetEvent: "Team Sync"})
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, MsgDeleteFailed, out.Message)
	assert.NotContains(t, out.Message, "secret")

	disconnected := gatewaytest.NewFake(teamSync())
	disconnected.Disconnected = true
	out = newExecutor(t, disconnected).Execute(context.Background(), model.Command{Action: model.ActionDelete, TargetEvent: "Team Sync"})
	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, MsgNotConnected, out.Message)
}

func TestMoveDeletesThenCreates(t *testing.T) {
	fake := gatewaytest.NewFake(teamSync())
	out := newExecutor(t, fake).Execute(context.Background(), model.Command{
		Action:      model.ActionMove,
		TargetEvent: "Team Sync",
		Start:       "2026-10-16T15:00:00",
	})

	require.Equal(t, StateDone, out.State)
	assert.Equal(t, `Moved "Team Sync" to Fri, Oct 16 2026 at 15:00.`, out.Message)
	assert.Equal(t, []string{"list", "delete", "create"}, fake.Ops())

	calls := fake.Calls()
	assert.Equal(t, "sync-1", calls[1].ID)
	assert.Equal(t, "Team Sync", calls[2].Event.Summary)
	assert.Equal(t, time.Hour, calls[2].Event.End.Instant.Sub(calls[2].Event.Start.Instant))

	events := fake.Events()
	require.Len(t, events, 1)
	assert.NotEqual(t, "sync-1", events[0].ID)
}

func TestMoveNotFoundMakesNoMutations(t *testing.T) {
	fake := gatewaytest.NewFake(teamSync())
	out := newExecutor(t, fake).Execute(context.Background(), model.Command{
		Action:      model.ActionMove,
		TargetEvent: "Nonexistent",
		Start:       "2026-10-16T15:00:00",
	})

	assert.Equal(t, StateNotFound, out.State)
	assert.Empty(t, fake.Mutations())
}

func TestMoveCreateFailureKeepsDelete(t *testing.T) {
	fake := gatewaytest.NewFake(teamSync())
	fake.CreateErr = errors.New("quota")
	out := newExecutor(t, fake).Execute(context.Background(), model.Command{
		Action:      model.ActionMove,
		TargetEvent: "Team Sync",
		Start:       "2026-10-17T09:30",
	})

	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, MsgMovePartial, out.Message)
	assert.Equal(t, []string{"delete", "create"}, fake.Mutations())
	assert.Empty(t, fake.Events(), "delete must not be rolled back")
}

func TestMoveWithoutTimeKeepsOriginal(t *testing.T) {
	fake := gatewaytest.NewFake(teamSync())
	out := newExecutor(t, fake).Execute(context.Background(), model.Command{
		Action:      model.ActionMove,
		TargetEvent: "Team Sync",
	})

	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, MsgMissingTime, out.Message)
	assert.Empty(t, fake.Mutations())
	assert.Len(t, fake.Events(), 1)
}

func TestMoveDeleteFailureSkipsCreate(t *testing.T) {
	fake := gatewaytest.NewFake(teamSync())
	fake.DeleteErr = gateway.ErrNotConnected
	out := newExecutor(t, fake).Execute(context.Background(), model.Command{
		Action:      model.ActionMove,
		TargetEvent: "Team Sync",
		Start:       "2026-10-17T09:30",
	})

	assert.Equal(t, StateFailed, out.State)
	assert.Equal(t, MsgNotConnected, out.Message)
	assert.Equal(t, []string{"delete"}, fake.Mutations())
}

func TestMoveUsesTitleAsTargetFallback(t *testing.T) {
	fake := gatewaytest.NewFake(teamSync())
	out := newExecutor(t, fake).Execute(context.Background(), model.Command{
		Action: model.ActionMove,
		Title:  "team sync",
		Date:   "2026-10-19",
	})

	require.Equal(t, StateDone, out.State)
	assert.Equal(t, "team sync", out.Event.Summary)
	assert.Equal(t, "2026-10-19T09:00:00+09:00", out.Event.Start.Instant.Format(time.RFC3339))
}

func TestUnrecognizedActionsNeverTouchCalendar(t *testing.T) {
	for _, action := range []model.Action{
		model.ActionNone, model.ActionCheck, model.ActionList, model.ActionUpdate, "explode", "",
	} {
		t.Run(string(action), func(t *testing.T) {
			fake := gatewaytest.NewFake(teamSync())
			out := newExecutor(t, fake).Execute(context.Background(), model.Command{
				Action:      action,
				Title:       "Team Sync",
				TargetEvent: "Team Sync",
				Start:       "2026-10-17T09:30",
			})
			assert.Equal(t, StateUnrecognized, out.State)
			assert.Equal(t, MsgUnrecognized, out.Message)
			assert.Empty(t, fake.Calls())
		})
	}
}
