package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	appLog "nlcal/internal/log"
	"nlcal/internal/model"
)

// GoogleOptions configures the Google Calendar gateway.
type GoogleOptions struct {
	// CalendarID defaults to "primary".
	CalendarID string
	// Endpoint overrides the API base URL (tests).
	Endpoint string
	// HTTPClient is the transport the OAuth2 client wraps (tests).
	HTTPClient *http.Client
}

// Google is a Gateway backed by the Google Calendar v3 API. The session
// credential is re-applied on every call.
type Google struct {
	session    *Session
	calendarID string
	endpoint   string
	httpClient *http.Client
}

// NewGoogle returns a Google gateway using session for credentials.
func NewGoogle(session *Session, opts GoogleOptions) *Google {
	id := opts.CalendarID
	if id == "" {
		id = "primary"
	}
	return &Google{
		session:    session,
		calendarID: id,
		endpoint:   opts.Endpoint,
		httpClient: opts.HTTPClient,
	}
}

func (g *Google) Connected() bool {
	return g.session.Connected()
}

// service builds a calendar client from the current session token. gen
// identifies that token for classify.
func (g *Google) service(ctx context.Context) (svc *calendar.Service, gen uint64, err error) {
	ts, gen, err := g.session.source(ctx)
	if err != nil {
		return nil, gen, err
	}
	if g.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	}
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	svc, err = calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, gen, fmt.Errorf("create calendar service: %w", err)
	}
	return svc, gen, nil
}

func (g *Google) Create(ctx context.Context, ev model.ResolvedEvent) (model.CalendarEvent, error) {
	svc, gen, err := g.service(ctx)
	if err != nil {
		return model.CalendarEvent{}, err
	}

	created, err := svc.Events.Insert(g.calendarID, &calendar.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       eventDateTime(ev.Start),
		End:         eventDateTime(ev.End),
	}).Context(ctx).Do()
	if err != nil {
		return model.CalendarEvent{}, g.classify(gen, "insert event", err)
	}

	appLog.Info("google calendar event created", "id", created.Id, "calendar", g.calendarID)
	return toCalendarEvent(created), nil
}

func (g *Google) List(ctx context.Context, q ListQuery) ([]model.CalendarEvent, error) {
	svc, gen, err := g.service(ctx)
	if err != nil {
		return nil, err
	}

	call := svc.Events.List(g.calendarID).
		TimeMin(q.TimeMin.Format(time.RFC3339)).
		TimeMax(q.TimeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")
	if q.MaxResults > 0 {
		call = call.MaxResults(int64(q.MaxResults))
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, g.classify(gen, "list events", err)
	}

	out := make([]model.CalendarEvent, 0, len(resp.Items))
	for _, item := range resp.Items {
		out = append(out, toCalendarEvent(item))
	}
	return out, nil
}

func (g *Google) Delete(ctx context.Context, id string) error {
	svc, gen, err := g.service(ctx)
	if err != nil {
		return err
	}
	if err := svc.Events.Delete(g.calendarID, id).Context(ctx).Do(); err != nil {
		return g.classify(gen, "delete event "+id, err)
	}
	appLog.Info("google calendar event deleted", "id", id, "calendar", g.calendarID)
	return nil
}

// classify wraps err. A credential the provider refused (401, or a failed
// refresh) is dropped from the session and reported as ErrNotConnected.
func (g *Google) classify(gen uint64, op string, err error) error {
	var apiErr *googleapi.Error
	var retrieveErr *oauth2.RetrieveError
	if (errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized) || errors.As(err, &retrieveErr) {
		g.session.reject(gen, err)
		return fmt.Errorf("%s: %w: %v", op, ErrNotConnected, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func eventDateTime(t model.EventTime) *calendar.EventDateTime {
	return &calendar.EventDateTime{
		DateTime: t.Instant.Format(time.RFC3339),
		TimeZone: t.TimeZone,
	}
}

func toCalendarEvent(e *calendar.Event) model.CalendarEvent {
	return model.CalendarEvent{
		ID:      e.Id,
		Summary: e.Summary,
		Start:   parseEventDateTime(e.Start),
		End:     parseEventDateTime(e.End),
	}
}

// parseEventDateTime handles both timed (DateTime) and all-day (Date) values.
func parseEventDateTime(dt *calendar.EventDateTime) time.Time {
	if dt == nil {
		return time.Time{}
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t
		}
	}
	if dt.Date != "" {
		loc := time.UTC
		if dt.TimeZone != "" {
			if l, err := time.LoadLocation(dt.TimeZone); err == nil {
				loc = l
			}
		}
		if t, err := time.ParseInLocation("2006-01-02", dt.Date, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}
