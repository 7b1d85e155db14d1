// Package timeres turns the partial date/time strings produced by the intent
// parser into fully-qualified, offset-anchored instants.
//
// Relative phrases ("tomorrow", "next friday") are not interpreted here; the
// oracle is asked to emit absolute ISO values and this package only fills in
// what is still missing: seconds, the UTC offset, a default start hour and a
// default duration.
package timeres

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	appLog "nlcal/internal/log"
	"nlcal/internal/model"
)

const (
	// DefaultStartHour is used when only a calendar date is known.
	DefaultStartHour = 9
	// DefaultDuration is used when a start is known but no usable end.
	DefaultDuration = 60 * time.Minute

	dateLayout  = "2006-01-02"
	civilLayout = "2006-01-02T15:04:05"
)

var (
	// ErrMissingTime is returned when neither a start nor a date is present.
	ErrMissingTime = errors.New("missing time")
	// ErrInvalidTime is returned when a start value cannot be parsed.
	ErrInvalidTime = errors.New("invalid time")
)

var (
	reDateTime = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})[T ](\d{2}:\d{2})(:\d{2}(?:\.\d+)?)?(Z|z|[+-]\d{2}:?\d{2})?$`)
	reDate     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	reClock    = regexp.MustCompile(`^\d{1,2}:\d{2}(:\d{2})?$`)
)

// Resolver anchors civil times to one configured zone.
type Resolver struct {
	loc   *time.Location
	fixed *time.Location
}

// New returns a Resolver for loc. If fixedOffset is non-empty (e.g. "+09:00")
// every instant gets that offset regardless of daylight-saving rules.
func New(loc *time.Location, fixedOffset string) (*Resolver, error) {
	if loc == nil {
		loc = time.Local
	}
	r := &Resolver{loc: loc}
	if fixedOffset != "" {
		z, err := ParseOffset(fixedOffset)
		if err != nil {
			return nil, err
		}
		r.fixed = z
	}
	return r, nil
}

// ParseOffset parses "+09:00", "-0530" or "Z" into a fixed zone.
func ParseOffset(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "Z" || s == "z" {
		return time.UTC, nil
	}
	t, err := time.Parse("-07:00", s)
	if err != nil {
		t, err = time.Parse("-0700", s)
	}
	if err != nil {
		return nil, fmt.Errorf("parse utc offset %q: %w", s, err)
	}
	_, secs := t.Zone()
	return time.FixedZone(s, secs), nil
}

// Location returns the IANA zone the resolver was configured with.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// zone is the location instants are expressed in.
func (r *Resolver) zone() *time.Location {
	if r.fixed != nil {
		return r.fixed
	}
	return r.loc
}

// Today returns the ISO date of ref in the configured zone.
func (r *Resolver) Today(ref time.Time) string {
	return ref.In(r.zone()).Format(dateLayout)
}

// Normalize completes a date-time string:
//
//   - empty input is returned unchanged
//   - "YYYY-MM-DDTHH:MM" gets ":00" seconds, with or without an offset
//   - a missing trailing offset is appended for the configured zone
//
// An offset already present is kept. Bare dates and anything that does not
// look like a date-time are returned as-is. Normalize is idempotent.
func (r *Resolver) Normalize(raw string, ref time.Time) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return raw
	}
	m := reDateTime.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	civil := m[1] + "T" + m[2]
	if m[3] == "" {
		civil += ":00"
	} else {
		civil += m[3]
	}
	if offset := m[4]; offset != "" {
		if offset == "z" {
			offset = "Z"
		}
		return civil + offset
	}
	return civil + r.offsetFor(civil, ref)
}

// offsetFor returns the numeric offset of civil in the configured zone. When
// civil cannot be placed (should not happen after reDateTime) the offset at ref
// is used.
func (r *Resolver) offsetFor(civil string, ref time.Time) string {
	if r.fixed != nil {
		return ref.In(r.fixed).Format("-07:00")
	}
	t, err := time.ParseInLocation(civilLayout, civil[:len(civilLayout)], r.loc)
	if err != nil {
		return ref.In(r.loc).Format("-07:00")
	}
	return t.Format("-07:00")
}

// parseInstant parses a normalized value.
func parseInstant(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05Z0700", s)
}

// Resolve derives a ResolvedEvent from cmd. ref is "now" and only matters for
// bare clock times and offset lookup.
//
// Defaults: a date without a time starts at 09:00 local; a missing end (or one
// not after the start) becomes start + 60 minutes. Neither start nor date
// yields ErrMissingTime.
func (r *Resolver) Resolve(cmd model.Command, ref time.Time) (model.ResolvedEvent, error) {
	start, err := r.resolveStart(cmd, ref)
	if err != nil {
		return model.ResolvedEvent{}, err
	}
	end := r.resolveEnd(cmd.End, start, ref)

	summary := strings.TrimSpace(cmd.Title)
	if summary == "" {
		summary = "New event"
	}

	tz := r.loc.String()
	return model.ResolvedEvent{
		Summary:     summary,
		Description: cmd.Details,
		Start:       model.EventTime{Instant: start, TimeZone: tz},
		End:         model.EventTime{Instant: end, TimeZone: tz},
	}, nil
}

func (r *Resolver) resolveStart(cmd model.Command, ref time.Time) (time.Time, error) {
	raw := strings.TrimSpace(cmd.Start)
	date := strings.TrimSpace(cmd.Date)

	switch {
	case reDate.MatchString(raw):
		date, raw = raw, ""
	case reClock.MatchString(raw):
		raw = r.placeClock(raw, date, ref)
	}

	if raw != "" {
		t, err := parseInstant(r.Normalize(raw, ref))
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: start %q", ErrInvalidTime, cmd.Start)
		}
		return t.In(r.zone()), nil
	}

	if date == "" {
		return time.Time{}, ErrMissingTime
	}
	d, err := time.ParseInLocation(dateLayout, date, r.zone())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidTime, cmd.Date)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), DefaultStartHour, 0, 0, 0, r.zone()), nil
}

// placeClock attaches a bare "HH:MM" to date. Without a date, a time that has
// already passed today lands on tomorrow.
func (r *Resolver) placeClock(clock, date string, ref time.Time) string {
	if len(clock) == 4 || (len(clock) == 7 && clock[1] == ':') {
		clock = "0" + clock
	}
	if date != "" {
		return date + "T" + clock
	}
	now := ref.In(r.zone())
	candidate := now.Format(dateLayout) + "T" + clock
	t, err := parseInstant(r.Normalize(candidate, ref))
	if err == nil && !t.After(now) {
		return now.AddDate(0, 0, 1).Format(dateLayout) + "T" + clock
	}
	return candidate
}

func (r *Resolver) resolveEnd(raw string, start, ref time.Time) time.Time {
	def := start.Add(DefaultDuration)
	raw = strings.TrimSpace(raw)
	if raw == "" || reDate.MatchString(raw) {
		return def
	}
	if reClock.MatchString(raw) {
		raw = r.placeClock(raw, start.Format(dateLayout), ref)
	}
	end, err := parseInstant(r.Normalize(raw, ref))
	if err != nil {
		appLog.Warn("timeres: unparseable end, using default duration", "end", raw)
		return def
	}
	if !end.After(start) {
		appLog.Debug("timeres: end not after start, using default duration", "start", start.Format(time.RFC3339), "end", raw)
		return def
	}
	return end.In(r.zone())
}
