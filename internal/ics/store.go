package ics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"nlcal/internal/gateway"
	appLog "nlcal/internal/log"
	"nlcal/internal/model"
)

// ErrEventNotFound is returned by Delete for an unknown UID.
var ErrEventNotFound = errors.New("ics: event not found")

// Store is a calendar kept in a single local .ics file. It satisfies
// gateway.Gateway and needs no credential, so it is always connected.
//
// Recurring events are expanded on List; their occurrences share the series
// UID as ID, so deleting any occurrence deletes the whole series.
type Store struct {
	mu   sync.Mutex
	path string
	loc  *time.Location
	cal  *ical.Calendar
	now  func() time.Time
}

var _ gateway.Gateway = (*Store)(nil)

// Open loads path, or starts an empty calendar if it does not exist yet. The
// file is only written on the first mutation.
func Open(path string, loc *time.Location) (*Store, error) {
	if path == "" {
		return nil, errors.New("ics store path is empty")
	}
	if loc == nil {
		loc = time.Local
	}
	s := &Store{path: path, loc: loc, now: time.Now}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the file, picking up edits made by other programs.
func (s *Store) Reload() error {
	cal, err := readCalendar(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cal = cal
	s.mu.Unlock()
	appLog.Debug("ics store loaded", "path", s.path, "events", len(cal.Events()))
	return nil
}

func readCalendar(path string) (*ical.Calendar, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(bytes.TrimSpace(data)) == 0) {
		return ical.NewCalendarFor("nlcal"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ics store: %w", err)
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse ics store %s: %w", path, err)
	}
	return cal, nil
}

func (s *Store) Connected() bool {
	return true
}

func (s *Store) Create(_ context.Context, ev model.ResolvedEvent) (model.CalendarEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uid := uuid.NewString() + "@nlcal"
	now := s.now().UTC()

	ve := s.cal.AddEvent(uid)
	ve.SetDtStampTime(now)
	ve.SetCreatedTime(now)
	ve.SetSummary(ev.Summary)
	if ev.Description != "" {
		ve.SetDescription(ev.Description)
	}
	ve.SetStartAt(ev.Start.Instant)
	ve.SetEndAt(ev.End.Instant)

	if err := s.persistLocked(); err != nil {
		s.removeLocked(uid)
		return model.CalendarEvent{}, err
	}

	appLog.Info("ics event created", "uid", uid, "path", s.path)
	return model.CalendarEvent{
		ID:      uid,
		Summary: ev.Summary,
		Start:   ev.Start.Instant,
		End:     ev.End.Instant,
	}, nil
}

func (s *Store) List(_ context.Context, q gateway.ListQuery) ([]model.CalendarEvent, error) {
	s.mu.Lock()
	events := parseCalendar(s.cal)
	s.mu.Unlock()

	occs, err := ExpandOccurrences(events, ExpandConfig{
		DisplayLocation: s.loc,
		RangeStart:      q.TimeMin,
		RangeEnd:        q.TimeMax,
	})
	if err != nil {
		return nil, err
	}
	if q.MaxResults > 0 && len(occs) > q.MaxResults {
		occs = occs[:q.MaxResults]
	}

	out := make([]model.CalendarEvent, 0, len(occs))
	for _, o := range occs {
		out = append(out, o.CalendarEvent())
	}
	return out, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := append([]ical.Component(nil), s.cal.Components...)
	if s.removeLocked(id) == 0 {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	if err := s.persistLocked(); err != nil {
		s.cal.Components = snapshot
		return err
	}

	appLog.Info("ics event deleted", "uid", id, "path", s.path)
	return nil
}

// removeLocked drops every VEVENT with uid (series and overrides) and returns
// how many were removed.
func (s *Store) removeLocked(uid string) int {
	kept := s.cal.Components[:0:0]
	removed := 0
	for _, c := range s.cal.Components {
		if ve, ok := c.(*ical.VEvent); ok {
			if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil && p.Value == uid {
				removed++
				continue
			}
		}
		kept = append(kept, c)
	}
	s.cal.Components = kept
	return removed
}

// persistLocked writes the calendar atomically: temp file in the same
// directory, fsync, chmod 0600, rename.
func (s *Store) persistLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create ics store dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".nlcal-store-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ics file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(s.cal.Serialize()); err != nil {
		tmp.Close()
		return fmt.Errorf("write ics store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync ics store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}
