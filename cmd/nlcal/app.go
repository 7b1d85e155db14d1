package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"google.golang.org/api/calendar/v3"

	"nlcal/internal/assistant"
	"nlcal/internal/config"
	"nlcal/internal/gateway"
	"nlcal/internal/ics"
	"nlcal/internal/locator"
	appLog "nlcal/internal/log"
	"nlcal/internal/metrics"
	"nlcal/internal/oracle"
	"nlcal/internal/timeres"
)

// app is everything a command needs, built once from the config.
type app struct {
	cfg       *config.Config
	assistant *assistant.Assistant
	metrics   *metrics.Metrics
	// Exactly one of session and store is set, depending on the backend.
	session *gateway.Session
	store   *ics.Store
}

func buildApp(cfg *config.Config) (*app, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	resolver, err := timeres.New(loc, cfg.UTCOffset)
	if err != nil {
		return nil, err
	}

	orc, err := oracle.NewOpenAI(oracle.Config{
		BaseURL:     cfg.Oracle.BaseURL,
		APIKey:      cfg.Oracle.APIKey,
		Model:       cfg.Oracle.Model,
		Temperature: cfg.Oracle.Temperature,
		Timeout:     time.Duration(cfg.Oracle.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, metrics: metrics.New()}

	var gw gateway.Gateway
	switch cfg.Backend {
	case config.BackendGoogle:
		a.session = gateway.NewSession(oauthConfig(cfg))
		gw = gateway.NewGoogle(a.session, gateway.GoogleOptions{CalendarID: cfg.Google.CalendarID})
	default:
		a.store, err = ics.Open(cfg.ICS.Path, loc)
		if err != nil {
			return nil, err
		}
		gw = a.store
	}

	a.assistant = assistant.New(assistant.Options{
		Oracle:   orc,
		Gateway:  gw,
		Resolver: resolver,
		Window: locator.Window{
			Past:       time.Duration(cfg.Search.PastDays) * 24 * time.Hour,
			Future:     time.Duration(cfg.Search.FutureDays) * 24 * time.Hour,
			MaxResults: cfg.Search.MaxResults,
		},
		Metrics: a.metrics,
	})

	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"utc_offset", cfg.UTCOffset,
		"backend", cfg.Backend,
		"oracle_model", cfg.Oracle.Model,
		"oracle_base_url", cfg.Oracle.BaseURL,
		"search_past_days", cfg.Search.PastDays,
		"search_future_days", cfg.Search.FutureDays,
		"search_max_results", cfg.Search.MaxResults,
	)
	return a, nil
}

// oauthConfig returns nil when no client is configured; installed tokens are
// then used until they expire.
func oauthConfig(cfg *config.Config) *oauth2.Config {
	if cfg.Google.ClientID == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		Endpoint:     endpoints.Google,
		Scopes:       []string{calendar.CalendarEventsScope},
	}
}

// loadToken installs a token JSON file (the oauth2.Token wire form) into the
// session. It is how the one-shot commands get a credential.
func (a *app) loadToken(path string) error {
	if path == "" {
		return nil
	}
	if a.session == nil {
		appLog.Warn("token file ignored for backend without session", "backend", a.cfg.Backend)
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return fmt.Errorf("parse token file %s: %w", path, err)
	}
	a.session.Set(&tok)
	return nil
}

// startScheduler registers the background jobs for the configured backend.
// The returned cron is already running.
func (a *app) startScheduler(ctx context.Context) (*cron.Cron, error) {
	c := cron.New()

	if a.store != nil && a.cfg.ICS.ReloadCron != "" {
		if _, err := c.AddFunc(a.cfg.ICS.ReloadCron, func() {
			if err := a.store.Reload(); err != nil {
				appLog.Error("ics reload failed", err, "path", a.cfg.ICS.Path)
				return
			}
			appLog.Debug("ics reloaded", "path", a.cfg.ICS.Path)
		}); err != nil {
			return nil, fmt.Errorf("ics reload schedule %q: %w", a.cfg.ICS.ReloadCron, err)
		}
	}

	if a.session != nil && a.cfg.SessionProbeCron != "" {
		if _, err := c.AddFunc(a.cfg.SessionProbeCron, func() {
			if !a.session.Connected() {
				return
			}
			probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := a.session.Refresh(probeCtx); err != nil {
				appLog.Error("calendar session probe failed", err)
			}
		}); err != nil {
			return nil, fmt.Errorf("session probe schedule %q: %w", a.cfg.SessionProbeCron, err)
		}
	}

	c.Start()
	appLog.Info("scheduler started", "jobs", len(c.Entries()))
	return c, nil
}
