package gateway

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/oauth2"

	appLog "nlcal/internal/log"
)

// Session owns the calendar credential for the whole process. It is injected
// into the gateway instead of living in a global, so the sharing contract is
// visible: reads take a read lock, Set/Clear replace the token wholesale.
//
// Replacing the token while a request is in flight is not coordinated with
// that request; it may finish with either credential. A rejection reported
// by such a request only drops the token it actually used.
type Session struct {
	mu    sync.RWMutex
	conf  *oauth2.Config
	token *oauth2.Token
	// gen changes whenever token is replaced.
	gen uint64
}

// NewSession returns an empty session. conf may be nil, in which case tokens
// are used as-is and never refreshed.
func NewSession(conf *oauth2.Config) *Session {
	return &Session{conf: conf}
}

// Set installs a token obtained elsewhere.
func (s *Session) Set(tok *oauth2.Token) {
	s.mu.Lock()
	s.token = tok
	s.gen++
	s.mu.Unlock()
	appLog.Info("calendar session token installed", "expiry", tok.Expiry, "refreshable", tok.RefreshToken != "")
}

// Clear drops the credential.
func (s *Session) Clear() {
	s.mu.Lock()
	s.token = nil
	s.gen++
	s.mu.Unlock()
	appLog.Info("calendar session cleared")
}

// Connected reports whether a usable credential is held: an unexpired access
// token, or one that can be refreshed.
func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return false
	}
	if s.token.Valid() {
		return true
	}
	return s.conf != nil && s.token.RefreshToken != ""
}

// TokenSource returns a token source for the current credential, or
// ErrNotConnected.
func (s *Session) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	ts, _, err := s.source(ctx)
	return ts, err
}

// source is TokenSource plus the generation of the token it was built from.
func (s *Session) source(ctx context.Context) (oauth2.TokenSource, uint64, error) {
	s.mu.RLock()
	tok, conf, gen := s.token, s.conf, s.gen
	s.mu.RUnlock()

	if tok == nil {
		return nil, gen, ErrNotConnected
	}
	if conf == nil || tok.RefreshToken == "" {
		if !tok.Valid() {
			return nil, gen, ErrNotConnected
		}
		return oauth2.StaticTokenSource(tok), gen, nil
	}
	return conf.TokenSource(ctx, tok), gen, nil
}

// reject drops the credential of generation gen after the provider refused
// it. A token installed since then is left alone.
func (s *Session) reject(gen uint64, cause error) {
	s.mu.Lock()
	if s.gen != gen || s.token == nil {
		s.mu.Unlock()
		return
	}
	s.token = nil
	s.gen++
	s.mu.Unlock()
	appLog.Error("calendar credential rejected; session cleared", cause)
}

// Refresh forces a token check and keeps the refreshed token, if any. It is
// run periodically so an expired or revoked grant shows up as "not connected"
// before a user request hits it.
func (s *Session) Refresh(ctx context.Context) error {
	ts, gen, err := s.source(ctx)
	if err != nil {
		return err
	}
	tok, err := ts.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			s.reject(gen, err)
			return errors.Join(ErrNotConnected, err)
		}
		return err
	}

	s.mu.Lock()
	changed := s.gen == gen && s.token != nil && s.token.AccessToken != tok.AccessToken
	if changed {
		s.token = tok
	}
	s.mu.Unlock()

	if changed {
		appLog.Info("calendar session token refreshed", "expiry", tok.Expiry)
	}
	return nil
}
