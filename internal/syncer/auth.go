package syncer

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/guilherme-santos/clinicagenda/internal"
)

var errEmptyToken = errors.New("provider returned an empty token")

// Initialize prepares the provider client and recovers the token saved by a
// previous session. A store that is empty or unreachable means no token.
func (s *Syncer) Initialize(ctx context.Context) error {
	if err := s.auth.Init(ctx); err != nil {
		s.mu.Lock()
		_ = s.transitionLocked(StateError)
		s.lastErr = fmt.Sprintf("%v: %v", internal.ErrInitialization, err)
		s.mu.Unlock()
		s.changed()

		s.logger.Error("Unable to initialize calendar provider", "error", err)
		return fmt.Errorf("%w: %v", internal.ErrInitialization, err)
	}

	s.loadPending(ctx)

	tok, err := s.tokens.Load(ctx)
	if err != nil {
		s.logger.Warn("Unable to recover stored token", "error", err)
		tok = nil
	}
	if tok == nil {
		s.mu.Lock()
		err := s.transitionLocked(StateUnauthenticated)
		s.mu.Unlock()
		s.changed()
		return err
	}

	s.logger.Info("Recovered stored token")
	return s.acceptToken(ctx, tok, false)
}

// RequestToken asks the provider for a new token with explicit consent. A
// token already held is revoked in the background; the state it backs is
// dropped only once that revocation succeeds.
func (s *Syncer) RequestToken(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateError || s.state == StateUninitialized {
		s.mu.Unlock()
		return internal.ErrInitialization
	}
	old := s.token
	if err := s.transitionLocked(StateAuthenticating); err != nil {
		s.mu.Unlock()
		return err
	}
	s.lastErr = ""
	s.authURL = ""
	s.mu.Unlock()
	s.changed()

	if old != nil {
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			s.revokeInBackground(old)
		}()
	}

	tok, err := s.auth.RequestToken(ctx, s.Scopes, internal.PromptConsent, s.setAuthURL)
	if err == nil && (tok == nil || tok.AccessToken == "") {
		err = errEmptyToken
	}
	if err != nil {
		s.requestFailed(old, err)
		return err
	}
	return s.acceptToken(ctx, tok, true)
}

// revokeInBackground revokes a replaced token. Once revoked it is removed
// from the store and, unless another token was accepted meanwhile, from
// memory together with the state it backed.
func (s *Syncer) revokeInBackground(old *oauth2.Token) {
	ctx := context.Background()
	if err := s.auth.RevokeToken(ctx, old); err != nil {
		s.logger.Warn("Unable to revoke previous token", "error", err)
		return
	}

	s.storeMu.Lock()
	stored, err := s.tokens.Load(ctx)
	if err != nil {
		s.logger.Warn("Unable to check stored token", "error", err)
	}
	if stored != nil && stored.AccessToken == old.AccessToken {
		if err := s.tokens.Clear(ctx); err != nil {
			s.logger.Warn("Unable to clear revoked token", "error", err)
		}
	}

	s.mu.Lock()
	reset := s.token == old
	if reset {
		s.token = nil
		s.events = nil
		s.calendars = nil
	}
	s.mu.Unlock()
	s.storeMu.Unlock()

	if reset {
		s.changed()
	}
}

func (s *Syncer) setAuthURL(authURL string) {
	s.mu.Lock()
	s.authURL = authURL
	s.mu.Unlock()
	s.changed()
}

// OnTokenReceived persists tok, holds it and fetches the events it gives
// access to.
func (s *Syncer) OnTokenReceived(ctx context.Context, tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		s.OnTokenError(errEmptyToken)
		return errEmptyToken
	}
	return s.acceptToken(ctx, tok, true)
}

func (s *Syncer) acceptToken(ctx context.Context, tok *oauth2.Token, persist bool) error {
	s.storeMu.Lock()
	if persist {
		if err := s.tokens.Save(ctx, tok); err != nil {
			s.logger.Warn("Unable to persist token", "error", err)
		}
	}

	s.mu.Lock()
	err := s.transitionLocked(StateAuthenticated)
	if err == nil {
		s.token = tok
		s.authURL = ""
		s.lastErr = ""
	}
	s.mu.Unlock()
	s.storeMu.Unlock()
	if err != nil {
		return err
	}
	s.changed()

	s.logger.Info("Connected to calendar provider", "scope", internal.TokenScope(tok))

	// Refresh failures are reported through the snapshot.
	_ = s.Refresh(ctx)
	return nil
}

// OnTokenError drops any held token and reports err to the dashboard.
func (s *Syncer) OnTokenError(err error) {
	s.logger.Error("Unable to obtain token", "error", err)

	s.mu.Lock()
	s.tokenFailedLocked(err)
	s.mu.Unlock()
	s.changed()
}

// requestFailed handles the failure of a request started while held was the
// token. A token accepted since then belongs to a later request and is kept.
func (s *Syncer) requestFailed(held *oauth2.Token, err error) {
	s.mu.Lock()
	if s.token != nil && s.token != held {
		s.mu.Unlock()
		s.logger.Warn("Token request failed after another one succeeded", "error", err)
		return
	}
	s.tokenFailedLocked(err)
	s.mu.Unlock()

	s.logger.Error("Unable to obtain token", "error", err)
	s.changed()
}

func (s *Syncer) tokenFailedLocked(err error) {
	s.token = nil
	s.authURL = ""
	s.lastErr = fmt.Sprintf("unable to connect to the calendar provider: %v", err)
	_ = s.transitionLocked(StateUnauthenticated)
}

// Revoke invalidates the held token and forgets every calendar and event.
// Local state is cleared even when the provider refuses the revocation.
func (s *Syncer) Revoke(ctx context.Context) error {
	s.mu.Lock()
	tok := s.token
	s.token = nil
	s.events = nil
	s.calendars = nil
	s.authURL = ""
	if tok != nil {
		_ = s.transitionLocked(StateUnauthenticated)
	}
	s.mu.Unlock()
	defer s.changed()

	if tok == nil {
		return nil
	}

	if err := s.tokens.Clear(ctx); err != nil {
		s.logger.Warn("Unable to clear stored token", "error", err)
	}
	if err := s.auth.RevokeToken(ctx, tok); err != nil {
		s.setError(err)
		return fmt.Errorf("revoking token: %w", err)
	}
	s.logger.Info("Token revoked")
	return nil
}
