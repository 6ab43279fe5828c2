package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/oauth2"

	"github.com/guilherme-santos/clinicagenda/internal"
)

// Refresh fetches the calendar directory and the upcoming events of every
// calendar, and replaces the in-memory collection with the result. Without a
// token it does nothing.
//
// Overlapping refreshes are not sequenced: the last one to finish wins.
func (s *Syncer) Refresh(ctx context.Context) error {
	tok := s.currentToken()
	if tok == nil {
		return nil
	}

	s.setLoading(true)
	defer s.setLoading(false)

	cals, err := s.fetchCalendars(ctx, tok)
	if err != nil {
		s.fetchFailed(ctx, tok, err)
		return err
	}

	var events []*Event
	if len(cals) > 0 {
		events, err = s.aggregate(ctx, tok, cals)
		if err != nil {
			s.fetchFailed(ctx, tok, err)
			return err
		}
	}

	s.mu.Lock()
	if s.token != tok {
		// The token was dropped or replaced while fetching.
		s.mu.Unlock()
		return nil
	}
	s.calendars = cals
	if s.visible.Bootstrap(cals) {
		s.logger.Debug("All calendars visible by default", "count", len(cals))
	}
	s.events = events
	s.lastErr = ""
	s.mu.Unlock()

	s.logger.Info("Events refreshed", "calendars", len(cals), "events", len(events))
	return nil
}

func (s *Syncer) fetchCalendars(ctx context.Context, tok *oauth2.Token) ([]*Calendar, error) {
	cals, err := s.provider.Calendars(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("listing calendars: %w", err)
	}
	return cals, nil
}

// aggregate fetches every calendar concurrently and waits for all of them.
// Any failure aborts the merge.
func (s *Syncer) aggregate(ctx context.Context, tok *oauth2.Token, cals []*Calendar) ([]*Event, error) {
	from := s.From
	if from.IsZero() {
		from = internal.Today()
	}
	to := from.AddDate(0, 0, s.DaysAhead)

	var wg sync.WaitGroup
	results := make([][]*Event, len(cals))
	errCh := make(chan error, len(cals))

	for i, cal := range cals {
		wg.Add(1)
		go func(i int, cal *Calendar) {
			defer wg.Done()

			logger := internal.CalendarLogger(s.logger, cal)
			events, err := s.provider.Events(ctx, tok, cal.ID, from, to)
			if err != nil {
				logger.Warn("Unable to get list of events", "error", err)
				errCh <- fmt.Errorf("calendar %q: %w", cal.Name, err)
				return
			}
			for _, e := range events {
				e.CalendarID = cal.ID
				if e.Color == "" {
					e.Color = cal.Color
				}
			}
			results[i] = events
		}(i, cal)
	}

	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		// Prefer reporting the authorization failure, it changes state.
		for _, err := range errs {
			if errors.Is(err, internal.ErrUnauthorized) {
				return nil, err
			}
		}
		return nil, errs[0]
	}

	var merged []*Event
	for _, events := range results {
		merged = append(merged, events...)
	}
	return merged, nil
}

// fetchFailed records err for the dashboard. An authorization failure drops
// the token that caused it; nothing is retried.
func (s *Syncer) fetchFailed(ctx context.Context, tok *oauth2.Token, err error) {
	s.logger.Error("Unable to refresh events", "error", err)

	if !errors.Is(err, internal.ErrUnauthorized) {
		s.setError(err)
		return
	}

	s.mu.Lock()
	dropped := s.token == tok
	if dropped {
		s.token = nil
		_ = s.transitionLocked(StateUnauthenticated)
	}
	s.lastErr = "calendar authorization expired, sync again to reconnect"
	s.mu.Unlock()

	if !dropped {
		return
	}
	if err := s.tokens.Clear(ctx); err != nil {
		s.logger.Warn("Unable to clear stored token", "error", err)
	}
}
