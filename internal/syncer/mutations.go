package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/guilherme-santos/clinicagenda/internal"
)

// Mutations are pushed to the provider and followed by a full Refresh, so the
// collection always ends up holding what the provider confirmed. Callers must
// not issue two mutations for the same event without waiting for the first.

// Save creates e when it has no id and updates it otherwise. Local ids update
// the pending appointment in storage.
func (s *Syncer) Save(ctx context.Context, e *Event) error {
	switch {
	case e.ID.IsZero():
		return s.Create(ctx, e)
	case e.ID.IsLocal():
		return s.updatePending(ctx, e)
	}
	return s.Update(ctx, e.ID.External(), e)
}

// Create adds e to the calendar whose name matches e.Professional.
func (s *Syncer) Create(ctx context.Context, e *Event) error {
	tok, err := s.requireToken()
	if err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	cal := internal.CalendarByName(s.calendars, e.Professional)
	s.mu.Unlock()
	if cal == nil {
		return fmt.Errorf("%w: %q", internal.ErrNoCalendar, e.Professional)
	}

	logger := internal.CalendarLogger(s.logger, cal)
	logger.Info("Creating appointment", "summary", e.Summary(), "start", formatDateTime(e.StartsAt))

	id, err := s.provider.CreateEvent(ctx, tok, cal.ID, e)
	if err != nil {
		logger.Error("Unable to create appointment on the provider", "error", err)
		return s.mutationFailed(ctx, tok, err)
	}
	logger.Debug("Appointment created", "id", id)

	s.refreshAfter(ctx)
	return nil
}

// Update rewrites the synced event id. Its calendar is taken from the
// current collection.
func (s *Syncer) Update(ctx context.Context, id string, e *Event) error {
	tok, err := s.requireToken()
	if err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}
	current, err := s.lookup(id)
	if err != nil {
		return err
	}

	logger := s.logger.With("calendar", current.CalendarID)
	logger.Info("Updating appointment", "id", id, "summary", e.Summary(), "start", formatDateTime(e.StartsAt))

	if err := s.provider.UpdateEvent(ctx, tok, current.CalendarID, id, e); err != nil {
		logger.Error("Unable to update appointment on the provider", "id", id, "error", err)
		return s.mutationFailed(ctx, tok, err)
	}

	s.refreshAfter(ctx)
	return nil
}

// Delete removes the appointment. Local ids are removed from storage.
func (s *Syncer) Delete(ctx context.Context, id EventID) error {
	if id.IsLocal() {
		return s.deletePending(ctx, id.Local())
	}

	tok, err := s.requireToken()
	if err != nil {
		return err
	}
	current, err := s.lookup(id.External())
	if err != nil {
		return err
	}

	logger := s.logger.With("calendar", current.CalendarID)
	logger.Info("Deleting appointment", "id", id, "summary", current.Summary(), "start", formatDateTime(current.StartsAt))

	if err := s.provider.DeleteEvent(ctx, tok, current.CalendarID, id.External()); err != nil {
		logger.Error("Unable to delete appointment from the provider", "id", id, "error", err)
		return s.mutationFailed(ctx, tok, err)
	}

	s.refreshAfter(ctx)
	return nil
}

// Reschedule moves a synced appointment, typically after a drag on the
// calendar. When the provider refuses, the collection is refreshed so any
// optimistic move shown by the caller is rolled back.
func (s *Syncer) Reschedule(ctx context.Context, id EventID, start, end time.Time) error {
	if id.IsLocal() || id.IsZero() {
		return fmt.Errorf("rescheduling %s: %w", id, internal.ErrNotImplemented)
	}

	tok, err := s.requireToken()
	if err != nil {
		return err
	}
	current, err := s.lookup(id.External())
	if err != nil {
		return err
	}

	moved := *current
	moved.StartsAt = start
	moved.EndsAt = end
	if err := moved.Validate(); err != nil {
		return err
	}

	logger := s.logger.With("calendar", current.CalendarID)
	logger.Info("Rescheduling appointment", "id", id, "from", formatDateTime(current.StartsAt), "to", formatDateTime(start))

	if err := s.provider.UpdateEvent(ctx, tok, current.CalendarID, id.External(), &moved); err != nil {
		logger.Error("Unable to reschedule appointment", "id", id, "error", err)
		err = s.mutationFailed(ctx, tok, err)
		if !errors.Is(err, internal.ErrUnauthorized) {
			s.refreshAfter(ctx)
		}
		return err
	}

	s.refreshAfter(ctx)
	return nil
}

// Hold stores e as a pending appointment that is not on any calendar yet.
func (s *Syncer) Hold(ctx context.Context, e *Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.Status == "" {
		e.Status = internal.StatusPending
	}
	id, err := s.storage.CreateAppointment(ctx, e)
	if err != nil {
		return fmt.Errorf("saving pending appointment: %w", err)
	}
	e.ID = internal.LocalID(id)

	s.loadPending(ctx)
	s.changed()
	return nil
}

func (s *Syncer) updatePending(ctx context.Context, e *Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if err := s.storage.UpdateAppointment(ctx, e); err != nil {
		return fmt.Errorf("updating pending appointment %s: %w", e.ID, err)
	}
	s.loadPending(ctx)
	s.changed()
	return nil
}

func (s *Syncer) deletePending(ctx context.Context, id int64) error {
	if err := s.storage.DeleteAppointment(ctx, id); err != nil {
		return fmt.Errorf("deleting pending appointment %d: %w", id, err)
	}
	s.loadPending(ctx)
	s.changed()
	return nil
}

// lookup finds a synced event in the current collection. Events without a
// calendar cannot be written back to the provider.
func (s *Syncer) lookup(id string) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.events {
		if !e.ID.IsLocal() && e.ID.External() == id {
			if e.CalendarID == "" {
				return nil, fmt.Errorf("appointment %s has no calendar: %w", id, internal.ErrNotFound)
			}
			cp := *e
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("appointment %s: %w", id, internal.ErrNotFound)
}

// mutationFailed leaves the collection untouched, except that an
// authorization failure drops the token like any fetch would.
func (s *Syncer) mutationFailed(ctx context.Context, tok *oauth2.Token, err error) error {
	if errors.Is(err, internal.ErrUnauthorized) {
		s.fetchFailed(ctx, tok, err)
		s.changed()
	}
	return err
}

func (s *Syncer) refreshAfter(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("Unable to refresh after change", "error", err)
	}
}
