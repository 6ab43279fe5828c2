package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/guilherme-santos/clinicagenda/internal"
	"github.com/guilherme-santos/clinicagenda/internal/syncer"
)

const defaultSyncTimeout = 5 * time.Minute

// Agenda is what the dashboard drives. *syncer.Syncer implements it.
type Agenda interface {
	Snapshot() syncer.Snapshot
	Subscribe(func(syncer.Snapshot)) func()
	Save(context.Context, *internal.Event) error
	Hold(context.Context, *internal.Event) error
	Delete(context.Context, internal.EventID) error
	Reschedule(_ context.Context, id internal.EventID, start, end time.Time) error
	RequestToken(context.Context) error
	Toggle(calendarID string)
	Refresh(context.Context) error
	Revoke(context.Context) error
}

type Server struct {
	ctx    context.Context
	agenda Agenda
	logger *slog.Logger
	router *mux.Router

	// SyncTimeout bounds how long a token request waits for the user to
	// answer the consent screen.
	SyncTimeout time.Duration
}

// New wires the routes. ctx outlives single requests and is used for token
// requests that finish after /api/sync has answered. callback receives the
// consent redirect, it may be nil.
func New(ctx context.Context, agenda Agenda, logger *slog.Logger, callback http.Handler) *Server {
	if logger == nil {
		logger = internal.Discard
	}
	s := &Server{
		ctx:         ctx,
		agenda:      agenda,
		logger:      logger,
		router:      mux.NewRouter(),
		SyncTimeout: defaultSyncTimeout,
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.state).Methods(http.MethodGet)
	api.HandleFunc("/appointments", s.saveAppointment).Methods(http.MethodPost)
	api.HandleFunc("/appointments/{id}", s.saveAppointment).Methods(http.MethodPut)
	api.HandleFunc("/appointments/{id}", s.deleteAppointment).Methods(http.MethodDelete)
	api.HandleFunc("/appointments/{id}/schedule", s.reschedule).Methods(http.MethodPatch)
	api.HandleFunc("/sync", s.sync).Methods(http.MethodPost)
	api.HandleFunc("/calendars/{id}/toggle", s.toggle).Methods(http.MethodPost)
	api.HandleFunc("/refresh", s.refresh).Methods(http.MethodPost)
	api.HandleFunc("/token", s.revoke).Methods(http.MethodDelete)

	if callback != nil {
		s.router.Handle("/oauth/callback", callback).Methods(http.MethodGet)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	AuthURL string `json:"authUrl,omitempty"`
}

type appointmentRequest struct {
	internal.Event

	// Hold keeps the appointment locally without sending it to a calendar.
	Hold bool `json:"hold,omitempty"`
}

type scheduleRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (s *Server) state(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.agenda.Snapshot())
}

func (s *Server) saveAppointment(w http.ResponseWriter, r *http.Request) {
	var req appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	e := req.Event
	if id, ok := mux.Vars(r)["id"]; ok {
		e.ID = internal.ParseEventID(id)
	}

	var err error
	if req.Hold && e.ID.IsZero() {
		err = s.agenda.Hold(r.Context(), &e)
	} else {
		err = s.agenda.Save(r.Context(), &e)
	}
	s.reply(w, err)
}

func (s *Server) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	id := internal.ParseEventID(mux.Vars(r)["id"])
	s.reply(w, s.agenda.Delete(r.Context(), id))
}

func (s *Server) reschedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	id := internal.ParseEventID(mux.Vars(r)["id"])
	s.reply(w, s.agenda.Reschedule(r.Context(), id, req.Start, req.End))
}

// sync starts a token request. It answers with the consent URL as soon as
// there is one, the request itself carries on in the background.
func (s *Server) sync(w http.ResponseWriter, r *http.Request) {
	urls := make(chan string, 1)
	unsubscribe := s.agenda.Subscribe(func(snap syncer.Snapshot) {
		if snap.AuthURL == "" {
			return
		}
		select {
		case urls <- snap.AuthURL:
		default:
		}
	})
	defer unsubscribe()

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.SyncTimeout)
		defer cancel()
		done <- s.agenda.RequestToken(ctx)
	}()

	select {
	case authURL := <-urls:
		s.writeJSON(w, http.StatusAccepted, result{Success: true, AuthURL: authURL})
	case err := <-done:
		s.reply(w, err)
	case <-r.Context().Done():
	}
}

func (s *Server) toggle(w http.ResponseWriter, r *http.Request) {
	s.agenda.Toggle(mux.Vars(r)["id"])
	s.writeJSON(w, http.StatusOK, s.agenda.Snapshot())
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	s.reply(w, s.agenda.Refresh(r.Context()))
}

func (s *Server) revoke(w http.ResponseWriter, r *http.Request) {
	s.reply(w, s.agenda.Revoke(r.Context()))
}

func (s *Server) reply(w http.ResponseWriter, err error) {
	if err != nil {
		s.fail(w, statusCode(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, result{Success: true})
}

func (s *Server) fail(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err)
	}
	s.writeJSON(w, code, result{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Unable to write response", "error", err)
	}
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, internal.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, internal.ErrInvalidEvent), errors.Is(err, internal.ErrNoCalendar):
		return http.StatusBadRequest
	case errors.Is(err, internal.ErrNotAuthenticated), errors.Is(err, internal.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, internal.ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, internal.ErrInitialization):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}
