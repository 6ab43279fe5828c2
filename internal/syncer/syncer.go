package syncer

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"

	"github.com/guilherme-santos/clinicagenda/internal"
)

type (
	Calendar = internal.Calendar
	Event    = internal.Event
	EventID  = internal.EventID
)

const (
	DefaultTokenKey  = "google_calendar_token"
	DefaultDaysAhead = 60
)

type ConfigStorage interface {
	Get(_ context.Context, key string) (string, bool, error)
	Upsert(_ context.Context, key, value string) error
}

// AppointmentStorage keeps appointments that were never pushed to a calendar.
type AppointmentStorage interface {
	PendingAppointments(context.Context) ([]*Event, error)
	CreateAppointment(context.Context, *Event) (int64, error)
	UpdateAppointment(context.Context, *Event) error
	DeleteAppointment(_ context.Context, id int64) error
}

type Storage interface {
	ConfigStorage
	AppointmentStorage
}

// Syncer keeps the dashboard's view of the external calendars: the token,
// the calendar directory, the merged events and which calendars are visible.
type Syncer struct {
	logger   *slog.Logger
	provider internal.Provider
	auth     internal.Authorizer
	storage  Storage
	tokens   TokenStore

	Scopes    []string
	DaysAhead int
	// From is the first day fetched, today when zero.
	From internal.Date

	// storeMu orders token store writes with the in-memory token.
	storeMu sync.Mutex

	mu        sync.Mutex
	state     State
	token     *oauth2.Token
	calendars []*Calendar
	events    []*Event
	pending   []*Event
	visible   Visibility
	loading   bool
	lastErr   string
	authURL   string
	subs      map[int]func(Snapshot)
	nextSub   int

	bg sync.WaitGroup
}

func New(logger *slog.Logger, provider internal.Provider, auth internal.Authorizer, storage Storage, tokenKey string) *Syncer {
	if logger == nil {
		logger = internal.Discard
	}
	if tokenKey == "" {
		tokenKey = DefaultTokenKey
	}
	return &Syncer{
		logger:    logger,
		provider:  provider,
		auth:      auth,
		storage:   storage,
		tokens:    NewTokenStore(storage, tokenKey),
		DaysAhead: DefaultDaysAhead,
		state:     StateUninitialized,
		subs:      make(map[int]func(Snapshot)),
	}
}

// Snapshot is what the dashboard renders.
type Snapshot struct {
	State              State       `json:"state"`
	Events             []*Event    `json:"events"`
	Pending            []*Event    `json:"pending"`
	IsLoading          bool        `json:"isLoading"`
	Error              string      `json:"error,omitempty"`
	UserCalendars      []*Calendar `json:"userCalendars"`
	VisibleCalendarIDs []string    `json:"visibleCalendarIds"`
	AuthURL            string      `json:"authUrl,omitempty"`
}

func (s *Syncer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Syncer) snapshotLocked() Snapshot {
	return Snapshot{
		State:              s.state,
		Events:             s.visible.Filter(s.events),
		Pending:            append([]*Event{}, s.pending...),
		IsLoading:          s.loading,
		Error:              s.lastErr,
		UserCalendars:      append([]*Calendar{}, s.calendars...),
		VisibleCalendarIDs: s.visible.IDs(),
		AuthURL:            s.authURL,
	}
}

// AllEvents returns the merged collection, ignoring visibility.
func (s *Syncer) AllEvents() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Event{}, s.events...)
}

func (s *Syncer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned func removes it.
func (s *Syncer) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// changed notifies subscribers. Must be called without holding mu.
func (s *Syncer) changed() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// Wait blocks until background revocations have finished.
func (s *Syncer) Wait() {
	s.bg.Wait()
}

func (s *Syncer) Toggle(calendarID string) {
	s.mu.Lock()
	s.visible.Toggle(calendarID)
	s.mu.Unlock()

	s.changed()
}

func (s *Syncer) setError(err error) {
	s.mu.Lock()
	if err == nil {
		s.lastErr = ""
	} else {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()
}

func (s *Syncer) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()

	s.changed()
}

func (s *Syncer) currentToken() *oauth2.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Syncer) requireToken() (*oauth2.Token, error) {
	tok := s.currentToken()
	if tok == nil {
		return nil, internal.ErrNotAuthenticated
	}
	return tok, nil
}

func (s *Syncer) loadPending(ctx context.Context) {
	pending, err := s.storage.PendingAppointments(ctx)
	if err != nil {
		s.logger.Warn("Unable to load pending appointments", "error", err)
		return
	}
	s.mu.Lock()
	s.pending = pending
	s.mu.Unlock()
}
