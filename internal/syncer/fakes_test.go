package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/guilherme-santos/clinicagenda/internal"
)

type createCall struct {
	CalendarID string
	Event      Event
}

type updateCall struct {
	CalendarID string
	ID         string
	Event      Event
}

type deleteCall struct {
	CalendarID string
	ID         string
}

type fakeProvider struct {
	mu sync.Mutex

	calendars    []*Calendar
	calendarsErr error
	events       map[string][]Event
	eventsErr    map[string]error
	createErr    error
	updateErr    error
	deleteErr    error

	// barrier makes every Events call wait until this many calls are in flight.
	barrier  int
	arrived  int
	released chan struct{}

	calendarsCalls int
	eventsCalls    int
	created        []createCall
	updated        []updateCall
	deleted        []deleteCall
	tokens         []*oauth2.Token
	windows        [][2]internal.Date
}

func newFakeProvider(cals ...*Calendar) *fakeProvider {
	return &fakeProvider{
		calendars: cals,
		events:    make(map[string][]Event),
		eventsErr: make(map[string]error),
		released:  make(chan struct{}),
	}
}

func (p *fakeProvider) Calendars(_ context.Context, tok *oauth2.Token) ([]*Calendar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calendarsCalls++
	p.tokens = append(p.tokens, tok)
	if p.calendarsErr != nil {
		return nil, p.calendarsErr
	}
	res := make([]*Calendar, len(p.calendars))
	for i, c := range p.calendars {
		cp := *c
		res[i] = &cp
	}
	return res, nil
}

func (p *fakeProvider) Events(_ context.Context, _ *oauth2.Token, calendarID string, from, to internal.Date) ([]*Event, error) {
	p.mu.Lock()
	p.eventsCalls++
	p.windows = append(p.windows, [2]internal.Date{from, to})
	p.arrived++
	if p.barrier > 0 && p.arrived == p.barrier {
		close(p.released)
	}
	barrier := p.barrier
	p.mu.Unlock()

	if barrier > 0 {
		select {
		case <-p.released:
		case <-time.After(2 * time.Second):
			return nil, errors.New("event fetches were not issued concurrently")
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.eventsErr[calendarID]; err != nil {
		return nil, err
	}
	var res []*Event
	for _, e := range p.events[calendarID] {
		cp := e
		res = append(res, &cp)
	}
	return res, nil
}

func (p *fakeProvider) CreateEvent(_ context.Context, _ *oauth2.Token, calendarID string, e *Event) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.createErr != nil {
		return "", p.createErr
	}
	p.created = append(p.created, createCall{CalendarID: calendarID, Event: *e})
	id := "new-" + e.Patient
	created := *e
	created.ID = internal.ExternalID(id)
	p.events[calendarID] = append(p.events[calendarID], created)
	return id, nil
}

func (p *fakeProvider) UpdateEvent(_ context.Context, _ *oauth2.Token, calendarID, id string, e *Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.updateErr != nil {
		return p.updateErr
	}
	p.updated = append(p.updated, updateCall{CalendarID: calendarID, ID: id, Event: *e})
	for i, cur := range p.events[calendarID] {
		if cur.ID.External() == id {
			updated := *e
			updated.ID = cur.ID
			p.events[calendarID][i] = updated
		}
	}
	return nil
}

func (p *fakeProvider) DeleteEvent(_ context.Context, _ *oauth2.Token, calendarID, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.deleteErr != nil {
		return p.deleteErr
	}
	p.deleted = append(p.deleted, deleteCall{CalendarID: calendarID, ID: id})
	events := p.events[calendarID][:0]
	for _, cur := range p.events[calendarID] {
		if cur.ID.External() != id {
			events = append(events, cur)
		}
	}
	p.events[calendarID] = events
	return nil
}

func (p *fakeProvider) counts() (calendars, events int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calendarsCalls, p.eventsCalls
}

type fakeAuth struct {
	mu sync.Mutex

	initErr    error
	token      *oauth2.Token
	requestErr error
	revokeErr  error
	authURL    string

	// revokeGate, when set, holds RevokeToken until it is closed.
	revokeGate chan struct{}
	// onRequest, when set, answers RequestToken instead of the fields
	// above. n counts requests from 1.
	onRequest func(ctx context.Context, n int, notify func(string)) (*oauth2.Token, error)

	requests []internal.Prompt
	revoked  []*oauth2.Token
}

func (a *fakeAuth) Init(context.Context) error {
	return a.initErr
}

func (a *fakeAuth) RequestToken(ctx context.Context, _ []string, prompt internal.Prompt, notify func(string)) (*oauth2.Token, error) {
	a.mu.Lock()
	a.requests = append(a.requests, prompt)
	tok, err, authURL := a.token, a.requestErr, a.authURL
	n, onRequest := len(a.requests), a.onRequest
	a.mu.Unlock()

	if onRequest != nil {
		return onRequest(ctx, n, notify)
	}

	if authURL != "" && notify != nil {
		notify(authURL)
	}
	return tok, err
}

func (a *fakeAuth) RevokeToken(_ context.Context, tok *oauth2.Token) error {
	if a.revokeGate != nil {
		<-a.revokeGate
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked = append(a.revoked, tok)
	return a.revokeErr
}

func (a *fakeAuth) requestCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

func (a *fakeAuth) revokedTokens() []*oauth2.Token {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*oauth2.Token{}, a.revoked...)
}

type fakeStorage struct {
	mu sync.Mutex

	values  map[string]string
	getErr  error
	pending []*Event
	nextID  int64
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{values: make(map[string]string)}
}

func (s *fakeStorage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.getErr != nil {
		return "", false, s.getErr
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *fakeStorage) Upsert(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *fakeStorage) value(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

func (s *fakeStorage) PendingAppointments(context.Context) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Event{}, s.pending...), nil
}

func (s *fakeStorage) CreateAppointment(_ context.Context, e *Event) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	cp := *e
	cp.ID = internal.LocalID(s.nextID)
	s.pending = append(s.pending, &cp)
	return s.nextID, nil
}

func (s *fakeStorage) UpdateAppointment(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, cur := range s.pending {
		if cur.ID == e.ID {
			cp := *e
			s.pending[i] = &cp
			return nil
		}
	}
	return internal.ErrNotFound
}

func (s *fakeStorage) DeleteAppointment(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, cur := range s.pending {
		if cur.ID.Local() == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return nil
		}
	}
	return internal.ErrNotFound
}
