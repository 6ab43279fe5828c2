package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/guilherme-santos/clinicagenda/internal"
)

const (
	defaultSleep     = 5 * time.Second
	defaultRevokeURL = "https://oauth2.googleapis.com/revoke"

	// CallbackPath is where the consent screen redirects back to.
	CallbackPath = "/oauth/callback"
)

var DefaultScopes = []string{calendar.CalendarScope}

type Client struct {
	oauthCfg *oauth2.Config
	logger   *slog.Logger
	svcOpts  []option.ClientOption

	RevokeURL  string
	HTTPClient *http.Client

	mu      sync.Mutex
	pending map[string]chan authResult
}

type authResult struct {
	code string
	err  error
}

// NewClient builds a client from a credentials file downloaded from the
// Google Cloud console.
func NewClient(credJSON []byte, logger *slog.Logger) (*Client, error) {
	oauthCfg, err := google.ConfigFromJSON(credJSON, DefaultScopes...)
	if err != nil {
		return nil, fmt.Errorf("google: parsing credentials file: %v", err)
	}
	return NewClientFromConfig(oauthCfg, logger), nil
}

func NewClientFromConfig(oauthCfg *oauth2.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = internal.Discard
	}
	return &Client{
		oauthCfg:   oauthCfg,
		logger:     logger.With("provider", "google"),
		RevokeURL:  defaultRevokeURL,
		HTTPClient: http.DefaultClient,
		pending:    make(map[string]chan authResult),
	}
}

// NewConfig returns the OAuth configuration for an installed client.
func NewConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       DefaultScopes,
	}
}

// SetRedirectURL points the consent screen back at this process.
func (c *Client) SetRedirectURL(redirectURL string) {
	c.oauthCfg.RedirectURL = redirectURL
}

func (c *Client) Init(context.Context) error {
	if c.oauthCfg == nil || c.oauthCfg.ClientID == "" {
		return errors.New("google: client id is not configured")
	}
	if c.oauthCfg.RedirectURL == "" {
		return errors.New("google: redirect url is not configured")
	}
	return nil
}

func (c *Client) Calendars(ctx context.Context, tok *oauth2.Token) ([]*internal.Calendar, error) {
	svc, err := c.calendarSvc(ctx, tok)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Checking for calendars")

	var (
		cals          []*internal.Calendar
		nextPageToken string
	)
	for {
		list, err := svc.CalendarList.List().Context(ctx).PageToken(nextPageToken).Do()
		if err != nil {
			if shouldRetry(err) {
				if err := pause(ctx); err != nil {
					return nil, err
				}
				continue
			}
			return nil, wrapErr(err)
		}
		for _, item := range list.Items {
			cals = append(cals, newCalendar(item))
		}
		nextPageToken = list.NextPageToken
		if nextPageToken == "" {
			break
		}
	}
	return cals, nil
}

func (c *Client) Events(ctx context.Context, tok *oauth2.Token, calendarID string, from, to internal.Date) ([]*internal.Event, error) {
	svc, err := c.calendarSvc(ctx, tok)
	if err != nil {
		return nil, err
	}
	eventsCall := svc.Events.
		List(calendarID).
		Context(ctx).
		ShowDeleted(false).
		SingleEvents(true).
		OrderBy("startTime")
	if !from.IsZero() {
		eventsCall = eventsCall.TimeMin(from.Format(time.RFC3339))
	}
	if !to.IsZero() {
		eventsCall = eventsCall.TimeMax(to.Format(time.RFC3339))
	}

	it := newEventIterator()
	go c.events(ctx, calendarID, eventsCall, it.events)
	return drain(it)
}

func (c *Client) events(ctx context.Context, calendarID string, call *calendar.EventsListCall, eventCh chan eventOrError) {
	logger := c.logger.With("calendar", calendarID)
	logger.Debug("Checking for events")

	defer close(eventCh)

	var (
		nextPageToken string
		count         int
	)
	for {
		events, err := call.PageToken(nextPageToken).Do()
		if err != nil {
			if shouldRetry(err) {
				if err = pause(ctx); err == nil {
					continue
				}
			} else {
				err = wrapErr(err)
			}
			logger.Debug("Unable to get list of events", "error", err)
			eventCh <- eventOrError{err: err}
			return
		}

		for _, item := range events.Items {
			e := newEvent(item)
			if e == nil {
				continue
			}
			count++
			eventCh <- eventOrError{e: e}
		}
		nextPageToken = events.NextPageToken
		if nextPageToken == "" {
			break
		}
	}
	logger.Debug("Events fetched", "count", count)
}

func (c *Client) CreateEvent(ctx context.Context, tok *oauth2.Token, calendarID string, req *internal.Event) (string, error) {
	msg := fmt.Sprintf("creating event: %q on %s... ", req.Summary(), req.StartsAt.Format(time.RFC3339))
	defer func() {
		c.logger.Debug(msg, "calendar", calendarID)
	}()

	svc, err := c.calendarSvc(ctx, tok)
	if err != nil {
		msg += "❌"
		return "", err
	}

	for {
		gevent, err := svc.Events.Insert(calendarID, newGoogleEvent(req)).Context(ctx).Do()
		if err == nil {
			msg += "✅"
			return gevent.Id, nil
		}
		if shouldRetry(err) {
			if err := pause(ctx); err != nil {
				msg += "❌"
				return "", err
			}
			continue
		}
		msg += "❌"
		return "", wrapErr(err)
	}
}

// UpdateEvent patches the event so fields this client does not manage, like
// attendees and reminders, are left as they are.
func (c *Client) UpdateEvent(ctx context.Context, tok *oauth2.Token, calendarID, id string, req *internal.Event) error {
	msg := fmt.Sprintf("updating event: %q on %s... ", req.Summary(), req.StartsAt.Format(time.RFC3339))
	defer func() {
		c.logger.Debug(msg, "calendar", calendarID)
	}()

	svc, err := c.calendarSvc(ctx, tok)
	if err != nil {
		msg += "❌"
		return err
	}

	for {
		_, err := svc.Events.Patch(calendarID, id, newGoogleEvent(req)).Context(ctx).Do()
		if err == nil {
			msg += "✅"
			return nil
		}
		if shouldRetry(err) {
			if err := pause(ctx); err != nil {
				msg += "❌"
				return err
			}
			continue
		}
		msg += "❌"
		return wrapErr(err)
	}
}

func (c *Client) DeleteEvent(ctx context.Context, tok *oauth2.Token, calendarID, id string) error {
	msg := fmt.Sprintf("deleting event %s... ", id)
	defer func() {
		c.logger.Debug(msg, "calendar", calendarID)
	}()

	svc, err := c.calendarSvc(ctx, tok)
	if err != nil {
		msg += "❌"
		return err
	}
	for {
		err = svc.Events.Delete(calendarID, id).Context(ctx).Do()
		if err == nil || alreadyDeleted(err) {
			msg += "✅"
			return nil
		}
		if shouldRetry(err) {
			if err := pause(ctx); err != nil {
				msg += "❌"
				return err
			}
			continue
		}
		msg += "❌"
		return wrapErr(err)
	}
}

// RequestToken sends the user to the consent screen and waits for the
// redirect to reach ServeHTTP.
func (c *Client) RequestToken(ctx context.Context, scopes []string, prompt internal.Prompt, notify func(authURL string)) (*oauth2.Token, error) {
	cfg := *c.oauthCfg
	if len(scopes) > 0 {
		cfg.Scopes = scopes
	}

	state := "clinicagenda-" + uuid.NewString()
	ch := make(chan authResult, 1)

	c.mu.Lock()
	c.pending[state] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, state)
		c.mu.Unlock()
	}()

	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if prompt == internal.PromptConsent {
		opts = append(opts, oauth2.ApprovalForce)
	}
	authURL := cfg.AuthCodeURL(state, opts...)
	c.logger.Info("Waiting for consent", "url", authURL)
	if notify != nil {
		notify(authURL)
	}

	var res authResult
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}

	tok, err := cfg.Exchange(ctx, res.code)
	if err != nil {
		return nil, fmt.Errorf("google: unable to retrieve token: %w", err)
	}
	return tok, nil
}

// ServeHTTP receives the consent redirect and hands the code to the
// RequestToken call waiting on the same state.
func (c *Client) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()

	c.mu.Lock()
	ch, ok := c.pending[query.Get("state")]
	c.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintln(w, "oauth link is not valid")
		return
	}

	res := authResult{code: query.Get("code")}
	if msg := query.Get("error"); msg != "" {
		res.err = fmt.Errorf("google: consent refused: %s", msg)
	} else if res.code == "" {
		res.err = errors.New("google: consent redirect without code")
	}

	select {
	case ch <- res:
	default:
	}

	if res.err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintln(w, "Unable to retrieve token:", res.err)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "All good, you can close this window!")
}

// ListenCallback serves the consent redirect on addr, for flows that run
// outside the dashboard server. Listener failures arrive on errs.
func (c *Client) ListenCallback(addr string) (stop func(), errs <-chan error) {
	mux := http.NewServeMux()
	mux.Handle(CallbackPath, c)
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("google: callback server: %w", err)
		}
	}()
	return func() { _ = server.Shutdown(context.Background()) }, errCh
}

// RevokeToken invalidates tok on Google's side. The refresh token is revoked
// when present since that also invalidates its access tokens.
func (c *Client) RevokeToken(ctx context.Context, tok *oauth2.Token) error {
	if tok == nil {
		return nil
	}
	value := tok.RefreshToken
	if value == "" {
		value = tok.AccessToken
	}

	form := url.Values{"token": {value}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("google: revoking token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("google: revoking token: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	c.logger.Debug("Token revoked")
	return nil
}

func (c *Client) calendarSvc(ctx context.Context, tok *oauth2.Token) (*calendar.Service, error) {
	if tok == nil {
		return nil, internal.ErrNotAuthenticated
	}
	httpClient := c.oauthCfg.Client(ctx, tok)
	opts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, c.svcOpts...)
	return calendar.NewService(ctx, opts...)
}

// wrapErr reports 401 responses as internal.ErrUnauthorized.
func wrapErr(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == http.StatusUnauthorized {
		return fmt.Errorf("google: %w: %v", internal.ErrUnauthorized, err)
	}
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		return fmt.Errorf("google: %w: %v", internal.ErrUnauthorized, err)
	}
	return fmt.Errorf("google: %w", err)
}

// pause waits before retrying a rate limited call.
func pause(ctx context.Context) error {
	select {
	case <-time.After(defaultSleep):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func shouldRetry(err error) bool {
	return errIsReason(err, "rateLimitExceeded")
}

func alreadyDeleted(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == http.StatusGone {
		return true
	}
	return errIsReason(err, "deleted")
}

func errIsReason(err error, reason string) bool {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return false
	}

	for _, err := range gErr.Errors {
		switch err.Reason {
		case reason:
			return true
		}
	}
	return false
}
