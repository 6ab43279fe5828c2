package caldav

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/guilherme-santos/clinicagenda/internal"
)

const userAgent = "clinicagenda/1.0"

var defaultPalette = []string{"#039be5", "#33b679", "#f6bf26", "#e67c73", "#8e24aa", "#616161"}

// Client talks to a CalDAV server. Tokens are the account credentials,
// sent as HTTP basic auth.
type Client struct {
	endpoint string
	username string
	password string
	palette  []string
	logger   *slog.Logger

	Transport http.RoundTripper
}

func NewClient(endpoint, username, password string, palette []string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = internal.Discard
	}
	if len(palette) == 0 {
		palette = defaultPalette
	}
	return &Client{
		endpoint:  endpoint,
		username:  username,
		password:  password,
		palette:   palette,
		logger:    logger.With("provider", "caldav"),
		Transport: http.DefaultTransport,
	}
}

func (c *Client) Init(context.Context) error {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("caldav: invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("caldav: invalid server url %q", c.endpoint)
	}
	return nil
}

// RequestToken wraps the configured credentials. CalDAV servers have no
// consent screen, so prompt and notify are ignored.
func (c *Client) RequestToken(_ context.Context, _ []string, _ internal.Prompt, _ func(string)) (*oauth2.Token, error) {
	if c.username == "" || c.password == "" {
		return nil, errors.New("caldav: username and password are required")
	}
	return &oauth2.Token{
		AccessToken: base64.StdEncoding.EncodeToString([]byte(c.username + ":" + c.password)),
		TokenType:   "Basic",
	}, nil
}

// RevokeToken only forgets the token; app passwords are revoked on the server.
func (c *Client) RevokeToken(context.Context, *oauth2.Token) error {
	c.logger.Debug("Nothing to revoke on the server")
	return nil
}

func (c *Client) Calendars(ctx context.Context, tok *oauth2.Token) ([]*internal.Calendar, error) {
	dav, err := c.dav(tok)
	if err != nil {
		return nil, err
	}

	principal, err := dav.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("caldav: finding principal: %w", err)
	}
	homeSet, err := dav.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("caldav: finding calendar home set: %w", err)
	}
	found, err := dav.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("caldav: finding calendars: %w", err)
	}

	var cals []*internal.Calendar
	for _, cal := range found {
		if !supportsEvents(cal) {
			continue
		}
		name := cal.Name
		if name == "" {
			name = path.Base(strings.TrimSuffix(cal.Path, "/"))
		}
		cals = append(cals, &internal.Calendar{
			ID:    cal.Path,
			Name:  name,
			Color: c.palette[len(cals)%len(c.palette)],
		})
	}
	return cals, nil
}

func supportsEvents(cal caldav.Calendar) bool {
	if len(cal.SupportedComponentSet) == 0 {
		return true
	}
	for _, comp := range cal.SupportedComponentSet {
		if comp == "VEVENT" {
			return true
		}
	}
	return false
}

func (c *Client) Events(ctx context.Context, tok *oauth2.Token, calendarID string, from, to internal.Date) ([]*internal.Event, error) {
	dav, err := c.dav(tok)
	if err != nil {
		return nil, err
	}

	logger := c.logger.With("calendar", calendarID)
	logger.Debug("Checking for events")

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     "VCALENDAR",
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: from.Time,
				End:   to.Time,
			}},
		},
	}
	objects, err := dav.QueryCalendar(ctx, calendarID, query)
	if err != nil {
		logger.Debug("Unable to get list of events", "error", err)
		return nil, fmt.Errorf("caldav: listing events: %w", err)
	}

	var events []*internal.Event
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		id := strings.TrimSuffix(path.Base(obj.Path), ".ics")
		for _, comp := range obj.Data.Children {
			if e := newEvent(id, comp); e != nil {
				events = append(events, e)
			}
		}
	}
	logger.Debug("Events fetched", "count", len(events))
	return events, nil
}

func (c *Client) CreateEvent(ctx context.Context, tok *oauth2.Token, calendarID string, req *internal.Event) (string, error) {
	id := uuid.NewString()
	if err := c.put(ctx, tok, calendarID, id, req, "creating"); err != nil {
		return "", err
	}
	return id, nil
}

func (c *Client) UpdateEvent(ctx context.Context, tok *oauth2.Token, calendarID, id string, req *internal.Event) error {
	return c.put(ctx, tok, calendarID, id, req, "updating")
}

func (c *Client) put(ctx context.Context, tok *oauth2.Token, calendarID, id string, req *internal.Event, action string) error {
	msg := fmt.Sprintf("%s event: %q on %s... ", action, req.Summary(), req.StartsAt.Format(time.RFC3339))
	defer func() {
		c.logger.Debug(msg, "calendar", calendarID)
	}()

	dav, err := c.dav(tok)
	if err != nil {
		msg += "❌"
		return err
	}
	if _, err := dav.PutCalendarObject(ctx, objectPath(calendarID, id), newCalendar(id, req, time.Now())); err != nil {
		msg += "❌"
		return fmt.Errorf("caldav: %s event: %w", action, err)
	}
	msg += "✅"
	return nil
}

func (c *Client) DeleteEvent(ctx context.Context, tok *oauth2.Token, calendarID, id string) error {
	msg := fmt.Sprintf("deleting event %s... ", id)
	defer func() {
		c.logger.Debug(msg, "calendar", calendarID)
	}()

	dav, err := c.dav(tok)
	if err != nil {
		msg += "❌"
		return err
	}
	if err := dav.RemoveAll(ctx, objectPath(calendarID, id)); err != nil {
		msg += "❌"
		return fmt.Errorf("caldav: deleting event: %w", err)
	}
	msg += "✅"
	return nil
}

func (c *Client) dav(tok *oauth2.Token) (*caldav.Client, error) {
	if tok == nil {
		return nil, internal.ErrNotAuthenticated
	}
	httpClient := &http.Client{
		Transport: &authTransport{
			token:     tok,
			Transport: c.Transport,
		},
	}
	dav, err := caldav.NewClient(httpClient, c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("caldav: creating client: %w", err)
	}
	return dav, nil
}

func objectPath(calendarID, id string) string {
	return path.Join(calendarID, id+".ics")
}

// authTransport adds the token to every request and reports a 401 as
// internal.ErrUnauthorized.
type authTransport struct {
	token     *oauth2.Token
	Transport http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	t.token.SetAuthHeader(req)
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, fmt.Errorf("caldav: %w: %s %s", internal.ErrUnauthorized, req.Method, req.URL.Path)
	}
	return resp, nil
}
