package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/guilherme-santos/clinicagenda/internal"
)

var testToken = &oauth2.Token{AccessToken: "T", TokenType: "Bearer"}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := NewConfig("client-id", "secret", "http://localhost:8080"+CallbackPath)
	cfg.Endpoint = oauth2.Endpoint{
		AuthURL:  srv.URL + "/auth",
		TokenURL: srv.URL + "/token",
	}
	c := NewClientFromConfig(cfg, nil)
	c.svcOpts = []option.ClientOption{option.WithEndpoint(srv.URL + "/")}
	c.RevokeURL = srv.URL + "/revoke"
	return c, srv
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func googleError(code int, reason string) map[string]any {
	return map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": reason,
			"errors":  []map[string]any{{"reason": reason, "message": reason}},
		},
	}
}

func TestInit(t *testing.T) {
	c := NewClientFromConfig(NewConfig("", "", ""), nil)
	assert.Error(t, c.Init(context.Background()))

	c = NewClientFromConfig(NewConfig("id", "secret", "http://localhost:8080"+CallbackPath), nil)
	assert.NoError(t, c.Init(context.Background()))
}

func TestCalendarsPaginates(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/users/me/calendarList"), r.URL.Path)
		assert.Equal(t, "Bearer T", r.Header.Get("Authorization"))

		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(t, w, http.StatusOK, map[string]any{
				"items": []map[string]any{
					{"id": "cal1", "summary": "Dra. Ana", "backgroundColor": "#f00"},
				},
				"nextPageToken": "p2",
			})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"items": []map[string]any{
				{"id": "cal2", "summary": "luis@example.com", "summaryOverride": "Dr. Luis", "backgroundColor": "#0f0"},
			},
		})
	})

	cals, err := c.Calendars(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, []*internal.Calendar{
		{ID: "cal1", Name: "Dra. Ana", Color: "#f00"},
		{ID: "cal2", Name: "Dr. Luis", Color: "#0f0"},
	}, cals)
}

func TestEventsListsUpcomingWindow(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/calendars/cal1/events"), r.URL.Path)

		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("singleEvents"))
		assert.Equal(t, "startTime", q.Get("orderBy"))
		assert.Equal(t, "2026-10-20T00:00:00Z", q.Get("timeMin"))
		assert.Equal(t, "2026-12-19T00:00:00Z", q.Get("timeMax"))

		writeJSON(t, w, http.StatusOK, map[string]any{
			"items": []map[string]any{
				{
					"id":      "e1",
					"summary": "Juan - Consulta",
					"status":  "confirmed",
					"start":   map[string]string{"dateTime": "2026-10-20T09:00:00Z"},
					"end":     map[string]string{"dateTime": "2026-10-20T10:00:00Z"},
				},
				{"id": "e2", "status": "cancelled"},
			},
		})
	})

	from := internal.NewDate(2026, time.October, 20, time.UTC)
	events, err := c.Events(context.Background(), testToken, "cal1", from, from.AddDate(0, 0, 60))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].ID.External())
	assert.Equal(t, "Juan", events[0].Patient)
}

func TestEventsUnauthorized(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, googleError(http.StatusUnauthorized, "authError"))
	})

	_, err := c.Events(context.Background(), testToken, "cal1", internal.Today(), internal.Today())
	assert.ErrorIs(t, err, internal.ErrUnauthorized)

	_, err = c.Calendars(context.Background(), testToken)
	assert.ErrorIs(t, err, internal.ErrUnauthorized)
}

func TestEventsServerError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusForbidden, googleError(http.StatusForbidden, "forbidden"))
	})

	_, err := c.Events(context.Background(), testToken, "cal1", internal.Today(), internal.Today())
	require.Error(t, err)
	assert.NotErrorIs(t, err, internal.ErrUnauthorized)
}

func TestRateLimitRetryStopsOnCancel(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusForbidden, googleError(http.StatusForbidden, "rateLimitExceeded"))
	})

	calls := map[string]func(ctx context.Context) error{
		"calendars": func(ctx context.Context) error {
			_, err := c.Calendars(ctx, testToken)
			return err
		},
		"events": func(ctx context.Context) error {
			_, err := c.Events(ctx, testToken, "cal1", internal.Today(), internal.Today())
			return err
		},
		"create": func(ctx context.Context) error {
			_, err := c.CreateEvent(ctx, testToken, "cal1", &internal.Event{Patient: "Juan"})
			return err
		},
		"update": func(ctx context.Context) error {
			return c.UpdateEvent(ctx, testToken, "cal1", "e1", &internal.Event{Patient: "Juan"})
		},
		"delete": func(ctx context.Context) error {
			return c.DeleteEvent(ctx, testToken, "cal1", "e1")
		},
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			start := time.Now()
			err := call(ctx)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			assert.Less(t, time.Since(start), defaultSleep)
		})
	}
}

func TestCreateEvent(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.True(t, strings.HasSuffix(r.URL.Path, "/calendars/cal1/events"), r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Juan - Consulta", body["summary"])
		props := body["extendedProperties"].(map[string]any)["private"].(map[string]any)
		assert.Equal(t, "Dra. Ana", props[propProfessional])

		writeJSON(t, w, http.StatusOK, map[string]any{"id": "created-1"})
	})

	start := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	id, err := c.CreateEvent(context.Background(), testToken, "cal1", &internal.Event{
		Patient:      "Juan",
		Procedure:    "Consulta",
		Professional: "Dra. Ana",
		StartsAt:     start,
		EndsAt:       start.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "created-1", id)
}

func TestUpdateEventPatches(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/calendars/cal1/events/e1"), r.URL.Path)
		writeJSON(t, w, http.StatusOK, map[string]any{"id": "e1"})
	})

	start := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	err := c.UpdateEvent(context.Background(), testToken, "cal1", "e1", &internal.Event{StartsAt: start, EndsAt: start.Add(time.Hour)})
	assert.NoError(t, err)
}

func TestDeleteEvent(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		switch path.Base(r.URL.Path) {
		case "gone":
			writeJSON(t, w, http.StatusGone, googleError(http.StatusGone, "deleted"))
		case "expired":
			writeJSON(t, w, http.StatusUnauthorized, googleError(http.StatusUnauthorized, "authError"))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	assert.NoError(t, c.DeleteEvent(context.Background(), testToken, "cal1", "e1"))
	assert.NoError(t, c.DeleteEvent(context.Background(), testToken, "cal1", "gone"), "already deleted counts as success")
	assert.ErrorIs(t, c.DeleteEvent(context.Background(), testToken, "cal1", "expired"), internal.ErrUnauthorized)
}

func TestRequestTokenThroughCallback(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		writeJSON(t, w, http.StatusOK, map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"scope":         "https://www.googleapis.com/auth/calendar",
		})
	})

	authURLs := make(chan string, 1)
	type result struct {
		tok *oauth2.Token
		err error
	}
	done := make(chan result, 1)
	go func() {
		tok, err := c.RequestToken(context.Background(), nil, internal.PromptConsent, func(authURL string) {
			authURLs <- authURL
		})
		done <- result{tok, err}
	}()

	authURL, err := url.Parse(<-authURLs)
	require.NoError(t, err)
	assert.Equal(t, "consent", authURL.Query().Get("prompt"))
	assert.Equal(t, "offline", authURL.Query().Get("access_type"))
	state := authURL.Query().Get("state")
	require.NotEmpty(t, state)

	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, CallbackPath+"?state="+url.QueryEscape(state)+"&code=the-code", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "All good")

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "new-access", res.tok.AccessToken)
	assert.Equal(t, "https://www.googleapis.com/auth/calendar", internal.TokenScope(res.tok))
}

func TestRequestTokenConsentRefused(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	})

	authURLs := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		_, err := c.RequestToken(context.Background(), nil, internal.PromptNone, func(authURL string) {
			authURLs <- authURL
		})
		done <- err
	}()

	authURL, err := url.Parse(<-authURLs)
	require.NoError(t, err)
	assert.Empty(t, authURL.Query().Get("prompt"))

	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, CallbackPath+"?state="+url.QueryEscape(authURL.Query().Get("state"))+"&error=access_denied", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.ErrorContains(t, <-done, "access_denied")
}

func TestRequestTokenCancelled(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := c.RequestToken(ctx, nil, internal.PromptConsent, func(string) { cancel() })
	assert.ErrorIs(t, err, context.Canceled)

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Empty(t, c.pending)
}

func TestListenCallbackReportsBusyAddress(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	c := NewClientFromConfig(NewConfig("id", "secret", "http://localhost"+CallbackPath), nil)
	stop, errs := c.ListenCallback(l.Addr().String())
	defer stop()

	select {
	case err := <-errs:
		assert.ErrorContains(t, err, "callback server")
	case <-time.After(2 * time.Second):
		t.Fatal("listener error was not reported")
	}
}

func TestCallbackUnknownState(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, CallbackPath+"?state=forged&code=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRevokeToken(t *testing.T) {
	var (
		mu      sync.Mutex
		revoked []string
	)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/revoke", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		form, err := url.ParseQuery(string(body))
		require.NoError(t, err)

		token := form.Get("token")
		if token == "unknown" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_token"}`)
			return
		}
		mu.Lock()
		revoked = append(revoked, token)
		mu.Unlock()
	})

	require.NoError(t, c.RevokeToken(context.Background(), &oauth2.Token{AccessToken: "a", RefreshToken: "r"}))
	require.NoError(t, c.RevokeToken(context.Background(), &oauth2.Token{AccessToken: "a"}))
	require.NoError(t, c.RevokeToken(context.Background(), nil))

	mu.Lock()
	assert.Equal(t, []string{"r", "a"}, revoked)
	mu.Unlock()

	err := c.RevokeToken(context.Background(), &oauth2.Token{AccessToken: "unknown"})
	assert.ErrorContains(t, err, "invalid_token")
}
