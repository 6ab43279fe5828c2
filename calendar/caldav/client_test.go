package caldav

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilherme-santos/clinicagenda/internal"
)

func TestInit(t *testing.T) {
	assert.NoError(t, NewClient("https://dav.example.com/", "", "", nil, nil).Init(context.Background()))
	assert.Error(t, NewClient("dav.example.com", "", "", nil, nil).Init(context.Background()))
}

func TestRequestTokenUsesBasicAuth(t *testing.T) {
	c := NewClient("https://dav.example.com/", "ana", "secret", nil, nil)
	tok, err := c.RequestToken(context.Background(), nil, internal.PromptConsent, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	tok.SetAuthHeader(req)
	user, pass, ok := req.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "ana", user)
	assert.Equal(t, "secret", pass)

	_, err = NewClient("https://dav.example.com/", "", "", nil, nil).RequestToken(context.Background(), nil, internal.PromptConsent, nil)
	assert.Error(t, err)
}

func TestUnauthorizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		if _, _, ok := r.BasicAuth(); !ok {
			t.Error("request without credentials")
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "ana", "wrong", nil, nil)
	tok, err := c.RequestToken(context.Background(), nil, internal.PromptNone, nil)
	require.NoError(t, err)

	_, err = c.Calendars(context.Background(), tok)
	assert.ErrorIs(t, err, internal.ErrUnauthorized)

	_, err = c.Events(context.Background(), tok, "/calendars/ana/default/", internal.Today(), internal.Today())
	assert.ErrorIs(t, err, internal.ErrUnauthorized)

	err = c.DeleteEvent(context.Background(), tok, "/calendars/ana/default/", "e1")
	assert.ErrorIs(t, err, internal.ErrUnauthorized)
}

func TestCallsRequireToken(t *testing.T) {
	c := NewClient("https://dav.example.com/", "", "", nil, nil)
	_, err := c.Calendars(context.Background(), nil)
	assert.ErrorIs(t, err, internal.ErrNotAuthenticated)
}
