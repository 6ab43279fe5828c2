package internal

import (
	"context"

	"golang.org/x/oauth2"
)

type Mux interface {
	Get(platform string) (Provider, error)
}

// Provider is an external calendar service. Every call is scoped to the
// bearer token it receives and reports a 401 as ErrUnauthorized.
type Provider interface {
	Calendars(_ context.Context, _ *oauth2.Token) ([]*Calendar, error)
	Events(_ context.Context, _ *oauth2.Token, calendarID string, from, to Date) ([]*Event, error)
	CreateEvent(_ context.Context, _ *oauth2.Token, calendarID string, _ *Event) (string, error)
	UpdateEvent(_ context.Context, _ *oauth2.Token, calendarID, id string, _ *Event) error
	DeleteEvent(_ context.Context, _ *oauth2.Token, calendarID, id string) error
}

type Prompt int

const (
	PromptNone Prompt = iota
	PromptConsent
)

// Authorizer obtains and revokes bearer tokens. RequestToken reports the
// consent URL through notify and blocks until the user answers it.
type Authorizer interface {
	Init(context.Context) error
	RequestToken(_ context.Context, scopes []string, _ Prompt, notify func(authURL string)) (*oauth2.Token, error)
	RevokeToken(context.Context, *oauth2.Token) error
}

// TokenScope returns the scope string granted with tok, if the provider sent one.
func TokenScope(tok *oauth2.Token) string {
	if tok == nil {
		return ""
	}
	scope, _ := tok.Extra("scope").(string)
	return scope
}
