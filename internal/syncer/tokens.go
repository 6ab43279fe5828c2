package syncer

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2"
)

// TokenStore persists the provider token as JSON under a single
// configuration key. An empty value means no token.
type TokenStore struct {
	storage ConfigStorage
	key     string
}

func NewTokenStore(storage ConfigStorage, key string) TokenStore {
	if key == "" {
		key = DefaultTokenKey
	}
	return TokenStore{storage: storage, key: key}
}

// Load returns nil without error when nothing is stored.
func (ts TokenStore) Load(ctx context.Context) (*oauth2.Token, error) {
	v, ok, err := ts.storage.Get(ctx, ts.key)
	if err != nil {
		return nil, fmt.Errorf("loading token: %w", err)
	}
	if !ok || v == "" {
		return nil, nil
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(v), &tok); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, nil
	}
	return &tok, nil
}

func (ts TokenStore) Save(ctx context.Context, tok *oauth2.Token) error {
	v, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	if err := ts.storage.Upsert(ctx, ts.key, string(v)); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	return nil
}

func (ts TokenStore) Clear(ctx context.Context) error {
	if err := ts.storage.Upsert(ctx, ts.key, ""); err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}
	return nil
}
