package credential

import (
	"context"
	"fmt"

	"github.com/amoylab/tether/internal/common/cnst"
)

// Store is a durable key-value holder for session credentials. Get returns an
// empty string for an absent key. Errors only signal the underlying
// persistence being unavailable.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Clear(ctx context.Context, key string) error
}

// Session is the pair of tokens held for the signed-in user
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Empty reports whether no access token is present
func (s Session) Empty() bool {
	return s.AccessToken == ""
}

// LoadSession reads both tokens
func LoadSession(ctx context.Context, store Store) (Session, error) {
	access, err := store.Get(ctx, cnst.KeyAccessToken)
	if err != nil {
		return Session{}, fmt.Errorf("failed to read access token: %w", err)
	}
	refresh, err := store.Get(ctx, cnst.KeyRefreshToken)
	if err != nil {
		return Session{}, fmt.Errorf("failed to read refresh token: %w", err)
	}
	return Session{AccessToken: access, RefreshToken: refresh}, nil
}

// SaveSession persists the refresh token before the access token so an access
// token is never visible without its refresh token. An empty refresh token
// keeps the stored one.
func SaveSession(ctx context.Context, store Store, s Session) error {
	if s.RefreshToken != "" {
		if err := store.Set(ctx, cnst.KeyRefreshToken, s.RefreshToken); err != nil {
			return fmt.Errorf("failed to write refresh token: %w", err)
		}
	}
	if err := store.Set(ctx, cnst.KeyAccessToken, s.AccessToken); err != nil {
		return fmt.Errorf("failed to write access token: %w", err)
	}
	return nil
}

// ClearSession removes both tokens. The access token goes first.
func ClearSession(ctx context.Context, store Store) error {
	if err := store.Clear(ctx, cnst.KeyAccessToken); err != nil {
		return fmt.Errorf("failed to clear access token: %w", err)
	}
	if err := store.Clear(ctx, cnst.KeyRefreshToken); err != nil {
		return fmt.Errorf("failed to clear refresh token: %w", err)
	}
	return nil
}

func checkKey(key string) error {
	if key == "" {
		return cnst.ErrEmptyKey
	}
	return nil
}
