package app

import (
	"context"

	"github.com/smarttourjo/core/internal/auth"
	apperrors "github.com/smarttourjo/core/internal/errors"
	"github.com/smarttourjo/core/internal/models"
)

// Login signs in through the identity provider when one is configured and
// through the API otherwise. The user is nil when the API returns none.
func (a *App) Login(ctx context.Context, email, password string) (*models.User, error) {
	if a.Auth != nil {
		user, err := a.Auth.Login(ctx, email, password)
		// The next request reloads whatever the service stored.
		a.API.ClearAuthToken()
		return user, err
	}

	resp, err := a.API.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if resp.User != nil {
		if err := a.Tokens.SaveUser(ctx, resp.User); err != nil {
			return nil, err
		}
	}
	return resp.User, nil
}

// Logout signs out of the identity provider when configured and always
// clears the local session.
func (a *App) Logout(ctx context.Context) error {
	defer a.API.ClearAuthToken()
	if a.Auth != nil {
		return a.Auth.Logout(ctx)
	}
	return a.Tokens.ClearSession(ctx)
}

// RefreshSession exchanges the stored refresh token through the identity
// provider and hands the new token to the API client.
func (a *App) RefreshSession(ctx context.Context) (*auth.Token, error) {
	if a.Auth == nil {
		return nil, apperrors.New(apperrors.ErrConfig, "no identity provider configured")
	}
	tok, err := a.Auth.Refresh(ctx)
	if err != nil {
		a.API.ClearAuthToken()
		return nil, err
	}
	a.API.SetAuthToken(tok)
	return tok, nil
}
