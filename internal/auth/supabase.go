package auth

import (
	"context"

	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
	"github.com/supabase-community/supabase-go"

	apperrors "github.com/smarttourjo/core/internal/errors"
	"github.com/smarttourjo/core/internal/models"
)

// supabaseProvider adapts the Supabase auth client to Provider.
type supabaseProvider struct {
	auth gotrue.Client
}

// NewSupabaseProvider creates a Provider backed by a Supabase project.
func NewSupabaseProvider(url, anonKey string) (Provider, error) {
	if url == "" || anonKey == "" {
		return nil, apperrors.New(apperrors.ErrConfig, "supabase url and anon key are required")
	}
	client, err := supabase.NewClient(url, anonKey, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfig, "failed to create supabase client", err)
	}
	return &supabaseProvider{auth: client.Auth}, nil
}

func (p *supabaseProvider) SignIn(_ context.Context, email, password string) (*Session, error) {
	resp, err := p.auth.SignInWithEmailPassword(email, password)
	if err != nil {
		return nil, err
	}
	return fromSession(resp.Session), nil
}

func (p *supabaseProvider) SignUp(_ context.Context, email, password, fullName string) (*Session, error) {
	req := types.SignupRequest{Email: email, Password: password}
	if fullName != "" {
		req.Data = map[string]interface{}{"full_name": fullName}
	}
	resp, err := p.auth.Signup(req)
	if err != nil {
		return nil, err
	}
	if resp.Session.AccessToken != "" {
		return fromSession(resp.Session), nil
	}
	// Email confirmation pending: user only
	return &Session{User: fromUser(resp.User)}, nil
}

func (p *supabaseProvider) Refresh(_ context.Context, refreshToken string) (*Session, error) {
	resp, err := p.auth.RefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}
	return fromSession(resp.Session), nil
}

func (p *supabaseProvider) SignOut(_ context.Context, accessToken string) error {
	return p.auth.WithToken(accessToken).Logout()
}

func fromSession(s types.Session) *Session {
	return &Session{
		Token: Token{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken},
		User:  fromUser(s.User),
	}
}

func fromUser(u types.User) models.User {
	user := models.User{
		ID:        u.ID.String(),
		Email:     u.Email,
		CreatedAt: u.CreatedAt.String(),
		UpdatedAt: u.UpdatedAt.String(),
	}
	if name, ok := u.UserMetadata["full_name"].(string); ok {
		user.FullName = name
	}
	if avatar, ok := u.UserMetadata["avatar_url"].(string); ok {
		user.AvatarURL = avatar
	}
	return user
}
