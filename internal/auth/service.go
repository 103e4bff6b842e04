package auth

import (
	"context"

	apperrors "github.com/smarttourjo/core/internal/errors"
	"github.com/smarttourjo/core/internal/logging"
	"github.com/smarttourjo/core/internal/models"
)

// Session is what the identity provider returns on sign-in or refresh.
type Session struct {
	Token Token
	User  models.User
}

// Provider is the hosted identity backend.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password, fullName string) (*Session, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Service signs users in and out and keeps the local session in step.
// Any provider failure on sign-in or refresh clears the local session.
type Service struct {
	provider Provider
	store    *Store
}

// NewService creates a Service.
func NewService(provider Provider, store *Store) *Service {
	return &Service{provider: provider, store: store}
}

// Login signs in with email and password and persists the session.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	if email == "" || password == "" {
		return nil, apperrors.New(apperrors.ErrInvalid, "email and password are required")
	}
	sess, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		s.clear(ctx)
		return nil, apperrors.Wrap(apperrors.ErrAuthFailed, "login failed", err)
	}
	if err := s.persist(ctx, sess); err != nil {
		return nil, err
	}
	logging.Info("User signed in", map[string]interface{}{"user_id": sess.User.ID})
	return &sess.User, nil
}

// Register creates an account. When the provider requires email
// confirmation no session is returned and nothing is persisted.
func (s *Service) Register(ctx context.Context, email, password, fullName string) (*models.User, error) {
	if email == "" || password == "" {
		return nil, apperrors.New(apperrors.ErrInvalid, "email and password are required")
	}
	sess, err := s.provider.SignUp(ctx, email, password, fullName)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrAuthFailed, "registration failed", err)
	}
	if sess.Token.Valid() {
		if err := s.persist(ctx, sess); err != nil {
			return nil, err
		}
	}
	return &sess.User, nil
}

// Refresh exchanges the stored refresh token for a new session.
func (s *Service) Refresh(ctx context.Context) (*Token, error) {
	tok, err := s.store.LoadToken(ctx)
	if err != nil {
		return nil, err
	}
	if tok == nil || tok.RefreshToken == "" {
		return nil, apperrors.New(apperrors.ErrAuthFailed, "no refresh token")
	}

	sess, err := s.provider.Refresh(ctx, tok.RefreshToken)
	if err != nil {
		s.clear(ctx)
		return nil, apperrors.Wrap(apperrors.ErrAuthFailed, "token refresh failed", err)
	}
	if sess.Token.RefreshToken == "" {
		sess.Token.RefreshToken = tok.RefreshToken
	}
	if err := s.store.SaveToken(ctx, &sess.Token); err != nil {
		return nil, err
	}
	return &sess.Token, nil
}

// Logout signs out remotely when possible and always clears the local session.
func (s *Service) Logout(ctx context.Context) error {
	tok, err := s.store.LoadToken(ctx)
	if err != nil {
		logging.Warn("Unreadable token at logout", map[string]interface{}{"error": err.Error()})
	}
	if tok.Valid() {
		if err := s.provider.SignOut(ctx, tok.AccessToken); err != nil {
			logging.Warn("Remote sign-out failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return s.store.ClearSession(ctx)
}

// CurrentUser returns the cached user, or nil when signed out.
func (s *Service) CurrentUser(ctx context.Context) (*models.User, error) {
	return s.store.LoadUser(ctx)
}

func (s *Service) persist(ctx context.Context, sess *Session) error {
	if err := s.store.SaveToken(ctx, &sess.Token); err != nil {
		return err
	}
	return s.store.SaveUser(ctx, &sess.User)
}

func (s *Service) clear(ctx context.Context) {
	if err := s.store.ClearSession(ctx); err != nil {
		logging.Error("Failed to clear session", err)
	}
}
