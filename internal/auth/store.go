package auth

import (
	"context"
	"encoding/json"

	"github.com/smarttourjo/core/internal/crypto"
	apperrors "github.com/smarttourjo/core/internal/errors"
	"github.com/smarttourjo/core/internal/models"
	"github.com/smarttourjo/core/internal/storage"
)

// Store persists the session token and user under the userToken and
// userData keys. When a sealer is set the token blob is encrypted at rest.
type Store struct {
	kv     *storage.Store
	sealer *crypto.Sealer
}

// NewStore creates a token store. sealer may be nil.
func NewStore(kv *storage.Store, sealer *crypto.Sealer) *Store {
	return &Store{kv: kv, sealer: sealer}
}

// LoadToken returns the persisted token, or nil when none is stored.
func (s *Store) LoadToken(ctx context.Context) (*Token, error) {
	raw, ok, err := s.kv.Get(ctx, storage.KeyUserToken)
	if err != nil || !ok {
		return nil, err
	}

	blob := []byte(raw)
	if crypto.IsSealed(raw) {
		if s.sealer == nil {
			return nil, apperrors.New(apperrors.ErrCrypto, "token is sealed but no storage secret is configured")
		}
		if blob, err = s.sealer.Open(raw); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCrypto, "failed to open token", err)
		}
	}

	var tok Token
	if err := json.Unmarshal(blob, &tok); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to parse stored token", err)
	}
	return &tok, nil
}

// SaveToken persists tok, sealing it when configured.
func (s *Store) SaveToken(ctx context.Context, tok *Token) error {
	blob, err := json.Marshal(tok)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to encode token", err)
	}

	value := string(blob)
	if s.sealer != nil {
		if value, err = s.sealer.Seal(blob); err != nil {
			return apperrors.Wrap(apperrors.ErrCrypto, "failed to seal token", err)
		}
	}
	return s.kv.Set(ctx, storage.KeyUserToken, value)
}

// ClearSession removes the token and the cached user.
func (s *Store) ClearSession(ctx context.Context) error {
	return s.kv.MultiRemove(ctx, storage.KeyUserToken, storage.KeyUserData)
}

// SaveUser caches the signed-in user.
func (s *Store) SaveUser(ctx context.Context, u *models.User) error {
	return s.kv.SetObject(ctx, storage.KeyUserData, u)
}

// LoadUser returns the cached user, or nil when signed out.
func (s *Store) LoadUser(ctx context.Context) (*models.User, error) {
	var u models.User
	ok, err := s.kv.GetObject(ctx, storage.KeyUserData, &u)
	if err != nil || !ok {
		return nil, err
	}
	return &u, nil
}

// UserID returns the subject of the stored access token.
func (s *Store) UserID(ctx context.Context) (string, error) {
	tok, err := s.LoadToken(ctx)
	if err != nil {
		return "", err
	}
	if !tok.Valid() {
		return "", apperrors.New(apperrors.ErrAuthFailed, "not signed in")
	}
	return tok.UserID()
}
