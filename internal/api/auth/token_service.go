package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/mkravets/contacts-api/config"
	"github.com/mkravets/contacts-api/internal/api"
)

var _ TokenService = (*TokenServiceImpl)(nil)

// TokenService orchestrates token issuance over the codec and store. Access
// tokens are generated statelessly and never persisted; refresh, verification
// and reset tokens are persisted so they can be revoked and consumed once.
type TokenService interface {
	Generate(tokenType api.TokenType, userID int64) (string, error)
	Create(ctx context.Context, tokenType api.TokenType, userID int64) (*api.Token, error)
	// Get returns the stored token, or nil when absent. A non-empty tokenType
	// restricts the lookup.
	Get(ctx context.Context, token string, tokenType api.TokenType) (*api.Token, error)
	// GetOrFail fails with api.ErrNotFound when the token is no longer live.
	GetOrFail(ctx context.Context, token string) (*api.Token, error)
	Delete(ctx context.Context, token string) error
	DeleteMany(ctx context.Context, tokens []string) (int64, error)
	// List returns stored tokens for a user and/or type; zero values mean "any".
	List(ctx context.Context, userID int64, tokenType api.TokenType) ([]api.Token, error)
}

type TokenServiceImpl struct {
	codec *TokenCodec
	repo  TokenRepo
	ttls  map[api.TokenType]time.Duration
}

func NewTokenService(codec *TokenCodec, repo TokenRepo, cfg *config.Config) *TokenServiceImpl {
	return &TokenServiceImpl{
		codec: codec,
		repo:  repo,
		ttls: map[api.TokenType]time.Duration{
			api.TokenTypeAccess:       cfg.JWT.AccessTTL,
			api.TokenTypeRefresh:      cfg.JWT.RefreshTTL,
			api.TokenTypeVerification: cfg.JWT.VerificationTTL,
			api.TokenTypeReset:        cfg.JWT.ResetTTL,
		},
	}
}

func (s *TokenServiceImpl) Generate(tokenType api.TokenType, userID int64) (string, error) {
	return s.codec.Encode(userID, tokenType, s.ttls[tokenType])
}

func (s *TokenServiceImpl) Create(ctx context.Context, tokenType api.TokenType, userID int64) (*api.Token, error) {
	signed, err := s.Generate(tokenType, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, tokenType, userID, signed)
}

func (s *TokenServiceImpl) Get(ctx context.Context, token string, tokenType api.TokenType) (*api.Token, error) {
	filter := TokenFilter{Token: &token}
	if tokenType != "" {
		filter.Type = &tokenType
	}
	return s.repo.Find(ctx, filter)
}

func (s *TokenServiceImpl) GetOrFail(ctx context.Context, token string) (*api.Token, error) {
	stored, err := s.Get(ctx, token, "")
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("token not found: %w", api.ErrNotFound)
	}
	return stored, nil
}

func (s *TokenServiceImpl) Delete(ctx context.Context, token string) error {
	return s.repo.Delete(ctx, token)
}

func (s *TokenServiceImpl) DeleteMany(ctx context.Context, tokens []string) (int64, error) {
	return s.repo.DeleteMany(ctx, tokens)
}

func (s *TokenServiceImpl) List(ctx context.Context, userID int64, tokenType api.TokenType) ([]api.Token, error) {
	filter := TokenFilter{}
	if userID > 0 {
		filter.UserID = &userID
	}
	if tokenType != "" {
		filter.Type = &tokenType
	}
	return s.repo.FindAll(ctx, filter)
}
