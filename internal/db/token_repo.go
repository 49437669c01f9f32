package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"runcoach/internal/types"
)

// TokenRepository persists OAuth tokens so a refresh-token rotation survives
// restarts. It satisfies auth.TokenStore.
type TokenRepository struct {
	db DBTX
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(db DBTX) *TokenRepository {
	return &TokenRepository{db: db}
}

// LoadToken returns the stored token for provider, or nil when none exists.
func (r *TokenRepository) LoadToken(ctx context.Context, provider string) (*types.OAuthToken, error) {
	var (
		access, refresh string
		expiry          *time.Time
		tok             = types.OAuthToken{Provider: provider}
	)
	err := r.db.QueryRow(ctx,
		`SELECT access_token, refresh_token, expires_at, updated_at
		 FROM oauth_tokens
		 WHERE provider = $1`,
		provider,
	).Scan(&access, &refresh, &expiry, &tok.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load oauth token", err)
	}

	tok.AccessToken = types.SecretString(access)
	tok.RefreshToken = types.SecretString(refresh)
	if expiry != nil {
		tok.Expiry = *expiry
	}
	return &tok, nil
}

// SaveToken upserts the token for its provider.
func (r *TokenRepository) SaveToken(ctx context.Context, tok types.OAuthToken) error {
	var expiry *time.Time
	if !tok.Expiry.IsZero() {
		expiry = &tok.Expiry
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO oauth_tokens (provider, access_token, refresh_token, expires_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (provider)
		 DO UPDATE SET access_token = EXCLUDED.access_token,
		               refresh_token = EXCLUDED.refresh_token,
		               expires_at = EXCLUDED.expires_at,
		               updated_at = NOW()`,
		tok.Provider,
		tok.AccessToken.Unmask(),
		tok.RefreshToken.Unmask(),
		expiry,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to save oauth token", err)
	}
	return nil
}
