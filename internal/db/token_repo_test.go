package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"runcoach/internal/types"
)

func TestTokenRepository_LoadToken(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	expiry := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	updated := expiry.Add(-6 * time.Hour)
	db.On("QueryRow", ctx, sqlContaining("FROM oauth_tokens"), []any{"strava"}).
		Return(&mockRow{values: []any{"access-1", "refresh-1", &expiry, updated}})

	tok, err := repo.LoadToken(ctx, "strava")
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "strava", tok.Provider)
	assert.Equal(t, "access-1", tok.AccessToken.Unmask())
	assert.Equal(t, "refresh-1", tok.RefreshToken.Unmask())
	assert.True(t, tok.Expiry.Equal(expiry))
	assert.True(t, tok.UpdatedAt.Equal(updated))
}

func TestTokenRepository_LoadToken_Missing(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(&mockRow{scanErr: pgx.ErrNoRows})

	tok, err := repo.LoadToken(ctx, "strava")
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestTokenRepository_LoadToken_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.Anything, mock.Anything).Return(&mockRow{scanErr: errors.New("timeout")})

	_, err := repo.LoadToken(ctx, "strava")
	assert.True(t, types.HasCode(err, types.ErrCodeInternalDB))
}

func TestTokenRepository_SaveToken_Upserts(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	expiry := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	db.On("Exec", ctx, sqlContaining("ON CONFLICT (provider)"), []any{"strava", "access-2", "refresh-2", &expiry}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.SaveToken(ctx, types.OAuthToken{
		Provider:     "strava",
		AccessToken:  "access-2",
		RefreshToken: "refresh-2",
		Expiry:       expiry,
	})
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestTokenRepository_SaveToken_ZeroExpiryStoredAsNull(t *testing.T) {
	db := new(mockDBTX)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.Anything, []any{"strava", "a", "r", (*time.Time)(nil)}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, repo.SaveToken(ctx, types.OAuthToken{Provider: "strava", AccessToken: "a", RefreshToken: "r"}))
	db.AssertExpectations(t)
}
