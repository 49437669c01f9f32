// Package auth manages the Strava OAuth credentials used by the sync
// pipeline. A Credentials value is the explicit handle passed to the API
// client; token state never leaves it except through a TokenStore.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"runcoach/internal/types"
)

// Provider is the key under which Strava tokens are persisted.
const Provider = "strava"

// stravaScope is sent verbatim; Strava expects comma-separated scopes.
const stravaScope = "read_all,activity:read_all"

// expiryLeeway is how close to expiry an access token is refreshed.
const expiryLeeway = time.Minute

// TokenStore persists token pairs across runs. db.TokenRepository satisfies
// it.
type TokenStore interface {
	// LoadToken returns the stored token for provider, or nil if none.
	LoadToken(ctx context.Context, provider string) (*types.OAuthToken, error)
	SaveToken(ctx context.Context, token types.OAuthToken) error
}

// CodeProvider obtains an authorization code from the athlete after they
// visit authURL. Implementations may block on user interaction.
type CodeProvider interface {
	Code(ctx context.Context, authURL string) (string, error)
}

// Config carries the OAuth application settings.
type Config struct {
	ClientID     string
	ClientSecret types.SecretString
	// RefreshToken seeds the first refresh when no token is stored.
	RefreshToken types.SecretString
	RedirectURL  string
	// BaseURL is the Strava host; authorize and token endpoints hang off it.
	BaseURL string
}

// Credentials owns the Strava token pair and keeps it fresh.
type Credentials struct {
	oauth      *oauth2.Config
	seed       types.SecretString
	store      TokenStore
	codes      CodeProvider
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.Mutex
	token *oauth2.Token
}

// Option configures Credentials.
type Option func(*Credentials)

// WithTokenStore persists refreshed tokens and seeds from stored ones.
func WithTokenStore(s TokenStore) Option {
	return func(c *Credentials) { c.store = s }
}

// WithCodeProvider enables the interactive authorization-code fallback.
func WithCodeProvider(p CodeProvider) Option {
	return func(c *Credentials) { c.codes = p }
}

// WithHTTPClient sets the client used for token endpoint calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Credentials) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Credentials) { c.logger = l }
}

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Credentials) { c.now = now }
}

// NewCredentials builds an unauthenticated Credentials. Call Authenticate
// before handing it to the API client.
func NewCredentials(cfg Config, opts ...Option) *Credentials {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = "https://www.strava.com"
	}

	c := &Credentials{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret.Unmask(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{stravaScope},
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/oauth/authorize",
				TokenURL:  base + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		seed:   cfg.RefreshToken,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate establishes a valid token pair. It refreshes the stored (or
// configured) refresh token; if that is missing or rejected it falls back to
// the CodeProvider. Failure of both paths returns an auth_strava_failed
// error. No attempt is retried.
func (c *Credentials) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var causes []error

	refresh := c.seedRefreshToken(ctx)
	if refresh != "" {
		tok, err := c.refresh(ctx, refresh)
		if err == nil {
			c.adopt(ctx, tok)
			c.logger.InfoContext(ctx, "strava token refreshed", "expiry", tok.Expiry)
			return nil
		}
		c.logger.WarnContext(ctx, "strava token refresh failed", "error", err)
		causes = append(causes, err)
	} else {
		causes = append(causes, types.NewAppError(types.ErrCodeAuthNoRefreshToken, "no refresh token stored or configured", nil))
	}

	if c.codes == nil {
		causes = append(causes, errors.New("no interactive code provider configured"))
		return types.NewAppError(types.ErrCodeAuthStravaFailed, "authentication failed", errors.Join(causes...))
	}

	tok, err := c.exchangeInteractive(ctx)
	if err != nil {
		causes = append(causes, err)
		return types.NewAppError(types.ErrCodeAuthStravaFailed, "authentication failed", errors.Join(causes...))
	}

	c.adopt(ctx, tok)
	c.logger.InfoContext(ctx, "strava authorization code exchanged", "expiry", tok.Expiry)
	return nil
}

// AccessToken returns the current access token, refreshing it first when it
// expires within a minute.
func (c *Credentials) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token == nil {
		return "", types.NewAppError(types.ErrCodeAuthStravaFailed, "not authenticated", nil)
	}

	if !c.token.Expiry.IsZero() && c.now().Add(expiryLeeway).After(c.token.Expiry) {
		tok, err := c.refresh(ctx, c.token.RefreshToken)
		if err != nil {
			return "", types.NewAppError(types.ErrCodeAuthStravaFailed, "access token expired and refresh failed", err)
		}
		c.adopt(ctx, tok)
		c.logger.DebugContext(ctx, "strava access token renewed", "expiry", tok.Expiry)
	}

	return c.token.AccessToken, nil
}

// Token returns a snapshot of the current token pair, or nil before
// Authenticate succeeds.
func (c *Credentials) Token() *types.OAuthToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == nil {
		return nil
	}
	t := toDomain(c.token)
	return &t
}

func (c *Credentials) seedRefreshToken(ctx context.Context) string {
	if c.token != nil && c.token.RefreshToken != "" {
		return c.token.RefreshToken
	}
	if c.store != nil {
		stored, err := c.store.LoadToken(ctx, Provider)
		switch {
		case err != nil:
			c.logger.WarnContext(ctx, "failed to load stored strava token", "error", err)
		case stored != nil && stored.RefreshToken.IsSet():
			return stored.RefreshToken.Unmask()
		}
	}
	return c.seed.Unmask()
}

// refresh redeems refreshToken at the token endpoint. x/oauth2 keeps the old
// refresh token when the response does not rotate it.
func (c *Credentials) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := c.oauth.TokenSource(c.clientContext(ctx), &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Unix(1, 0),
	})
	return src.Token()
}

func (c *Credentials) exchangeInteractive(ctx context.Context) (*oauth2.Token, error) {
	authURL := c.oauth.AuthCodeURL(uuid.NewString(),
		oauth2.SetAuthURLParam("approval_prompt", "force"),
	)

	code, err := c.codes.Code(ctx, authURL)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, types.NewAppError(types.ErrCodeAuthCodeUnavailable, "empty authorization code", nil)
	}

	return c.oauth.Exchange(c.clientContext(ctx), code)
}

// adopt replaces the in-memory token and persists it. A store failure is
// logged; the token remains usable for this process.
func (c *Credentials) adopt(ctx context.Context, tok *oauth2.Token) {
	c.token = tok
	if c.store == nil {
		return
	}
	if err := c.store.SaveToken(ctx, toDomain(tok)); err != nil {
		c.logger.WarnContext(ctx, "failed to persist strava token", "error", err)
	}
}

func (c *Credentials) clientContext(ctx context.Context) context.Context {
	if c.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func toDomain(tok *oauth2.Token) types.OAuthToken {
	return types.OAuthToken{
		Provider:     Provider,
		AccessToken:  types.SecretString(tok.AccessToken),
		RefreshToken: types.SecretString(tok.RefreshToken),
		Expiry:       tok.Expiry,
	}
}
