package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
)

const (
	// DefaultRefreshMargin is how long before expiry a cached token is
	// replaced.
	DefaultRefreshMargin = 5 * time.Minute

	// fallbackLifetime applies when the issuer gives neither expires_in nor
	// an exp claim.
	fallbackLifetime = time.Hour
)

// Token is a bearer token and the instant it stops being accepted.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ValidAt reports whether t can still be used at now with margin to spare.
func (t Token) ValidAt(now time.Time, margin time.Duration) bool {
	return t.AccessToken != "" && now.Add(margin).Before(t.ExpiresAt)
}

// Response is what an issuer returns from its login endpoint.
type Response struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int64  `json:"expires_in,omitempty"` // seconds
}

// Source obtains a fresh token.
type Source interface {
	FetchToken(ctx context.Context) (Response, error)
}

// Store persists the cached token between runs.
type Store interface {
	Load() (Token, error)
	Save(Token) error
}

// Cache hands out a bearer token, fetching a new one from its Source when
// none is cached or the cached one expires within the refresh margin.
// Concurrent callers share a single fetch.
type Cache struct {
	mu      sync.Mutex
	current Token
	loaded  bool

	source Source
	store  Store
	margin time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewCache creates a cache. store may be nil.
func NewCache(source Source, store Store, logger zerolog.Logger) *Cache {
	return &Cache{
		source: source,
		store:  store,
		margin: DefaultRefreshMargin,
		now:    time.Now,
		logger: logger.With().Str("component", "token_cache").Logger(),
	}
}

// Token returns a usable access token.
func (c *Cache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		c.loaded = true
		c.restore()
	}
	now := c.now()
	if c.current.ValidAt(now, c.margin) {
		return c.current.AccessToken, nil
	}

	resp, err := c.source.FetchToken(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to obtain access token: %w", err)
	}
	if resp.AccessToken == "" {
		return "", errors.New("token issuer returned an empty access token")
	}

	c.current = Token{AccessToken: resp.AccessToken, ExpiresAt: c.expiry(resp, now)}
	c.logger.Info().Time("expires_at", c.current.ExpiresAt).Msg("Access token refreshed")

	if c.store != nil {
		if err := c.store.Save(c.current); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to persist access token")
		}
	}
	return c.current.AccessToken, nil
}

// Invalidate drops the cached token, e.g. after the API rejected it.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.current = Token{}
	c.loaded = true
	c.mu.Unlock()
}

func (c *Cache) restore() {
	if c.store == nil {
		return
	}
	tok, err := c.store.Load()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Ignoring unreadable cached token")
		return
	}
	c.current = tok
}

func (c *Cache) expiry(resp Response, now time.Time) time.Time {
	if resp.ExpiresIn > 0 {
		return now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	exp, err := ExpiryFromJWT(resp.AccessToken)
	if err == nil {
		return exp
	}
	c.logger.Warn().Err(err).Dur("assumed_lifetime", fallbackLifetime).Msg("Token expiry unknown")
	return now.Add(fallbackLifetime)
}

// ExpiryFromJWT reads the exp claim of a JWT without verifying its
// signature. The issuer verifies its own tokens; this is only used to
// schedule refreshes.
func ExpiryFromJWT(raw string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse token: %w", err)
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return time.Time{}, errors.New("token has no exp claim")
	}
	return time.Unix(int64(exp), 0), nil
}
