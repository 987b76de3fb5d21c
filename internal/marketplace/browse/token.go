package browse

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/tcg-pricing/internal/httpclient"
	"github.com/Checker-Finance/tcg-pricing/pkg/secrets"
	"github.com/Checker-Finance/tcg-pricing/pkg/utils"
)

const (
	// OAuthRateKey is the limiter key for token requests.
	OAuthRateKey = "browse-oauth"
	// DefaultScope grants public Browse API access.
	DefaultScope = "https://api.ebay.com/oauth/api_scope"
	// tokenExpiryBuffer is the margin before actual expiry at which a new token is fetched.
	tokenExpiryBuffer = 5 * time.Minute
	tokenPath         = "/identity/v1/oauth2/token"
)

// TokenStore keeps bearer tokens between uses. Implementations: the
// in-process MemoryTokenStore and store.RedisTokenStore.
type TokenStore interface {
	GetToken(ctx context.Context, key string) (string, bool, error)
	PutToken(ctx context.Context, key, token string, ttl time.Duration) error
	DeleteToken(ctx context.Context, key string) error
}

// MemoryTokenStore is a TokenStore on the in-process TTL cache.
type MemoryTokenStore struct {
	cache *secrets.Cache[string]
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{cache: secrets.NewCache[string](time.Hour)}
}

func (s *MemoryTokenStore) GetToken(_ context.Context, key string) (string, bool, error) {
	v, ok := s.cache.Get(key)
	return v, ok, nil
}

func (s *MemoryTokenStore) PutToken(_ context.Context, key, token string, ttl time.Duration) error {
	s.cache.PutWithTTL(key, token, ttl)
	return nil
}

func (s *MemoryTokenStore) DeleteToken(_ context.Context, key string) error {
	s.cache.Bust(key)
	return nil
}

// Credentials identify the application to the OAuth endpoint.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

func (c Credentials) Valid() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenManager fetches and caches an application access token obtained with
// the client-credentials grant. Fetches are serialized so concurrent workers
// share one token.
type TokenManager struct {
	logger  *zap.Logger
	exec    *httpclient.Executor
	authURL string
	creds   Credentials
	scope   string
	store   TokenStore

	mu sync.Mutex
}

// NewTokenManager creates a TokenManager. store may be nil for an in-memory store.
func NewTokenManager(logger *zap.Logger, exec *httpclient.Executor, authBaseURL string, creds Credentials, scope string, store TokenStore) *TokenManager {
	if store == nil {
		store = NewMemoryTokenStore()
	}
	if scope == "" {
		scope = DefaultScope
	}
	return &TokenManager{
		logger:  logger,
		exec:    exec,
		authURL: strings.TrimRight(authBaseURL, "/") + tokenPath,
		creds:   creds,
		scope:   scope,
		store:   store,
	}
}

func (m *TokenManager) storeKey() string {
	return "ebay:browse:token:" + m.creds.ClientID
}

// Token returns a valid bearer token, fetching a new one when the cached
// token is missing or within the expiry buffer.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := m.storeKey()
	if tok, ok, err := m.store.GetToken(ctx, key); err != nil {
		m.logger.Warn("browse.auth.store_get_failed", zap.Error(err))
	} else if ok && tok != "" {
		return tok, nil
	}

	resp, err := m.fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("browse auth: fetch token for client %q: %w", utils.MaskSecret(m.creds.ClientID), err)
	}

	ttl := time.Duration(resp.ExpiresIn)*time.Second - tokenExpiryBuffer
	if ttl <= 0 {
		ttl = time.Duration(resp.ExpiresIn) * time.Second / 2
	}
	if ttl > 0 {
		if err := m.store.PutToken(ctx, key, resp.AccessToken, ttl); err != nil {
			m.logger.Warn("browse.auth.store_put_failed", zap.Error(err))
		}
	}

	m.logger.Info("browse.auth.token_refreshed",
		zap.String("client_id", utils.MaskSecret(m.creds.ClientID)),
		zap.Int64("expires_in_sec", resp.ExpiresIn))
	return resp.AccessToken, nil
}

// Invalidate drops the cached token so the next Token call fetches a new one.
func (m *TokenManager) Invalidate(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.DeleteToken(ctx, m.storeKey()); err != nil {
		m.logger.Warn("browse.auth.store_delete_failed", zap.Error(err))
	}
}

func (m *TokenManager) fetch(ctx context.Context) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", m.scope)
	body := form.Encode()

	var resp tokenResponse
	err := m.exec.DoJSON(ctx, httpclient.Call{
		Provider: "browse",
		RateKey:  OAuthRateKey,
		Build: func(ctx context.Context) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.authURL, strings.NewReader(body))
			if err != nil {
				return nil, err
			}
			req.SetBasicAuth(m.creds.ClientID, m.creds.ClientSecret)
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.Header.Set("Accept", "application/json")
			return req, nil
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned empty access_token")
	}
	return &resp, nil
}
