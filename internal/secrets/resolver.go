package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	pkgsecrets "github.com/Checker-Finance/tcg-pricing/pkg/secrets"
	"github.com/Checker-Finance/tcg-pricing/pkg/utils"
)

// Secret keys of the marketplace credential JSON document.
const (
	KeyClientID     = "ebay_client_id"
	KeyClientSecret = "ebay_client_secret"
	KeyAppID        = "ebay_app_id"
)

// Credentials authenticate the two marketplace sources. Browse needs the
// OAuth client pair; Finding needs the application id.
type Credentials struct {
	ClientID     string
	ClientSecret string
	AppID        string
}

func (c Credentials) HasBrowse() bool  { return c.ClientID != "" && c.ClientSecret != "" }
func (c Credentials) HasFinding() bool { return c.AppID != "" }

// Merge returns c with blank fields filled from fallback.
func (c Credentials) Merge(fallback Credentials) Credentials {
	if c.ClientID == "" {
		c.ClientID = fallback.ClientID
	}
	if c.ClientSecret == "" {
		c.ClientSecret = fallback.ClientSecret
	}
	if c.AppID == "" {
		c.AppID = fallback.AppID
	}
	return c
}

// ErrEmptySecret means the secret exists but carries none of the known keys.
var ErrEmptySecret = errors.New("secret has no marketplace credentials")

// Resolver loads marketplace credentials from a secrets provider, caching
// them locally to reduce API calls.
type Resolver struct {
	logger   *zap.Logger
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[Credentials]
}

func NewResolver(logger *zap.Logger, provider pkgsecrets.Provider, cache *pkgsecrets.Cache[Credentials]) *Resolver {
	return &Resolver{
		logger:   logger,
		provider: provider,
		cache:    cache,
	}
}

// Resolve fetches or returns cached credentials stored under secretName.
func (r *Resolver) Resolve(ctx context.Context, secretName string) (Credentials, error) {
	key := strings.ToLower(secretName)

	// --- check in-memory cache first ---
	if creds, ok := r.cache.Get(key); ok {
		return creds, nil
	}

	// --- fetch from the provider ---
	secretMap, err := r.provider.GetSecret(ctx, secretName)
	if err != nil {
		r.logger.Warn("aws.secret_fetch_failed",
			zap.String("key", secretName),
			zap.Error(err))
		return Credentials{}, fmt.Errorf("resolve marketplace credentials: %w", err)
	}

	creds := Credentials{
		ClientID:     strings.TrimSpace(secretMap[KeyClientID]),
		ClientSecret: strings.TrimSpace(secretMap[KeyClientSecret]),
		AppID:        strings.TrimSpace(secretMap[KeyAppID]),
	}
	if creds == (Credentials{}) {
		return Credentials{}, fmt.Errorf("parse secret %q: %w", secretName, ErrEmptySecret)
	}

	r.cache.Put(key, creds)

	r.logger.Info("aws.credentials_resolved",
		zap.String("key", secretName),
		zap.String("client_id", utils.MaskSecret(creds.ClientID)),
		zap.String("app_id", utils.MaskSecret(creds.AppID)),
		zap.Bool("browse", creds.HasBrowse()),
		zap.Bool("finding", creds.HasFinding()),
	)
	return creds, nil
}
