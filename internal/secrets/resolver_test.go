package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	pkgsecrets "github.com/Checker-Finance/tcg-pricing/pkg/secrets"
)

type mockProvider struct {
	secrets map[string]map[string]string
	err     error
	calls   int
}

func (m *mockProvider) GetSecret(_ context.Context, key string) (map[string]string, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.secrets[key]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return s, nil
}

func newResolver(p pkgsecrets.Provider) *Resolver {
	return NewResolver(zap.NewNop(), p, pkgsecrets.NewCache[Credentials](time.Hour))
}

func TestResolve_ParsesAndCaches(t *testing.T) {
	p := &mockProvider{secrets: map[string]map[string]string{
		"prod/tcg-pricing/ebay": {
			KeyClientID:     "client",
			KeyClientSecret: " secret ",
			KeyAppID:        "app",
		},
	}}
	r := newResolver(p)

	creds, err := r.Resolve(context.Background(), "prod/tcg-pricing/ebay")
	require.NoError(t, err)
	assert.Equal(t, Credentials{ClientID: "client", ClientSecret: "secret", AppID: "app"}, creds)
	assert.True(t, creds.HasBrowse())
	assert.True(t, creds.HasFinding())

	_, err = r.Resolve(context.Background(), "PROD/tcg-pricing/ebay")
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls, "second resolve hits the cache")
}

func TestResolve_ProviderError(t *testing.T) {
	r := newResolver(&mockProvider{err: errors.New("AccessDenied")})
	_, err := r.Resolve(context.Background(), "x")
	assert.ErrorContains(t, err, "AccessDenied")
}

func TestResolve_EmptySecret(t *testing.T) {
	r := newResolver(&mockProvider{secrets: map[string]map[string]string{"x": {"unrelated": "v"}}})
	_, err := r.Resolve(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestCredentials_Merge(t *testing.T) {
	env := Credentials{AppID: "env-app"}
	secret := Credentials{ClientID: "sm-client", ClientSecret: "sm-secret", AppID: "sm-app"}

	got := env.Merge(secret)
	assert.Equal(t, Credentials{ClientID: "sm-client", ClientSecret: "sm-secret", AppID: "env-app"}, got)
	assert.False(t, Credentials{ClientID: "only-id"}.HasBrowse())
}
