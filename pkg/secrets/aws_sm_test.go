package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecretsAPI struct {
	value *string
	err   error
	asked string
}

func (f *fakeSecretsAPI) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.asked = aws.ToString(in.SecretId)
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: f.value}, nil
}

func TestGetSecret_DecodesJSONMap(t *testing.T) {
	api := &fakeSecretsAPI{value: aws.String(`{"ebay_client_id":"cid","ebay_app_id":"app"}`)}
	p := &AWSSecretsManagerProvider{client: api}

	got, err := p.GetSecret(context.Background(), "prod/tcg-pricing/ebay")
	require.NoError(t, err)
	assert.Equal(t, "prod/tcg-pricing/ebay", api.asked)
	assert.Equal(t, "cid", got["ebay_client_id"])
	assert.Equal(t, "app", got["ebay_app_id"])
}

func TestGetSecret_Errors(t *testing.T) {
	p := &AWSSecretsManagerProvider{client: &fakeSecretsAPI{err: errors.New("denied")}}
	_, err := p.GetSecret(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch secret")

	p = &AWSSecretsManagerProvider{client: &fakeSecretsAPI{value: aws.String("not-json")}}
	_, err = p.GetSecret(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid secret format")

	p = &AWSSecretsManagerProvider{client: &fakeSecretsAPI{}}
	_, err = p.GetSecret(context.Background(), "x")
	require.Error(t, err)
}
