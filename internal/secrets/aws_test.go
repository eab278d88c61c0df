package secrets

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type mockSecretsManagerClient struct {
	GetSecretValueFn func(
		*secretsmanager.GetSecretValueInput,
	) (*secretsmanager.GetSecretValueOutput, error)
}

func (m *mockSecretsManagerClient) GetSecretValue(
	_ context.Context,
	params *secretsmanager.GetSecretValueInput,
	_ ...func(*secretsmanager.Options),
) (*secretsmanager.GetSecretValueOutput, error) {
	return m.GetSecretValueFn(params)
}

func TestAWSBackend(t *testing.T) {
	testOpts := AWSOptions{
		Region:          "us-east-1",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "shh",
	}
	withClient := func(
		fn func(
			*secretsmanager.GetSecretValueInput,
		) (*secretsmanager.GetSecretValueOutput, error),
	) *AWSBackend {
		return newAWSBackend(
			testOpts,
			func() (SecretsManagerClient, error) {
				return &mockSecretsManagerClient{GetSecretValueFn: fn}, nil
			},
		)
	}
	testCases := []struct {
		name       string
		backend    func() *AWSBackend
		assertions func(string, error)
	}{
		{
			name: "no credentials configured",
			backend: func() *AWSBackend {
				return newAWSBackend(
					AWSOptions{Region: "us-east-1"},
					func() (SecretsManagerClient, error) {
						require.Fail(t, "client should not have been constructed")
						return nil, nil
					},
				)
			},
			assertions: func(_ string, err error) {
				require.True(t, errors.Is(err, ErrNotConfigured))
			},
		},
		{
			name: "secret not found",
			backend: func() *AWSBackend {
				return withClient(func(
					*secretsmanager.GetSecretValueInput,
				) (*secretsmanager.GetSecretValueOutput, error) {
					return nil, &smithy.GenericAPIError{
						Code:    "ResourceNotFoundException",
						Message: "Secrets Manager can't find the specified secret.",
					}
				})
			},
			assertions: func(_ string, err error) {
				require.True(t, errors.Is(err, ErrNotFound))
			},
		},
		{
			name: "other error",
			backend: func() *AWSBackend {
				return withClient(func(
					*secretsmanager.GetSecretValueInput,
				) (*secretsmanager.GetSecretValueOutput, error) {
					return nil, errors.New("expired token")
				})
			},
			assertions: func(_ string, err error) {
				require.Error(t, err)
				require.False(t, errors.Is(err, ErrNotFound))
				require.Contains(t, err.Error(), "expired token")
			},
		},
		{
			name: "string secret",
			backend: func() *AWSBackend {
				return withClient(func(
					in *secretsmanager.GetSecretValueInput,
				) (*secretsmanager.GetSecretValueOutput, error) {
					// The AWS backend uses unprefixed names
					require.Equal(t, GitHubPrivateKey, aws.ToString(in.SecretId))
					return &secretsmanager.GetSecretValueOutput{
						SecretString: aws.String("pem"),
					}, nil
				})
			},
			assertions: func(val string, err error) {
				require.NoError(t, err)
				require.Equal(t, "pem", val)
			},
		},
		{
			name: "binary secret",
			backend: func() *AWSBackend {
				return withClient(func(
					*secretsmanager.GetSecretValueInput,
				) (*secretsmanager.GetSecretValueOutput, error) {
					return &secretsmanager.GetSecretValueOutput{
						SecretBinary: []byte("binary pem"),
					}, nil
				})
			},
			assertions: func(val string, err error) {
				require.NoError(t, err)
				require.Equal(t, "binary pem", val)
			},
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			testCase.assertions(
				testCase.backend().Get(context.Background(), GitHubPrivateKey),
			)
		})
	}
}
