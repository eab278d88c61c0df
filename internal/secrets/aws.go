package secrets

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"
)

// AWSOptions encapsulates configuration shared by the AWS backed components.
type AWSOptions struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// KMSKeyID identifies the KMS key used for envelope encryption.
	KMSKeyID string
}

// hasCredentials returns true if explicit credentials were supplied. The AWS
// backends are only consulted when they were.
func (a AWSOptions) hasCredentials() bool {
	return a.AccessKeyID != "" && a.SecretAccessKey != ""
}

func (a AWSOptions) loadConfig() (aws.Config, error) {
	return config.LoadDefaultConfig(
		context.Background(),
		config.WithRegion(a.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				a.AccessKeyID,
				a.SecretAccessKey,
				"",
			),
		),
	)
}

// SecretsManagerClient is the subset of the AWS Secrets Manager client used
// here.
type SecretsManagerClient interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSBackend is a Backend over AWS Secrets Manager. Secret IDs are the
// unprefixed logical names.
type AWSBackend struct {
	opts   AWSOptions
	client *lazy[SecretsManagerClient]
}

// NewAWSBackend returns a Backend over AWS Secrets Manager. The underlying
// client is not constructed until the first lookup.
func NewAWSBackend(opts AWSOptions) *AWSBackend {
	return newAWSBackend(opts, func() (SecretsManagerClient, error) {
		cfg, err := opts.loadConfig()
		if err != nil {
			return nil, err
		}
		return secretsmanager.NewFromConfig(cfg), nil
	})
}

func newAWSBackend(
	opts AWSOptions,
	newClientFn func() (SecretsManagerClient, error),
) *AWSBackend {
	return &AWSBackend{
		opts:   opts,
		client: newLazy(newClientFn),
	}
}

// Name implements Backend.
func (a *AWSBackend) Name() string {
	return "aws-secrets-manager"
}

// Get implements Backend. String secrets are returned as-is; binary secrets
// are interpreted as UTF-8.
func (a *AWSBackend) Get(ctx context.Context, name string) (string, error) {
	if !a.opts.hasCredentials() {
		return "", ErrNotConfigured
	}
	client, err := a.client.get()
	if err != nil {
		return "", errors.Wrap(err, "error creating Secrets Manager client")
	}
	res, err := client.GetSecretValue(
		ctx,
		&secretsmanager.GetSecretValueInput{
			SecretId: aws.String(name),
		},
	)
	if err != nil {
		if isAWSNotFound(err) {
			return "", ErrNotFound
		}
		return "", errors.Wrapf(err, "error getting secret value for %q", name)
	}
	if res.SecretString != nil {
		return aws.ToString(res.SecretString), nil
	}
	return string(res.SecretBinary), nil
}

// Reset discards the memoized client, or memoized construction failure, so
// that the next lookup constructs it again.
func (a *AWSBackend) Reset() {
	a.client.reset()
}

func isAWSNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ResourceNotFoundException", "NotFoundException":
			return true
		}
	}
	return false
}
