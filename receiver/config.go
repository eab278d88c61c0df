package main

// nolint: lll
import (
	"strings"

	"github.com/brigadecore/brigade-foundations/file"
	"github.com/brigadecore/brigade-foundations/http"
	"github.com/brigadecore/brigade/sdk/v2/restmachinery"
	"github.com/charmbracelet/log"
	"github.com/patchpanda/patchpanda-gateway/internal/authz"
	"github.com/patchpanda/patchpanda-gateway/internal/github"
	"github.com/patchpanda/patchpanda-gateway/internal/os"
	"github.com/patchpanda/patchpanda-gateway/internal/queue"
	"github.com/patchpanda/patchpanda-gateway/internal/secrets"
	"github.com/pkg/errors"
)

const defaultDetailsURL = "https://patchpanda.com"

// logLevel parses the LOG_LEVEL environment variable.
func logLevel() (log.Level, error) {
	level, err := log.ParseLevel(os.GetEnvVar("LOG_LEVEL", "info"))
	return level, errors.Wrap(err, "error parsing LOG_LEVEL")
}

// githubAppConfig populates the GitHub App's identity from environment
// variables. The private key found here is only a fallback for when no secret
// store has one.
func githubAppConfig() (github.App, error) {
	app := github.App{}
	var err error
	if app.AppID, err = os.GetRequiredInt64FromEnvVar("GITHUB_APP_ID"); err != nil {
		return app, err
	}
	if keyPath := os.GetEnvVar("GITHUB_APP_PRIVATE_KEY_PATH", ""); keyPath != "" {
		var exists bool
		if exists, err = file.Exists(keyPath); err != nil {
			return app, err
		}
		if !exists {
			return app, errors.Errorf("file %s does not exist", keyPath)
		}
	}
	if app.PrivateKey, err = os.GetEnvVarOrFile(
		"GITHUB_APP_PRIVATE_KEY",
		"GITHUB_APP_PRIVATE_KEY_PATH",
	); err != nil {
		return app, err
	}
	app.BaseURL = os.GetEnvVar("GITHUB_API_URL", github.DefaultBaseURL)
	if app.TokenRefreshMargin, err = os.GetDurationFromEnvVar(
		"TOKEN_REFRESH_MARGIN",
		github.DefaultTokenRefreshMargin,
	); err != nil {
		return app, err
	}
	app.Timeout, err =
		os.GetDurationFromEnvVar("OUTBOUND_TIMEOUT", github.DefaultTimeout)
	return app, err
}

// secretsConfig populates configuration for the secrets manager from
// environment variables.
func secretsConfig() (secrets.Config, error) {
	config := secrets.Config{
		GCP: secrets.GCPOptions{
			ProjectID:       os.GetEnvVar("GCP_PROJECT_ID", ""),
			SecretsPrefix:   os.GetEnvVar("GCP_SECRETS_PREFIX", "patchpanda"),
			CredentialsFile: os.GetEnvVar("GCP_CREDENTIALS_FILE", ""),
			Location:        os.GetEnvVar("GCP_LOCATION", ""),
			KeyRing:         os.GetEnvVar("GCP_KEY_RING", ""),
			CryptoKey:       os.GetEnvVar("GCP_CRYPTO_KEY", ""),
		},
		AWS: secrets.AWSOptions{
			Region:          os.GetEnvVar("AWS_REGION", "us-east-1"),
			AccessKeyID:     os.GetEnvVar("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: os.GetEnvVar("AWS_SECRET_ACCESS_KEY", ""),
			KMSKeyID:        os.GetEnvVar("AWS_KMS_KEY_ID", ""),
		},
		Static: map[string]string{},
	}
	var err error
	if config.GCP.UseDefaultCredentials, err =
		os.GetBoolFromEnvVar("GCP_USE_DEFAULT_CREDENTIALS", true); err != nil {
		return config, err
	}
	if config.PrivateKeyEncrypted, err =
		os.GetBoolFromEnvVar("GITHUB_APP_PRIVATE_KEY_ENCRYPTED", false); err != nil {
		return config, err
	}
	if config.Timeout, err =
		os.GetDurationFromEnvVar("OUTBOUND_TIMEOUT", github.DefaultTimeout); err != nil {
		return config, err
	}
	privateKey, err := os.GetEnvVarOrFile(
		"GITHUB_APP_PRIVATE_KEY",
		"GITHUB_APP_PRIVATE_KEY_PATH",
	)
	if err != nil {
		return config, err
	}
	for name, val := range map[string]string{
		secrets.GitHubPrivateKey: privateKey,
		secrets.WebhookSecret:    os.GetEnvVar("GITHUB_WEBHOOK_SECRET", ""),
		secrets.OIDCClientSecret: os.GetEnvVar("OIDC_CLIENT_SECRET", ""),
	} {
		if val != "" {
			config.Static[name] = val
		}
	}
	return config, nil
}

// queueConfig populates configuration for the job queue from environment
// variables. Settings belonging to backends other than the selected one are
// not required.
func queueConfig() (queue.Config, error) {
	config := queue.Config{
		Backend: strings.ToLower(
			os.GetEnvVar("QUEUE_BACKEND", queue.BackendRedis),
		),
		RedisURL: os.GetEnvVar("REDIS_URL", "redis://localhost:6379"),
		SQS: queue.SQSOptions{
			QueueURL:        os.GetEnvVar("SQS_QUEUE_URL", ""),
			Region:          os.GetEnvVar("AWS_REGION", "us-east-1"),
			AccessKeyID:     os.GetEnvVar("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: os.GetEnvVar("AWS_SECRET_ACCESS_KEY", ""),
		},
	}
	var err error
	if config.Timeout, err =
		os.GetDurationFromEnvVar("OUTBOUND_TIMEOUT", queue.DefaultTimeout); err != nil {
		return config, err
	}
	switch config.Backend {
	case queue.BackendRedis:
	case queue.BackendSQS:
		config.SQS.QueueURL, err = os.GetRequiredEnvVar("SQS_QUEUE_URL")
	case queue.BackendBrigade:
		config.Brigade, err = brigadeConfig()
	default:
		err = errors.Errorf(
			"value %q for environment variable QUEUE_BACKEND is not one of %q",
			config.Backend,
			[]string{queue.BackendRedis, queue.BackendSQS, queue.BackendBrigade},
		)
	}
	return config, err
}

// brigadeConfig populates the Brigade SDK's APIClientOptions from environment
// variables.
func brigadeConfig() (queue.BrigadeOptions, error) {
	config := queue.BrigadeOptions{
		ClientOptions: restmachinery.APIClientOptions{},
	}
	var err error
	if config.APIAddress, err = os.GetRequiredEnvVar("API_ADDRESS"); err != nil {
		return config, err
	}
	if config.APIToken, err = os.GetRequiredEnvVar("API_TOKEN"); err != nil {
		return config, err
	}
	config.ClientOptions.AllowInsecureConnections, err =
		os.GetBoolFromEnvVar("API_IGNORE_CERT_WARNINGS", false)
	return config, err
}

// allowedAuthorAssociations returns the comment author associations that may
// run commands without a permission lookup.
func allowedAuthorAssociations() []string {
	return os.GetStringSliceFromEnvVar(
		"ALLOWED_AUTHOR_ASSOCIATIONS",
		authz.DefaultAllowedAuthorAssociations,
	)
}

// detailsURL returns the URL check runs link to.
func detailsURL() string {
	return os.GetEnvVar("DETAILS_URL", defaultDetailsURL)
}

// serverConfig populates configuration for the HTTP/S server from environment
// variables.
func serverConfig() (http.ServerConfig, error) {
	config := http.ServerConfig{}
	var err error
	config.Port, err = os.GetIntFromEnvVar("RECEIVER_PORT", 8080)
	if err != nil {
		return config, err
	}
	config.TLSEnabled, err = os.GetBoolFromEnvVar("TLS_ENABLED", false)
	if err != nil {
		return config, err
	}
	if config.TLSEnabled {
		config.TLSCertPath, err = os.GetRequiredEnvVar("TLS_CERT_PATH")
		if err != nil {
			return config, err
		}
		config.TLSKeyPath, err = os.GetRequiredEnvVar("TLS_KEY_PATH")
		if err != nil {
			return config, err
		}
	}
	return config, nil
}
