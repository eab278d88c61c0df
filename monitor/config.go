package main

import (
	"time"

	"github.com/brigadecore/brigade/sdk/v2/restmachinery"
	"github.com/charmbracelet/log"
	"github.com/patchpanda/patchpanda-gateway/internal/github"
	"github.com/patchpanda/patchpanda-gateway/internal/os"
	"github.com/patchpanda/patchpanda-gateway/internal/secrets"
	"github.com/pkg/errors"
)

// logLevel parses the LOG_LEVEL environment variable.
func logLevel() (log.Level, error) {
	level, err := log.ParseLevel(os.GetEnvVar("LOG_LEVEL", "info"))
	return level, errors.Wrap(err, "error parsing LOG_LEVEL")
}

// apiClientConfig populates the Brigade SDK's APIClientOptions from
// environment variables.
func apiClientConfig() (string, string, restmachinery.APIClientOptions, error) {
	opts := restmachinery.APIClientOptions{}
	address, err := os.GetRequiredEnvVar("API_ADDRESS")
	if err != nil {
		return address, "", opts, err
	}
	token, err := os.GetRequiredEnvVar("API_TOKEN")
	if err != nil {
		return address, token, opts, err
	}
	opts.AllowInsecureConnections, err =
		os.GetBoolFromEnvVar("API_IGNORE_CERT_WARNINGS", false)
	return address, token, opts, err
}

// githubAppConfig populates the GitHub App's identity from environment
// variables. A private key found in a secret store takes precedence over the
// one found here.
func githubAppConfig() (github.App, error) {
	app := github.App{}
	var err error
	if app.AppID, err = os.GetRequiredInt64FromEnvVar("GITHUB_APP_ID"); err != nil {
		return app, err
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

// secretsConfig populates configuration for looking up the App's private key
// in a secret store from environment variables.
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
	config.Timeout, err =
		os.GetDurationFromEnvVar("OUTBOUND_TIMEOUT", github.DefaultTimeout)
	return config, err
}

// detailsURL returns the URL check runs link to.
func detailsURL() string {
	return os.GetEnvVar("DETAILS_URL", "https://patchpanda.com")
}

// getMonitorConfig populates configuration for the monitor from environment
// variables.
func getMonitorConfig() (monitorConfig, error) {
	config := monitorConfig{}
	var err error
	if config.healthcheckInterval, err =
		os.GetDurationFromEnvVar("HEALTHCHECK_INTERVAL", 30*time.Second); err != nil {
		return config, err
	}
	if config.listEventsInterval, err =
		os.GetDurationFromEnvVar("LIST_EVENTS_INTERVAL", 30*time.Second); err != nil {
		return config, err
	}
	config.eventFollowUpInterval, err =
		os.GetDurationFromEnvVar("EVENT_FOLLOW_UP_INTERVAL", 30*time.Second)
	return config, err
}
