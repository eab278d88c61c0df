package secrets

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Config encapsulates configuration for the Manager.
type Config struct {
	GCP GCPOptions
	AWS AWSOptions
	// Static holds last-resort values, keyed by logical secret name, that were
	// supplied directly through the environment.
	Static map[string]string
	// PrivateKeyEncrypted indicates that the GitHub App private key, wherever
	// it is resolved from, is base64-encoded KMS ciphertext.
	PrivateKeyEncrypted bool
	// Timeout bounds every call to a secret store or key management service.
	Timeout time.Duration
}

// Manager answers the GitHub-specific secret lookups this gateway needs. Each
// lookup goes to the backends afresh; callers that want caching do it
// themselves.
type Manager struct {
	resolver            *Resolver
	cipher              *CipherChain
	privateKeyEncrypted bool
}

// NewManager returns a Manager that prefers Google Cloud, then AWS, then the
// statically configured values.
func NewManager(config Config) *Manager {
	return &Manager{
		resolver: NewResolver(
			config.Timeout,
			NewGSMBackend(config.GCP),
			NewAWSBackend(config.AWS),
			StaticBackend(config.Static),
		),
		cipher: NewCipherChain(
			config.Timeout,
			NewGCPKMS(config.GCP),
			NewAWSKMS(config.AWS),
		),
		privateKeyEncrypted: config.PrivateKeyEncrypted,
	}
}

// GitHubPrivateKey returns the PEM-encoded GitHub App private key, decrypting
// it first if it is stored encrypted.
func (m *Manager) GitHubPrivateKey(ctx context.Context) (string, bool) {
	val, ok := m.resolver.Resolve(ctx, GitHubPrivateKey)
	if !ok || !m.privateKeyEncrypted {
		return val, ok
	}
	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimSpace(val))
	if err != nil {
		log.Warn("encrypted private key is not valid base64", "err", err)
		return "", false
	}
	plaintext, ok := m.cipher.Decrypt(ctx, ciphertext)
	if !ok {
		return "", false
	}
	return string(plaintext), true
}

// WebhookSecret returns the secret shared with the GitHub App for signing
// webhook deliveries.
func (m *Manager) WebhookSecret(ctx context.Context) (string, bool) {
	return m.resolver.Resolve(ctx, WebhookSecret)
}

// OIDCClientSecret returns the OIDC client secret.
func (m *Manager) OIDCClientSecret(ctx context.Context) (string, bool) {
	return m.resolver.Resolve(ctx, OIDCClientSecret)
}

// Encrypt encrypts plaintext with the first available key management service.
func (m *Manager) Encrypt(ctx context.Context, plaintext []byte) ([]byte, bool) {
	return m.cipher.Encrypt(ctx, plaintext)
}

// Decrypt decrypts ciphertext with the first key management service able to.
func (m *Manager) Decrypt(
	ctx context.Context,
	ciphertext []byte,
) ([]byte, bool) {
	return m.cipher.Decrypt(ctx, ciphertext)
}
