package secrets

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// Logical names of the secrets this gateway looks up. Cloud backends may
// decorate these (e.g. with a prefix); the static backend uses them as-is.
const (
	GitHubPrivateKey = "github-private-key"
	WebhookSecret    = "webhook-secret"
	OIDCClientSecret = "oidc-client-secret"
)

var (
	// ErrNotConfigured is returned by a Backend that lacks the configuration it
	// needs to be consulted at all. The Resolver skips such backends quietly.
	ErrNotConfigured = errors.New("secret backend is not configured")
	// ErrNotFound is returned by a Backend that was reachable but holds no value
	// for the requested name.
	ErrNotFound = errors.New("secret not found")
)

// Backend is a single source of secret values.
type Backend interface {
	// Name returns a short, human-readable name for the backend, used in logs.
	Name() string
	// Get returns the value stored under the given logical name.
	Get(ctx context.Context, name string) (string, error)
}

// Resolver looks up secrets through an ordered chain of Backends and returns
// the first non-empty value. It never returns an error: a failing backend is
// logged and treated as having no value. The Resolver does not cache.
type Resolver struct {
	backends []Backend
	timeout  time.Duration
}

// NewResolver returns a Resolver that consults backends in the order given.
// Each backend call is bounded by timeout.
func NewResolver(timeout time.Duration, backends ...Backend) *Resolver {
	return &Resolver{
		backends: backends,
		timeout:  timeout,
	}
}

// Resolve returns the value of the named secret from the first backend that
// has one. The boolean is false if every backend came up empty.
func (r *Resolver) Resolve(ctx context.Context, name string) (string, bool) {
	for _, backend := range r.backends {
		val, err := r.get(ctx, backend, name)
		switch {
		case err == nil && val != "":
			log.Debug("resolved secret", "secret", name, "backend", backend.Name())
			return val, true
		case err == nil, errors.Is(err, ErrNotConfigured):
		case errors.Is(err, ErrNotFound):
			log.Debug("secret not found", "secret", name, "backend", backend.Name())
		default:
			log.Warn(
				"error retrieving secret; falling back",
				"secret", name,
				"backend", backend.Name(),
				"err", err,
			)
		}
	}
	return "", false
}

func (r *Resolver) get(
	ctx context.Context,
	backend Backend,
	name string,
) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return backend.Get(ctx, name)
}

// StaticBackend serves secrets from values fixed at process start, typically
// read from environment variables.
type StaticBackend map[string]string

// Name implements Backend.
func (s StaticBackend) Name() string {
	return "environment"
}

// Get implements Backend.
func (s StaticBackend) Get(_ context.Context, name string) (string, error) {
	if val := s[name]; val != "" {
		return val, nil
	}
	return "", ErrNotFound
}
