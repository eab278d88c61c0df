package secrets

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/pkg/errors"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GCPOptions encapsulates configuration shared by the Google Cloud backed
// components.
type GCPOptions struct {
	// ProjectID is the Google Cloud project holding secrets and keys. If it is
	// empty, the Google Cloud backends are not consulted.
	ProjectID string
	// SecretsPrefix is prepended, with a dash, to logical secret names.
	SecretsPrefix string
	// UseDefaultCredentials selects Application Default Credentials. When false,
	// CredentialsFile must name a service account key file.
	UseDefaultCredentials bool
	// CredentialsFile is the path to a service account key file.
	CredentialsFile string
	// Location, KeyRing, and CryptoKey address the KMS key used for envelope
	// encryption.
	Location  string
	KeyRing   string
	CryptoKey string
}

func (g GCPOptions) clientOptions() ([]option.ClientOption, error) {
	if g.UseDefaultCredentials {
		return nil, nil
	}
	if g.CredentialsFile == "" {
		return nil, errors.New(
			"a credentials file is required when default credentials are disabled",
		)
	}
	return []option.ClientOption{option.WithCredentialsFile(g.CredentialsFile)}, nil
}

// GSMClient is the subset of the Google Secret Manager client used here.
type GSMClient interface {
	AccessSecretVersion(
		ctx context.Context,
		req *secretmanagerpb.AccessSecretVersionRequest,
		opts ...gax.CallOption,
	) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

// GSMBackend is a Backend over Google Secret Manager.
type GSMBackend struct {
	opts   GCPOptions
	client *lazy[GSMClient]
}

// NewGSMBackend returns a Backend over Google Secret Manager. The underlying
// client is not constructed until the first lookup.
func NewGSMBackend(opts GCPOptions) *GSMBackend {
	return newGSMBackend(opts, func() (GSMClient, error) {
		clientOpts, err := opts.clientOptions()
		if err != nil {
			return nil, err
		}
		// Constructed outside of any request context because the client
		// outlives the request that happened to need it first.
		return secretmanager.NewClient(context.Background(), clientOpts...)
	})
}

func newGSMBackend(
	opts GCPOptions,
	newClientFn func() (GSMClient, error),
) *GSMBackend {
	return &GSMBackend{
		opts:   opts,
		client: newLazy(newClientFn),
	}
}

// Name implements Backend.
func (g *GSMBackend) Name() string {
	return "gcp-secret-manager"
}

// SecretID returns the Secret Manager secret ID for a logical name.
func (g *GSMBackend) SecretID(name string) string {
	if g.opts.SecretsPrefix == "" {
		return name
	}
	return fmt.Sprintf("%s-%s", g.opts.SecretsPrefix, name)
}

// Get implements Backend by accessing the latest version of the secret.
func (g *GSMBackend) Get(ctx context.Context, name string) (string, error) {
	if g.opts.ProjectID == "" {
		return "", ErrNotConfigured
	}
	client, err := g.client.get()
	if err != nil {
		return "", errors.Wrap(err, "error creating Secret Manager client")
	}
	res, err := client.AccessSecretVersion(
		ctx,
		&secretmanagerpb.AccessSecretVersionRequest{
			Name: fmt.Sprintf(
				"projects/%s/secrets/%s/versions/latest",
				g.opts.ProjectID,
				g.SecretID(name),
			),
		},
	)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", ErrNotFound
		}
		return "", errors.Wrapf(err, "error accessing secret %q", g.SecretID(name))
	}
	return string(res.GetPayload().GetData()), nil
}

// Reset discards the memoized client, or memoized construction failure, so
// that the next lookup constructs it again.
func (g *GSMBackend) Reset() {
	g.client.reset()
}
