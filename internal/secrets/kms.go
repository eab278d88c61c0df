package secrets

import (
	"context"
	"fmt"
	"time"

	gcpkms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/aws/aws-sdk-go-v2/aws"
	awskms "github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/charmbracelet/log"
	"github.com/googleapis/gax-go/v2"
	"github.com/pkg/errors"
)

// Cipher is a symmetric encryption service backed by a key management
// service.
type Cipher interface {
	// Name returns a short, human-readable name for the cipher, used in logs.
	Name() string
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// CipherChain tries an ordered list of Ciphers and returns the first result.
// Like the Resolver, it never returns an error; failures are logged and the
// next Cipher is tried.
type CipherChain struct {
	ciphers []Cipher
	timeout time.Duration
}

// NewCipherChain returns a CipherChain that tries ciphers in the order given.
// Each call is bounded by timeout.
func NewCipherChain(timeout time.Duration, ciphers ...Cipher) *CipherChain {
	return &CipherChain{
		ciphers: ciphers,
		timeout: timeout,
	}
}

// Encrypt returns the ciphertext produced by the first Cipher that succeeds.
func (c *CipherChain) Encrypt(
	ctx context.Context,
	plaintext []byte,
) ([]byte, bool) {
	return c.try(ctx, "encrypt", func(
		ctx context.Context,
		cipher Cipher,
	) ([]byte, error) {
		return cipher.Encrypt(ctx, plaintext)
	})
}

// Decrypt returns the plaintext produced by the first Cipher that succeeds.
func (c *CipherChain) Decrypt(
	ctx context.Context,
	ciphertext []byte,
) ([]byte, bool) {
	return c.try(ctx, "decrypt", func(
		ctx context.Context,
		cipher Cipher,
	) ([]byte, error) {
		return cipher.Decrypt(ctx, ciphertext)
	})
}

func (c *CipherChain) try(
	ctx context.Context,
	op string,
	fn func(context.Context, Cipher) ([]byte, error),
) ([]byte, bool) {
	for _, cipher := range c.ciphers {
		out, err := c.call(ctx, cipher, fn)
		if err == nil {
			return out, true
		}
		if !errors.Is(err, ErrNotConfigured) {
			log.Warn(
				"key management operation failed; falling back",
				"op", op,
				"cipher", cipher.Name(),
				"err", err,
			)
		}
	}
	return nil, false
}

func (c *CipherChain) call(
	ctx context.Context,
	cipher Cipher,
	fn func(context.Context, Cipher) ([]byte, error),
) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return fn(ctx, cipher)
}

// GCPKMSClient is the subset of the Google Cloud KMS client used here.
type GCPKMSClient interface {
	Encrypt(
		ctx context.Context,
		req *kmspb.EncryptRequest,
		opts ...gax.CallOption,
	) (*kmspb.EncryptResponse, error)
	Decrypt(
		ctx context.Context,
		req *kmspb.DecryptRequest,
		opts ...gax.CallOption,
	) (*kmspb.DecryptResponse, error)
}

// GCPKMS is a Cipher over a Google Cloud KMS symmetric key.
type GCPKMS struct {
	opts   GCPOptions
	client *lazy[GCPKMSClient]
}

// NewGCPKMS returns a Cipher over the Google Cloud KMS key addressed by opts.
func NewGCPKMS(opts GCPOptions) *GCPKMS {
	return newGCPKMS(opts, func() (GCPKMSClient, error) {
		clientOpts, err := opts.clientOptions()
		if err != nil {
			return nil, err
		}
		return gcpkms.NewKeyManagementClient(context.Background(), clientOpts...)
	})
}

func newGCPKMS(
	opts GCPOptions,
	newClientFn func() (GCPKMSClient, error),
) *GCPKMS {
	return &GCPKMS{
		opts:   opts,
		client: newLazy(newClientFn),
	}
}

// Name implements Cipher.
func (g *GCPKMS) Name() string {
	return "gcp-kms"
}

// KeyName returns the fully qualified resource name of the crypto key.
func (g *GCPKMS) KeyName() string {
	return fmt.Sprintf(
		"projects/%s/locations/%s/keyRings/%s/cryptoKeys/%s",
		g.opts.ProjectID,
		g.opts.Location,
		g.opts.KeyRing,
		g.opts.CryptoKey,
	)
}

func (g *GCPKMS) configured() bool {
	return g.opts.ProjectID != "" && g.opts.Location != "" &&
		g.opts.KeyRing != "" && g.opts.CryptoKey != ""
}

// Encrypt implements Cipher.
func (g *GCPKMS) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if !g.configured() {
		return nil, ErrNotConfigured
	}
	client, err := g.client.get()
	if err != nil {
		return nil, errors.Wrap(err, "error creating KMS client")
	}
	res, err := client.Encrypt(ctx, &kmspb.EncryptRequest{
		Name:      g.KeyName(),
		Plaintext: plaintext,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "error encrypting with key %s", g.KeyName())
	}
	return res.GetCiphertext(), nil
}

// Decrypt implements Cipher.
func (g *GCPKMS) Decrypt(
	ctx context.Context,
	ciphertext []byte,
) ([]byte, error) {
	if !g.configured() {
		return nil, ErrNotConfigured
	}
	client, err := g.client.get()
	if err != nil {
		return nil, errors.Wrap(err, "error creating KMS client")
	}
	res, err := client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:       g.KeyName(),
		Ciphertext: ciphertext,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "error decrypting with key %s", g.KeyName())
	}
	return res.GetPlaintext(), nil
}

// Reset discards the memoized client or construction failure.
func (g *GCPKMS) Reset() {
	g.client.reset()
}

// AWSKMSClient is the subset of the AWS KMS client used here.
type AWSKMSClient interface {
	Encrypt(
		ctx context.Context,
		params *awskms.EncryptInput,
		optFns ...func(*awskms.Options),
	) (*awskms.EncryptOutput, error)
	Decrypt(
		ctx context.Context,
		params *awskms.DecryptInput,
		optFns ...func(*awskms.Options),
	) (*awskms.DecryptOutput, error)
}

// AWSKMS is a Cipher over an AWS KMS symmetric key.
type AWSKMS struct {
	opts   AWSOptions
	client *lazy[AWSKMSClient]
}

// NewAWSKMS returns a Cipher over the AWS KMS key identified by opts.KMSKeyID.
func NewAWSKMS(opts AWSOptions) *AWSKMS {
	return newAWSKMS(opts, func() (AWSKMSClient, error) {
		cfg, err := opts.loadConfig()
		if err != nil {
			return nil, err
		}
		return awskms.NewFromConfig(cfg), nil
	})
}

func newAWSKMS(
	opts AWSOptions,
	newClientFn func() (AWSKMSClient, error),
) *AWSKMS {
	return &AWSKMS{
		opts:   opts,
		client: newLazy(newClientFn),
	}
}

// Name implements Cipher.
func (a *AWSKMS) Name() string {
	return "aws-kms"
}

func (a *AWSKMS) configured() bool {
	return a.opts.hasCredentials() && a.opts.KMSKeyID != ""
}

// Encrypt implements Cipher.
func (a *AWSKMS) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if !a.configured() {
		return nil, ErrNotConfigured
	}
	client, err := a.client.get()
	if err != nil {
		return nil, errors.Wrap(err, "error creating KMS client")
	}
	res, err := client.Encrypt(ctx, &awskms.EncryptInput{
		KeyId:     aws.String(a.opts.KMSKeyID),
		Plaintext: plaintext,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "error encrypting with key %s", a.opts.KMSKeyID)
	}
	return res.CiphertextBlob, nil
}

// Decrypt implements Cipher.
func (a *AWSKMS) Decrypt(
	ctx context.Context,
	ciphertext []byte,
) ([]byte, error) {
	if !a.configured() {
		return nil, ErrNotConfigured
	}
	client, err := a.client.get()
	if err != nil {
		return nil, errors.Wrap(err, "error creating KMS client")
	}
	res, err := client.Decrypt(ctx, &awskms.DecryptInput{
		CiphertextBlob: ciphertext,
		KeyId:          aws.String(a.opts.KMSKeyID),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "error decrypting with key %s", a.opts.KMSKeyID)
	}
	return res.Plaintext, nil
}

// Reset discards the memoized client or construction failure.
func (a *AWSKMS) Reset() {
	a.client.reset()
}
