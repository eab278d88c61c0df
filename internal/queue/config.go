package queue

import (
	"context"
	"time"

	"github.com/brigadecore/brigade/sdk/v2/core"
	"github.com/brigadecore/brigade/sdk/v2/restmachinery"
	"github.com/pkg/errors"
)

const (
	BackendRedis   = "redis"
	BackendSQS     = "sqs"
	BackendBrigade = "brigade"
)

// BrigadeOptions encapsulates the details needed to talk to the Brigade API.
type BrigadeOptions struct {
	APIAddress    string
	APIToken      string
	ClientOptions restmachinery.APIClientOptions
}

// Config encapsulates configuration for selecting and constructing a Queue.
type Config struct {
	// Backend is one of "redis", "sqs", or "brigade". It defaults to "redis".
	Backend  string
	RedisURL string
	SQS      SQSOptions
	Brigade  BrigadeOptions
	// Timeout bounds every enqueue.
	Timeout time.Duration
}

// New returns the Queue selected by the provided configuration.
func New(ctx context.Context, config Config) (Queue, error) {
	switch config.Backend {
	case BackendRedis, "":
		return NewRedisQueue(config.RedisURL)
	case BackendSQS:
		return NewSQSQueue(ctx, config.SQS)
	case BackendBrigade:
		if config.Brigade.APIAddress == "" || config.Brigade.APIToken == "" {
			return nil, errors.New(
				"the Brigade API address and token are required by the brigade queue backend", // nolint: lll
			)
		}
		return NewBrigadeQueue(
			core.NewEventsClient(
				config.Brigade.APIAddress,
				config.Brigade.APIToken,
				&config.Brigade.ClientOptions,
			),
		), nil
	}
	return nil, errors.Errorf("unrecognized queue backend %q", config.Backend)
}
