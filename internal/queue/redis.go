package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of the go-redis client used here.
type RedisClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisQueue is a Queue that LPUSHes each message onto a Redis list named for
// its queue. Workers are expected to BRPOP from the other end.
type RedisQueue struct {
	client RedisClient
	nowFn  func() time.Time
}

// NewRedisQueue returns a RedisQueue for the Redis server at the given URL,
// e.g. redis://localhost:6379/0.
func NewRedisQueue(redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing Redis URL %q", redisURL)
	}
	return newRedisQueue(redis.NewClient(opts)), nil
}

func newRedisQueue(client RedisClient) *RedisQueue {
	return &RedisQueue{
		client: client,
		nowFn:  time.Now,
	}
}

func (r *RedisQueue) Enqueue(
	ctx context.Context,
	queueName string,
	payload interface{},
) (string, error) {
	msg, err := newMessage(queueName, payload, r.nowFn())
	if err != nil {
		return "", err
	}
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return "", errors.Wrap(err, "error marshaling message")
	}
	if err = r.client.LPush(ctx, queueName, msgJSON).Err(); err != nil {
		return "", errors.Wrapf(err, "error pushing message onto %q", queueName)
	}
	return msg.ID, nil
}
