package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	// TestGenerationQueue is where test generation jobs are sent.
	TestGenerationQueue = "test_generation"
	// CoverageAnalysisQueue is where coverage analysis jobs are sent.
	CoverageAnalysisQueue = "coverage_analysis"
)

// Queue is an interface for components that can hand jobs off to
// out-of-process workers.
type Queue interface {
	// Enqueue sends the JSON encoding of payload to the named queue and returns
	// an identifier for the enqueued message.
	Enqueue(ctx context.Context, queueName string, payload interface{}) (string, error)
}

// Message is the envelope every job is wrapped in before it is sent to a
// backend that carries opaque bytes.
type Message struct {
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Payload    json.RawMessage `json:"payload"`
}

func newMessage(
	queueName string,
	payload interface{},
	now time.Time,
) (Message, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return Message{}, errors.Wrapf(
			err,
			"error marshaling payload for queue %q",
			queueName,
		)
	}
	return Message{
		ID:         uuid.NewString(),
		Queue:      queueName,
		EnqueuedAt: now.UTC(),
		Payload:    payloadJSON,
	}, nil
}
