package queue

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// PullRequestRef identifies the commit at the head of a pull request.
type PullRequestRef struct {
	InstallationID int64  `json:"installation_id"`
	Owner          string `json:"owner"`
	Repo           string `json:"repo"`
	Number         int    `json:"pr_number"`
	HeadSHA        string `json:"head_sha"`
	HeadRef        string `json:"head_ref,omitempty"`
}

// TestGenerationJob asks a worker to generate tests for a pull request and to
// report progress on the given check run.
type TestGenerationJob struct {
	PullRequestRef
	CheckRunID     int64    `json:"check_run_id"`
	RequestedBy    string   `json:"requested_by,omitempty"`
	MaxTests       int      `json:"max_tests"`
	TimeoutMinutes int      `json:"timeout_minutes"`
	TestFramework  string   `json:"test_framework,omitempty"`
	TestDirectory  string   `json:"test_directory,omitempty"`
	Include        []string `json:"include_patterns,omitempty"`
	Exclude        []string `json:"exclude_patterns,omitempty"`
}

// CoverageJob asks a worker to analyze test coverage for a pull request.
type CoverageJob struct {
	PullRequestRef
	RequestedBy string   `json:"requested_by,omitempty"`
	Threshold   *float64 `json:"coverage_threshold,omitempty"`
	Exclude     []string `json:"coverage_exclude,omitempty"`
}

// Service is an interface for components that enqueue the gateway's jobs.
type Service interface {
	// EnqueueTestGeneration enqueues a test generation job and returns the
	// message ID.
	EnqueueTestGeneration(ctx context.Context, job TestGenerationJob) (string, error)
	// EnqueueCoverage enqueues a coverage analysis job and returns the message
	// ID.
	EnqueueCoverage(ctx context.Context, job CoverageJob) (string, error)
}

// DefaultTimeout bounds a single enqueue when no other timeout is configured.
const DefaultTimeout = 10 * time.Second

type service struct {
	queue   Queue
	timeout time.Duration
}

// NewService returns an implementation of the Service interface that sends
// jobs to the provided Queue. Each enqueue is abandoned after the given
// timeout; a non-positive timeout means DefaultTimeout.
func NewService(queue Queue, timeout time.Duration) Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &service{
		queue:   queue,
		timeout: timeout,
	}
}

func (s *service) EnqueueTestGeneration(
	ctx context.Context,
	job TestGenerationJob,
) (string, error) {
	return s.enqueue(ctx, TestGenerationQueue, job.PullRequestRef, job)
}

func (s *service) EnqueueCoverage(
	ctx context.Context,
	job CoverageJob,
) (string, error) {
	return s.enqueue(ctx, CoverageAnalysisQueue, job.PullRequestRef, job)
}

func (s *service) enqueue(
	ctx context.Context,
	queueName string,
	ref PullRequestRef,
	job interface{},
) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	id, err := s.queue.Enqueue(ctx, queueName, job)
	if err != nil {
		return "", errors.Wrapf(
			err,
			"error enqueueing %s job for %s/%s#%d",
			queueName,
			ref.Owner,
			ref.Repo,
			ref.Number,
		)
	}
	log.Info(
		"enqueued job",
		"queue", queueName,
		"id", id,
		"repo", ref.Owner+"/"+ref.Repo,
		"pr", ref.Number,
		"sha", ref.HeadSHA,
	)
	return id, nil
}
