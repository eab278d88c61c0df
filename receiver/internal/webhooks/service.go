package webhooks

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"
	"github.com/google/go-github/v69/github"
	"github.com/pkg/errors"
)

// SignatureVerifier is an interface for components that can check a
// delivery's X-Hub-Signature-256 header against its body.
type SignatureVerifier interface {
	Verify(body []byte, header string) bool
}

// CommentHandler is an interface for components that act upon issue_comment
// events. It returns the IDs of any jobs it enqueued.
type CommentHandler interface {
	HandleComment(
		ctx context.Context,
		event *github.IssueCommentEvent,
	) ([]string, error)
}

// PullRequestHandler is an interface for components that act upon
// pull_request events. It returns the IDs of any jobs it enqueued.
type PullRequestHandler interface {
	HandlePullRequest(
		ctx context.Context,
		event *github.PullRequestEvent,
	) ([]string, error)
}

// Service is an interface for components that can handle webhooks (events) from
// GitHub. Implementations of this interface are transport-agnostic.
type Service interface {
	// Handle authenticates a delivery, then routes it to the handler for its
	// event type. Deliveries that fail authentication return an
	// *AuthenticationError and are never parsed. Bodies that aren't JSON return
	// a *ParseError.
	Handle(ctx context.Context, envelope Envelope) (Outcome, error)
}

type service struct {
	verifier     SignatureVerifier
	comments     CommentHandler
	pullRequests PullRequestHandler
}

// NewService returns an implementation of the Service interface for handling
// webhooks (events) from GitHub.
func NewService(
	verifier SignatureVerifier,
	comments CommentHandler,
	pullRequests PullRequestHandler,
) Service {
	return &service{
		verifier:     verifier,
		comments:     comments,
		pullRequests: pullRequests,
	}
}

func (s *service) Handle(
	ctx context.Context,
	envelope Envelope,
) (Outcome, error) {
	logger := log.With(
		"event", envelope.EventType,
		"delivery", envelope.DeliveryID,
	)

	if envelope.Signature == "" {
		logger.Warn("rejecting delivery without a signature")
		return Outcome{}, &AuthenticationError{Detail: "Missing signature header"}
	}
	if !s.verifier.Verify(envelope.Body, envelope.Signature) {
		logger.Warn("rejecting delivery with an invalid signature")
		return Outcome{}, &AuthenticationError{Detail: "Invalid signature"}
	}

	if !json.Valid(envelope.Body) {
		return Outcome{}, &ParseError{Err: errors.New("body is not valid JSON")}
	}

	switch kindOf(envelope.EventType) {

	// nolint: lll
	// From https://docs.github.com/en/webhooks/webhook-events-and-payloads#issue_comment
	case EventKindIssueComment:
		event := &github.IssueCommentEvent{}
		if err := json.Unmarshal(envelope.Body, event); err != nil {
			return Outcome{}, &ParseError{Err: err}
		}
		jobIDs, err := s.comments.HandleComment(ctx, event)
		if err != nil {
			return Outcome{}, errors.Wrapf(
				err,
				"error handling issue_comment delivery %s",
				envelope.DeliveryID,
			)
		}
		logger.Info("processed comment", "jobs", len(jobIDs))
		return Outcome{Status: StatusCommentProcessed, JobIDs: jobIDs}, nil

	// nolint: lll
	// From https://docs.github.com/en/webhooks/webhook-events-and-payloads#pull_request
	case EventKindPullRequest:
		event := &github.PullRequestEvent{}
		if err := json.Unmarshal(envelope.Body, event); err != nil {
			return Outcome{}, &ParseError{Err: err}
		}
		jobIDs, err := s.pullRequests.HandlePullRequest(ctx, event)
		if err != nil {
			return Outcome{}, errors.Wrapf(
				err,
				"error handling pull_request delivery %s",
				envelope.DeliveryID,
			)
		}
		logger.Info("processed pull request", "jobs", len(jobIDs))
		return Outcome{Status: StatusPRProcessed, JobIDs: jobIDs}, nil

	default:
		logger.Debug("acknowledged delivery")
		return Outcome{Status: StatusAcknowledged}, nil
	}
}
