package github

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v69/github"
	"github.com/pkg/errors"
)

const (
	// TestGenerationCheckName is the name of the check run that tracks test
	// generation for a commit.
	TestGenerationCheckName = "PatchPanda Test Generation"
	// TestGenerationExternalID ties a check run back to test generation.
	TestGenerationExternalID = "test_generation"
)

// CheckStatus represents the lifecycle stage of a check run.
type CheckStatus string

const (
	CheckStatusQueued     CheckStatus = "queued"
	CheckStatusInProgress CheckStatus = "in_progress"
	CheckStatusCompleted  CheckStatus = "completed"
)

// CheckConclusion represents the final outcome of a completed check run.
type CheckConclusion string

const (
	CheckConclusionSuccess        CheckConclusion = "success"
	CheckConclusionFailure        CheckConclusion = "failure"
	CheckConclusionNeutral        CheckConclusion = "neutral"
	CheckConclusionCancelled      CheckConclusion = "cancelled"
	CheckConclusionSkipped        CheckConclusion = "skipped"
	CheckConclusionTimedOut       CheckConclusion = "timed_out"
	CheckConclusionActionRequired CheckConclusion = "action_required"
)

func (c CheckConclusion) valid() bool {
	switch c {
	case CheckConclusionSuccess,
		CheckConclusionFailure,
		CheckConclusionNeutral,
		CheckConclusionCancelled,
		CheckConclusionSkipped,
		CheckConclusionTimedOut,
		CheckConclusionActionRequired:
		return true
	}
	return false
}

// ErrInvalidCheckRunState is returned when a check run would be given a status
// and conclusion that don't belong together. A conclusion is present if and
// only if the status is completed.
var ErrInvalidCheckRunState = errors.New("invalid check run state")

// CheckRunOptions describes a new check run.
type CheckRunOptions struct {
	Name       string
	HeadSHA    string
	DetailsURL string
	ExternalID string
	// Status defaults to queued.
	Status     CheckStatus
	Conclusion CheckConclusion
	Output     *github.CheckRunOutput
}

// CheckRunUpdateOptions describes changes to an existing check run. Zero
// fields are left unchanged. A Conclusion with no Status implies completed.
type CheckRunUpdateOptions struct {
	Name       string
	Status     CheckStatus
	Conclusion CheckConclusion
	Output     *github.CheckRunOutput
}

// updateCheckRunRequest is used in place of github.UpdateCheckRunOptions, whose
// Name field is always sent.
type updateCheckRunRequest struct {
	Name        string                 `json:"name,omitempty"`
	Status      string                 `json:"status,omitempty"`
	Conclusion  string                 `json:"conclusion,omitempty"`
	CompletedAt *github.Timestamp      `json:"completed_at,omitempty"`
	Output      *github.CheckRunOutput `json:"output,omitempty"`
}

// ChecksService is an interface for components that report progress back to
// GitHub through check runs and pull request comments.
type ChecksService interface {
	// CreateCheckRun creates a check run and returns its ID.
	CreateCheckRun(
		ctx context.Context,
		installationID int64,
		owner string,
		repo string,
		opts CheckRunOptions,
	) (int64, error)
	// UpdateCheckRun updates an existing check run.
	UpdateCheckRun(
		ctx context.Context,
		installationID int64,
		owner string,
		repo string,
		checkRunID int64,
		opts CheckRunUpdateOptions,
	) error
	// CreateComment comments on an issue or pull request and returns the new
	// comment's ID.
	CreateComment(
		ctx context.Context,
		installationID int64,
		owner string,
		repo string,
		issueNumber int,
		body string,
	) (int64, error)
	// UpdateComment replaces the body of an existing comment.
	UpdateComment(
		ctx context.Context,
		installationID int64,
		owner string,
		repo string,
		commentID int64,
		body string,
	) error
	// CreateTestGenerationCheck creates a queued test generation check run for
	// the given commit.
	CreateTestGenerationCheck(
		ctx context.Context,
		installationID int64,
		owner string,
		repo string,
		headSHA string,
	) (int64, error)
	// UpdateTestGenerationCheck moves a test generation check run along.
	UpdateTestGenerationCheck(
		ctx context.Context,
		installationID int64,
		owner string,
		repo string,
		checkRunID int64,
		status CheckStatus,
		conclusion CheckConclusion,
		output *github.CheckRunOutput,
	) error
}

type checksService struct {
	requester  Requester
	detailsURL string
	nowFn      func() time.Time
}

// NewChecksService returns an implementation of the ChecksService interface
// that sends requests using the provided Requester. detailsURL is linked from
// test generation check runs.
func NewChecksService(requester Requester, detailsURL string) ChecksService {
	return &checksService{
		requester:  requester,
		detailsURL: detailsURL,
		nowFn:      time.Now,
	}
}

func (c *checksService) CreateCheckRun(
	ctx context.Context,
	installationID int64,
	owner string,
	repo string,
	opts CheckRunOptions,
) (int64, error) {
	if opts.Status == "" {
		opts.Status = CheckStatusQueued
	}
	if err := validateCheckRunState(opts.Status, opts.Conclusion); err != nil {
		return 0, err
	}
	req := github.CreateCheckRunOptions{
		Name:    opts.Name,
		HeadSHA: opts.HeadSHA,
		Status:  github.String(string(opts.Status)),
		Output:  opts.Output,
	}
	if opts.DetailsURL != "" {
		req.DetailsURL = github.String(opts.DetailsURL)
	}
	if opts.ExternalID != "" {
		req.ExternalID = github.String(opts.ExternalID)
	}
	now := &github.Timestamp{Time: c.nowFn()}
	switch opts.Status {
	case CheckStatusInProgress:
		req.StartedAt = now
	case CheckStatusCompleted:
		req.Conclusion = github.String(string(opts.Conclusion))
		req.CompletedAt = now
	}
	checkRun := &github.CheckRun{}
	if _, err := c.requester.Do(
		ctx,
		installationID,
		http.MethodPost,
		fmt.Sprintf("repos/%v/%v/check-runs", owner, repo),
		req,
		checkRun,
	); err != nil {
		return 0, errors.Wrapf(
			err,
			"error creating check run %q for %s/%s@%s",
			opts.Name,
			owner,
			repo,
			opts.HeadSHA,
		)
	}
	return checkRun.GetID(), nil
}

func (c *checksService) UpdateCheckRun(
	ctx context.Context,
	installationID int64,
	owner string,
	repo string,
	checkRunID int64,
	opts CheckRunUpdateOptions,
) error {
	if opts.Status == "" && opts.Conclusion != "" {
		opts.Status = CheckStatusCompleted
	}
	if opts.Status != "" {
		if err := validateCheckRunState(opts.Status, opts.Conclusion); err != nil {
			return err
		}
	}
	req := updateCheckRunRequest{
		Name:       opts.Name,
		Status:     string(opts.Status),
		Conclusion: string(opts.Conclusion),
		Output:     opts.Output,
	}
	if opts.Status == CheckStatusCompleted {
		req.CompletedAt = &github.Timestamp{Time: c.nowFn()}
	}
	if _, err := c.requester.Do(
		ctx,
		installationID,
		http.MethodPatch,
		fmt.Sprintf("repos/%v/%v/check-runs/%d", owner, repo, checkRunID),
		req,
		nil,
	); err != nil {
		return errors.Wrapf(
			err,
			"error updating check run %d for %s/%s",
			checkRunID,
			owner,
			repo,
		)
	}
	return nil
}

func (c *checksService) CreateComment(
	ctx context.Context,
	installationID int64,
	owner string,
	repo string,
	issueNumber int,
	body string,
) (int64, error) {
	comment := &github.IssueComment{}
	if _, err := c.requester.Do(
		ctx,
		installationID,
		http.MethodPost,
		fmt.Sprintf("repos/%v/%v/issues/%d/comments", owner, repo, issueNumber),
		&github.IssueComment{Body: github.String(body)},
		comment,
	); err != nil {
		return 0, errors.Wrapf(
			err,
			"error commenting on %s/%s#%d",
			owner,
			repo,
			issueNumber,
		)
	}
	return comment.GetID(), nil
}

func (c *checksService) UpdateComment(
	ctx context.Context,
	installationID int64,
	owner string,
	repo string,
	commentID int64,
	body string,
) error {
	if _, err := c.requester.Do(
		ctx,
		installationID,
		http.MethodPatch,
		fmt.Sprintf("repos/%v/%v/issues/comments/%d", owner, repo, commentID),
		&github.IssueComment{Body: github.String(body)},
		nil,
	); err != nil {
		return errors.Wrapf(
			err,
			"error updating comment %d on %s/%s",
			commentID,
			owner,
			repo,
		)
	}
	return nil
}

func (c *checksService) CreateTestGenerationCheck(
	ctx context.Context,
	installationID int64,
	owner string,
	repo string,
	headSHA string,
) (int64, error) {
	return c.CreateCheckRun(
		ctx,
		installationID,
		owner,
		repo,
		CheckRunOptions{
			Name:       TestGenerationCheckName,
			HeadSHA:    headSHA,
			DetailsURL: c.detailsURL,
			ExternalID: TestGenerationExternalID,
			Status:     CheckStatusQueued,
		},
	)
}

func (c *checksService) UpdateTestGenerationCheck(
	ctx context.Context,
	installationID int64,
	owner string,
	repo string,
	checkRunID int64,
	status CheckStatus,
	conclusion CheckConclusion,
	output *github.CheckRunOutput,
) error {
	return c.UpdateCheckRun(
		ctx,
		installationID,
		owner,
		repo,
		checkRunID,
		CheckRunUpdateOptions{
			Status:     status,
			Conclusion: conclusion,
			Output:     output,
		},
	)
}

func validateCheckRunState(
	status CheckStatus,
	conclusion CheckConclusion,
) error {
	switch status {
	case CheckStatusQueued, CheckStatusInProgress:
		if conclusion != "" {
			return errors.Wrapf(
				ErrInvalidCheckRunState,
				"a %s check run cannot have conclusion %q",
				status,
				conclusion,
			)
		}
	case CheckStatusCompleted:
		if conclusion == "" {
			return errors.Wrap(
				ErrInvalidCheckRunState,
				"a completed check run requires a conclusion",
			)
		}
		if !conclusion.valid() {
			return errors.Wrapf(
				ErrInvalidCheckRunState,
				"unrecognized conclusion %q",
				conclusion,
			)
		}
	default:
		return errors.Wrapf(
			ErrInvalidCheckRunState,
			"unrecognized status %q",
			status,
		)
	}
	return nil
}
