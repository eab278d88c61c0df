package github

import (
	"context"

	"github.com/google/go-github/v69/github"
)

type MockChecksService struct {
	CreateCheckRunFn func(
		ctx context.Context,
		installationID int64,
		owner string,
		repo string,
		opts CheckRunOptions,
	) (int64, error)
	UpdateCheckRunFn func(
		ctx context.Context,
		installationID int64,
		owner string,
		repo string,
		checkRunID int64,
		opts CheckRunUpdateOptions,
	) error
	CreateCommentFn func(
		ctx context.Context,
		installationID int64,
		owner string,
		repo string,
		issueNumber int,
		body string,
	) (int64, error)
	UpdateCommentFn func(
		ctx context.Context,
		installationID int64,
		owner string,
		repo string,
		commentID int64,
		body string,
	) error
	CreateTestGenerationCheckFn func(
		ctx context.Context,
		installationID int64,
		owner string,
		repo string,
		headSHA string,
	) (int64, error)
	UpdateTestGenerationCheckFn func(
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

func (m *MockChecksService) CreateCheckRun(
	ctx context.Context,
	installationID int64,
	owner string,
	repo string,
	opts CheckRunOptions,
) (int64, error) {
	return m.CreateCheckRunFn(ctx, installationID, owner, repo, opts)
}

func (m *MockChecksService) UpdateCheckRun(
	ctx context.Context,
	installationID int64,
	owner string,
	repo string,
	checkRunID int64,
	opts CheckRunUpdateOptions,
) error {
	return m.UpdateCheckRunFn(ctx, installationID, owner, repo, checkRunID, opts)
}

func (m *MockChecksService) CreateComment(
	ctx context.Context,
	installationID int64,
	owner string,
	repo string,
	issueNumber int,
	body string,
) (int64, error) {
	return m.CreateCommentFn(ctx, installationID, owner, repo, issueNumber, body)
}

func (m *MockChecksService) UpdateComment(
	ctx context.Context,
	installationID int64,
	owner string,
	repo string,
	commentID int64,
	body string,
) error {
	return m.UpdateCommentFn(ctx, installationID, owner, repo, commentID, body)
}

func (m *MockChecksService) CreateTestGenerationCheck(
	ctx context.Context,
	installationID int64,
	owner string,
	repo string,
	headSHA string,
) (int64, error) {
	return m.CreateTestGenerationCheckFn(
		ctx,
		installationID,
		owner,
		repo,
		headSHA,
	)
}

func (m *MockChecksService) UpdateTestGenerationCheck(
	ctx context.Context,
	installationID int64,
	owner string,
	repo string,
	checkRunID int64,
	status CheckStatus,
	conclusion CheckConclusion,
	output *github.CheckRunOutput,
) error {
	return m.UpdateTestGenerationCheckFn(
		ctx,
		installationID,
		owner,
		repo,
		checkRunID,
		status,
		conclusion,
		output,
	)
}
