package webhooks

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/go-github/v69/github"
	"github.com/patchpanda/patchpanda-gateway/internal/authz"
	ghlib "github.com/patchpanda/patchpanda-gateway/internal/github"
	"github.com/patchpanda/patchpanda-gateway/internal/queue"
	"github.com/patchpanda/patchpanda-gateway/internal/repoconfig"
	"github.com/pkg/errors"
)

// PullRequestReader is an interface for components that can read pull request
// details from GitHub.
type PullRequestReader interface {
	GetPullRequest(
		ctx context.Context,
		installationID int64,
		owner string,
		repo string,
		number int,
	) (*github.PullRequest, error)
	ListPullRequestFiles(
		ctx context.Context,
		installationID int64,
		owner string,
		repo string,
		number int,
	) ([]*github.CommitFile, error)
}

// pullRequestTarget carries the identifying details of a pull request that
// every handler needs.
type pullRequestTarget struct {
	installationID int64
	owner          string
	repo           string
	number         int
	headSHA        string
	headRef        string
}

func (p pullRequestTarget) ref() queue.PullRequestRef {
	return queue.PullRequestRef{
		InstallationID: p.installationID,
		Owner:          p.owner,
		Repo:           p.repo,
		Number:         p.number,
		HeadSHA:        p.headSHA,
		HeadRef:        p.headRef,
	}
}

type commentHandler struct {
	pullRequests PullRequestReader
	checks       ghlib.ChecksService
	queue        queue.Service
	authorizer   authz.Authorizer
	configLoader repoconfig.Loader
}

// NewCommentHandler returns an implementation of the CommentHandler interface
// that acts on /patchpanda commands left in pull request comments.
func NewCommentHandler(
	pullRequests PullRequestReader,
	checks ghlib.ChecksService,
	queueService queue.Service,
	authorizer authz.Authorizer,
	configLoader repoconfig.Loader,
) CommentHandler {
	return &commentHandler{
		pullRequests: pullRequests,
		checks:       checks,
		queue:        queueService,
		authorizer:   authorizer,
		configLoader: configLoader,
	}
}

// HandleComment acts on a comment only under a very specific set of conditions:
//
// 1. The action is "created"
// 2. The issue in question is a PR
// 3. The comment contains "/patchpanda test" or "/patchpanda coverage" (case
//    insensitive)
// 4. The comment's author is allowed to request work on the repository
// 5. The requested feature is enabled by the repository's configuration
func (c *commentHandler) HandleComment(
	ctx context.Context,
	event *github.IssueCommentEvent,
) ([]string, error) {
	if event.GetAction() != "created" || !event.GetIssue().IsPullRequest() {
		return nil, nil
	}
	commands := parseCommands(event.GetComment().GetBody())
	if len(commands) == 0 {
		return nil, nil
	}

	target := pullRequestTarget{
		installationID: event.GetInstallation().GetID(),
		owner:          event.GetRepo().GetOwner().GetLogin(),
		repo:           event.GetRepo().GetName(),
		number:         event.GetIssue().GetNumber(),
	}
	user := event.GetComment().GetUser().GetLogin()
	logger := log.With(
		"repo", target.owner+"/"+target.repo,
		"pr", target.number,
		"user", user,
	)

	allowed, err := c.authorizer.Authorize(
		ctx,
		authz.Request{
			InstallationID:    target.installationID,
			Owner:             target.owner,
			Repo:              target.repo,
			User:              user,
			AuthorAssociation: event.GetComment().GetAuthorAssociation(),
		},
	)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, c.comment(
			ctx,
			target,
			fmt.Sprintf(
				"@%s, only repository collaborators with write access can run PatchPanda commands.", // nolint: lll
				user,
			),
		)
	}

	pr, err := c.pullRequests.GetPullRequest(
		ctx,
		target.installationID,
		target.owner,
		target.repo,
		target.number,
	)
	if err != nil {
		return nil, errors.Wrapf(
			err,
			"error getting pull request %d for %s/%s",
			target.number,
			target.owner,
			target.repo,
		)
	}
	target.headSHA = pr.GetHead().GetSHA()
	target.headRef = pr.GetHead().GetRef()

	cfg, err := c.configLoader.Load(
		ctx,
		target.installationID,
		target.owner,
		target.repo,
		target.headSHA,
	)
	if err != nil {
		var validationErr *repoconfig.ValidationError
		if errors.As(err, &validationErr) {
			logger.Info("repository configuration is invalid", "err", err)
			return nil, c.comment(
				ctx,
				target,
				fmt.Sprintf(
					"PatchPanda could not run because `%s` is invalid:\n\n```\n%s\n```",
					repoconfig.FileName,
					validationErr.Error(),
				),
			)
		}
		return nil, err
	}
	if !cfg.Enabled {
		return nil, c.comment(
			ctx,
			target,
			fmt.Sprintf(
				"PatchPanda is disabled for this repository by `%s`.",
				repoconfig.FileName,
			),
		)
	}

	var jobIDs []string
	for _, cmd := range commands {
		var jobID string
		switch cmd {
		case CommandTest:
			if !cfg.TestGenerationEnabled() {
				err = c.comment(ctx, target, disabledMessage("Test generation"))
				break
			}
			jobID, err = c.requestTestGeneration(ctx, target, user, cfg)
		case CommandCoverage:
			if !cfg.CoverageAnalysisEnabled() {
				err = c.comment(ctx, target, disabledMessage("Coverage analysis"))
				break
			}
			jobID, err = c.queue.EnqueueCoverage(
				ctx,
				queue.CoverageJob{
					PullRequestRef: target.ref(),
					RequestedBy:    user,
					Threshold:      cfg.CoverageThreshold,
					Exclude:        cfg.CoverageExclude,
				},
			)
		}
		if err != nil {
			return jobIDs, err
		}
		if jobID != "" {
			logger.Info("command accepted", "command", cmd, "job", jobID)
			jobIDs = append(jobIDs, jobID)
		}
	}
	return jobIDs, nil
}

// requestTestGeneration creates the check run a test generation worker will
// report progress on and then enqueues the job. If the job can't be enqueued,
// the check run is failed so that it isn't left queued forever.
func (c *commentHandler) requestTestGeneration(
	ctx context.Context,
	target pullRequestTarget,
	user string,
	cfg repoconfig.Config,
) (string, error) {
	checkRunID, err := c.checks.CreateTestGenerationCheck(
		ctx,
		target.installationID,
		target.owner,
		target.repo,
		target.headSHA,
	)
	if err != nil {
		return "", err
	}
	jobID, err := c.queue.EnqueueTestGeneration(
		ctx,
		queue.TestGenerationJob{
			PullRequestRef: target.ref(),
			CheckRunID:     checkRunID,
			RequestedBy:    user,
			MaxTests:       cfg.MaxTests,
			TimeoutMinutes: cfg.TimeoutMinutes,
			TestFramework:  cfg.TestFramework,
			TestDirectory:  cfg.TestDirectory,
			Include:        cfg.IncludePatterns,
			Exclude:        cfg.ExcludePatterns,
		},
	)
	if err != nil {
		if updateErr := c.checks.UpdateTestGenerationCheck(
			ctx,
			target.installationID,
			target.owner,
			target.repo,
			checkRunID,
			ghlib.CheckStatusCompleted,
			ghlib.CheckConclusionFailure,
			&github.CheckRunOutput{
				Title:   github.String("Test generation could not be queued"),
				Summary: github.String("Comment `/patchpanda test` to try again."),
			},
		); updateErr != nil {
			log.Error(
				"error failing test generation check run",
				"checkRun", checkRunID,
				"err", updateErr,
			)
		}
		return "", err
	}
	return jobID, nil
}

func (c *commentHandler) comment(
	ctx context.Context,
	target pullRequestTarget,
	body string,
) error {
	_, err := c.checks.CreateComment(
		ctx,
		target.installationID,
		target.owner,
		target.repo,
		target.number,
		body,
	)
	return err
}

func disabledMessage(feature string) string {
	return fmt.Sprintf(
		"%s is disabled for this repository by `%s`.",
		feature,
		repoconfig.FileName,
	)
}
