package webhooks

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/go-github/v69/github"
	ghlib "github.com/patchpanda/patchpanda-gateway/internal/github"
	"github.com/patchpanda/patchpanda-gateway/internal/queue"
	"github.com/patchpanda/patchpanda-gateway/internal/repoconfig"
	"github.com/pkg/errors"
)

// ConfigCheckName is the name of the check run that reports on the validity of
// a .testbot.yml file changed by a pull request.
const ConfigCheckName = "PatchPanda Configuration"

type pullRequestHandler struct {
	pullRequests PullRequestReader
	checks       ghlib.ChecksService
	queue        queue.Service
	configLoader repoconfig.Loader
}

// NewPullRequestHandler returns an implementation of the PullRequestHandler
// interface that validates configuration changes and requests coverage
// analysis as pull requests are opened and updated.
func NewPullRequestHandler(
	pullRequests PullRequestReader,
	checks ghlib.ChecksService,
	queueService queue.Service,
	configLoader repoconfig.Loader,
) PullRequestHandler {
	return &pullRequestHandler{
		pullRequests: pullRequests,
		checks:       checks,
		queue:        queueService,
		configLoader: configLoader,
	}
}

func (p *pullRequestHandler) HandlePullRequest(
	ctx context.Context,
	event *github.PullRequestEvent,
) ([]string, error) {
	target := pullRequestTarget{
		installationID: event.GetInstallation().GetID(),
		owner:          event.GetRepo().GetOwner().GetLogin(),
		repo:           event.GetRepo().GetName(),
		number:         event.GetNumber(),
		headSHA:        event.GetPullRequest().GetHead().GetSHA(),
		headRef:        event.GetPullRequest().GetHead().GetRef(),
	}
	if target.number == 0 {
		target.number = event.GetPullRequest().GetNumber()
	}
	logger := log.With(
		"repo", target.owner+"/"+target.repo,
		"pr", target.number,
		"action", event.GetAction(),
	)

	switch event.GetAction() {
	case "opened", "reopened", "synchronize":
	case "closed":
		logger.Debug("pull request closed")
		return nil, nil
	default:
		return nil, nil
	}

	configChanged, configRemoved, err := p.touchesConfig(ctx, target)
	if err != nil {
		return nil, err
	}

	cfg, err := p.configLoader.Load(
		ctx,
		target.installationID,
		target.owner,
		target.repo,
		target.headSHA,
	)
	var validationErr *repoconfig.ValidationError
	if err != nil && !errors.As(err, &validationErr) {
		return nil, err
	}
	if configChanged {
		if err = p.reportConfigCheck(
			ctx,
			target,
			configRemoved,
			validationErr,
		); err != nil {
			return nil, err
		}
	}
	if validationErr != nil {
		logger.Info("repository configuration is invalid", "err", validationErr)
		return nil, nil
	}

	if !cfg.CoverageAnalysisEnabled() {
		return nil, nil
	}
	jobID, err := p.queue.EnqueueCoverage(
		ctx,
		queue.CoverageJob{
			PullRequestRef: target.ref(),
			RequestedBy:    event.GetSender().GetLogin(),
			Threshold:      cfg.CoverageThreshold,
			Exclude:        cfg.CoverageExclude,
		},
	)
	if err != nil {
		return nil, err
	}
	return []string{jobID}, nil
}

// touchesConfig reports whether the pull request touches the repository's
// .testbot.yml file at all and, if so, whether the file is gone from the head
// commit. A file renamed away from .testbot.yml counts as removed.
func (p *pullRequestHandler) touchesConfig(
	ctx context.Context,
	target pullRequestTarget,
) (bool, bool, error) {
	files, err := p.pullRequests.ListPullRequestFiles(
		ctx,
		target.installationID,
		target.owner,
		target.repo,
		target.number,
	)
	if err != nil {
		return false, false, errors.Wrapf(
			err,
			"error listing files for pull request %d for %s/%s",
			target.number,
			target.owner,
			target.repo,
		)
	}
	for _, file := range files {
		switch {
		case file.GetFilename() == repoconfig.FileName:
			return true, file.GetStatus() == "removed", nil
		case file.GetPreviousFilename() == repoconfig.FileName:
			return true, true, nil
		}
	}
	return false, false, nil
}

// reportConfigCheck creates a completed check run on the head commit that says
// whether the .testbot.yml file there is valid. A nil validationErr means it
// is. When the file was removed, the check says defaults apply instead.
func (p *pullRequestHandler) reportConfigCheck(
	ctx context.Context,
	target pullRequestTarget,
	removed bool,
	validationErr *repoconfig.ValidationError,
) error {
	opts := ghlib.CheckRunOptions{
		Name:    ConfigCheckName,
		HeadSHA: target.headSHA,
		Status:  ghlib.CheckStatusCompleted,
	}
	switch {
	case removed:
		opts.Conclusion = ghlib.CheckConclusionSuccess
		opts.Output = &github.CheckRunOutput{
			Title: github.String(fmt.Sprintf("%s was removed", repoconfig.FileName)),
			Summary: github.String(
				"PatchPanda will use its default configuration.",
			),
		}
	case validationErr == nil:
		opts.Conclusion = ghlib.CheckConclusionSuccess
		opts.Output = &github.CheckRunOutput{
			Title:   github.String(fmt.Sprintf("%s is valid", repoconfig.FileName)),
			Summary: github.String("PatchPanda will use this configuration."),
		}
	default:
		opts.Conclusion = ghlib.CheckConclusionFailure
		summary := ""
		for _, problem := range validationErr.Problems {
			summary += fmt.Sprintf("- %s\n", problem)
		}
		opts.Output = &github.CheckRunOutput{
			Title:   github.String(fmt.Sprintf("%s is invalid", repoconfig.FileName)),
			Summary: github.String(summary),
		}
	}
	_, err := p.checks.CreateCheckRun(
		ctx,
		target.installationID,
		target.owner,
		target.repo,
		opts,
	)
	return err
}
