package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/go-github/v69/github"
	"github.com/pkg/errors"
)

// listPageSize is the largest page size the GitHub REST API allows.
const listPageSize = 100

// GetRepository returns the specified repository.
func (i *IdentityService) GetRepository(
	ctx context.Context,
	installationID int64,
	owner string,
	repo string,
) (*github.Repository, error) {
	repository := &github.Repository{}
	if _, err := i.Do(
		ctx,
		installationID,
		http.MethodGet,
		fmt.Sprintf("repos/%v/%v", owner, repo),
		nil,
		repository,
	); err != nil {
		return nil, err
	}
	return repository, nil
}

// GetPullRequest returns the specified pull request.
func (i *IdentityService) GetPullRequest(
	ctx context.Context,
	installationID int64,
	owner string,
	repo string,
	number int,
) (*github.PullRequest, error) {
	pr := &github.PullRequest{}
	if _, err := i.Do(
		ctx,
		installationID,
		http.MethodGet,
		fmt.Sprintf("repos/%v/%v/pulls/%d", owner, repo, number),
		nil,
		pr,
	); err != nil {
		return nil, err
	}
	return pr, nil
}

// ListPullRequestFiles returns every file touched by the specified pull
// request, following pagination to the end.
func (i *IdentityService) ListPullRequestFiles(
	ctx context.Context,
	installationID int64,
	owner string,
	repo string,
	number int,
) ([]*github.CommitFile, error) {
	var files []*github.CommitFile
	for page := 1; page != 0; {
		var pageFiles []*github.CommitFile
		resp, err := i.Do(
			ctx,
			installationID,
			http.MethodGet,
			fmt.Sprintf(
				"repos/%v/%v/pulls/%d/files?per_page=%d&page=%d",
				owner,
				repo,
				number,
				listPageSize,
				page,
			),
			nil,
			&pageFiles,
		)
		if err != nil {
			return nil, err
		}
		files = append(files, pageFiles...)
		page = resp.NextPage
	}
	return files, nil
}

// GetFileContents returns the decoded contents of the file at the given path
// and ref. The second return value is false if no such file exists.
func (i *IdentityService) GetFileContents(
	ctx context.Context,
	installationID int64,
	owner string,
	repo string,
	path string,
	ref string,
) (string, bool, error) {
	endpoint := fmt.Sprintf("repos/%v/%v/contents/%s", owner, repo, path)
	if ref != "" {
		endpoint = fmt.Sprintf("%s?ref=%s", endpoint, url.QueryEscape(ref))
	}
	content := &github.RepositoryContent{}
	if _, err := i.Do(
		ctx,
		installationID,
		http.MethodGet,
		endpoint,
		nil,
		content,
	); err != nil {
		if IsNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	if content.GetType() != "" && content.GetType() != "file" {
		return "", false, errors.Errorf("%s is a %s, not a file", path, content.GetType())
	}
	decoded, err := content.GetContent()
	if err != nil {
		return "", false, errors.Wrapf(err, "error decoding contents of %s", path)
	}
	return decoded, true, nil
}

// GetCollaboratorPermission returns the permission level ("admin", "maintain",
// "write", "triage", "read", or "none") the specified user holds on the
// specified repository. Users who aren't collaborators at all have "none".
func (i *IdentityService) GetCollaboratorPermission(
	ctx context.Context,
	installationID int64,
	owner string,
	repo string,
	user string,
) (string, error) {
	level := &github.RepositoryPermissionLevel{}
	if _, err := i.Do(
		ctx,
		installationID,
		http.MethodGet,
		fmt.Sprintf("repos/%v/%v/collaborators/%v/permission", owner, repo, user),
		nil,
		level,
	); err != nil {
		if IsNotFound(err) {
			return "none", nil
		}
		return "", err
	}
	return level.GetPermission(), nil
}
