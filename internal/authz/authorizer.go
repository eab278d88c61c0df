package authz

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// DefaultAllowedAuthorAssociations are the relationships to a repository that,
// by default, permit a user to request work through a comment command.
var DefaultAllowedAuthorAssociations = []string{"OWNER", "MEMBER", "COLLABORATOR"}

// PermissionGetter is an interface for components that can look up the
// permission level a user holds on a repository.
type PermissionGetter interface {
	GetCollaboratorPermission(
		ctx context.Context,
		installationID int64,
		owner string,
		repo string,
		user string,
	) (string, error)
}

// Request describes a user asking for work to be done on a repository.
type Request struct {
	InstallationID int64
	Owner          string
	Repo           string
	User           string
	// AuthorAssociation is the user's relationship to the repository as
	// reported in the webhook, e.g. "OWNER" or "CONTRIBUTOR".
	AuthorAssociation string
}

// Authorizer is an interface for components that decide whether a user may
// request work on a repository.
type Authorizer interface {
	Authorize(ctx context.Context, req Request) (bool, error)
}

type authorizer struct {
	allowedAuthorAssociations map[string]struct{}
	permissions               PermissionGetter
}

// NewAuthorizer returns an implementation of the Authorizer interface. Users
// whose author association is in the allowed list are always permitted. Anyone
// else is permitted only if they hold write access or better, which is looked
// up using the provided PermissionGetter.
func NewAuthorizer(
	allowedAuthorAssociations []string,
	permissions PermissionGetter,
) Authorizer {
	allowed := make(map[string]struct{}, len(allowedAuthorAssociations))
	for _, a := range allowedAuthorAssociations {
		allowed[a] = struct{}{}
	}
	return &authorizer{
		allowedAuthorAssociations: allowed,
		permissions:               permissions,
	}
}

func (a *authorizer) Authorize(ctx context.Context, req Request) (bool, error) {
	if _, ok := a.allowedAuthorAssociations[req.AuthorAssociation]; ok {
		return true, nil
	}
	permission, err := a.permissions.GetCollaboratorPermission(
		ctx,
		req.InstallationID,
		req.Owner,
		req.Repo,
		req.User,
	)
	if err != nil {
		return false, errors.Wrapf(
			err,
			"error looking up permission of %s on %s/%s",
			req.User,
			req.Owner,
			req.Repo,
		)
	}
	switch permission {
	case "admin", "maintain", "write":
		return true, nil
	}
	log.Info(
		"user is not permitted to request work",
		"user", req.User,
		"repo", req.Owner+"/"+req.Repo,
		"association", req.AuthorAssociation,
		"permission", permission,
	)
	return false, nil
}
