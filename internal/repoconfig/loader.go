package repoconfig

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// FileGetter is an interface for components that can read a file from a
// repository at a given ref. The second return value is false if the file
// doesn't exist.
type FileGetter interface {
	GetFileContents(
		ctx context.Context,
		installationID int64,
		owner string,
		repo string,
		path string,
		ref string,
	) (string, bool, error)
}

// Loader is an interface for components that can work out the effective
// configuration of a repository at a given ref.
type Loader interface {
	// Load returns the repository's configuration, or the default configuration
	// if the repository has no .testbot.yml file. A file that exists but is
	// invalid results in a *ValidationError.
	Load(
		ctx context.Context,
		installationID int64,
		owner string,
		repo string,
		ref string,
	) (Config, error)
}

type loader struct {
	files FileGetter
}

// NewLoader returns an implementation of the Loader interface that reads
// .testbot.yml files using the provided FileGetter.
func NewLoader(files FileGetter) Loader {
	return &loader{
		files: files,
	}
}

func (l *loader) Load(
	ctx context.Context,
	installationID int64,
	owner string,
	repo string,
	ref string,
) (Config, error) {
	data, ok, err := l.files.GetFileContents(
		ctx,
		installationID,
		owner,
		repo,
		FileName,
		ref,
	)
	if err != nil {
		return Config{}, errors.Wrapf(
			err,
			"error reading %s from %s/%s@%s",
			FileName,
			owner,
			repo,
			ref,
		)
	}
	if !ok {
		log.Debug(
			"no repository configuration found; using defaults",
			"repo", owner+"/"+repo,
			"ref", ref,
		)
		return Default(), nil
	}
	return Parse(data)
}
