package repoconfig

import "context"

type MockLoader struct {
	LoadFn func(
		ctx context.Context,
		installationID int64,
		owner string,
		repo string,
		ref string,
	) (Config, error)
}

func (m *MockLoader) Load(
	ctx context.Context,
	installationID int64,
	owner string,
	repo string,
	ref string,
) (Config, error) {
	return m.LoadFn(ctx, installationID, owner, repo, ref)
}
