package authz

import "context"

type MockAuthorizer struct {
	AuthorizeFn func(ctx context.Context, req Request) (bool, error)
}

func (m *MockAuthorizer) Authorize(ctx context.Context, req Request) (bool, error) {
	return m.AuthorizeFn(ctx, req)
}
