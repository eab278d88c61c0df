package queue

import "context"

type MockService struct {
	EnqueueTestGenerationFn func(context.Context, TestGenerationJob) (string, error)
	EnqueueCoverageFn       func(context.Context, CoverageJob) (string, error)
}

func (m *MockService) EnqueueTestGeneration(
	ctx context.Context,
	job TestGenerationJob,
) (string, error) {
	return m.EnqueueTestGenerationFn(ctx, job)
}

func (m *MockService) EnqueueCoverage(
	ctx context.Context,
	job CoverageJob,
) (string, error) {
	return m.EnqueueCoverageFn(ctx, job)
}
