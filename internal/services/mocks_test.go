package services

import (
	"context"
	"time"

	"github.com/nimasrn/intake-gateway/internal/model"
	"github.com/stretchr/testify/mock"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, s *model.Submission, r model.Routing) error {
	args := m.Called(ctx, s, r)
	return args.Error(0)
}

type MockSubmissionWriter struct {
	mock.Mock
}

func (m *MockSubmissionWriter) Create(ctx context.Context, s *model.Submission) (*model.Submission, error) {
	args := m.Called(ctx, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Submission), args.Error(1)
}

type MockSubmissionRepository struct {
	mock.Mock
}

func (m *MockSubmissionRepository) List(ctx context.Context, f model.SubmissionFilter) ([]*model.Submission, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Submission), args.Get(1).(int64), args.Error(2)
}

func (m *MockSubmissionRepository) MarkRead(ctx context.Context, ids []string, now time.Time) (int64, error) {
	args := m.Called(ctx, ids, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSubmissionRepository) SoftDelete(ctx context.Context, ids []string, now time.Time) (int64, error) {
	args := m.Called(ctx, ids, now)
	return args.Get(0).(int64), args.Error(1)
}
