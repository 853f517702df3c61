package board

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/joescharf/issueboard/internal/models"
	"github.com/joescharf/issueboard/internal/store"
)

type storeMock struct{ mock.Mock }

var _ store.IssueStore = (*storeMock)(nil)

func (m *storeMock) ListRecent(ctx context.Context, n int) ([]*models.Issue, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Issue), args.Error(1)
}

func (m *storeMock) ListIssues(ctx context.Context) ([]*models.Issue, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Issue), args.Error(1)
}

func (m *storeMock) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Issue), args.Error(1)
}

func (m *storeMock) CreateIssue(ctx context.Context, issue *models.Issue) error {
	args := m.Called(ctx, issue)
	return args.Error(0)
}

func (m *storeMock) UpdateIssueFields(ctx context.Context, id string, fields models.IssueFields) error {
	args := m.Called(ctx, id, fields)
	return args.Error(0)
}

func (m *storeMock) DeleteIssue(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *storeMock) Subscribe(fn func([]*models.Issue)) (func(), error) {
	args := m.Called(fn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}

// assignID mimics the store filling in the id on creation.
func assignID(id string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		args.Get(1).(*models.Issue).ID = id
	}
}
