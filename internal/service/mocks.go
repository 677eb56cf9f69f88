package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/yakoovad/head2head/internal/model"
	"github.com/yakoovad/head2head/internal/repository"
)

type MockTransactor struct {
	mock.Mock
}

func (m *MockTransactor) WithinTransaction(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type MockTokenIssuer struct {
	mock.Mock
}

func (m *MockTokenIssuer) GenerateToken(userID int64) (string, error) {
	args := m.Called(userID)
	return args.String(0), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *repository.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) Get(ctx context.Context, userID int64) (*repository.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.User), args.Error(1)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*repository.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.User), args.Error(1)
}

type MockGroupRepository struct {
	mock.Mock
}

func (m *MockGroupRepository) Create(ctx context.Context, group *repository.Group) error {
	args := m.Called(ctx, group)
	return args.Error(0)
}

func (m *MockGroupRepository) Get(ctx context.Context, groupID int64) (*repository.Group, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Group), args.Error(1)
}

func (m *MockGroupRepository) Lock(ctx context.Context, groupID int64) (*repository.Group, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Group), args.Error(1)
}

func (m *MockGroupRepository) Patch(ctx context.Context, patch *repository.GroupPatch) (*repository.Group, error) {
	args := m.Called(ctx, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Group), args.Error(1)
}

func (m *MockGroupRepository) Delete(ctx context.Context, groupID int64) error {
	args := m.Called(ctx, groupID)
	return args.Error(0)
}

func (m *MockGroupRepository) ListForUser(ctx context.Context, userID int64) ([]*repository.UserGroup, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.UserGroup), args.Error(1)
}

type MockMembershipRepository struct {
	mock.Mock
}

func (m *MockMembershipRepository) Create(ctx context.Context, membership *repository.Membership) error {
	args := m.Called(ctx, membership)
	return args.Error(0)
}

func (m *MockMembershipRepository) Get(ctx context.Context, groupID, userID int64) (*repository.Membership, error) {
	args := m.Called(ctx, groupID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Membership), args.Error(1)
}

func (m *MockMembershipRepository) ListByGroup(ctx context.Context, groupID int64) ([]*repository.Membership, error) {
	args := m.Called(ctx, groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.Membership), args.Error(1)
}

func (m *MockMembershipRepository) SetRole(ctx context.Context, groupID, userID int64, role model.Role) error {
	args := m.Called(ctx, groupID, userID, role)
	return args.Error(0)
}

func (m *MockMembershipRepository) AddRating(ctx context.Context, groupID, userID int64, delta float64) error {
	args := m.Called(ctx, groupID, userID, delta)
	return args.Error(0)
}

func (m *MockMembershipRepository) Delete(ctx context.Context, groupID, userID int64) error {
	args := m.Called(ctx, groupID, userID)
	return args.Error(0)
}

type MockInviteRepository struct {
	mock.Mock
}

func (m *MockInviteRepository) Create(ctx context.Context, invite *repository.Invite) error {
	args := m.Called(ctx, invite)
	return args.Error(0)
}

func (m *MockInviteRepository) Get(ctx context.Context, inviteID int64) (*repository.Invite, error) {
	args := m.Called(ctx, inviteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Invite), args.Error(1)
}

func (m *MockInviteRepository) Lock(ctx context.Context, inviteID int64) (*repository.Invite, error) {
	args := m.Called(ctx, inviteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Invite), args.Error(1)
}

func (m *MockInviteRepository) GetPending(ctx context.Context, groupID, inviteeID int64) (*repository.Invite, error) {
	args := m.Called(ctx, groupID, inviteeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Invite), args.Error(1)
}

func (m *MockInviteRepository) Resolve(ctx context.Context, inviteID int64, status model.InviteStatus, at time.Time) (*repository.Invite, error) {
	args := m.Called(ctx, inviteID, status, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Invite), args.Error(1)
}

func (m *MockInviteRepository) ListPendingForUser(ctx context.Context, inviteeID int64) ([]*repository.InviteSummary, error) {
	args := m.Called(ctx, inviteeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.InviteSummary), args.Error(1)
}

type MockMatchRepository struct {
	mock.Mock
}

func (m *MockMatchRepository) Create(ctx context.Context, match *repository.Match) error {
	args := m.Called(ctx, match)
	return args.Error(0)
}

func (m *MockMatchRepository) AddParticipants(ctx context.Context, matchID int64, participants []*repository.Participant) error {
	args := m.Called(ctx, matchID, participants)
	return args.Error(0)
}

func (m *MockMatchRepository) Get(ctx context.Context, matchID int64) (*repository.Match, error) {
	args := m.Called(ctx, matchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Match), args.Error(1)
}

func (m *MockMatchRepository) ListByGroup(ctx context.Context, groupID int64, limit, offset int) ([]*repository.Match, error) {
	args := m.Called(ctx, groupID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.Match), args.Error(1)
}

func (m *MockMatchRepository) GetParticipants(ctx context.Context, matchIDs []int64) (map[int64][]*repository.Participant, error) {
	args := m.Called(ctx, matchIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64][]*repository.Participant), args.Error(1)
}
