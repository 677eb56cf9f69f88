package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/yakoovad/head2head/internal/model"
	"github.com/yakoovad/head2head/internal/repository"
)

func TestInviteService_CreateInvite(t *testing.T) {
	group := &repository.Group{ID: 10, OwnerID: 1}

	tests := []struct {
		name          string
		actorID       int64
		invitee       string
		setupMocks    func(*MockUserRepository, *MockGroupRepository, *MockMembershipRepository, *MockInviteRepository)
		expectedError bool
		errorCode     ErrorCode
	}{
		{
			name:    "success",
			actorID: 1,
			invitee: "bob",
			setupMocks: func(ur *MockUserRepository, gr *MockGroupRepository, mr *MockMembershipRepository, ir *MockInviteRepository) {
				gr.On("Lock", mock.Anything, int64(10)).Return(group, nil)
				ur.On("GetByUsername", mock.Anything, "bob").Return(&repository.User{ID: 2}, nil)
				mr.On("Get", mock.Anything, int64(10), int64(2)).Return(nil, repository.ErrNotFound)
				ir.On("GetPending", mock.Anything, int64(10), int64(2)).Return(nil, repository.ErrNotFound)
				ir.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
					inv := args.Get(1).(*repository.Invite)
					inv.ID = 50
					inv.Status = model.InviteStatusPending
				}).Return(nil)
			},
		},
		{
			name:    "failure: not the owner",
			actorID: 2,
			invitee: "carol",
			setupMocks: func(ur *MockUserRepository, gr *MockGroupRepository, mr *MockMembershipRepository, ir *MockInviteRepository) {
				gr.On("Lock", mock.Anything, int64(10)).Return(group, nil)
			},
			expectedError: true,
			errorCode:     ErrorCodePermission,
		},
		{
			name:    "failure: group not found",
			actorID: 1,
			invitee: "bob",
			setupMocks: func(ur *MockUserRepository, gr *MockGroupRepository, mr *MockMembershipRepository, ir *MockInviteRepository) {
				gr.On("Lock", mock.Anything, int64(10)).Return(nil, repository.ErrNotFound)
			},
			expectedError: true,
			errorCode:     ErrorCodeNotFound,
		},
		{
			name:    "failure: unknown username",
			actorID: 1,
			invitee: "ghost",
			setupMocks: func(ur *MockUserRepository, gr *MockGroupRepository, mr *MockMembershipRepository, ir *MockInviteRepository) {
				gr.On("Lock", mock.Anything, int64(10)).Return(group, nil)
				ur.On("GetByUsername", mock.Anything, "ghost").Return(nil, repository.ErrNotFound)
			},
			expectedError: true,
			errorCode:     ErrorCodeNotFound,
		},
		{
			name:    "failure: already a member",
			actorID: 1,
			invitee: "bob",
			setupMocks: func(ur *MockUserRepository, gr *MockGroupRepository, mr *MockMembershipRepository, ir *MockInviteRepository) {
				gr.On("Lock", mock.Anything, int64(10)).Return(group, nil)
				ur.On("GetByUsername", mock.Anything, "bob").Return(&repository.User{ID: 2}, nil)
				mr.On("Get", mock.Anything, int64(10), int64(2)).Return(&repository.Membership{}, nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeConflict,
		},
		{
			name:    "failure: pending invite raced in",
			actorID: 1,
			invitee: "bob",
			setupMocks: func(ur *MockUserRepository, gr *MockGroupRepository, mr *MockMembershipRepository, ir *MockInviteRepository) {
				gr.On("Lock", mock.Anything, int64(10)).Return(group, nil)
				ur.On("GetByUsername", mock.Anything, "bob").Return(&repository.User{ID: 2}, nil)
				mr.On("Get", mock.Anything, int64(10), int64(2)).Return(nil, repository.ErrNotFound)
				ir.On("GetPending", mock.Anything, int64(10), int64(2)).Return(nil, repository.ErrNotFound)
				ir.On("Create", mock.Anything, mock.Anything).Return(repository.ErrAlreadyExists)
			},
			expectedError: true,
			errorCode:     ErrorCodeConflict,
		},
		{
			name:    "failure: empty username",
			actorID: 1,
			invitee: "  ",
			setupMocks: func(ur *MockUserRepository, gr *MockGroupRepository, mr *MockMembershipRepository, ir *MockInviteRepository) {
				gr.On("Lock", mock.Anything, int64(10)).Return(group, nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockUserRepo := new(MockUserRepository)
			mockGroupRepo := new(MockGroupRepository)
			mockMembershipRepo := new(MockMembershipRepository)
			mockInviteRepo := new(MockInviteRepository)

			tt.setupMocks(mockUserRepo, mockGroupRepo, mockMembershipRepo, mockInviteRepo)

			service := NewInviteService(new(MockTransactor)).
				WithUserRepo(mockUserRepo).
				WithGroupRepo(mockGroupRepo).
				WithMembershipRepo(mockMembershipRepo).
				WithInviteRepo(mockInviteRepo)

			got, err := service.CreateInvite(context.Background(), tt.actorID, 10, tt.invitee)

			if tt.expectedError {
				assert.NotNil(t, err)
				assert.Equal(t, tt.errorCode, err.Code)
				assert.Nil(t, got)
			} else {
				assert.Nil(t, err)
				assert.Equal(t, int64(50), got.ID)
				assert.Equal(t, model.InviteStatusPending, got.Status)
			}

			mockUserRepo.AssertExpectations(t)
			mockGroupRepo.AssertExpectations(t)
			mockMembershipRepo.AssertExpectations(t)
			mockInviteRepo.AssertExpectations(t)
		})
	}
}

func TestInviteService_RespondInvite(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	pending := &repository.Invite{ID: 50, GroupID: 10, InviterID: 1, InviteeID: 2, Status: model.InviteStatusPending}
	group := &repository.Group{ID: 10, OwnerID: 1}

	tests := []struct {
		name          string
		actorID       int64
		action        model.InviteAction
		setupMocks    func(*MockGroupRepository, *MockMembershipRepository, *MockInviteRepository)
		expectedError bool
		errorCode     ErrorCode
		expected      model.InviteStatus
	}{
		{
			name:    "success: accept",
			actorID: 2,
			action:  model.InviteActionAccept,
			setupMocks: func(gr *MockGroupRepository, mr *MockMembershipRepository, ir *MockInviteRepository) {
				ir.On("Get", mock.Anything, int64(50)).Return(pending, nil)
				gr.On("Lock", mock.Anything, int64(10)).Return(group, nil)
				ir.On("Lock", mock.Anything, int64(50)).Return(pending, nil)
				mr.On("Create", mock.Anything, mock.MatchedBy(func(m *repository.Membership) bool {
					return m.GroupID == 10 && m.UserID == 2 && m.Role == model.RoleMember && m.Rating == model.DefaultRating
				})).Return(nil)
				ir.On("Resolve", mock.Anything, int64(50), model.InviteStatusAccepted, now).
					Return(&repository.Invite{ID: 50, GroupID: 10, Status: model.InviteStatusAccepted, RespondedAt: &now}, nil)
			},
			expected: model.InviteStatusAccepted,
		},
		{
			name:    "success: decline",
			actorID: 2,
			action:  model.InviteActionDecline,
			setupMocks: func(gr *MockGroupRepository, mr *MockMembershipRepository, ir *MockInviteRepository) {
				ir.On("Get", mock.Anything, int64(50)).Return(pending, nil)
				gr.On("Lock", mock.Anything, int64(10)).Return(group, nil)
				ir.On("Lock", mock.Anything, int64(50)).Return(pending, nil)
				ir.On("Resolve", mock.Anything, int64(50), model.InviteStatusDeclined, now).
					Return(&repository.Invite{ID: 50, GroupID: 10, Status: model.InviteStatusDeclined, RespondedAt: &now}, nil)
			},
			expected: model.InviteStatusDeclined,
		},
		{
			name:    "failure: unknown action",
			actorID: 2,
			action:  "maybe",
			setupMocks: func(gr *MockGroupRepository, mr *MockMembershipRepository, ir *MockInviteRepository) {
			},
			expectedError: true,
			errorCode:     ErrorCodeValidation,
		},
		{
			name:    "failure: invite not found",
			actorID: 2,
			action:  model.InviteActionAccept,
			setupMocks: func(gr *MockGroupRepository, mr *MockMembershipRepository, ir *MockInviteRepository) {
				ir.On("Get", mock.Anything, int64(50)).Return(nil, repository.ErrNotFound)
			},
			expectedError: true,
			errorCode:     ErrorCodeNotFound,
		},
		{
			name:    "failure: actor is not the invitee",
			actorID: 3,
			action:  model.InviteActionAccept,
			setupMocks: func(gr *MockGroupRepository, mr *MockMembershipRepository, ir *MockInviteRepository) {
				ir.On("Get", mock.Anything, int64(50)).Return(pending, nil)
				gr.On("Lock", mock.Anything, int64(10)).Return(group, nil)
				ir.On("Lock", mock.Anything, int64(50)).Return(pending, nil)
			},
			expectedError: true,
			errorCode:     ErrorCodePermission,
		},
		{
			name:    "failure: already declined",
			actorID: 2,
			action:  model.InviteActionAccept,
			setupMocks: func(gr *MockGroupRepository, mr *MockMembershipRepository, ir *MockInviteRepository) {
				declined := &repository.Invite{ID: 50, GroupID: 10, InviteeID: 2, Status: model.InviteStatusDeclined}
				ir.On("Get", mock.Anything, int64(50)).Return(declined, nil)
				gr.On("Lock", mock.Anything, int64(10)).Return(group, nil)
				ir.On("Lock", mock.Anything, int64(50)).Return(declined, nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeConflict,
		},
		{
			name:    "failure: membership already exists",
			actorID: 2,
			action:  model.InviteActionAccept,
			setupMocks: func(gr *MockGroupRepository, mr *MockMembershipRepository, ir *MockInviteRepository) {
				ir.On("Get", mock.Anything, int64(50)).Return(pending, nil)
				gr.On("Lock", mock.Anything, int64(10)).Return(group, nil)
				ir.On("Lock", mock.Anything, int64(50)).Return(pending, nil)
				mr.On("Create", mock.Anything, mock.Anything).Return(repository.ErrAlreadyExists)
			},
			expectedError: true,
			errorCode:     ErrorCodeConflict,
		},
		{
			name:    "failure: resolve error",
			actorID: 2,
			action:  model.InviteActionDecline,
			setupMocks: func(gr *MockGroupRepository, mr *MockMembershipRepository, ir *MockInviteRepository) {
				ir.On("Get", mock.Anything, int64(50)).Return(pending, nil)
				gr.On("Lock", mock.Anything, int64(10)).Return(group, nil)
				ir.On("Lock", mock.Anything, int64(50)).Return(pending, nil)
				ir.On("Resolve", mock.Anything, int64(50), model.InviteStatusDeclined, now).Return(nil, errors.New("db error"))
			},
			expectedError: true,
			errorCode:     ErrorCodeUnspecified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockGroupRepo := new(MockGroupRepository)
			mockMembershipRepo := new(MockMembershipRepository)
			mockInviteRepo := new(MockInviteRepository)

			tt.setupMocks(mockGroupRepo, mockMembershipRepo, mockInviteRepo)

			service := NewInviteService(new(MockTransactor)).
				WithGroupRepo(mockGroupRepo).
				WithMembershipRepo(mockMembershipRepo).
				WithInviteRepo(mockInviteRepo)
			service.now = func() time.Time { return now }

			got, err := service.RespondInvite(context.Background(), tt.actorID, 50, tt.action)

			if tt.expectedError {
				assert.NotNil(t, err)
				assert.Equal(t, tt.errorCode, err.Code)
				assert.Nil(t, got)
			} else {
				assert.Nil(t, err)
				assert.Equal(t, tt.expected, got.Status)
				assert.Equal(t, &now, got.RespondedAt)
			}

			mockGroupRepo.AssertExpectations(t)
			mockMembershipRepo.AssertExpectations(t)
			mockInviteRepo.AssertExpectations(t)
		})
	}
}

func TestInviteService_CancelInvite(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	pending := &repository.Invite{ID: 50, GroupID: 10, InviterID: 1, InviteeID: 2, Status: model.InviteStatusPending}
	group := &repository.Group{ID: 10, OwnerID: 3}

	tests := []struct {
		name          string
		actorID       int64
		expectedError bool
		errorCode     ErrorCode
	}{
		{name: "success: inviter cancels", actorID: 1},
		{name: "success: owner cancels", actorID: 3},
		{name: "failure: invitee cannot cancel", actorID: 2, expectedError: true, errorCode: ErrorCodePermission},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockGroupRepo := new(MockGroupRepository)
			mockInviteRepo := new(MockInviteRepository)

			mockInviteRepo.On("Get", mock.Anything, int64(50)).Return(pending, nil)
			mockGroupRepo.On("Lock", mock.Anything, int64(10)).Return(group, nil)
			mockInviteRepo.On("Lock", mock.Anything, int64(50)).Return(pending, nil)
			mockGroupRepo.On("Get", mock.Anything, int64(10)).Return(group, nil)
			if !tt.expectedError {
				mockInviteRepo.On("Resolve", mock.Anything, int64(50), model.InviteStatusCanceled, now).
					Return(&repository.Invite{ID: 50, Status: model.InviteStatusCanceled, RespondedAt: &now}, nil)
			}

			service := NewInviteService(new(MockTransactor)).
				WithGroupRepo(mockGroupRepo).
				WithInviteRepo(mockInviteRepo)
			service.now = func() time.Time { return now }

			got, err := service.CancelInvite(context.Background(), tt.actorID, 50)

			if tt.expectedError {
				assert.NotNil(t, err)
				assert.Equal(t, tt.errorCode, err.Code)
				assert.Nil(t, got)
			} else {
				assert.Nil(t, err)
				assert.Equal(t, model.InviteStatusCanceled, got.Status)
			}

			mockGroupRepo.AssertExpectations(t)
			mockInviteRepo.AssertExpectations(t)
		})
	}
}

func TestInviteService_ListPendingInvites(t *testing.T) {
	mockInviteRepo := new(MockInviteRepository)
	mockInviteRepo.On("ListPendingForUser", mock.Anything, int64(2)).Return([]*repository.InviteSummary{
		{
			Invite:          repository.Invite{ID: 50, GroupID: 10, InviterID: 1, InviteeID: 2, Status: model.InviteStatusPending},
			GroupName:       "Padel",
			GroupSport:      "padel",
			InviterUsername: "alice",
		},
	}, nil)
	mockInviteRepo.On("ListPendingForUser", mock.Anything, int64(3)).Return(nil, errors.New("db error"))

	service := NewInviteService(new(MockTransactor)).WithInviteRepo(mockInviteRepo)

	got, err := service.ListPendingInvites(context.Background(), 2)
	assert.Nil(t, err)
	if assert.Len(t, got, 1) {
		assert.Equal(t, int64(50), got[0].Invite.ID)
		assert.Equal(t, "alice", got[0].InviterUsername)
	}

	got, err = service.ListPendingInvites(context.Background(), 3)
	assert.Nil(t, got)
	if assert.NotNil(t, err) {
		assert.Equal(t, ErrorCodeUnspecified, err.Code)
	}
}
