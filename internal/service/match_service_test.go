package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/yakoovad/head2head/internal/model"
	"github.com/yakoovad/head2head/internal/rating"
	"github.com/yakoovad/head2head/internal/repository"
)

func intp(v int) *int { return &v }

func int64p(v int64) *int64 { return &v }

func memberRows(ratings map[int64]float64) []*repository.Membership {
	res := make([]*repository.Membership, 0, len(ratings))
	for id, r := range ratings {
		res = append(res, &repository.Membership{GroupID: 10, UserID: id, Role: model.RoleMember, Rating: r})
	}
	return res
}

func TestMatchService_RecordMatch_Validation(t *testing.T) {
	tests := []struct {
		name string
		sub  model.MatchSubmission
	}{
		{
			name: "nil submission",
			sub:  nil,
		},
		{
			name: "nil team pointer",
			sub:  (*model.TeamSubmission)(nil),
		},
		{
			name: "tie with winner",
			sub:  model.TeamSubmission{TeamA: []int64{1}, TeamB: []int64{2}, IsTie: true, WinnerTeam: intp(1)},
		},
		{
			name: "neither tie nor winner",
			sub:  model.TeamSubmission{TeamA: []int64{1}, TeamB: []int64{2}},
		},
		{
			name: "winner team out of range",
			sub:  model.TeamSubmission{TeamA: []int64{1}, TeamB: []int64{2}, WinnerTeam: intp(3)},
		},
		{
			name: "negative score",
			sub:  model.TeamSubmission{TeamA: []int64{1}, TeamB: []int64{2}, WinnerTeam: intp(1), ScoreA: intp(-1)},
		},
		{
			name: "player on both teams",
			sub:  model.TeamSubmission{TeamA: []int64{1, 2}, TeamB: []int64{2, 3}, WinnerTeam: intp(1)},
		},
		{
			name: "player twice on one team",
			sub:  &model.TeamSubmission{TeamA: []int64{1, 1}, TeamB: []int64{2, 3}, WinnerTeam: intp(2)},
		},
		{
			name: "team size below one",
			sub:  model.TeamSubmission{TeamA: []int64{1}, TeamB: []int64{2}, TeamSize: intp(0), IsTie: true},
		},
		{
			name: "ffa with one participant",
			sub:  model.FFASubmission{Participants: []model.FFAEntry{{UserID: 1, Place: intp(1)}}},
		},
		{
			name: "ffa duplicate participant",
			sub: model.FFASubmission{Participants: []model.FFAEntry{
				{UserID: 1, Place: intp(1)}, {UserID: 1, Place: intp(2)},
			}},
		},
		{
			name: "ffa missing place",
			sub: model.FFASubmission{Participants: []model.FFAEntry{
				{UserID: 1, Place: intp(1)}, {UserID: 2},
			}},
		},
		{
			name: "ffa place zero",
			sub: &model.FFASubmission{Participants: []model.FFAEntry{
				{UserID: 1, Place: intp(1)}, {UserID: 2, Place: intp(0)},
			}},
		},
		{
			name: "ffa winner not a participant",
			sub: model.FFASubmission{
				Participants: []model.FFAEntry{{UserID: 1}, {UserID: 2}},
				WinnerID:     int64p(3),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockTx := new(MockTransactor)
			mockGroupRepo := new(MockGroupRepository)
			mockMembershipRepo := new(MockMembershipRepository)
			mockMatchRepo := new(MockMatchRepository)

			service := NewMatchService(mockTx).
				WithGroupRepo(mockGroupRepo).
				WithMembershipRepo(mockMembershipRepo).
				WithMatchRepo(mockMatchRepo)

			got, err := service.RecordMatch(context.Background(), 1, 10, tt.sub)

			assert.Nil(t, got)
			if assert.NotNil(t, err) {
				assert.Equal(t, ErrorCodeValidation, err.Code)
			}

			mockGroupRepo.AssertNotCalled(t, "Lock", mock.Anything, mock.Anything)
			mockMatchRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestMatchService_RecordMatch(t *testing.T) {
	group := &repository.Group{ID: 10, Name: "Friday Padel", Sport: "padel", DefaultTeamSize: 1, OwnerID: 1}

	tests := []struct {
		name          string
		actorID       int64
		sub           model.MatchSubmission
		setupMocks    func(*MockGroupRepository, *MockMembershipRepository, *MockMatchRepository)
		expectedError bool
		errorCode     ErrorCode
		expected      map[int64]float64
	}{
		{
			name:    "success: 1v1 at equal ratings",
			actorID: 1,
			sub:     model.TeamSubmission{TeamA: []int64{1}, TeamB: []int64{2}, WinnerTeam: intp(1), ScoreA: intp(6), ScoreB: intp(3)},
			setupMocks: func(gr *MockGroupRepository, mr *MockMembershipRepository, mt *MockMatchRepository) {
				gr.On("Lock", mock.Anything, int64(10)).Return(group, nil)
				mr.On("ListByGroup", mock.Anything, int64(10)).Return(memberRows(map[int64]float64{1: 1000, 2: 1000}), nil)
				mt.On("Create", mock.Anything, mock.MatchedBy(func(m *repository.Match) bool {
					return m.Kind == model.MatchKindTeam && *m.TeamSize == 1 && *m.WinnerTeam == 1 && m.CreatedBy == 1
				})).Run(func(args mock.Arguments) {
					args.Get(1).(*repository.Match).ID = 100
				}).Return(nil)
				mt.On("AddParticipants", mock.Anything, int64(100), mock.MatchedBy(func(ps []*repository.Participant) bool {
					return len(ps) == 2 && *ps[0].Team == 1 && ps[0].RatingBefore == 1000 && ps[1].RatingDelta == -16
				})).Return(nil)
				mr.On("AddRating", mock.Anything, int64(10), int64(1), 16.0).Return(nil)
				mr.On("AddRating", mock.Anything, int64(10), int64(2), -16.0).Return(nil)
			},
			expected: map[int64]float64{1: 16, 2: -16},
		},
		{
			name:    "success: tie at equal ratings",
			actorID: 2,
			sub:     &model.TeamSubmission{TeamA: []int64{1}, TeamB: []int64{2}, IsTie: true},
			setupMocks: func(gr *MockGroupRepository, mr *MockMembershipRepository, mt *MockMatchRepository) {
				gr.On("Lock", mock.Anything, int64(10)).Return(group, nil)
				mr.On("ListByGroup", mock.Anything, int64(10)).Return(memberRows(map[int64]float64{1: 1200, 2: 1200}), nil)
				mt.On("Create", mock.Anything, mock.Anything).Return(nil)
				mt.On("AddParticipants", mock.Anything, mock.Anything, mock.Anything).Return(nil)
				mr.On("AddRating", mock.Anything, int64(10), mock.Anything, 0.0).Return(nil)
			},
			expected: map[int64]float64{1: 0, 2: 0},
		},
		{
			name:    "success: single winner free-for-all",
			actorID: 1,
			sub: model.FFASubmission{
				Participants: []model.FFAEntry{{UserID: 1, Place: intp(3)}, {UserID: 2}, {UserID: 3}},
				WinnerID:     int64p(3),
			},
			setupMocks: func(gr *MockGroupRepository, mr *MockMembershipRepository, mt *MockMatchRepository) {
				gr.On("Lock", mock.Anything, int64(10)).Return(group, nil)
				mr.On("ListByGroup", mock.Anything, int64(10)).Return(memberRows(map[int64]float64{1: 1000, 2: 1000, 3: 1000}), nil)
				mt.On("Create", mock.Anything, mock.MatchedBy(func(m *repository.Match) bool {
					return m.Kind == model.MatchKindFFA && m.SingleWinner && *m.WinnerID == 3 && m.TeamSize == nil
				})).Return(nil)
				mt.On("AddParticipants", mock.Anything, mock.Anything, mock.MatchedBy(func(ps []*repository.Participant) bool {
					for _, p := range ps {
						if p.Place != nil || p.Team != nil {
							return false
						}
					}
					return len(ps) == 3
				})).Return(nil)
				mr.On("AddRating", mock.Anything, int64(10), int64(3), 12.0).Return(nil)
				mr.On("AddRating", mock.Anything, int64(10), int64(1), -6.0).Return(nil)
				mr.On("AddRating", mock.Anything, int64(10), int64(2), -6.0).Return(nil)
			},
			expected: map[int64]float64{1: -6, 2: -6, 3: 12},
		},
		{
			name:    "failure: group not found",
			actorID: 1,
			sub:     model.TeamSubmission{TeamA: []int64{1}, TeamB: []int64{2}, IsTie: true},
			setupMocks: func(gr *MockGroupRepository, mr *MockMembershipRepository, mt *MockMatchRepository) {
				gr.On("Lock", mock.Anything, int64(10)).Return(nil, repository.ErrNotFound)
			},
			expectedError: true,
			errorCode:     ErrorCodeNotFound,
		},
		{
			name:    "failure: actor is not a member",
			actorID: 7,
			sub:     model.TeamSubmission{TeamA: []int64{1}, TeamB: []int64{2}, IsTie: true},
			setupMocks: func(gr *MockGroupRepository, mr *MockMembershipRepository, mt *MockMatchRepository) {
				gr.On("Lock", mock.Anything, int64(10)).Return(group, nil)
				mr.On("ListByGroup", mock.Anything, int64(10)).Return(memberRows(map[int64]float64{1: 1000, 2: 1000}), nil)
			},
			expectedError: true,
			errorCode:     ErrorCodePermission,
		},
		{
			name:    "failure: participant is not a member",
			actorID: 1,
			sub:     model.TeamSubmission{TeamA: []int64{1}, TeamB: []int64{9}, IsTie: true},
			setupMocks: func(gr *MockGroupRepository, mr *MockMembershipRepository, mt *MockMatchRepository) {
				gr.On("Lock", mock.Anything, int64(10)).Return(group, nil)
				mr.On("ListByGroup", mock.Anything, int64(10)).Return(memberRows(map[int64]float64{1: 1000, 2: 1000}), nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeValidation,
		},
		{
			name:    "failure: team size differs from group default",
			actorID: 1,
			sub:     model.TeamSubmission{TeamA: []int64{1, 2}, TeamB: []int64{3, 4}, WinnerTeam: intp(2)},
			setupMocks: func(gr *MockGroupRepository, mr *MockMembershipRepository, mt *MockMatchRepository) {
				gr.On("Lock", mock.Anything, int64(10)).Return(group, nil)
				mr.On("ListByGroup", mock.Anything, int64(10)).Return(memberRows(map[int64]float64{1: 1000, 2: 1000, 3: 1000, 4: 1000}), nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeValidation,
		},
		{
			name:    "failure: uneven teams with explicit size",
			actorID: 1,
			sub:     model.TeamSubmission{TeamA: []int64{1, 2}, TeamB: []int64{3}, TeamSize: intp(2), WinnerTeam: intp(2)},
			setupMocks: func(gr *MockGroupRepository, mr *MockMembershipRepository, mt *MockMatchRepository) {
				gr.On("Lock", mock.Anything, int64(10)).Return(group, nil)
				mr.On("ListByGroup", mock.Anything, int64(10)).Return(memberRows(map[int64]float64{1: 1000, 2: 1000, 3: 1000}), nil)
			},
			expectedError: true,
			errorCode:     ErrorCodeValidation,
		},
		{
			name:    "failure: rating update fails",
			actorID: 1,
			sub:     model.TeamSubmission{TeamA: []int64{1}, TeamB: []int64{2}, WinnerTeam: intp(2)},
			setupMocks: func(gr *MockGroupRepository, mr *MockMembershipRepository, mt *MockMatchRepository) {
				gr.On("Lock", mock.Anything, int64(10)).Return(group, nil)
				mr.On("ListByGroup", mock.Anything, int64(10)).Return(memberRows(map[int64]float64{1: 1000, 2: 1000}), nil)
				mt.On("Create", mock.Anything, mock.Anything).Return(nil)
				mt.On("AddParticipants", mock.Anything, mock.Anything, mock.Anything).Return(nil)
				mr.On("AddRating", mock.Anything, int64(10), int64(1), mock.Anything).Return(errors.New("db error"))
			},
			expectedError: true,
			errorCode:     ErrorCodeUnspecified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockTx := new(MockTransactor)
			mockGroupRepo := new(MockGroupRepository)
			mockMembershipRepo := new(MockMembershipRepository)
			mockMatchRepo := new(MockMatchRepository)

			tt.setupMocks(mockGroupRepo, mockMembershipRepo, mockMatchRepo)

			service := NewMatchService(mockTx).
				WithGroupRepo(mockGroupRepo).
				WithMembershipRepo(mockMembershipRepo).
				WithMatchRepo(mockMatchRepo).
				WithRatingEngine(rating.NewEngine(rating.DefaultConfig()))

			got, err := service.RecordMatch(context.Background(), tt.actorID, 10, tt.sub)

			if tt.expectedError {
				assert.NotNil(t, err)
				assert.Equal(t, tt.errorCode, err.Code)
				assert.Nil(t, got)
				return
			}

			assert.Nil(t, err)
			if assert.NotNil(t, got) {
				assert.Len(t, got.Participants, len(tt.expected))
				for _, p := range got.Participants {
					assert.InDelta(t, tt.expected[p.UserID], p.RatingDelta, 1e-9)
				}
			}

			mockGroupRepo.AssertExpectations(t)
			mockMembershipRepo.AssertExpectations(t)
			mockMatchRepo.AssertExpectations(t)
		})
	}
}

func TestMatchService_ListMatches(t *testing.T) {
	tests := []struct {
		name           string
		limit, offset  int
		setupMocks     func(*MockMembershipRepository, *MockMatchRepository)
		expectedError  bool
		errorCode      ErrorCode
		expectedLength int
	}{
		{
			name:  "success: default page size",
			limit: 0,
			setupMocks: func(mr *MockMembershipRepository, mt *MockMatchRepository) {
				mr.On("Get", mock.Anything, int64(10), int64(1)).Return(&repository.Membership{GroupID: 10, UserID: 1}, nil)
				mt.On("ListByGroup", mock.Anything, int64(10), DefaultMatchPageSize, 0).Return([]*repository.Match{
					{ID: 2, GroupID: 10, Kind: model.MatchKindTeam},
					{ID: 1, GroupID: 10, Kind: model.MatchKindFFA},
				}, nil)
				mt.On("GetParticipants", mock.Anything, []int64{2, 1}).Return(map[int64][]*repository.Participant{
					2: {{MatchID: 2, UserID: 1}, {MatchID: 2, UserID: 2}},
					1: {{MatchID: 1, UserID: 1}, {MatchID: 1, UserID: 2}, {MatchID: 1, UserID: 3}},
				}, nil)
			},
			expectedLength: 2,
		},
		{
			name:   "success: page size capped",
			limit:  1000,
			offset: -5,
			setupMocks: func(mr *MockMembershipRepository, mt *MockMatchRepository) {
				mr.On("Get", mock.Anything, int64(10), int64(1)).Return(&repository.Membership{GroupID: 10, UserID: 1}, nil)
				mt.On("ListByGroup", mock.Anything, int64(10), MaxMatchPageSize, 0).Return([]*repository.Match{}, nil)
				mt.On("GetParticipants", mock.Anything, []int64{}).Return(map[int64][]*repository.Participant{}, nil)
			},
			expectedLength: 0,
		},
		{
			name:  "failure: not a member",
			limit: 10,
			setupMocks: func(mr *MockMembershipRepository, mt *MockMatchRepository) {
				mr.On("Get", mock.Anything, int64(10), int64(1)).Return(nil, repository.ErrNotFound)
			},
			expectedError: true,
			errorCode:     ErrorCodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockMembershipRepo := new(MockMembershipRepository)
			mockMatchRepo := new(MockMatchRepository)

			tt.setupMocks(mockMembershipRepo, mockMatchRepo)

			service := NewMatchService(new(MockTransactor)).
				WithMembershipRepo(mockMembershipRepo).
				WithMatchRepo(mockMatchRepo)

			got, err := service.ListMatches(context.Background(), 1, 10, tt.limit, tt.offset)

			if tt.expectedError {
				assert.NotNil(t, err)
				assert.Equal(t, tt.errorCode, err.Code)
				assert.Nil(t, got)
			} else {
				assert.Nil(t, err)
				assert.Len(t, got, tt.expectedLength)
			}

			mockMembershipRepo.AssertExpectations(t)
			mockMatchRepo.AssertExpectations(t)
		})
	}
}

func TestMatchService_GetMatch(t *testing.T) {
	mockMembershipRepo := new(MockMembershipRepository)
	mockMatchRepo := new(MockMatchRepository)

	mockMatchRepo.On("Get", mock.Anything, int64(5)).Return(&repository.Match{ID: 5, GroupID: 10}, nil)
	mockMatchRepo.On("Get", mock.Anything, int64(6)).Return(nil, repository.ErrNotFound)
	mockMembershipRepo.On("Get", mock.Anything, int64(10), int64(1)).Return(&repository.Membership{}, nil)
	mockMembershipRepo.On("Get", mock.Anything, int64(10), int64(2)).Return(nil, repository.ErrNotFound)
	mockMatchRepo.On("GetParticipants", mock.Anything, []int64{5}).Return(map[int64][]*repository.Participant{
		5: {{MatchID: 5, UserID: 1, Username: "alice"}},
	}, nil)

	service := NewMatchService(new(MockTransactor)).
		WithMembershipRepo(mockMembershipRepo).
		WithMatchRepo(mockMatchRepo)

	got, err := service.GetMatch(context.Background(), 1, 5)
	assert.Nil(t, err)
	if assert.NotNil(t, got) {
		assert.Equal(t, int64(5), got.ID)
		assert.Equal(t, "alice", got.Participants[0].Username)
	}

	got, err = service.GetMatch(context.Background(), 2, 5)
	assert.Nil(t, got)
	if assert.NotNil(t, err) {
		assert.Equal(t, ErrorCodeNotFound, err.Code)
	}

	got, err = service.GetMatch(context.Background(), 1, 6)
	assert.Nil(t, got)
	if assert.NotNil(t, err) {
		assert.Equal(t, ErrorCodeNotFound, err.Code)
	}
}
