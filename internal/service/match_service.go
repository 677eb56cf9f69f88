package service

import (
	"context"

	"github.com/pkg/errors"
	"github.com/yakoovad/head2head/internal/db"
	"github.com/yakoovad/head2head/internal/model"
	"github.com/yakoovad/head2head/internal/rating"
	"github.com/yakoovad/head2head/internal/repository"
	"github.com/yakoovad/head2head/pkg/logger"
	"go.uber.org/zap"
)

const (
	DefaultMatchPageSize = 20
	MaxMatchPageSize     = 100

	teamA = 1
	teamB = 2

	// Every non-winner of a single-winner free-for-all ties for this place.
	runnerUpPlace = 2
)

// MatchService records matches into the append-only ledger and applies the
// resulting rating changes in the same transaction.
type MatchService struct {
	tx db.Transactor

	groups      repository.GroupRepository
	memberships repository.MembershipRepository
	matches     repository.MatchRepository

	engine *rating.Engine
}

func NewMatchService(tx db.Transactor) *MatchService {
	return &MatchService{
		tx:     tx,
		engine: rating.NewEngine(rating.DefaultConfig()),
	}
}

// entry is one validated participant of a submission.
type entry struct {
	userID int64
	team   *int
	place  *int
	// rank feeds the rating engine; it differs from place in single-winner mode.
	rank int
}

// plan is a submission checked for shape, before membership is known.
type plan struct {
	match   *repository.Match
	entries []entry
	// teamSize is nil when the group default applies.
	teamSize *int
	outcome  rating.TeamOutcome
}

// RecordMatch validates sub against the group's current members, stores the
// match with its participants and applies the rating deltas. Either all of it
// commits or nothing does.
func (m *MatchService) RecordMatch(ctx context.Context, actorID, groupID int64, sub model.MatchSubmission) (*model.Match, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("actor_id", actorID), zap.Int64("group_id", groupID))

	p, verr := planSubmission(sub)
	if verr != nil {
		l.Info("rejected match submission", zap.String("reason", verr.Message))
		return nil, verr
	}
	p.match.GroupID = groupID
	p.match.CreatedBy = actorID

	var participants []*repository.Participant

	err := m.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		group, err := m.groups.Lock(txCtx, groupID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return notFoundError("group not found")
		case err != nil:
			l.Error("failed to lock group", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get group")
		}

		members, err := m.memberships.ListByGroup(txCtx, groupID)
		if err != nil {
			l.Error("failed to list members", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to list members")
		}
		ratings := make(map[int64]float64, len(members))
		for _, member := range members {
			ratings[member.UserID] = member.Rating
		}

		if _, ok := ratings[actorID]; !ok {
			return permissionError("only members can record matches")
		}

		if p.match.Kind == model.MatchKindTeam {
			size := group.DefaultTeamSize
			if p.teamSize != nil {
				size = *p.teamSize
			}
			if verr := checkTeamSize(p.entries, size); verr != nil {
				return verr
			}
			p.match.TeamSize = &size
		}

		for _, e := range p.entries {
			if _, ok := ratings[e.userID]; !ok {
				return validationError("user %d is not a member of the group", e.userID)
			}
		}

		deltas, err := m.computeDeltas(p, ratings)
		if err != nil {
			return validationError("invalid outcome: %v", err)
		}

		if err = m.matches.Create(txCtx, p.match); err != nil {
			l.Error("failed to create match", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to create match")
		}

		participants = make([]*repository.Participant, 0, len(p.entries))
		for _, e := range p.entries {
			participants = append(participants, &repository.Participant{
				UserID:       e.userID,
				Team:         e.team,
				Place:        e.place,
				RatingBefore: ratings[e.userID],
				RatingDelta:  deltas[e.userID],
			})
		}
		if err = m.matches.AddParticipants(txCtx, p.match.ID, participants); err != nil {
			l.Error("failed to add participants", zap.Int64("match_id", p.match.ID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to add participants")
		}

		for _, e := range p.entries {
			if err = m.memberships.AddRating(txCtx, groupID, e.userID, deltas[e.userID]); err != nil {
				l.Error("failed to update rating", zap.Int64("user_id", e.userID), zap.Error(err))
				return NewError(ErrorCodeUnspecified, "failed to update rating")
			}
		}

		return nil
	})
	if serr := asServiceError(err); serr != nil {
		return nil, serr
	}

	l.Info("match recorded",
		zap.Int64("match_id", p.match.ID),
		zap.String("kind", string(p.match.Kind)),
		zap.Int("participants", len(participants)))

	return toModelMatch(p.match, participants), nil
}

func (m *MatchService) computeDeltas(p *plan, ratings map[int64]float64) (rating.Deltas, error) {
	if p.match.Kind == model.MatchKindTeam {
		var a, b []rating.Player
		for _, e := range p.entries {
			player := rating.Player{ID: e.userID, Rating: ratings[e.userID]}
			if *e.team == teamA {
				a = append(a, player)
			} else {
				b = append(b, player)
			}
		}
		return m.engine.TeamDeltas(a, b, p.outcome)
	}

	field := make([]rating.PlacedPlayer, 0, len(p.entries))
	for _, e := range p.entries {
		field = append(field, rating.PlacedPlayer{
			Player: rating.Player{ID: e.userID, Rating: ratings[e.userID]},
			Place:  e.rank,
		})
	}
	return m.engine.FFADeltas(field)
}

// planSubmission checks everything that does not depend on stored state.
func planSubmission(sub model.MatchSubmission) (*plan, *Error) {
	switch s := sub.(type) {
	case model.TeamSubmission:
		return planTeam(&s)
	case *model.TeamSubmission:
		if s == nil {
			return nil, validationError("match submission is required")
		}
		return planTeam(s)
	case model.FFASubmission:
		return planFFA(&s)
	case *model.FFASubmission:
		if s == nil {
			return nil, validationError("match submission is required")
		}
		return planFFA(s)
	default:
		return nil, validationError("unknown match kind")
	}
}

func planTeam(s *model.TeamSubmission) (*plan, *Error) {
	if s.TeamSize != nil && *s.TeamSize < 1 {
		return nil, validationError("team size must be at least 1")
	}

	p := &plan{
		match: &repository.Match{
			Kind:   model.MatchKindTeam,
			IsTie:  s.IsTie,
			ScoreA: clonePtr(s.ScoreA),
			ScoreB: clonePtr(s.ScoreB),
		},
		teamSize: clonePtr(s.TeamSize),
	}

	switch {
	case s.IsTie && s.WinnerTeam != nil:
		return nil, validationError("a tie cannot have a winner")
	case s.IsTie:
		p.outcome = rating.Draw
	case s.WinnerTeam == nil:
		return nil, validationError("either a tie or a winner team is required")
	case *s.WinnerTeam == teamA:
		p.outcome = rating.TeamAWins
	case *s.WinnerTeam == teamB:
		p.outcome = rating.TeamBWins
	default:
		return nil, validationError("winner team must be 1 or 2")
	}
	p.match.WinnerTeam = clonePtr(s.WinnerTeam)

	if s.ScoreA != nil && *s.ScoreA < 0 || s.ScoreB != nil && *s.ScoreB < 0 {
		return nil, validationError("scores cannot be negative")
	}

	seen := make(map[int64]int, len(s.TeamA)+len(s.TeamB))
	for team, roster := range [][]int64{teamA: s.TeamA, teamB: s.TeamB} {
		for _, userID := range roster {
			if prev, ok := seen[userID]; ok {
				if prev == team {
					return nil, validationError("user %d is listed twice on team %d", userID, team)
				}
				return nil, validationError("user %d is on both teams", userID)
			}
			seen[userID] = team
		}
	}

	// Entries keep submission order: team A first, then team B.
	for _, userID := range s.TeamA {
		p.entries = append(p.entries, entry{userID: userID, team: intPtr(teamA)})
	}
	for _, userID := range s.TeamB {
		p.entries = append(p.entries, entry{userID: userID, team: intPtr(teamB)})
	}
	return p, nil
}

func checkTeamSize(entries []entry, size int) *Error {
	var a, b int
	for _, e := range entries {
		if *e.team == teamA {
			a++
		} else {
			b++
		}
	}
	if a != size || b != size {
		return validationError("each team needs exactly %d players, got %d and %d", size, a, b)
	}
	return nil
}

func planFFA(s *model.FFASubmission) (*plan, *Error) {
	if len(s.Participants) < 2 {
		return nil, validationError("a free-for-all needs at least 2 participants")
	}

	p := &plan{
		match: &repository.Match{
			Kind:         model.MatchKindFFA,
			SingleWinner: s.WinnerID != nil,
		},
	}

	seen := make(map[int64]struct{}, len(s.Participants))
	winnerListed := false
	for _, pt := range s.Participants {
		if _, ok := seen[pt.UserID]; ok {
			return nil, validationError("user %d is listed twice", pt.UserID)
		}
		seen[pt.UserID] = struct{}{}

		if s.WinnerID != nil {
			rank := runnerUpPlace
			if pt.UserID == *s.WinnerID {
				rank = 1
				winnerListed = true
			}
			p.entries = append(p.entries, entry{userID: pt.UserID, rank: rank})
			continue
		}

		if pt.Place == nil {
			return nil, validationError("user %d has no place", pt.UserID)
		}
		if *pt.Place < 1 {
			return nil, validationError("place of user %d must be at least 1", pt.UserID)
		}
		place := *pt.Place
		p.entries = append(p.entries, entry{userID: pt.UserID, place: &place, rank: place})
	}

	if s.WinnerID != nil {
		if !winnerListed {
			return nil, validationError("winner %d is not a participant", *s.WinnerID)
		}
		winner := *s.WinnerID
		p.match.WinnerID = &winner
	}
	return p, nil
}

// ListMatches returns the group's match history, newest first.
func (m *MatchService) ListMatches(ctx context.Context, actorID, groupID int64, limit, offset int) ([]*model.Match, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("actor_id", actorID), zap.Int64("group_id", groupID))

	if serr := m.checkVisible(ctx, actorID, groupID); serr != nil {
		return nil, serr
	}

	if limit <= 0 {
		limit = DefaultMatchPageSize
	}
	if limit > MaxMatchPageSize {
		limit = MaxMatchPageSize
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := m.matches.ListByGroup(ctx, groupID, limit, offset)
	if err != nil {
		l.Error("failed to list matches", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to list matches")
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	participants, err := m.matches.GetParticipants(ctx, ids)
	if err != nil {
		l.Error("failed to get participants", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get participants")
	}

	res := make([]*model.Match, 0, len(rows))
	for _, row := range rows {
		res = append(res, toModelMatch(row, participants[row.ID]))
	}
	return res, nil
}

func (m *MatchService) GetMatch(ctx context.Context, actorID, matchID int64) (*model.Match, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("actor_id", actorID), zap.Int64("match_id", matchID))

	match, err := m.matches.Get(ctx, matchID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, notFoundError("match not found")
	case err != nil:
		l.Error("failed to get match", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get match")
	}

	if serr := m.checkVisible(ctx, actorID, match.GroupID); serr != nil {
		if serr.Code == ErrorCodeNotFound {
			return nil, notFoundError("match not found")
		}
		return nil, serr
	}

	participants, err := m.matches.GetParticipants(ctx, []int64{matchID})
	if err != nil {
		l.Error("failed to get participants", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get participants")
	}

	return toModelMatch(match, participants[matchID]), nil
}

// checkVisible reports groups the actor is not a member of as not found.
func (m *MatchService) checkVisible(ctx context.Context, actorID, groupID int64) *Error {
	_, err := m.memberships.Get(ctx, groupID, actorID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return notFoundError("group not found")
	case err != nil:
		logger.FromContext(ctx).Error("failed to get membership", zap.Int64("group_id", groupID), zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to get membership")
	}
	return nil
}

func toModelMatch(m *repository.Match, participants []*repository.Participant) *model.Match {
	res := &model.Match{
		ID:           m.ID,
		GroupID:      m.GroupID,
		CreatedBy:    m.CreatedBy,
		CreatedAt:    m.CreatedAt,
		Kind:         m.Kind,
		IsTie:        m.IsTie,
		WinnerTeam:   m.WinnerTeam,
		TeamSize:     m.TeamSize,
		ScoreA:       m.ScoreA,
		ScoreB:       m.ScoreB,
		SingleWinner: m.SingleWinner,
		WinnerID:     m.WinnerID,
		Participants: make([]*model.Participant, 0, len(participants)),
	}
	for _, p := range participants {
		res.Participants = append(res.Participants, &model.Participant{
			UserID:       p.UserID,
			Username:     p.Username,
			Team:         p.Team,
			Place:        p.Place,
			RatingBefore: p.RatingBefore,
			RatingDelta:  p.RatingDelta,
		})
	}
	return res
}

func intPtr(v int) *int {
	return &v
}

// clonePtr detaches stored values from pointers the caller still holds.
func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func (m *MatchService) WithGroupRepo(r repository.GroupRepository) *MatchService {
	m.groups = r
	return m
}

func (m *MatchService) WithMembershipRepo(r repository.MembershipRepository) *MatchService {
	m.memberships = r
	return m
}

func (m *MatchService) WithMatchRepo(r repository.MatchRepository) *MatchService {
	m.matches = r
	return m
}

func (m *MatchService) WithRatingEngine(e *rating.Engine) *MatchService {
	m.engine = e
	return m
}
