package memory

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/yakoovad/head2head/internal/repository"
)

type matchRepo struct {
	s *Store
}

func (r *matchRepo) Create(ctx context.Context, match *repository.Match) error {
	defer r.s.acquire(ctx)()
	st := r.s.state

	if _, ok := st.groups[match.GroupID]; !ok {
		return repository.ErrNotFound
	}

	match.ID = st.nextID()
	match.CreatedAt = r.s.now()
	st.matches[match.ID] = cloneMatch(match)
	return nil
}

// cloneMatch copies m including the values behind its pointer fields, so
// the stored row shares no memory with callers.
func cloneMatch(m *repository.Match) repository.Match {
	c := *m
	c.WinnerTeam = cloneInt(m.WinnerTeam)
	c.TeamSize = cloneInt(m.TeamSize)
	c.ScoreA = cloneInt(m.ScoreA)
	c.ScoreB = cloneInt(m.ScoreB)
	if m.WinnerID != nil {
		id := *m.WinnerID
		c.WinnerID = &id
	}
	return c
}

func cloneParticipant(p *repository.Participant) repository.Participant {
	c := *p
	c.Team = cloneInt(p.Team)
	c.Place = cloneInt(p.Place)
	return c
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func (r *matchRepo) AddParticipants(ctx context.Context, matchID int64, participants []*repository.Participant) error {
	defer r.s.acquire(ctx)()
	st := r.s.state

	if _, ok := st.matches[matchID]; !ok {
		return repository.ErrNotFound
	}

	seen := make(map[int64]struct{}, len(st.participants[matchID])+len(participants))
	for _, pt := range st.participants[matchID] {
		seen[pt.UserID] = struct{}{}
	}

	rows := make([]repository.Participant, 0, len(participants))
	for _, pt := range participants {
		if _, ok := seen[pt.UserID]; ok {
			return errors.Wrap(repository.ErrAlreadyExists, "uq_participant_match_user")
		}
		seen[pt.UserID] = struct{}{}

		pt.MatchID = matchID
		row := cloneParticipant(pt)
		row.Username = st.users[pt.UserID].Username
		rows = append(rows, row)
	}
	st.participants[matchID] = append(st.participants[matchID], rows...)
	return nil
}

func (r *matchRepo) Get(ctx context.Context, matchID int64) (*repository.Match, error) {
	defer r.s.acquire(ctx)()

	m, ok := r.s.state.matches[matchID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := cloneMatch(&m)
	return &c, nil
}

func (r *matchRepo) ListByGroup(ctx context.Context, groupID int64, limit, offset int) ([]*repository.Match, error) {
	defer r.s.acquire(ctx)()

	all := make([]*repository.Match, 0)
	for _, m := range r.s.state.matches {
		if m.GroupID == groupID {
			c := cloneMatch(&m)
			all = append(all, &c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	if offset >= len(all) {
		return []*repository.Match{}, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *matchRepo) GetParticipants(ctx context.Context, matchIDs []int64) (map[int64][]*repository.Participant, error) {
	defer r.s.acquire(ctx)()

	res := make(map[int64][]*repository.Participant, len(matchIDs))
	for _, id := range matchIDs {
		for _, pt := range r.s.state.participants[id] {
			c := cloneParticipant(&pt)
			res[id] = append(res[id], &c)
		}
	}
	return res, nil
}
