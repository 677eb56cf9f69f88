package memory

import (
	"context"
	"sort"

	"github.com/yakoovad/head2head/internal/repository"
)

type groupRepo struct {
	s *Store
}

func (r *groupRepo) Create(ctx context.Context, group *repository.Group) error {
	defer r.s.acquire(ctx)()
	st := r.s.state

	if _, ok := st.users[group.OwnerID]; !ok {
		return repository.ErrNotFound
	}

	group.ID = st.nextID()
	group.CreatedAt = r.s.now()
	group.UpdatedAt = group.CreatedAt
	st.groups[group.ID] = *group
	return nil
}

func (r *groupRepo) Get(ctx context.Context, groupID int64) (*repository.Group, error) {
	defer r.s.acquire(ctx)()

	g, ok := r.s.state.groups[groupID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &g, nil
}

// Lock is Get: the store-wide transaction lock already serializes writers.
func (r *groupRepo) Lock(ctx context.Context, groupID int64) (*repository.Group, error) {
	return r.Get(ctx, groupID)
}

func (r *groupRepo) Patch(ctx context.Context, patch *repository.GroupPatch) (*repository.Group, error) {
	defer r.s.acquire(ctx)()
	st := r.s.state

	g, ok := st.groups[patch.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if patch.Name != nil {
		g.Name = *patch.Name
	}
	if patch.Sport != nil {
		g.Sport = *patch.Sport
	}
	if patch.DefaultTeamSize != nil {
		g.DefaultTeamSize = *patch.DefaultTeamSize
	}
	if patch.OwnerID != nil {
		g.OwnerID = *patch.OwnerID
	}
	g.UpdatedAt = r.s.now()
	st.groups[g.ID] = g
	return &g, nil
}

func (r *groupRepo) Delete(ctx context.Context, groupID int64) error {
	defer r.s.acquire(ctx)()
	st := r.s.state

	if _, ok := st.groups[groupID]; !ok {
		return repository.ErrNotFound
	}
	delete(st.groups, groupID)

	for k := range st.memberships {
		if k.groupID == groupID {
			delete(st.memberships, k)
		}
	}
	for id, inv := range st.invites {
		if inv.GroupID == groupID {
			delete(st.invites, id)
		}
	}
	for id, m := range st.matches {
		if m.GroupID == groupID {
			delete(st.matches, id)
			delete(st.participants, id)
		}
	}
	return nil
}

func (r *groupRepo) ListForUser(ctx context.Context, userID int64) ([]*repository.UserGroup, error) {
	defer r.s.acquire(ctx)()
	st := r.s.state

	res := make([]*repository.UserGroup, 0)
	for k, m := range st.memberships {
		if k.userID != userID {
			continue
		}
		res = append(res, &repository.UserGroup{
			Group:  st.groups[k.groupID],
			Role:   m.Role,
			Rating: m.Rating,
		})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}
