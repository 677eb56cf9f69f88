package memory

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/yakoovad/head2head/internal/model"
	"github.com/yakoovad/head2head/internal/repository"
)

type membershipRepo struct {
	s *Store
}

func (r *membershipRepo) Create(ctx context.Context, m *repository.Membership) error {
	defer r.s.acquire(ctx)()
	st := r.s.state

	if _, ok := st.groups[m.GroupID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := st.users[m.UserID]; !ok {
		return repository.ErrNotFound
	}

	key := memberKey{groupID: m.GroupID, userID: m.UserID}
	if _, ok := st.memberships[key]; ok {
		return errors.Wrap(repository.ErrAlreadyExists, "uq_membership_user_group")
	}
	if m.Role == model.RoleOwner && r.hasOwner(m.GroupID) {
		return errors.Wrap(repository.ErrAlreadyExists, "uq_membership_group_owner")
	}

	m.JoinedAt = r.s.now()
	m.Username = st.users[m.UserID].Username
	st.memberships[key] = *m
	return nil
}

func (r *membershipRepo) hasOwner(groupID int64) bool {
	for k, m := range r.s.state.memberships {
		if k.groupID == groupID && m.Role == model.RoleOwner {
			return true
		}
	}
	return false
}

func (r *membershipRepo) Get(ctx context.Context, groupID, userID int64) (*repository.Membership, error) {
	defer r.s.acquire(ctx)()

	m, ok := r.s.state.memberships[memberKey{groupID: groupID, userID: userID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (r *membershipRepo) ListByGroup(ctx context.Context, groupID int64) ([]*repository.Membership, error) {
	defer r.s.acquire(ctx)()

	res := make([]*repository.Membership, 0)
	for k, m := range r.s.state.memberships {
		if k.groupID == groupID {
			m := m
			res = append(res, &m)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UserID < res[j].UserID })
	return res, nil
}

func (r *membershipRepo) SetRole(ctx context.Context, groupID, userID int64, role model.Role) error {
	defer r.s.acquire(ctx)()
	st := r.s.state

	key := memberKey{groupID: groupID, userID: userID}
	m, ok := st.memberships[key]
	if !ok {
		return repository.ErrNotFound
	}
	if role == model.RoleOwner && m.Role != model.RoleOwner && r.hasOwner(groupID) {
		return errors.Wrap(repository.ErrAlreadyExists, "uq_membership_group_owner")
	}
	m.Role = role
	st.memberships[key] = m
	return nil
}

func (r *membershipRepo) AddRating(ctx context.Context, groupID, userID int64, delta float64) error {
	defer r.s.acquire(ctx)()
	st := r.s.state

	key := memberKey{groupID: groupID, userID: userID}
	m, ok := st.memberships[key]
	if !ok {
		return repository.ErrNotFound
	}
	m.Rating += delta
	st.memberships[key] = m
	return nil
}

func (r *membershipRepo) Delete(ctx context.Context, groupID, userID int64) error {
	defer r.s.acquire(ctx)()
	st := r.s.state

	key := memberKey{groupID: groupID, userID: userID}
	if _, ok := st.memberships[key]; !ok {
		return repository.ErrNotFound
	}
	delete(st.memberships, key)
	return nil
}
