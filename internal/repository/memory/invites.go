package memory

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/yakoovad/head2head/internal/model"
	"github.com/yakoovad/head2head/internal/repository"
)

type inviteRepo struct {
	s *Store
}

func (r *inviteRepo) Create(ctx context.Context, invite *repository.Invite) error {
	defer r.s.acquire(ctx)()
	st := r.s.state

	if _, ok := st.groups[invite.GroupID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := st.users[invite.InviteeID]; !ok {
		return repository.ErrNotFound
	}
	if r.pending(invite.GroupID, invite.InviteeID) != nil {
		return errors.Wrap(repository.ErrAlreadyExists, "uq_invite_group_invitee_pending")
	}

	invite.ID = st.nextID()
	invite.Status = model.InviteStatusPending
	invite.CreatedAt = r.s.now()
	invite.RespondedAt = nil
	st.invites[invite.ID] = *invite
	return nil
}

func (r *inviteRepo) pending(groupID, inviteeID int64) *repository.Invite {
	for _, inv := range r.s.state.invites {
		if inv.GroupID == groupID && inv.InviteeID == inviteeID && inv.Status == model.InviteStatusPending {
			return &inv
		}
	}
	return nil
}

func (r *inviteRepo) Get(ctx context.Context, inviteID int64) (*repository.Invite, error) {
	defer r.s.acquire(ctx)()

	inv, ok := r.s.state.invites[inviteID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &inv, nil
}

func (r *inviteRepo) Lock(ctx context.Context, inviteID int64) (*repository.Invite, error) {
	return r.Get(ctx, inviteID)
}

func (r *inviteRepo) GetPending(ctx context.Context, groupID, inviteeID int64) (*repository.Invite, error) {
	defer r.s.acquire(ctx)()

	if inv := r.pending(groupID, inviteeID); inv != nil {
		return inv, nil
	}
	return nil, repository.ErrNotFound
}

func (r *inviteRepo) Resolve(ctx context.Context, inviteID int64, status model.InviteStatus, at time.Time) (*repository.Invite, error) {
	defer r.s.acquire(ctx)()
	st := r.s.state

	inv, ok := st.invites[inviteID]
	if !ok || inv.Status != model.InviteStatusPending {
		return nil, repository.ErrNotFound
	}
	inv.Status = status
	inv.RespondedAt = &at
	st.invites[inviteID] = inv
	return &inv, nil
}

func (r *inviteRepo) ListPendingForUser(ctx context.Context, inviteeID int64) ([]*repository.InviteSummary, error) {
	defer r.s.acquire(ctx)()
	st := r.s.state

	res := make([]*repository.InviteSummary, 0)
	for _, inv := range st.invites {
		if inv.InviteeID != inviteeID || inv.Status != model.InviteStatusPending {
			continue
		}
		g := st.groups[inv.GroupID]
		res = append(res, &repository.InviteSummary{
			Invite:          inv,
			GroupName:       g.Name,
			GroupSport:      g.Sport,
			InviterUsername: st.users[inv.InviterID].Username,
		})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}
