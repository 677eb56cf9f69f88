package service

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/yakoovad/head2head/internal/db"
	"github.com/yakoovad/head2head/internal/model"
	"github.com/yakoovad/head2head/internal/repository"
	"github.com/yakoovad/head2head/pkg/logger"
	"go.uber.org/zap"
)

// InviteService runs the invite state machine. An invite starts pending and
// ends accepted, declined or canceled; terminal states never change.
type InviteService struct {
	tx db.Transactor

	users       repository.UserRepository
	groups      repository.GroupRepository
	memberships repository.MembershipRepository
	invites     repository.InviteRepository

	now func() time.Time
}

func NewInviteService(tx db.Transactor) *InviteService {
	return &InviteService{
		tx:  tx,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// CreateInvite lets the group owner invite a user by username.
func (s *InviteService) CreateInvite(ctx context.Context, actorID, groupID int64, inviteeUsername string) (*model.Invite, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("actor_id", actorID), zap.Int64("group_id", groupID))

	var invite *repository.Invite

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		group, serr := s.lockGroup(txCtx, groupID)
		if serr != nil {
			return serr
		}
		if group.OwnerID != actorID {
			return permissionError("only the owner can invite")
		}

		invite, serr = inviteUser(txCtx, s.users, s.memberships, s.invites, groupID, actorID, inviteeUsername)
		if serr != nil {
			return serr
		}
		return nil
	})
	if serr := asServiceError(err); serr != nil {
		l.Warn("failed to create invite", zap.String("invitee", inviteeUsername), zap.Any("error", serr))
		return nil, serr
	}

	l.Info("invite created", zap.Int64("invite_id", invite.ID), zap.Int64("invitee_id", invite.InviteeID))

	return toModelInvite(invite), nil
}

// RespondInvite accepts or declines a pending invite on behalf of its invitee.
// Accepting is the only way to become a member.
func (s *InviteService) RespondInvite(ctx context.Context, actorID, inviteID int64, action model.InviteAction) (*model.Invite, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("actor_id", actorID), zap.Int64("invite_id", inviteID))

	var status model.InviteStatus
	switch action {
	case model.InviteActionAccept:
		status = model.InviteStatusAccepted
	case model.InviteActionDecline:
		status = model.InviteStatusDeclined
	default:
		return nil, validationError("unknown action %q", action)
	}

	var resolved *repository.Invite

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		invite, serr := s.lockInvite(txCtx, inviteID)
		if serr != nil {
			return serr
		}
		if invite.InviteeID != actorID {
			return permissionError("only the invitee can respond")
		}
		if invite.Status != model.InviteStatusPending {
			return conflictError("invite is already %s", invite.Status)
		}

		if status == model.InviteStatusAccepted {
			err := s.memberships.Create(txCtx, &repository.Membership{
				GroupID: invite.GroupID,
				UserID:  actorID,
				Role:    model.RoleMember,
				Rating:  model.DefaultRating,
			})
			switch {
			case errors.Is(err, repository.ErrAlreadyExists):
				return conflictError("already a member of the group")
			case err != nil:
				l.Error("failed to create membership", zap.Error(err))
				return NewError(ErrorCodeUnspecified, "failed to create membership")
			}
		}

		var err error
		resolved, err = s.invites.Resolve(txCtx, inviteID, status, s.now())
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return conflictError("invite is no longer pending")
		case err != nil:
			l.Error("failed to resolve invite", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to update invite")
		}
		return nil
	})
	if serr := asServiceError(err); serr != nil {
		l.Warn("failed to respond to invite", zap.String("action", string(action)), zap.Any("error", serr))
		return nil, serr
	}

	l.Info("invite resolved", zap.String("status", string(resolved.Status)), zap.Int64("group_id", resolved.GroupID))

	return toModelInvite(resolved), nil
}

// CancelInvite withdraws a pending invite. The inviter or the group owner may
// cancel it.
func (s *InviteService) CancelInvite(ctx context.Context, actorID, inviteID int64) (*model.Invite, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("actor_id", actorID), zap.Int64("invite_id", inviteID))

	var resolved *repository.Invite

	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		invite, serr := s.lockInvite(txCtx, inviteID)
		if serr != nil {
			return serr
		}

		group, err := s.groups.Get(txCtx, invite.GroupID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return notFoundError("group not found")
		case err != nil:
			l.Error("failed to get group", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get group")
		}
		if invite.InviterID != actorID && group.OwnerID != actorID {
			return permissionError("only the inviter or the owner can cancel")
		}
		if invite.Status != model.InviteStatusPending {
			return conflictError("invite is already %s", invite.Status)
		}

		resolved, err = s.invites.Resolve(txCtx, inviteID, model.InviteStatusCanceled, s.now())
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return conflictError("invite is no longer pending")
		case err != nil:
			l.Error("failed to cancel invite", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to update invite")
		}
		return nil
	})
	if serr := asServiceError(err); serr != nil {
		return nil, serr
	}

	l.Info("invite canceled")

	return toModelInvite(resolved), nil
}

// ListPendingInvites returns the user's inbox ordered by invite id.
func (s *InviteService) ListPendingInvites(ctx context.Context, userID int64) ([]*model.InviteSummary, *Error) {
	rows, err := s.invites.ListPendingForUser(ctx, userID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list invites", zap.Int64("user_id", userID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to list invites")
	}

	res := make([]*model.InviteSummary, 0, len(rows))
	for _, row := range rows {
		res = append(res, &model.InviteSummary{
			Invite:          toModelInvite(&row.Invite),
			GroupName:       row.GroupName,
			GroupSport:      row.GroupSport,
			InviterUsername: row.InviterUsername,
		})
	}
	return res, nil
}

// lockInvite locks the invite's group and then the invite itself, the same
// order every group-scoped write takes.
func (s *InviteService) lockInvite(ctx context.Context, inviteID int64) (*repository.Invite, *Error) {
	l := logger.FromContext(ctx)

	invite, err := s.invites.Get(ctx, inviteID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, notFoundError("invite not found")
	case err != nil:
		l.Error("failed to get invite", zap.Int64("invite_id", inviteID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get invite")
	}

	if _, serr := s.lockGroup(ctx, invite.GroupID); serr != nil {
		return nil, serr
	}

	invite, err = s.invites.Lock(ctx, inviteID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, notFoundError("invite not found")
	case err != nil:
		l.Error("failed to lock invite", zap.Int64("invite_id", inviteID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get invite")
	}
	return invite, nil
}

func (s *InviteService) lockGroup(ctx context.Context, groupID int64) (*repository.Group, *Error) {
	group, err := s.groups.Lock(ctx, groupID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, notFoundError("group not found")
	case err != nil:
		logger.FromContext(ctx).Error("failed to lock group", zap.Int64("group_id", groupID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get group")
	}
	return group, nil
}

// inviteUser creates a pending invite without checking the inviter's role.
// Callers run it inside a transaction holding the group lock.
func inviteUser(
	ctx context.Context,
	users repository.UserRepository,
	memberships repository.MembershipRepository,
	invites repository.InviteRepository,
	groupID, inviterID int64,
	inviteeUsername string,
) (*repository.Invite, *Error) {
	l := logger.FromContext(ctx)

	username := strings.TrimSpace(inviteeUsername)
	if username == "" {
		return nil, validationError("invitee username is required")
	}

	invitee, err := users.GetByUsername(ctx, username)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, notFoundError("user %q not found", username)
	case err != nil:
		l.Error("failed to get invitee", zap.String("invitee", username), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get invitee")
	}

	_, err = memberships.Get(ctx, groupID, invitee.ID)
	switch {
	case err == nil:
		return nil, conflictError("user %q is already a member", username)
	case !errors.Is(err, repository.ErrNotFound):
		l.Error("failed to get membership", zap.Int64("user_id", invitee.ID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get membership")
	}

	_, err = invites.GetPending(ctx, groupID, invitee.ID)
	switch {
	case err == nil:
		return nil, conflictError("user %q already has a pending invite", username)
	case !errors.Is(err, repository.ErrNotFound):
		l.Error("failed to get pending invite", zap.Int64("user_id", invitee.ID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get invite")
	}

	invite := &repository.Invite{
		GroupID:   groupID,
		InviterID: inviterID,
		InviteeID: invitee.ID,
	}
	err = invites.Create(ctx, invite)
	switch {
	case errors.Is(err, repository.ErrAlreadyExists):
		return nil, conflictError("user %q already has a pending invite", username)
	case err != nil:
		l.Error("failed to create invite", zap.Int64("user_id", invitee.ID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to create invite")
	}
	return invite, nil
}

func toModelInvite(i *repository.Invite) *model.Invite {
	return &model.Invite{
		ID:          i.ID,
		GroupID:     i.GroupID,
		InviterID:   i.InviterID,
		InviteeID:   i.InviteeID,
		Status:      i.Status,
		CreatedAt:   i.CreatedAt,
		RespondedAt: i.RespondedAt,
	}
}

func (s *InviteService) WithUserRepo(r repository.UserRepository) *InviteService {
	s.users = r
	return s
}

func (s *InviteService) WithGroupRepo(r repository.GroupRepository) *InviteService {
	s.groups = r
	return s
}

func (s *InviteService) WithMembershipRepo(r repository.MembershipRepository) *InviteService {
	s.memberships = r
	return s
}

func (s *InviteService) WithInviteRepo(r repository.InviteRepository) *InviteService {
	s.invites = r
	return s
}
