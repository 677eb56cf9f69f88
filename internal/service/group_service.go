package service

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/yakoovad/head2head/internal/db"
	"github.com/yakoovad/head2head/internal/model"
	"github.com/yakoovad/head2head/internal/repository"
	"github.com/yakoovad/head2head/pkg/logger"
	"go.uber.org/zap"
)

// GroupService is the membership ledger: groups, their owner and members.
type GroupService struct {
	tx db.Transactor

	users       repository.UserRepository
	groups      repository.GroupRepository
	memberships repository.MembershipRepository
	invites     repository.InviteRepository
}

func NewGroupService(tx db.Transactor) *GroupService {
	return &GroupService{tx: tx}
}

// CreateGroup creates the group with actor as owner and invites every
// username of draft.Invitees. Nothing is written if any step fails.
func (g *GroupService) CreateGroup(ctx context.Context, actorID int64, draft *model.GroupDraft) (*model.Group, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("actor_id", actorID))

	name := strings.TrimSpace(draft.Name)
	sport := strings.TrimSpace(draft.Sport)
	if verr := validateGroupFields(name, sport, draft.DefaultTeamSize); verr != nil {
		return nil, verr
	}

	group := &repository.Group{
		Name:            name,
		Sport:           sport,
		DefaultTeamSize: draft.DefaultTeamSize,
		OwnerID:         actorID,
	}

	err := g.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		err := g.groups.Create(txCtx, group)
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundError("user not found")
		}
		if err != nil {
			l.Error("failed to create group", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to create group")
		}

		if err = g.memberships.Create(txCtx, &repository.Membership{
			GroupID: group.ID,
			UserID:  actorID,
			Role:    model.RoleOwner,
			Rating:  model.DefaultRating,
		}); err != nil {
			l.Error("failed to create owner membership", zap.Int64("group_id", group.ID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to create owner membership")
		}

		for _, username := range draft.Invitees {
			if _, serr := inviteUser(txCtx, g.users, g.memberships, g.invites, group.ID, actorID, username); serr != nil {
				l.Warn("failed to invite on group creation", zap.String("invitee", username), zap.Any("error", serr))
				return serr
			}
		}

		return nil
	})
	if serr := asServiceError(err); serr != nil {
		return nil, serr
	}

	l.Info("group created", zap.Int64("group_id", group.ID), zap.Int("invitees", len(draft.Invitees)))

	return toModelGroup(group), nil
}

// UpdateGroup lets the owner rename the group or change its sport and
// default team size.
func (g *GroupService) UpdateGroup(ctx context.Context, actorID, groupID int64, patch *model.GroupPatch) (*model.Group, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("actor_id", actorID), zap.Int64("group_id", groupID))

	var updated *repository.Group

	err := g.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		group, serr := g.lockGroup(txCtx, groupID)
		if serr != nil {
			return serr
		}
		if group.OwnerID != actorID {
			return permissionError("only the owner can update the group")
		}

		repoPatch := &repository.GroupPatch{ID: groupID}
		name, sport, size := group.Name, group.Sport, group.DefaultTeamSize
		if patch.Name != nil {
			name = strings.TrimSpace(*patch.Name)
			repoPatch.Name = &name
		}
		if patch.Sport != nil {
			sport = strings.TrimSpace(*patch.Sport)
			repoPatch.Sport = &sport
		}
		if patch.DefaultTeamSize != nil {
			size = *patch.DefaultTeamSize
			repoPatch.DefaultTeamSize = &size
		}
		if verr := validateGroupFields(name, sport, size); verr != nil {
			return verr
		}

		var err error
		updated, err = g.groups.Patch(txCtx, repoPatch)
		if err != nil {
			l.Error("failed to update group", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to update group")
		}
		return nil
	})
	if serr := asServiceError(err); serr != nil {
		return nil, serr
	}

	l.Info("group updated")

	return toModelGroup(updated), nil
}

// TransferOwnership makes newOwnerID the owner and demotes the actor to member.
func (g *GroupService) TransferOwnership(ctx context.Context, actorID, groupID, newOwnerID int64) (*model.Group, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("actor_id", actorID), zap.Int64("group_id", groupID))

	var updated *repository.Group

	err := g.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		group, serr := g.lockGroup(txCtx, groupID)
		if serr != nil {
			return serr
		}
		if group.OwnerID != actorID {
			return permissionError("only the owner can transfer ownership")
		}
		if newOwnerID == actorID {
			return validationError("cannot transfer ownership to yourself")
		}

		_, err := g.memberships.Get(txCtx, groupID, newOwnerID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return notFoundError("new owner is not a member of the group")
		case err != nil:
			l.Error("failed to get membership", zap.Int64("user_id", newOwnerID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get membership")
		}

		// Demote first: a group holds at most one owner row at any time.
		if err = g.memberships.SetRole(txCtx, groupID, actorID, model.RoleMember); err != nil {
			l.Error("failed to demote owner", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to transfer ownership")
		}
		if err = g.memberships.SetRole(txCtx, groupID, newOwnerID, model.RoleOwner); err != nil {
			l.Error("failed to promote new owner", zap.Int64("user_id", newOwnerID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to transfer ownership")
		}

		updated, err = g.groups.Patch(txCtx, &repository.GroupPatch{ID: groupID, OwnerID: &newOwnerID})
		if err != nil {
			l.Error("failed to update group owner", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to transfer ownership")
		}
		return nil
	})
	if serr := asServiceError(err); serr != nil {
		return nil, serr
	}

	l.Info("ownership transferred", zap.Int64("new_owner_id", newOwnerID))

	return toModelGroup(updated), nil
}

// LeaveGroup removes the actor's membership. The owner may only leave once
// alone in the group, and that deletes the group. The returned flag reports
// the deletion.
func (g *GroupService) LeaveGroup(ctx context.Context, actorID, groupID int64) (bool, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("actor_id", actorID), zap.Int64("group_id", groupID))

	deleted := false

	err := g.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if _, serr := g.lockGroup(txCtx, groupID); serr != nil {
			return serr
		}

		membership, err := g.memberships.Get(txCtx, groupID, actorID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return notFoundError("not a member of the group")
		case err != nil:
			l.Error("failed to get membership", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get membership")
		}

		if membership.Role != model.RoleOwner {
			if err = g.memberships.Delete(txCtx, groupID, actorID); err != nil {
				l.Error("failed to delete membership", zap.Error(err))
				return NewError(ErrorCodeUnspecified, "failed to leave group")
			}
			return nil
		}

		members, err := g.memberships.ListByGroup(txCtx, groupID)
		if err != nil {
			l.Error("failed to list members", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to list members")
		}
		if len(members) > 1 {
			return permissionError("the owner must transfer ownership before leaving")
		}

		if err = g.groups.Delete(txCtx, groupID); err != nil {
			l.Error("failed to delete group", zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to delete group")
		}
		deleted = true
		return nil
	})
	if serr := asServiceError(err); serr != nil {
		return false, serr
	}

	l.Info("left group", zap.Bool("group_deleted", deleted))

	return deleted, nil
}

// ListGroupsForUser returns the user's groups ordered by group id.
func (g *GroupService) ListGroupsForUser(ctx context.Context, userID int64) ([]*model.UserGroup, *Error) {
	rows, err := g.groups.ListForUser(ctx, userID)
	if err != nil {
		logger.FromContext(ctx).Error("failed to list groups", zap.Int64("user_id", userID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to list groups")
	}

	res := make([]*model.UserGroup, 0, len(rows))
	for _, row := range rows {
		res = append(res, &model.UserGroup{
			Group:  toModelGroup(&row.Group),
			Role:   row.Role,
			Rating: row.Rating,
		})
	}
	return res, nil
}

// GetGroup returns the group with its members, best rated first. Groups the
// actor does not belong to are reported as not found.
func (g *GroupService) GetGroup(ctx context.Context, actorID, groupID int64) (*model.GroupDetail, *Error) {
	l := logger.FromContext(ctx).With(zap.Int64("actor_id", actorID), zap.Int64("group_id", groupID))

	group, err := g.groups.Get(ctx, groupID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, notFoundError("group not found")
	case err != nil:
		l.Error("failed to get group", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get group")
	}

	members, err := g.memberships.ListByGroup(ctx, groupID)
	if err != nil {
		l.Error("failed to list members", zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to list members")
	}

	detail := &model.GroupDetail{
		Group:   toModelGroup(group),
		Members: make([]*model.Member, 0, len(members)),
	}
	visible := false
	for _, m := range members {
		if m.UserID == actorID {
			visible = true
		}
		detail.Members = append(detail.Members, &model.Member{
			UserID:   m.UserID,
			Username: m.Username,
			Role:     m.Role,
			Rating:   m.Rating,
			JoinedAt: m.JoinedAt,
		})
	}
	if !visible {
		return nil, notFoundError("group not found")
	}

	sort.SliceStable(detail.Members, func(i, j int) bool {
		if detail.Members[i].Rating != detail.Members[j].Rating {
			return detail.Members[i].Rating > detail.Members[j].Rating
		}
		return detail.Members[i].UserID < detail.Members[j].UserID
	})

	return detail, nil
}

func (g *GroupService) lockGroup(ctx context.Context, groupID int64) (*repository.Group, *Error) {
	group, err := g.groups.Lock(ctx, groupID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, notFoundError("group not found")
	case err != nil:
		logger.FromContext(ctx).Error("failed to lock group", zap.Int64("group_id", groupID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get group")
	}
	return group, nil
}

func validateGroupFields(name, sport string, defaultTeamSize int) *Error {
	switch {
	case name == "":
		return validationError("name is required")
	case sport == "":
		return validationError("sport is required")
	case defaultTeamSize < 1:
		return validationError("default team size must be at least 1")
	}
	return nil
}

func toModelGroup(g *repository.Group) *model.Group {
	return &model.Group{
		ID:              g.ID,
		Name:            g.Name,
		Sport:           g.Sport,
		DefaultTeamSize: g.DefaultTeamSize,
		OwnerID:         g.OwnerID,
		CreatedAt:       g.CreatedAt,
		UpdatedAt:       g.UpdatedAt,
	}
}

func (g *GroupService) WithUserRepo(r repository.UserRepository) *GroupService {
	g.users = r
	return g
}

func (g *GroupService) WithGroupRepo(r repository.GroupRepository) *GroupService {
	g.groups = r
	return g
}

func (g *GroupService) WithMembershipRepo(r repository.MembershipRepository) *GroupService {
	g.memberships = r
	return g
}

func (g *GroupService) WithInviteRepo(r repository.InviteRepository) *GroupService {
	g.invites = r
	return g
}
