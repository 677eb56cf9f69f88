package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dialect"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
	"github.com/yakoovad/head2head/internal/db"
	"github.com/yakoovad/head2head/internal/model"
)

var inviteColumns = []any{"id", "group_id", "inviter_id", "invitee_id", "status", "created_at", "responded_at"}

type Invite struct {
	ID          int64              `db:"id"`
	GroupID     int64              `db:"group_id"`
	InviterID   int64              `db:"inviter_id"`
	InviteeID   int64              `db:"invitee_id"`
	Status      model.InviteStatus `db:"status"`
	CreatedAt   time.Time          `db:"created_at"`
	RespondedAt *time.Time         `db:"responded_at"`
}

type InviteSummary struct {
	Invite
	GroupName       string `db:"group_name"`
	GroupSport      string `db:"group_sport"`
	InviterUsername string `db:"inviter_username"`
}

type InviteRepository interface {
	// Create inserts a pending invite. A second pending invite for the same
	// (invitee, group) pair fails with ErrAlreadyExists.
	Create(ctx context.Context, invite *Invite) error
	Get(ctx context.Context, inviteID int64) (*Invite, error)
	// Lock reads the invite and holds a row lock until the transaction ends.
	Lock(ctx context.Context, inviteID int64) (*Invite, error)
	GetPending(ctx context.Context, groupID, inviteeID int64) (*Invite, error)
	// Resolve moves a pending invite to a terminal status. ErrNotFound means
	// there was no pending invite with that id.
	Resolve(ctx context.Context, inviteID int64, status model.InviteStatus, at time.Time) (*Invite, error)
	ListPendingForUser(ctx context.Context, inviteeID int64) ([]*InviteSummary, error)
}

type pgxInviteRepository struct {
	pool *pgxpool.Pool
}

func NewPgxInviteRepository(pool *pgxpool.Pool) InviteRepository {
	return &pgxInviteRepository{pool: pool}
}

func (p *pgxInviteRepository) Create(ctx context.Context, invite *Invite) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("invites", "group_id", "inviter_id", "invitee_id", "status"),
		im.Values(
			psql.Arg(invite.GroupID),
			psql.Arg(invite.InviterID),
			psql.Arg(invite.InviteeID),
			psql.Arg(model.InviteStatusPending),
		),
		im.Returning(inviteColumns...),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	if err = scanInvite(e.QueryRow(ctx, sql, args...), invite); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (p *pgxInviteRepository) Get(ctx context.Context, inviteID int64) (*Invite, error) {
	return p.getBy(ctx, psql.Quote("id").EQ(psql.Arg(inviteID)), nil)
}

func (p *pgxInviteRepository) Lock(ctx context.Context, inviteID int64) (*Invite, error) {
	return p.getBy(ctx, psql.Quote("id").EQ(psql.Arg(inviteID)), sm.ForUpdate("invites"))
}

func (p *pgxInviteRepository) GetPending(ctx context.Context, groupID, inviteeID int64) (*Invite, error) {
	return p.getBy(ctx,
		psql.Quote("group_id").EQ(psql.Arg(groupID)).
			And(psql.Quote("invitee_id").EQ(psql.Arg(inviteeID))).
			And(psql.Quote("status").EQ(psql.Arg(model.InviteStatusPending))),
		nil,
	)
}

func (p *pgxInviteRepository) getBy(ctx context.Context, where bob.Expression, lock bob.Mod[*dialect.SelectQuery]) (*Invite, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(inviteColumns...),
		sm.From("invites"),
		sm.Where(where),
	)
	if lock != nil {
		q.Apply(lock)
	}

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	invite := &Invite{}
	if err = scanInvite(e.QueryRow(ctx, sql, args...), invite); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return invite, nil
}

func (p *pgxInviteRepository) Resolve(ctx context.Context, inviteID int64, status model.InviteStatus, at time.Time) (*Invite, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("invites"),
		um.SetCol("status").ToArg(status),
		um.SetCol("responded_at").ToArg(at),
		um.Where(
			psql.Quote("id").EQ(psql.Arg(inviteID)).
				And(psql.Quote("status").EQ(psql.Arg(model.InviteStatusPending))),
		),
		um.Returning(inviteColumns...),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	invite := &Invite{}
	if err = scanInvite(e.QueryRow(ctx, sql, args...), invite); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return invite, nil
}

func (p *pgxInviteRepository) ListPendingForUser(ctx context.Context, inviteeID int64) ([]*InviteSummary, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(
			"i.id", "i.group_id", "i.inviter_id", "i.invitee_id", "i.status", "i.created_at", "i.responded_at",
			"g.name AS group_name", "g.sport AS group_sport", "u.username AS inviter_username",
		),
		sm.From("invites").As("i"),
		sm.InnerJoin("groups").As("g").On(psql.Quote("g", "id").EQ(psql.Quote("i", "group_id"))),
		sm.InnerJoin("users").As("u").On(psql.Quote("u", "id").EQ(psql.Quote("i", "inviter_id"))),
		sm.Where(
			psql.Quote("i", "invitee_id").EQ(psql.Arg(inviteeID)).
				And(psql.Quote("i", "status").EQ(psql.Arg(model.InviteStatusPending))),
		),
		sm.OrderBy(psql.Quote("i", "id")).Asc(),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*InviteSummary, error) {
		s := &InviteSummary{}
		err := row.Scan(
			&s.ID,
			&s.GroupID,
			&s.InviterID,
			&s.InviteeID,
			&s.Status,
			&s.CreatedAt,
			&s.RespondedAt,
			&s.GroupName,
			&s.GroupSport,
			&s.InviterUsername,
		)
		return s, err
	})
}

func scanInvite(row pgx.Row, invite *Invite) error {
	return row.Scan(
		&invite.ID,
		&invite.GroupID,
		&invite.InviterID,
		&invite.InviteeID,
		&invite.Status,
		&invite.CreatedAt,
		&invite.RespondedAt,
	)
}
