package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dm"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
	"github.com/yakoovad/head2head/internal/db"
	"github.com/yakoovad/head2head/internal/model"
)

type Membership struct {
	GroupID  int64      `db:"group_id"`
	UserID   int64      `db:"user_id"`
	Role     model.Role `db:"role"`
	Rating   float64    `db:"rating"`
	JoinedAt time.Time  `db:"joined_at"`

	// Username is filled by reads that join users.
	Username string `db:"username"`
}

type MembershipRepository interface {
	Create(ctx context.Context, m *Membership) error
	Get(ctx context.Context, groupID, userID int64) (*Membership, error)
	// ListByGroup returns the members ordered by user id.
	ListByGroup(ctx context.Context, groupID int64) ([]*Membership, error)
	SetRole(ctx context.Context, groupID, userID int64, role model.Role) error
	AddRating(ctx context.Context, groupID, userID int64, delta float64) error
	Delete(ctx context.Context, groupID, userID int64) error
}

type pgxMembershipRepository struct {
	pool *pgxpool.Pool
}

func NewPgxMembershipRepository(pool *pgxpool.Pool) MembershipRepository {
	return &pgxMembershipRepository{pool: pool}
}

// Create inserts a membership. A second membership for the same (user, group)
// pair fails with ErrAlreadyExists.
func (p *pgxMembershipRepository) Create(ctx context.Context, m *Membership) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("memberships", "group_id", "user_id", "role", "rating"),
		im.Values(psql.Arg(m.GroupID), psql.Arg(m.UserID), psql.Arg(m.Role), psql.Arg(m.Rating)),
		im.Returning("joined_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	if err = e.QueryRow(ctx, sql, args...).Scan(&m.JoinedAt); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (p *pgxMembershipRepository) Get(ctx context.Context, groupID, userID int64) (*Membership, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("m.group_id", "m.user_id", "m.role", "m.rating", "m.joined_at", "u.username"),
		sm.From("memberships").As("m"),
		sm.InnerJoin("users").As("u").On(psql.Quote("u", "id").EQ(psql.Quote("m", "user_id"))),
		sm.Where(
			psql.Quote("m", "group_id").EQ(psql.Arg(groupID)).
				And(psql.Quote("m", "user_id").EQ(psql.Arg(userID))),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	m := &Membership{}
	if err = e.QueryRow(ctx, sql, args...).Scan(
		&m.GroupID,
		&m.UserID,
		&m.Role,
		&m.Rating,
		&m.JoinedAt,
		&m.Username,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (p *pgxMembershipRepository) ListByGroup(ctx context.Context, groupID int64) ([]*Membership, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("m.group_id", "m.user_id", "m.role", "m.rating", "m.joined_at", "u.username"),
		sm.From("memberships").As("m"),
		sm.InnerJoin("users").As("u").On(psql.Quote("u", "id").EQ(psql.Quote("m", "user_id"))),
		sm.Where(psql.Quote("m", "group_id").EQ(psql.Arg(groupID))),
		sm.OrderBy(psql.Quote("m", "user_id")).Asc(),
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

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Membership, error) {
		m := &Membership{}
		err := row.Scan(&m.GroupID, &m.UserID, &m.Role, &m.Rating, &m.JoinedAt, &m.Username)
		return m, err
	})
}

func (p *pgxMembershipRepository) SetRole(ctx context.Context, groupID, userID int64, role model.Role) error {
	q := psql.Update(
		um.Table("memberships"),
		um.SetCol("role").ToArg(role),
		um.Where(
			psql.Quote("group_id").EQ(psql.Arg(groupID)).
				And(psql.Quote("user_id").EQ(psql.Arg(userID))),
		),
	)
	return p.execOne(ctx, q)
}

// AddRating adds delta to the stored rating in place.
func (p *pgxMembershipRepository) AddRating(ctx context.Context, groupID, userID int64, delta float64) error {
	q := psql.Update(
		um.Table("memberships"),
		um.SetCol("rating").To(psql.Raw("rating + ?", delta)),
		um.Where(
			psql.Quote("group_id").EQ(psql.Arg(groupID)).
				And(psql.Quote("user_id").EQ(psql.Arg(userID))),
		),
	)
	return p.execOne(ctx, q)
}

func (p *pgxMembershipRepository) Delete(ctx context.Context, groupID, userID int64) error {
	q := psql.Delete(
		dm.From("memberships"),
		dm.Where(
			psql.Quote("group_id").EQ(psql.Arg(groupID)).
				And(psql.Quote("user_id").EQ(psql.Arg(userID))),
		),
	)
	return p.execOne(ctx, q)
}

type builder interface {
	Build(ctx context.Context) (string, []any, error)
}

// execOne runs a statement that must touch exactly one membership row.
func (p *pgxMembershipRepository) execOne(ctx context.Context, q builder) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	commandTag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return mapPgError(err)
	}

	if commandTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
