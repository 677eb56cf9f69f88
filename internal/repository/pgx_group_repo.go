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
	"github.com/stephenafamo/bob/dialect/psql/dm"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
	"github.com/yakoovad/head2head/internal/db"
	"github.com/yakoovad/head2head/internal/model"
)

var groupColumns = []any{"id", "name", "sport", "default_team_size", "owner_id", "created_at", "updated_at"}

type Group struct {
	ID              int64     `db:"id"`
	Name            string    `db:"name"`
	Sport           string    `db:"sport"`
	DefaultTeamSize int       `db:"default_team_size"`
	OwnerID         int64     `db:"owner_id"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

type GroupPatch struct {
	ID              int64   `db:"id"`
	Name            *string `db:"name"`
	Sport           *string `db:"sport"`
	DefaultTeamSize *int    `db:"default_team_size"`
	OwnerID         *int64  `db:"owner_id"`
}

// UserGroup is a group row joined with one member's role and rating.
type UserGroup struct {
	Group
	Role   model.Role `db:"role"`
	Rating float64    `db:"rating"`
}

type GroupRepository interface {
	Create(ctx context.Context, group *Group) error
	Get(ctx context.Context, groupID int64) (*Group, error)
	// Lock reads the group and holds a row lock until the transaction ends.
	Lock(ctx context.Context, groupID int64) (*Group, error)
	Patch(ctx context.Context, patch *GroupPatch) (*Group, error)
	Delete(ctx context.Context, groupID int64) error
	ListForUser(ctx context.Context, userID int64) ([]*UserGroup, error)
}

type pgxGroupRepository struct {
	pool *pgxpool.Pool
}

func NewPgxGroupRepository(pool *pgxpool.Pool) GroupRepository {
	return &pgxGroupRepository{pool: pool}
}

// Create inserts a group and sets group.ID and its timestamps.
func (p *pgxGroupRepository) Create(ctx context.Context, group *Group) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("groups", "name", "sport", "default_team_size", "owner_id"),
		im.Values(psql.Arg(group.Name), psql.Arg(group.Sport), psql.Arg(group.DefaultTeamSize), psql.Arg(group.OwnerID)),
		im.Returning("id", "created_at", "updated_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	if err = e.QueryRow(ctx, sql, args...).Scan(&group.ID, &group.CreatedAt, &group.UpdatedAt); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (p *pgxGroupRepository) Get(ctx context.Context, groupID int64) (*Group, error) {
	return p.get(ctx, groupID, nil)
}

func (p *pgxGroupRepository) Lock(ctx context.Context, groupID int64) (*Group, error) {
	return p.get(ctx, groupID, sm.ForUpdate("groups"))
}

func (p *pgxGroupRepository) get(ctx context.Context, groupID int64, lock bob.Mod[*dialect.SelectQuery]) (*Group, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(groupColumns...),
		sm.From("groups"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(groupID))),
	)
	if lock != nil {
		q.Apply(lock)
	}

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	g := &Group{}
	if err = e.QueryRow(ctx, sql, args...).Scan(
		&g.ID,
		&g.Name,
		&g.Sport,
		&g.DefaultTeamSize,
		&g.OwnerID,
		&g.CreatedAt,
		&g.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return g, nil
}

func (p *pgxGroupRepository) Patch(ctx context.Context, patch *GroupPatch) (*Group, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	sets := make([]bob.Mod[*dialect.UpdateQuery], 0, 5)
	if patch.Name != nil {
		sets = append(sets, um.SetCol("name").ToArg(*patch.Name))
	}
	if patch.Sport != nil {
		sets = append(sets, um.SetCol("sport").ToArg(*patch.Sport))
	}
	if patch.DefaultTeamSize != nil {
		sets = append(sets, um.SetCol("default_team_size").ToArg(*patch.DefaultTeamSize))
	}
	if patch.OwnerID != nil {
		sets = append(sets, um.SetCol("owner_id").ToArg(*patch.OwnerID))
	}
	sets = append(sets, um.SetCol("updated_at").To(psql.Raw("now()")))

	q := psql.Update(
		um.Table("groups"),
		um.Where(psql.Quote("id").EQ(psql.Arg(patch.ID))),
		um.Returning(groupColumns...),
	)

	q.Apply(sets...)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	g := &Group{}
	if err = e.QueryRow(ctx, sql, args...).Scan(
		&g.ID,
		&g.Name,
		&g.Sport,
		&g.DefaultTeamSize,
		&g.OwnerID,
		&g.CreatedAt,
		&g.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, mapPgError(err)
	}
	return g, nil
}

// Delete removes the group; memberships, invites and matches cascade.
func (p *pgxGroupRepository) Delete(ctx context.Context, groupID int64) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("groups"),
		dm.Where(psql.Quote("id").EQ(psql.Arg(groupID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	commandTag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}

	if commandTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (p *pgxGroupRepository) ListForUser(ctx context.Context, userID int64) ([]*UserGroup, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(
			"g.id", "g.name", "g.sport", "g.default_team_size", "g.owner_id", "g.created_at", "g.updated_at",
			"m.role", "m.rating",
		),
		sm.From("memberships").As("m"),
		sm.InnerJoin("groups").As("g").On(psql.Quote("g", "id").EQ(psql.Quote("m", "group_id"))),
		sm.Where(psql.Quote("m", "user_id").EQ(psql.Arg(userID))),
		sm.OrderBy(psql.Quote("g", "id")).Asc(),
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

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*UserGroup, error) {
		ug := &UserGroup{}
		err := row.Scan(
			&ug.ID,
			&ug.Name,
			&ug.Sport,
			&ug.DefaultTeamSize,
			&ug.OwnerID,
			&ug.CreatedAt,
			&ug.UpdatedAt,
			&ug.Role,
			&ug.Rating,
		)
		return ug, err
	})
}
