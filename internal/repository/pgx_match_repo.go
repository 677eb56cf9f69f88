package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/yakoovad/head2head/internal/db"
	"github.com/yakoovad/head2head/internal/model"
)

var matchColumns = []any{
	"id", "group_id", "created_by", "created_at", "kind", "is_tie",
	"winner_team", "team_size", "score_a", "score_b", "single_winner", "winner_id",
}

type Match struct {
	ID           int64           `db:"id"`
	GroupID      int64           `db:"group_id"`
	CreatedBy    int64           `db:"created_by"`
	CreatedAt    time.Time       `db:"created_at"`
	Kind         model.MatchKind `db:"kind"`
	IsTie        bool            `db:"is_tie"`
	WinnerTeam   *int            `db:"winner_team"`
	TeamSize     *int            `db:"team_size"`
	ScoreA       *int            `db:"score_a"`
	ScoreB       *int            `db:"score_b"`
	SingleWinner bool            `db:"single_winner"`
	WinnerID     *int64          `db:"winner_id"`
}

type Participant struct {
	MatchID      int64   `db:"match_id"`
	UserID       int64   `db:"user_id"`
	Team         *int    `db:"team"`
	Place        *int    `db:"place"`
	RatingBefore float64 `db:"rating_before"`
	RatingDelta  float64 `db:"rating_delta"`

	// Username is filled by reads that join users.
	Username string `db:"username"`
}

// MatchRepository is append-only: matches and participants are never updated
// or deleted through it.
type MatchRepository interface {
	Create(ctx context.Context, match *Match) error
	AddParticipants(ctx context.Context, matchID int64, participants []*Participant) error
	Get(ctx context.Context, matchID int64) (*Match, error)
	// ListByGroup returns matches newest first.
	ListByGroup(ctx context.Context, groupID int64, limit, offset int) ([]*Match, error)
	// GetParticipants groups the participants of the given matches by match id.
	GetParticipants(ctx context.Context, matchIDs []int64) (map[int64][]*Participant, error)
}

type pgxMatchRepository struct {
	pool *pgxpool.Pool
}

func NewPgxMatchRepository(pool *pgxpool.Pool) MatchRepository {
	return &pgxMatchRepository{pool: pool}
}

// Create inserts a match and sets match.ID and match.CreatedAt.
func (p *pgxMatchRepository) Create(ctx context.Context, match *Match) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("matches", "group_id", "created_by", "kind", "is_tie", "winner_team", "team_size", "score_a", "score_b", "single_winner", "winner_id"),
		im.Values(
			psql.Arg(match.GroupID),
			psql.Arg(match.CreatedBy),
			psql.Arg(match.Kind),
			psql.Arg(match.IsTie),
			psql.Arg(match.WinnerTeam),
			psql.Arg(match.TeamSize),
			psql.Arg(match.ScoreA),
			psql.Arg(match.ScoreB),
			psql.Arg(match.SingleWinner),
			psql.Arg(match.WinnerID),
		),
		im.Returning("id", "created_at"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	if err = e.QueryRow(ctx, sql, args...).Scan(&match.ID, &match.CreatedAt); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (p *pgxMatchRepository) AddParticipants(ctx context.Context, matchID int64, participants []*Participant) error {
	if len(participants) == 0 {
		return nil
	}

	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("match_participants", "match_id", "user_id", "team", "place", "rating_before", "rating_delta"),
	)

	for _, pt := range participants {
		pt.MatchID = matchID
		q.Apply(im.Values(
			psql.Arg(matchID),
			psql.Arg(pt.UserID),
			psql.Arg(pt.Team),
			psql.Arg(pt.Place),
			psql.Arg(pt.RatingBefore),
			psql.Arg(pt.RatingDelta),
		))
	}

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	if _, err = e.Exec(ctx, sql, args...); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (p *pgxMatchRepository) Get(ctx context.Context, matchID int64) (*Match, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(matchColumns...),
		sm.From("matches"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(matchID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	m := &Match{}
	if err = scanMatch(e.QueryRow(ctx, sql, args...), m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (p *pgxMatchRepository) ListByGroup(ctx context.Context, groupID int64, limit, offset int) ([]*Match, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(matchColumns...),
		sm.From("matches"),
		sm.Where(psql.Quote("group_id").EQ(psql.Arg(groupID))),
		sm.OrderBy(psql.Quote("id")).Desc(),
		sm.Limit(psql.Arg(limit)),
		sm.Offset(psql.Arg(offset)),
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

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Match, error) {
		m := &Match{}
		err := scanMatch(row, m)
		return m, err
	})
}

func (p *pgxMatchRepository) GetParticipants(ctx context.Context, matchIDs []int64) (map[int64][]*Participant, error) {
	res := make(map[int64][]*Participant, len(matchIDs))
	if len(matchIDs) == 0 {
		return res, nil
	}

	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	ids := make([]any, 0, len(matchIDs))
	for _, id := range matchIDs {
		ids = append(ids, id)
	}

	q := psql.Select(
		sm.Columns("p.match_id", "p.user_id", "p.team", "p.place", "p.rating_before", "p.rating_delta", "COALESCE(u.username, '')"),
		sm.From("match_participants").As("p"),
		sm.LeftJoin("users").As("u").On(psql.Quote("u", "id").EQ(psql.Quote("p", "user_id"))),
		sm.Where(psql.Quote("p", "match_id").In(psql.Arg(ids...))),
		sm.OrderBy(psql.Quote("p", "match_id")).Asc(),
		sm.OrderBy(psql.Quote("p", "id")).Asc(),
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

	participants, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Participant, error) {
		pt := &Participant{}
		err := row.Scan(&pt.MatchID, &pt.UserID, &pt.Team, &pt.Place, &pt.RatingBefore, &pt.RatingDelta, &pt.Username)
		return pt, err
	})
	if err != nil {
		return nil, err
	}

	for _, pt := range participants {
		res[pt.MatchID] = append(res[pt.MatchID], pt)
	}
	return res, nil
}

func scanMatch(row pgx.Row, m *Match) error {
	return row.Scan(
		&m.ID,
		&m.GroupID,
		&m.CreatedBy,
		&m.CreatedAt,
		&m.Kind,
		&m.IsTie,
		&m.WinnerTeam,
		&m.TeamSize,
		&m.ScoreA,
		&m.ScoreB,
		&m.SingleWinner,
		&m.WinnerID,
	)
}
