package model

import "time"

type MatchKind string

const (
	MatchKindTeam MatchKind = "team"
	MatchKindFFA  MatchKind = "ffa"
)

type Match struct {
	ID           int64          `json:"id"`
	GroupID      int64          `json:"group_id"`
	CreatedBy    int64          `json:"created_by"`
	CreatedAt    time.Time      `json:"created_at"`
	Kind         MatchKind      `json:"kind"`
	IsTie        bool           `json:"is_tie"`
	WinnerTeam   *int           `json:"winner_team,omitempty"`
	TeamSize     *int           `json:"team_size,omitempty"`
	ScoreA       *int           `json:"score_a,omitempty"`
	ScoreB       *int           `json:"score_b,omitempty"`
	SingleWinner bool           `json:"single_winner"`
	WinnerID     *int64         `json:"winner_id,omitempty"`
	Participants []*Participant `json:"participants"`
}

type Participant struct {
	UserID       int64   `json:"user_id"`
	Username     string  `json:"username,omitempty"`
	Team         *int    `json:"team,omitempty"`
	Place        *int    `json:"place,omitempty"`
	RatingBefore float64 `json:"rating_before"`
	RatingDelta  float64 `json:"rating_delta"`
}

// MatchSubmission is either a TeamSubmission or an FFASubmission.
type MatchSubmission interface {
	Kind() MatchKind
}

type TeamSubmission struct {
	TeamA      []int64
	TeamB      []int64
	TeamSize   *int
	IsTie      bool
	WinnerTeam *int
	ScoreA     *int
	ScoreB     *int
}

func (TeamSubmission) Kind() MatchKind { return MatchKindTeam }

type FFAEntry struct {
	UserID int64
	Place  *int
}

// FFASubmission ranks participants by place, or names a single winner with
// everybody else tied for second.
type FFASubmission struct {
	Participants []FFAEntry
	WinnerID     *int64
}

func (FFASubmission) Kind() MatchKind { return MatchKindFFA }
