package api

import (
	"github.com/labstack/echo/v4"
	"github.com/yakoovad/head2head/internal/model"
	"github.com/yakoovad/head2head/internal/service"
)

type ffaEntryRequest struct {
	UserID int64 `json:"user_id" validate:"required"`
	Place  *int  `json:"place"`
}

// matchRequest is the loosely typed body of POST /groups/:id/matches.
// Kind selects which of the remaining fields are read.
type matchRequest struct {
	Kind string `json:"kind" validate:"required,oneof=team ffa"`

	TeamA      []int64 `json:"team_a"`
	TeamB      []int64 `json:"team_b"`
	TeamSize   *int    `json:"team_size"`
	IsTie      bool    `json:"is_tie"`
	WinnerTeam *int    `json:"winner_team"`
	ScoreA     *int    `json:"score_a"`
	ScoreB     *int    `json:"score_b"`

	Participants []ffaEntryRequest `json:"participants" validate:"dive"`
	WinnerID     *int64            `json:"winner_id"`

	submission model.MatchSubmission
}

func toSubmissionStep(_ echo.Context, req *matchRequest) error {
	switch model.MatchKind(req.Kind) {
	case model.MatchKindTeam:
		if len(req.TeamA) == 0 || len(req.TeamB) == 0 {
			return service.NewError(service.ErrorCodeValidation, "team_a and team_b are required")
		}
		req.submission = model.TeamSubmission{
			TeamA:      req.TeamA,
			TeamB:      req.TeamB,
			TeamSize:   req.TeamSize,
			IsTie:      req.IsTie,
			WinnerTeam: req.WinnerTeam,
			ScoreA:     req.ScoreA,
			ScoreB:     req.ScoreB,
		}
	case model.MatchKindFFA:
		entries := make([]model.FFAEntry, 0, len(req.Participants))
		for _, p := range req.Participants {
			entries = append(entries, model.FFAEntry{UserID: p.UserID, Place: p.Place})
		}
		req.submission = model.FFASubmission{
			Participants: entries,
			WinnerID:     req.WinnerID,
		}
	default:
		return service.NewError(service.ErrorCodeValidation, "unknown match kind")
	}
	return nil
}
