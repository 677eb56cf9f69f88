package model

import "time"

// DefaultRating is the rating of every new membership.
const DefaultRating = 1000.0

type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

type Group struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Sport           string    `json:"sport"`
	DefaultTeamSize int       `json:"default_team_size"`
	OwnerID         int64     `json:"owner_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// UserGroup is a group as seen by one of its members.
type UserGroup struct {
	Group  *Group  `json:"group"`
	Role   Role    `json:"role"`
	Rating float64 `json:"rating"`
}

type Member struct {
	UserID   int64     `json:"user_id"`
	Username string    `json:"username"`
	Role     Role      `json:"role"`
	Rating   float64   `json:"rating"`
	JoinedAt time.Time `json:"joined_at"`
}

type GroupDetail struct {
	Group   *Group    `json:"group"`
	Members []*Member `json:"members"`
}

type GroupDraft struct {
	Name            string   `json:"name"`
	Sport           string   `json:"sport"`
	DefaultTeamSize int      `json:"default_team_size"`
	Invitees        []string `json:"invitees"`
}

// GroupPatch carries the fields to change; nil means unchanged.
type GroupPatch struct {
	Name            *string `json:"name,omitempty"`
	Sport           *string `json:"sport,omitempty"`
	DefaultTeamSize *int    `json:"default_team_size,omitempty"`
}
