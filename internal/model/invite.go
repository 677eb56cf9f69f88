package model

import "time"

type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusDeclined InviteStatus = "declined"
	InviteStatusCanceled InviteStatus = "canceled"
)

type InviteAction string

const (
	InviteActionAccept  InviteAction = "accept"
	InviteActionDecline InviteAction = "decline"
)

type Invite struct {
	ID          int64        `json:"id"`
	GroupID     int64        `json:"group_id"`
	InviterID   int64        `json:"inviter_id"`
	InviteeID   int64        `json:"invitee_id"`
	Status      InviteStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	RespondedAt *time.Time   `json:"responded_at,omitempty"`
}

// InviteSummary is an invite joined with what an inbox needs to show it.
type InviteSummary struct {
	Invite          *Invite `json:"invite"`
	GroupName       string  `json:"group_name"`
	GroupSport      string  `json:"group_sport"`
	InviterUsername string  `json:"inviter_username"`
}
