package console

import (
	"time"

	"support-console/internal/channel"
	"support-console/internal/model"
	"support-console/internal/roster"
)

// QueueRow is a roster entry decorated with the admin's attention state.
type QueueRow struct {
	model.Session
	IsNew    bool `json:"isNew"`
	Unread   int  `json:"unread"`
	Selected bool `json:"selected"`
}

type QueueView struct {
	Loaded       bool             `json:"loaded"`
	Active       []QueueRow       `json:"active"`
	Resolved     []QueueRow       `json:"resolved"`
	ResolvedPage model.Pagination `json:"resolvedPage"`
	Counts       roster.Counts    `json:"counts"`
	NewIDs       []string         `json:"newIds"`
	TotalUnread  int              `json:"totalUnread"`
	SelectedID   string           `json:"selectedId,omitempty"`
	FetchedAt    time.Time        `json:"fetchedAt"`
	Error        string           `json:"error,omitempty"`
}

type DetailView struct {
	Session         model.Session       `json:"session"`
	Status          model.SessionStatus `json:"status"`
	AssignedAdminID string              `json:"assignedAdminId,omitempty"`
	Messages        []model.Message     `json:"messages"`
	Channel         channel.State       `json:"channel"`
	PeerTyping      bool                `json:"peerTyping"`
	CanSend         bool                `json:"canSend"`
	CanTakeover     bool                `json:"canTakeover"`
	CanResolve      bool                `json:"canResolve"`
	Draft           string              `json:"draft"`
}

type StatusView struct {
	Status          model.SessionStatus `json:"status"`
	OldStatus       model.SessionStatus `json:"oldStatus,omitempty"`
	AssignedAdminID string              `json:"assignedAdminId,omitempty"`
	CanSend         bool                `json:"canSend"`
}

type RosterErrorView struct {
	Error string    `json:"error"`
	Queue QueueView `json:"queue"`
}
