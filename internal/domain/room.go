package domain

import "time"

type (
	RoomName string
	RoomID   string
)

// Room is the chat room as the session layer sees it. Unread state is
// client-driven: a room is unread when a message lands while another
// room is current, and cleared on join. No server read receipt exists.
type Room struct {
	ID                RoomID    `json:"id"`
	Name              RoomName  `json:"name"`
	HasUnreadMessages bool      `json:"hasUnreadMessages"`
	LastSeen          time.Time `json:"lastSeen,omitempty"`
}
