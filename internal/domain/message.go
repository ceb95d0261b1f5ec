package domain

import "time"

// ChatMessage is one chat message as delivered by the hub. ID is assigned
// server-side; a local echo published before the round trip completes
// carries a locally generated ID instead.
type ChatMessage struct {
	ID       string    `json:"id"`
	RoomID   RoomID    `json:"roomId"`
	Username string    `json:"username"`
	Content  string    `json:"content"`
	DateSent time.Time `json:"dateSent"`
}
