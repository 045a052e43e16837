package domain

import "github.com/google/uuid"

const MaxRoomIDLen = 64

type (
	RoomID string
	// ConnID identifies one accepted relay connection. It is never reused.
	ConnID string
)

func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

// RoomInfo is a read-only view for APIs.
type RoomInfo struct {
	ID          RoomID `json:"id"`
	MemberCount int    `json:"memberCount"`
}
