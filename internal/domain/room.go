package domain

type RoomID string

// Room is the named session meta. Participant tracking and the playback
// clock live in the app layer room service.
type Room struct {
	ID   RoomID
	Host UserID
}
