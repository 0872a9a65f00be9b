package signaling

import "errors"

// Relay rejections. They are reported only to the offending sender and never
// affect other room participants.
var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomNotActive     = errors.New("room is not active")
	ErrRoomFull          = errors.New("room is at session capacity")
	ErrNotRoomMember     = errors.New("sender is not a room member")
	ErrRecipientNotFound = errors.New("recipient is not a room member")
	ErrNotRoomHost       = errors.New("only the host may end the room")
	ErrInvalidStatusType = errors.New("unknown participant status type")
)
