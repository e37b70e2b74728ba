package schema

import "time"

// PresenceType describes a presence or lock change on a picture.
type PresenceType string

const (
	// PresenceJoin marks a session joining a picture.
	PresenceJoin PresenceType = "join"
	// PresenceLeave marks a session leaving a picture.
	PresenceLeave PresenceType = "leave"
	// PresenceLock marks a user acquiring the editing lock.
	PresenceLock PresenceType = "lock"
	// PresenceUnlock marks the editing lock being released.
	PresenceUnlock PresenceType = "unlock"
)

// PresenceEvent is emitted by the coordinator after a state change.
type PresenceEvent struct {
	Seq       uint64       `json:"seq,omitempty"`
	Type      PresenceType `json:"type"`
	PictureID PictureID    `json:"pictureId,string"`
	SessionID SessionID    `json:"sessionId,omitempty"`
	User      *UserProfile `json:"user,omitempty"`
	Sessions  int          `json:"sessions"`
	Timestamp time.Time    `json:"timestamp"`
}

// EditState summarizes the collaborative state of one picture.
type EditState struct {
	PictureID PictureID    `json:"pictureId,string"`
	Editor    *UserProfile `json:"editor,omitempty"`
	Sessions  int          `json:"sessions"`
}
