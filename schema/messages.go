package schema

import (
	"strconv"
	"time"
)

// MessageType tags inbound and outbound edit messages.
type MessageType string

const (
	// MessageInfo carries join/leave notices.
	MessageInfo MessageType = "INFO"
	// MessageError reports a protocol error to one session.
	MessageError MessageType = "ERROR"
	// MessageEnterEdit requests or confirms the editing lock.
	MessageEnterEdit MessageType = "ENTER_EDIT"
	// MessageEditAction carries an edit operation from the lock holder.
	MessageEditAction MessageType = "EDIT_ACTION"
	// MessageExitEdit releases the editing lock.
	MessageExitEdit MessageType = "EXIT_EDIT"
)

// EditAction is one of the supported picture operations.
type EditAction string

const (
	// ActionZoomIn enlarges the view.
	ActionZoomIn EditAction = "ZOOM_IN"
	// ActionZoomOut shrinks the view.
	ActionZoomOut EditAction = "ZOOM_OUT"
	// ActionRotateLeft rotates counter-clockwise.
	ActionRotateLeft EditAction = "ROTATE_LEFT"
	// ActionRotateRight rotates clockwise.
	ActionRotateRight EditAction = "ROTATE_RIGHT"
)

var editActionLabels = map[EditAction]string{
	ActionZoomIn:      "zoom in",
	ActionZoomOut:     "zoom out",
	ActionRotateLeft:  "rotate left",
	ActionRotateRight: "rotate right",
}

// Label returns the human readable name of the action, or "" if unknown.
func (a EditAction) Label() string {
	return editActionLabels[a]
}

// Valid reports whether the action is in the supported set.
func (a EditAction) Valid() bool {
	_, ok := editActionLabels[a]
	return ok
}

// EditRequest is the inbound frame sent by clients.
type EditRequest struct {
	Type       MessageType `json:"type"`
	EditAction EditAction  `json:"editAction,omitempty"`
}

// EditResponse is the outbound frame broadcast to sessions.
type EditResponse struct {
	Type       MessageType  `json:"type"`
	Message    string       `json:"message"`
	EditAction EditAction   `json:"editAction,omitempty"`
	User       *UserProfile `json:"user,omitempty"`
}

// UserProfile is the public view of a user. Ids are encoded as strings so
// browser clients do not lose precision on 64-bit values.
type UserProfile struct {
	ID         UserID    `json:"id,string"`
	Account    string    `json:"userAccount"`
	Name       string    `json:"userName"`
	Avatar     string    `json:"userAvatar,omitempty"`
	Profile    string    `json:"userProfile,omitempty"`
	Role       UserRole  `json:"userRole"`
	CreateTime time.Time `json:"createTime,omitzero"`
}

// Profile returns the public profile of the user.
func (u User) Profile() *UserProfile {
	return &UserProfile{
		ID:         u.ID,
		Account:    u.Account,
		Name:       u.DisplayName(),
		Avatar:     u.Avatar,
		Profile:    u.Bio,
		Role:       u.Role,
		CreateTime: u.Created,
	}
}

// DisplayName returns the name, falling back to the account or id.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if u.Account != "" {
		return u.Account
	}
	return "user " + strconv.FormatInt(int64(u.ID), 10)
}

// EventKind identifies a pipeline event.
type EventKind int

const (
	// EventEnterEdit requests the editing lock.
	EventEnterEdit EventKind = iota + 1
	// EventEditAction applies an action under the lock.
	EventEditAction
	// EventExitEdit releases the editing lock.
	EventExitEdit
)

// String returns the wire name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventEnterEdit:
		return string(MessageEnterEdit)
	case EventEditAction:
		return string(MessageEditAction)
	case EventExitEdit:
		return string(MessageExitEdit)
	default:
		return "UNKNOWN"
	}
}

// EventKindFor maps an inbound message type to an event kind.
func EventKindFor(t MessageType) (EventKind, bool) {
	switch t {
	case MessageEnterEdit:
		return EventEnterEdit, true
	case MessageEditAction:
		return EventEditAction, true
	case MessageExitEdit:
		return EventExitEdit, true
	default:
		return 0, false
	}
}
