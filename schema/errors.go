package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidUser indicates an invalid user identifier.
	ErrInvalidUser = errors.New("invalid user")
	// ErrInvalidPicture indicates a missing or malformed picture id.
	ErrInvalidPicture = errors.New("invalid picture id")
	// ErrUnauthenticated indicates the caller has no valid login session.
	ErrUnauthenticated = errors.New("not logged in")
	// ErrPictureNotFound indicates the picture does not exist.
	ErrPictureNotFound = errors.New("picture not found")
	// ErrSpaceNotFound indicates the picture's space does not exist.
	ErrSpaceNotFound = errors.New("space not found")
	// ErrNotTeamSpace indicates collaborative editing was requested outside a team space.
	ErrNotTeamSpace = errors.New("collaborative editing requires a team space")
	// ErrForbidden indicates the caller lacks the required permission.
	ErrForbidden = errors.New("permission denied")
	// ErrUnknownMessageType indicates an inbound frame with an unsupported type.
	ErrUnknownMessageType = errors.New("unknown message type")
	// ErrUnknownEditAction indicates an edit action outside the supported set.
	ErrUnknownEditAction = errors.New("unknown edit action")
	// ErrPipelineFull indicates the event queue rejected an event.
	ErrPipelineFull = errors.New("event pipeline full")
	// ErrPipelineClosed indicates the event pipeline is stopped.
	ErrPipelineClosed = errors.New("event pipeline closed")
	// ErrSessionClosed indicates a send to a closed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrSendQueueFull indicates a session's outbound queue is saturated.
	ErrSendQueueFull = errors.New("session send queue full")
	// ErrNotMember indicates the user has no membership in the space.
	ErrNotMember = errors.New("not a space member")
)
