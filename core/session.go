package core

import (
	"github.com/google/uuid"

	"pkt.systems/easelx/schema"
)

// Session is one live connection bound to a picture and a user.
type Session struct {
	ID        schema.SessionID
	User      schema.User
	PictureID schema.PictureID
	conn      Conn
}

// NewSession binds a connection to the user and picture resolved by the handshake.
func NewSession(user schema.User, pictureID schema.PictureID, conn Conn) *Session {
	return &Session{
		ID:        schema.SessionID(uuid.NewString()),
		User:      user,
		PictureID: pictureID,
		conn:      conn,
	}
}

func (s *Session) send(data []byte) error {
	if s == nil || s.conn == nil {
		return schema.ErrSessionClosed
	}
	return s.conn.Send(data)
}

// Close closes the underlying transport.
func (s *Session) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Event is one unit of work flowing through the pipeline.
type Event struct {
	Kind      schema.EventKind
	Session   *Session
	UserID    schema.UserID
	PictureID schema.PictureID
	Action    schema.EditAction
}

// NewEvent tags an inbound request with the session's identity and picture.
func NewEvent(session *Session, kind schema.EventKind, action schema.EditAction) Event {
	return Event{
		Kind:      kind,
		Session:   session,
		UserID:    session.User.ID,
		PictureID: session.PictureID,
		Action:    action,
	}
}
