package core

import (
	"pkt.systems/easelx/schema"
	"pkt.systems/pslog"
)

// Conn is the transport handle of one session. Send must not block on the
// network; implementations queue the frame and return.
type Conn interface {
	Send(data []byte) error
	Close() error
}

// PresenceSink receives presence and lock changes from the coordinator.
type PresenceSink interface {
	OnPresence(event schema.PresenceEvent)
}

// Deps captures optional dependencies for the coordinator.
type Deps struct {
	Presence PresenceSink
	Logger   pslog.Logger
}
