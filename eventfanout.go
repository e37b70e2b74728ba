package easelx

import (
	"pkt.systems/easelx/core"
	"pkt.systems/easelx/schema"
	"pkt.systems/pslog"
)

type presenceFanout struct {
	sinks []core.PresenceSink
}

func (f presenceFanout) OnPresence(event schema.PresenceEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnPresence(event)
	}
}

// auditTrail records who joined, left, locked and unlocked which picture.
type auditTrail struct {
	log pslog.Logger
}

func (a auditTrail) OnPresence(event schema.PresenceEvent) {
	fields := []any{
		"audit", "presence",
		"event", string(event.Type),
		"picture", int64(event.PictureID),
		"session", string(event.SessionID),
		"sessions", event.Sessions,
	}
	if event.User != nil {
		fields = append(fields, "user", int64(event.User.ID), "account", event.User.Account)
	}
	a.log.Info("picture presence", fields...)
}

func newPresenceSink(sinks ...core.PresenceSink) core.PresenceSink {
	kept := make([]core.PresenceSink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			kept = append(kept, sink)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return presenceFanout{sinks: kept}
	}
}
