package core

import (
	"encoding/json"

	"pkt.systems/easelx/internal/logx"
	"pkt.systems/easelx/schema"
)

// Broadcast encodes the response once and queues it on every session of the
// picture except exclude. A failing session is logged and skipped; it is
// removed from the registry when its own disconnect runs. It returns the
// number of sessions the frame was queued for.
func (c *Coordinator) Broadcast(pictureID schema.PictureID, resp schema.EditResponse, exclude *Session) int {
	data, err := json.Marshal(resp)
	if err != nil {
		logx.WithPicture(c.log, pictureID).Error("broadcast encode failed", "type", resp.Type, "err", err)
		return 0
	}
	sessions := c.registry.Sessions(pictureID)
	delivered := 0
	failed := 0
	for _, session := range sessions {
		if exclude != nil && session.ID == exclude.ID {
			continue
		}
		if err := session.send(data); err != nil {
			failed++
			logx.WithSession(logx.WithPicture(c.log, pictureID), session.ID).Warn("broadcast send failed", "type", resp.Type, "err", err)
			continue
		}
		delivered++
	}
	logx.WithPicture(c.log, pictureID).Trace("broadcast", "type", resp.Type, "delivered", delivered, "failed", failed)
	return delivered
}

// SendError sends a single ERROR frame to one session. It never broadcasts.
func (c *Coordinator) SendError(session *Session, message string) {
	if session == nil {
		return
	}
	data, err := json.Marshal(schema.EditResponse{
		Type:    schema.MessageError,
		Message: message,
		User:    session.User.Profile(),
	})
	if err != nil {
		return
	}
	if err := session.send(data); err != nil {
		logx.WithSession(logx.WithPicture(c.log, session.PictureID), session.ID).Warn("error frame send failed", "err", err)
	}
}
