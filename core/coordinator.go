package core

import (
	"context"
	"fmt"
	"time"

	"pkt.systems/easelx/internal/logx"
	"pkt.systems/easelx/schema"
	"pkt.systems/pslog"
)

// Coordinator owns the session registry and the edit-lock table and is the
// only component that mutates them. Every transition runs under the
// picture's guard, so the lock check-and-set, registry change and resulting
// broadcast for one picture never interleave with another transition on the
// same picture.
type Coordinator struct {
	registry *Registry
	locks    *LockTable
	guard    *pictureGuard
	presence PresenceSink
	log      pslog.Logger
}

// NewCoordinator constructs a coordinator with empty state.
func NewCoordinator(deps Deps) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Coordinator{
		registry: NewRegistry(),
		locks:    NewLockTable(),
		guard:    newPictureGuard(),
		presence: deps.Presence,
		log:      logger.With("component", "coordinator"),
	}
}

// Registry exposes the session registry for inspection.
func (c *Coordinator) Registry() *Registry { return c.registry }

// Locks exposes the edit-lock table for inspection.
func (c *Coordinator) Locks() *LockTable { return c.locks }

// OnConnect registers the session and announces the join to every session of
// the picture, the joiner included.
func (c *Coordinator) OnConnect(ctx context.Context, session *Session) {
	unlock := c.guard.lock(session.PictureID)
	defer unlock()

	c.registry.Register(session.PictureID, session)
	log := c.sessionLog(ctx, session)
	log.Info("edit session joined", "sessions", c.registry.Count(session.PictureID))
	c.Broadcast(session.PictureID, schema.EditResponse{
		Type:    schema.MessageInfo,
		Message: fmt.Sprintf("%s joined editing", session.User.DisplayName()),
		User:    session.User.Profile(),
	}, nil)
	c.emit(schema.PresenceJoin, session)
}

// OnEnterEdit grants the lock when the picture is unlocked and confirms it to
// every session. When someone already holds the lock the request is dropped
// without a reply: the first editor wins. Events that outlive their session
// are dropped as well.
func (c *Coordinator) OnEnterEdit(ctx context.Context, session *Session) {
	unlock := c.guard.lock(session.PictureID)
	defer unlock()

	log := c.sessionLog(ctx, session)
	if !c.registry.Contains(session.PictureID, session) {
		log.Debug("enter edit ignored", "reason", "session gone")
		return
	}
	if !c.locks.Acquire(session.PictureID, session.User.ID) {
		log.Debug("enter edit ignored", "reason", "locked")
		return
	}
	log.Info("edit lock acquired")
	c.Broadcast(session.PictureID, schema.EditResponse{
		Type:    schema.MessageEnterEdit,
		Message: fmt.Sprintf("%s started editing", session.User.DisplayName()),
		User:    session.User.Profile(),
	}, nil)
	c.emit(schema.PresenceLock, session)
}

// OnEditAction relays an action from the lock holder to every other session.
// Actions from anyone else are dropped.
func (c *Coordinator) OnEditAction(ctx context.Context, session *Session, action schema.EditAction) {
	if !action.Valid() {
		c.SendError(session, fmt.Sprintf("unsupported edit action %q", action))
		return
	}
	unlock := c.guard.lock(session.PictureID)
	defer unlock()

	log := c.sessionLog(ctx, session)
	if !c.registry.Contains(session.PictureID, session) {
		log.Debug("edit action ignored", "reason", "session gone", "action", action)
		return
	}
	if !c.locks.HeldBy(session.PictureID, session.User.ID) {
		log.Debug("edit action ignored", "reason", "not lock holder", "action", action)
		return
	}
	log.Debug("edit action", "action", action)
	c.Broadcast(session.PictureID, schema.EditResponse{
		Type:       schema.MessageEditAction,
		Message:    fmt.Sprintf("%s performed %s", session.User.DisplayName(), action.Label()),
		EditAction: action,
		User:       session.User.Profile(),
	}, session)
}

// OnExitEdit releases the lock held by the session's user and tells every
// session. It is a no-op for anyone but the holder.
func (c *Coordinator) OnExitEdit(ctx context.Context, session *Session) {
	unlock := c.guard.lock(session.PictureID)
	defer unlock()

	log := c.sessionLog(ctx, session)
	if !c.registry.Contains(session.PictureID, session) {
		log.Debug("exit edit ignored", "reason", "session gone")
		return
	}
	c.exitEditLocked(log, session, nil)
}

// OnDisconnect releases a lock held by the departing user, removes the
// session and announces the departure to the remaining sessions.
func (c *Coordinator) OnDisconnect(ctx context.Context, session *Session) {
	unlock := c.guard.lock(session.PictureID)
	defer unlock()

	log := c.sessionLog(ctx, session)
	c.exitEditLocked(log, session, session)
	if !c.registry.Unregister(session.PictureID, session) {
		log.Debug("edit session already gone")
		return
	}
	remaining := c.registry.Count(session.PictureID)
	log.Info("edit session left", "sessions", remaining)
	c.Broadcast(session.PictureID, schema.EditResponse{
		Type:    schema.MessageInfo,
		Message: fmt.Sprintf("%s left editing", session.User.DisplayName()),
		User:    session.User.Profile(),
	}, session)
	c.emit(schema.PresenceLeave, session)
}

// HandleEvent dispatches a pipeline event to its transition.
func (c *Coordinator) HandleEvent(ctx context.Context, event Event) {
	if event.Session == nil {
		return
	}
	switch event.Kind {
	case schema.EventEnterEdit:
		c.OnEnterEdit(ctx, event.Session)
	case schema.EventEditAction:
		c.OnEditAction(ctx, event.Session, event.Action)
	case schema.EventExitEdit:
		c.OnExitEdit(ctx, event.Session)
	default:
		c.SendError(event.Session, "unsupported message type")
	}
}

// Snapshot reports the current editor and session count of a picture.
func (c *Coordinator) Snapshot(pictureID schema.PictureID) schema.EditState {
	unlock := c.guard.lock(pictureID)
	defer unlock()

	state := schema.EditState{
		PictureID: pictureID,
		Sessions:  c.registry.Count(pictureID),
	}
	holder, locked := c.locks.Holder(pictureID)
	if !locked {
		return state
	}
	for _, session := range c.registry.Sessions(pictureID) {
		if session.User.ID == holder {
			state.Editor = session.User.Profile()
			return state
		}
	}
	state.Editor = &schema.UserProfile{ID: holder}
	return state
}

func (c *Coordinator) exitEditLocked(log pslog.Logger, session *Session, exclude *Session) {
	if !c.locks.Release(session.PictureID, session.User.ID) {
		return
	}
	log.Info("edit lock released")
	c.Broadcast(session.PictureID, schema.EditResponse{
		Type:    schema.MessageExitEdit,
		Message: fmt.Sprintf("%s stopped editing", session.User.DisplayName()),
		User:    session.User.Profile(),
	}, exclude)
	c.emit(schema.PresenceUnlock, session)
}

func (c *Coordinator) emit(kind schema.PresenceType, session *Session) {
	if c.presence == nil {
		return
	}
	c.presence.OnPresence(schema.PresenceEvent{
		Type:      kind,
		PictureID: session.PictureID,
		SessionID: session.ID,
		User:      session.User.Profile(),
		Sessions:  c.registry.Count(session.PictureID),
		Timestamp: time.Now(),
	})
}

// sessionLog reuses the connection logger carried by ctx when it already
// names the session's user and picture.
func (c *Coordinator) sessionLog(ctx context.Context, session *Session) pslog.Logger {
	if log, ok := logx.BoundLogger(ctx, session.User.ID, session.PictureID); ok {
		return log.With("component", "coordinator")
	}
	log := logx.WithPicture(c.log, session.PictureID)
	return logx.WithSession(log, session.ID).With("user", int64(session.User.ID))
}
