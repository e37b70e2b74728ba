package core

import (
	"sync"

	"pkt.systems/easelx/schema"
)

// Registry maps a picture to the sessions currently attached to it.
type Registry struct {
	mu       sync.RWMutex
	pictures map[schema.PictureID]map[schema.SessionID]*Session
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		pictures: make(map[schema.PictureID]map[schema.SessionID]*Session),
	}
}

// Register adds the session to the picture's set. Registering twice is a no-op.
func (r *Registry) Register(pictureID schema.PictureID, session *Session) {
	if session == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.pictures[pictureID]
	if set == nil {
		set = make(map[schema.SessionID]*Session)
		r.pictures[pictureID] = set
	}
	set[session.ID] = session
}

// Unregister removes the session and drops the picture entry once it is empty.
// It reports whether the session was present.
func (r *Registry) Unregister(pictureID schema.PictureID, session *Session) bool {
	if session == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.pictures[pictureID]
	if set == nil {
		return false
	}
	if _, ok := set[session.ID]; !ok {
		return false
	}
	delete(set, session.ID)
	if len(set) == 0 {
		delete(r.pictures, pictureID)
	}
	return true
}

// Contains reports whether the session is registered on the picture.
func (r *Registry) Contains(pictureID schema.PictureID, session *Session) bool {
	if session == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pictures[pictureID][session.ID]
	return ok
}

// Sessions returns a snapshot of the picture's sessions.
func (r *Registry) Sessions(pictureID schema.PictureID) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.pictures[pictureID]
	out := make([]*Session, 0, len(set))
	for _, session := range set {
		out = append(out, session)
	}
	return out
}

// Count returns the number of sessions attached to the picture.
func (r *Registry) Count(pictureID schema.PictureID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pictures[pictureID])
}

// Len returns the number of pictures with at least one session.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pictures)
}
