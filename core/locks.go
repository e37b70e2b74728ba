package core

import (
	"sync"

	"pkt.systems/easelx/schema"
)

// LockTable records which user may currently mutate each picture. A missing
// entry means the picture is unlocked. Each method is a single atomic
// check-and-set.
type LockTable struct {
	mu      sync.Mutex
	holders map[schema.PictureID]schema.UserID
}

// NewLockTable constructs an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{holders: make(map[schema.PictureID]schema.UserID)}
}

// Acquire locks the picture for the user if it is unlocked.
func (t *LockTable) Acquire(pictureID schema.PictureID, userID schema.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, locked := t.holders[pictureID]; locked {
		return false
	}
	t.holders[pictureID] = userID
	return true
}

// Release unlocks the picture if the user holds it.
func (t *LockTable) Release(pictureID schema.PictureID, userID schema.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	holder, locked := t.holders[pictureID]
	if !locked || holder != userID {
		return false
	}
	delete(t.holders, pictureID)
	return true
}

// HeldBy reports whether the user currently holds the picture's lock.
func (t *LockTable) HeldBy(pictureID schema.PictureID, userID schema.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	holder, locked := t.holders[pictureID]
	return locked && holder == userID
}

// Holder returns the current lock holder, if any.
func (t *LockTable) Holder(pictureID schema.PictureID) (schema.UserID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	holder, locked := t.holders[pictureID]
	return holder, locked
}

// Len returns the number of locked pictures.
func (t *LockTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.holders)
}

// pictureGuard hands out one mutex per picture so transitions for the same
// picture run one at a time while distinct pictures proceed in parallel.
// Entries are reference counted and dropped when unused.
type pictureGuard struct {
	mu    sync.Mutex
	locks map[schema.PictureID]*guardEntry
}

type guardEntry struct {
	mu   sync.Mutex
	refs int
}

func newPictureGuard() *pictureGuard {
	return &pictureGuard{locks: make(map[schema.PictureID]*guardEntry)}
}

func (g *pictureGuard) lock(pictureID schema.PictureID) func() {
	g.mu.Lock()
	entry := g.locks[pictureID]
	if entry == nil {
		entry = &guardEntry{}
		g.locks[pictureID] = entry
	}
	entry.refs++
	g.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		g.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(g.locks, pictureID)
		}
		g.mu.Unlock()
	}
}

func (g *pictureGuard) len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.locks)
}
