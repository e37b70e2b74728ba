package eventbus

import (
	"context"
	"sync"

	"pkt.systems/easelx/internal/logx"
	"pkt.systems/easelx/schema"
	"pkt.systems/pslog"
)

const (
	defaultDepth   = 256
	defaultHistory = 128
)

// Bus fans presence events out to per-picture subscribers and keeps a short
// numbered history per picture for stream resumption. Sequence numbers are
// bus-wide and never reused, so a picture that goes idle and becomes active
// again keeps numbering above any id a client has already seen.
type Bus struct {
	mu       sync.Mutex
	seq      uint64
	pictures map[schema.PictureID]*pictureSubs
	log      pslog.Logger
	depth    int
	history  int
}

type pictureSubs struct {
	history []schema.PresenceEvent
	subs    map[chan schema.PresenceEvent]struct{}
}

// New constructs a Bus. A history of zero or less keeps the default.
func New(logger pslog.Logger, history int) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	if history <= 0 {
		history = defaultHistory
	}
	return &Bus{
		pictures: make(map[schema.PictureID]*pictureSubs),
		log:      logger.With("component", "eventbus"),
		depth:    defaultDepth,
		history:  history,
	}
}

// Subscribe registers a subscriber for the picture and returns a channel + cancel.
func (b *Bus) Subscribe(pictureID schema.PictureID) (<-chan schema.PresenceEvent, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan schema.PresenceEvent, b.depth)
	b.mu.Lock()
	ps := b.getOrCreateLocked(pictureID)
	ps.subs[ch] = struct{}{}
	count := len(ps.subs)
	b.mu.Unlock()
	log := logx.WithPicture(b.log, pictureID)
	log.Debug("eventbus subscribe", "subs", count)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if ps := b.pictures[pictureID]; ps != nil {
				delete(ps.subs, ch)
				if ps.idle() {
					delete(b.pictures, pictureID)
				}
			}
			close(ch)
			b.mu.Unlock()
			log.Debug("eventbus unsubscribe")
		})
	}
}

// Replay returns the retained events of the picture numbered after seq.
func (b *Bus) Replay(pictureID schema.PictureID, after uint64) []schema.PresenceEvent {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ps := b.pictures[pictureID]
	if ps == nil {
		return nil
	}
	events := make([]schema.PresenceEvent, 0, len(ps.history))
	for _, event := range ps.history {
		if event.Seq > after {
			events = append(events, event)
		}
	}
	return events
}

// OnPresence numbers the event, records it and publishes it to the picture's
// subscribers. Full subscribers miss the event rather than block the caller.
func (b *Bus) OnPresence(event schema.PresenceEvent) {
	if b == nil {
		return
	}
	b.mu.Lock()
	ps := b.getOrCreateLocked(event.PictureID)
	b.seq++
	event.Seq = b.seq
	ps.history = append(ps.history, event)
	if len(ps.history) > b.history {
		ps.history = ps.history[len(ps.history)-b.history:]
	}
	if ps.idle() {
		delete(b.pictures, event.PictureID)
	}
	dropped := 0
	for sub := range ps.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 {
		logx.WithPicture(b.log, event.PictureID).Trace("eventbus dropped", "type", string(event.Type), "count", dropped)
	}
}

// LastSeq returns the number of the most recent event on any picture.
func (b *Bus) LastSeq() uint64 {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Len returns the number of pictures with retained state.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pictures)
}

func (b *Bus) getOrCreateLocked(pictureID schema.PictureID) *pictureSubs {
	ps := b.pictures[pictureID]
	if ps == nil {
		ps = &pictureSubs{subs: make(map[chan schema.PresenceEvent]struct{})}
		b.pictures[pictureID] = ps
	}
	return ps
}

// idle reports whether nobody watches the picture and its last recorded event
// left it without sessions.
func (ps *pictureSubs) idle() bool {
	if len(ps.subs) > 0 {
		return false
	}
	if len(ps.history) == 0 {
		return true
	}
	last := ps.history[len(ps.history)-1]
	return last.Type == schema.PresenceLeave && last.Sessions == 0
}
