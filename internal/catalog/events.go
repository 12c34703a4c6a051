package catalog

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventKind classifies cache notifications.
type EventKind uint8

const (
	// EventFetched is sent after a remote read filled a view.
	EventFetched EventKind = iota + 1
	// EventApplied is sent once a speculative patch is visible.
	EventApplied
	// EventCommitted is sent when a mutation's remote call succeeded.
	EventCommitted
	// EventRolledBack is sent when a mutation failed and its inverse patch ran.
	// Err carries the *MutationError.
	EventRolledBack
	// EventReset is sent after Reset dropped every view.
	EventReset
	// EventDisplaced is sent when a committed create replaced a different
	// cached entry that carried the same server id.
	EventDisplaced
)

func (k EventKind) String() string {
	switch k {
	case EventFetched:
		return "fetched"
	case EventApplied:
		return "applied"
	case EventCommitted:
		return "committed"
	case EventRolledBack:
		return "rolled_back"
	case EventReset:
		return "reset"
	case EventDisplaced:
		return "displaced"
	default:
		return "unknown"
	}
}

// Event is a single cache notification.
type Event struct {
	Kind      EventKind
	Mutation  uuid.UUID
	Op        Op
	ProductID int64
	// ReplacedID is the temporary id a committed create swapped out.
	ReplacedID int64
	Err        error
}

// broadcaster fans events out to subscribers without ever blocking the
// publisher. A subscriber that falls behind loses events.
type broadcaster struct {
	lg *zap.Logger

	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

func newBroadcaster(lg *zap.Logger) *broadcaster {
	return &broadcaster{lg: lg, subs: make(map[int]chan Event)}
}

func (b *broadcaster) subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.lg.Warn("Subscriber is full, dropping event",
				zap.Int("subscriber", id),
				zap.Stringer("kind", ev.Kind),
			)
		}
	}
}

func (b *broadcaster) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
