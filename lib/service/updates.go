package service

import (
	"sync"

	"github.com/HORNET-Storage/hornet-messaging/lib/store"
)

// UpdateKind distinguishes what a subscribed consumer is being told.
type UpdateKind int

const (
	ConnectionChanged UpdateKind = iota
	GroupHasNewMessage
	InviteReceived
	GroupEvolved
)

// Update is pushed to every consumer subscribed via SubscribeUpdates.
type Update struct {
	Kind       UpdateKind
	Connection ConnectionState
	GroupID    string
	Message    store.Message
	Invite     store.PendingInvite
	Group      store.Group
}

// updateBusCapacity is the per-consumer buffer depth before the
// drop-oldest policy kicks in.
const updateBusCapacity = 64

// bus fans Update values out to N consumer channels, dropping the
// oldest buffered item for any consumer that falls behind rather than
// blocking the processor loop, grounded on the fan-out shape of
// WAN-Ninjas-AmityVox's internal/events.Bus (NATS-backed there,
// in-process here).
type bus struct {
	mu          sync.Mutex
	subscribers []chan Update
}

func newBus() *bus {
	return &bus{}
}

func (b *bus) subscribe() <-chan Update {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Update, updateBusCapacity)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

func (b *bus) publish(u Update) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- u:
		default:
			// drop the oldest buffered update to make room, rather than
			// block the caller or drop the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- u:
			default:
			}
		}
	}
}
