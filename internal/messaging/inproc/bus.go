package inproc

import (
	"errors"
	"sync"

	"freight_auction/internal/auction"
)

var (
	ErrAgentNotRegistered = errors.New("agent is not registered in bus")
	ErrAgentQueueFull     = errors.New("agent queue is full")
)

// Update notifies subscribers that the auction for TaskID mutated. The
// handle carries its own consistent snapshot; subscribers read state
// through it.
type Update struct {
	TaskID  string
	Auction *auction.Auction
}

// Bus fans auction updates out to every registered agent. Each subscriber
// owns a buffered channel and drains it at the start of its round, so all
// notifications from one tick are observed before the next round begins.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]chan Update
	buffer int
}

func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[string]chan Update),
		buffer: buffer,
	}
}

func (b *Bus) Register(agentID string) <-chan Update {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[agentID]; ok {
		return ch
	}
	ch := make(chan Update, b.buffer)
	b.subs[agentID] = ch
	return ch
}

func (b *Bus) Unregister(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[agentID]
	if !ok {
		return
	}
	delete(b.subs, agentID)
	close(ch)
}

// Broadcast delivers the update to every subscriber. A full queue drops
// the update for that subscriber only and reports the last such failure.
func (b *Bus) Broadcast(u Update) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var err error
	for _, ch := range b.subs {
		select {
		case ch <- u:
		default:
			err = ErrAgentQueueFull
		}
	}
	return err
}

// Publish delivers the update to a single subscriber.
func (b *Bus) Publish(agentID string, u Update) error {
	b.mu.RLock()
	ch, ok := b.subs[agentID]
	b.mu.RUnlock()
	if !ok {
		return ErrAgentNotRegistered
	}

	select {
	case ch <- u:
		return nil
	default:
		return ErrAgentQueueFull
	}
}
