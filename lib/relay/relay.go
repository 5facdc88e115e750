// Package relay is a thin client wrapper over nbd-wtf/go-nostr's Relay
// type, grounded on the teacher's own client-side usage in
// lib/sync/missing_notes.go (nostr.RelayConnect, nostr.Filter). It
// supports one or more simultaneous relay URLs, publishing to all of them
// and returning on first ack or timeout. It does not reconnect by itself:
// a relay whose connection drops is left out of Publish and Subscribe
// until Connect is called again, and subscriptions on it are not
// re-installed.
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/HORNET-Storage/hornet-messaging/lib/errs"
)

const publishTimeout = 10 * time.Second

// Client manages connections to a configured set of relay URLs.
type Client struct {
	mu      sync.RWMutex
	conns   map[string]*nostr.Relay
	urls    []string
}

// NewClient builds a Client for the given relay URL set. Call Connect to
// establish connections.
func NewClient(urls []string) *Client {
	return &Client{
		conns: make(map[string]*nostr.Relay, len(urls)),
		urls:  urls,
	}
}

// Connect dials every configured relay. It is idempotent: calling it
// again only (re)connects relays that are not currently connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for _, url := range c.urls {
		if r, ok := c.conns[url]; ok && r.IsConnected() {
			continue
		}
		r, err := nostr.RelayConnect(ctx, url)
		if err != nil {
			lastErr = errs.Wrap(errs.ConnectionError, "connect to relay "+url, err)
			continue
		}
		c.conns[url] = r
	}
	if lastErr != nil && len(c.conns) == 0 {
		return lastErr
	}
	return nil
}

// Disconnect is idempotent: closing an already-closed relay is a no-op.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for url, r := range c.conns {
		if r.IsConnected() {
			r.Close()
		}
		delete(c.conns, url)
	}
	return nil
}

// ConnectedURLs reports which configured relays currently have a live
// connection.
func (c *Client) ConnectedURLs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.conns))
	for url, r := range c.conns {
		if r.IsConnected() {
			out = append(out, url)
		}
	}
	return out
}

// Publish fans an event out to every connected relay and returns once
// the first one acks, or errs.Timeout if none does within the deadline.
func (c *Client) Publish(ctx context.Context, event nostr.Event) error {
	c.mu.RLock()
	conns := make([]*nostr.Relay, 0, len(c.conns))
	for _, r := range c.conns {
		if r.IsConnected() {
			conns = append(conns, r)
		}
	}
	c.mu.RUnlock()

	if len(conns) == 0 {
		return errs.New(errs.ConnectionError, "no connected relays to publish to")
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	type result struct{ err error }
	results := make(chan result, len(conns))

	for _, r := range conns {
		go func(r *nostr.Relay) {
			results <- result{err: r.Publish(ctx, event)}
		}(r)
	}

	var lastErr error
	for i := 0; i < len(conns); i++ {
		res := <-results
		if res.err == nil {
			return nil
		}
		lastErr = res.err
	}

	if ctx.Err() == context.DeadlineExceeded {
		return errs.Wrap(errs.Timeout, "publish timed out with no relay acking", lastErr)
	}
	return errs.Wrap(errs.ConnectionError, "publish failed on all connected relays", lastErr)
}

// Subscription is a live subscription against one relay connection.
type Subscription struct {
	sub *nostr.Subscription
}

// Events streams incoming events for the subscription's lifetime.
func (s *Subscription) Events() <-chan *nostr.Event {
	return s.sub.Events
}

// Close cancels the subscription.
func (s *Subscription) Close() {
	s.sub.Unsub()
}

// Subscribe opens one subscription per connected relay for the given
// filter set, merging their events into a single channel.
func (c *Client) Subscribe(ctx context.Context, filters nostr.Filters) (*MergedSubscription, error) {
	c.mu.RLock()
	conns := make([]*nostr.Relay, 0, len(c.conns))
	for _, r := range c.conns {
		if r.IsConnected() {
			conns = append(conns, r)
		}
	}
	c.mu.RUnlock()

	if len(conns) == 0 {
		return nil, errs.New(errs.SubscriptionError, "no connected relays to subscribe on")
	}

	out := &MergedSubscription{
		events: make(chan *nostr.Event, 64),
	}

	for _, r := range conns {
		sub, err := r.Subscribe(ctx, filters)
		if err != nil {
			out.Close()
			return nil, errs.Wrap(errs.SubscriptionError, "subscribe on relay", err)
		}
		out.subs = append(out.subs, sub)
		go out.pump(sub)
	}

	return out, nil
}

// MergedSubscription fans events from several per-relay subscriptions
// into one channel, deduplication is the processor's job (event ids
// repeat across relays by design).
type MergedSubscription struct {
	mu     sync.Mutex
	subs   []*nostr.Subscription
	events chan *nostr.Event
	closed bool
}

func (m *MergedSubscription) pump(sub *nostr.Subscription) {
	for ev := range sub.Events {
		m.mu.Lock()
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return
		}
		m.events <- ev
	}
}

func (m *MergedSubscription) Events() <-chan *nostr.Event {
	return m.events
}

func (m *MergedSubscription) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for _, s := range m.subs {
		s.Unsub()
	}
}
