// Package subscription manages the live Nostr filter set this identity
// subscribes on: a gift-wrap filter for self, plus one filter for kinds
// 445 and 446 whose "h" list holds every joined group's Nostr group id.
// Joining or leaving a group rewrites the
// filter set atomically before the next MLS operation touches that
// group, per spec.md's invariant. Grounded on the teacher's
// lib/handlers/nostr/filter construction idiom and the atomicity
// discipline of its former relay-store.go single named subscription.
package subscription

import (
	"context"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/HORNET-Storage/hornet-messaging/lib/errs"
	"github.com/HORNET-Storage/hornet-messaging/lib/relay"
)

const (
	KindKeyPackage     = 443
	KindWelcome        = 444
	KindGroupMessage   = 445
	KindGroupEvolution = 446
	KindGiftWrap       = 1059
)

// Manager owns the current filter set and the single active merged
// subscription it produces.
type Manager struct {
	mu         sync.Mutex
	client     *relay.Client
	selfPubkey string
	groupIDs   map[string]bool // Nostr group ids, not MLS group ids
	current    *relay.MergedSubscription
}

// NewManager builds a Manager for the given relay client and self
// public identifier. The initial filter set is just the gift-wrap
// filter for self.
func NewManager(client *relay.Client, selfPubkey string) *Manager {
	return &Manager{
		client:     client,
		selfPubkey: selfPubkey,
		groupIDs:   make(map[string]bool),
	}
}

// buildFilters constructs the filter set ⊇ {gift-wrap for self} ∪
// {group-message filter per joined group}, per spec.md §3's invariant.
func (m *Manager) buildFilters() nostr.Filters {
	filters := nostr.Filters{
		{
			Kinds: []int{KindGiftWrap},
			Tags:  nostr.TagMap{"p": []string{m.selfPubkey}},
		},
	}

	if len(m.groupIDs) > 0 {
		ids := make([]string, 0, len(m.groupIDs))
		for id := range m.groupIDs {
			ids = append(ids, id)
		}
		filters = append(filters, nostr.Filter{
			Kinds: []int{KindGroupMessage, KindGroupEvolution},
			Tags:  nostr.TagMap{"h": ids},
		})
	}

	return filters
}

// Rewrite replaces the tracked group id set and re-subscribes. Callers
// must complete this before issuing the next MLS operation for the
// affected group.
func (m *Manager) Rewrite(ctx context.Context, groupIDs []string) (*relay.MergedSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.groupIDs = make(map[string]bool, len(groupIDs))
	for _, id := range groupIDs {
		m.groupIDs[id] = true
	}

	if m.current != nil {
		m.current.Close()
		m.current = nil
	}

	sub, err := m.client.Subscribe(ctx, m.buildFilters())
	if err != nil {
		return nil, errs.Wrap(errs.SubscriptionError, "rewrite subscription filter set", err)
	}
	m.current = sub
	return sub, nil
}

// AddGroup adds one group id to the tracked set and rewrites.
func (m *Manager) AddGroup(ctx context.Context, groupID string) (*relay.MergedSubscription, error) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.groupIDs)+1)
	for id := range m.groupIDs {
		ids = append(ids, id)
	}
	ids = append(ids, groupID)
	m.mu.Unlock()

	return m.Rewrite(ctx, ids)
}

// RemoveGroup removes one group id from the tracked set and rewrites.
func (m *Manager) RemoveGroup(ctx context.Context, groupID string) (*relay.MergedSubscription, error) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.groupIDs))
	for id := range m.groupIDs {
		if id != groupID {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	return m.Rewrite(ctx, ids)
}

// Current returns the active merged subscription, if any.
func (m *Manager) Current() *relay.MergedSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}
