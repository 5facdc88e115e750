// Package service implements the Service facade: the single entry point
// front-ends consume. It exclusively owns the identity, the storage
// handle, the relay client handle, the MLS engine handle, and the
// event-processor task, per spec.md's ownership invariant.
package service

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/HORNET-Storage/hornet-messaging/lib/config"
	"github.com/HORNET-Storage/hornet-messaging/lib/errs"
	"github.com/HORNET-Storage/hornet-messaging/lib/identity"
	"github.com/HORNET-Storage/hornet-messaging/lib/logging"
	"github.com/HORNET-Storage/hornet-messaging/lib/mls"
	"github.com/HORNET-Storage/hornet-messaging/lib/processor"
	"github.com/HORNET-Storage/hornet-messaging/lib/relay"
	"github.com/HORNET-Storage/hornet-messaging/lib/store"
	"github.com/HORNET-Storage/hornet-messaging/lib/store/memorystore"
	"github.com/HORNET-Storage/hornet-messaging/lib/store/sqlstore"
	"github.com/HORNET-Storage/hornet-messaging/lib/subscription"
)

// Service is the messaging core's public surface.
type Service struct {
	cfg   *config.Configuration
	id    *identity.Identity
	back  store.Backend
	rel   *relay.Client
	eng   *mls.Engine
	proc  *processor.Processor
	subs  *subscription.Manager
	bus   *bus

	mu    sync.Mutex
	state ConnectionState
	cancelLoop context.CancelFunc
}

// New builds a Service from a Configuration: it opens the selected
// storage backend, loads or generates the identity, and wires the MLS
// engine, relay client, subscription manager, and event processor around
// it. It does not connect to any relay; call Connect for that.
func New(cfg *config.Configuration) (*Service, error) {
	id, err := resolveIdentity(cfg)
	if err != nil {
		return nil, err
	}

	back, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}

	eng := mls.NewEngine(id, back)

	seedIDs, err := back.ListAllMessageEventIDs()
	if err != nil {
		return nil, err
	}
	proc := processor.NewProcessor(eng, id, seedIDs)

	rel := relay.NewClient(cfg.RelayURLs())
	subs := subscription.NewManager(rel, id.PublicIdentifier())

	return &Service{
		cfg:   cfg,
		id:    id,
		back:  back,
		rel:   rel,
		eng:   eng,
		proc:  proc,
		subs:  subs,
		bus:   newBus(),
		state: Disconnected,
	}, nil
}

func resolveIdentity(cfg *config.Configuration) (*identity.Identity, error) {
	if cfg.IdentityPath() != "" {
		if id, err := identity.LoadFromFile(cfg.IdentityPath(), ""); err == nil {
			return id, nil
		}
	}
	if seed := cfg.IdentitySeed(); seed != nil {
		return identity.New(seed)
	}
	id, err := identity.Generate()
	if err != nil {
		return nil, err
	}
	if cfg.IdentityPath() != "" {
		if err := id.SaveToFile(cfg.IdentityPath(), ""); err != nil {
			logging.Warnf("service: failed to persist generated identity: %v", err)
		}
	}
	return id, nil
}

func openBackend(cfg *config.Configuration) (store.Backend, error) {
	switch cfg.Backend() {
	case config.BackendSQL:
		return sqlstore.Open(cfg.SQLitePath())
	default:
		return memorystore.Open()
	}
}

// Identity exposes the resolved identity, e.g. so a front-end can print
// the npub to invite others.
func (s *Service) Identity() *identity.Identity { return s.id }

// Status reports the current connection state.
func (s *Service) Status() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials every configured relay and starts the background event
// loop. Calling Connect again while already connected is a no-op.
func (s *Service) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Connected {
		s.mu.Unlock()
		return nil
	}
	s.state = Connecting
	s.mu.Unlock()

	if err := s.rel.Connect(ctx); err != nil {
		s.mu.Lock()
		s.state = Disconnected
		s.mu.Unlock()
		return err
	}

	groups, err := s.eng.ListGroups()
	if err != nil {
		return err
	}
	nostrIDs := make([]string, 0, len(groups))
	for _, g := range groups {
		nostrIDs = append(nostrIDs, g.NostrGroupID)
	}
	if _, err := s.subs.Rewrite(ctx, nostrIDs); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancelLoop = cancel
	s.state = Connected
	s.mu.Unlock()

	go s.runLoop(loopCtx)

	s.bus.publish(Update{Kind: ConnectionChanged, Connection: Connected})
	return nil
}

// Disconnect is idempotent: calling it while already disconnected does
// nothing.
func (s *Service) Disconnect() error {
	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		return nil
	}
	if s.cancelLoop != nil {
		s.cancelLoop()
		s.cancelLoop = nil
	}
	s.state = Disconnected
	s.mu.Unlock()

	err := s.rel.Disconnect()
	s.bus.publish(Update{Kind: ConnectionChanged, Connection: Disconnected})
	return err
}

// runLoop drains whatever subscription is currently active, reconnecting
// to a fresh one whenever Rewrite closes the old one out from under it
// (joining/leaving a group).
func (s *Service) runLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sub := s.subs.Current()
		if sub == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		for ev := range sub.Events() {
			outcome, err := s.proc.HandleEvent(ev)
			if err != nil {
				logging.Errorf("service: failed to process event %s: %v", ev.ID, err)
				continue
			}
			s.dispatchOutcome(outcome)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (s *Service) dispatchOutcome(o processor.Outcome) {
	switch o.Kind {
	case processor.Decrypted:
		s.bus.publish(Update{Kind: GroupHasNewMessage, GroupID: o.Message.GroupID, Message: o.Message})
	case processor.EvolutionApplied:
		s.bus.publish(Update{Kind: GroupEvolved, GroupID: o.Group.MLSGroupID, Group: o.Group})
	case processor.InviteReceived:
		s.bus.publish(Update{Kind: InviteReceived, Invite: o.Invite})
	}
}

// SubscribeUpdates returns a consumer stream of Update values. Slow
// consumers have their oldest buffered update dropped rather than
// blocking the processor loop.
func (s *Service) SubscribeUpdates() <-chan Update {
	return s.bus.subscribe()
}

// PublishKeyPackages generates and publishes a fresh kind-443 KeyPackage
// event advertising this identity's enrollment credential.
func (s *Service) PublishKeyPackages(ctx context.Context) error {
	kp := mls.KeyPackage{
		Member:      s.id.PublicIdentifier(),
		SigningKey:  mustDecodeHex(s.id.PublicIdentifier()),
		ProtocolVer: "1.0",
		Ciphersuite: "MLS_128_DHKEMX25519_AES128GCM_SHA256_Ed25519",
	}
	raw, err := mls.MarshalKeyPackage(kp)
	if err != nil {
		return err
	}

	ev := nostr.Event{
		PubKey:    s.id.PublicIdentifier(),
		CreatedAt: nostr.Now(),
		Kind:      processor.KindKeyPackage,
		Tags: nostr.Tags{
			{"mls_protocol_version", kp.ProtocolVer},
			{"mls_ciphersuite", kp.Ciphersuite},
			{"encoding", "hex"},
		},
		Content: hex.EncodeToString(raw),
	}
	if err := ev.Sign(s.id.PrivateKeyHex()); err != nil {
		return errs.Wrap(errs.CryptoFailure, "sign key package event", err)
	}

	if err := s.rel.Publish(ctx, ev); err != nil {
		return err
	}

	return s.eng.PutKeyPackageRecord(store.KeyPackageRecord{
		EventID:     ev.ID,
		Member:      s.id.PublicIdentifier(),
		Public:      raw,
		HasPrivate:  true,
		PublishedAt: time.Now(),
	})
}

// RefreshKeyPackages republishes a fresh key package, superseding any
// previously published one (the relay keeps only the latest).
func (s *Service) RefreshKeyPackages(ctx context.Context) error {
	return s.PublishKeyPackages(ctx)
}

func mustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// AddContact records a known peer.
func (s *Service) AddContact(publicIdentifier, displayName, verifiedHandle string) error {
	return s.back.PutContact(store.Contact{
		PublicIdentifier: publicIdentifier,
		DisplayName:      displayName,
		VerifiedHandle:   verifiedHandle,
	})
}

func (s *Service) ListContacts() ([]store.Contact, error) {
	return s.back.ListContacts()
}

// CreateGroup creates a new group and gift-wraps a Welcome to each
// invited member. Per spec.md §9's explicit stale-key-package design
// note, this preflights every invited member against observed key
// package records and returns errs.MissingKeyPackage{member} for anyone
// with none on file, rather than silently creating an undecryptable
// invite.
func (s *Service) CreateGroup(ctx context.Context, name, description string, members []string, relays []string) (store.Group, error) {
	if err := s.preflightKeyPackages(members); err != nil {
		return store.Group{}, err
	}

	g, welcomes, err := s.eng.CreateGroup(name, description, members, nil, relays)
	if err != nil {
		return store.Group{}, err
	}

	if _, err := s.subs.AddGroup(ctx, g.NostrGroupID); err != nil {
		return store.Group{}, err
	}

	for member, w := range welcomes {
		if err := s.sendWelcome(ctx, member, w); err != nil {
			logging.Errorf("service: failed to deliver welcome to %s: %v", member, err)
		}
	}

	return g, nil
}

func (s *Service) preflightKeyPackages(members []string) error {
	records, err := s.eng.ListKeyPackageRecords()
	if err != nil {
		return err
	}
	have := map[string]bool{}
	for _, r := range records {
		have[r.Member] = true
	}
	for _, m := range members {
		if !have[m] {
			return errs.MissingKeyPackageFor(m)
		}
	}
	return nil
}

func (s *Service) sendWelcome(ctx context.Context, member string, w mls.Welcome) error {
	recipientPub, err := identity.DeserializePublicKey(member)
	if err != nil {
		return err
	}

	ephemeral, err := identity.Generate()
	if err != nil {
		return err
	}

	envelope := mls.WelcomeEnvelope{Inviter: s.id.PublicIdentifier(), Welcome: w}
	sealed, err := mls.SealGiftWrap(ephemeral, recipientPub, envelope)
	if err != nil {
		return err
	}

	ev := nostr.Event{
		PubKey:    ephemeral.PublicIdentifier(),
		CreatedAt: nostr.Now(),
		Kind:      processor.KindGiftWrap,
		Tags:      nostr.Tags{{"p", member}},
		Content:   hex.EncodeToString(sealed),
	}
	if err := ev.Sign(ephemeral.PrivateKeyHex()); err != nil {
		return errs.Wrap(errs.CryptoFailure, "sign gift wrap event", err)
	}

	return s.rel.Publish(ctx, ev)
}

func (s *Service) ListPendingInvites() ([]store.PendingInvite, error) {
	return s.eng.ListPendingWelcomes()
}

// AcceptInvite joins the group named by a previously received welcome.
func (s *Service) AcceptInvite(ctx context.Context, welcomeEventID string) (store.Group, error) {
	w, ok := s.proc.WelcomeFor(welcomeEventID)
	if !ok {
		return store.Group{}, errs.New(errs.NotFound, "no welcome body retained for this invite")
	}

	g, err := s.eng.AcceptWelcome(welcomeEventID, w)
	if err != nil {
		return store.Group{}, err
	}

	if _, err := s.subs.AddGroup(ctx, g.NostrGroupID); err != nil {
		return store.Group{}, err
	}

	return g, nil
}

// RejectInvite discards a pending invite without joining.
func (s *Service) RejectInvite(welcomeEventID string) error {
	return s.eng.RejectWelcome(welcomeEventID)
}

func (s *Service) ListGroups() ([]store.Group, error) {
	return s.eng.ListGroups()
}

func (s *Service) GetGroup(mlsGroupID string) (store.Group, error) {
	return s.eng.GetGroup(mlsGroupID)
}

func (s *Service) ListMessages(groupID string) ([]store.Message, error) {
	return s.eng.ListMessages(groupID)
}

// SendMessage seals plaintext under the group's current epoch, self-
// processes it so it appears immediately in ListMessages, marks its
// event id processed so the eventual relay echo is a no-op, then
// publishes it.
func (s *Service) SendMessage(ctx context.Context, mlsGroupID, plaintext string) (store.Message, error) {
	g, err := s.eng.GetGroup(mlsGroupID)
	if err != nil {
		return store.Message{}, err
	}

	ct, err := s.eng.CreateMessage(mlsGroupID, plaintext)
	if err != nil {
		return store.Message{}, err
	}
	raw, err := mls.MarshalCiphertext(ct)
	if err != nil {
		return store.Message{}, err
	}

	ev := nostr.Event{
		PubKey:    s.id.PublicIdentifier(),
		CreatedAt: nostr.Now(),
		Kind:      processor.KindGroupMessage,
		Tags:      nostr.Tags{{"h", g.NostrGroupID}},
		Content:   hex.EncodeToString(raw),
	}
	if err := ev.Sign(s.id.PrivateKeyHex()); err != nil {
		return store.Message{}, errs.Wrap(errs.CryptoFailure, "sign group message event", err)
	}

	msg, err := s.eng.ProcessMessage(ev.ID, ev.CreatedAt.Time(), ct)
	if err != nil {
		return store.Message{}, err
	}
	s.proc.MarkProcessed(ev.ID)

	if err := s.rel.Publish(ctx, ev); err != nil {
		return store.Message{}, err
	}

	s.bus.publish(Update{Kind: GroupHasNewMessage, GroupID: mlsGroupID, Message: msg})

	return msg, nil
}

// Close releases the storage backend handle. Call after Disconnect.
func (s *Service) Close() error {
	return s.back.Close()
}
