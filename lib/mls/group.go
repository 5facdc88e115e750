// Package mls adapts germtb-mlsgit's internal/mls group/epoch model
// (originally built for a single-repo-owner use case) into the
// multi-member group/epoch/Welcome/Commit/KeyPackage model this spec
// requires. No importable Go MLS library exists among the retrieved
// examples; this package is the delegated "MLS primitive library"
// stand-in, following the same from-scratch strategy mlsgit itself
// uses, parameterized over store.Backend exactly as required.
package mls

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"sync"
	"time"

	"github.com/HORNET-Storage/hornet-messaging/lib/errs"
	"github.com/HORNET-Storage/hornet-messaging/lib/identity"
	"github.com/HORNET-Storage/hornet-messaging/lib/store"
)

// Engine owns MLS group state for this identity, backed by a
// store.Backend for persistence. Each of CreateGroup, AcceptWelcome,
// CreateMessage, ProcessMessage and ApplyCommit runs under mu, mirroring
// the teacher's mutex-guarded RelayStore; a send's seal (CreateMessage)
// and self-process (ProcessMessage) are two separate acquisitions.
type Engine struct {
	id  *identity.Identity
	st  store.Backend
	mu  sync.Mutex
}

// NewEngine constructs an Engine for the given identity and backend.
func NewEngine(id *identity.Identity, st store.Backend) *Engine {
	return &Engine{id: id, st: st}
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", errs.Wrap(errs.CryptoFailure, "generate random id", err)
	}
	return hex.EncodeToString(b), nil
}

// CreateGroup creates a new group at epoch 0 with the given initial
// members (public identifiers, not including the creator, who is added
// implicitly), and returns the stored Group plus one Welcome per invited
// member.
func (e *Engine) CreateGroup(name, description string, members, admins, relays []string) (store.Group, map[string]Welcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	mlsGroupID, err := randomHex(16)
	if err != nil {
		return store.Group{}, nil, err
	}
	nostrGroupID, err := randomHex(16)
	if err != nil {
		return store.Group{}, nil, err
	}
	epochSecret, err := randomHex(32)
	if err != nil {
		return store.Group{}, nil, err
	}
	secretBytes, err := hex.DecodeString(epochSecret)
	if err != nil {
		return store.Group{}, nil, errs.Wrap(errs.CryptoFailure, "decode epoch secret", err)
	}

	allMembers := append([]string{e.id.PublicIdentifier()}, members...)

	g := store.Group{
		MLSGroupID:   mlsGroupID,
		NostrGroupID: nostrGroupID,
		Name:         name,
		Description:  description,
		Admins:       append([]string{e.id.PublicIdentifier()}, admins...),
		Members:      allMembers,
		Relays:       relays,
		Epoch:        0,
		Creator:      e.id.PublicIdentifier(),
		CreatedAt:    time.Now(),
	}

	if err := e.st.PutGroup(g); err != nil {
		return store.Group{}, nil, err
	}
	if err := e.st.PutEpochSecret(mlsGroupID, 0, secretBytes); err != nil {
		return store.Group{}, nil, err
	}

	welcomes := make(map[string]Welcome, len(members))
	for _, m := range members {
		welcomes[m] = Welcome{
			GroupID:     mlsGroupID,
			GroupName:   name,
			GroupDesc:   description,
			Epoch:       0,
			Members:     allMembers,
			Admins:      g.Admins,
			Relays:      relays,
			EpochSecret: secretBytes,
		}
	}

	return g, welcomes, nil
}

// ProcessWelcome turns a decrypted Welcome (already unwrapped from its
// kind-1059 gift wrap by the caller) into a PendingInvite record. It does
// not join the group; that happens on AcceptWelcome.
func (e *Engine) ProcessWelcome(welcomeEventID, inviter string, w Welcome) (store.PendingInvite, error) {
	invite := store.PendingInvite{
		WelcomeEventID: welcomeEventID,
		Inviter:        inviter,
		GroupID:        w.GroupID,
		GroupName:      w.GroupName,
		GroupDesc:      w.GroupDesc,
		ReceivedAt:     time.Now(),
	}
	if err := e.st.PutPendingInvite(invite); err != nil {
		return store.PendingInvite{}, err
	}
	return invite, nil
}

// AcceptWelcome joins the group named by a previously processed
// PendingInvite, using the Welcome's embedded epoch secret and member
// list. Supply the original Welcome value again (the caller carries it
// alongside the PendingInvite, since store.PendingInvite itself does not
// retain the epoch secret).
func (e *Engine) AcceptWelcome(welcomeEventID string, w Welcome) (store.Group, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g := store.Group{
		MLSGroupID:   w.GroupID,
		NostrGroupID: w.GroupID,
		Name:         w.GroupName,
		Description:  w.GroupDesc,
		Admins:       w.Admins,
		Members:      w.Members,
		Relays:       w.Relays,
		Epoch:        w.Epoch,
		Creator:      "",
		CreatedAt:    time.Now(),
	}

	if err := e.st.PutGroup(g); err != nil {
		return store.Group{}, err
	}
	if err := e.st.PutEpochSecret(w.GroupID, w.Epoch, w.EpochSecret); err != nil {
		return store.Group{}, err
	}
	if err := e.st.DeletePendingInvite(welcomeEventID); err != nil {
		return store.Group{}, err
	}

	return g, nil
}

// CreateMessage seals plaintext under the group's current epoch key and
// returns the wire Ciphertext ready to be CBOR-encoded into a kind-445
// event's content field. It does not itself store the message; the
// caller self-processes the resulting event via ProcessMessage once its
// event id is known, per the spec's send-path data flow.
func (e *Engine) CreateMessage(groupID, plaintext string) (Ciphertext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, err := e.st.GetGroup(groupID)
	if err != nil {
		return Ciphertext{}, err
	}

	key, err := e.epochKeyLocked(groupID, g.Epoch)
	if err != nil {
		return Ciphertext{}, err
	}

	sealed, err := sealAESGCM(key, []byte(plaintext), []byte(groupID))
	if err != nil {
		return Ciphertext{}, err
	}

	return Ciphertext{
		GroupID: groupID,
		Epoch:   g.Epoch,
		Author:  e.id.PublicIdentifier(),
		Sealed:  sealed,
	}, nil
}

// ProcessMessage decrypts an inbound (or self-authored) Ciphertext and
// persists the resulting Message, keyed by the Nostr event id. Calling
// it twice for the same event id is the processor's job to prevent via
// the processed-set, not this method's.
func (e *Engine) ProcessMessage(eventID string, relayTime time.Time, c Ciphertext) (store.Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key, err := e.epochKeyLocked(c.GroupID, c.Epoch)
	if err != nil {
		return store.Message{}, err
	}

	plaintext, err := openAESGCM(key, c.Sealed, []byte(c.GroupID))
	if err != nil {
		return store.Message{}, err
	}

	m := store.Message{
		EventID:    eventID,
		GroupID:    c.GroupID,
		Author:     c.Author,
		Content:    string(plaintext),
		RelayTime:  relayTime,
		ReceivedAt: time.Now(),
	}

	if err := e.st.PutMessage(m); err != nil {
		return store.Message{}, err
	}

	return m, nil
}

// ApplyCommit advances a group to a new epoch (membership change), per a
// decoded kind-446 GroupEvolution event.
func (e *Engine) ApplyCommit(c Commit) (store.Group, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, err := e.st.GetGroup(c.GroupID)
	if err != nil {
		return store.Group{}, err
	}
	if c.ToEpoch <= g.Epoch {
		return store.Group{}, errs.New(errs.Conflict, "commit targets an epoch no later than the current one")
	}

	members := applyMembershipDelta(g.Members, c.AddMembers, c.RemMembers)
	g.Members = members
	g.Epoch = c.ToEpoch

	if err := e.st.PutGroup(g); err != nil {
		return store.Group{}, err
	}
	if err := e.st.PutEpochSecret(c.GroupID, c.ToEpoch, c.EpochSecret); err != nil {
		return store.Group{}, err
	}

	return g, nil
}

func applyMembershipDelta(current, add, remove []string) []string {
	removed := map[string]bool{}
	for _, r := range remove {
		removed[r] = true
	}
	out := make([]string, 0, len(current)+len(add))
	for _, m := range current {
		if !removed[m] {
			out = append(out, m)
		}
	}
	for _, a := range add {
		out = append(out, a)
	}
	return out
}

// epochKeyLocked derives the message-sealing key for groupID at epoch.
// Callers must hold e.mu.
func (e *Engine) epochKeyLocked(groupID string, epoch uint64) ([]byte, error) {
	secrets, err := e.st.ListEpochSecrets(groupID)
	if err != nil {
		return nil, err
	}
	secret, ok := secrets[epoch]
	if !ok {
		return nil, errs.New(errs.NotFound, "no retained epoch secret for this group/epoch")
	}
	return deriveEpochKey(secret, "group-message", epoch)
}

func (e *Engine) ListGroups() ([]store.Group, error) {
	return e.st.ListGroups()
}

func (e *Engine) GetGroup(mlsGroupID string) (store.Group, error) {
	return e.st.GetGroup(mlsGroupID)
}

// RejectWelcome discards a pending invite without joining.
func (e *Engine) RejectWelcome(welcomeEventID string) error {
	return e.st.DeletePendingInvite(welcomeEventID)
}

func (e *Engine) ListMessages(groupID string) ([]store.Message, error) {
	return e.st.ListMessages(groupID)
}

func (e *Engine) ListPendingWelcomes() ([]store.PendingInvite, error) {
	return e.st.ListPendingInvites()
}

// PutKeyPackageRecord records a key package (this identity's own, or one
// observed belonging to a peer) for later lookup by Service operations
// such as create_group's stale-key-package preflight.
func (e *Engine) PutKeyPackageRecord(k store.KeyPackageRecord) error {
	return e.st.PutKeyPackageRecord(k)
}

// ListKeyPackageRecords returns every key package record this identity
// has observed or published.
func (e *Engine) ListKeyPackageRecords() ([]store.KeyPackageRecord, error) {
	return e.st.ListKeyPackageRecords()
}
