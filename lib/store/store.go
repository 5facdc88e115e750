// Package store defines the persistence trait the service facade is
// parameterized over, plus the two conforming implementations named in
// spec.md §4.2: memorystore (ephemeral, badger in-memory) and sqlstore
// (durable, gorm+sqlite). Both implementations satisfy the same Backend
// and ContactStore interfaces so the service never branches on which one
// is in use.
package store

import "time"

// Group is a joined MLS group as the service tracks it locally.
type Group struct {
	MLSGroupID   string // opaque binary MLS group id, hex-encoded
	NostrGroupID string // opaque value exposed in the "h" tag
	Name         string
	Description  string
	Admins       []string // public identifiers
	Members      []string // public identifiers
	Relays       []string
	Epoch        uint64
	Creator      string
	CreatedAt    time.Time
}

// Message is a decrypted group message, immutable once stored.
type Message struct {
	EventID    string // primary key, globally unique Nostr event id
	GroupID    string // MLS group id
	Author     string // public identifier
	Content    string
	RelayTime  time.Time
	ReceivedAt time.Time
}

// PendingInvite is an unprocessed welcome aimed at this identity.
type PendingInvite struct {
	WelcomeEventID string
	Inviter        string
	GroupID        string
	GroupName      string
	GroupDesc      string
	ReceivedAt     time.Time
}

// KeyPackageRecord tracks a key package seen on the relay set, either
// one this identity published or one observed from a peer, and whether
// the private material backing it is held locally (true only for this
// identity's own).
type KeyPackageRecord struct {
	EventID     string
	Member      string // public identifier this key package belongs to
	Public      []byte // serialized MLS key package credential
	HasPrivate  bool
	PublishedAt time.Time
}

// Contact is a known peer. [EXPANSION]: spec.md §3 names Contact in the
// data model but assigns it no storage operations; ContactStore below
// supplements that gap.
type Contact struct {
	PublicIdentifier string
	DisplayName      string
	VerifiedHandle   string
}

// Backend is the storage trait. Two implementations conform: memorystore
// (ephemeral) and sqlstore (durable). Both present identical semantics
// except for survival across process restarts.
type Backend interface {
	PutGroup(g Group) error
	GetGroup(mlsGroupID string) (Group, error)
	ListGroups() ([]Group, error)
	DeleteGroup(mlsGroupID string) error

	PutMessage(m Message) error
	ListMessages(groupID string) ([]Message, error)
	ListAllMessageEventIDs() ([]string, error)

	PutPendingInvite(p PendingInvite) error
	ListPendingInvites() ([]PendingInvite, error)
	DeletePendingInvite(welcomeEventID string) error

	PutKeyPackageRecord(k KeyPackageRecord) error
	ListKeyPackageRecords() ([]KeyPackageRecord, error)

	// PutEpochSecret records the epoch secret for a group/epoch pair, so
	// messages sealed under a past epoch remain decryptable even after
	// the group has advanced, per the spec's retention invariant.
	PutEpochSecret(groupID string, epoch uint64, secret []byte) error
	ListEpochSecrets(groupID string) (map[uint64][]byte, error)

	ContactStore

	Close() error
}

// ContactStore is the facet backing Service.add_contact/list_contacts.
type ContactStore interface {
	PutContact(c Contact) error
	ListContacts() ([]Contact, error)
	DeleteContact(publicIdentifier string) error
}
