package mls

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/HORNET-Storage/hornet-messaging/lib/errs"
)

// KeyPackage is an MLS enrollment credential published as the content of
// a kind-443 event (MIP-00).
type KeyPackage struct {
	Member      string // public identifier of the owner
	InitKey     []byte // X25519-style init public key
	SigningKey  []byte // public signing key, same as Member's secp256k1 pubkey bytes
	ProtocolVer string
	Ciphersuite string
}

// Welcome is delivered gift-wrapped (kind 1059) to a single invitee and
// carries everything needed to join a group at a given epoch (MIP-02).
type Welcome struct {
	GroupID      string
	GroupName    string
	GroupDesc    string
	Epoch        uint64
	Members      []string
	Admins       []string
	Relays       []string
	EpochSecret  []byte
	OwnInitKeyID string
}

// Commit evolves a group: membership change plus the resulting epoch's
// secret, delivered as a kind-446 GroupEvolution event.
type Commit struct {
	GroupID     string
	FromEpoch   uint64
	ToEpoch     uint64
	AddMembers  []string
	RemMembers  []string
	EpochSecret []byte
	Issuer      string
}

// WelcomeEnvelope is the plaintext payload sealed inside a gift wrap. It
// carries the inviter's public identifier alongside the Welcome itself,
// since the gift wrap's own outer event is authored by a disposable key
// and does not reveal who sent it (NIP-59).
type WelcomeEnvelope struct {
	Inviter string
	Welcome Welcome
}

// Ciphertext is an application message sealed under a group's current
// epoch key, delivered as a kind-445 GroupMessage event.
type Ciphertext struct {
	GroupID string
	Epoch   uint64
	Author  string
	Sealed  []byte // nonce || AES-GCM(plaintext)
}

func marshalWire(v interface{}) ([]byte, error) {
	b, err := cbor.Marshal(v)
	if err != nil {
		return nil, errs.Wrap(errs.ProtocolFailure, "cbor marshal", err)
	}
	return b, nil
}

func unmarshalWire(b []byte, v interface{}) error {
	if err := cbor.Unmarshal(b, v); err != nil {
		return errs.Wrap(errs.ProtocolFailure, "cbor unmarshal", err)
	}
	return nil
}

// MarshalKeyPackage/UnmarshalKeyPackage etc. are the content-field codec
// the event processor and send-path use; the wire types above never
// appear directly in a Nostr event, only their CBOR encoding does,
// mirroring how the teacher's kind443/444/445 handlers treat content as
// an opaque blob they never decode themselves.
func MarshalKeyPackage(kp KeyPackage) ([]byte, error) { return marshalWire(kp) }
func UnmarshalKeyPackage(b []byte) (KeyPackage, error) {
	var kp KeyPackage
	err := unmarshalWire(b, &kp)
	return kp, err
}

func MarshalWelcome(w Welcome) ([]byte, error) { return marshalWire(w) }
func UnmarshalWelcome(b []byte) (Welcome, error) {
	var w Welcome
	err := unmarshalWire(b, &w)
	return w, err
}

func MarshalWelcomeEnvelope(w WelcomeEnvelope) ([]byte, error) { return marshalWire(w) }
func UnmarshalWelcomeEnvelope(b []byte) (WelcomeEnvelope, error) {
	var w WelcomeEnvelope
	err := unmarshalWire(b, &w)
	return w, err
}

func MarshalCommit(c Commit) ([]byte, error) { return marshalWire(c) }
func UnmarshalCommit(b []byte) (Commit, error) {
	var c Commit
	err := unmarshalWire(b, &c)
	return c, err
}

func MarshalCiphertext(c Ciphertext) ([]byte, error) { return marshalWire(c) }
func UnmarshalCiphertext(b []byte) (Ciphertext, error) {
	var c Ciphertext
	err := unmarshalWire(b, &c)
	return c, err
}
