package mls

import (
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/HORNET-Storage/hornet-messaging/lib/errs"
	"github.com/HORNET-Storage/hornet-messaging/lib/identity"
)

// SealGiftWrap seals a WelcomeEnvelope for a single recipient using an
// ECDH shared secret between the sender's identity and the recipient's
// public key, the same secp256k1.GenerateSharedSecret construction
// nbd-wtf/go-nostr's own nip04 package uses. This is a deliberately
// reduced stand-in for full NIP-44/NIP-59 (which additionally wraps the
// payload in an inner "rumor" event and an unsigned "seal"); the
// retrieval pack carries no NIP-44 v2 conversation-key implementation to
// ground that extra layer on, so this package seals the envelope
// directly and relies on the outer kind-1059 event's own ephemeral
// sender key for unlinkability.
func SealGiftWrap(sender *identity.Identity, recipient *secp256k1.PublicKey, envelope WelcomeEnvelope) ([]byte, error) {
	payload, err := MarshalWelcomeEnvelope(envelope)
	if err != nil {
		return nil, err
	}

	key := sharedKey(sender, recipient)

	sealed, err := sealAESGCM(key, payload, nil)
	if err != nil {
		return nil, err
	}
	return sealed, nil
}

// OpenGiftWrap reverses SealGiftWrap using the recipient's own identity
// and the sender's public key.
func OpenGiftWrap(recipientIdentity *identity.Identity, sender *secp256k1.PublicKey, sealed []byte) (WelcomeEnvelope, error) {
	key := sharedKeyFromIdentity(recipientIdentity, sender)

	payload, err := openAESGCM(key, sealed, nil)
	if err != nil {
		return WelcomeEnvelope{}, err
	}

	return UnmarshalWelcomeEnvelope(payload)
}

func sharedKey(id *identity.Identity, peer *secp256k1.PublicKey) []byte {
	return sharedKeyFromIdentity(id, peer)
}

func sharedKeyFromIdentity(id *identity.Identity, peer *secp256k1.PublicKey) []byte {
	point := secp256k1.GenerateSharedSecret(identitySecret(id), peer)
	sum := sha256.Sum256(point)
	return sum[:]
}

// identitySecret is a narrow accessor the giftwrap helper needs to reach
// the raw private scalar; Identity otherwise keeps it unexported.
func identitySecret(id *identity.Identity) *secp256k1.PrivateKey {
	return id.RawSecret()
}
