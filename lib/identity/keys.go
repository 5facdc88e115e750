// Package identity implements the service's signing identity: a
// secp256k1 keypair used NIP-01-style (schnorr signatures over an
// event's hash), serialized in the npub1/nsec1 bech32 convention.
// Key encoding/decoding is adapted from the teacher's lib/signing;
// event signing follows the same hash-then-sign shape nbd-wtf/go-nostr
// uses for its own Event.Sign.
package identity

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/HORNET-Storage/hornet-messaging/lib/errs"
)

const PublicKeyPrefix = "npub1"
const PrivateKeyPrefix = "nsec1"

// DecodeKey accepts either hex or bech32 (npub1.../nsec1...) and returns
// the raw key bytes.
func DecodeKey(serializedKey string) ([]byte, error) {
	trimmed := TrimPrivateKey(TrimPublicKey(serializedKey))

	raw, err := hex.DecodeString(trimmed)
	if err == nil {
		return raw, nil
	}

	_, bits, berr := bech32.Decode(serializedKey)
	if berr != nil {
		return nil, fmt.Errorf("identity: failed to decode key from hex or bech32: %v", berr)
	}

	raw, err = bech32.ConvertBits(bits, 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("identity: failed to decode key from hex or bech32: %v", err)
	}

	return raw, nil
}

func TrimPrivateKey(privateKey string) string {
	return strings.TrimPrefix(privateKey, PrivateKeyPrefix)
}

func TrimPublicKey(publicKey string) string {
	return strings.TrimPrefix(publicKey, PublicKeyPrefix)
}

func DeserializePrivateKey(serializedKey string) (*secp256k1.PrivateKey, *secp256k1.PublicKey, error) {
	raw, err := DecodeKey(serializedKey)
	if err != nil {
		return nil, nil, errs.Wrap(errs.InvalidKey, "deserialize private key", err)
	}
	priv, pub := btcec.PrivKeyFromBytes(raw)
	return priv, pub, nil
}

func DeserializePublicKey(serializedKey string) (*secp256k1.PublicKey, error) {
	raw, err := DecodeKey(serializedKey)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidKey, "deserialize public key", err)
	}
	pub, err := schnorr.ParsePubKey(raw)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidKey, "parse schnorr public key", err)
	}
	return pub, nil
}

func GeneratePrivateKey() (*secp256k1.PrivateKey, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, errs.Wrap(errs.CryptoFailure, "generate private key", err)
	}
	return priv, nil
}

func SerializePrivateKeyBech32(privateKey *secp256k1.PrivateKey) (string, error) {
	bits, err := bech32.ConvertBits(privateKey.Serialize(), 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("identity: %v", err)
	}
	encoded, err := bech32.Encode(PrivateKeyPrefix, bits)
	if err != nil {
		return "", fmt.Errorf("identity: %v", err)
	}
	return encoded, nil
}

func SerializePublicKeyBech32(publicKey *secp256k1.PublicKey) (string, error) {
	bits, err := bech32.ConvertBits(schnorr.SerializePubKey(publicKey), 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("identity: %v", err)
	}
	encoded, err := bech32.Encode(PublicKeyPrefix, bits)
	if err != nil {
		return "", fmt.Errorf("identity: %v", err)
	}
	return encoded, nil
}

func SerializePrivateKeyHex(privateKey *secp256k1.PrivateKey) string {
	return hex.EncodeToString(privateKey.Serialize())
}

func SerializePublicKeyHex(publicKey *secp256k1.PublicKey) string {
	return hex.EncodeToString(schnorr.SerializePubKey(publicKey))
}

func SignData(data []byte, privateKey *btcec.PrivateKey) (*schnorr.Signature, error) {
	sig, err := schnorr.Sign(privateKey, data)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoFailure, "schnorr sign", err)
	}
	return sig, nil
}

func VerifySignature(signature *schnorr.Signature, data []byte, publicKey *secp256k1.PublicKey) error {
	if !signature.Verify(data, publicKey) {
		return errs.New(errs.CryptoFailure, "signature verification failed")
	}
	return nil
}
