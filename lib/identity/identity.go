package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"io"
	"os"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/hkdf"

	"github.com/HORNET-Storage/hornet-messaging/lib/errs"
)

// PassphraseEnv is the environment variable consulted when persisting or
// loading an identity secret at rest, mirroring germtb-mlsgit's
// MLSGIT_PASSPHRASE convention.
const PassphraseEnv = "HORNET_MESSAGING_PASSPHRASE"

const pemBlockType = "HORNET MESSAGING IDENTITY"

// Identity is the service's one signing identity: a secp256k1 secret
// scalar plus its derived 32-byte x-only public identifier. It never
// mutates once created and lives for the process, per spec.
type Identity struct {
	secret *secp256k1.PrivateKey
	public *secp256k1.PublicKey
}

// New builds an Identity from an explicit 32-byte secret scalar.
func New(secret []byte) (*Identity, error) {
	if len(secret) != 32 {
		return nil, errs.New(errs.InvalidKey, fmt.Sprintf("secret must be 32 bytes, got %d", len(secret)))
	}
	priv, pub := secp256k1FromBytes(secret)
	return &Identity{secret: priv, public: pub}, nil
}

// Generate creates a fresh random Identity.
func Generate() (*Identity, error) {
	priv, err := GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &Identity{secret: priv, public: priv.PubKey()}, nil
}

// PublicIdentifier returns the 32-byte x-only public key, hex encoded —
// the value that appears as an event's pubkey field.
func (id *Identity) PublicIdentifier() string {
	return SerializePublicKeyHex(id.public)
}

// PublicKey exposes the underlying curve point for verification callers.
func (id *Identity) PublicKey() *secp256k1.PublicKey {
	return id.public
}

// RawSecret exposes the private scalar for callers that need to perform
// ECDH (the gift-wrap seal/open path), not general-purpose use.
func (id *Identity) RawSecret() *secp256k1.PrivateKey {
	return id.secret
}

// PrivateKeyHex returns the hex-encoded secret, the form
// nbd-wtf/go-nostr's Event.Sign expects.
func (id *Identity) PrivateKeyHex() string {
	return hex.EncodeToString(id.secret.Serialize())
}

// Npub returns the bech32 npub1 encoding of the public identifier.
func (id *Identity) Npub() (string, error) {
	return SerializePublicKeyBech32(id.public)
}

// Sign produces a schnorr signature over the SHA-256 hash of data,
// matching the NIP-01 "sign the serialized event id" convention.
func (id *Identity) Sign(data []byte) (*schnorr.Signature, error) {
	hashed := sha256.Sum256(data)
	return SignData(hashed[:], id.secret)
}

// SignHash signs a pre-hashed 32-byte digest directly (used when signing
// an already-computed Nostr event id).
func (id *Identity) SignHash(digest [32]byte) (*schnorr.Signature, error) {
	return SignData(digest[:], id.secret)
}

func secp256k1FromBytes(secret []byte) (*secp256k1.PrivateKey, *secp256k1.PublicKey) {
	priv := secp256k1.PrivKeyFromBytes(secret)
	return priv, priv.PubKey()
}

// SaveToFile persists the identity secret at rest as a PEM block. When
// passphrase is empty it falls back to the PassphraseEnv variable; if
// neither is set the secret is stored in the clear (suitable only for
// throwaway dev identities, never the default policy).
func (id *Identity) SaveToFile(path, passphrase string) error {
	if passphrase == "" {
		passphrase = os.Getenv(PassphraseEnv)
	}

	secret := id.secret.Serialize()

	var block *pem.Block
	if passphrase == "" {
		block = &pem.Block{Type: pemBlockType, Bytes: secret}
	} else {
		sealed, salt, nonce, err := sealSecret(secret, passphrase)
		if err != nil {
			return errs.Wrap(errs.CryptoFailure, "seal identity secret", err)
		}
		block = &pem.Block{
			Type: pemBlockType + " ENCRYPTED",
			Headers: map[string]string{
				"salt":  hex.EncodeToString(salt),
				"nonce": hex.EncodeToString(nonce),
			},
			Bytes: sealed,
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return errs.Wrap(errs.StorageBackend, "open identity file", err)
	}
	defer f.Close()

	return pem.Encode(f, block)
}

// LoadFromFile reverses SaveToFile.
func LoadFromFile(path, passphrase string) (*Identity, error) {
	if passphrase == "" {
		passphrase = os.Getenv(PassphraseEnv)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.StorageBackend, "read identity file", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errs.New(errs.InvalidKey, "no PEM block found in identity file")
	}

	var secret []byte
	switch block.Type {
	case pemBlockType:
		secret = block.Bytes
	case pemBlockType + " ENCRYPTED":
		salt, err := hex.DecodeString(block.Headers["salt"])
		if err != nil {
			return nil, errs.Wrap(errs.InvalidKey, "decode salt header", err)
		}
		nonce, err := hex.DecodeString(block.Headers["nonce"])
		if err != nil {
			return nil, errs.Wrap(errs.InvalidKey, "decode nonce header", err)
		}
		if passphrase == "" {
			return nil, errs.New(errs.InvalidKey, "identity file is encrypted but no passphrase was supplied")
		}
		secret, err = openSecret(block.Bytes, salt, nonce, passphrase)
		if err != nil {
			return nil, errs.Wrap(errs.CryptoFailure, "open identity secret", err)
		}
	default:
		return nil, errs.New(errs.InvalidKey, fmt.Sprintf("unrecognized PEM block type %q", block.Type))
	}

	return New(secret)
}

// sealSecret/openSecret implement the same HKDF-derive-then-AES-GCM-seal
// shape the MLS engine uses for epoch secrets, rather than a standard
// PKCS8 key format: secp256k1 is not one of the curve types the Go
// PKCS8 ecosystem (RSA/ECDSA/Ed25519) can represent natively.
func sealSecret(secret []byte, passphrase string) (sealed, salt, nonce []byte, err error) {
	salt = make([]byte, 16)
	if _, err = io.ReadFull(rand.Reader, salt); err != nil {
		return nil, nil, nil, err
	}

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, nil, nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, nil, err
	}

	nonce = make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, nil, err
	}

	sealed = gcm.Seal(nil, nonce, secret, nil)
	return sealed, salt, nonce, nil
}

func openSecret(sealed, salt, nonce []byte, passphrase string) ([]byte, error) {
	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return gcm.Open(nil, nonce, sealed, nil)
}

func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, []byte(passphrase), salt, []byte("hornet-messaging/identity-at-rest"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, err
	}
	return key, nil
}
