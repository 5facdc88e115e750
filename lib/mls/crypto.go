package mls

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/HORNET-Storage/hornet-messaging/lib/errs"
)

const (
	aesKeySize = 32
	nonceSize  = 12
)

// deriveEpochKey derives a per-purpose symmetric key from an epoch
// secret via HKDF-SHA256, the same construction germtb-mlsgit's
// internal/crypto/symmetric.go uses to derive per-file keys from a
// repo-wide epoch secret, generalized here from "file path" to
// "purpose label" since this engine seals group messages, not files.
func deriveEpochKey(epochSecret []byte, purpose string, epoch uint64) ([]byte, error) {
	info := append([]byte(purpose), encodeUint64(epoch)...)
	h := hkdf.New(sha256.New, epochSecret, nil, info)
	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, errs.Wrap(errs.CryptoFailure, "derive epoch key", err)
	}
	return key, nil
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

// sealAESGCM seals plaintext under key, prefixing the random nonce to
// the ciphertext.
func sealAESGCM(key, plaintext, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoFailure, "new cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoFailure, "new gcm", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errs.Wrap(errs.CryptoFailure, "generate nonce", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, aad)
	return append(nonce, sealed...), nil
}

// openAESGCM reverses sealAESGCM.
func openAESGCM(key, sealed, aad []byte) ([]byte, error) {
	if len(sealed) < nonceSize {
		return nil, errs.New(errs.CryptoFailure, "ciphertext shorter than nonce")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoFailure, "new cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoFailure, "new gcm", err)
	}
	nonce, ct := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoFailure, "open ciphertext", err)
	}
	return plaintext, nil
}
