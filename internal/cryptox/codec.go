// Package cryptox implements the field-level encryption codec used for task
// descriptions. Values are encrypted with AES-256-GCM under a single
// process-wide key and stored as a three-part envelope:
//
//	base64(nonce) : base64(tag) : base64(ciphertext)
//
// A fresh random 12-byte nonce is generated for every call to Encrypt, so two
// encryptions of the same plaintext never produce the same envelope.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/ivolkov/taskvault/internal/common"
)

const (
	// KeySize is the required key length (AES-256).
	KeySize = 32

	nonceSize         = 12
	envelopeDelimiter = ":"
)

// Codec encrypts and decrypts individual field values. It is safe for
// concurrent use; the key is read-only after construction.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a Codec from a 32-byte key. Callers are expected to treat
// an error here as fatal at startup.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes long, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Codec{aead: aead}, nil
}

// Encrypt seals plaintext and returns the encoded envelope.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	nonce := common.GenerateRandByteArray(nonceSize)

	// Seal appends the authentication tag to the ciphertext; the envelope
	// stores the two parts separately.
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	tagStart := len(sealed) - c.aead.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	enc := base64.StdEncoding
	parts := []string{
		enc.EncodeToString(nonce),
		enc.EncodeToString(tag),
		enc.EncodeToString(ciphertext),
	}
	return strings.Join(parts, envelopeDelimiter), nil
}

// Decrypt opens an envelope produced by Encrypt and returns the plaintext.
// It returns common.ErrInvalidEnvelope if the envelope does not have three
// base64 parts with a non-empty nonce and tag, and
// common.ErrAuthenticationFailed if the authentication tag does not verify
// (tampered data or wrong key).
func (c *Codec) Decrypt(envelope string) (string, error) {
	// The ciphertext segment may be empty: sealing an empty plaintext
	// produces tag-only output.
	parts := strings.Split(envelope, envelopeDelimiter)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return "", common.ErrInvalidEnvelope
	}

	enc := base64.StdEncoding
	nonce, err := enc.DecodeString(parts[0])
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return "", common.ErrInvalidEnvelope
	}
	tag, err := enc.DecodeString(parts[1])
	if err != nil {
		return "", common.ErrInvalidEnvelope
	}
	ciphertext, err := enc.DecodeString(parts[2])
	if err != nil {
		return "", common.ErrInvalidEnvelope
	}

	plaintext, err := c.aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", common.ErrAuthenticationFailed
	}

	return string(plaintext), nil
}
