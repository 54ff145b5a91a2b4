// Package cipher encrypts and decrypts individual attribute values.
//
// Values are encrypted to a JWE compact serialization (RSA-OAEP-256 key
// wrapping, A256GCM content encryption). The result is plain ASCII and can be
// stored as a string-typed attribute value. The JWE payload is the value
// behind a one-byte format prefix, so empty values encrypt to a non-empty
// payload.
package cipher

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v4"
)

var (
	// ErrNoPublicKey is returned when encrypting without a public key.
	ErrNoPublicKey = errors.New("opendelivery: no public key configured")

	// ErrNoPrivateKey is returned when decrypting without a private key.
	ErrNoPrivateKey = errors.New("opendelivery: no private key configured")

	// ErrDecryptionFailed is returned when a value is not valid ciphertext for the private key.
	ErrDecryptionFailed = errors.New("opendelivery: decryption failed")
)

const (
	keyAlgorithm      = jose.RSA_OAEP_256
	contentEncryption = jose.A256GCM

	// payloadPrefix marks the payload format.
	payloadPrefix = "1"
)

// KeyPair holds the key material of one store. Either half may be absent.
// A nil *KeyPair can neither encrypt nor decrypt.
type KeyPair struct {
	public  *rsa.PublicKey
	private *rsa.PrivateKey
}

// NewKeyPair creates a KeyPair. When pub is nil and priv is not, the public
// half of priv is used for encryption.
func NewKeyPair(pub *rsa.PublicKey, priv *rsa.PrivateKey) *KeyPair {
	if pub == nil && priv != nil {
		pub = &priv.PublicKey
	}
	return &KeyPair{public: pub, private: priv}
}

// CanEncrypt reports whether a public key is configured.
func (k *KeyPair) CanEncrypt() bool {
	return k != nil && k.public != nil
}

// CanDecrypt reports whether a private key is configured.
func (k *KeyPair) CanDecrypt() bool {
	return k != nil && k.private != nil
}

// Encrypt encrypts plaintext under the public key.
func (k *KeyPair) Encrypt(plaintext string) (string, error) {
	if !k.CanEncrypt() {
		return "", ErrNoPublicKey
	}

	enc, err := jose.NewEncrypter(contentEncryption, jose.Recipient{
		Algorithm: keyAlgorithm,
		Key:       k.public,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("create encrypter: %w", err)
	}

	obj, err := enc.Encrypt([]byte(payloadPrefix + plaintext))
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return obj.CompactSerialize()
}

// Decrypt decrypts a value produced by Encrypt with the matching public key.
func (k *KeyPair) Decrypt(ciphertext string) (string, error) {
	if !k.CanDecrypt() {
		return "", ErrNoPrivateKey
	}

	obj, err := jose.ParseEncryptedCompact(ciphertext,
		[]jose.KeyAlgorithm{keyAlgorithm},
		[]jose.ContentEncryption{contentEncryption},
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}

	payload, err := obj.Decrypt(k.private)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	plaintext, ok := strings.CutPrefix(string(payload), payloadPrefix)
	if !ok {
		return "", fmt.Errorf("%w: unknown payload format", ErrDecryptionFailed)
	}
	return plaintext, nil
}
