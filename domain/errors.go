package domain

import (
	"errors"

	"github.com/jacentio/opendelivery/cipher"
	"github.com/jacentio/opendelivery/internal/guard"
)

var (
	// ErrBackendUnavailable is returned when the backend call itself fails.
	// The backend's error is wrapped and reachable with errors.As.
	ErrBackendUnavailable = guard.ErrBackendUnavailable

	// ErrConsistencyTimeout is returned when a write reached the backend but
	// could not be confirmed visible in time. The write may still show up later.
	ErrConsistencyTimeout = guard.ErrConsistencyTimeout

	// ErrLoadPartiallyApplied is matched by the *LoadError returned from LoadDomain.
	ErrLoadPartiallyApplied = errors.New("opendelivery: load partially applied")

	// ErrInvalidDocument is returned when a bulk load document cannot be parsed.
	ErrInvalidDocument = errors.New("opendelivery: invalid load document")

	// ErrInvalidName is returned for an empty domain, item, or attribute name.
	ErrInvalidName = errors.New("opendelivery: invalid name")

	// ErrNoPublicKey is returned by SetEncryptedProperty without a public key.
	ErrNoPublicKey = cipher.ErrNoPublicKey

	// ErrNoPrivateKey is returned by GetEncryptedProperty without a private key.
	ErrNoPrivateKey = cipher.ErrNoPrivateKey

	// ErrDecryptionFailed is returned when a stored value is not valid ciphertext
	// for the configured private key, including values that were never encrypted.
	ErrDecryptionFailed = cipher.ErrDecryptionFailed
)
