package cipher

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrNoKeyMaterial is returned when a PEM input holds no usable RSA key.
	ErrNoKeyMaterial = errors.New("opendelivery: no RSA key material found")

	// ErrNotPrivateKey is returned when the private key file holds only public key material.
	ErrNotPrivateKey = errors.New("opendelivery: key file holds no private key")
)

// LoadKeyPair reads key material from a public certificate file and/or a
// private key file. Either path may be empty. With only certPath the pair can
// encrypt; with keyPath it can encrypt and decrypt.
func LoadKeyPair(certPath, keyPath string) (*KeyPair, error) {
	var pub *rsa.PublicKey
	var priv *rsa.PrivateKey

	if certPath != "" {
		data, err := os.ReadFile(certPath)
		if err != nil {
			return nil, fmt.Errorf("read certificate: %w", err)
		}
		kp, err := ParsePEM(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", certPath, err)
		}
		pub = kp.public
	}

	if keyPath != "" {
		data, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		kp, err := ParsePEM(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", keyPath, err)
		}
		if kp.private == nil {
			return nil, fmt.Errorf("parse %s: %w", keyPath, ErrNotPrivateKey)
		}
		priv = kp.private
		if pub == nil {
			pub = kp.public
		}
	}

	return NewKeyPair(pub, priv), nil
}

// ParsePEM extracts RSA key material from PEM data. Recognized blocks are
// CERTIFICATE, PUBLIC KEY, RSA PRIVATE KEY and PRIVATE KEY; others are skipped.
func ParsePEM(data []byte) (*KeyPair, error) {
	var pub *rsa.PublicKey
	var priv *rsa.PrivateKey

	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}

		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parse certificate: %w", err)
			}
			key, ok := cert.PublicKey.(*rsa.PublicKey)
			if !ok {
				return nil, fmt.Errorf("certificate key is %T, not RSA", cert.PublicKey)
			}
			pub = key
		case "PUBLIC KEY":
			parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parse public key: %w", err)
			}
			key, ok := parsed.(*rsa.PublicKey)
			if !ok {
				return nil, fmt.Errorf("public key is %T, not RSA", parsed)
			}
			pub = key
		case "RSA PRIVATE KEY":
			key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parse private key: %w", err)
			}
			priv = key
		case "PRIVATE KEY":
			parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parse private key: %w", err)
			}
			key, ok := parsed.(*rsa.PrivateKey)
			if !ok {
				return nil, fmt.Errorf("private key is %T, not RSA", parsed)
			}
			priv = key
		}
	}

	if pub == nil && priv == nil {
		return nil, ErrNoKeyMaterial
	}
	return NewKeyPair(pub, priv), nil
}
