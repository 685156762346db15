package channels

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"card-inventory/feature/channels/provider"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var errDecrypt = errors.New("failed to decrypt credentials")

// Sealer encrypts integration credentials at rest with NaCl secretbox.
type Sealer struct {
	key [32]byte
}

// NewSealer creates a sealer from a 32 byte key encoded as hex or base64.
func NewSealer(encoded string) (*Sealer, error) {
	raw, err := decodeKey(encoded)
	if err != nil {
		return nil, err
	}
	s := &Sealer{}
	copy(s.key[:], raw)
	return s, nil
}

// RandomSealer creates a sealer with a random key. Sealed data does not survive a restart.
func RandomSealer() (*Sealer, error) {
	s := &Sealer{}
	if _, err := io.ReadFull(rand.Reader, s.key[:]); err != nil {
		return nil, err
	}
	return s, nil
}

func decodeKey(encoded string) ([]byte, error) {
	if raw, err := hex.DecodeString(encoded); err == nil && len(raw) == 32 {
		return raw, nil
	}
	if raw, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(raw) == 32 {
		return raw, nil
	}
	return nil, fmt.Errorf("encryption key must be 32 bytes encoded as hex or base64")
}

// Seal encrypts the credential. The nonce is prepended to the box.
func (s *Sealer) Seal(cred provider.Credential) ([]byte, error) {
	plain, err := json.Marshal(cred)
	if err != nil {
		return nil, err
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &s.key), nil
}

// Open decrypts a sealed credential.
func (s *Sealer) Open(sealed []byte) (provider.Credential, error) {
	var cred provider.Credential
	if len(sealed) < nonceSize+secretbox.Overhead {
		return cred, errDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return cred, errDecrypt
	}
	if err := json.Unmarshal(plain, &cred); err != nil {
		return cred, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return cred, nil
}
