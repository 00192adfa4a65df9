package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"golang.org/x/crypto/ssh"
)

var (
	ErrInvalidKey     = errors.New("invalid key")
	ErrUnsupportedKey = errors.New("unsupported key type")
)

// GenerateIdentity generates a new Ed25519 libp2p identity
func GenerateIdentity() (libp2pcrypto.PrivKey, error) {
	priv, _, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return priv, nil
}

// SaveIdentity writes priv to path in libp2p protobuf form
func SaveIdentity(path string, priv libp2pcrypto.PrivKey) error {
	data, err := libp2pcrypto.MarshalPrivateKey(priv)
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadOrCreateIdentity loads the identity at path, generating and saving
// a new one when the file does not exist.
func LoadOrCreateIdentity(path string) (libp2pcrypto.PrivKey, error) {
	priv, err := LoadIdentity(path)
	if err == nil {
		return priv, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	priv, err = GenerateIdentity()
	if err != nil {
		return nil, err
	}
	if err := SaveIdentity(path, priv); err != nil {
		return nil, err
	}
	return priv, nil
}

// LoadIdentity reads a key file. Both libp2p protobuf keys and OpenSSH
// Ed25519 private keys are accepted.
func LoadIdentity(path string) (libp2pcrypto.PrivKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseIdentity(data)
}

// ParseIdentity decodes key material from memory
func ParseIdentity(data []byte) (libp2pcrypto.PrivKey, error) {
	if bytes.Contains(data, []byte("-----BEGIN")) {
		return ImportOpenSSHKey(data)
	}

	priv, err := libp2pcrypto.UnmarshalPrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return priv, nil
}

// ImportOpenSSHKey converts a PEM encoded OpenSSH Ed25519 private key into
// a libp2p identity.
func ImportOpenSSHKey(pemData []byte) (libp2pcrypto.PrivKey, error) {
	raw, err := ssh.ParseRawPrivateKey(pemData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	var key ed25519.PrivateKey
	switch k := raw.(type) {
	case *ed25519.PrivateKey:
		key = *k
	case ed25519.PrivateKey:
		key = k
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, raw)
	}

	priv, err := libp2pcrypto.UnmarshalEd25519PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return priv, nil
}

// PeerIDFromKeyFile returns the peer ID of the key stored at path
func PeerIDFromKeyFile(path string) (peer.ID, error) {
	priv, err := LoadIdentity(path)
	if err != nil {
		return "", err
	}
	return peer.IDFromPrivateKey(priv)
}
