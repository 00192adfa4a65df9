package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// HashSize is the BLAKE2b-256 digest length
const HashSize = blake2b.Size256

// Sum256 returns the BLAKE2b-256 digest of data
func Sum256(data []byte) [HashSize]byte {
	return blake2b.Sum256(data)
}

// Hash generates a BLAKE2b-256 hash
func Hash(data []byte) ([]byte, error) {
	hash, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}

	hash.Write(data)
	return hash.Sum(nil), nil
}

// HashString generates a BLAKE2b hash and returns hex string
func HashString(data []byte) (string, error) {
	hash, err := Hash(data)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(hash), nil
}

// GenerateNonce generates a random nonce
func GenerateNonce(size int) ([]byte, error) {
	nonce := make([]byte, size)
	_, err := rand.Read(nonce)
	if err != nil {
		return nil, err
	}
	return nonce, nil
}

// VerifyHash reports whether expectedHash is the digest of data.
// The comparison is constant time.
func VerifyHash(data []byte, expectedHash []byte) bool {
	actual := Sum256(data)
	return subtle.ConstantTimeCompare(actual[:], expectedHash) == 1
}
