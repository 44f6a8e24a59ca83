// Package pwdhash hashes administrator passwords for storage in config files
package pwdhash

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/scrypt"
)

var ErrInvalidHash = errors.New("invalid password hash")

// A hash is 1 byte of version, then the salt, then the scrypt key.
// scrypt(16384,8,1) is 36 ms on a Skylake 6700K
const (
	version1     = 1
	saltSize     = 20
	keySize      = 32
	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	hashLenTotal = 1 + saltSize + keySize
)

func derive(password string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keySize)
}

// HashPassword creates a random salt, and returns the versioned hash
func HashPassword(password string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key, err := derive(password, salt)
	if err != nil {
		return nil, err
	}
	hash := make([]byte, 0, hashLenTotal)
	hash = append(hash, version1)
	hash = append(hash, salt...)
	return append(hash, key...), nil
}

// HashPasswordBase64 returns the base64 encoding of HashPassword
func HashPasswordBase64(password string) (string, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(hash), nil
}

// ParseBase64 decodes and checks a hash produced by HashPasswordBase64
func ParseBase64(hashb64 string) ([]byte, error) {
	raw, err := base64.RawStdEncoding.DecodeString(hashb64)
	if err != nil || len(raw) != hashLenTotal || raw[0] != version1 {
		return nil, ErrInvalidHash
	}
	return raw, nil
}

// VerifyHash returns true if password matches hash
func VerifyHash(password string, hash []byte) bool {
	if len(hash) != hashLenTotal || hash[0] != version1 {
		return false
	}
	key, err := derive(password, hash[1:1+saltSize])
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(key, hash[1+saltSize:]) == 1
}
