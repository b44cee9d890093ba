package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type SessionID [16]byte

const (
	refreshSecretSize = 32
	digitAlphabet     = "0123456789"
	opaqueAlphabet    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	return base64.RawURLEncoding.EncodeToString(s[:])
}

func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}

// NewRefreshToken returns an opaque refresh token: 32 random bytes,
// base64url without padding.
func NewRefreshToken() (string, error) {
	var secret [refreshSecretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(secret[:]), nil
}

// HashToken returns the hex SHA-256 digest stored in place of a secret.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// EqualHashes compares two hex digests in constant time.
func EqualHashes(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// NewNumericCode returns a uniformly random decimal code of the given length.
func NewNumericCode(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid code digits")
	}
	code, err := gonanoid.Generate(digitAlphabet, digits)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return code, nil
}

// NewOpaqueCode returns a random alphanumeric value for links and OAuth state.
func NewOpaqueCode(length int) (string, error) {
	if length < 16 {
		return "", errors.New("opaque code too short")
	}
	code, err := gonanoid.Generate(opaqueAlphabet, length)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return code, nil
}
