package internal

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
)

const (
	MinTokenBytes = 16
	MaxTokenBytes = 256
)

var errTokenSize = errors.New("invalid random token size")

// NewToken returns size bytes from crypto/rand encoded as lowercase hex.
func NewToken(size int) (string, error) {
	if size < MinTokenBytes || size > MaxTokenBytes {
		return "", errTokenSize
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// NewTokenPair generates the CSRF token and refresh opaque value issued
// together on login.
func NewTokenPair(size int) (opaque string, csrf string, err error) {
	opaque, err = NewToken(size)
	if err != nil {
		return "", "", err
	}
	csrf, err = NewToken(size)
	if err != nil {
		return "", "", err
	}
	return opaque, csrf, nil
}
