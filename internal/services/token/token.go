// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package token derives the opaque check-in credential encoded into a
// participant's QR code.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// RandomLength is the number of random bytes mixed into every token.
const RandomLength = 32

// ErrEntropyUnavailable is returned when the random source cannot be read.
// Issuance must abort; there is no fallback to a weaker source.
var ErrEntropyUnavailable = errors.New("entropy unavailable")

// Generator produces tokens of the form hex(SHA-256(EVENT-{event}-{owner}-{random}{salt})).
type Generator struct {
	random io.Reader
	salt   string
}

// NewGenerator creates a generator reading from crypto/rand.
func NewGenerator(secretSalt string) *Generator {
	return &Generator{random: rand.Reader, salt: secretSalt}
}

// NewGeneratorWithSource creates a generator reading from the given source.
func NewGeneratorWithSource(secretSalt string, random io.Reader) *Generator {
	return &Generator{random: random, salt: secretSalt}
}

// Generate returns a fresh 64-character hex token for the owner and event.
func (g *Generator) Generate(ownerLabel, eventLabel string) (string, error) {
	buf := make([]byte, RandomLength)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}

	input := fmt.Sprintf("EVENT-%s-%s-%s%s", eventLabel, ownerLabel, hex.EncodeToString(buf), g.salt)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:]), nil
}

// Valid reports whether s has the shape of a generated token.
func Valid(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
