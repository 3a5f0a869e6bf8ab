package invites

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// tokenBytes gives 256 bits of entropy per token.
const tokenBytes = 32

// maxTokenAttempts bounds collision retries at creation time.
const maxTokenAttempts = 5

// ErrTokenGeneration is returned when the collision retry budget is
// exhausted while issuing an invitation.
var ErrTokenGeneration = errors.New("token generation retry budget exhausted")

// generateToken creates an unguessable URL-safe invitation token.
func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
