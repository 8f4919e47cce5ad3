// Package session implements the ephemeral authenticated-session store with
// sliding expiration on top of the shared Redis pool.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Session is the server-side record behind a session cookie. A record
// missing its user id is malformed and treated as invalid, never as an
// error. LastRefresh is unix seconds.
type Session struct {
	UserID      string  `json:"id"`
	Email       string  `json:"email"`
	LastRefresh float64 `json:"last_refresh"`
}

// GenerateToken returns an unguessable session identifier.
// 32 bytes = 256 bits of entropy, URL-safe encoded.
func GenerateToken() (string, error) {
	const size = 32

	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: generate token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
