// Package domain contains entity without logic, just meta-data
package domain

import (
	"encoding/hex"

	"github.com/google/uuid"
)

const UserIDLen = 12

// UserID is the per-connection random handle peers see.
// It is not an identity; a reconnect gets a new one.
type UserID string

// NewUserID draws a fresh handle from a random UUID.
// Callers that need uniqueness must check against live sessions.
func NewUserID() UserID {
	u := uuid.New()
	return UserID(hex.EncodeToString(u[:UserIDLen/2]))
}
