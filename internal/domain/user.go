// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen   = 36
	MaxNameLen     = 36
	MaxRoomNameLen = 64
)

var (
	ErrNameTooLong = errors.New("display name too long")
	ErrNameEmpty   = errors.New("display name empty")
)

type UserID string

// User is the participant descriptor a client supplies at join time.
// The server treats it as opaque; it is never validated against identity.
type User struct {
	ID   UserID `json:"id"`
	Name string `json:"name"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(name string) (User, error) {
	if len(name) == 0 {
		return User{}, ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return User{}, ErrNameTooLong
	}
	return User{ID: UserID(uuid.NewString()), Name: name}, nil
}
