// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen      = 36
	MaxDisplayNameLen = 36
)

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrUserIDEmpty        = errors.New("user id empty")
	ErrUserIDTooLong      = errors.New("user id too long")
)

type UserID string

type User struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"display_name"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(displayName string) (*User, error) {
	if len(displayName) == 0 {
		return nil, ErrDisplayNameEmpty
	}
	if len(displayName) > MaxDisplayNameLen {
		return nil, ErrDisplayNameTooLong
	}
	id := UserID(uuid.NewString())
	return &User{ID: id, DisplayName: displayName}, nil
}

// ValidateUserID checks the bounds the signaling server enforces on register.
func ValidateUserID(id UserID) error {
	if len(id) == 0 {
		return ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return ErrUserIDTooLong
	}
	return nil
}

func (u *User) SetDisplayName(displayName string) error {
	if len(displayName) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(displayName) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	u.DisplayName = displayName
	return nil
}
