// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxCallIDLen = 64

var (
	ErrCallIDEmpty   = errors.New("call id empty")
	ErrCallIDTooLong = errors.New("call id too long")
)

// CallID names one call session. It is an opaque token shared out-of-band;
// nothing in this package interprets its contents.
type CallID string

// MemberID identifies one signaling connection within a call.
type MemberID string

// NewCallID mints a fresh call token. Used by the create-call endpoint;
// remote peers receive the id out-of-band (link) and never generate one.
func NewCallID() CallID {
	return CallID(uuid.NewString())
}

// ParseCallID validates an id received from a transport endpoint.
func ParseCallID(raw string) (CallID, error) {
	if raw == "" {
		return "", ErrCallIDEmpty
	}
	if len(raw) > MaxCallIDLen {
		return "", ErrCallIDTooLong
	}
	return CallID(raw), nil
}
