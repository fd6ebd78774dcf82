package f010

import (
	"context"
	"strings"
)

// Payload is returned with a valid key.
const Payload = "// FRAGMENT 010 :: the tenth node was never one of you. it was all of you, listening at once."

// IssuedKeys lists the keys a room has issued.
type IssuedKeys interface {
	IssuedKeys(ctx context.Context, roomID string) ([]string, error)
}

// Result is the validation endpoint response.
type Result struct {
	Valid   bool   `json:"valid"`
	Payload string `json:"payload,omitempty"`
	// Verified is false when validity came from the shape fallback.
	Verified bool `json:"-"`
}

// Validator checks submitted keys.
//
// A key is valid when it matches a key issued by the named room, a key this
// process remembers in its cache, or - as a deliberately permissive fallback
// for cross-instance requests - any well-formed 16 hex character string.
// The fallback means the shape alone unlocks f010; see DESIGN.md.
type Validator struct {
	Rooms IssuedKeys
	Cache *KeyCache
	// Strict disables the shape fallback.
	Strict bool
}

// Validate checks candidate against roomID's history (roomID may be empty).
func (v Validator) Validate(ctx context.Context, roomID, candidate string) Result {
	key := NormalizeKey(candidate)
	if key == "" {
		return Result{}
	}
	roomID = strings.TrimSpace(roomID)
	if v.Rooms != nil && roomID != "" {
		if keys, err := v.Rooms.IssuedKeys(ctx, roomID); err == nil {
			for _, issued := range keys {
				if NormalizeKey(issued) == key {
					return Result{Valid: true, Payload: Payload, Verified: true}
				}
			}
		}
	}
	if issuer, ok := v.Cache.Lookup(key); ok && (roomID == "" || issuer == roomID) {
		return Result{Valid: true, Payload: Payload, Verified: true}
	}
	if !v.Strict && WellFormed(key) {
		return Result{Valid: true, Payload: Payload}
	}
	return Result{}
}
