// Package decrypt implements the free-text decrypt command shared by the
// server endpoint and the terminal client.
package decrypt

import (
	"context"
	"strings"

	"github.com/louisbranch/n1x/internal/services/n1x/f010"
	"github.com/louisbranch/n1x/internal/services/n1x/fragment"
)

// KeyValidator checks multiplayer keys.
type KeyValidator interface {
	Validate(ctx context.Context, roomID, key string) f010.Result
}

// Result is the outcome of one decrypt attempt.
type Result struct {
	OK         bool   `json:"ok"`
	FragmentID string `json:"fragment_id,omitempty"`
	Payload    string `json:"payload,omitempty"`
	MinTrust   int    `json:"min_trust,omitempty"`
}

// Surface resolves decrypt input against the fragment table first and the
// key validator second.
type Surface struct {
	Keys KeyValidator
}

// Decrypt resolves input. roomID scopes multiplayer key checks and may be empty.
func (s Surface) Decrypt(ctx context.Context, roomID, input string) Result {
	normalized := fragment.Normalize(input)
	if normalized == "" {
		return Result{}
	}
	if entry, ok := fragment.Lookup(normalized); ok {
		return Result{OK: true, FragmentID: entry.ID, Payload: entry.Payload, MinTrust: entry.MinTrust}
	}
	if s.Keys == nil || strings.ContainsAny(normalized, " \t") {
		return Result{}
	}
	res := s.Keys.Validate(ctx, roomID, normalized)
	if !res.Valid {
		return Result{}
	}
	return Result{OK: true, FragmentID: fragment.Multiplayer, Payload: res.Payload}
}
