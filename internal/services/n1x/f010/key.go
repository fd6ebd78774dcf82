// Package f010 derives, caches and validates the multiplayer-exclusive
// unlock key a room issues when its daemon becomes exposed.
package f010

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// KeyLength is the number of hex characters kept from the digest.
	KeyLength = 16
	salt      = "n1x::tenth-node::f010"
	delimiter = "|"
	// Bucket is the time granularity mixed into the derivation.
	Bucket = time.Minute
)

var keyShape = regexp.MustCompile(`^[0-9a-f]{16}$`)

// Candidate is an occupant considered for witnessing an issuance.
type Candidate struct {
	Handle   string
	Trust    int
	JoinedAt time.Time
}

// Witnesses returns the handles of candidates with trust >= 1, earliest
// joiner first. Ties on join time keep the input order.
func Witnesses(candidates []Candidate) []string {
	eligible := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Trust >= 1 && strings.TrimSpace(c.Handle) != "" {
			eligible = append(eligible, c)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].JoinedAt.Before(eligible[j].JoinedAt)
	})
	out := make([]string, len(eligible))
	for i, c := range eligible {
		out[i] = c.Handle
	}
	return out
}

// TimeBucket returns the coarse bucket index for at.
func TimeBucket(at time.Time) int64 {
	return at.UTC().Unix() / int64(Bucket/time.Second)
}

// DeriveKey hashes the witness set, the salt and the time bucket. Witness
// order does not matter; the set is sorted before hashing. Two issuances for
// the same set inside one bucket produce the same key; the room's
// single-issuance guard keeps that from mattering.
func DeriveKey(witnesses []string, bucket int64) string {
	sorted := append([]string(nil), witnesses...)
	sort.Strings(sorted)
	input := strings.Join(sorted, delimiter) + salt + strconv.FormatInt(bucket, 10)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])[:KeyLength]
}

// NormalizeKey trims and lowercases a candidate key.
func NormalizeKey(candidate string) string {
	return strings.ToLower(strings.TrimSpace(candidate))
}

// WellFormed reports whether candidate has the shape of an issued key.
func WellFormed(candidate string) bool {
	return keyShape.MatchString(NormalizeKey(candidate))
}
