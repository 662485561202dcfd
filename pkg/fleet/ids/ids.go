// Package ids generates stable, human-readable identifiers for agents and
// hosts (C1) and derives the session name each agent is known by inside the
// session multiplexer.
package ids

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// Generate returns a new themed-word-list identifier, e.g. "brisk-falcon".
// Callers that need a guaranteed-unique id should retry on collision via
// WithSuffix rather than trust Generate alone; two-word space is large but
// not infinite.
func Generate() (string, error) {
	adj, err := pick(adjectives)
	if err != nil {
		return "", err
	}
	noun, err := pick(nouns)
	if err != nil {
		return "", err
	}
	return adj + "-" + noun, nil
}

// WithSuffix appends a short uuid-derived suffix to disambiguate a
// themed-word id that collided with an existing one. Mirrors the teacher's
// straightforward uuid.New().String() usage for unique-id generation
// elsewhere, scoped down to 8 hex characters since the base id already
// carries most of the entropy budget.
func WithSuffix(base string) string {
	return fmt.Sprintf("%s-%s", base, uuid.New().String()[:8])
}

func pick(words []string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return words[n.Int64()], nil
}

// SessionName derives the multiplexer session name for an agent name given
// the configured prefix (data model invariant 3 in SPEC_FULL.md §3).
func SessionName(prefix, agentName string) string {
	return prefix + agentName
}
