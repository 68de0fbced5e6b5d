package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"llm-router/internal/router"
	"llm-router/internal/rules"
)

// Cache stores completed route responses.
type Cache interface {
	// GetResponse retrieves a cached response by key
	// Returns nil if not found
	GetResponse(ctx context.Context, key string) (*router.Response, error)

	// SetResponse stores a response with TTL
	SetResponse(ctx context.Context, key string, resp *router.Response, ttl time.Duration) error

	// InvalidateRule removes all cached responses produced by a rule
	InvalidateRule(ctx context.Context, rule string) error

	// Close closes the cache connection
	Close() error
}

const digestLen = sha256.Size * 2

// Key derives the cache key for routing query from storeLabel through rule.
// The digest covers the full rule, so a rule removed and registered again
// with a different config never reads entries written under the old one.
// The rule name stays readable so entries can be invalidated per rule.
func Key(rule rules.Rule, storeLabel, query string) string {
	h := sha256.New()
	// Rule has only plain fields, so encoding cannot fail.
	enc, _ := json.Marshal(rule)
	h.Write(enc)
	h.Write([]byte{0})
	h.Write([]byte(storeLabel))
	h.Write([]byte{0})
	h.Write([]byte(query))
	return rule.Name + ":" + hex.EncodeToString(h.Sum(nil))
}

// keyPattern matches exactly the keys Key produces for ruleName. Glob
// metacharacters in the name are escaped, and the digest is matched by
// length so the pattern cannot reach into a longer name such as "a:b".
func keyPattern(ruleName string) string {
	var b strings.Builder
	b.WriteString(cacheKeyPrefix)
	for _, r := range ruleName {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte(':')
	b.WriteString(strings.Repeat("?", digestLen))
	return b.String()
}
