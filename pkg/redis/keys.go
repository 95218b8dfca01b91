package redis

import "strings"

// Namespace prefixes every key this service writes.
const Namespace = "cp"

// Key families.
const (
	familyIdempotency = "idempotency"
	familyRateLimit   = "rate_limit"
	familyDraft       = "draft"
	familyLock        = "lock"
)

// key joins non-empty parts under the namespace with ":".
func key(family string, parts ...string) string {
	var b strings.Builder
	b.WriteString(Namespace)
	for _, p := range append([]string{family}, parts...) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(p)
	}
	return b.String()
}

func (c *Client) IdempotencyKey(scope, id string) string { return key(familyIdempotency, scope, id) }

func (c *Client) RateLimitKey(scope string) string { return key(familyRateLimit, scope) }

// DraftKey is the single draft-order slot an owner has within a funnel.
func (c *Client) DraftKey(funnel, owner string) string { return key(familyDraft, funnel, owner) }

// LockKey names a distributed job lock, e.g. LockKey("cron-worker", env).
func (c *Client) LockKey(parts ...string) string { return key(familyLock, parts...) }
