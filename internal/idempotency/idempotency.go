// Package idempotency computes the deterministic fingerprint used to
// collapse duplicate scan submissions within a TTL window.
package idempotency

import (
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Bucket floors t to the most recent multiple of ttlMinutes, UTC.
func Bucket(t time.Time, ttlMinutes int) time.Time {
	if ttlMinutes <= 0 {
		ttlMinutes = 1
	}
	u := t.UTC()
	epochMinutes := u.Unix() / 60
	flooredMinutes := (epochMinutes / int64(ttlMinutes)) * int64(ttlMinutes)
	return time.Unix(flooredMinutes*60, 0).UTC()
}

// Key computes the deterministic short hash of registry/name:tag:bucket.
func Key(registry, name, tag string, now time.Time, ttlMinutes int) string {
	bucket := Bucket(now, ttlMinutes)
	material := fmt.Sprintf("%s/%s:%s:%d", registry, name, tag, bucket.Unix())

	sum := blake2b.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}
