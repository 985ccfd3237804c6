package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// TaskVersion identifies the current annotation prompt/schema generation.
// Bumping it changes every key, which is the cache invalidation policy:
// results computed under an older prompt are simply never looked up again.
const TaskVersion = "enrichment-v1"

// Key derives the content-addressed cache key for (text, model, task).
//
// The key is a pure function of its inputs: identical inputs always yield
// the identical key, and the SHA-256 width makes collisions across distinct
// texts negligible.
func Key(text, model, taskVersion string) string {
	h := sha256.New()
	h.Write([]byte(taskVersion))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(model)))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeText(text)))
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeText trims and collapses internal whitespace so trivially
// reformatted copies of the same text share a cache entry.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
