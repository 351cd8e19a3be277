// Package cache maps fingerprints of (schema version, normalized query,
// bound parameters) to validated code artifacts and their results. It
// guarantees at most one in-flight computation per fingerprint and replays
// stored successes verbatim.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint identifies one cache entry. Deterministic: the same schema
// version, query wording (modulo case and whitespace) and parameters always
// produce the same key.
type Fingerprint string

// ComputeFingerprint derives the cache key.
func ComputeFingerprint(schemaVersion uint64, query string, params map[string]string) Fingerprint {
	h := sha256.New()
	fmt.Fprintf(h, "v%d\x00", schemaVersion)
	h.Write([]byte(NormalizeQuery(query)))
	h.Write([]byte{0})

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s\x00", k, params[k])
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// NormalizeQuery lowercases and collapses runs of whitespace so trivially
// rephrased queries share an entry.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
