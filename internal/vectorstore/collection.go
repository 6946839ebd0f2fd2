package vectorstore

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// maxCollectionLen is the longest name Qdrant and chromem both accept.
	maxCollectionLen = 64

	// DefaultCollection is used when a configured name sanitizes to nothing.
	DefaultCollection = "dengue_kb"
)

// CollectionName maps a configured collection name onto ^[a-z0-9_]{1,64}$.
// Other characters become underscores, runs of underscores collapse, and
// names over the limit are truncated with a short hash of the full name so
// distinct long names stay distinct.
//
//	"Dengue KB (v2)" -> "dengue_kb_v2"
//	""               -> "dengue_kb"
func CollectionName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	prevUnderscore := false
	for _, r := range strings.ToLower(name) {
		ok := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !ok {
			if prevUnderscore {
				continue
			}
			b.WriteByte('_')
			prevUnderscore = true
			continue
		}
		b.WriteRune(r)
		prevUnderscore = false
	}

	out := strings.Trim(b.String(), "_")
	if out == "" {
		return DefaultCollection
	}
	if len(out) > maxCollectionLen {
		sum := sha256.Sum256([]byte(out))
		suffix := "_" + hex.EncodeToString(sum[:])[:8]
		out = strings.TrimRight(out[:maxCollectionLen-len(suffix)], "_") + suffix
	}
	return out
}
