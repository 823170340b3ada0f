// internal/rules/typecache.go
package rules

import (
	"github.com/zeebo/blake3"
)

// TypeCache memoizes detected content types for one dispatch. Keys are
// BLAKE3 digests of the inspected value so large raw payloads are not
// retained twice. Only successful detections are stored: an unknown type
// is asked again, since a later lookup (a HEAD after a network blip) may
// succeed.
type TypeCache struct {
	types map[[32]byte]string
}

// NewTypeCache returns an empty cache.
func NewTypeCache() *TypeCache {
	return &TypeCache{types: make(map[[32]byte]string)}
}

// Get returns the cached type for value.
func (c *TypeCache) Get(value string) (string, bool) {
	t, ok := c.types[blake3.Sum256([]byte(value))]
	return t, ok
}

// Put records the type of value. Empty types are ignored.
func (c *TypeCache) Put(value, contentType string) {
	if contentType == "" {
		return
	}
	c.types[blake3.Sum256([]byte(value))] = contentType
}

// Len returns the number of cached entries.
func (c *TypeCache) Len() int {
	return len(c.types)
}
