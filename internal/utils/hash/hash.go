package hash

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

type Hash struct {
	data []byte
}

func NewHash(data []byte) Hash {
	return Hash{data: data}
}

// FromParts hashes the parts joined with sep. Callers pick a separator
// that cannot appear at the part boundaries they care about.
func FromParts(sep string, parts ...string) Hash {
	return Hash{data: []byte(strings.Join(parts, sep))}
}

func (h Hash) ComputeHash() string {
	hash := sha256.Sum256(h.data)
	return fmt.Sprintf("%x", hash)
}

// Short returns the first n hex characters of the digest.
func (h Hash) Short(n int) string {
	sum := h.ComputeHash()
	if n <= 0 || n >= len(sum) {
		return sum
	}
	return sum[:n]
}
