// Package hash wraps blake3 for the digests exchanged during authentication.
package hash

import (
	"sync"

	"github.com/zeebo/blake3"
)

// Size of a digest in bytes.
const Size = 32

var hashers = sync.Pool{
	New: func() any { return blake3.New() },
}

// Sum returns the blake3 digest of the concatenated chunks.
func Sum(chunks ...[]byte) (rst [Size]byte) {
	hh := hashers.Get().(*blake3.Hasher)
	defer func() {
		hh.Reset()
		hashers.Put(hh)
	}()
	for _, chunk := range chunks {
		hh.Write(chunk)
	}
	hh.Sum(rst[:0])
	return rst
}
