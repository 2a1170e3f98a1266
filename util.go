package woff2

import (
	"encoding/binary"
)

// DefaultMaxMemory is the maximum memory that can be allocated for a single output buffer when DecodeOptions.MaxMemory is not set.
const DefaultMaxMemory uint32 = 30 * 1024 * 1024

func uint32ToString(v uint32) string {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return string(b)
}
