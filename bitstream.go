package woff2

import (
	"encoding/binary"
)

// Reader is a big-endian reader over an immutable byte slice. All reads are bounds-checked and fail with TruncatedInput instead of reading past the end.
type Reader struct {
	buf []byte
	pos int
}

// NewReader returns a reader positioned at the start of b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Pos returns the current read position.
func (r *Reader) Pos() int {
	return r.pos
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.buf) - r.pos
}

// Seek moves the read position to pos, which may be at most the buffer length.
func (r *Reader) Seek(pos int) error {
	if pos < 0 || len(r.buf) < pos {
		return ErrTruncatedInput
	}
	r.pos = pos
	return nil
}

// ReadBytes returns the next n bytes. The returned slice shares memory with the underlying buffer and is capped so that appending never overwrites it.
func (r *Reader) ReadBytes(n uint32) ([]byte, error) {
	if uint64(r.Len()) < uint64(n) {
		return nil, ErrTruncatedInput
	}
	end := r.pos + int(n)
	b := r.buf[r.pos:end:end]
	r.pos = end
	return b, nil
}

// ReadUint8 reads a single byte.
func (r *Reader) ReadUint8() (uint8, error) {
	if r.Len() < 1 {
		return 0, ErrTruncatedInput
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// ReadUint16 reads a big-endian uint16.
func (r *Reader) ReadUint16() (uint16, error) {
	if r.Len() < 2 {
		return 0, ErrTruncatedInput
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

// ReadInt16 reads a big-endian int16.
func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

// ReadUint32 reads a big-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	if r.Len() < 4 {
		return 0, ErrTruncatedInput
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadUintBase128 reads a UIntBase128 variable-length integer, see https://www.w3.org/TR/WOFF2/#DataTypes
func (r *Reader) ReadUintBase128() (uint32, error) {
	var accum uint32
	for i := 0; i < 5; i++ {
		dataByte, err := r.ReadUint8()
		if err != nil {
			return 0, err
		} else if i == 0 && dataByte == 0x80 {
			return 0, malformedf("UIntBase128: must not start with leading zeros")
		} else if accum&0xFE000000 != 0 {
			return 0, malformedf("UIntBase128: overflow")
		}
		accum = accum<<7 | uint32(dataByte&0x7F)
		if dataByte&0x80 == 0 {
			return accum, nil
		}
	}
	return 0, malformedf("UIntBase128: exceeds 5 bytes")
}

// Read255Uint16 reads a 255UInt16 variable-length integer, see https://www.w3.org/TR/WOFF2/#DataTypes
func (r *Reader) Read255Uint16() (uint16, error) {
	code, err := r.ReadUint8()
	if err != nil {
		return 0, err
	}
	switch code {
	case 253:
		return r.ReadUint16()
	case 254:
		v, err := r.ReadUint8()
		return uint16(v) + 253*2, err
	case 255:
		v, err := r.ReadUint8()
		return uint16(v) + 253, err
	}
	return uint16(code), nil
}

// Bitmap is a bit array with the most significant bit of the first byte at index zero, as used for the bbox and overlapSimple bitmaps of the transformed glyf table.
type Bitmap []byte

// Get returns the bit at index i, out-of-range indices are unset.
func (b Bitmap) Get(i int) bool {
	if i < 0 || len(b)*8 <= i {
		return false
	}
	return b[i>>3]&(0x80>>uint(i&7)) != 0
}
