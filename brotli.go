package woff2

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
)

// Decompress inflates a brotli stream that must decode to exactly n bytes. Short, surplus or corrupt streams return a DecompressionError, so no more than n bytes are ever allocated.
func Decompress(compressed []byte, n uint32) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(compressed))
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, &Error{Kind: DecompressionError, Msg: "brotli: decompressed data shorter than declared size"}
		}
		return nil, &Error{Kind: DecompressionError, Msg: "brotli", Err: err}
	}

	// the stream must end exactly here
	var extra [1]byte
	if m, err := io.ReadFull(r, extra[:]); m != 0 {
		return nil, &Error{Kind: DecompressionError, Msg: "brotli: decompressed data exceeds declared size"}
	} else if err != io.EOF {
		return nil, &Error{Kind: DecompressionError, Msg: "brotli", Err: err}
	}
	return data, nil
}
