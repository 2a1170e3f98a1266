package woff2

// Metadata returns the decompressed extended metadata block of a WOFF2 file, which is an XML document. It returns nil if the font has no metadata. The block is not part of the SFNT output of Decode.
func Metadata(b []byte) ([]byte, error) {
	h, _, err := ParseDirectory(b)
	if err != nil {
		return nil, err
	} else if h.MetaLength == 0 {
		return nil, nil
	} else if DefaultMaxMemory < h.MetaOrigLength {
		return nil, errorf(ExceedsMemory, "metadata: exceeds memory limit")
	}
	return Decompress(b[h.MetaOffset:h.MetaOffset+h.MetaLength], h.MetaOrigLength)
}

// PrivateData returns the private data block of a WOFF2 file, or nil if there is none. The returned slice shares memory with b.
func PrivateData(b []byte) ([]byte, error) {
	h, _, err := ParseDirectory(b)
	if err != nil {
		return nil, err
	} else if h.PrivLength == 0 {
		return nil, nil
	}
	end := h.PrivOffset + h.PrivLength
	return b[h.PrivOffset:end:end], nil
}
