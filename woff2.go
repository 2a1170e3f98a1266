// Package woff2 decodes WOFF2 web fonts into their uncompressed SFNT (TTF or OTF) form, entirely in memory. See https://www.w3.org/TR/WOFF2/
package woff2

import (
	"encoding/binary"
)

// DecodeOptions are the options for Decode.
type DecodeOptions struct {
	// MaxMemory limits the size of the decompressed font data and of every reconstructed table and output buffer. Zero means DefaultMaxMemory.
	MaxMemory uint32

	// Strict additionally enforces that bit 11 of the head flags is set and that no DSIG table is present, as required from conforming encoders.
	Strict bool
}

// Convert converts a WOFF2 font to its contained SFNT font using the default options. It fails with EmptyInput for empty data and with InvalidSignature when the data does not start with "wOF2".
func Convert(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, &Error{Kind: EmptyInput, Msg: "empty WOFF2 data"}
	} else if len(b) < 4 || string(b[:4]) != "wOF2" {
		return nil, &Error{Kind: InvalidSignature, Msg: "invalid WOFF2 signature"}
	}
	return Decode(b, DecodeOptions{})
}

// Decode parses the WOFF2 font format and returns its contained SFNT font format (TTF or OTF). Either the complete font is returned, or an *Error describing the first problem encountered.
func Decode(b []byte, options DecodeOptions) ([]byte, error) {
	maxMemory := options.MaxMemory
	if maxMemory == 0 {
		maxMemory = DefaultMaxMemory
	}

	h, entries, err := ParseDirectory(b)
	if err != nil {
		return nil, err
	} else if maxMemory < h.TotalSfntSize {
		return nil, errorf(ExceedsMemory, "totalSfntSize exceeds memory limit")
	}

	tagIndex := make(map[string]int, len(entries))
	var uncompressedSize uint32
	for i, entry := range entries {
		tagIndex[entry.Tag] = i
		uncompressedSize = entry.Offset + entry.Length() // cannot overflow, checked by ParseDirectory
	}

	// decompress font data using Brotli
	compData := b[h.DataOffset : h.DataOffset+h.TotalCompressedSize]
	data, err := Decompress(compData, uncompressedSize)
	if err != nil {
		return nil, err
	}

	tables := make([]Table, len(entries))
	for i, entry := range entries {
		start, end := entry.Offset, entry.Offset+entry.Length()
		tables[i] = Table{
			Tag:  entry.Tag,
			Data: data[start:end:end],
		}
	}

	// detransform font data tables
	iGlyf, hasGlyf := tagIndex["glyf"]
	iLoca := tagIndex["loca"]
	if hasGlyf && entries[iGlyf].Transform == GlyfLocaTransform {
		glyf, loca, err := reconstructGlyfLoca(tables[iGlyf].Data, maxMemory)
		if err != nil {
			return nil, err
		} else if entries[iLoca].OrigLength != uint32(len(loca)) {
			return nil, glyff("loca: origLength must match numGlyphs+1 entries")
		}
		tables[iGlyf].Data = glyf
		tables[iLoca].Data = loca
	}

	if iHmtx, hasHmtx := tagIndex["hmtx"]; hasHmtx && entries[iHmtx].Transform == GenericTransform {
		var required [5][]byte
		for i, tag := range []string{"head", "glyf", "loca", "maxp", "hhea"} {
			j, ok := tagIndex[tag]
			if !ok {
				return nil, malformedf("hmtx: %s table must be defined in order to rebuild hmtx table", tag)
			}
			required[i] = tables[j].Data
		}
		hmtx, err := reconstructHmtx(tables[iHmtx].Data, required[0], required[1], required[2], required[3], required[4])
		if err != nil {
			return nil, err
		} else if entries[iHmtx].OrigLength != uint32(len(hmtx)) {
			return nil, glyff("hmtx: origLength does not match reconstructed table")
		}
		tables[iHmtx].Data = hmtx
	}

	if options.Strict {
		if err := checkStrict(tables, tagIndex); err != nil {
			return nil, err
		}
	}

	if uint64(maxMemory) < sfntLength(tables) {
		return nil, errorf(ExceedsMemory, "sfnt: file exceeds memory limit")
	}
	return Assemble(h.Flavor, tables)
}

func checkStrict(tables []Table, tagIndex map[string]int) error {
	iHead, hasHead := tagIndex["head"]
	if !hasHead || len(tables[iHead].Data) < 18 {
		return malformedf("head: must be present")
	} else if flags := binary.BigEndian.Uint16(tables[iHead].Data[16:]); flags&0x0800 == 0 {
		return malformedf("head: bit 11 in flags must be set")
	} else if _, hasDSIG := tagIndex["DSIG"]; hasDSIG {
		return malformedf("DSIG: must be removed")
	}
	return nil
}
