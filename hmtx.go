package woff2

import (
	"encoding/binary"

	"github.com/tdewolff/parse/v2"
)

// reconstructHmtx rebuilds the hmtx table from its transformed version, where left side bearings may be omitted when they are equal to the xMin of the glyph's bounding box. See https://www.w3.org/TR/WOFF2/#hmtx_table_format
func reconstructHmtx(b, head, glyf, loca, maxp, hhea []byte) ([]byte, error) {
	if len(head) < 54 {
		return nil, malformedf("head: bad table")
	} else if len(maxp) < 6 {
		return nil, malformedf("maxp: bad table")
	} else if len(hhea) < 36 {
		return nil, malformedf("hhea: bad table")
	}
	indexFormat := int16(binary.BigEndian.Uint16(head[50:]))
	numGlyphs := binary.BigEndian.Uint16(maxp[4:])
	numHMetrics := binary.BigEndian.Uint16(hhea[34:])
	if numHMetrics < 1 {
		return nil, glyff("hmtx: must have at least one entry")
	} else if numGlyphs < numHMetrics {
		return nil, glyff("hmtx: more entries than glyphs in glyf")
	}

	locaLength := (uint32(numGlyphs) + 1) * 2
	if indexFormat != 0 {
		locaLength *= 2
	}
	if locaLength != uint32(len(loca)) {
		return nil, glyff("hmtx: loca table does not match numGlyphs")
	}

	r := NewReader(b)
	flags, err := r.ReadUint8()
	if err != nil {
		return nil, glyff("hmtx: transformed table too short")
	}
	reconstructProportional := flags&0x01 != 0
	reconstructMonospaced := flags&0x02 != 0
	if flags&0xFC != 0 {
		return nil, glyff("hmtx: reserved bits in flags must not be set")
	} else if !reconstructProportional && !reconstructMonospaced {
		return nil, glyff("hmtx: must reconstruct at least one left side bearing array")
	}

	n := 1 + uint32(numHMetrics)*2
	if !reconstructProportional {
		n += uint32(numHMetrics) * 2
	}
	if !reconstructMonospaced {
		n += (uint32(numGlyphs) - uint32(numHMetrics)) * 2
	}
	if n != uint32(len(b)) {
		return nil, glyff("hmtx: transformed table has bad length")
	}

	// lengths are checked above
	advanceWidths := make([]uint16, numHMetrics)
	lsbs := make([]int16, numGlyphs)
	for i := range advanceWidths {
		advanceWidths[i], _ = r.ReadUint16()
	}
	if !reconstructProportional {
		for i := 0; i < int(numHMetrics); i++ {
			lsbs[i], _ = r.ReadInt16()
		}
	}
	if !reconstructMonospaced {
		for i := int(numHMetrics); i < int(numGlyphs); i++ {
			lsbs[i], _ = r.ReadInt16()
		}
	}

	// extract xMin values from glyf table using loca offsets
	locaOffset := func(glyphID int) uint32 {
		if indexFormat == 0 {
			return uint32(binary.BigEndian.Uint16(loca[2*glyphID:])) << 1
		}
		return binary.BigEndian.Uint32(loca[4*glyphID:])
	}
	iGlyphMin, iGlyphMax := 0, int(numGlyphs)
	if !reconstructProportional {
		iGlyphMin = int(numHMetrics)
	} else if !reconstructMonospaced {
		iGlyphMax = int(numHMetrics)
	}
	for iGlyph := iGlyphMin; iGlyph < iGlyphMax; iGlyph++ {
		offset, offsetNext := locaOffset(iGlyph), locaOffset(iGlyph+1)
		if offsetNext == offset {
			lsbs[iGlyph] = 0
			continue
		} else if offsetNext < offset || uint32(len(glyf)) < offsetNext || offsetNext-offset < 4 {
			return nil, glyff("hmtx: bad glyf offset for glyph %d", iGlyph)
		}
		lsbs[iGlyph] = int16(binary.BigEndian.Uint16(glyf[offset+2:])) // xMin
	}

	w := parse.NewBinaryWriter(make([]byte, 0, 2*uint32(numGlyphs)+2*uint32(numHMetrics)))
	for i, advanceWidth := range advanceWidths {
		w.WriteUint16(advanceWidth)
		w.WriteInt16(lsbs[i])
	}
	for _, lsb := range lsbs[numHMetrics:] {
		w.WriteInt16(lsb)
	}
	return w.Bytes(), nil
}
