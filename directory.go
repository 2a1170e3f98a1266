package woff2

import (
	"encoding/binary"
	"math"
)

// Specification:
// https://www.w3.org/TR/WOFF2/

// Validation tests:
// https://github.com/w3c/woff2-tests

// Other implementations:
// http://git.savannah.gnu.org/cgit/freetype/freetype2.git/tree/src/sfnt/sfwoff2.c
// https://github.com/google/woff2/tree/master/src
// https://github.com/fonttools/fonttools/blob/master/Lib/fontTools/ttLib/woff2.py

const headerSize = 48

// knownTags holds the 63 tags that can be referenced by index from the table directory flags, four bytes each.
const knownTags = "" +
	"cmap" + "head" + "hhea" + "hmtx" +
	"maxp" + "name" + "OS/2" + "post" +
	"cvt " + "fpgm" + "glyf" + "loca" +
	"prep" + "CFF " + "VORG" + "EBDT" +
	"EBLC" + "gasp" + "hdmx" + "kern" +
	"LTSH" + "PCLT" + "VDMX" + "vhea" +
	"vmtx" + "BASE" + "GDEF" + "GPOS" +
	"GSUB" + "EBSC" + "JSTF" + "MATH" +
	"CBDT" + "CBLC" + "COLR" + "CPAL" +
	"SVG " + "sbix" + "acnt" + "avar" +
	"bdat" + "bloc" + "bsln" + "cvar" +
	"fdsc" + "feat" + "fmtx" + "fvar" +
	"gvar" + "hsty" + "just" + "lcar" +
	"mort" + "morx" + "opbd" + "prop" +
	"trak" + "Zapf" + "Silf" + "Glat" +
	"Gloc" + "Feat" + "Sill"

const customTagIndex = 63

// KnownTag returns the tag for an index into the table of known tags, and false for the escape value 63 or larger.
func KnownTag(index int) (string, bool) {
	if index < 0 || customTagIndex <= index {
		return "", false
	}
	return knownTags[4*index : 4*index+4], true
}

// TransformKind specifies how a table is stored in the compressed data. The meaning of the transform version bits depends on the table tag, which is resolved during parsing.
type TransformKind int

// see TransformKind
const (
	Untransformed     TransformKind = iota // stored as-is
	GlyfLocaTransform                      // glyf/loca with transform version 0
	GenericTransform                       // any other table with a non-null transform, see TransformVersion
)

func (kind TransformKind) String() string {
	switch kind {
	case Untransformed:
		return "untransformed"
	case GlyfLocaTransform:
		return "glyf/loca transform"
	case GenericTransform:
		return "transform"
	}
	return "unknown"
}

// Header is the WOFF2 file header.
type Header struct {
	Flavor              uint32
	Length              uint32
	NumTables           uint16
	TotalSfntSize       uint32
	TotalCompressedSize uint32
	MajorVersion        uint16
	MinorVersion        uint16
	MetaOffset          uint32
	MetaLength          uint32
	MetaOrigLength      uint32
	PrivOffset          uint32
	PrivLength          uint32

	// DataOffset is the file offset of the compressed font data, directly after the table directory.
	DataOffset uint32
}

// TableEntry is a table directory entry in on-disk order.
type TableEntry struct {
	Tag              string
	Transform        TransformKind
	TransformVersion uint8
	OrigLength       uint32
	TransformLength  uint32

	// Offset is the position of the table in the decompressed font data.
	Offset uint32
}

// Length returns the number of bytes the table occupies in the decompressed font data.
func (entry TableEntry) Length() uint32 {
	if entry.Transform == Untransformed {
		return entry.OrigLength
	}
	return entry.TransformLength
}

// ParseDirectory parses the WOFF2 header and table directory. It validates the consistency of the header and the entries, but does not touch the compressed data.
func ParseDirectory(b []byte) (*Header, []TableEntry, error) {
	if len(b) < 4 {
		return nil, nil, truncated("header")
	} else if string(b[:4]) != "wOF2" {
		return nil, nil, &Error{Kind: InvalidSignature, Msg: "bad signature"}
	} else if len(b) < headerSize {
		return nil, nil, truncated("header")
	} else if math.MaxUint32 < uint64(len(b)) {
		return nil, nil, errorf(ExceedsMemory, "input exceeds 4GB")
	}

	h := &Header{}
	h.Flavor = binary.BigEndian.Uint32(b[4:])
	h.Length = binary.BigEndian.Uint32(b[8:])
	h.NumTables = binary.BigEndian.Uint16(b[12:])
	reserved := binary.BigEndian.Uint16(b[14:])
	h.TotalSfntSize = binary.BigEndian.Uint32(b[16:])
	h.TotalCompressedSize = binary.BigEndian.Uint32(b[20:])
	h.MajorVersion = binary.BigEndian.Uint16(b[24:])
	h.MinorVersion = binary.BigEndian.Uint16(b[26:])
	h.MetaOffset = binary.BigEndian.Uint32(b[28:])
	h.MetaLength = binary.BigEndian.Uint32(b[32:])
	h.MetaOrigLength = binary.BigEndian.Uint32(b[36:])
	h.PrivOffset = binary.BigEndian.Uint32(b[40:])
	h.PrivLength = binary.BigEndian.Uint32(b[44:])
	if uint32ToString(h.Flavor) == "ttcf" {
		return nil, nil, malformedf("collections are unsupported")
	} else if h.Length != uint32(len(b)) {
		return nil, nil, malformedf("length in header must match file size")
	} else if h.NumTables == 0 {
		return nil, nil, malformedf("numTables in header must not be zero")
	} else if reserved != 0 {
		return nil, nil, malformedf("reserved in header must be zero")
	}

	r := NewReader(b)
	_ = r.Seek(headerSize)

	entries := make([]TableEntry, 0, h.NumTables)
	tagIndex := make(map[string]int, h.NumTables)
	var offset uint64
	for i := 0; i < int(h.NumTables); i++ {
		flags, err := r.ReadUint8()
		if err != nil {
			return nil, nil, truncated("table directory")
		}

		var tag string
		if index := int(flags & 0x3F); index == customTagIndex {
			raw, err := r.ReadBytes(4)
			if err != nil {
				return nil, nil, truncated("table directory")
			}
			tag = string(raw)
		} else {
			tag, _ = KnownTag(index)
		}
		if _, ok := tagIndex[tag]; ok {
			return nil, nil, malformedf("%s: table defined more than once", tag)
		}

		entry := TableEntry{
			Tag:              tag,
			TransformVersion: flags >> 6,
		}
		if entry.OrigLength, err = r.ReadUintBase128(); err != nil {
			return nil, nil, directoryError(tag, err)
		}

		// transform version 0 means transformed for glyf and loca, and null transform for all other tables
		isGlyfLoca := tag == "glyf" || tag == "loca"
		if isGlyfLoca && entry.TransformVersion == 0 || !isGlyfLoca && entry.TransformVersion != 0 {
			if isGlyfLoca {
				entry.Transform = GlyfLocaTransform
			} else if tag == "hmtx" && entry.TransformVersion == 1 {
				entry.Transform = GenericTransform
			} else {
				return nil, nil, malformedf("%s: invalid transformation", tag)
			}
			if entry.TransformLength, err = r.ReadUintBase128(); err != nil {
				return nil, nil, directoryError(tag, err)
			}
			if tag == "loca" && entry.TransformLength != 0 {
				return nil, nil, malformedf("loca: transformLength must be zero")
			} else if tag != "loca" && entry.TransformLength == 0 {
				return nil, nil, malformedf("%s: transformLength must be set", tag)
			}
		} else if isGlyfLoca && entry.TransformVersion != 3 {
			return nil, nil, malformedf("%s: invalid transformation", tag)
		}

		if tag == "loca" {
			if _, hasGlyf := tagIndex["glyf"]; !hasGlyf {
				return nil, nil, malformedf("loca: must come after glyf table")
			}
		}

		entry.Offset = uint32(offset)
		offset += uint64(entry.Length())
		if math.MaxUint32 < offset {
			return nil, nil, malformedf("%s: sum of table lengths overflows", tag)
		}

		tagIndex[tag] = len(entries)
		entries = append(entries, entry)
	}
	if uint64(h.TotalSfntSize) < offset {
		return nil, nil, malformedf("sum of table lengths exceeds totalSfntSize")
	}

	iGlyf, hasGlyf := tagIndex["glyf"]
	iLoca, hasLoca := tagIndex["loca"]
	glyfTransformed := hasGlyf && entries[iGlyf].Transform == GlyfLocaTransform
	locaTransformed := hasLoca && entries[iLoca].Transform == GlyfLocaTransform
	if (glyfTransformed || locaTransformed) && (!hasGlyf || !hasLoca || glyfTransformed != locaTransformed) {
		return nil, nil, malformedf("glyf and loca tables must be both present and both transformed")
	}

	h.DataOffset = uint32(r.Pos())
	if uint64(r.Len()) < uint64(h.TotalCompressedSize) {
		return nil, nil, truncated("compressed data")
	}
	dataEnd := uint64(h.DataOffset) + uint64(h.TotalCompressedSize)
	if h.MetaLength != 0 && (uint64(h.MetaOffset) < dataEnd || uint64(len(b)) < uint64(h.MetaOffset)+uint64(h.MetaLength)) {
		return nil, nil, malformedf("metadata block out of bounds")
	}
	if h.PrivLength != 0 && (uint64(h.PrivOffset) < dataEnd || uint64(len(b)) < uint64(h.PrivOffset)+uint64(h.PrivLength)) {
		return nil, nil, malformedf("private data block out of bounds")
	}
	return h, entries, nil
}

func directoryError(tag string, err error) error {
	if e, ok := err.(*Error); ok && e.Kind == TruncatedInput {
		return truncated("table directory")
	}
	return &Error{Kind: MalformedDirectory, Msg: tag, Err: err}
}
