package woff2

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Platform IDs of the name table.
const (
	PlatformUnicode   = 0
	PlatformMacintosh = 1
	PlatformWindows   = 3
)

// NameRecord is a record of the name table.
type NameRecord struct {
	PlatformID uint16
	EncodingID uint16
	LanguageID uint16
	NameID     uint16
	Value      []byte
}

// String decodes the value as UTF-16BE for the Unicode and Windows platforms and as Mac Roman for the Macintosh platform. Other encodings are returned as-is.
func (record NameRecord) String() string {
	var decoder *encoding.Decoder
	if record.PlatformID == PlatformUnicode || record.PlatformID == PlatformWindows {
		decoder = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
	} else if record.PlatformID == PlatformMacintosh && record.EncodingID == 0 {
		decoder = charmap.Macintosh.NewDecoder()
	} else {
		return string(record.Value)
	}
	s, _, err := transform.String(decoder, string(record.Value))
	if err != nil {
		return string(record.Value)
	}
	return s
}

// ParseName parses the records of a name table. Language-tag records of version 1 tables are skipped.
func ParseName(b []byte) ([]NameRecord, error) {
	r := NewReader(b)
	version, _ := r.ReadUint16()
	count, _ := r.ReadUint16()
	storageOffset, err := r.ReadUint16()
	if err != nil {
		return nil, truncated("name")
	} else if version != 0 && version != 1 {
		return nil, malformedf("name: bad version")
	} else if r.Len() < 12*int(count) || len(b) < int(storageOffset) {
		return nil, truncated("name")
	}

	storage := b[storageOffset:]
	records := make([]NameRecord, count)
	for i := range records {
		records[i].PlatformID, _ = r.ReadUint16()
		records[i].EncodingID, _ = r.ReadUint16()
		records[i].LanguageID, _ = r.ReadUint16()
		records[i].NameID, _ = r.ReadUint16()
		length, _ := r.ReadUint16()
		offset, _ := r.ReadUint16()
		if len(storage) < int(offset)+int(length) {
			return nil, malformedf("name: record %d out of bounds", i)
		}
		records[i].Value = storage[offset : int(offset)+int(length)]
	}
	return records, nil
}
