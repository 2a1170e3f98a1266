package woff2

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/tdewolff/parse/v2"
)

// SFNT versions for the flavor field.
const (
	TrueTypeFlavor uint32 = 0x00010000
	CFFFlavor      uint32 = 0x4F54544F // OTTO
)

const checksumMagic = 0xB1B0AFBA

// Table is a reconstructed SFNT table.
type Table struct {
	Tag  string
	Data []byte
}

// CalcChecksum returns the SFNT checksum of b, the sum of all big-endian uint32 words where a trailing partial word is padded with zeros.
func CalcChecksum(b []byte) uint32 {
	var sum uint32
	n := len(b) &^ 3
	for i := 0; i < n; i += 4 {
		sum += binary.BigEndian.Uint32(b[i : i+4])
	}
	if n < len(b) {
		var last [4]byte
		copy(last[:], b[n:])
		sum += binary.BigEndian.Uint32(last[:])
	}
	return sum
}

func padding(n uint64) uint64 {
	return (4 - n&3) & 3
}

// sfntLength returns the size of the SFNT file that Assemble produces for the given tables.
func sfntLength(tables []Table) uint64 {
	n := 12 + 16*uint64(len(tables))
	for _, table := range tables {
		n += uint64(len(table.Data))
		n += padding(uint64(len(table.Data)))
	}
	return n
}

// offsetTable returns the binary search parameters of the SFNT header for numTables entries.
func offsetTable(numTables uint16) (searchRange, entrySelector, rangeShift uint16) {
	searchRange = 1
	for searchRange*2 <= numTables && searchRange < 0x8000 {
		searchRange *= 2
		entrySelector++
	}
	searchRange *= 16
	rangeShift = numTables*16 - searchRange
	return
}

// Assemble writes an SFNT file from the given tables. Table records are sorted by tag while the table data keeps the order of tables, each table starting at a 4-byte boundary. The checkSumAdjustment field of the head table is set so that the file checksum equals 0xB1B0AFBA.
func Assemble(flavor uint32, tables []Table) ([]byte, error) {
	if len(tables) == 0 {
		return nil, malformedf("sfnt: no tables")
	} else if math.MaxUint16 < len(tables) {
		return nil, malformedf("sfnt: too many tables")
	}
	length := sfntLength(tables)
	if math.MaxUint32 < length {
		return nil, errorf(ExceedsMemory, "sfnt: file exceeds 4GB")
	}

	iHead := -1
	order := make([]int, len(tables))
	for i, table := range tables {
		if len(table.Tag) != 4 {
			return nil, malformedf("sfnt: bad tag %q", table.Tag)
		}
		if table.Tag == "head" {
			if len(table.Data) < 12 {
				return nil, malformedf("head: bad table")
			}
			iHead = i
		}
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return tables[order[i]].Tag < tables[order[j]].Tag
	})
	for i := 1; i < len(order); i++ {
		if tables[order[i-1]].Tag == tables[order[i]].Tag {
			return nil, malformedf("%s: table defined more than once", tables[order[i]].Tag)
		}
	}

	numTables := uint16(len(tables))
	searchRange, entrySelector, rangeShift := offsetTable(numTables)

	w := parse.NewBinaryWriter(make([]byte, 0, length))
	w.WriteUint32(flavor)
	w.WriteUint16(numTables)
	w.WriteUint16(searchRange)
	w.WriteUint16(entrySelector)
	w.WriteUint16(rangeShift)
	w.WriteBytes(make([]byte, 16*int(numTables))) // table records (set later)

	// write table data in original order
	var zeros [3]byte
	offsets := make([]uint32, len(tables))
	for i, table := range tables {
		offsets[i] = uint32(w.Len())
		w.WriteBytes(table.Data)
		w.WriteBytes(zeros[:padding(uint64(len(table.Data)))])
	}

	buf := w.Bytes()
	if iHead != -1 {
		binary.BigEndian.PutUint32(buf[offsets[iHead]+8:], 0) // clear checkSumAdjustment
	}

	// write table records sorted by tag
	for i, iTable := range order {
		table := tables[iTable]
		start := offsets[iTable]
		end := start + uint32(len(table.Data))
		end += uint32(padding(uint64(len(table.Data))))

		pos := 12 + 16*i
		copy(buf[pos:], table.Tag)
		binary.BigEndian.PutUint32(buf[pos+4:], CalcChecksum(buf[start:end]))
		binary.BigEndian.PutUint32(buf[pos+8:], start)
		binary.BigEndian.PutUint32(buf[pos+12:], uint32(len(table.Data)))
	}

	if iHead != -1 {
		binary.BigEndian.PutUint32(buf[offsets[iHead]+8:], checksumMagic-CalcChecksum(buf))
	}
	return buf, nil
}

// TableRecord is an entry of an SFNT table directory together with the table data it points to.
type TableRecord struct {
	Table
	Checksum uint32
	Offset   uint32
}

// ParseSFNT parses the table directory of an SFNT file and returns its flavor and table records in directory order. Table data shares memory with b. Checksums are returned but not verified.
func ParseSFNT(b []byte) (uint32, []TableRecord, error) {
	if len(b) < 12 {
		return 0, nil, truncated("sfnt")
	} else if math.MaxUint32 < uint64(len(b)) {
		return 0, nil, errorf(ExceedsMemory, "sfnt: file exceeds 4GB")
	}

	r := NewReader(b)
	flavor, _ := r.ReadUint32()
	numTables, _ := r.ReadUint16()
	_ = r.Seek(12) // searchRange, entrySelector, rangeShift
	if flavor == 0x74746366 {
		return 0, nil, malformedf("sfnt: collections are unsupported")
	} else if flavor != TrueTypeFlavor && flavor != CFFFlavor && flavor != 0x74727565 { // true
		return 0, nil, malformedf("sfnt: bad version 0x%08X", flavor)
	} else if r.Len() < 16*int(numTables) {
		return 0, nil, truncated("sfnt: table directory")
	}

	records := make([]TableRecord, numTables)
	for i := range records {
		raw, _ := r.ReadBytes(4)
		checksum, _ := r.ReadUint32()
		offset, _ := r.ReadUint32()
		length, _ := r.ReadUint32()
		if uint64(len(b)) < uint64(offset)+uint64(length) {
			return 0, nil, truncated(string(raw))
		}
		records[i] = TableRecord{
			Table:    Table{Tag: string(raw), Data: b[offset : offset+length : offset+length]},
			Checksum: checksum,
			Offset:   offset,
		}
	}
	return flavor, records, nil
}
