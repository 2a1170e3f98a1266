package woff2

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/andybalholm/brotli"
	"github.com/tdewolff/parse/v2"
)

// encodeOptions configures encodeWOFF2, the WOFF2 writer used to generate test fonts.
type encodeOptions struct {
	Transform bool // apply the glyf/loca and hmtx transforms when possible
	Metadata  []byte
	Private   []byte
}

func tableIndex(tables []Table, tag string) int {
	for i, table := range tables {
		if table.Tag == tag {
			return i
		}
	}
	return -1
}

func knownTagIndex(tag string) int {
	for i := 0; i < customTagIndex; i++ {
		if known, _ := KnownTag(i); known == tag {
			return i
		}
	}
	return customTagIndex
}

func compress(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, err
	} else if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeWOFF2 writes the tables as a WOFF2 file in the given order.
func encodeWOFF2(flavor uint32, tables []Table, options encodeOptions) ([]byte, error) {
	var glyf, hmtx []byte
	iGlyf, iLoca, iHmtx := tableIndex(tables, "glyf"), tableIndex(tables, "loca"), tableIndex(tables, "hmtx")
	if options.Transform && iGlyf != -1 && iLoca != -1 {
		iHead, iMaxp := tableIndex(tables, "head"), tableIndex(tables, "maxp")
		if iHead == -1 || iMaxp == -1 || len(tables[iHead].Data) < 54 || len(tables[iMaxp].Data) < 6 {
			return nil, fmt.Errorf("glyf transform requires head and maxp")
		}
		numGlyphs := binary.BigEndian.Uint16(tables[iMaxp].Data[4:])
		indexFormat := binary.BigEndian.Uint16(tables[iHead].Data[50:])

		var xMins []int16
		var err error
		if glyf, xMins, err = transformGlyf(numGlyphs, indexFormat, tables[iGlyf].Data, tables[iLoca].Data); err != nil {
			return nil, err
		}
		if iHhea := tableIndex(tables, "hhea"); iHmtx != -1 && iHhea != -1 && 36 <= len(tables[iHhea].Data) {
			numHMetrics := binary.BigEndian.Uint16(tables[iHhea].Data[34:])
			hmtx = transformHmtx(tables[iHmtx].Data, numHMetrics, xMins)
		}
	}

	dir := parse.NewBinaryWriter([]byte{})
	var data []byte
	var sfntSize uint64
	for _, table := range tables {
		index := knownTagIndex(table.Tag)
		stored := table.Data

		var transformVersion byte
		if glyf == nil && (table.Tag == "glyf" || table.Tag == "loca") {
			transformVersion = 3
		} else if hmtx != nil && table.Tag == "hmtx" {
			transformVersion = 1
		}
		dir.WriteUint8(transformVersion<<6 | byte(index))
		if index == customTagIndex {
			dir.WriteString(table.Tag)
		}
		writeUintBase128(dir, uint32(len(table.Data)))
		if glyf != nil && table.Tag == "glyf" {
			writeUintBase128(dir, uint32(len(glyf)))
			stored = glyf
		} else if glyf != nil && table.Tag == "loca" {
			writeUintBase128(dir, 0)
			stored = nil
		} else if hmtx != nil && table.Tag == "hmtx" {
			writeUintBase128(dir, uint32(len(hmtx)))
			stored = hmtx
		}
		data = append(data, stored...)
		sfntSize += uint64(len(stored)) + padding(uint64(len(stored)))
	}
	if n := sfntLength(tables); sfntSize < n {
		sfntSize = n
	}

	compressed, err := compress(data)
	if err != nil {
		return nil, err
	}

	w := parse.NewBinaryWriter([]byte{})
	w.WriteString("wOF2")
	w.WriteUint32(flavor)
	w.WriteUint32(0) // length (set later)
	w.WriteUint16(uint16(len(tables)))
	w.WriteUint16(0) // reserved
	w.WriteUint32(uint32(sfntSize))
	w.WriteUint32(uint32(len(compressed)))
	w.WriteUint16(1)               // majorVersion
	w.WriteUint16(0)               // minorVersion
	w.WriteBytes(make([]byte, 20)) // metadata and private data (set later)
	w.WriteBytes(dir.Bytes())
	w.WriteBytes(compressed)

	var zeros [3]byte
	var metaOffset, metaLength, privOffset uint32
	if options.Metadata != nil {
		metadata, err := compress(options.Metadata)
		if err != nil {
			return nil, err
		}
		w.WriteBytes(zeros[:padding(uint64(w.Len()))])
		metaOffset, metaLength = uint32(w.Len()), uint32(len(metadata))
		w.WriteBytes(metadata)
	}
	if options.Private != nil {
		w.WriteBytes(zeros[:padding(uint64(w.Len()))])
		privOffset = uint32(w.Len())
		w.WriteBytes(options.Private)
	}

	b := w.Bytes()
	binary.BigEndian.PutUint32(b[8:], uint32(len(b)))
	binary.BigEndian.PutUint32(b[28:], metaOffset)
	binary.BigEndian.PutUint32(b[32:], metaLength)
	binary.BigEndian.PutUint32(b[36:], uint32(len(options.Metadata)))
	binary.BigEndian.PutUint32(b[40:], privOffset)
	binary.BigEndian.PutUint32(b[44:], uint32(len(options.Private)))
	return b, nil
}

// encodeSFNT re-encodes an SFNT file as WOFF2, with tables sorted by tag so that loca follows glyf.
func encodeSFNT(b []byte, options encodeOptions) ([]byte, error) {
	flavor, tables, err := sfntTables(b)
	if err != nil {
		return nil, err
	}
	return encodeWOFF2(flavor, tables, options)
}

// sfntTables returns the tables of an SFNT file sorted by tag, without DSIG.
func sfntTables(b []byte) (uint32, []Table, error) {
	flavor, records, err := ParseSFNT(b)
	if err != nil {
		return 0, nil, err
	}
	tables := make([]Table, 0, len(records))
	for _, record := range records {
		if record.Tag != "DSIG" {
			tables = append(tables, record.Table)
		}
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Tag < tables[j].Tag })
	return flavor, tables, nil
}

func writeUintBase128(w *parse.BinaryWriter, accum uint32) {
	if accum == 0 {
		w.WriteByte(0)
		return
	}
	written := false
	for i := 4; 0 <= i; i-- {
		v := accum>>(uint(i)*7)&0x7F
		if written || v != 0 {
			if i != 0 {
				v |= 0x80
			}
			w.WriteByte(byte(v))
			written = true
		}
	}
}

func write255Uint16(w *parse.BinaryWriter, val uint16) {
	if val < 253 {
		w.WriteByte(byte(val))
	} else if val < 256+253 {
		w.WriteByte(255)
		w.WriteByte(byte(val - 253))
	} else if val < 256+253*2 {
		w.WriteByte(254)
		w.WriteByte(byte(val - 253*2))
	} else {
		w.WriteByte(253)
		w.WriteUint16(val)
	}
}

// rawGlyph is a simple glyph as stored in the glyf table.
type rawGlyph struct {
	xMin, yMin, xMax, yMax int16
	endPoints              []uint16
	instructions           []byte
	points                 []glyfPoint
	overlapSimple          bool
}

// parseSimpleGlyph parses a simple glyph from the glyf table.
func parseSimpleGlyph(b []byte) (*rawGlyph, error) {
	r := NewReader(b)
	nContours, _ := r.ReadInt16()
	g := &rawGlyph{}
	g.xMin, _ = r.ReadInt16()
	g.yMin, _ = r.ReadInt16()
	g.xMax, _ = r.ReadInt16()
	g.yMax, _ = r.ReadInt16()
	g.endPoints = make([]uint16, nContours)
	for i := range g.endPoints {
		g.endPoints[i], _ = r.ReadUint16()
	}
	instructionLength, _ := r.ReadUint16()
	var err error
	if g.instructions, err = r.ReadBytes(uint32(instructionLength)); err != nil {
		return nil, err
	}

	nPoints := int(g.endPoints[nContours-1]) + 1
	flags := make([]byte, 0, nPoints)
	for len(flags) < nPoints {
		flag, err := r.ReadUint8()
		if err != nil {
			return nil, err
		}
		flags = append(flags, flag)
		if flag&glyfRepeat != 0 {
			n, err := r.ReadUint8()
			if err != nil {
				return nil, err
			}
			for i := 0; i < int(n); i++ {
				flags = append(flags, flag)
			}
		}
	}
	flags = flags[:nPoints]
	g.overlapSimple = flags[0]&glyfOverlapSimple != 0

	readCoordinate := func(flag byte, short, same byte) (int32, error) {
		if flag&short != 0 {
			v, err := r.ReadUint8()
			if flag&same == 0 {
				return -int32(v), err
			}
			return int32(v), err
		} else if flag&same == 0 {
			v, err := r.ReadInt16()
			return int32(v), err
		}
		return 0, nil
	}

	g.points = make([]glyfPoint, nPoints)
	var x, y int32
	for i, flag := range flags {
		dx, err := readCoordinate(flag, glyfXShort, glyfThisXIsSame)
		if err != nil {
			return nil, err
		}
		x += dx
		g.points[i].x = x
		g.points[i].onCurve = flag&glyfOnCurve != 0
	}
	for i, flag := range flags {
		dy, err := readCoordinate(flag, glyfYShort, glyfThisYIsSame)
		if err != nil {
			return nil, err
		}
		y += dy
		g.points[i].y = y
	}
	return g, nil
}

// writeTriplet appends the triplet encoding of a point delta to the flag and glyph streams.
func writeTriplet(flagStream, glyphStream *parse.BinaryWriter, dx, dy int32, onCurve bool) {
	dxSign, dySign := byte(1), byte(1)
	if dx < 0 {
		dxSign, dx = 0, -dx
	}
	if dy < 0 {
		dySign, dy = 0, -dy
	}

	var flag byte
	if dx == 0 && dy < 1280 {
		delta := dy >> 8
		flag = byte(delta<<1) + dySign
		glyphStream.WriteByte(byte(dy - delta<<8))
	} else if dy == 0 && dx < 1280 {
		delta := dx >> 8
		flag = 10 + byte(delta<<1) + dxSign
		glyphStream.WriteByte(byte(dx - delta<<8))
	} else if dx < 65 && dy < 65 {
		deltax, deltay := (dx-1)>>4, (dy-1)>>4
		flag = 20 + byte(deltax<<4) + byte(deltay<<2) + dySign<<1 + dxSign
		glyphStream.WriteByte(byte(dx-1-deltax<<4)<<4 | byte(dy-1-deltay<<4))
	} else if dx < 769 && dy < 769 {
		deltax, deltay := (dx-1)>>8, (dy-1)>>8
		flag = 84 + 12*byte(deltax) + byte(deltay<<2) + dySign<<1 + dxSign
		glyphStream.WriteByte(byte(dx - 1 - deltax<<8))
		glyphStream.WriteByte(byte(dy - 1 - deltay<<8))
	} else if dx < 4096 && dy < 4096 {
		flag = 120 + dySign<<1 + dxSign
		glyphStream.WriteByte(byte(dx >> 4))
		glyphStream.WriteByte(byte(dx&0x0F)<<4 | byte(dy>>8))
		glyphStream.WriteByte(byte(dy))
	} else {
		flag = 124 + dySign<<1 + dxSign
		glyphStream.WriteUint16(uint16(dx))
		glyphStream.WriteUint16(uint16(dy))
	}
	if !onCurve {
		flag |= 0x80
	}
	flagStream.WriteByte(flag)
}

// transformGlyf applies the WOFF2 glyf transform and returns the xMin of each glyph.
func transformGlyf(numGlyphs, indexFormat uint16, glyf, loca []byte) ([]byte, []int16, error) {
	locaOffset := func(glyphID int) uint32 {
		if indexFormat == 0 {
			return uint32(binary.BigEndian.Uint16(loca[2*glyphID:])) << 1
		}
		return binary.BigEndian.Uint32(loca[4*glyphID:])
	}
	if indexFormat == 0 && len(loca) < 2*(int(numGlyphs)+1) || indexFormat != 0 && len(loca) < 4*(int(numGlyphs)+1) {
		return nil, nil, fmt.Errorf("loca: too short")
	}

	bitmapSize := ((uint32(numGlyphs) + 31) >> 5) << 2
	nContourStream := parse.NewBinaryWriter([]byte{})
	nPointsStream := parse.NewBinaryWriter([]byte{})
	flagStream := parse.NewBinaryWriter([]byte{})
	glyphStream := parse.NewBinaryWriter([]byte{})
	compositeStream := parse.NewBinaryWriter([]byte{})
	bboxBitmap := make([]byte, bitmapSize)
	bboxStream := parse.NewBinaryWriter([]byte{})
	instructionStream := parse.NewBinaryWriter([]byte{})
	overlapSimpleBitmap := make([]byte, bitmapSize)

	var optionFlags uint16
	xMins := make([]int16, numGlyphs)
	for glyphID := 0; glyphID < int(numGlyphs); glyphID++ {
		start, end := locaOffset(glyphID), locaOffset(glyphID+1)
		if end < start || uint32(len(glyf)) < end {
			return nil, nil, fmt.Errorf("glyf: bad offset for glyph %d", glyphID)
		}
		b := glyf[start:end]
		if len(b) < 10 || int16(binary.BigEndian.Uint16(b)) == 0 {
			nContourStream.WriteInt16(0)
			continue
		}

		var xMin, yMin, xMax, yMax int16
		explicitBbox := true
		nContours := int16(binary.BigEndian.Uint16(b))
		if 0 < nContours {
			g, err := parseSimpleGlyph(b)
			if err != nil {
				return nil, nil, fmt.Errorf("glyf: glyph %d: %w", glyphID, err)
			}
			xMin, yMin, xMax, yMax = g.xMin, g.yMin, g.xMax, g.yMax

			nContourStream.WriteInt16(nContours)
			for i, endPoint := range g.endPoints {
				if 0 < i {
					endPoint -= g.endPoints[i-1]
				} else {
					endPoint++
				}
				write255Uint16(nPointsStream, endPoint)
			}
			var lastX, lastY int32
			for _, p := range g.points {
				writeTriplet(flagStream, glyphStream, p.x-lastX, p.y-lastY, p.onCurve)
				lastX, lastY = p.x, p.y
			}
			if g.overlapSimple {
				overlapSimpleBitmap[glyphID>>3] |= 0x80 >> uint(glyphID&7)
				optionFlags |= 0x0001
			}

			x0, y0, x1, y1 := pointsBbox(g.points)
			explicitBbox = x0 != xMin || y0 != yMin || x1 != xMax || y1 != yMax

			write255Uint16(glyphStream, uint16(len(g.instructions)))
			instructionStream.WriteBytes(g.instructions)
		} else {
			r := NewReader(b)
			_ = r.Seek(2)
			xMin, _ = r.ReadInt16()
			yMin, _ = r.ReadInt16()
			xMax, _ = r.ReadInt16()
			yMax, _ = r.ReadInt16()

			nContourStream.WriteInt16(-1)
			hasInstructions := false
			for {
				flags, err := r.ReadUint16()
				if err != nil {
					return nil, nil, fmt.Errorf("glyf: glyph %d: %w", glyphID, err)
				}
				n := uint32(4)
				if flags&compositeArgsAreWords != 0 {
					n += 2
				}
				if flags&compositeHaveScale != 0 {
					n += 2
				} else if flags&compositeHaveXYScales != 0 {
					n += 4
				} else if flags&compositeHave2By2 != 0 {
					n += 8
				}
				component, err := r.ReadBytes(n)
				if err != nil {
					return nil, nil, fmt.Errorf("glyf: glyph %d: %w", glyphID, err)
				}
				compositeStream.WriteUint16(flags)
				compositeStream.WriteBytes(component)
				if flags&compositeHaveInstructions != 0 {
					hasInstructions = true
				}
				if flags&compositeMoreComponents == 0 {
					break
				}
			}
			if hasInstructions {
				instructionLength, _ := r.ReadUint16()
				instructions, err := r.ReadBytes(uint32(instructionLength))
				if err != nil {
					return nil, nil, fmt.Errorf("glyf: glyph %d: %w", glyphID, err)
				}
				write255Uint16(glyphStream, instructionLength)
				instructionStream.WriteBytes(instructions)
			}
		}
		xMins[glyphID] = xMin

		if explicitBbox {
			bboxBitmap[glyphID>>3] |= 0x80 >> uint(glyphID&7)
			bboxStream.WriteInt16(xMin)
			bboxStream.WriteInt16(yMin)
			bboxStream.WriteInt16(xMax)
			bboxStream.WriteInt16(yMax)
		}
	}

	w := parse.NewBinaryWriter([]byte{})
	w.WriteUint16(0) // reserved
	w.WriteUint16(optionFlags)
	w.WriteUint16(numGlyphs)
	w.WriteUint16(indexFormat)
	w.WriteUint32(uint32(nContourStream.Len()))
	w.WriteUint32(uint32(nPointsStream.Len()))
	w.WriteUint32(uint32(flagStream.Len()))
	w.WriteUint32(uint32(glyphStream.Len()))
	w.WriteUint32(uint32(compositeStream.Len()))
	w.WriteUint32(bitmapSize + uint32(bboxStream.Len()))
	w.WriteUint32(uint32(instructionStream.Len()))
	w.WriteBytes(nContourStream.Bytes())
	w.WriteBytes(nPointsStream.Bytes())
	w.WriteBytes(flagStream.Bytes())
	w.WriteBytes(glyphStream.Bytes())
	w.WriteBytes(compositeStream.Bytes())
	w.WriteBytes(bboxBitmap)
	w.WriteBytes(bboxStream.Bytes())
	w.WriteBytes(instructionStream.Bytes())
	if optionFlags&0x0001 != 0 {
		w.WriteBytes(overlapSimpleBitmap)
	}
	return w.Bytes(), xMins, nil
}

// transformHmtx applies the WOFF2 hmtx transform, or returns nil when neither left side bearing array equals the glyph xMins.
func transformHmtx(hmtx []byte, numHMetrics uint16, xMins []int16) []byte {
	numGlyphs := len(xMins)
	if numHMetrics == 0 || numGlyphs < int(numHMetrics) || len(hmtx) != 2*int(numHMetrics)+2*numGlyphs {
		return nil
	}
	advanceWidths := make([]uint16, numHMetrics)
	lsbs := make([]int16, numGlyphs)
	r := NewReader(hmtx)
	for i := range advanceWidths {
		advanceWidths[i], _ = r.ReadUint16()
		lsbs[i], _ = r.ReadInt16()
	}
	for i := int(numHMetrics); i < numGlyphs; i++ {
		lsbs[i], _ = r.ReadInt16()
	}

	omitProportional, omitMonospaced := true, true
	for i, lsb := range lsbs {
		if lsb != xMins[i] {
			if i < int(numHMetrics) {
				omitProportional = false
			} else {
				omitMonospaced = false
			}
		}
	}
	if !omitProportional && !omitMonospaced {
		return nil
	}

	var flags byte
	if omitProportional {
		flags |= 0x01
	}
	if omitMonospaced {
		flags |= 0x02
	}
	w := parse.NewBinaryWriter([]byte{})
	w.WriteUint8(flags)
	for _, advanceWidth := range advanceWidths {
		w.WriteUint16(advanceWidth)
	}
	if !omitProportional {
		for _, lsb := range lsbs[:numHMetrics] {
			w.WriteInt16(lsb)
		}
	}
	if !omitMonospaced {
		for _, lsb := range lsbs[numHMetrics:] {
			w.WriteInt16(lsb)
		}
	}
	return w.Bytes()
}
