package woff2

import (
	"math"

	"github.com/tdewolff/parse/v2"
)

// simple glyph flags
const (
	glyfOnCurve       = 0x01
	glyfXShort        = 0x02
	glyfYShort        = 0x04
	glyfRepeat        = 0x08
	glyfThisXIsSame   = 0x10
	glyfThisYIsSame   = 0x20
	glyfOverlapSimple = 0x40
)

// composite glyph flags
const (
	compositeArgsAreWords     = 0x0001
	compositeHaveScale        = 0x0008
	compositeMoreComponents   = 0x0020
	compositeHaveXYScales     = 0x0040
	compositeHave2By2         = 0x0080
	compositeHaveInstructions = 0x0100
)

const glyfHeaderSize = 36

type glyfPoint struct {
	x, y    int32
	onCurve bool
}

// ReconstructGlyfLoca rebuilds the glyf and loca tables from the transformed glyf table of a WOFF2 file.
func ReconstructGlyfLoca(b []byte) ([]byte, []byte, error) {
	return reconstructGlyfLoca(b, DefaultMaxMemory)
}

func reconstructGlyfLoca(b []byte, maxMemory uint32) ([]byte, []byte, error) {
	r := NewReader(b)
	if r.Len() < glyfHeaderSize {
		return nil, nil, glyff("glyf: transformed table too short")
	}
	// lengths are checked above
	_, _ = r.ReadUint16() // reserved
	optionFlags, _ := r.ReadUint16()
	numGlyphs, _ := r.ReadUint16()
	indexFormat, _ := r.ReadUint16()
	nContourStreamSize, _ := r.ReadUint32()
	nPointsStreamSize, _ := r.ReadUint32()
	flagStreamSize, _ := r.ReadUint32()
	glyphStreamSize, _ := r.ReadUint32()
	compositeStreamSize, _ := r.ReadUint32()
	bboxStreamSize, _ := r.ReadUint32()
	instructionStreamSize, _ := r.ReadUint32()
	if indexFormat != 0 && indexFormat != 1 {
		return nil, nil, glyff("glyf: bad indexFormat %d", indexFormat)
	} else if nContourStreamSize != 2*uint32(numGlyphs) {
		return nil, nil, glyff("glyf: nContourStream must have an entry for each glyph")
	}

	bitmapSize := ((uint32(numGlyphs) + 31) >> 5) << 2
	if bboxStreamSize < bitmapSize {
		return nil, nil, glyff("glyf: bboxStream smaller than its bitmap")
	}

	var streams [9][]byte
	sizes := []uint32{nContourStreamSize, nPointsStreamSize, flagStreamSize, glyphStreamSize, compositeStreamSize, bitmapSize, bboxStreamSize - bitmapSize, instructionStreamSize}
	if optionFlags&0x0001 != 0 { // overlapSimpleBitmap present
		sizes = append(sizes, bitmapSize)
	}
	for i, size := range sizes {
		var err error
		if streams[i], err = r.ReadBytes(size); err != nil {
			return nil, nil, glyff("glyf: stream sizes exceed table length")
		}
	}
	nContourStream := NewReader(streams[0])
	nPointsStream := NewReader(streams[1])
	flagStream := NewReader(streams[2])
	glyphStream := NewReader(streams[3])
	compositeStream := NewReader(streams[4])
	bboxBitmap := Bitmap(streams[5])
	bboxStream := NewReader(streams[6])
	instructionStream := NewReader(streams[7])
	overlapSimpleBitmap := Bitmap(streams[8])

	locaLength := (uint32(numGlyphs) + 1) * 2
	if indexFormat != 0 {
		locaLength *= 2
	}

	glyfCap := uint64(len(b)) * 2
	if uint64(maxMemory) < glyfCap {
		glyfCap = uint64(maxMemory)
	}
	w := parse.NewBinaryWriter(make([]byte, 0, glyfCap))
	loca := parse.NewBinaryWriter(make([]byte, 0, locaLength))
	writeLoca := func(offset uint32) error {
		if indexFormat == 0 {
			if math.MaxUint16 < offset>>1 {
				return glyff("loca: glyf table too large for short offsets")
			}
			loca.WriteUint16(uint16(offset >> 1))
		} else {
			loca.WriteUint32(offset)
		}
		return nil
	}

	var zeros [3]byte
	for iGlyph := 0; iGlyph < int(numGlyphs); iGlyph++ {
		if err := writeLoca(uint32(w.Len())); err != nil {
			return nil, nil, err
		}

		explicitBbox := bboxBitmap.Get(iGlyph)
		nContours, _ := nContourStream.ReadInt16() // size checked above
		if nContours == 0 {
			// empty glyph
			if explicitBbox {
				return nil, nil, glyff("glyf: empty glyph %d cannot have bbox definition", iGlyph)
			}
			continue
		} else if 0 < nContours {
			// simple glyph
			endPtsOfContours := make([]uint16, nContours)
			var nPoints uint32
			for iContour := range endPtsOfContours {
				nPoint, err := nPointsStream.Read255Uint16()
				if err != nil {
					return nil, nil, glyff("glyf: nPointsStream exhausted at glyph %d", iGlyph)
				}
				nPoints += uint32(nPoint)
				if math.MaxUint16 < nPoints {
					return nil, nil, glyff("glyf: bad number of points for glyph %d", iGlyph)
				}
				endPtsOfContours[iContour] = uint16(nPoints - 1) // 0xFFFF for leading empty contours
			}
			if uint32(flagStream.Len()) < nPoints {
				return nil, nil, glyff("glyf: flagStream exhausted at glyph %d", iGlyph)
			}

			points, err := decodePoints(flagStream, glyphStream, int(nPoints))
			if err != nil {
				return nil, nil, glyff("glyf: glyph %d: %v", iGlyph, err)
			}

			var xMin, yMin, xMax, yMax int16
			if explicitBbox {
				if xMin, yMin, xMax, yMax, err = readBbox(bboxStream); err != nil {
					return nil, nil, glyff("glyf: bboxStream exhausted at glyph %d", iGlyph)
				}
			} else {
				xMin, yMin, xMax, yMax = pointsBbox(points)
			}

			instructionLength, err := glyphStream.Read255Uint16()
			if err != nil {
				return nil, nil, glyff("glyf: glyphStream exhausted at glyph %d", iGlyph)
			}
			instructions, err := instructionStream.ReadBytes(uint32(instructionLength))
			if err != nil {
				return nil, nil, glyff("glyf: instructionStream exhausted at glyph %d", iGlyph)
			}

			// write simple glyph definition
			w.WriteInt16(nContours) // numberOfContours
			w.WriteInt16(xMin)
			w.WriteInt16(yMin)
			w.WriteInt16(xMax)
			w.WriteInt16(yMax)
			for _, endPtsOfContour := range endPtsOfContours {
				w.WriteUint16(endPtsOfContour)
			}
			w.WriteUint16(instructionLength)
			w.WriteBytes(instructions)
			writePoints(w, points, overlapSimpleBitmap.Get(iGlyph))
		} else if nContours == -1 {
			// composite glyph
			if !explicitBbox {
				return nil, nil, glyff("glyf: composite glyph %d must have bbox definition", iGlyph)
			}
			xMin, yMin, xMax, yMax, err := readBbox(bboxStream)
			if err != nil {
				return nil, nil, glyff("glyf: bboxStream exhausted at glyph %d", iGlyph)
			}

			// write composite glyph definition
			w.WriteInt16(nContours) // numberOfContours
			w.WriteInt16(xMin)
			w.WriteInt16(yMin)
			w.WriteInt16(xMax)
			w.WriteInt16(yMax)

			hasInstructions := false
			for {
				compositeFlag, err := compositeStream.ReadUint16()
				if err != nil {
					return nil, nil, glyff("glyf: compositeStream exhausted at glyph %d", iGlyph)
				}

				// glyphIndex and two arguments
				numBytes := uint32(4)
				if compositeFlag&compositeArgsAreWords != 0 {
					numBytes += 2
				}
				if compositeFlag&compositeHaveScale != 0 {
					numBytes += 2
				} else if compositeFlag&compositeHaveXYScales != 0 {
					numBytes += 4
				} else if compositeFlag&compositeHave2By2 != 0 {
					numBytes += 8
				}
				component, err := compositeStream.ReadBytes(numBytes)
				if err != nil {
					return nil, nil, glyff("glyf: compositeStream exhausted at glyph %d", iGlyph)
				} else if glyphIndex := uint16(component[0])<<8 | uint16(component[1]); numGlyphs <= glyphIndex {
					return nil, nil, glyff("glyf: composite glyph %d references bad glyph %d", iGlyph, glyphIndex)
				}

				w.WriteUint16(compositeFlag)
				w.WriteBytes(component)

				if compositeFlag&compositeHaveInstructions != 0 {
					hasInstructions = true
				}
				if compositeFlag&compositeMoreComponents == 0 {
					break
				}
			}

			if hasInstructions {
				instructionLength, err := glyphStream.Read255Uint16()
				if err != nil {
					return nil, nil, glyff("glyf: glyphStream exhausted at glyph %d", iGlyph)
				}
				instructions, err := instructionStream.ReadBytes(uint32(instructionLength))
				if err != nil {
					return nil, nil, glyff("glyf: instructionStream exhausted at glyph %d", iGlyph)
				}
				w.WriteUint16(instructionLength)
				w.WriteBytes(instructions)
			}
		} else {
			return nil, nil, glyff("glyf: bad number of contours %d for glyph %d", nContours, iGlyph)
		}

		// offsets for loca table should be 4-byte aligned
		w.WriteBytes(zeros[:padding(uint64(w.Len()))])
		if uint64(maxMemory) < uint64(w.Len()) {
			return nil, nil, errorf(ExceedsMemory, "glyf: reconstructed table exceeds memory limit")
		}
	}

	// last entry in loca table
	if err := writeLoca(uint32(w.Len())); err != nil {
		return nil, nil, err
	}
	return w.Bytes(), loca.Bytes(), nil
}

func readBbox(r *Reader) (xMin, yMin, xMax, yMax int16, err error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return
	}
	xMin = int16(uint16(b[0])<<8 | uint16(b[1]))
	yMin = int16(uint16(b[2])<<8 | uint16(b[3]))
	xMax = int16(uint16(b[4])<<8 | uint16(b[5]))
	yMax = int16(uint16(b[6])<<8 | uint16(b[7]))
	return
}

func withSign(flag byte, v int32) int32 {
	if flag&0x01 != 0 {
		return v // positive if bit is set
	}
	return -v
}

// decodePoints reads n points from the flag and glyph streams, converting the triplet-encoded deltas into absolute coordinates. Coordinates must stay within the int16 range.
func decodePoints(flagStream, glyphStream *Reader, n int) ([]glyfPoint, error) {
	// used for reference: https://github.com/google/woff2/blob/master/src/woff2_dec.cc
	points := make([]glyfPoint, n)
	var x, y int32
	for i := range points {
		flag, err := flagStream.ReadUint8()
		if err != nil {
			return nil, err
		}
		onCurve := flag&0x80 == 0
		flag &= 0x7F

		var nBytes uint32
		if flag < 84 {
			nBytes = 1
		} else if flag < 120 {
			nBytes = 2
		} else if flag < 124 {
			nBytes = 3
		} else {
			nBytes = 4
		}
		d, err := glyphStream.ReadBytes(nBytes)
		if err != nil {
			return nil, err
		}

		var dx, dy int32
		if flag < 10 {
			dy = withSign(flag, int32(flag&0x0E)<<7+int32(d[0]))
		} else if flag < 20 {
			dx = withSign(flag, int32((flag-10)&0x0E)<<7+int32(d[0]))
		} else if flag < 84 {
			b0 := flag - 20
			dx = withSign(flag, 1+int32(b0&0x30)+int32(d[0]>>4))
			dy = withSign(flag>>1, 1+int32(b0&0x0C)<<2+int32(d[0]&0x0F))
		} else if flag < 120 {
			b0 := flag - 84
			dx = withSign(flag, 1+int32(b0/12)<<8+int32(d[0]))
			dy = withSign(flag>>1, 1+int32((b0%12)>>2)<<8+int32(d[1]))
		} else if flag < 124 {
			dx = withSign(flag, int32(d[0])<<4+int32(d[1]>>4))
			dy = withSign(flag>>1, int32(d[1]&0x0F)<<8+int32(d[2]))
		} else {
			dx = withSign(flag, int32(d[0])<<8+int32(d[1]))
			dy = withSign(flag>>1, int32(d[2])<<8+int32(d[3]))
		}

		x += dx
		y += dy
		if x < math.MinInt16 || math.MaxInt16 < x || y < math.MinInt16 || math.MaxInt16 < y {
			return nil, ErrGlyfReconstruction
		}
		points[i] = glyfPoint{x, y, onCurve}
	}
	return points, nil
}

func pointsBbox(points []glyfPoint) (xMin, yMin, xMax, yMax int16) {
	if len(points) == 0 {
		return 0, 0, 0, 0
	}
	x0, y0, x1, y1 := points[0].x, points[0].y, points[0].x, points[0].y
	for _, p := range points[1:] {
		if p.x < x0 {
			x0 = p.x
		} else if x1 < p.x {
			x1 = p.x
		}
		if p.y < y0 {
			y0 = p.y
		} else if y1 < p.y {
			y1 = p.y
		}
	}
	return int16(x0), int16(y0), int16(x1), int16(y1)
}

// writePoints writes the flags and coordinates of a simple glyph in the most compact form: short vectors where possible, omitted coordinates when unchanged, and runs of equal flags using REPEAT.
func writePoints(w *parse.BinaryWriter, points []glyfPoint, overlapSimple bool) {
	flags := make([]byte, 0, len(points))
	xs := make([]byte, 0, 2*len(points))
	ys := make([]byte, 0, 2*len(points))

	lastFlag := -1
	repeat := 0
	var lastX, lastY int32
	for i, p := range points {
		var flag byte
		if p.onCurve {
			flag |= glyfOnCurve
		}
		if overlapSimple && i == 0 {
			flag |= glyfOverlapSimple
		}

		dx, dy := p.x-lastX, p.y-lastY
		if dx == 0 {
			flag |= glyfThisXIsSame
		} else if -256 < dx && dx < 256 {
			flag |= glyfXShort
			if 0 < dx {
				flag |= glyfThisXIsSame
			} else {
				dx = -dx
			}
			xs = append(xs, byte(dx))
		} else {
			// deltas beyond the int16 range wrap, which is exact under the int16 arithmetic of glyf coordinates
			xs = append(xs, byte(dx>>8), byte(dx))
		}
		if dy == 0 {
			flag |= glyfThisYIsSame
		} else if -256 < dy && dy < 256 {
			flag |= glyfYShort
			if 0 < dy {
				flag |= glyfThisYIsSame
			} else {
				dy = -dy
			}
			ys = append(ys, byte(dy))
		} else {
			ys = append(ys, byte(dy>>8), byte(dy))
		}

		if int(flag) == lastFlag && repeat != 255 {
			flags[len(flags)-1] |= glyfRepeat
			repeat++
		} else {
			if repeat != 0 {
				flags = append(flags, byte(repeat))
			}
			flags = append(flags, flag)
			repeat = 0
		}
		lastFlag = int(flag)
		lastX, lastY = p.x, p.y
	}
	if repeat != 0 {
		flags = append(flags, byte(repeat))
	}
	w.WriteBytes(flags)
	w.WriteBytes(xs)
	w.WriteBytes(ys)
}
