// Package png implements a from-scratch decoder for the PNG container
// format (ISO/IEC 15948): chunk framing, IHDR/PLTE/IDAT/tRNS/IEND parsing,
// scanline filter reversal, Adam7 de-interlacing, and transparency
// expansion into image.Image.
package png

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image/color"
)

// Errors returned while parsing a PNG stream.
var (
	ErrMalformedHeader    = errors.New("png: malformed signature or IHDR")
	ErrCorruptedChunk     = errors.New("png: corrupted chunk")
	ErrUnsupportedFeature = errors.New("png: unsupported feature")
	ErrDecoderState       = errors.New("png: invalid decoder state")
	ErrTruncation         = errors.New("png: truncated stream")
)

var signature = [8]byte{137, 80, 78, 71, 13, 10, 26, 10}

// ColorType mirrors the PNG IHDR color type byte.
type ColorType uint8

const (
	ColorGrayscale      ColorType = 0
	ColorTrueColor      ColorType = 2
	ColorIndexed        ColorType = 3
	ColorGrayscaleAlpha ColorType = 4
	ColorTrueColorAlpha ColorType = 6
)

// chunk is one length-prefixed, CRC-checked record of the chunk stream.
type chunk struct {
	kind [4]byte
	data []byte
}

// readChunks walks the chunk stream starting right after the 8-byte
// signature, verifying each chunk's CRC32 over type||payload and invoking
// fn for every chunk in file order, including IEND. It stops after IEND or
// on the first malformed chunk.
func readChunks(data []byte, fn func(c chunk) error) error {
	pos := 0
	sawIEND := false
	for pos < len(data) {
		if len(data)-pos < 8 {
			return fmt.Errorf("png: %w: chunk header", ErrTruncation)
		}
		length := binary.BigEndian.Uint32(data[pos : pos+4])
		kindStart := pos + 4
		dataStart := kindStart + 4
		dataEnd := dataStart + int(length)
		crcEnd := dataEnd + 4
		if crcEnd > len(data) || dataEnd < dataStart {
			return fmt.Errorf("png: %w: chunk length %d exceeds remaining data", ErrCorruptedChunk, length)
		}

		var c chunk
		copy(c.kind[:], data[kindStart:dataStart])
		c.data = data[dataStart:dataEnd]

		want := binary.BigEndian.Uint32(data[dataEnd:crcEnd])
		got := crc32.ChecksumIEEE(data[kindStart:dataEnd])
		if got != want {
			return fmt.Errorf("png: %w: CRC mismatch in chunk %q", ErrCorruptedChunk, c.kind)
		}

		if err := fn(c); err != nil {
			return err
		}
		if c.kind == ([4]byte{'I', 'E', 'N', 'D'}) {
			sawIEND = true
			pos = crcEnd
			break
		}
		pos = crcEnd
	}
	if !sawIEND {
		return fmt.Errorf("png: %w: missing IEND", ErrTruncation)
	}
	return nil
}

// Features records which ancillary chunks and properties were present, for
// callers that want to introspect a decoded image beyond its pixels.
type Features struct {
	HasGamma       bool
	HasTransparent bool
	HasICCProfile  bool
	ICCProfileName string
	HasText        bool
	HasTime        bool
	HasPhysicalDim bool
}

// Decoder holds the parsed state of one PNG image, built incrementally by
// Decode and finished by Reconstruct.
type Decoder struct {
	Width, Height int
	Depth         int
	ColorType     ColorType
	Interlace     uint8

	Palette []paletteEntry
	trns    []byte // raw tRNS payload, interpretation depends on ColorType

	idat []byte

	Features Features

	raw16 []uint16 // untruncated depth-16 samples, row-major, populated by Reconstruct
}

// PaletteColorModel builds the color.Palette implied by the parsed PLTE
// (and, if present, tRNS) chunks, for callers that want an image.ColorModel
// before Reconstruct has produced pixels.
func (d *Decoder) PaletteColorModel() color.Palette {
	pal := make(color.Palette, len(d.Palette))
	for i, p := range d.Palette {
		pal[i] = color.RGBA{R: p.R, G: p.G, B: p.B, A: p.A}
	}
	d.applyPaletteTRNS(pal)
	return pal
}

// Raw16 returns the untruncated 16-bit-per-sample pixel data for a depth-16
// image, row-major with the image's channel count interleaved per pixel
// (e.g. R,G,B,R,G,B,... for truecolor). It is nil for any image whose depth
// is not 16, or before Reconstruct has been called.
func (d *Decoder) Raw16() []uint16 {
	return d.raw16
}

type paletteEntry struct {
	R, G, B, A uint8
}

// Decode parses a complete PNG byte stream's container structure (chunks,
// IHDR fields, accumulated IDAT) without yet running DEFLATE or filter
// reversal; call Reconstruct on the result to materialize pixels.
func Decode(data []byte) (*Decoder, error) {
	if len(data) < 8 || [8]byte(data[:8]) != signature {
		return nil, fmt.Errorf("png: %w: signature", ErrMalformedHeader)
	}

	d := &Decoder{}
	sawIHDR := false
	sawPLTE := false
	sawIDAT := false

	err := readChunks(data[8:], func(c chunk) error {
		switch c.kind {
		case [4]byte{'I', 'H', 'D', 'R'}:
			if sawIHDR {
				return fmt.Errorf("png: %w: duplicate IHDR", ErrDecoderState)
			}
			if err := d.parseIHDR(c.data); err != nil {
				return err
			}
			sawIHDR = true
		case [4]byte{'P', 'L', 'T', 'E'}:
			if !sawIHDR {
				return fmt.Errorf("png: %w: PLTE before IHDR", ErrDecoderState)
			}
			if sawIDAT {
				return fmt.Errorf("png: %w: PLTE after IDAT", ErrDecoderState)
			}
			if err := d.parsePLTE(c.data); err != nil {
				return err
			}
			sawPLTE = true
		case [4]byte{'t', 'R', 'N', 'S'}:
			if !sawIHDR {
				return fmt.Errorf("png: %w: tRNS before IHDR", ErrDecoderState)
			}
			if d.ColorType == ColorGrayscaleAlpha || d.ColorType == ColorTrueColorAlpha {
				return fmt.Errorf("png: %w: tRNS with color type %d", ErrUnsupportedFeature, d.ColorType)
			}
			d.trns = append([]byte(nil), c.data...)
			d.Features.HasTransparent = true
		case [4]byte{'I', 'D', 'A', 'T'}:
			if !sawIHDR {
				return fmt.Errorf("png: %w: IDAT before IHDR", ErrDecoderState)
			}
			if d.ColorType == ColorIndexed && !sawPLTE {
				return fmt.Errorf("png: %w: indexed image missing PLTE", ErrDecoderState)
			}
			d.idat = append(d.idat, c.data...)
			sawIDAT = true
		case [4]byte{'I', 'E', 'N', 'D'}:
			// nothing to do; readChunks stops after this.
		case [4]byte{'g', 'A', 'M', 'A'}:
			d.Features.HasGamma = true
		case [4]byte{'i', 'C', 'C', 'P'}:
			d.Features.HasICCProfile = true
			if i := bytes.IndexByte(c.data, 0); i >= 0 {
				d.Features.ICCProfileName = string(c.data[:i])
			}
		case [4]byte{'t', 'E', 'X', 't'}, [4]byte{'z', 'T', 'X', 't'}, [4]byte{'i', 'T', 'X', 't'}:
			d.Features.HasText = true
		case [4]byte{'t', 'I', 'M', 'E'}:
			d.Features.HasTime = true
		case [4]byte{'p', 'H', 'Y', 's'}:
			d.Features.HasPhysicalDim = true
		default:
			// cHRM, sBIT, bKGD, hIST, and any unrecognized chunk: skip.
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !sawIHDR {
		return nil, fmt.Errorf("png: %w: missing IHDR", ErrMalformedHeader)
	}
	return d, nil
}

func (d *Decoder) parseIHDR(data []byte) error {
	if len(data) != 13 {
		return fmt.Errorf("png: %w: IHDR length %d", ErrMalformedHeader, len(data))
	}
	d.Width = int(binary.BigEndian.Uint32(data[0:4]))
	d.Height = int(binary.BigEndian.Uint32(data[4:8]))
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("png: %w: non-positive dimensions", ErrMalformedHeader)
	}
	d.Depth = int(data[8])
	d.ColorType = ColorType(data[9])
	compression := data[10]
	filter := data[11]
	d.Interlace = data[12]

	if compression != 0 {
		return fmt.Errorf("png: %w: compression method %d", ErrUnsupportedFeature, compression)
	}
	if filter != 0 {
		return fmt.Errorf("png: %w: filter method %d", ErrUnsupportedFeature, filter)
	}
	if d.Interlace > 1 {
		return fmt.Errorf("png: %w: interlace method %d", ErrUnsupportedFeature, d.Interlace)
	}
	if d.ColorType == ColorIndexed && d.Depth == 16 {
		return fmt.Errorf("png: %w: indexed depth 16", ErrUnsupportedFeature)
	}
	if !validDepthForColorType(d.Depth, d.ColorType) {
		return fmt.Errorf("png: %w: depth %d invalid for color type %d", ErrMalformedHeader, d.Depth, d.ColorType)
	}
	return nil
}

func validDepthForColorType(depth int, ct ColorType) bool {
	switch ct {
	case ColorGrayscale:
		return depth == 1 || depth == 2 || depth == 4 || depth == 8 || depth == 16
	case ColorTrueColor, ColorGrayscaleAlpha, ColorTrueColorAlpha:
		return depth == 8 || depth == 16
	case ColorIndexed:
		return depth == 1 || depth == 2 || depth == 4 || depth == 8
	default:
		return false
	}
}

func (d *Decoder) parsePLTE(data []byte) error {
	if len(data)%3 != 0 {
		return fmt.Errorf("png: %w: PLTE length %d not a multiple of 3", ErrCorruptedChunk, len(data))
	}
	n := len(data) / 3
	d.Palette = make([]paletteEntry, n)
	for i := 0; i < n; i++ {
		d.Palette[i] = paletteEntry{R: data[3*i], G: data[3*i+1], B: data[3*i+2], A: 255}
	}
	return nil
}
