// Package jpeg parses ITU-T.81 marker segments far enough to report frame
// and table metadata — quantization tables, Huffman tables, component and
// scan layout — without ever decoding an MCU. Entropy-coded scan data is
// intentionally never touched; this package exists purely for inspection,
// the JPEG analogue of png.Decode's container parsing stage.
package jpeg

import (
	"errors"
	"fmt"

	"github.com/deepteams/sparrow/internal/huffman"
)

// Errors returned while parsing JPEG marker segments.
var (
	ErrMalformedHeader    = errors.New("jpeg: malformed marker segment")
	ErrUnsupportedFeature = errors.New("jpeg: unsupported feature")
	ErrTruncation         = errors.New("jpeg: truncated stream")
)

const (
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOS  = 0xDA
	markerDQT  = 0xDB
	markerDHT  = 0xC4
	markerDRI  = 0xDD
	markerSOF0 = 0xC0
	markerSOF1 = 0xC1
	markerSOF2 = 0xC2
)

func isAPPn(marker byte) bool { return marker >= 0xE0 && marker <= 0xEF }

// Component describes one frame component's sampling factors and table
// selectors, from an SOF segment.
type Component struct {
	ID           byte
	HSampling    byte
	VSampling    byte
	QuantTableID byte
}

// ScanComponent describes one component's table selection from an SOS
// segment.
type ScanComponent struct {
	ComponentID byte
	DCTableID   byte
	ACTableID   byte
}

// JFIFInfo is parsed from an APP0 JFIF segment purely for reporting; it has
// no bearing on anything else this package does.
type JFIFInfo struct {
	Present            bool
	VersionMajor       byte
	VersionMinor       byte
	DensityUnits       byte
	XDensity, YDensity uint16
}

// HeaderReader accumulates the tables and frame/scan metadata read from one
// JPEG byte stream, up to and including the first SOS segment.
type HeaderReader struct {
	Width, Height int
	Components    []Component
	Progressive   bool

	QuantTables [4][64]uint16
	quantSet    [4]bool

	DCTables [4]*huffman.Tree
	ACTables [4]*huffman.Tree

	RestartInterval int

	ScanComponents []ScanComponent

	JFIF JFIFInfo
}

// ParseHeaders reads marker segments from data starting at SOI, stopping
// right after the first SOS header (the entropy-coded scan bytes that
// follow are never inspected).
func ParseHeaders(data []byte) (*HeaderReader, error) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != markerSOI {
		return nil, fmt.Errorf("jpeg: %w: missing SOI", ErrMalformedHeader)
	}
	hr := &HeaderReader{}
	pos := 2

	for {
		marker, next, err := nextMarker(data, pos)
		if err != nil {
			return nil, err
		}
		pos = next

		switch {
		case marker == markerEOI:
			return nil, fmt.Errorf("jpeg: %w: EOI before SOS", ErrMalformedHeader)
		case marker == markerSOS:
			pos, err = hr.readSOS(data, pos)
			if err != nil {
				return nil, err
			}
			return hr, nil
		case marker == markerDQT:
			pos, err = hr.readDQT(data, pos)
		case marker == markerDHT:
			pos, err = hr.readDHT(data, pos)
		case marker == markerSOF0 || marker == markerSOF1:
			hr.Progressive = false
			pos, err = hr.readSOF(data, pos)
		case marker == markerSOF2:
			hr.Progressive = true
			pos, err = hr.readSOF(data, pos)
		case marker == markerDRI:
			pos, err = hr.readDRI(data, pos)
		case isAPPn(marker):
			pos, err = hr.readAPPn(data, pos, marker)
		default:
			pos, err = skipSegment(data, pos)
		}
		if err != nil {
			return nil, err
		}
	}
}

// nextMarker scans forward from pos (which must point just past a prior
// marker's segment, or right after SOI) to the next 0xFF marker byte,
// skipping fill bytes (0xFF00 never appears outside entropy data, so a bare
// run of 0xFF bytes here is padding per ITU T.81 B.1.1.5), and returns the
// marker code plus the position of its first payload byte (segment length
// field).
func nextMarker(data []byte, pos int) (marker byte, next int, err error) {
	for pos < len(data) && data[pos] != 0xFF {
		pos++
	}
	for pos < len(data) && data[pos] == 0xFF {
		pos++
	}
	if pos >= len(data) {
		return 0, 0, fmt.Errorf("jpeg: %w: expected marker", ErrTruncation)
	}
	return data[pos], pos + 1, nil
}

func segmentLength(data []byte, pos int) (length, payloadStart int, err error) {
	if pos+2 > len(data) {
		return 0, 0, fmt.Errorf("jpeg: %w: segment length", ErrTruncation)
	}
	length = int(data[pos])<<8 | int(data[pos+1])
	if length < 2 || pos+length > len(data) {
		return 0, 0, fmt.Errorf("jpeg: %w: segment length %d", ErrMalformedHeader, length)
	}
	return length, pos + 2, nil
}

func skipSegment(data []byte, pos int) (int, error) {
	length, payloadStart, err := segmentLength(data, pos)
	if err != nil {
		return 0, err
	}
	return payloadStart + length - 2, nil
}

// zigzagOrder maps the 64 coefficients in zigzag transmission order to
// natural row-major order, per ITU T.81 Figure A.6.
var zigzagOrder = [64]int{
	0, 1, 8, 16, 9, 2, 3, 10,
	17, 24, 32, 25, 18, 11, 4, 5,
	12, 19, 26, 33, 40, 48, 41, 34,
	27, 20, 13, 6, 7, 14, 21, 28,
	35, 42, 49, 56, 57, 50, 43, 36,
	29, 22, 15, 23, 30, 37, 44, 51,
	58, 59, 52, 45, 38, 31, 39, 46,
	53, 60, 61, 54, 47, 55, 62, 63,
}

func (hr *HeaderReader) readDQT(data []byte, pos int) (int, error) {
	length, payloadStart, err := segmentLength(data, pos)
	if err != nil {
		return 0, err
	}
	end := payloadStart + length - 2
	p := payloadStart
	for p < end {
		pq := data[p] >> 4
		tq := data[p] & 0x0F
		p++
		if tq > 3 {
			return 0, fmt.Errorf("jpeg: %w: quant table id %d", ErrMalformedHeader, tq)
		}
		var table [64]uint16
		if pq == 0 {
			if p+64 > end {
				return 0, fmt.Errorf("jpeg: %w: DQT payload", ErrTruncation)
			}
			for i := 0; i < 64; i++ {
				table[zigzagOrder[i]] = uint16(data[p+i])
			}
			p += 64
		} else {
			if p+128 > end {
				return 0, fmt.Errorf("jpeg: %w: DQT payload", ErrTruncation)
			}
			for i := 0; i < 64; i++ {
				table[zigzagOrder[i]] = uint16(data[p+2*i])<<8 | uint16(data[p+2*i+1])
			}
			p += 128
		}
		hr.QuantTables[tq] = table
		hr.quantSet[tq] = true
	}
	return end, nil
}

func (hr *HeaderReader) readDHT(data []byte, pos int) (int, error) {
	length, payloadStart, err := segmentLength(data, pos)
	if err != nil {
		return 0, err
	}
	end := payloadStart + length - 2
	p := payloadStart
	for p < end {
		if p+17 > end {
			return 0, fmt.Errorf("jpeg: %w: DHT payload", ErrTruncation)
		}
		tc := data[p] >> 4
		th := data[p] & 0x0F
		p++
		var counts [16]int
		total := 0
		for i := 0; i < 16; i++ {
			counts[i] = int(data[p+i])
			total += counts[i]
		}
		p += 16
		if p+total > end {
			return 0, fmt.Errorf("jpeg: %w: DHT symbol list", ErrTruncation)
		}
		symbols := append([]byte(nil), data[p:p+total]...)
		p += total

		tree, err := huffman.BuildJPEG(counts, symbols)
		if err != nil {
			return 0, fmt.Errorf("jpeg: %w: DHT table: %v", ErrMalformedHeader, err)
		}
		if th > 3 {
			return 0, fmt.Errorf("jpeg: %w: huffman table id %d", ErrMalformedHeader, th)
		}
		if tc == 0 {
			hr.DCTables[th] = tree
		} else {
			hr.ACTables[th] = tree
		}
	}
	return end, nil
}

func (hr *HeaderReader) readSOF(data []byte, pos int) (int, error) {
	length, payloadStart, err := segmentLength(data, pos)
	if err != nil {
		return 0, err
	}
	end := payloadStart + length - 2
	p := payloadStart
	if p+6 > end {
		return 0, fmt.Errorf("jpeg: %w: SOF payload", ErrTruncation)
	}
	// precision byte at p is recorded implicitly by never supporting
	// anything but 8-bit baseline/extended/progressive frames.
	hr.Height = int(data[p+1])<<8 | int(data[p+2])
	hr.Width = int(data[p+3])<<8 | int(data[p+4])
	numComponents := int(data[p+5])
	p += 6
	if p+3*numComponents > end {
		return 0, fmt.Errorf("jpeg: %w: SOF component list", ErrTruncation)
	}
	hr.Components = make([]Component, numComponents)
	for i := 0; i < numComponents; i++ {
		hr.Components[i] = Component{
			ID:           data[p],
			HSampling:    data[p+1] >> 4,
			VSampling:    data[p+1] & 0x0F,
			QuantTableID: data[p+2],
		}
		p += 3
	}
	return end, nil
}

func (hr *HeaderReader) readDRI(data []byte, pos int) (int, error) {
	length, payloadStart, err := segmentLength(data, pos)
	if err != nil {
		return 0, err
	}
	if length != 4 {
		return 0, fmt.Errorf("jpeg: %w: DRI length %d", ErrMalformedHeader, length)
	}
	hr.RestartInterval = int(data[payloadStart])<<8 | int(data[payloadStart+1])
	return payloadStart + 2, nil
}

func (hr *HeaderReader) readAPPn(data []byte, pos int, marker byte) (int, error) {
	length, payloadStart, err := segmentLength(data, pos)
	if err != nil {
		return 0, err
	}
	end := payloadStart + length - 2
	if marker == 0xE0 && end-payloadStart >= 7 && string(data[payloadStart:payloadStart+5]) == "JFIF\x00" {
		p := payloadStart + 5
		hr.JFIF = JFIFInfo{
			Present:      true,
			VersionMajor: data[p],
			VersionMinor: data[p+1],
			DensityUnits: data[p+2],
			XDensity:     uint16(data[p+3])<<8 | uint16(data[p+4]),
			YDensity:     uint16(data[p+5])<<8 | uint16(data[p+6]),
		}
	}
	return end, nil
}

func (hr *HeaderReader) readSOS(data []byte, pos int) (int, error) {
	length, payloadStart, err := segmentLength(data, pos)
	if err != nil {
		return 0, err
	}
	end := payloadStart + length - 2
	p := payloadStart
	if p >= end {
		return 0, fmt.Errorf("jpeg: %w: SOS payload", ErrTruncation)
	}
	ns := int(data[p])
	p++
	if p+2*ns+3 > end {
		return 0, fmt.Errorf("jpeg: %w: SOS component list", ErrTruncation)
	}
	hr.ScanComponents = make([]ScanComponent, ns)
	for i := 0; i < ns; i++ {
		hr.ScanComponents[i] = ScanComponent{
			ComponentID: data[p],
			DCTableID:   data[p+1] >> 4,
			ACTableID:   data[p+1] & 0x0F,
		}
		p += 2
	}
	// spectral selection start/end and successive approximation bytes
	// (3 bytes) are recorded on no field; this package never drives entropy
	// decode, so they have nowhere useful to live.
	p += 3
	return p, nil
}
