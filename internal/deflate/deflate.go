// Package deflate implements a from-scratch RFC 1950/1951 zlib+DEFLATE
// decoder: stored, fixed, and dynamic Huffman blocks, built on
// internal/bitio and internal/huffman.
package deflate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/deepteams/sparrow/internal/bitio"
	"github.com/deepteams/sparrow/internal/huffman"
)

// Errors returned by Decode.
var (
	ErrMalformedHeader   = errors.New("deflate: malformed zlib header")
	ErrUnsupportedDict   = errors.New("deflate: preset dictionaries unsupported")
	ErrReservedBlockType = errors.New("deflate: reserved block type")
	ErrDecoderState      = errors.New("deflate: invalid decoder state")
	ErrTruncation        = errors.New("deflate: truncated input")
	ErrBadStoredLength   = errors.New("deflate: stored block length mismatch")
	ErrBadAdler32        = errors.New("deflate: adler-32 checksum mismatch")
)

// Options configures a Decode call.
type Options struct {
	// StrictAdler, when true, verifies the trailing zlib Adler-32 checksum
	// and returns ErrBadAdler32 on mismatch. Off by default: PNG chunk
	// CRCs already cover the same bytes, so most callers skip the second
	// checksum pass.
	StrictAdler bool
}

var (
	fixedOnce     sync.Once
	fixedLitTree  *huffman.Tree
	fixedDistTree *huffman.Tree
)

// buildFixedTables builds the BTYPE=01 literal/length and distance trees
// exactly once, on first use, since every fixed block in every stream
// shares the same two tables.
func buildFixedTables() {
	lit, err := huffman.BuildCanonical(fixedLitLenLengths(), true)
	if err != nil {
		panic("deflate: invalid fixed literal/length table: " + err.Error())
	}
	dist, err := huffman.BuildCanonical(fixedDistLengths(), true)
	if err != nil {
		panic("deflate: invalid fixed distance table: " + err.Error())
	}
	fixedLitTree, fixedDistTree = lit, dist
}

// Decode decompresses a zlib-framed (RFC 1950) DEFLATE (RFC 1951) stream and
// returns the raw decompressed bytes.
func Decode(data []byte, opts Options) ([]byte, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("deflate: %w: zlib header", ErrTruncation)
	}
	cmf, flg := data[0], data[1]
	if (int(cmf)*256+int(flg))%31 != 0 {
		return nil, fmt.Errorf("deflate: %w: header checksum", ErrMalformedHeader)
	}
	if cmf&0x0F != 8 {
		return nil, fmt.Errorf("deflate: %w: compression method %d", ErrMalformedHeader, cmf&0x0F)
	}
	if flg&0x20 != 0 {
		return nil, fmt.Errorf("deflate: %w", ErrUnsupportedDict)
	}

	br := bitio.NewLSB(data, 2)
	out := make([]byte, 0, len(data)*3)

	for {
		bfinal := br.ReadBit()
		btype := br.ReadBits(2)

		var err error
		out, err = decodeBlock(br, out, btype)
		if err != nil {
			return nil, err
		}
		if bfinal == 1 {
			break
		}
	}

	if opts.StrictAdler {
		if err := verifyAdler32(br, out); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func decodeBlock(br *bitio.Reader, out []byte, btype uint32) ([]byte, error) {
	switch btype {
	case 0:
		return decodeStoredBlock(br, out)
	case 1:
		fixedOnce.Do(buildFixedTables)
		return decodeHuffmanBlock(br, out, fixedLitTree, fixedDistTree)
	case 2:
		litTree, distTree, err := readDynamicTables(br)
		if err != nil {
			return nil, err
		}
		return decodeHuffmanBlock(br, out, litTree, distTree)
	default:
		return nil, fmt.Errorf("deflate: %w", ErrReservedBlockType)
	}
}

func decodeStoredBlock(br *bitio.Reader, out []byte) ([]byte, error) {
	br.AlignByte()
	lenBytes, ok := br.ReadRawBytes(4)
	if !ok || len(lenBytes) < 4 {
		return nil, fmt.Errorf("deflate: %w: stored block header", ErrTruncation)
	}
	length := int(lenBytes[0]) | int(lenBytes[1])<<8
	nlength := int(lenBytes[2]) | int(lenBytes[3])<<8
	if length != (^nlength & 0xFFFF) {
		return nil, fmt.Errorf("deflate: %w", ErrBadStoredLength)
	}
	payload, ok := br.ReadRawBytes(length)
	if !ok {
		return nil, fmt.Errorf("deflate: %w: stored block payload", ErrTruncation)
	}
	return append(out, payload...), nil
}

func readDynamicTables(br *bitio.Reader) (lit, dist *huffman.Tree, err error) {
	hlit := int(br.ReadBits(5)) + 257
	hdist := int(br.ReadBits(5)) + 1
	hclen := int(br.ReadBits(4)) + 4

	var clLengths [19]int
	for i := 0; i < hclen; i++ {
		clLengths[codeLengthOrder[i]] = int(br.ReadBits(3))
	}
	clTree, err := huffman.BuildCanonical(clLengths[:], true)
	if err != nil {
		return nil, nil, fmt.Errorf("deflate: %w: code-length table: %v", ErrDecoderState, err)
	}

	lengths := make([]int, hlit+hdist)
	i := 0
	for i < len(lengths) {
		sym, ok := clTree.Find(br)
		if !ok {
			return nil, nil, fmt.Errorf("deflate: %w: code-length symbol", ErrDecoderState)
		}
		switch {
		case sym < 16:
			lengths[i] = sym
			i++
		case sym == 16:
			if i == 0 {
				return nil, nil, fmt.Errorf("deflate: %w: repeat with no previous length", ErrDecoderState)
			}
			repeat := 3 + int(br.ReadBits(2))
			prev := lengths[i-1]
			for r := 0; r < repeat && i < len(lengths); r++ {
				lengths[i] = prev
				i++
			}
		case sym == 17:
			repeat := 3 + int(br.ReadBits(3))
			i += repeat
		case sym == 18:
			repeat := 11 + int(br.ReadBits(7))
			i += repeat
		default:
			return nil, nil, fmt.Errorf("deflate: %w: code-length symbol %d", ErrDecoderState, sym)
		}
	}
	if i > len(lengths) {
		return nil, nil, fmt.Errorf("deflate: %w: code-length overrun", ErrDecoderState)
	}

	litLengths := lengths[:hlit]
	distLengths := lengths[hlit:]

	lit, err = huffman.BuildCanonical(litLengths, true)
	if err != nil {
		return nil, nil, fmt.Errorf("deflate: %w: literal/length table: %v", ErrDecoderState, err)
	}
	dist, err = huffman.BuildCanonical(distLengths, true)
	if err != nil {
		return nil, nil, fmt.Errorf("deflate: %w: distance table: %v", ErrDecoderState, err)
	}
	return lit, dist, nil
}

func decodeHuffmanBlock(br *bitio.Reader, out []byte, lit, dist *huffman.Tree) ([]byte, error) {
	for {
		sym, ok := lit.Find(br)
		if !ok {
			return nil, fmt.Errorf("deflate: %w: literal/length symbol", ErrDecoderState)
		}
		switch {
		case sym < 256:
			out = append(out, byte(sym))
		case sym == 256:
			return out, nil
		case sym <= 285:
			idx := sym - 257
			length := lengthBase[idx] + int(br.ReadBits(lengthExtraBits[idx]))

			dsym, ok := dist.Find(br)
			if !ok {
				return nil, fmt.Errorf("deflate: %w: distance symbol", ErrDecoderState)
			}
			if dsym > 29 {
				return nil, fmt.Errorf("deflate: %w: distance symbol %d", ErrDecoderState, dsym)
			}
			distance := distBase[dsym] + int(br.ReadBits(distExtraBits[dsym]))
			if distance > len(out) {
				return nil, fmt.Errorf("deflate: %w: distance %d exceeds output length %d", ErrDecoderState, distance, len(out))
			}
			out = copyBackref(out, distance, length)
		default:
			return nil, fmt.Errorf("deflate: %w: literal/length symbol %d", ErrDecoderState, sym)
		}
	}
}

// copyBackref appends length bytes to out, each copied from distance bytes
// before the (growing) end of out. The source region can itself include
// bytes just appended by this same call (distance < length), so a single
// copy() is unsafe; instead copy the distance-wide span that exists, then
// keep doubling the copied region until length is reached.
func copyBackref(out []byte, distance, length int) []byte {
	start := len(out)
	out = append(out, make([]byte, length)...)
	src := start - distance

	if distance >= length {
		copy(out[start:start+length], out[src:src+length])
		return out
	}
	copy(out[start:start+distance], out[src:src+distance])
	copied := distance
	for copied < length {
		n := copied
		if n > length-copied {
			n = length - copied
		}
		copy(out[start+copied:start+copied+n], out[start:start+n])
		copied += n
	}
	return out
}
