package deflate

import (
	"fmt"
	"hash/adler32"

	"github.com/deepteams/sparrow/internal/bitio"
)

// verifyAdler32 reads the four trailing big-endian bytes following the
// final DEFLATE block (the zlib footer, RFC 1950 §2.2) and compares them
// against the Adler-32 of the bytes decoded so far.
func verifyAdler32(br *bitio.Reader, decoded []byte) error {
	br.AlignByte()
	footer, ok := br.ReadRawBytes(4)
	if !ok {
		return fmt.Errorf("deflate: %w: adler-32 footer", ErrTruncation)
	}
	want := uint32(footer[0])<<24 | uint32(footer[1])<<16 | uint32(footer[2])<<8 | uint32(footer[3])
	if adler32.Checksum(decoded) != want {
		return ErrBadAdler32
	}
	return nil
}
