package huffman

import (
	"testing"

	"github.com/deepteams/sparrow/internal/bitio"
)

// TestBuildCanonicalRoundTrip checks that building a canonical tree from a
// length vector and walking each symbol's own code bits back through Find
// recovers the original symbol.
func TestBuildCanonicalRoundTrip(t *testing.T) {
	// Symbols 0,1,2 with lengths 1,2,2 (a valid Kraft-complete code).
	lengths := []int{1, 2, 2}
	tree, err := BuildCanonical(lengths, true)
	if err != nil {
		t.Fatalf("BuildCanonical: %v", err)
	}

	// Codes per the RFC 1951 canonical algorithm: sym0="0", sym1="10",
	// sym2="11". Code bits go onto the wire starting from the code's MSB;
	// encode that exact bit sequence and confirm Find recovers the symbol.
	cases := []struct {
		bits []uint32
		want int
	}{
		{[]uint32{0}, 0},
		{[]uint32{1, 0}, 1},
		{[]uint32{1, 1}, 2},
	}
	for _, c := range cases {
		r := bitio.NewLSB(packBitsLSB(c.bits), 0)
		got, ok := tree.Find(r)
		if !ok {
			t.Fatalf("Find failed for bits %v", c.bits)
		}
		if got != c.want {
			t.Fatalf("Find(%v) = %d, want %d", c.bits, got, c.want)
		}
	}
}

func TestBuildCanonicalSingleSymbol(t *testing.T) {
	lengths := []int{0, 1, 0}
	tree, err := BuildCanonical(lengths, true)
	if err != nil {
		t.Fatalf("BuildCanonical: %v", err)
	}
	r := bitio.NewLSB(packBitsLSB([]uint32{0}), 0)
	got, ok := tree.Find(r)
	if !ok || got != 1 {
		t.Fatalf("Find = (%d,%v), want (1,true)", got, ok)
	}
}

func TestBuildCanonicalEmptyErrors(t *testing.T) {
	if _, err := BuildCanonical([]int{0, 0, 0}, true); err != ErrEmptyLengths {
		t.Fatalf("err = %v, want ErrEmptyLengths", err)
	}
}

func TestBuildCanonicalOverSubscribedErrors(t *testing.T) {
	// One 1-bit code plus three 2-bit codes over-fills the code space
	// (Kraft sum 1/2 + 3/4 > 1); the builder must reject it rather than
	// assign a code wider than its own length field.
	if _, err := BuildCanonical([]int{1, 2, 2, 2}, true); err != ErrOverSubscribed {
		t.Fatalf("err = %v, want ErrOverSubscribed", err)
	}
}

func TestInsertExplicitDuplicateErrors(t *testing.T) {
	tree := New()
	if err := tree.InsertExplicit(0b01, 2, 5); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := tree.InsertExplicit(0b01, 2, 6); err != ErrDuplicateCode {
		t.Fatalf("err = %v, want ErrDuplicateCode", err)
	}
}

func TestBuildJPEGAssignsConsecutiveCodes(t *testing.T) {
	var counts [16]int
	counts[0] = 1 // one 1-bit code
	counts[1] = 2 // two 2-bit codes
	symbols := []byte{10, 20, 30}

	tree, err := BuildJPEG(counts, symbols)
	if err != nil {
		t.Fatalf("BuildJPEG: %v", err)
	}

	// The length-1 code is assigned first (0), then the running code shifts
	// left at the length boundary: 10 -> "0", 20 -> "10", 30 -> "11".
	check := func(bits []uint32, want int) {
		t.Helper()
		r := bitio.NewMSB(packBitsMSB(bits), 0)
		got, ok := tree.Find(r)
		if !ok || got != want {
			t.Fatalf("Find(%v) = (%d,%v), want (%d,true)", bits, got, ok, want)
		}
	}
	check([]uint32{0}, 10)
	check([]uint32{1, 0}, 20)
	check([]uint32{1, 1}, 30)
}

// packBitsLSB packs a sequence of single bits into bytes, LSB-first,
// matching how bitio.Reader (LSB mode) expects its backing bytes to be
// laid out: the first bit read occupies the lowest unconsumed bit.
func packBitsLSB(bits []uint32) []byte {
	nbytes := (len(bits) + 7) / 8
	out := make([]byte, nbytes)
	for i, b := range bits {
		if b != 0 {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// packBitsMSB packs a sequence of single bits into bytes, MSB-first within
// each byte, matching raw JPEG entropy-segment byte layout.
func packBitsMSB(bits []uint32) []byte {
	nbytes := (len(bits) + 7) / 8
	out := make([]byte, nbytes)
	for i, b := range bits {
		if b != 0 {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	return out
}
