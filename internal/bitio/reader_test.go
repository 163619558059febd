package bitio

import "testing"

func TestLSBReadBitsRoundTrip(t *testing.T) {
	// 0b1011_0010, 0b0000_0001 little-endian byte order, LSB-first bit order.
	data := []byte{0xB2, 0x01}
	r := NewLSB(data, 0)

	if got := r.ReadBits(4); got != 0x2 {
		t.Fatalf("first nibble = %#x, want 0x2", got)
	}
	if got := r.ReadBits(4); got != 0xB {
		t.Fatalf("second nibble = %#x, want 0xB", got)
	}
	if got := r.ReadBits(8); got != 0x01 {
		t.Fatalf("next byte = %#x, want 0x01", got)
	}
}

func TestLSBReadBitsConsumesExactCount(t *testing.T) {
	data := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	r := NewLSB(data, 0)
	counts := []uint{3, 5, 1, 7, 2, 6, 4, 4}
	var total uint
	for _, n := range counts {
		r.ReadBits(n)
		total += n
	}
	if total != 32 {
		t.Fatalf("total bits = %d, want 32", total)
	}
	if !r.Exhausted() {
		t.Fatalf("expected exhausted reader after consuming all 32 bits")
	}
}

func TestLSBUnderflowZeroPads(t *testing.T) {
	r := NewLSB([]byte{0x01}, 0)
	r.ReadBits(8)
	got := r.ReadBits(8)
	if got != 0 {
		t.Fatalf("read past end = %#x, want 0", got)
	}
	if !r.Exhausted() {
		t.Fatalf("expected exhausted after draining single byte")
	}
}

func TestMSBReadBitsOrder(t *testing.T) {
	// 0xA5 = 1010_0101, MSB-first should yield 1,0,1,0,0,1,0,1.
	r := NewMSB([]byte{0xA5}, 0)
	want := []uint32{1, 0, 1, 0, 0, 1, 0, 1}
	for i, w := range want {
		if got := r.ReadBit(); got != w {
			t.Fatalf("bit %d = %d, want %d", i, got, w)
		}
	}
}

func TestMSBByteStuffingRemoved(t *testing.T) {
	// 0xFF 0x00 is a stuffed literal 0xFF data byte.
	r := NewMSB([]byte{0xFF, 0x00, 0xAA}, 0)
	if got := r.ReadBits(8); got != 0xFF {
		t.Fatalf("stuffed byte = %#x, want 0xFF", got)
	}
	if got := r.ReadBits(8); got != 0xAA {
		t.Fatalf("next byte = %#x, want 0xAA", got)
	}
}

func TestMSBStopsAtMarker(t *testing.T) {
	r := NewMSB([]byte{0xAA, 0xFF, 0xD9}, 0)
	r.ReadBits(8) // consume the data byte before the marker
	r.ReadBits(1) // force a refill attempt; should stop at the marker
	if !r.AtMarker() {
		t.Fatalf("expected reader to report AtMarker after hitting 0xFFD9")
	}
	ff, code := r.Marker()
	if ff != 0xFF || code != 0xD9 {
		t.Fatalf("marker = %#x %#x, want 0xFF 0xD9", ff, code)
	}
}

func TestAlignByteAndReadRawBytes(t *testing.T) {
	r := NewLSB([]byte{0xFF, 0x12, 0x34}, 0)
	r.ReadBits(3)
	r.AlignByte()
	raw, ok := r.ReadRawBytes(2)
	if !ok {
		t.Fatalf("expected full read")
	}
	if raw[0] != 0x12 || raw[1] != 0x34 {
		t.Fatalf("raw = %v, want [0x12 0x34]", raw)
	}
}
