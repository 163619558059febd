package sparrow

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"
)

func buildChunk(kind string, data []byte) []byte {
	out := make([]byte, 0, 12+len(data))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	out = append(out, lenBuf[:]...)
	out = append(out, []byte(kind)...)
	out = append(out, data...)
	crc := crc32.ChecksumIEEE(append([]byte(kind), data...))
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], crc)
	return append(out, crcBuf[:]...)
}

func storedZlib(payload []byte) []byte {
	out := []byte{0x78, 0x01, 0x01}
	length := len(payload)
	out = append(out, byte(length), byte(length>>8), byte(^length&0xFF), byte((^length>>8)&0xFF))
	return append(out, payload...)
}

func buildIHDR(width, height, depth int, colorType byte) []byte {
	data := make([]byte, 13)
	binary.BigEndian.PutUint32(data[0:4], uint32(width))
	binary.BigEndian.PutUint32(data[4:8], uint32(height))
	data[8] = byte(depth)
	data[9] = colorType
	return data
}

func buildGrayscalePNG(t *testing.T, width, height int, pixels []byte) []byte {
	t.Helper()
	ihdr := buildIHDR(width, height, 8, 0)
	raw := make([]byte, 0, height*(1+width))
	for y := 0; y < height; y++ {
		raw = append(raw, 0) // filter type None
		raw = append(raw, pixels[y*width:(y+1)*width]...)
	}

	var stream []byte
	stream = append(stream, pngSignature...)
	stream = append(stream, buildChunk("IHDR", ihdr)...)
	stream = append(stream, buildChunk("IDAT", storedZlib(raw))...)
	stream = append(stream, buildChunk("IEND", nil)...)
	return stream
}

func TestDecodeRoundTrip(t *testing.T) {
	data := buildGrayscalePNG(t, 2, 2, []byte{1, 2, 3, 4})
	img, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	r, _, _, _ := img.At(0, 0).RGBA()
	if r>>8 != 1 {
		t.Fatalf("pixel (0,0) = %d, want 1", r>>8)
	}
}

func TestDecodeConfig(t *testing.T) {
	data := buildGrayscalePNG(t, 3, 5, make([]byte, 15))
	cfg, err := DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if cfg.Width != 3 || cfg.Height != 5 {
		t.Fatalf("cfg = %dx%d, want 3x5", cfg.Width, cfg.Height)
	}
}

func TestGetFeatures(t *testing.T) {
	data := buildGrayscalePNG(t, 1, 1, []byte{42})
	feat, err := GetFeatures(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("GetFeatures: %v", err)
	}
	if feat.Format != "png" || feat.ColorType != "grayscale" || feat.BitDepth != 8 {
		t.Fatalf("feat = %+v", feat)
	}
}

func TestDecodeRejectsJPEGEntropy(t *testing.T) {
	// A minimal marker sequence beginning with SOI is enough to be sniffed
	// as JPEG; this module never attempts entropy decode regardless of
	// what follows.
	data := []byte{0xFF, 0xD8, 0xFF, 0xD9}
	_, err := Decode(bytes.NewReader(data))
	if !errors.Is(err, ErrJPEGEntropyUnsupported) {
		t.Fatalf("err = %v, want ErrJPEGEntropyUnsupported", err)
	}
}

func TestDecodeRejectsUnknownFormat(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("not an image")))
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}
