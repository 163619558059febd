package png

import (
	"fmt"
	"image"
	"image/color"

	"github.com/deepteams/sparrow/internal/deflate"
)

// channelsFor returns the per-pixel channel count used by filter math,
// independent of bit depth (PNG filters always operate on whole bytes).
func channelsFor(ct ColorType) int {
	switch ct {
	case ColorGrayscale, ColorIndexed:
		return 1
	case ColorGrayscaleAlpha:
		return 2
	case ColorTrueColor:
		return 3
	case ColorTrueColorAlpha:
		return 4
	default:
		return 0
	}
}

// rowStride returns the number of encoded bytes per scanline (excluding the
// leading filter-type byte) for an image of the given width/depth/channels.
func rowStride(width, depth, channels int) int {
	bitsPerPixel := depth * channels
	return (width*bitsPerPixel + 7) / 8
}

func reconNeighborA(recon []byte, bpp, x int) byte {
	if x < bpp {
		return 0
	}
	return recon[x-bpp]
}

func reconNeighborB(prior []byte, x int) byte {
	if prior == nil {
		return 0
	}
	return prior[x]
}

func reconNeighborC(prior []byte, bpp, x int) byte {
	if prior == nil || x < bpp {
		return 0
	}
	return prior[x-bpp]
}

func paeth(a, b, c byte) byte {
	pa := absInt(int(b) - int(c))
	pb := absInt(int(a) - int(c))
	pc := absInt(int(a) + int(b) - 2*int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// unfilterRows reverses the per-scanline filters into a newly allocated
// buffer, returning the plain pixel bytes (one filter-type byte consumed per row, not
// retained in the output).
func unfilterRows(data []byte, height, stride, bpp int) ([]byte, error) {
	out := make([]byte, height*stride)
	var prior []byte
	pos := 0
	for y := 0; y < height; y++ {
		if pos >= len(data) {
			return nil, fmt.Errorf("png: %w: row %d missing filter byte", ErrTruncation, y)
		}
		filterType := data[pos]
		pos++
		if pos+stride > len(data) {
			return nil, fmt.Errorf("png: %w: row %d truncated", ErrTruncation, y)
		}
		row := out[y*stride : (y+1)*stride]
		enc := data[pos : pos+stride]
		pos += stride

		switch filterType {
		case 0: // None
			copy(row, enc)
		case 1: // Sub
			for x := 0; x < stride; x++ {
				row[x] = enc[x] + reconNeighborA(row, bpp, x)
			}
		case 2: // Up
			for x := 0; x < stride; x++ {
				row[x] = enc[x] + reconNeighborB(prior, x)
			}
		case 3: // Average
			for x := 0; x < stride; x++ {
				a := int(reconNeighborA(row, bpp, x))
				b := int(reconNeighborB(prior, x))
				row[x] = enc[x] + byte((a+b)/2)
			}
		case 4: // Paeth
			for x := 0; x < stride; x++ {
				a := reconNeighborA(row, bpp, x)
				b := reconNeighborB(prior, x)
				c := reconNeighborC(prior, bpp, x)
				row[x] = enc[x] + paeth(a, b, c)
			}
		default:
			return nil, fmt.Errorf("png: %w: filter type %d", ErrDecoderState, filterType)
		}
		prior = row
	}
	return out, nil
}

// Reconstruct inflates the accumulated IDAT stream and reverses scanline
// filtering (and, for interlaced images, Adam7 sub-image assembly),
// producing a Go image.Image. strictAdler forwards to the DEFLATE decoder's
// Options.StrictAdler.
func (d *Decoder) Reconstruct(strictAdler bool) (image.Image, error) {
	raw, err := deflate.Decode(d.idat, deflate.Options{StrictAdler: strictAdler})
	if err != nil {
		return nil, fmt.Errorf("png: inflating IDAT: %w", err)
	}

	channels := channelsFor(d.ColorType)
	if channels == 0 {
		return nil, fmt.Errorf("png: %w: color type %d", ErrUnsupportedFeature, d.ColorType)
	}
	bpp := (d.Depth*channels + 7) / 8

	var samples [][]byte // per-row sample bytes, one row per output scanline
	if d.Interlace == 1 {
		samples, err = reconstructAdam7(raw, d.Width, d.Height, d.Depth, channels)
	} else {
		stride := rowStride(d.Width, d.Depth, channels)
		var unfiltered []byte
		unfiltered, err = unfilterRows(raw, d.Height, stride, bpp)
		if err == nil {
			samples = make([][]byte, d.Height)
			for y := 0; y < d.Height; y++ {
				samples[y] = unfiltered[y*stride : (y+1)*stride]
			}
		}
	}
	if err != nil {
		return nil, err
	}

	if d.Depth == 16 {
		d.raw16 = make([]uint16, d.Width*d.Height*channels)
		for y := 0; y < d.Height; y++ {
			row := samples[y]
			for i := 0; i < d.Width*channels; i++ {
				d.raw16[y*d.Width*channels+i] = uint16(rawSampleAt(row, 16, i))
			}
		}
	}

	return d.buildImage(samples, channels)
}

// sampleAt extracts the i-th sample (0-indexed within the row, i.e. x*
// channels+channel) from a packed row at the decoder's bit depth, returning
// an 8-bit-scaled value.
func sampleAt(row []byte, depth, index int) uint8 {
	switch depth {
	case 16:
		// 8-bit output surface: keep the high byte, drop the low. Raw16
		// preserves the full samples for callers that need them.
		return row[index*2]
	case 8:
		return row[index]
	default:
		bitsPerSample := depth
		bitPos := index * bitsPerSample
		byteIdx := bitPos / 8
		shift := 8 - bitsPerSample - (bitPos % 8)
		mask := byte(1<<uint(bitsPerSample)) - 1
		raw := (row[byteIdx] >> uint(shift)) & mask
		return scaleSample(raw, depth)
	}
}

func scaleSample(raw byte, depth int) uint8 {
	switch depth {
	case 1:
		return raw * 255
	case 2:
		return raw * 85
	case 4:
		return raw * 17
	default:
		return raw
	}
}

// rawSampleAt returns the unscaled sample value (palette index, or raw
// sub-byte value before 0-255 scaling) — used for indexed lookups and
// transparency-key comparisons, which must compare against the original
// sample domain, not the display-scaled one.
func rawSampleAt(row []byte, depth, index int) int {
	switch depth {
	case 16:
		return int(row[index*2])<<8 | int(row[index*2+1])
	case 8:
		return int(row[index])
	default:
		bitPos := index * depth
		byteIdx := bitPos / 8
		shift := 8 - depth - (bitPos % 8)
		mask := byte(1<<uint(depth)) - 1
		return int((row[byteIdx] >> uint(shift)) & mask)
	}
}

func (d *Decoder) buildImage(samples [][]byte, channels int) (image.Image, error) {
	width, height := d.Width, d.Height

	switch d.ColorType {
	case ColorIndexed:
		if d.Depth == 16 {
			return nil, fmt.Errorf("png: %w: indexed depth 16", ErrUnsupportedFeature)
		}
		pal := make(color.Palette, len(d.Palette))
		for i, p := range d.Palette {
			a := p.A
			pal[i] = color.RGBA{R: p.R, G: p.G, B: p.B, A: a}
		}
		d.applyPaletteTRNS(pal)
		img := image.NewPaletted(image.Rect(0, 0, width, height), pal)
		for y := 0; y < height; y++ {
			row := samples[y]
			for x := 0; x < width; x++ {
				idx := rawSampleAt(row, d.Depth, x)
				if idx >= len(pal) {
					return nil, fmt.Errorf("png: %w: palette index %d out of range", ErrDecoderState, idx)
				}
				img.SetColorIndex(x, y, uint8(idx))
			}
		}
		return img, nil

	case ColorGrayscale:
		hasKey, key := d.grayTransparencyKey()
		if hasKey {
			img := image.NewNRGBA(image.Rect(0, 0, width, height))
			for y := 0; y < height; y++ {
				row := samples[y]
				for x := 0; x < width; x++ {
					raw := rawSampleAt(row, d.Depth, x)
					v := sampleAt(row, d.Depth, x)
					a := uint8(255)
					if raw == key {
						a = 0
					}
					img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: a})
				}
			}
			return img, nil
		}
		img := image.NewGray(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			row := samples[y]
			for x := 0; x < width; x++ {
				img.SetGray(x, y, color.Gray{Y: sampleAt(row, d.Depth, x)})
			}
		}
		return img, nil

	case ColorGrayscaleAlpha:
		img := image.NewNRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			row := samples[y]
			for x := 0; x < width; x++ {
				v := sampleAt(row, d.Depth, x*2)
				a := sampleAt(row, d.Depth, x*2+1)
				img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: a})
			}
		}
		return img, nil

	case ColorTrueColor:
		hasKey, kr, kg, kb := d.rgbTransparencyKey()
		if hasKey {
			img := image.NewNRGBA(image.Rect(0, 0, width, height))
			for y := 0; y < height; y++ {
				row := samples[y]
				for x := 0; x < width; x++ {
					r := rawSampleAt(row, d.Depth, x*3)
					g := rawSampleAt(row, d.Depth, x*3+1)
					b := rawSampleAt(row, d.Depth, x*3+2)
					a := uint8(255)
					if r == kr && g == kg && b == kb {
						a = 0
					}
					img.SetNRGBA(x, y, color.NRGBA{
						R: sampleAt(row, d.Depth, x*3),
						G: sampleAt(row, d.Depth, x*3+1),
						B: sampleAt(row, d.Depth, x*3+2),
						A: a,
					})
				}
			}
			return img, nil
		}
		img := image.NewRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			row := samples[y]
			for x := 0; x < width; x++ {
				img.SetRGBA(x, y, color.RGBA{
					R: sampleAt(row, d.Depth, x*3),
					G: sampleAt(row, d.Depth, x*3+1),
					B: sampleAt(row, d.Depth, x*3+2),
					A: 255,
				})
			}
		}
		return img, nil

	case ColorTrueColorAlpha:
		img := image.NewNRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			row := samples[y]
			for x := 0; x < width; x++ {
				img.SetNRGBA(x, y, color.NRGBA{
					R: sampleAt(row, d.Depth, x*4),
					G: sampleAt(row, d.Depth, x*4+1),
					B: sampleAt(row, d.Depth, x*4+2),
					A: sampleAt(row, d.Depth, x*4+3),
				})
			}
		}
		return img, nil

	default:
		return nil, fmt.Errorf("png: %w: color type %d", ErrUnsupportedFeature, d.ColorType)
	}
}

func (d *Decoder) applyPaletteTRNS(pal color.Palette) {
	for i, a := range d.trns {
		if i < len(pal) {
			c := pal[i].(color.RGBA)
			c.A = a
			pal[i] = c
		}
	}
}

func (d *Decoder) grayTransparencyKey() (bool, int) {
	if d.ColorType != ColorGrayscale || len(d.trns) < 2 {
		return false, 0
	}
	return true, int(d.trns[0])<<8 | int(d.trns[1])
}

func (d *Decoder) rgbTransparencyKey() (bool, int, int, int) {
	if d.ColorType != ColorTrueColor || len(d.trns) < 6 {
		return false, 0, 0, 0
	}
	r := int(d.trns[0])<<8 | int(d.trns[1])
	g := int(d.trns[2])<<8 | int(d.trns[3])
	b := int(d.trns[4])<<8 | int(d.trns[5])
	return true, r, g, b
}
