// Package sparrow decodes PNG images from scratch — chunk framing, zlib/
// DEFLATE inflation, scanline filter reversal, and Adam7 de-interlacing —
// without depending on image/png or compress/flate. For JPEG input it
// parses marker segments far enough to report frame dimensions through
// DecodeConfig and GetFeatures; entropy-coded scan decoding is not
// implemented.
package sparrow

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/deepteams/sparrow/internal/jpeg"
	"github.com/deepteams/sparrow/internal/png"
)

// Errors returned by Decode, DecodeConfig, and GetFeatures.
var (
	ErrUnsupported            = errors.New("sparrow: unsupported input")
	ErrJPEGEntropyUnsupported = errors.New("sparrow: JPEG entropy-coded scan decoding is not implemented")
)

var pngSignature = []byte{137, 80, 78, 71, 13, 10, 26, 10}
var jpegSOI = []byte{0xFF, 0xD8}

func sniff(data []byte) string {
	switch {
	case bytes.HasPrefix(data, pngSignature):
		return "png"
	case bytes.HasPrefix(data, jpegSOI):
		return "jpeg"
	default:
		return ""
	}
}

func readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("sparrow: reading input: %w", err)
	}
	return data, nil
}

// Decode reads a PNG image from r and returns it as an image.Image. JPEG
// input is recognized but always rejected with ErrJPEGEntropyUnsupported;
// DecodeConfig and GetFeatures report JPEG frame dimensions.
func Decode(r io.Reader) (image.Image, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, err
	}
	switch sniff(data) {
	case "png":
		dec, err := png.Decode(data)
		if err != nil {
			return nil, err
		}
		return dec.Reconstruct(false)
	case "jpeg":
		return nil, ErrJPEGEntropyUnsupported
	default:
		return nil, fmt.Errorf("sparrow: %w", ErrUnsupported)
	}
}

// DecodeConfig reads all of r and reports image dimensions and color
// model, without inflating or reconstructing pixel data.
func DecodeConfig(r io.Reader) (image.Config, error) {
	data, err := readAll(r)
	if err != nil {
		return image.Config{}, err
	}
	switch sniff(data) {
	case "png":
		dec, err := png.Decode(data)
		if err != nil {
			return image.Config{}, err
		}
		return image.Config{
			ColorModel: colorModelFor(dec),
			Width:      dec.Width,
			Height:     dec.Height,
		}, nil
	case "jpeg":
		hr, err := jpeg.ParseHeaders(data)
		if err != nil {
			return image.Config{}, err
		}
		return image.Config{ColorModel: color.YCbCrModel, Width: hr.Width, Height: hr.Height}, nil
	default:
		return image.Config{}, fmt.Errorf("sparrow: %w", ErrUnsupported)
	}
}

// Features reports caller-visible metadata about a decoded image without
// requiring a type assertion on the underlying image.Image.
type Features struct {
	Width, Height int
	ColorType     string
	BitDepth      int
	Interlaced    bool
	HasAlpha      bool
	HasICCProfile bool
	HasGamma      bool
	Format        string // "png" or "jpeg-header-only"
}

// GetFeatures reports structural metadata about a PNG or JPEG input. JPEG
// input reports Format "jpeg-header-only" since no pixel data is ever
// produced for it.
func GetFeatures(r io.Reader) (*Features, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, err
	}
	switch sniff(data) {
	case "png":
		dec, err := png.Decode(data)
		if err != nil {
			return nil, err
		}
		return &Features{
			Width:         dec.Width,
			Height:        dec.Height,
			ColorType:     colorTypeName(dec.ColorType),
			BitDepth:      dec.Depth,
			Interlaced:    dec.Interlace == 1,
			HasAlpha:      dec.ColorType == png.ColorGrayscaleAlpha || dec.ColorType == png.ColorTrueColorAlpha || dec.Features.HasTransparent,
			HasICCProfile: dec.Features.HasICCProfile,
			HasGamma:      dec.Features.HasGamma,
			Format:        "png",
		}, nil
	case "jpeg":
		hr, err := jpeg.ParseHeaders(data)
		if err != nil {
			return nil, err
		}
		return &Features{
			Width:    hr.Width,
			Height:   hr.Height,
			BitDepth: 8,
			Format:   "jpeg-header-only",
		}, nil
	default:
		return nil, fmt.Errorf("sparrow: %w", ErrUnsupported)
	}
}

func colorTypeName(ct png.ColorType) string {
	switch ct {
	case png.ColorGrayscale:
		return "grayscale"
	case png.ColorTrueColor:
		return "truecolor"
	case png.ColorIndexed:
		return "indexed"
	case png.ColorGrayscaleAlpha:
		return "grayscale+alpha"
	case png.ColorTrueColorAlpha:
		return "truecolor+alpha"
	default:
		return "unknown"
	}
}

func colorModelFor(dec *png.Decoder) color.Model {
	switch dec.ColorType {
	case png.ColorGrayscale:
		if dec.Features.HasTransparent {
			return color.NRGBAModel
		}
		return color.GrayModel
	case png.ColorTrueColor:
		if dec.Features.HasTransparent {
			return color.NRGBAModel
		}
		return color.RGBAModel
	case png.ColorIndexed:
		return dec.PaletteColorModel()
	default:
		return color.NRGBAModel
	}
}

func init() {
	image.RegisterFormat("png", string(pngSignature), Decode, DecodeConfig)
}
