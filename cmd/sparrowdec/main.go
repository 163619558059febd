// Command sparrowdec decodes PNG images from the command line and reports
// JPEG header metadata, using the sparrow package exclusively (no
// image/png, no compress/flate).
//
// Usage:
//
//	sparrowdec decode [options] <input>   PNG → PPM (use "-" for stdin, -o - for stdout)
//	sparrowdec info <input>               Display decoded image metadata
package main

import (
	"bufio"
	"flag"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/colornames"

	"github.com/deepteams/sparrow"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "decode":
		err = runDecode(os.Args[2:])
	case "info":
		err = runInfo(os.Args[2:])
	case "-h", "-help", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "sparrowdec: unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "sparrowdec: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage:
  sparrowdec decode [options] <input>   Decode PNG to PPM
  sparrowdec info <input>               Display image metadata

Use "-" as input to read from stdin, "-o -" to write to stdout.
`)
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

// --- decode ---

func runDecode(args []string) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	output := fs.String("o", "", `output path (default: <input>.ppm, "-" for stdout)`)
	bg := fs.String("bg", "", "background color name or #rrggbb to flatten transparency onto (default: keep alpha out of PPM by ignoring it)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("decode: missing input file\nUsage: sparrowdec decode [options] <input>")
	}
	inputPath := fs.Arg(0)

	var bgColor color.Color
	if *bg != "" {
		c, err := parseColor(*bg)
		if err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		bgColor = c
	}

	in, err := openInput(inputPath)
	if err != nil {
		return err
	}
	defer in.Close()

	img, err := sparrow.Decode(in)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	if *output == "-" {
		return writePPM(os.Stdout, img, bgColor)
	}

	outputPath := *output
	if outputPath == "" {
		if inputPath == "-" {
			outputPath = "output.ppm"
		} else {
			base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
			outputPath = base + ".ppm"
		}
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	if err := writePPM(out, img, bgColor); err != nil {
		out.Close()
		os.Remove(outputPath)
		return fmt.Errorf("decode: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(outputPath)
		return err
	}

	fmt.Fprintf(os.Stderr, "Decoded %s → %s\n", inputPath, outputPath)
	return nil
}

// parseColor resolves a background color by name (via golang.org/x/image/
// colornames, e.g. "cornflowerblue") or literal "#rrggbb" hex.
func parseColor(s string) (color.Color, error) {
	if strings.HasPrefix(s, "#") {
		hex := strings.TrimPrefix(s, "#")
		if len(hex) != 6 {
			return nil, fmt.Errorf("invalid hex color %q", s)
		}
		var r, g, b int
		if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
			return nil, fmt.Errorf("invalid hex color %q: %w", s, err)
		}
		return color.RGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: 255}, nil
	}
	c, ok := colornames.Map[strings.ToLower(s)]
	if !ok {
		return nil, fmt.Errorf("unknown color name %q", s)
	}
	return c, nil
}

// writePPM writes img as a NetPBM P3 (ASCII) image, the simplest format
// that needs no third-party encoder and lets this CLI verify decode output
// without importing image/png. When bg is non-nil, alpha is flattened onto
// it; otherwise alpha is simply dropped (PPM carries no alpha channel).
func writePPM(w io.Writer, img image.Image, bg color.Color) error {
	bw := bufio.NewWriter(w)
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	fmt.Fprintf(bw, "P3\n%d %d\n255\n", width, height)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl := flatten(img.At(x, y), bg)
			fmt.Fprintf(bw, "%d %d %d\n", r, g, bl)
		}
	}
	return bw.Flush()
}

func flatten(c color.Color, bg color.Color) (r, g, b uint8) {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	nr, ng, nb, na := n.R, n.G, n.B, n.A
	if bg == nil || na == 255 {
		return nr, ng, nb
	}
	br, bgc, bb, _ := bg.RGBA()
	bR, bG, bB := uint8(br>>8), uint8(bgc>>8), uint8(bb>>8)
	a := float64(na) / 255
	mix := func(fg, bgv uint8) uint8 {
		return uint8(float64(fg)*a + float64(bgv)*(1-a))
	}
	return mix(nr, bR), mix(ng, bG), mix(nb, bB)
}

// --- info ---

func runInfo(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("info: missing input file\nUsage: sparrowdec info <input>")
	}
	inputPath := args[0]

	in, err := openInput(inputPath)
	if err != nil {
		return err
	}
	defer in.Close()

	feat, err := sparrow.GetFeatures(in)
	if err != nil {
		return fmt.Errorf("info: %w", err)
	}

	name := inputPath
	if inputPath == "-" {
		name = "<stdin>"
	}

	fmt.Printf("File:       %s\n", name)
	fmt.Printf("Format:     %s\n", feat.Format)
	fmt.Printf("Dimensions: %d x %d\n", feat.Width, feat.Height)
	fmt.Printf("Color type: %s\n", feat.ColorType)
	fmt.Printf("Bit depth:  %d\n", feat.BitDepth)
	fmt.Printf("Interlaced: %v\n", feat.Interlaced)
	fmt.Printf("Alpha:      %v\n", feat.HasAlpha)

	if inputPath != "-" {
		fi, err := os.Stat(inputPath)
		if err == nil {
			fmt.Printf("File size:  %d bytes\n", fi.Size())
		}
	}

	return nil
}
