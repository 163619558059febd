package png

// Adam7 interlacing: seven reduced sub-images, each independently
// filtered/unfiltered, whose samples are scattered back into the full
// image at (startCol+k*colStep, startRow+j*rowStep). Single-pixel
// placement, not the block-fill preview some progressive viewers render:
// the seven sub-lattices tile the image exactly, every coordinate written
// once.
type adam7Pass struct {
	startCol, startRow int
	colStep, rowStep   int
}

var adam7Passes = [7]adam7Pass{
	{0, 0, 8, 8},
	{4, 0, 8, 8},
	{0, 4, 4, 8},
	{2, 0, 4, 4},
	{0, 2, 2, 4},
	{1, 0, 2, 2},
	{0, 1, 1, 2},
}

func adam7PassDims(width, height int, p adam7Pass) (passWidth, passHeight int) {
	if width <= p.startCol {
		return 0, 0
	}
	if height <= p.startRow {
		return 0, 0
	}
	passWidth = (width - p.startCol + p.colStep - 1) / p.colStep
	passHeight = (height - p.startRow + p.rowStep - 1) / p.rowStep
	return
}

// reconstructAdam7 reads raw (already DEFLATE-decoded) bytes as seven
// concatenated Adam7 sub-images, each with its own filter bytes and row
// stride, and scatters their samples into full-width output rows at the
// decoder's bit depth. The returned rows are in the same packed-sample
// format unfilterRows/sampleAt expect, reassembled pass-by-pass into
// full-resolution scanlines.
func reconstructAdam7(raw []byte, width, height, depth, channels int) ([][]byte, error) {
	fullStride := rowStride(width, depth, channels)
	out := make([][]byte, height)
	for y := range out {
		out[y] = make([]byte, fullStride)
	}

	pos := 0
	for _, p := range adam7Passes {
		passWidth, passHeight := adam7PassDims(width, height, p)
		if passWidth == 0 || passHeight == 0 {
			continue
		}
		stride := rowStride(passWidth, depth, channels)
		bpp := (depth*channels + 7) / 8

		needed := passHeight * (1 + stride)
		if pos+needed > len(raw) {
			return nil, ErrTruncation
		}
		passRaw := raw[pos : pos+needed]
		pos += needed

		passRows, err := unfilterRows(passRaw, passHeight, stride, bpp)
		if err != nil {
			return nil, err
		}

		for j := 0; j < passHeight; j++ {
			prow := passRows[j*stride : (j+1)*stride]
			destY := p.startRow + j*p.rowStep
			for k := 0; k < passWidth; k++ {
				destX := p.startCol + k*p.colStep
				scatterSample(out[destY], prow, depth, channels, destX, k)
			}
		}
	}
	return out, nil
}

// scatterSample copies the k-th pixel's channels from a pass row into the
// destX-th pixel slot of a full-width destination row, both packed at the
// same bit depth.
func scatterSample(dest, src []byte, depth, channels, destX, srcX int) {
	for c := 0; c < channels; c++ {
		v := rawSampleAt(src, depth, srcX*channels+c)
		setRawSample(dest, depth, destX*channels+c, v)
	}
}

func setRawSample(row []byte, depth, index, value int) {
	switch depth {
	case 16:
		row[index*2] = byte(value >> 8)
		row[index*2+1] = byte(value)
	case 8:
		row[index] = byte(value)
	default:
		bitPos := index * depth
		byteIdx := bitPos / 8
		shift := 8 - depth - (bitPos % 8)
		mask := byte(1<<uint(depth)) - 1
		row[byteIdx] = (row[byteIdx] &^ (mask << uint(shift))) | (byte(value)&mask)<<uint(shift)
	}
}
