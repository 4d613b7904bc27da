// Package fingerprint derives 64-bit perceptual fingerprints from raw image
// bytes and classifies the distance between them. Both operations are pure:
// no I/O, no shared state, safe for concurrent use.
package fingerprint

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"
	"sort"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"genmark/internal/domain"
)

// ErrUnsupportedContent means the bytes could not be decoded as an image.
var ErrUnsupportedContent = errors.New("unsupported content: not a decodable image")

// gridSize is the normalized pixel grid the image is reduced to before the
// frequency transform. blockSize picks the lowest-frequency coefficients.
// These values must not change: every fingerprint already on the ledger was
// computed with them, and a different grid produces incompatible bits.
const (
	gridSize  = 32
	blockSize = 8
)

// Compute derives the perceptual fingerprint of an image from raw bytes.
//
// The image is decoded, reduced to a grayscale 32x32 grid, transformed with a
// 2-D DCT, and the lowest-frequency 8x8 coefficient block is binarized
// against its own median (1 if >= median), packed row-major into 64 bits.
func Compute(data []byte) (domain.Fingerprint, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedContent, err)
	}
	return fromImage(img), nil
}

func fromImage(img image.Image) domain.Fingerprint {
	gray := image.NewGray(image.Rect(0, 0, gridSize, gridSize))
	xdraw.CatmullRom.Scale(gray, gray.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	var grid [gridSize][gridSize]float64
	for y := 0; y < gridSize; y++ {
		for x := 0; x < gridSize; x++ {
			grid[y][x] = float64(gray.GrayAt(x, y).Y)
		}
	}

	freq := dct2d(grid)

	block := make([]float64, 0, blockSize*blockSize)
	for y := 0; y < blockSize; y++ {
		for x := 0; x < blockSize; x++ {
			block = append(block, freq[y][x])
		}
	}
	med := median(block)

	var bits uint64
	for y := 0; y < blockSize; y++ {
		for x := 0; x < blockSize; x++ {
			bits <<= 1
			if freq[y][x] >= med {
				bits |= 1
			}
		}
	}
	return domain.Fingerprint(bits)
}

// dct2d applies a type-II DCT along columns, then rows, matching the
// reference transform order.
func dct2d(grid [gridSize][gridSize]float64) [gridSize][gridSize]float64 {
	var tmp, out [gridSize][gridSize]float64

	var col, row [gridSize]float64
	for x := 0; x < gridSize; x++ {
		for y := 0; y < gridSize; y++ {
			col[y] = grid[y][x]
		}
		transformed := dct1d(col)
		for y := 0; y < gridSize; y++ {
			tmp[y][x] = transformed[y]
		}
	}
	for y := 0; y < gridSize; y++ {
		copy(row[:], tmp[y][:])
		out[y] = dct1d(row)
	}
	return out
}

func dct1d(in [gridSize]float64) [gridSize]float64 {
	var out [gridSize]float64
	n := float64(gridSize)
	for k := 0; k < gridSize; k++ {
		var sum float64
		for i := 0; i < gridSize; i++ {
			sum += in[i] * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*n))
		}
		out[k] = 2 * sum
	}
	return out
}

// median returns the middle value; for the even-sized coefficient block this
// is the mean of the two central values.
func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
