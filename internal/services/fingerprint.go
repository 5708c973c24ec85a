package services

import (
	"fmt"
	"image"
	"math/bits"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/codyseavey/tcg-scanner/backend/internal/models"
)

// GridSize is the difference-hash grid: Width comparisons per row over Height
// rows. The grid used to build an index must match the grid used to query it.
type GridSize struct {
	Width  int `json:"grid_width"`
	Height int `json:"grid_height"`
}

// DefaultGrid is 8x11, close to the 63x88mm card aspect ratio.
var DefaultGrid = GridSize{Width: 8, Height: 11}

// DefaultMaxDistance is the acceptance threshold in bits. A match must be
// strictly below it.
const DefaultMaxDistance = 25

func (g GridSize) String() string {
	return fmt.Sprintf("%dx%d", g.Width, g.Height)
}

// Valid reports whether the grid has positive dimensions.
func (g GridSize) Valid() bool {
	return g.Width > 0 && g.Height > 0
}

// HashBits is the bit length of a hash for this grid, padded to a whole
// number of hex digits.
func (g GridSize) HashBits() int {
	n := g.Width * g.Height
	return (n + 3) / 4 * 4
}

// Fingerprint computes the difference hash of img: the image is resized to
// (Width+1) x Height, converted to luminance, and each row emits one bit per
// adjacent pair (1 when the left pixel is brighter). Bits are packed row-major
// into lower-case hex.
func Fingerprint(img image.Image, grid GridSize) string {
	w, h := grid.Width+1, grid.Height
	small := imaging.Resize(img, w, h, imaging.Lanczos)

	luma := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := small.PixOffset(x, y)
			r, g, b := small.Pix[i], small.Pix[i+1], small.Pix[i+2]
			luma[y*w+x] = 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
		}
	}

	total := grid.HashBits()
	var sb strings.Builder
	sb.Grow(total / 4)

	var nibble byte
	bit := 0
	emit := func(set bool) {
		nibble <<= 1
		if set {
			nibble |= 1
		}
		bit++
		if bit%4 == 0 {
			sb.WriteByte(hexDigits[nibble])
			nibble = 0
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < grid.Width; x++ {
			emit(luma[y*w+x] > luma[y*w+x+1])
		}
	}
	for bit < total {
		emit(false)
	}

	return sb.String()
}

// FingerprintFile opens an image from disk, honoring EXIF orientation, and
// fingerprints it.
func FingerprintFile(path string, grid GridSize) (string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("opening image: %w", err)
	}
	return Fingerprint(img, grid), nil
}

const hexDigits = "0123456789abcdef"

func hexNibble(c byte) uint8 {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

// HammingDistance counts differing bits between two hex hashes over their
// common prefix.
func HammingDistance(a, b string) int {
	n := min(len(a), len(b))
	distance := 0
	for i := 0; i < n; i++ {
		distance += bits.OnesCount8(hexNibble(a[i]) ^ hexNibble(b[i]))
	}
	return distance
}

// FindBestMatch scans entries for the minimum distance to hash. The first
// entry with the minimum wins; it is returned only when strictly below
// maxDistance.
func FindBestMatch(hash string, entries []models.FingerprintEntry, maxDistance int) (models.FingerprintMatch, bool) {
	best := models.FingerprintMatch{Distance: -1}
	for _, entry := range entries {
		d := HammingDistance(hash, entry.Hash)
		if best.Distance < 0 || d < best.Distance {
			best = models.FingerprintMatch{ID: entry.ID, Distance: d}
		}
	}
	if best.Distance < 0 || best.Distance >= maxDistance {
		return best, false
	}
	return best, true
}
