package services

import (
	"errors"
	"image"
	"io"
	"path/filepath"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// SVG references are rendered at card proportions, large enough for any
// fingerprint grid.
const (
	svgRenderWidth  = 252
	svgRenderHeight = 352
)

var errEmptySVG = errors.New("svg has no drawable area")

// isSVG reports whether a reference or its content type names an SVG document.
func isSVG(ref, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "image/svg") {
		return true
	}
	ref = strings.ToLower(ref)
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	return filepath.Ext(ref) == ".svg"
}

// rasterizeSVG renders an SVG document into an RGBA image, scaled to fit the
// render box with its aspect ratio preserved.
func rasterizeSVG(r io.Reader) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(r)
	if err != nil {
		return nil, err
	}

	w, h := icon.ViewBox.W, icon.ViewBox.H
	if w <= 0 || h <= 0 {
		return nil, errEmptySVG
	}

	scale := min(svgRenderWidth/w, svgRenderHeight/h)
	outW, outH := int(w*scale), int(h*scale)
	if outW == 0 || outH == 0 {
		return nil, errEmptySVG
	}
	icon.SetTarget(0, 0, float64(outW), float64(outH))

	img := image.NewRGBA(image.Rect(0, 0, outW, outH))
	scanner := rasterx.NewScannerGV(outW, outH, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(outW, outH, scanner), 1.0)
	return img, nil
}
