package barcodes

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"github.com/boombuler/barcode/code128"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// quietZone is the white margin, in modules, scanners need on both sides.
const quietZone = 10

// Render encodes code as a Code128 PNG. Bars are scaled by a whole number of
// pixels per module so every bar keeps the same width; the image grows past
// width when the code needs more room than it offers.
func Render(code string, width, height int) ([]byte, error) {
	if !Valid(code) {
		return nil, errors.Errorf("invalid barcode %q", code)
	}

	bc, err := code128.Encode(code)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode barcode %q", code)
	}

	modules := bc.Bounds().Dx()
	scale := width / (modules + 2*quietZone)
	if scale < 1 {
		scale = 1
	}
	minWidth := (modules + 2*quietZone) * scale
	if width < minWidth {
		width = minWidth
	}
	if height < 1 {
		height = 1
	}

	canvas := image.NewGray(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	left := (width - modules*scale) / 2
	target := image.Rect(left, 0, left+modules*scale, height)
	draw.NearestNeighbor.Scale(canvas, target, bc, bc.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}
