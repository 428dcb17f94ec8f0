// Package annotate draws worker boxes, compliance labels, and worker-id
// tags onto a decoded frame for display to subscribers.
package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/sudharshan/ppe-monitor/internal/compliance"
	"github.com/sudharshan/ppe-monitor/internal/track"
)

var (
	colorCompliant = color.RGBA{0, 200, 0, 255}
	colorViolation = color.RGBA{220, 0, 0, 255}
	colorUnknown   = color.RGBA{200, 160, 0, 255}
)

// Frame draws every worker evaluation onto jpegBytes and re-encodes at
// quality. Drawing failures never abort the pipeline: the caller should
// fall back to the undecorated frame on error (mirrors DetectorError's
// "log and continue" disposition, since annotation is not a persisted
// concern).
func Frame(jpegBytes []byte, evals []compliance.Evaluation, quality int) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(jpegBytes))
	if err != nil {
		return nil, fmt.Errorf("annotate: decode: %w", err)
	}
	rgba := toRGBA(img)

	for _, e := range evals {
		c := colorForStatus(e.Status)
		drawBox(rgba, e.Box, c)
		label := labelFor(e)
		drawLabel(rgba, int(e.Box.X1), int(e.Box.Y1)-4, label, c)
	}

	var out bytes.Buffer
	if quality <= 0 {
		quality = 95
	}
	if err := jpeg.Encode(&out, rgba, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("annotate: encode: %w", err)
	}
	return out.Bytes(), nil
}

func colorForStatus(s compliance.Status) color.RGBA {
	switch s {
	case compliance.Compliant:
		return colorCompliant
	case compliance.Violation:
		return colorViolation
	default:
		return colorUnknown
	}
}

func labelFor(e compliance.Evaluation) string {
	if e.Status == compliance.Violation {
		return fmt.Sprintf("#%d %s", e.WorkerID, e.Kind)
	}
	return fmt.Sprintf("#%d %s", e.WorkerID, e.Status)
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)
	return out
}

func drawBox(img *image.RGBA, box track.Box, c color.RGBA) {
	x1, y1, x2, y2 := int(box.X1), int(box.Y1), int(box.X2), int(box.Y2)
	hLine(img, x1, x2, y1, c)
	hLine(img, x1, x2, y2, c)
	vLine(img, y1, y2, x1, c)
	vLine(img, y1, y2, x2, c)
}

func hLine(img *image.RGBA, x1, x2, y int, c color.RGBA) {
	b := img.Bounds()
	if y < b.Min.Y || y >= b.Max.Y {
		return
	}
	for x := x1; x <= x2; x++ {
		if x >= b.Min.X && x < b.Max.X {
			img.SetRGBA(x, y, c)
		}
	}
}

func vLine(img *image.RGBA, y1, y2, x int, c color.RGBA) {
	b := img.Bounds()
	if x < b.Min.X || x >= b.Max.X {
		return
	}
	for y := y1; y <= y2; y++ {
		if y >= b.Min.Y && y < b.Max.Y {
			img.SetRGBA(x, y, c)
		}
	}
}

func drawLabel(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
