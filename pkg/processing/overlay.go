package processing

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/browcrop/pkg/landmarks"
	"github.com/menta2k/browcrop/pkg/types"
)

// OverlayInput describes what a debug overlay should show
type OverlayInput struct {
	Face     types.Face
	Layout   landmarks.Layout
	CropLine int
	Start    int
}

// CreateDebugOverlay draws the landmarks used for the decision, the crop
// line and the effective start onto a copy of img
func (p *Processor) CreateDebugOverlay(img image.Image, in OverlayInput) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	green := color.NRGBA{0, 255, 0, 255}  // eyebrows
	blue := color.NRGBA{0, 170, 255, 255} // eyelids
	red := color.NRGBA{255, 0, 0, 255}    // crop line
	gold := color.NRGBA{255, 204, 0, 255} // effective start
	stroke := int(math.Max(2, 0.004*float64(min(w, h))))
	cross := int(math.Max(4, 0.01*float64(min(w, h))))

	kp := in.Face.Keypoints
	for _, idx := range in.Layout.EyeTops() {
		if idx < len(kp) {
			drawCross(nrgba, kp[idx], w, h, cross, blue)
		}
	}
	for _, idx := range in.Layout.Eyebrows() {
		if idx < len(kp) {
			drawCross(nrgba, kp[idx], w, h, cross, green)
		}
	}

	for s := 0; s < stroke; s++ {
		drawHLine(nrgba, in.CropLine+s, 0, w, red)
		if in.Start != in.CropLine {
			drawHLine(nrgba, in.Start+s, 0, w, gold)
		}
	}

	label := fmt.Sprintf("crop=%d start=%d kept=%dpx", in.CropLine, in.Start, h-in.Start)
	drawLabel(nrgba, 4, max(13, in.Start-stroke-2), label, red)

	return nrgba
}

func drawCross(img *image.NRGBA, pt types.Point, w, h, size int, c color.NRGBA) {
	px := int(min(max(pt.X, 0), 1)*float64(w) + 0.5)
	py := int(min(max(pt.Y, 0), 1)*float64(h) + 0.5)
	drawHLine(img, py, px-size, px+size+1, c)
	drawVLine(img, px, py-size, py+size+1, c)
}

func drawLabel(img *image.NRGBA, x, y int, text string, c color.NRGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// fillRect paints r, clipped to the image, with c
func fillRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	draw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	fillRect(img, image.Rect(x0, y, x1, y+1), c)
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	fillRect(img, image.Rect(x, y0, x+1, y1), c)
}
