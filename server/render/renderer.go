// Package render paints annotation instructions onto images.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"github.com/san-kum/fencing-cv/server/annotate"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// baseFontSize is the pixel height of a label drawn at scale 1.
const baseFontSize = 22.0

// arcStep is the sampling interval in degrees along an arc.
const arcStep = 0.5

// lineStep is the sampling interval in pixels along a skeleton line.
const lineStep = 0.5

// Renderer is safe for concurrent use. Font faces are created lazily per
// label scale and reused; opentype faces are not goroutine safe so text
// drawing is serialized.
type Renderer struct {
	font  *opentype.Font
	faces map[float64]font.Face
	mutex sync.Mutex
}

func NewRenderer() (*Renderer, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	return &Renderer{
		font:  f,
		faces: make(map[float64]font.Face),
	}, nil
}

// Render returns a copy of src with the instructions painted on it. src is
// never modified.
func (r *Renderer) Render(src image.Image, instructions []annotate.Instruction) *image.RGBA {
	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)

	for _, in := range instructions {
		switch in.Kind {
		case annotate.KindArc:
			drawArc(dst, in)
		case annotate.KindLabel:
			r.drawLabel(dst, in)
		case annotate.KindLine:
			drawLine(dst, in)
		case annotate.KindPoint:
			drawPoint(dst, in)
		}
	}

	return dst
}

func drawArc(dst *image.RGBA, in annotate.Instruction) {
	c := in.Color.ToRGBA()

	start, end := in.StartAngle, in.EndAngle
	if end < start {
		start, end = end, start
	}

	for deg := start; deg <= end+1e-9; deg += arcStep {
		rad := deg * math.Pi / 180
		x := in.X + in.Radius*math.Cos(rad)
		y := in.Y + in.Radius*math.Sin(rad)
		plot(dst, x, y, in.Thickness, c)
	}
}

func drawLine(dst *image.RGBA, in annotate.Instruction) {
	c := in.Color.ToRGBA()

	dx, dy := in.X2-in.X, in.Y2-in.Y
	steps := int(math.Ceil(math.Hypot(dx, dy) / lineStep))
	for i := 0; i <= steps; i++ {
		t := 0.0
		if steps > 0 {
			t = float64(i) / float64(steps)
		}
		plot(dst, in.X+t*dx, in.Y+t*dy, in.Thickness, c)
	}
}

// drawPoint fills a disc of the instruction's radius.
func drawPoint(dst *image.RGBA, in annotate.Instruction) {
	c := in.Color.ToRGBA()
	r := int(math.Ceil(in.Radius))
	cx, cy := int(math.Round(in.X)), int(math.Round(in.Y))

	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if float64(dx*dx+dy*dy) > in.Radius*in.Radius {
				continue
			}
			p := image.Pt(cx+dx, cy+dy)
			if p.In(dst.Rect) {
				dst.SetRGBA(p.X, p.Y, c)
			}
		}
	}
}

// plot fills a square brush of the given thickness centred on (x, y).
func plot(dst *image.RGBA, x, y float64, thickness int, c color.RGBA) {
	if thickness < 1 {
		thickness = 1
	}
	half := thickness / 2
	cx, cy := int(math.Round(x)), int(math.Round(y))

	for dy := -half; dy < thickness-half; dy++ {
		for dx := -half; dx < thickness-half; dx++ {
			p := image.Pt(cx+dx, cy+dy)
			if p.In(dst.Rect) {
				dst.SetRGBA(p.X, p.Y, c)
			}
		}
	}
}

// drawLabel draws text with its baseline starting at (X, Y). Thickness is
// approximated by repeating the text one pixel to the right.
func (r *Renderer) drawLabel(dst *image.RGBA, in annotate.Instruction) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(in.Color.ToRGBA()),
		Face: r.face(in.Scale),
	}

	passes := max(in.Thickness, 1)
	for i := 0; i < passes; i++ {
		drawer.Dot = fixed.Point26_6{
			X: fixed.Int26_6((in.X + float64(i)) * 64),
			Y: fixed.Int26_6(in.Y * 64),
		}
		drawer.DrawString(in.Text)
	}
}

func (r *Renderer) face(scale float64) font.Face {
	if scale <= 0 {
		scale = 1
	}

	if f, ok := r.faces[scale]; ok {
		return f
	}

	f, err := opentype.NewFace(r.font, &opentype.FaceOptions{
		Size:    baseFontSize * scale,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}

	r.faces[scale] = f
	return f
}
