package captcha

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Dimensions is the bounding measurement of a glyph drawn at a given size
// and tilt: total advance width, bounding height, and descent below the
// baseline.
type Dimensions struct {
	Width   int
	Height  int
	Descent int
}

// Palette is the two-color scheme for a rendered challenge.
type Palette struct {
	Text  color.NRGBA
	Noise color.NRGBA
}

var (
	paletteLight = Palette{
		Text:  color.NRGBA{R: 0, G: 130, B: 200, A: 255},
		Noise: color.NRGBA{R: 200, G: 200, B: 200, A: 255},
	}
	paletteDark = Palette{
		Text:  color.NRGBA{R: 90, G: 200, B: 255, A: 255},
		Noise: color.NRGBA{R: 30, G: 35, B: 35, A: 255},
	}
)

// Canvas receives the layout algorithm's draw calls for one challenge image.
type Canvas interface {
	// DrawGlyph renders ch at the given point size and tilt angle
	// (degrees, counterclockwise) with its baseline origin at (x, y),
	// in the palette text color.
	DrawGlyph(ch rune, size, angle float64, x, y int)

	// DrawBox outlines a rectangle in the text color.
	DrawBox(x0, y0, x1, y1 int)

	// DrawLine draws a stroke in the text color, or the noise color when
	// noise is true.
	DrawLine(x0, y0, x1, y1 int, noise bool)

	// Encode returns the finished image as an opaque payload.
	Encode() (string, error)
}

// Rasterizer is the opaque glyph-measurement and drawing capability. Only
// the layout algorithm is owned here; rendering fidelity is the
// implementation's business.
type Rasterizer interface {
	Measure(ch rune, size, angle float64) Dimensions
	NewCanvas(width, height int, p Palette) Canvas
}

// ImageRasterizer is the default Rasterizer: basicfont glyphs scaled and
// rotated onto a transparent RGBA canvas, encoded as a base64 PNG data URL.
type ImageRasterizer struct{}

func NewImageRasterizer() *ImageRasterizer {
	return &ImageRasterizer{}
}

const (
	glyphBaseWidth   = 7
	glyphBaseHeight  = 13
	glyphBaseAscent  = 11
	glyphBaseDescent = 2
)

func (r *ImageRasterizer) Measure(ch rune, size, angle float64) Dimensions {
	scale := size / glyphBaseHeight
	w0 := glyphBaseWidth * scale
	h0 := glyphBaseHeight * scale

	sin, cos := math.Sincos(angle * math.Pi / 180)
	sin, cos = math.Abs(sin), math.Abs(cos)

	return Dimensions{
		Width:   int(math.Ceil(w0*cos + h0*sin)),
		Height:  int(math.Ceil(w0*sin + h0*cos)),
		Descent: int(math.Ceil(glyphBaseDescent * scale * cos)),
	}
}

func (r *ImageRasterizer) NewCanvas(width, height int, p Palette) Canvas {
	return &imageCanvas{
		img:     image.NewNRGBA(image.Rect(0, 0, width, height)),
		palette: p,
	}
}

type imageCanvas struct {
	img     *image.NRGBA
	palette Palette
}

func (c *imageCanvas) DrawGlyph(ch rune, size, angle float64, x, y int) {
	mask := image.NewAlpha(image.Rect(0, 0, glyphBaseWidth, glyphBaseHeight))
	d := font.Drawer{
		Dst:  mask,
		Src:  image.NewUniform(color.Alpha{A: 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(0, glyphBaseAscent),
	}
	d.DrawString(string(ch))

	scale := size / glyphBaseHeight
	sin, cos := math.Sincos(angle * math.Pi / 180)

	// Forward-map every covered source subpixel through scale+rotation
	// about the baseline origin. Half-pixel steps close the holes nearest
	// neighbour mapping would leave at larger scales.
	for sy := 0; sy < glyphBaseHeight; sy++ {
		for sx := 0; sx < glyphBaseWidth; sx++ {
			if mask.AlphaAt(sx, sy).A < 128 {
				continue
			}
			for oy := 0.0; oy < scale; oy += 0.5 {
				for ox := 0.0; ox < scale; ox += 0.5 {
					u := float64(sx)*scale + ox
					v := float64(sy-glyphBaseAscent)*scale + oy
					tx := float64(x) + u*cos + v*sin
					ty := float64(y) + v*cos - u*sin
					c.set(int(tx), int(ty), c.palette.Text)
				}
			}
		}
	}
}

func (c *imageCanvas) DrawBox(x0, y0, x1, y1 int) {
	// 2px outline.
	c.line(x0, y0, x1, y0, c.palette.Text)
	c.line(x0, y1, x1, y1, c.palette.Text)
	c.line(x0, y0, x0, y1, c.palette.Text)
	c.line(x1, y0, x1, y1, c.palette.Text)
	c.line(x0+1, y0+1, x1-1, y0+1, c.palette.Text)
	c.line(x0+1, y1-1, x1-1, y1-1, c.palette.Text)
	c.line(x0+1, y0+1, x0+1, y1-1, c.palette.Text)
	c.line(x1-1, y0+1, x1-1, y1-1, c.palette.Text)
}

func (c *imageCanvas) DrawLine(x0, y0, x1, y1 int, noise bool) {
	col := c.palette.Text
	if noise {
		col = c.palette.Noise
	}
	c.line(x0, y0, x1, y1, col)
}

func (c *imageCanvas) Encode() (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, c.img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (c *imageCanvas) set(x, y int, col color.NRGBA) {
	if image.Pt(x, y).In(c.img.Rect) {
		c.img.SetNRGBA(x, y, col)
	}
}

// line is Bresenham over the clipped canvas.
func (c *imageCanvas) line(x0, y0, x1, y1 int, col color.NRGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx := 1
	if x0 > x1 {
		sx = -1
	}
	sy := 1
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy

	for {
		c.set(x0, y0, col)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
