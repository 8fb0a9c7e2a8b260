package captcha

import (
	"math"
	"math/rand/v2"
)

// Alphabet is the glyph set challenge codes are drawn from. Ambiguous
// shapes (i, j, l, I, 0, 1, O) are excluded.
const Alphabet = "abcdefghkmnopqrstuvwxyzABCDEFGHJKLMNOPQRSTUVWXYZ23456789"

const (
	fontRatio = 0.52
	tiltLimit = 20

	textLineCount = 8
	noiseLineDiv  = 2
)

// render lays out one challenge image: per-glyph tilt walking from a random
// start angle toward a random end angle with clamp-and-reflect at the tilt
// limit, negative kerning, an oscillating baseline, occasional glyph boxes,
// and distraction lines. All geometry randomness comes from rng; the code
// itself is chosen by the caller.
func render(code string, width, height int, dark bool, ras Rasterizer, rng *rand.Rand) (string, error) {
	p := paletteLight
	if dark {
		p = paletteDark
	}
	canvas := ras.NewCanvas(width, height, p)

	fontSize := float64(height) * fontRatio
	glyphs := []rune(code)
	n := len(glyphs)

	angleFrom := float64(10 + rng.IntN(11))
	angleTo := float64(-20 + rng.IntN(31))
	if rng.IntN(100)%2 == 0 {
		angleFrom = -angleFrom
	}
	if rng.IntN(100)%2 == 1 {
		angleTo = -angleTo
	}

	step := 0.0
	if n > 1 {
		step = math.Abs(angleFrom-angleTo) / float64(n-1)
		if angleFrom > angleTo {
			step = -step
		}
	}

	// First pass: fix every glyph's tilt and kerning so the total advance
	// is known before the block is positioned.
	angles := make([]float64, n)
	kerns := make([]int, n)
	dims := make([]Dimensions, n)
	textWidth := 0

	angle := angleFrom
	for c := 0; c < n; c++ {
		angles[c] = angle
		kerns[c] = -rng.IntN(3)

		dim := ras.Measure(glyphs[c], fontSize, angle)
		dims[c] = dim
		textWidth += dim.Width + kerns[c]

		angle += step
		if angle > tiltLimit {
			angle = tiltLimit
			step = -step
		} else if angle < -tiltLimit {
			angle = -tiltLimit
			step = -step
		}
	}

	// Horizontal slack either side of the centered block.
	slack := width - textWidth - 10
	x := 5
	if slack > 0 {
		x += rng.IntN(slack + 1)
	}

	// The baseline window here and the single-kern advance below track
	// the rotated bounding boxes, not exact font metrics; placement only
	// has to keep every glyph inside the canvas.
	top := dims[0].Height + dims[0].Descent + 5
	bottom := height - 10
	y := top
	if bottom > top {
		y = top + rng.IntN(bottom-top+1)
	}

	baselineStep := 5 + rng.IntN(6)
	descending := true

	for c := 0; c < n; c++ {
		dim := dims[c]

		// Oscillate the baseline, reflecting before either margin.
		if y+baselineStep+dim.Descent+10 > height {
			descending = false
		} else if y-baselineStep-dim.Descent < dim.Height+dim.Descent+5 {
			descending = true
		}
		if descending {
			y += baselineStep
		} else {
			y -= baselineStep
		}

		canvas.DrawGlyph(glyphs[c], fontSize, angles[c], x, y)

		if (1+rng.IntN(100))%5 == 0 {
			canvas.DrawBox(x, y-dim.Height+dim.Descent, x+dim.Width, y+dim.Descent)
		}

		x += dim.Width + kerns[c]
	}

	for i := 0; i < textLineCount; i++ {
		canvas.DrawLine(rng.IntN(width+1), rng.IntN(height+1), rng.IntN(width+1), rng.IntN(height+1), false)
	}
	for i := 0; i < textLineCount/noiseLineDiv; i++ {
		canvas.DrawLine(rng.IntN(width+1), rng.IntN(height+1), rng.IntN(width+1), rng.IntN(height+1), true)
	}

	return canvas.Encode()
}
