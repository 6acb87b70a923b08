package captcha

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"math/rand"

	"github.com/golang/freetype/raster"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// The canvas is larger than the text box to leave room for jitter.
const (
	canvasWidthFactor  = 1.25
	canvasHeightFactor = 1.5
)

// Renderer rasterizes challenge text over a noisy background. It holds no
// per-render state and may be shared between goroutines.
type Renderer struct {
	fonts        []CaptchaFont
	fontSize     int
	varyFontSize bool
	varyRange    int
	noise        int
	width        int
	height       int
	format       ImageFormat
	jpegQuality  int
	fg           color.RGBA
	bg           color.RGBA
}

// NewRenderer loads the configured fonts and fails fast when one is unknown.
func NewRenderer(cfg Config) (*Renderer, error) {
	fonts, err := LoadFonts(cfg.FontSelection)
	if err != nil {
		return nil, err
	}
	return &Renderer{
		fonts:        fonts,
		fontSize:     cfg.TextFontSize,
		varyFontSize: cfg.VaryFontSize,
		varyRange:    cfg.VaryFontRange,
		noise:        cfg.NoiseDensity,
		width:        cfg.ImageWidth,
		height:       cfg.ImageHeight,
		format:       cfg.ImageFormat,
		jpegQuality:  cfg.JPEGQuality,
		fg:           color.RGBA{R: 255, G: 255, B: 255, A: 255},
		bg:           color.RGBA{A: 255},
	}, nil
}

// Format returns the encoding used by Encode.
func (r *Renderer) Format() ImageFormat { return r.format }

// Render draws text and returns the image at the canonical output size.
func (r *Renderer) Render(text string) (*image.RGBA, error) {
	glyphs := []rune(text)
	if len(glyphs) == 0 {
		return nil, fmt.Errorf("%w: empty text", ErrInvalidLength)
	}

	f := r.fonts[rand.Intn(len(r.fonts))]
	faces := map[int]font.Face{}
	defer func() {
		for _, face := range faces {
			face.Close()
		}
	}()
	faceFor := func(size int) (font.Face, error) {
		if face, ok := faces[size]; ok {
			return face, nil
		}
		face, err := opentype.NewFace(f.Font, &opentype.FaceOptions{
			Size:    float64(size),
			DPI:     72,
			Hinting: font.HintingNone,
		})
		if err != nil {
			return nil, fmt.Errorf("captcha: font %s size %d: %w", f.Name, size, err)
		}
		faces[size] = face
		return face, nil
	}

	// The largest face bounds every glyph we may draw.
	maxSize := r.fontSize
	if r.varyFontSize {
		maxSize += r.varyRange
	}
	metricFace, err := faceFor(maxSize)
	if err != nil {
		return nil, err
	}
	metrics := metricFace.Metrics()
	ascent, descent := metrics.Ascent.Ceil(), metrics.Descent.Ceil()

	cell := 1
	for _, g := range glyphs {
		if adv, ok := metricFace.GlyphAdvance(g); ok && adv.Ceil() > cell {
			cell = adv.Ceil()
		}
	}

	textW, textH := cell*len(glyphs), ascent+descent
	canvasW := int(float64(textW) * canvasWidthFactor)
	canvasH := int(float64(textH) * canvasHeightFactor)
	slackX := (canvasW - textW) / len(glyphs)
	slackY := canvasH - textH

	canvas := image.NewRGBA(image.Rect(0, 0, canvasW, canvasH))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(r.bg), image.Point{}, draw.Src)
	r.drawNoise(canvas)

	src := image.NewUniform(r.fg)
	for i, g := range glyphs {
		size := r.fontSize
		if r.varyFontSize && r.varyRange > 0 {
			size += rand.Intn(2*r.varyRange+1) - r.varyRange
		}
		face, err := faceFor(size)
		if err != nil {
			return nil, err
		}
		x := i*cell + rand.Intn(slackX+1)
		y := ascent + rand.Intn(slackY+1)
		d := font.Drawer{Dst: canvas, Src: src, Face: face, Dot: fixed.P(x, y)}
		d.DrawString(string(g))
	}

	out := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	xdraw.BiLinear.Scale(out, out.Bounds(), canvas, canvas.Bounds(), xdraw.Src, nil)
	return out, nil
}

// Encode writes img in the configured raster format.
func (r *Renderer) Encode(w io.Writer, img image.Image) error {
	if r.format == FormatPNG {
		return png.Encode(w, img)
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: r.jpegQuality})
}

// RenderBase64 renders and encodes text, returning standard base64.
func (r *Renderer) RenderBase64(text string) (string, error) {
	img, err := r.Render(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := r.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("captcha: encode %s: %w", r.format, err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// drawNoise scatters line segments and ellipse outlines; every third shape
// is an ellipse.
func (r *Renderer) drawNoise(img *image.RGBA) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	xinc, yinc := w/10, h/10

	ras := raster.NewRasterizer(w, h)
	ras.UseNonZeroWinding = true
	painter := raster.NewRGBAPainter(img)
	painter.SetColor(r.fg)

	for i := 0; i < r.noise; i++ {
		if i%3 == 0 {
			x0 := randRange(-xinc, w-xinc)
			x1 := randRange(x0+xinc, w)
			y0 := randRange(-2*h, 2*yinc)
			y1 := randRange(h/2+yinc, h+h/2)
			stroke(ras, painter, ellipsePath(x0, y0, x1, y1), 3)
			continue
		}
		x0 := randRange(0, w/2)
		y0 := randRange(0, h/2)
		x1 := randRange(0, w)
		y1 := randRange(h/2, h)
		stroke(ras, painter, linePath(x0, y0, x1, y1), randRange(3, 4))
	}
}

// randRange returns a random int in [lo, hi]; hi below lo collapses to lo.
func randRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rand.Intn(hi-lo+1)
}

// stroke paints path with round caps and joins. The rasterizer clips to its
// own bounds, so shapes may extend past the canvas.
func stroke(ras *raster.Rasterizer, p raster.Painter, path raster.Path, width int) {
	ras.Clear()
	raster.Stroke(ras, path, fixed.I(width), raster.RoundCapper, raster.RoundJoiner)
	ras.Rasterize(p)
}

func pt(x, y float64) fixed.Point26_6 {
	return fixed.Point26_6{X: fixed.Int26_6(x * 64), Y: fixed.Int26_6(y * 64)}
}

func linePath(x0, y0, x1, y1 int) raster.Path {
	var path raster.Path
	path.Start(fixed.P(x0, y0))
	path.Add1(fixed.P(x1, y1))
	return path
}

// kappa places cubic control points so four curves approximate a quarter
// ellipse each.
const kappa = 0.5522847498

// ellipsePath outlines the ellipse inscribed in the box (x0,y0)-(x1,y1).
func ellipsePath(x0, y0, x1, y1 int) raster.Path {
	cx, cy := float64(x0+x1)/2, float64(y0+y1)/2
	rx, ry := float64(x1-x0)/2, float64(y1-y0)/2
	kx, ky := rx*kappa, ry*kappa

	var path raster.Path
	path.Start(pt(cx+rx, cy))
	path.Add3(pt(cx+rx, cy+ky), pt(cx+kx, cy+ry), pt(cx, cy+ry))
	path.Add3(pt(cx-kx, cy+ry), pt(cx-rx, cy+ky), pt(cx-rx, cy))
	path.Add3(pt(cx-rx, cy-ky), pt(cx-kx, cy-ry), pt(cx, cy-ry))
	path.Add3(pt(cx+kx, cy-ry), pt(cx+rx, cy-ky), pt(cx+rx, cy))
	return path
}
