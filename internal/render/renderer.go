// Package render draws carousel slides as PNG images.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"strconv"

	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/generation"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Options tunes the slide layout.
type Options struct {
	// HeadingScale and BodyScale multiply the 7x13 base font
	HeadingScale int
	BodyScale    int

	// OverlayOpacity is the alpha of the style-colored layer drawn over a
	// background image so text stays readable
	OverlayOpacity float64

	// LineSpacing multiplies the line height
	LineSpacing float64

	// Gap separates the heading block from the body block, in pixels
	Gap int
}

// DefaultOptions returns the production layout.
func DefaultOptions() Options {
	return Options{
		HeadingScale:   6,
		BodyScale:      4,
		OverlayOpacity: 0.55,
		LineSpacing:    1.3,
		Gap:            40,
	}
}

// Renderer implements generation.Renderer.
type Renderer struct {
	opts   Options
	face   font.Face
	logger *slog.Logger
}

var _ generation.Renderer = (*Renderer)(nil)

// New creates a Renderer.
func New(opts Options, logger *slog.Logger) *Renderer {
	def := DefaultOptions()
	if opts.HeadingScale <= 0 {
		opts.HeadingScale = def.HeadingScale
	}
	if opts.BodyScale <= 0 {
		opts.BodyScale = def.BodyScale
	}
	if opts.LineSpacing <= 0 {
		opts.LineSpacing = def.LineSpacing
	}
	if opts.OverlayOpacity < 0 || opts.OverlayOpacity > 1 {
		opts.OverlayOpacity = def.OverlayOpacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		opts:   opts,
		face:   basicfont.Face7x13,
		logger: logger.With("component", "renderer"),
	}
}

// Render draws slide on a SlideWidth x SlideHeight canvas. A background
// image that cannot be decoded is ignored in favour of the solid color.
func (r *Renderer) Render(slide generation.SlideContent, style domain.Style, background []byte) ([]byte, error) {
	canvas := image.NewRGBA(image.Rect(0, 0, domain.SlideWidth, domain.SlideHeight))
	r.paintBackground(canvas, style, background, slide.Position)

	padding := style.Padding
	if padding <= 0 || padding*2 >= domain.SlideWidth {
		padding = 80
	}
	maxWidth := domain.SlideWidth - 2*padding

	heading := r.block(slide.Heading, r.opts.HeadingScale, maxWidth)
	body := r.block(slide.BodyText, r.opts.BodyScale, maxWidth)

	total := heading.height + body.height
	if heading.height > 0 && body.height > 0 {
		total += r.opts.Gap
	}
	y := max((domain.SlideHeight-total)/2, padding)

	if heading.height > 0 {
		bar := image.Rect(padding, y-24, padding+120, y-12)
		draw.Draw(canvas, bar, image.NewUniform(style.AccentColor()), image.Point{}, draw.Src)
	}
	y = r.drawBlock(canvas, heading, padding, y, style.AccentColor())
	if heading.height > 0 {
		y += r.opts.Gap
	}
	r.drawBlock(canvas, body, padding, y, style.TextColor())

	if slide.Position > 0 {
		r.drawLine(canvas, strconv.Itoa(slide.Position), 3,
			domain.SlideWidth-padding-measure(r.face, strconv.Itoa(slide.Position))*3,
			domain.SlideHeight-padding/2-r.lineHeight(3), style.AccentColor())
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("failed to encode slide %d: %w", slide.Position, err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) paintBackground(canvas *image.RGBA, style domain.Style, background []byte, position int) {
	bg := style.BackgroundColor()
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	if len(background) == 0 {
		return
	}

	src, _, err := image.Decode(bytes.NewReader(background))
	if err != nil {
		r.logger.Warn("failed to decode background image, using solid color",
			"position", position,
			"error", err)
		return
	}

	draw.CatmullRom.Scale(canvas, canvas.Bounds(), src, src.Bounds(), draw.Src, nil)
	overlay := color.NRGBA{R: bg.R, G: bg.G, B: bg.B, A: uint8(r.opts.OverlayOpacity * 255)}
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(overlay), image.Point{}, draw.Over)
}

type textBlock struct {
	lines  []string
	scale  int
	height int
}

func (r *Renderer) lineHeight(scale int) int {
	return int(float64(r.face.Metrics().Height.Ceil()*scale) * r.opts.LineSpacing)
}

func (r *Renderer) block(text string, scale, maxWidth int) textBlock {
	lines := wrapText(text, r.face, maxWidth/scale)
	return textBlock{lines: lines, scale: scale, height: len(lines) * r.lineHeight(scale)}
}

func (r *Renderer) drawBlock(canvas *image.RGBA, b textBlock, x, y int, c color.Color) int {
	for _, line := range b.lines {
		r.drawLine(canvas, line, b.scale, x, y, c)
		y += r.lineHeight(b.scale)
	}
	return y
}

// drawLine draws s at native size and scales it up onto canvas at (x, y).
func (r *Renderer) drawLine(canvas *image.RGBA, s string, scale, x, y int, c color.Color) {
	metrics := r.face.Metrics()
	w := measure(r.face, s)
	h := metrics.Height.Ceil()
	if w == 0 || h == 0 {
		return
	}

	glyphs := image.NewRGBA(image.Rect(0, 0, w, h))
	d := font.Drawer{
		Dst:  glyphs,
		Src:  image.NewUniform(c),
		Face: r.face,
		Dot:  fixed.Point26_6{X: 0, Y: metrics.Ascent},
	}
	d.DrawString(s)

	dst := image.Rect(x, y, x+w*scale, y+h*scale)
	draw.NearestNeighbor.Scale(canvas, dst, glyphs, glyphs.Bounds(), draw.Over, nil)
}
