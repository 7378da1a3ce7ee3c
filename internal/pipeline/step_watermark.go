package pipeline

import (
	"context"
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/dunamismax/photoflow/internal/domain"
)

// watermarkMargin is the inset in pixels from the anchored edges.
const watermarkMargin = 20

// anchorFractions maps an anchor name to its horizontal and vertical
// placement fractions: 0 hugs the leading edge, 1 the trailing edge.
func anchorFractions(anchor string) (ax, ay float64) {
	switch {
	case strings.HasPrefix(anchor, "top"):
		ay = 0
	case strings.HasPrefix(anchor, "bottom"):
		ay = 1
	default:
		ay = 0.5
	}
	switch {
	case strings.HasSuffix(anchor, "left"):
		ax = 0
	case strings.HasSuffix(anchor, "right"):
		ax = 1
	default:
		ax = 0.5
	}
	return ax, ay
}

// anchorOrigin places a box of owXoh inside a base of wXh at the named
// anchor, inset by the margin on anchored edges. Coordinates clamp at zero
// when the box outgrows the base.
func anchorOrigin(anchor string, w, h, ow, oh int) image.Point {
	ax, ay := anchorFractions(anchor)

	x := int(ax * float64(w-ow))
	switch ax {
	case 0:
		x += watermarkMargin
	case 1:
		x -= watermarkMargin
	}

	y := int(ay * float64(h-oh))
	switch ay {
	case 0:
		y += watermarkMargin
	case 1:
		y -= watermarkMargin
	}

	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	return image.Pt(x, y)
}

// textWatermarkStep stamps a string onto the pixel buffer. The font face is
// parsed once at compile time and shared across workers.
type textWatermarkStep struct {
	text    string
	font    *truetype.Font
	sizePt  float64
	color   domain.RGBA
	opacity float64
	anchor  string
}

func newTextWatermarkStep(spec domain.StepSpec) (*textWatermarkStep, error) {
	ttf := goregular.TTF
	if spec.Font != "" {
		data, err := os.ReadFile(spec.Font)
		if err != nil {
			return nil, fmt.Errorf("font %s: %w", spec.Font, err)
		}
		ttf = data
	}
	fnt, err := truetype.Parse(ttf)
	if err != nil {
		return nil, fmt.Errorf("font %s: %w", spec.Font, err)
	}

	size := spec.SizePt
	if size == 0 {
		size = domain.DefaultFontSizePt
	}
	col := domain.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
	if spec.Color != "" {
		col, err = domain.ParseColor(spec.Color)
		if err != nil {
			return nil, err
		}
	}
	return &textWatermarkStep{
		text:    spec.Text,
		font:    fnt,
		sizePt:  size,
		color:   col,
		opacity: opacityOrDefault(spec.Opacity),
		anchor:  anchorOrDefault(spec.Anchor),
	}, nil
}

func (s *textWatermarkStep) Op() domain.StepOp { return domain.OpTextWatermark }

func (s *textWatermarkStep) Apply(_ context.Context, u *Unit, _ ExecContext) error {
	u.normalizePixels()
	w, h := u.Image.Rect.Dx(), u.Image.Rect.Dy()
	if w < 1 || h < 1 {
		return failf(FailureInvalidInput, "text_watermark: source has no pixels")
	}

	dc := gg.NewContextForImage(u.Image)
	dc.SetFontFace(truetype.NewFace(s.font, &truetype.Options{Size: s.sizePt}))

	alpha := float64(s.color.A) / 255 * s.opacity
	dc.SetRGBA(float64(s.color.R)/255, float64(s.color.G)/255, float64(s.color.B)/255, alpha)

	tw, th := dc.MeasureString(s.text)
	origin := anchorOrigin(s.anchor, w, h, int(tw), int(th))
	// DrawStringAnchored with ay=1 treats y as the top of the glyph box.
	dc.DrawStringAnchored(s.text, float64(origin.X), float64(origin.Y), 0, 1)

	u.setPixels(toNRGBA(dc.Image()))
	return nil
}

// imageWatermarkStep composites a scaled overlay onto the pixel buffer. The
// overlay is decoded once at compile time; per-photo scaling depends on the
// base width so it happens inside Apply.
type imageWatermarkStep struct {
	overlay      image.Image
	overlayRef   string
	scalePercent float64
	opacity      float64
	anchor       string
}

func newImageWatermarkStep(spec domain.StepSpec, open OverlayOpener) (*imageWatermarkStep, error) {
	if open == nil {
		return nil, fmt.Errorf("no overlay opener configured")
	}
	overlay, err := open(spec.Overlay)
	if err != nil {
		return nil, fmt.Errorf("overlay %s: %w", spec.Overlay, err)
	}

	scale := spec.ScalePercent
	if scale == 0 {
		scale = domain.DefaultScalePercent
	}
	return &imageWatermarkStep{
		overlay:      overlay,
		overlayRef:   spec.Overlay,
		scalePercent: scale,
		opacity:      opacityOrDefault(spec.Opacity),
		anchor:       anchorOrDefault(spec.Anchor),
	}, nil
}

func (s *imageWatermarkStep) Op() domain.StepOp { return domain.OpImageWatermark }

func (s *imageWatermarkStep) Apply(_ context.Context, u *Unit, _ ExecContext) error {
	u.normalizePixels()
	w, h := u.Image.Rect.Dx(), u.Image.Rect.Dy()
	if w < 1 || h < 1 {
		return failf(FailureInvalidInput, "image_watermark: source has no pixels")
	}

	tw := scaleDim(w, s.scalePercent)
	overlay := imaging.Resize(s.overlay, tw, 0, imaging.Lanczos)
	// An overlay taller than the base scales down to fit instead of cropping.
	if overlay.Rect.Dy() > h {
		overlay = imaging.Fit(overlay, w, h, imaging.Lanczos)
	}
	origin := anchorOrigin(s.anchor, w, h, overlay.Rect.Dx(), overlay.Rect.Dy())

	u.setPixels(imaging.Overlay(u.Image, overlay, origin, s.opacity))
	return nil
}

func opacityOrDefault(p *float64) float64 {
	if p != nil {
		return *p
	}
	return domain.DefaultOpacity
}

func anchorOrDefault(anchor string) string {
	if anchor != "" {
		return anchor
	}
	return domain.DefaultAnchor
}
