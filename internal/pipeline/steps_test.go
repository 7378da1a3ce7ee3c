package pipeline

import (
	"bytes"
	"context"
	"image"
	"testing"
	"time"

	"github.com/chai2010/webp"

	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/dunamismax/photoflow/internal/meta"
)

func mustCompile(t *testing.T, specs ...domain.StepSpec) *Compiled {
	t.Helper()
	compiled, err := New(specs...).Compile(CompileOptions{
		OpenOverlay: func(string) (image.Image, error) {
			white := image.NewNRGBA(image.Rect(0, 0, 10, 10))
			for i := range white.Pix {
				white.Pix[i] = 0xFF
			}
			return white, nil
		},
	})
	if err != nil {
		t.Fatalf("compile returned error: %v", err)
	}
	return compiled
}

func applyStep(t *testing.T, u *Unit, spec domain.StepSpec) {
	t.Helper()
	compiled := mustCompile(t, spec)
	if _, err := compiled.run(context.Background(), u, ExecContext{Sequence: 1}); err != nil {
		t.Fatalf("step %s returned error: %v", spec.Op, err)
	}
}

func TestResizePercentage(t *testing.T) {
	u := newTestUnit("/photos/a.png", 100, 80)
	applyStep(t, u, domain.StepSpec{Op: domain.OpResize, Mode: domain.ResizePercentage, Value: 50})

	if u.Image.Rect.Dx() != 50 || u.Image.Rect.Dy() != 40 {
		t.Fatalf("expected 50x40, got %dx%d", u.Image.Rect.Dx(), u.Image.Rect.Dy())
	}
}

func TestResizePercentageClampsToOnePixel(t *testing.T) {
	u := newTestUnit("/photos/a.png", 10, 10)
	applyStep(t, u, domain.StepSpec{Op: domain.OpResize, Mode: domain.ResizePercentage, Value: 1})

	if u.Image.Rect.Dx() < 1 || u.Image.Rect.Dy() < 1 {
		t.Fatalf("expected at least 1x1, got %dx%d", u.Image.Rect.Dx(), u.Image.Rect.Dy())
	}
}

func TestResizeMaxDimensionShrinksLongestSide(t *testing.T) {
	u := newTestUnit("/photos/a.png", 400, 300)
	applyStep(t, u, domain.StepSpec{Op: domain.OpResize, Mode: domain.ResizeMaxDimension, Value: 192})

	if u.Image.Rect.Dx() != 192 || u.Image.Rect.Dy() != 144 {
		t.Fatalf("expected 192x144, got %dx%d", u.Image.Rect.Dx(), u.Image.Rect.Dy())
	}
}

func TestResizeMaxDimensionGrowsSmallPhotos(t *testing.T) {
	u := newTestUnit("/photos/a.png", 800, 600)
	applyStep(t, u, domain.StepSpec{Op: domain.OpResize, Mode: domain.ResizeMaxDimension, Value: 1920})

	if u.Image.Rect.Dx() != 1920 || u.Image.Rect.Dy() != 1440 {
		t.Fatalf("expected 1920x1440, got %dx%d", u.Image.Rect.Dx(), u.Image.Rect.Dy())
	}
}

func TestResizeMaxDimensionExactMatchPassesThrough(t *testing.T) {
	u := newTestUnit("/photos/a.png", 192, 144)
	before := u.Image
	applyStep(t, u, domain.StepSpec{Op: domain.OpResize, Mode: domain.ResizeMaxDimension, Value: 192})

	if u.Image != before {
		t.Fatal("a photo whose longest side already matches the bound must pass through untouched")
	}
}

func TestResizeMaxDimensionForcesBothAxesWithoutAspect(t *testing.T) {
	noAspect := false
	u := newTestUnit("/photos/a.png", 400, 300)
	applyStep(t, u, domain.StepSpec{Op: domain.OpResize, Mode: domain.ResizeMaxDimension, Value: 192, KeepAspect: &noAspect})

	if u.Image.Rect.Dx() != 192 || u.Image.Rect.Dy() != 192 {
		t.Fatalf("expected 192x192, got %dx%d", u.Image.Rect.Dx(), u.Image.Rect.Dy())
	}
}

func TestResizeExactStretchAndCrop(t *testing.T) {
	noAspect := false
	u := newTestUnit("/photos/a.png", 100, 100)
	applyStep(t, u, domain.StepSpec{Op: domain.OpResize, Mode: domain.ResizeExact, Width: 50, Height: 20, KeepAspect: &noAspect})
	if u.Image.Rect.Dx() != 50 || u.Image.Rect.Dy() != 20 {
		t.Fatalf("stretch: expected 50x20, got %dx%d", u.Image.Rect.Dx(), u.Image.Rect.Dy())
	}

	u = newTestUnit("/photos/a.png", 100, 100)
	applyStep(t, u, domain.StepSpec{Op: domain.OpResize, Mode: domain.ResizeExact, Width: 50, Height: 20})
	if u.Image.Rect.Dx() != 50 || u.Image.Rect.Dy() != 20 {
		t.Fatalf("fill: expected 50x20, got %dx%d", u.Image.Rect.Dx(), u.Image.Rect.Dy())
	}
}

func TestRotatePixelPath(t *testing.T) {
	u := newTestUnit("/photos/a.png", 2, 1)
	a := u.Image.NRGBAAt(0, 0)
	b := u.Image.NRGBAAt(1, 0)

	applyStep(t, u, domain.StepSpec{Op: domain.OpRotate, Direction: domain.RotateCW90})

	if u.Image.Rect.Dx() != 1 || u.Image.Rect.Dy() != 2 {
		t.Fatalf("expected 1x2, got %dx%d", u.Image.Rect.Dx(), u.Image.Rect.Dy())
	}
	if u.Image.NRGBAAt(0, 0) != a || u.Image.NRGBAAt(0, 1) != b {
		t.Fatal("clockwise quarter-turn moved pixels to the wrong cells")
	}
}

func TestRotateMetadataPathLeavesPixelsAlone(t *testing.T) {
	u := newTestUnit("/photos/a.jpg", 4, 2)
	u.Meta.Orientation = meta.OrientationUp
	u.Meta.Writable = true
	before := u.Image

	applyStep(t, u, domain.StepSpec{Op: domain.OpRotate, Direction: domain.RotateCW90})

	if u.Image != before {
		t.Fatal("metadata rotation must not touch pixels")
	}
	if u.Meta.Orientation != 6 {
		t.Fatalf("expected orientation 6, got %d", u.Meta.Orientation)
	}
	if w, h := u.DisplaySize(); w != 2 || h != 4 {
		t.Fatalf("expected displayed 2x4, got %dx%d", w, h)
	}
}

func TestRotateFourTimesIsIdentity(t *testing.T) {
	u := newTestUnit("/photos/a.png", 5, 3)
	original := u.Clone()

	spec := domain.StepSpec{Op: domain.OpRotate, Direction: domain.RotateCW90}
	for i := 0; i < 4; i++ {
		applyStep(t, u, spec)
	}

	if !samePixels(u.Image, original.Image) {
		t.Fatal("four clockwise quarter-turns must restore the exact pixels")
	}
}

func TestRenameTokens(t *testing.T) {
	u := newTestUnit("/photos/IMG_4012.jpg", 4, 4)
	u.Meta.CaptureTime = time.Date(2023, 7, 14, 10, 30, 0, 0, time.UTC)

	compiled := mustCompile(t, domain.StepSpec{Op: domain.OpRename, Pattern: "{YYYY}-{MM}-{DD}_{original}_{NNN}"})
	if _, err := compiled.run(context.Background(), u, ExecContext{Sequence: 7}); err != nil {
		t.Fatalf("rename returned error: %v", err)
	}

	if u.BaseName != "2023-07-14_IMG_4012_007" {
		t.Fatalf("unexpected name %q", u.BaseName)
	}
}

func TestRenameFallsBackToModTime(t *testing.T) {
	u := newTestUnit("/photos/a.jpg", 4, 4)
	u.ModTime = time.Date(2021, 12, 31, 8, 0, 0, 0, time.UTC)

	applyStep(t, u, domain.StepSpec{Op: domain.OpRename, Pattern: "{YYMMDD}_{original}"})

	if u.BaseName != "211231_a" {
		t.Fatalf("unexpected name %q", u.BaseName)
	}
}

func TestRenameEmptyResultFails(t *testing.T) {
	u := newTestUnit("/photos/a.jpg", 4, 4)
	u.BaseName = ""

	compiled := mustCompile(t, domain.StepSpec{Op: domain.OpRename, Pattern: "{original}"})
	idx, err := compiled.run(context.Background(), u, ExecContext{Sequence: 1})
	if err == nil {
		t.Fatal("expected an error for an empty result")
	}
	if idx != 0 {
		t.Fatalf("expected failing step 0, got %d", idx)
	}
	sf, ok := IsStepFailure(err)
	if !ok || sf.Kind != FailureInvalidInput {
		t.Fatalf("expected invalid_input failure, got %v", err)
	}
}

func TestRenameStripsUnsafeCharacters(t *testing.T) {
	u := newTestUnit("/photos/a.jpg", 4, 4)

	compiled := mustCompile(t, domain.StepSpec{Op: domain.OpRename, Pattern: "a/b_{N}"})
	if _, err := compiled.run(context.Background(), u, ExecContext{Sequence: 1}); err != nil {
		t.Fatalf("rename returned error: %v", err)
	}

	if u.BaseName != "ab_1" {
		t.Fatalf("expected %q, got %q", "ab_1", u.BaseName)
	}
}

func TestRenameAllUnsafeCharactersFails(t *testing.T) {
	u := newTestUnit("/photos/a.jpg", 4, 4)

	compiled := mustCompile(t, domain.StepSpec{Op: domain.OpRename, Pattern: `<>:"/\|?*`})
	_, err := compiled.run(context.Background(), u, ExecContext{Sequence: 1})
	sf, ok := IsStepFailure(err)
	if !ok || sf.Kind != FailureInvalidInput {
		t.Fatalf("expected invalid_input failure, got %v", err)
	}
}

func TestTextWatermarkStampsBottomRight(t *testing.T) {
	opaque := 1.0
	u := NewUnit("/photos/a.png", image.NewNRGBA(image.Rect(0, 0, 200, 100)), meta.Carrier{})
	for i := 3; i < len(u.Image.Pix); i += 4 {
		u.Image.Pix[i] = 0xFF
	}
	original := u.Clone()

	applyStep(t, u, domain.StepSpec{
		Op:      domain.OpTextWatermark,
		Text:    "PHOTO",
		SizePt:  24,
		Color:   "#FFFFFF",
		Opacity: &opaque,
	})

	if samePixels(u.Image, original.Image) {
		t.Fatal("expected the watermark to change pixels")
	}
	for y := 0; y < 25; y++ {
		for x := 0; x < 50; x++ {
			if u.Image.NRGBAAt(x, y) != original.Image.NRGBAAt(x, y) {
				t.Fatalf("top-left quadrant changed at (%d,%d)", x, y)
			}
		}
	}
}

func TestImageWatermarkScalesAndAnchors(t *testing.T) {
	opaque := 1.0
	u := NewUnit("/photos/a.png", image.NewNRGBA(image.Rect(0, 0, 100, 100)), meta.Carrier{})
	for i := 3; i < len(u.Image.Pix); i += 4 {
		u.Image.Pix[i] = 0xFF
	}

	applyStep(t, u, domain.StepSpec{
		Op:           domain.OpImageWatermark,
		Overlay:      "logo.png",
		ScalePercent: 20,
		Anchor:       "top_left",
		Opacity:      &opaque,
	})

	// 20% of a 100px base is a 20x20 overlay at margin (20,20).
	inside := u.Image.NRGBAAt(25, 25)
	if inside.R < 200 || inside.G < 200 || inside.B < 200 {
		t.Fatalf("expected white overlay pixel, got %v", inside)
	}
	outside := u.Image.NRGBAAt(60, 60)
	if outside.R != 0 || outside.G != 0 || outside.B != 0 {
		t.Fatalf("expected untouched pixel outside the overlay, got %v", outside)
	}
}

func TestImageWatermarkTallOverlayFitsInsteadOfCropping(t *testing.T) {
	steps, err := CompileSpecs([]domain.StepSpec{
		{Op: domain.OpImageWatermark, Overlay: "banner.png", ScalePercent: 50},
	}, CompileOptions{
		OpenOverlay: func(string) (image.Image, error) {
			// 10x100 overlay: at 50% of a 40px base it would be 20x200,
			// far taller than the 30px base.
			return image.NewNRGBA(image.Rect(0, 0, 10, 100)), nil
		},
	})
	if err != nil {
		t.Fatalf("compile returned error: %v", err)
	}

	u := newTestUnit("/photos/a.png", 40, 30)
	if err := steps[0].Apply(context.Background(), u, ExecContext{Sequence: 1}); err != nil {
		t.Fatalf("apply returned error: %v", err)
	}
	if u.Image.Rect.Dx() != 40 || u.Image.Rect.Dy() != 30 {
		t.Fatalf("base dimensions changed: %dx%d", u.Image.Rect.Dx(), u.Image.Rect.Dy())
	}
}

func TestImageWatermarkRequiresOpener(t *testing.T) {
	_, err := New(domain.StepSpec{Op: domain.OpImageWatermark, Overlay: "logo.png"}).Compile(CompileOptions{})
	if err == nil {
		t.Fatal("expected an error without an overlay opener")
	}
}

func TestWebPEncodeSetsFormatAndCaches(t *testing.T) {
	q := 70
	u := newTestUnit("/photos/a.jpg", 16, 16)
	applyStep(t, u, domain.StepSpec{Op: domain.OpWebPEncode, Quality: &q})

	if u.Format != "webp" {
		t.Fatalf("expected webp format, got %s", u.Format)
	}
	if u.Quality != 70 {
		t.Fatalf("expected quality 70, got %d", u.Quality)
	}
	if len(u.Encoded) == 0 {
		t.Fatal("expected a cached encode")
	}
	// RIFF....WEBP container header.
	if !bytes.HasPrefix(u.Encoded, []byte("RIFF")) {
		t.Fatal("cached bytes are not a WebP container")
	}
}

func TestWebPLosslessRoundTripsPixels(t *testing.T) {
	u := newTestUnit("/photos/a.png", 12, 9)
	applyStep(t, u, domain.StepSpec{Op: domain.OpWebPEncode, Lossless: true})

	decoded, err := webp.Decode(bytes.NewReader(u.Encoded))
	if err != nil {
		t.Fatalf("decode webp: %v", err)
	}
	for y := 0; y < 9; y++ {
		for x := 0; x < 12; x++ {
			wr, wg, wb, wa := u.Image.NRGBAAt(x, y).RGBA()
			gr, gg, gb, ga := decoded.At(x, y).RGBA()
			if wr != gr || wg != gg || wb != gb || wa != ga {
				t.Fatalf("pixel (%d,%d) differs after lossless round trip", x, y)
			}
		}
	}
}

func TestPixelStepAfterWebPDropsStaleEncode(t *testing.T) {
	u := newTestUnit("/photos/a.png", 20, 20)
	compiled := mustCompile(t,
		domain.StepSpec{Op: domain.OpWebPEncode, Lossless: true},
		domain.StepSpec{Op: domain.OpResize, Mode: domain.ResizePercentage, Value: 50},
	)
	if _, err := compiled.run(context.Background(), u, ExecContext{Sequence: 1}); err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	if u.Encoded != nil {
		t.Fatal("resize after webp_encode must drop the cached encode")
	}
	if u.Format != "webp" {
		t.Fatal("the output format must stay webp")
	}

	data, err := encodeUnit(u)
	if err != nil {
		t.Fatalf("re-encode returned error: %v", err)
	}
	decoded, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode webp: %v", err)
	}
	if decoded.Bounds().Dx() != 10 {
		t.Fatalf("expected re-encode at 10px, got %d", decoded.Bounds().Dx())
	}
}
