package pipeline

import (
	"context"
	"image"

	"github.com/disintegration/imaging"
)

// PreviewMaxDimension caps the working copy's longest side before the steps
// run, keeping previews cheap on large sources.
const PreviewMaxDimension = 1280

// Preview is an in-memory rendering of the pipeline over one photo. Nothing
// touches the filesystem and the source unit is left untouched.
type Preview struct {
	Image    *image.NRGBA
	FileName string
	Format   string
}

// RenderPreview clones the unit, downscales it to the preview bound, and runs
// the same compiled steps the batch would run. Any pending rotation is folded
// into pixels so the caller can blit the image directly.
func RenderPreview(ctx context.Context, compiled *Compiled, u *Unit, seq int) (Preview, error) {
	work := u.Clone()
	work.normalizePixels()

	w, h := work.Image.Rect.Dx(), work.Image.Rect.Dy()
	if w > PreviewMaxDimension || h > PreviewMaxDimension {
		work.setPixels(toNRGBA(imaging.Fit(work.Image, PreviewMaxDimension, PreviewMaxDimension, imaging.Lanczos)))
	}

	if seq <= 0 {
		seq = 1
	}
	if _, err := compiled.run(ctx, work, ExecContext{Sequence: seq}); err != nil {
		return Preview{}, err
	}
	work.normalizePixels()

	return Preview{
		Image:    work.Image,
		FileName: work.BaseName + ExtForFormat(work.Format),
		Format:   work.Format,
	}, nil
}
