package pipeline

import (
	"context"
	"math"

	"github.com/disintegration/imaging"

	"github.com/dunamismax/photoflow/internal/domain"
)

// resizeStep scales the pixel buffer with Lanczos resampling. All three modes
// resolve to a concrete target before touching pixels; a target matching the
// current dimensions leaves the buffer alone so repeated runs stay
// byte-stable.
type resizeStep struct {
	mode       string
	value      float64
	width      int
	height     int
	keepAspect bool
}

func newResizeStep(spec domain.StepSpec) *resizeStep {
	keep := true
	if spec.KeepAspect != nil {
		keep = *spec.KeepAspect
	}
	return &resizeStep{
		mode:       spec.Mode,
		value:      spec.Value,
		width:      spec.Width,
		height:     spec.Height,
		keepAspect: keep,
	}
}

func (s *resizeStep) Op() domain.StepOp { return domain.OpResize }

func (s *resizeStep) Apply(_ context.Context, u *Unit, _ ExecContext) error {
	u.normalizePixels()
	w, h := u.Image.Rect.Dx(), u.Image.Rect.Dy()
	if w < 1 || h < 1 {
		return failf(FailureInvalidInput, "resize: source has no pixels")
	}

	switch s.mode {
	case domain.ResizePercentage:
		tw := scaleDim(w, s.value)
		th := scaleDim(h, s.value)
		if tw == w && th == h {
			return nil
		}
		u.setPixels(toNRGBA(imaging.Resize(u.Image, tw, th, imaging.Lanczos)))

	case domain.ResizeMaxDimension:
		// Scales in both directions: a photo below the bound grows until its
		// longer side hits the target.
		target := int(s.value)
		if !s.keepAspect {
			if w == target && h == target {
				return nil
			}
			u.setPixels(toNRGBA(imaging.Resize(u.Image, target, target, imaging.Lanczos)))
			return nil
		}
		longest := w
		if h > longest {
			longest = h
		}
		if longest == target {
			return nil
		}
		if w >= h {
			u.setPixels(toNRGBA(imaging.Resize(u.Image, target, 0, imaging.Lanczos)))
		} else {
			u.setPixels(toNRGBA(imaging.Resize(u.Image, 0, target, imaging.Lanczos)))
		}

	case domain.ResizeExact:
		if w == s.width && h == s.height {
			return nil
		}
		if s.keepAspect {
			u.setPixels(toNRGBA(imaging.Fill(u.Image, s.width, s.height, imaging.Center, imaging.Lanczos)))
		} else {
			u.setPixels(toNRGBA(imaging.Resize(u.Image, s.width, s.height, imaging.Lanczos)))
		}
	}
	return nil
}

// scaleDim rounds half away from zero and clamps at 1px so a heavy shrink
// never produces an empty image.
func scaleDim(dim int, percent float64) int {
	scaled := int(math.Round(float64(dim) * percent / 100))
	if scaled < 1 {
		return 1
	}
	return scaled
}
