package pipeline

import (
	"context"
	"fmt"
	"image"

	"github.com/dunamismax/photoflow/internal/domain"
)

// ExecContext carries per-photo execution state that is not part of the unit
// itself. Sequence is the photo's position in batch input order, used by
// rename counters; it is assigned once at dispatch so results are stable no
// matter which worker finishes first.
type ExecContext struct {
	Sequence int
}

// Step transforms one unit in place. Implementations are stateless after
// construction and safe for concurrent use across worker goroutines.
type Step interface {
	Op() domain.StepOp
	Apply(ctx context.Context, u *Unit, ec ExecContext) error
}

// OverlayOpener resolves an image_watermark overlay reference to a decoded
// image. The executor supplies one backed by the loader; previews may supply
// an in-memory fake.
type OverlayOpener func(ref string) (image.Image, error)

// CompileOptions configures spec compilation.
type CompileOptions struct {
	OpenOverlay OverlayOpener
}

// CompileSpecs validates an ordered spec list and materializes it into
// concrete steps. Font and overlay resources are loaded here, once per batch,
// so a bad reference fails the batch before any photo is touched.
func CompileSpecs(specs []domain.StepSpec, opts CompileOptions) ([]Step, error) {
	if err := domain.ValidateSpecs(specs); err != nil {
		return nil, err
	}

	steps := make([]Step, 0, len(specs))
	for i, spec := range specs {
		step, err := compileStep(spec, opts)
		if err != nil {
			return nil, fmt.Errorf("step[%d] %s: %w", i, spec.Op, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func compileStep(spec domain.StepSpec, opts CompileOptions) (Step, error) {
	switch spec.Op {
	case domain.OpResize:
		return newResizeStep(spec), nil
	case domain.OpRotate:
		return newRotateStep(spec), nil
	case domain.OpRename:
		return newRenameStep(spec), nil
	case domain.OpTextWatermark:
		return newTextWatermarkStep(spec)
	case domain.OpImageWatermark:
		return newImageWatermarkStep(spec, opts.OpenOverlay)
	case domain.OpWebPEncode:
		return newWebPEncodeStep(spec), nil
	default:
		return nil, fmt.Errorf("unknown op %q", spec.Op)
	}
}
