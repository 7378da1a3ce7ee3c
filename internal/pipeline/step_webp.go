package pipeline

import (
	"context"

	"github.com/dunamismax/photoflow/internal/domain"
)

// webpEncodeStep switches the unit's output codec to WebP and encodes
// eagerly. The encode is cached on the unit; a later pixel-mutating step
// drops it and the commit path re-encodes with the same settings, so the
// step's position in the pipeline never changes the final bytes' meaning.
type webpEncodeStep struct {
	quality  int
	lossless bool
}

func newWebPEncodeStep(spec domain.StepSpec) *webpEncodeStep {
	quality := domain.DefaultWebPQuality
	if spec.Quality != nil {
		quality = *spec.Quality
	}
	return &webpEncodeStep{quality: quality, lossless: spec.Lossless}
}

func (s *webpEncodeStep) Op() domain.StepOp { return domain.OpWebPEncode }

func (s *webpEncodeStep) Apply(_ context.Context, u *Unit, _ ExecContext) error {
	// WebP output cannot carry the orientation tag through this encoder, so
	// any pending rotation lands in pixels first.
	u.normalizePixels()

	u.Format = "webp"
	u.Quality = s.quality
	u.Lossless = s.lossless

	data, err := activeEncoder().Encode(u.Image, "webp", s.quality, s.lossless)
	if err != nil {
		return failf(FailureEncodeError, "webp_encode: %v", err)
	}
	u.Encoded = data
	return nil
}
