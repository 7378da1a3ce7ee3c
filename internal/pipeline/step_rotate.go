package pipeline

import (
	"context"

	"github.com/disintegration/imaging"

	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/dunamismax/photoflow/internal/meta"
)

// rotateStep applies a lossless quarter-turn. When the output format can carry
// the orientation tag it composes the turn into the tag and leaves pixels
// untouched; otherwise it performs the exact transpose in pixel space. Both
// paths produce the same displayed image.
type rotateStep struct {
	turn meta.Turn
}

func newRotateStep(spec domain.StepSpec) *rotateStep {
	var turn meta.Turn
	switch spec.Direction {
	case domain.RotateCW90:
		turn = meta.TurnCW90
	case domain.RotateCCW90:
		turn = meta.TurnCCW90
	case domain.Rotate180:
		turn = meta.Turn180
	}
	return &rotateStep{turn: turn}
}

func (s *rotateStep) Op() domain.StepOp { return domain.OpRotate }

func (s *rotateStep) Apply(_ context.Context, u *Unit, _ ExecContext) error {
	if u.Meta.OrientationWritable() && u.Format == "jpeg" {
		u.Meta.Orientation = meta.ComposeOrientation(u.Meta.Orientation, s.turn)
		return nil
	}

	u.normalizePixels()
	switch s.turn {
	case meta.TurnCW90:
		// imaging rotates counter-clockwise, so a clockwise quarter-turn is
		// its Rotate270.
		u.setPixels(toNRGBA(imaging.Rotate270(u.Image)))
	case meta.TurnCCW90:
		u.setPixels(toNRGBA(imaging.Rotate90(u.Image)))
	default:
		u.setPixels(toNRGBA(imaging.Rotate180(u.Image)))
	}
	return nil
}
