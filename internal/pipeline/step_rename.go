package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dunamismax/photoflow/internal/domain"
)

// renameStep rewrites the unit's base name from a placeholder template. Date
// tokens resolve from the photo's capture time, falling back to the source
// file's modification time, so two runs over the same inputs always produce
// the same names. Counter tokens use the photo's batch sequence number.
type renameStep struct {
	pattern string
}

func newRenameStep(spec domain.StepSpec) *renameStep {
	return &renameStep{pattern: spec.Pattern}
}

func (s *renameStep) Op() domain.StepOp { return domain.OpRename }

func (s *renameStep) Apply(_ context.Context, u *Unit, ec ExecContext) error {
	when := u.Meta.CaptureTime
	if when.IsZero() {
		when = u.ModTime
	}

	name := sanitizeName(expandPattern(s.pattern, u.BaseName, when, ec.Sequence))
	if name == "" {
		return failf(FailureInvalidInput, "rename: pattern %q produced an empty name", s.pattern)
	}
	u.BaseName = name
	return nil
}

// sanitizeName strips characters that are unsafe in file names on common
// filesystems, then trims surrounding whitespace. Path separators are
// stripped too so a rename can never escape its output folder.
func sanitizeName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(cleaned)
}

func expandPattern(pattern, original string, when time.Time, seq int) string {
	r := strings.NewReplacer(
		"{original}", original,
		"{YYYY}", when.Format("2006"),
		"{MM}", when.Format("01"),
		"{DD}", when.Format("02"),
		"{YYMMDD}", when.Format("060102"),
		"{NNN}", fmt.Sprintf("%03d", seq),
		"{NN}", fmt.Sprintf("%02d", seq),
		"{N}", fmt.Sprintf("%d", seq),
	)
	return r.Replace(pattern)
}
