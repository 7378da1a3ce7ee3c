package pipeline

import (
	"context"
	"fmt"

	"github.com/dunamismax/photoflow/internal/domain"
)

// Pipeline is an ordered, editable list of step specs. Reordering happens
// here, before execution; Compile freezes the list into immutable steps that
// workers share for the whole batch.
type Pipeline struct {
	specs []domain.StepSpec
}

func New(specs ...domain.StepSpec) *Pipeline {
	return &Pipeline{specs: append([]domain.StepSpec(nil), specs...)}
}

func (p *Pipeline) Len() int { return len(p.specs) }

// Specs returns a copy so callers cannot mutate the list behind the
// pipeline's back.
func (p *Pipeline) Specs() []domain.StepSpec {
	return append([]domain.StepSpec(nil), p.specs...)
}

func (p *Pipeline) Append(spec domain.StepSpec) {
	p.specs = append(p.specs, spec)
}

// MoveUp swaps the step with its predecessor. The first step stays put.
func (p *Pipeline) MoveUp(i int) bool {
	if i <= 0 || i >= len(p.specs) {
		return false
	}
	p.specs[i-1], p.specs[i] = p.specs[i], p.specs[i-1]
	return true
}

// MoveDown swaps the step with its successor. The last step stays put.
func (p *Pipeline) MoveDown(i int) bool {
	if i < 0 || i >= len(p.specs)-1 {
		return false
	}
	p.specs[i], p.specs[i+1] = p.specs[i+1], p.specs[i]
	return true
}

func (p *Pipeline) Remove(i int) bool {
	if i < 0 || i >= len(p.specs) {
		return false
	}
	p.specs = append(p.specs[:i], p.specs[i+1:]...)
	return true
}

// Validate returns every construction-time violation, indexed by step.
func (p *Pipeline) Validate() []string {
	var all []string
	for i, s := range p.specs {
		for _, violation := range s.Validate() {
			all = append(all, fmt.Sprintf("step[%d] %s", i, violation))
		}
	}
	return all
}

// Compile validates and materializes the pipeline. An empty pipeline compiles
// to the identity transform.
func (p *Pipeline) Compile(opts CompileOptions) (*Compiled, error) {
	steps, err := CompileSpecs(p.specs, opts)
	if err != nil {
		return nil, err
	}
	return &Compiled{steps: steps}, nil
}

// Compiled is a frozen pipeline: safe to share across worker goroutines.
type Compiled struct {
	steps []Step
}

func (c *Compiled) Len() int { return len(c.steps) }

// Ops lists the compiled step operations in order.
func (c *Compiled) Ops() []domain.StepOp {
	ops := make([]domain.StepOp, len(c.steps))
	for i, s := range c.steps {
		ops[i] = s.Op()
	}
	return ops
}

// run folds the steps over one unit. On failure it returns the index of the
// step that rejected the photo; -1 means no step failed. Cancellation is
// checked only before the first step so an in-flight photo always finishes.
func (c *Compiled) run(ctx context.Context, u *Unit, ec ExecContext) (int, error) {
	if err := ctx.Err(); err != nil {
		return -1, err
	}
	for i, step := range c.steps {
		if err := step.Apply(ctx, u, ec); err != nil {
			return i, err
		}
	}
	return -1, nil
}
