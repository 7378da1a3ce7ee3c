package pipeline

import (
	"context"
	"errors"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/dunamismax/photoflow/internal/meta"
)

// Progress is called after every photo finishes, fails, or is skipped.
// Invocations are serialized; completed counts monotonically to total.
type Progress func(completed, total int, photo string)

// ExecOptions tunes one executor run.
type ExecOptions struct {
	// Workers caps the worker pool; zero means GOMAXPROCS-sized.
	Workers int
	// SequenceBase is the counter value of the first photo in input order.
	// Zero means 1.
	SequenceBase int
	OnProgress   Progress
}

// Executor fans a batch of units out over a worker pool, folds the compiled
// pipeline over each, and commits outputs through the router. Results come
// back in input order regardless of which worker finished first.
type Executor struct {
	router *Router
}

func NewExecutor(router *Router) *Executor {
	return &Executor{router: router}
}

// Run processes every unit and returns the aggregated report. Cancelling the
// context stops dispatch between photos: in-flight photos run to completion,
// unstarted ones are recorded as skipped and the report is marked partial.
func (e *Executor) Run(ctx context.Context, compiled *Compiled, units []*Unit, opts ExecOptions) domain.BatchReport {
	start := time.Now()
	total := len(units)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > total {
		workers = total
	}
	seqBase := opts.SequenceBase
	if seqBase <= 0 {
		seqBase = 1
	}

	results := make([]domain.ExecutionResult, total)
	jobs := make(chan int)

	var (
		progressMu sync.Mutex
		completed  int
	)
	report := func(idx int, res domain.ExecutionResult) {
		results[idx] = res
		if opts.OnProgress == nil {
			return
		}
		progressMu.Lock()
		completed++
		opts.OnProgress(completed, total, res.Photo)
		progressMu.Unlock()
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				u := units[idx]
				if ctx.Err() != nil {
					report(idx, skippedResult(u))
					continue
				}
				report(idx, e.processOne(ctx, compiled, u, seqBase+idx))
			}
		}()
	}

	for idx := range units {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	out := domain.BatchReport{
		Results: results,
		Elapsed: time.Since(start),
		Partial: ctx.Err() != nil,
	}
	for _, res := range results {
		switch res.Status {
		case domain.ResultSucceeded:
			out.Succeeded++
		case domain.ResultSkipped:
			out.Skipped++
		default:
			out.Failed++
		}
	}
	return out
}

func skippedResult(u *Unit) domain.ExecutionResult {
	return domain.ExecutionResult{
		Photo:     u.SourcePath,
		Status:    domain.ResultSkipped,
		StepIndex: -1,
		Reason:    "cancelled before start",
	}
}

// processOne runs the full fold-and-commit for a single photo. Failures are
// contained here: the result carries the failing step and reason, and the
// batch moves on.
func (e *Executor) processOne(ctx context.Context, compiled *Compiled, u *Unit, seq int) domain.ExecutionResult {
	res := domain.ExecutionResult{Photo: u.SourcePath, StepIndex: -1}

	stepIdx, err := compiled.run(ctx, u, ExecContext{Sequence: seq})
	if err != nil {
		res.Status = domain.ResultFailed
		res.StepIndex = stepIdx
		res.Reason = err.Error()
		return res
	}

	data, err := encodeUnit(u)
	if err != nil {
		res.Status = domain.ResultFailed
		res.Reason = err.Error()
		return res
	}

	if u.Format == "jpeg" {
		attached, err := meta.AttachJPEG(data, u.Meta, u.Image.Rect.Dx(), u.Image.Rect.Dy())
		if err != nil {
			res.Status = domain.ResultFailed
			res.Reason = (&StepFailure{Kind: FailureEncodeError, Message: "embed metadata: " + err.Error()}).Error()
			return res
		}
		data = attached
	}

	dir := e.router.DestDir(u.SourcePath, compiled.Ops())
	path, err := e.router.Reserve(dir, u.BaseName, ExtForFormat(u.Format))
	if err != nil {
		res.Status = domain.ResultFailed
		res.Reason = err.Error()
		return res
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		// Best effort: drop the reservation so a rerun can reuse the name.
		_ = os.Remove(path)
		res.Status = domain.ResultFailed
		res.Reason = err.Error()
		return res
	}

	w, h := u.DisplaySize()
	res.Status = domain.ResultSucceeded
	res.OutputPath = path
	res.SourceBytes = u.SourceBytes
	res.BytesWritten = int64(len(data))
	res.Width = w
	res.Height = h
	return res
}

// IsStepFailure extracts the failure classification from a fold error.
func IsStepFailure(err error) (*StepFailure, bool) {
	var sf *StepFailure
	if errors.As(err, &sf) {
		return sf, true
	}
	return nil, false
}
