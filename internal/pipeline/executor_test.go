package pipeline

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/dunamismax/photoflow/internal/meta"
)

func tempUnits(t *testing.T, dir string, names ...string) []*Unit {
	t.Helper()
	units := make([]*Unit, len(names))
	for i, name := range names {
		units[i] = newTestUnit(filepath.Join(dir, name), 40, 30)
	}
	return units
}

func TestExecutorWritesOutputsInInputOrder(t *testing.T) {
	dir := t.TempDir()
	units := tempUnits(t, dir, "a.png", "b.png", "c.png")
	compiled := mustCompile(t, resizeSpec(50))

	executor := NewExecutor(NewRouter(""))
	report := executor.Run(context.Background(), compiled, units, ExecOptions{Workers: 3})

	if report.Succeeded != 3 || report.Failed != 0 || report.Partial {
		t.Fatalf("unexpected report %+v", report)
	}
	for i, name := range []string{"a.png", "b.png", "c.png"} {
		res := report.Results[i]
		if res.Photo != filepath.Join(dir, name) {
			t.Fatalf("result %d out of order: %s", i, res.Photo)
		}
		if res.Width != 20 || res.Height != 15 {
			t.Fatalf("result %d: expected 20x15, got %dx%d", i, res.Width, res.Height)
		}
		if _, err := os.Stat(res.OutputPath); err != nil {
			t.Fatalf("output missing for %s: %v", name, err)
		}
		if filepath.Dir(res.OutputPath) != filepath.Join(dir, folderResized) {
			t.Fatalf("output landed in the wrong folder: %s", res.OutputPath)
		}
	}
}

func TestExecutorOneBadPhotoDoesNotSinkTheBatch(t *testing.T) {
	dir := t.TempDir()
	units := tempUnits(t, dir, "a.png", "b.png", "c.png")
	// An empty buffer fails resize with invalid_input.
	units[1].Image = image.NewNRGBA(image.Rect(0, 0, 0, 0))

	compiled := mustCompile(t, resizeSpec(50))
	executor := NewExecutor(NewRouter(""))
	report := executor.Run(context.Background(), compiled, units, ExecOptions{Workers: 2})

	if report.Succeeded != 2 || report.Failed != 1 {
		t.Fatalf("expected 2 succeeded and 1 failed, got %+v", report)
	}
	bad := report.Results[1]
	if bad.Status != domain.ResultFailed {
		t.Fatalf("expected the middle photo to fail, got %+v", bad)
	}
	if bad.StepIndex != 0 {
		t.Fatalf("expected failing step 0, got %d", bad.StepIndex)
	}
	if bad.Reason == "" {
		t.Fatal("expected a failure reason")
	}
}

func TestExecutorProgressIsMonotonic(t *testing.T) {
	dir := t.TempDir()
	units := tempUnits(t, dir, "a.png", "b.png", "c.png", "d.png")
	compiled := mustCompile(t, resizeSpec(50))

	var calls []int
	executor := NewExecutor(NewRouter(""))
	executor.Run(context.Background(), compiled, units, ExecOptions{
		Workers: 4,
		OnProgress: func(completed, total int, _ string) {
			if total != 4 {
				t.Errorf("expected total 4, got %d", total)
			}
			calls = append(calls, completed)
		},
	})

	if len(calls) != 4 {
		t.Fatalf("expected 4 progress calls, got %d", len(calls))
	}
	for i, c := range calls {
		if c != i+1 {
			t.Fatalf("progress not monotonic: %v", calls)
		}
	}
}

func TestExecutorCancelledContextSkipsAndMarksPartial(t *testing.T) {
	dir := t.TempDir()
	units := tempUnits(t, dir, "a.png", "b.png")
	compiled := mustCompile(t, resizeSpec(50))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	executor := NewExecutor(NewRouter(""))
	report := executor.Run(ctx, compiled, units, ExecOptions{Workers: 1})

	if !report.Partial {
		t.Fatal("expected a partial report")
	}
	if report.Skipped != 2 {
		t.Fatalf("expected 2 skipped, got %+v", report)
	}
	for _, res := range report.Results {
		if res.Status != domain.ResultSkipped {
			t.Fatalf("expected skipped results, got %+v", res)
		}
	}
}

func TestExecutorSequenceFollowsInputOrder(t *testing.T) {
	dir := t.TempDir()
	units := tempUnits(t, dir, "a.png", "b.png", "c.png")
	compiled := mustCompile(t, domain.StepSpec{Op: domain.OpRename, Pattern: "photo_{NN}"})

	executor := NewExecutor(NewRouter(""))
	report := executor.Run(context.Background(), compiled, units, ExecOptions{Workers: 3})

	for i, res := range report.Results {
		want := []string{"photo_01.png", "photo_02.png", "photo_03.png"}[i]
		if filepath.Base(res.OutputPath) != want {
			t.Fatalf("result %d: expected %s, got %s", i, want, filepath.Base(res.OutputPath))
		}
	}
}

func TestExecutorDisambiguatesCollidingNames(t *testing.T) {
	dir := t.TempDir()
	units := tempUnits(t, dir, "a.png", "b.png", "c.png")
	// Renaming without a counter gives every photo the same base name.
	compiled := mustCompile(t, domain.StepSpec{Op: domain.OpRename, Pattern: "holiday"})

	executor := NewExecutor(NewRouter(""))
	report := executor.Run(context.Background(), compiled, units, ExecOptions{Workers: 3})

	if report.Succeeded != 3 {
		t.Fatalf("expected 3 successes, got %+v", report)
	}
	seen := make(map[string]bool)
	for _, res := range report.Results {
		if seen[res.OutputPath] {
			t.Fatalf("output path reused: %s", res.OutputPath)
		}
		seen[res.OutputPath] = true
	}
}

func TestExecutorMixedPipelineRoutesToBatchFolder(t *testing.T) {
	dir := t.TempDir()
	u := newTestUnit(filepath.Join(dir, "vacation.png"), 4000, 3000)

	compiled := mustCompile(t,
		domain.StepSpec{Op: domain.OpResize, Mode: domain.ResizeMaxDimension, Value: 1920},
		domain.StepSpec{Op: domain.OpTextWatermark, Text: "© 2026", Anchor: "bottom_right"},
	)
	executor := NewExecutor(NewRouter(""))
	report := executor.Run(context.Background(), compiled, []*Unit{u}, ExecOptions{Workers: 1})

	if report.Succeeded != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	res := report.Results[0]
	if res.Width != 1920 || res.Height != 1440 {
		t.Fatalf("expected 1920x1440, got %dx%d", res.Width, res.Height)
	}
	if filepath.Dir(res.OutputPath) != filepath.Join(dir, folderBatch) {
		t.Fatalf("expected the batch folder, got %s", res.OutputPath)
	}
}

func TestExecutorEmbedsOrientationInJPEGOutput(t *testing.T) {
	dir := t.TempDir()
	u := newTestUnit(filepath.Join(dir, "a.jpg"), 40, 30)
	u.Meta.Writable = true
	u.Meta.Orientation = meta.OrientationUp

	compiled := mustCompile(t, domain.StepSpec{Op: domain.OpRotate, Direction: domain.RotateCW90})
	executor := NewExecutor(NewRouter(""))
	report := executor.Run(context.Background(), compiled, []*Unit{u}, ExecOptions{Workers: 1})

	if report.Succeeded != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	res := report.Results[0]
	if res.Width != 30 || res.Height != 40 {
		t.Fatalf("expected displayed 30x40, got %dx%d", res.Width, res.Height)
	}

	data, err := os.ReadFile(res.OutputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Fatal("output is not a JPEG stream")
	}
}
