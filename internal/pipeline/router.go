package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dunamismax/photoflow/internal/domain"
)

// Output folder names, one per single-step kind plus the mixed-pipeline
// fallback.
const (
	folderResized     = "Resized"
	folderRotated     = "Rotated"
	folderRenamed     = "Renamed"
	folderWatermarked = "Watermarked"
	folderWebP        = "WebP"
	folderBatch       = "Batch Processed"
)

// Router decides where outputs land and reserves collision-free filenames.
// Reservation is serialized per destination directory; the actual byte write
// happens outside the lock.
type Router struct {
	outputRoot string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRouter builds a router. With a non-empty outputRoot every photo lands
// under it; otherwise each photo's output sits in a kind folder next to its
// source.
func NewRouter(outputRoot string) *Router {
	return &Router{
		outputRoot: outputRoot,
		locks:      make(map[string]*sync.Mutex),
	}
}

// folderForOps names the kind folder: a single-purpose pipeline gets its own
// folder, anything mixed goes to the batch folder. Watermark variants share
// one folder; a webp_encode anywhere in a single-purpose run keeps WebP.
func folderForOps(ops []domain.StepOp) string {
	kind := func(op domain.StepOp) string {
		switch op {
		case domain.OpResize:
			return folderResized
		case domain.OpRotate:
			return folderRotated
		case domain.OpRename:
			return folderRenamed
		case domain.OpTextWatermark, domain.OpImageWatermark:
			return folderWatermarked
		default:
			return folderWebP
		}
	}

	if len(ops) == 0 {
		return folderBatch
	}
	first := kind(ops[0])
	for _, op := range ops[1:] {
		if kind(op) != first {
			return folderBatch
		}
	}
	return first
}

// DestDir resolves the destination directory for one photo.
func (r *Router) DestDir(sourcePath string, ops []domain.StepOp) string {
	folder := folderForOps(ops)
	if r.outputRoot != "" {
		return filepath.Join(r.outputRoot, folder)
	}
	return filepath.Join(filepath.Dir(sourcePath), folder)
}

// Reserve claims a filename in dir, disambiguating with " (1)", " (2)", ...
// before the extension when the plain name is taken. The returned path exists
// as an empty file by the time Reserve returns, so concurrent workers can
// never hand out the same path twice.
func (r *Router) Reserve(dir, base, ext string) (string, error) {
	lock := r.dirLock(dir)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	for n := 0; ; n++ {
		name := base + ext
		if n > 0 {
			name = fmt.Sprintf("%s (%d)%s", base, n, ext)
		}
		path := filepath.Join(dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return "", fmt.Errorf("reserve %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return "", err
		}
		return path, nil
	}
}

func (r *Router) dirLock(dir string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[dir]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[dir] = lock
	}
	return lock
}
