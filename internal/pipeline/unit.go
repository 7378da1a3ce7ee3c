package pipeline

import (
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/dunamismax/photoflow/internal/meta"
)

// Unit is one photo flowing through a pipeline fold: an owned pixel buffer,
// an owned metadata carrier, and the naming/encoding state the steps mutate.
// A unit lives for exactly one fold and is never shared across concurrent
// folds.
type Unit struct {
	Image *image.NRGBA
	Meta  meta.Carrier

	SourcePath  string
	BaseName    string
	SourceBytes int64
	ModTime     time.Time

	// Output encoding state. Format is the output codec; Encoded holds the
	// current in-memory encode and is dropped whenever pixels change.
	Format   string
	Quality  int
	Lossless bool
	Encoded  []byte
}

const defaultQuality = 85

// NewUnit builds a unit from an externally decoded buffer and its parsed
// metadata. The output format defaults to the source extension's codec.
func NewUnit(sourcePath string, img *image.NRGBA, carrier meta.Carrier) *Unit {
	base := filepath.Base(sourcePath)
	ext := filepath.Ext(base)

	return &Unit{
		Image:      img,
		Meta:       carrier.Clone(),
		SourcePath: sourcePath,
		BaseName:   strings.TrimSuffix(base, ext),
		Format:     formatForExt(ext),
		Quality:    defaultQuality,
	}
}

func formatForExt(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		return "jpeg"
	case "webp":
		return "webp"
	default:
		return "png"
	}
}

// Clone deep-copies the unit so previews and determinism checks never mutate
// the original.
func (u *Unit) Clone() *Unit {
	out := *u
	out.Meta = u.Meta.Clone()
	if u.Image != nil {
		img := image.NewNRGBA(u.Image.Rect)
		copy(img.Pix, u.Image.Pix)
		img.Stride = u.Image.Stride
		out.Image = img
	}
	if u.Encoded != nil {
		out.Encoded = append([]byte(nil), u.Encoded...)
	}
	return &out
}

// DisplaySize returns the output dimensions as a viewer would see them,
// accounting for a pending orientation that swaps axes.
func (u *Unit) DisplaySize() (int, int) {
	w, h := u.Image.Rect.Dx(), u.Image.Rect.Dy()
	switch u.Meta.Orientation {
	case 5, 6, 7, 8:
		return h, w
	default:
		return w, h
	}
}

// setPixels swaps in a new buffer and drops any stale encode.
func (u *Unit) setPixels(img *image.NRGBA) {
	u.Image = img
	u.Encoded = nil
}

// normalizePixels applies a pending orientation to the buffer and resets the
// carrier to upright. Spatial steps call this before working in pixel space
// so anchors and exact dimensions mean what the viewer sees. This is the
// normalize-and-reset strategy; it is never combined with a tag rewrite
// inside one step.
func (u *Unit) normalizePixels() {
	o := u.Meta.Orientation
	if o <= meta.OrientationUp {
		u.Meta.Normalize()
		return
	}

	var img image.Image = u.Image
	switch o {
	case 2:
		img = imaging.FlipH(img)
	case 3:
		img = imaging.Rotate180(img)
	case 4:
		img = imaging.FlipV(img)
	case 5:
		img = imaging.Transpose(img)
	case 6:
		img = imaging.Rotate270(img)
	case 7:
		img = imaging.Transverse(img)
	case 8:
		img = imaging.Rotate90(img)
	}
	u.setPixels(toNRGBA(img))
	u.Meta.Normalize()
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n
	}
	return imaging.Clone(img)
}
