// Package loader turns source files into pipeline units: decoded pixels plus
// the parsed metadata carrier. Decoding understands JPEG, PNG, and WebP.
package loader

import (
	"bytes"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/dunamismax/photoflow/internal/meta"
	"github.com/dunamismax/photoflow/internal/pipeline"
)

// Load reads and decodes one photo. EXIF parse failures are not fatal: a
// photo with a corrupt or absent metadata block still processes, it just
// carries an empty carrier.
func Load(path string) (*pipeline.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &pipeline.StepFailure{Kind: pipeline.FailureInvalidInput, Message: fmt.Sprintf("read %s: %v", path, err)}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &pipeline.StepFailure{Kind: pipeline.FailureUnsupportedFormat, Message: fmt.Sprintf("decode %s: %v", path, err)}
	}

	carrier := parseCarrier(data, format)
	unit := pipeline.NewUnit(path, imaging.Clone(img), carrier)
	unit.SourceBytes = int64(len(data))
	if info, err := os.Stat(path); err == nil {
		unit.ModTime = info.ModTime()
	}
	return unit, nil
}

// OpenOverlay decodes a watermark overlay image. It satisfies
// pipeline.OverlayOpener.
func OpenOverlay(ref string) (image.Image, error) {
	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode overlay: %w", err)
	}
	return img, nil
}

// parseCarrier extracts the typed metadata fields and keeps the raw EXIF
// block for passthrough. Only JPEG output can carry the block back out.
func parseCarrier(data []byte, format string) meta.Carrier {
	carrier := meta.Carrier{Writable: format == "jpeg"}

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return carrier
	}
	carrier.Raw = x.Raw

	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil && v >= 1 && v <= 8 {
			carrier.Orientation = v
		}
	}
	if t, err := x.DateTime(); err == nil {
		carrier.CaptureTime = t
	}
	if lat, long, err := x.LatLong(); err == nil {
		carrier.GPS = &meta.GPS{Latitude: lat, Longitude: long}
	}
	if tag, err := x.Get(exif.Make); err == nil {
		if s, err := tag.StringVal(); err == nil {
			carrier.CameraMake = s
		}
	}
	if tag, err := x.Get(exif.Model); err == nil {
		if s, err := tag.StringVal(); err == nil {
			carrier.CameraModel = s
		}
	}
	return carrier
}
