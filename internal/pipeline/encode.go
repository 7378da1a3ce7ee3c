package pipeline

import "image"

// encoder turns a pixel buffer into final bytes for one output codec. Two
// implementations exist: the pure-Go path built by default and a libvips path
// behind the govips build tag.
type encoder interface {
	Encode(img *image.NRGBA, format string, quality int, lossless bool) ([]byte, error)
}

// encodeUnit produces the unit's final output bytes, reusing a cached encode
// when no pixel step ran after it.
func encodeUnit(u *Unit) ([]byte, error) {
	if u.Encoded != nil {
		return u.Encoded, nil
	}
	data, err := activeEncoder().Encode(u.Image, u.Format, u.Quality, u.Lossless)
	if err != nil {
		return nil, failf(FailureEncodeError, "%s: %v", u.Format, err)
	}
	u.Encoded = data
	return data, nil
}

// ExtForFormat maps an output codec to its filename extension.
func ExtForFormat(format string) string {
	switch format {
	case "jpeg":
		return ".jpg"
	case "webp":
		return ".webp"
	default:
		return ".png"
	}
}
