package meta

import (
	"time"
)

// Orientation codes follow the EXIF convention (tag 0x0112, values 1-8).
// OrientationNone marks a carrier whose source had no usable orientation tag.
const (
	OrientationNone = 0
	OrientationUp   = 1
)

// GPS is a decoded coordinate pair in decimal degrees.
type GPS struct {
	Latitude  float64
	Longitude float64
}

// Carrier holds the embedded capture metadata that travels with a photo
// through the pipeline. Typed fields cover what the engine reads or rewrites;
// Raw keeps the full EXIF block for passthrough so tags the engine does not
// model survive a round trip.
type Carrier struct {
	CaptureTime time.Time
	Orientation int
	GPS         *GPS
	CameraMake  string
	CameraModel string

	// Raw is the source EXIF payload (TIFF block, possibly with the
	// "Exif\x00\x00" preamble). Nil when the source carried none.
	Raw []byte

	// Writable reports whether the output format can carry the orientation
	// tag back out, which is what lets Rotate rewrite metadata instead of
	// transposing pixels.
	Writable bool
}

// Clone returns an independently owned copy so parallel per-photo folds never
// alias a carrier.
func (c Carrier) Clone() Carrier {
	out := c
	if c.GPS != nil {
		gps := *c.GPS
		out.GPS = &gps
	}
	if c.Raw != nil {
		out.Raw = append([]byte(nil), c.Raw...)
	}
	return out
}

// OrientationWritable reports whether a step may rotate this photo by
// rewriting the orientation tag rather than touching pixels.
func (c Carrier) OrientationWritable() bool {
	return c.Writable && c.Orientation >= OrientationUp && c.Orientation <= 8
}

// Normalize resets the orientation to upright. Callers do this after applying
// the pending orientation to the pixel buffer.
func (c *Carrier) Normalize() {
	if c.Orientation != OrientationNone {
		c.Orientation = OrientationUp
	}
}

// Turn is a lossless quarter-turn rotation.
type Turn int

const (
	TurnCW90 Turn = iota
	TurnCCW90
	Turn180
)

func (t Turn) String() string {
	switch t {
	case TurnCW90:
		return "cw90"
	case TurnCCW90:
		return "ccw90"
	default:
		return "180"
	}
}

// SwapsDimensions reports whether the turn exchanges width and height.
func (t Turn) SwapsDimensions() bool {
	return t == TurnCW90 || t == TurnCCW90
}

// rotation tables over the eight EXIF orientation codes, indexed by code.
// Index 0 is unused.
var (
	rotateCW90  = [9]int{0, 6, 7, 8, 5, 2, 3, 4, 1}
	rotateCCW90 = [9]int{0, 8, 5, 6, 7, 4, 1, 2, 3}
	rotate180   = [9]int{0, 3, 4, 1, 2, 7, 8, 5, 6}
)

// ComposeOrientation returns the orientation code describing the photo after
// an additional turn is applied on top of the existing code. Codes outside
// 1-8 pass through unchanged.
func ComposeOrientation(code int, turn Turn) int {
	if code < OrientationUp || code > 8 {
		return code
	}
	switch turn {
	case TurnCW90:
		return rotateCW90[code]
	case TurnCCW90:
		return rotateCCW90[code]
	default:
		return rotate180[code]
	}
}
