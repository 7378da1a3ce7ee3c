package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// StepOp enumerates the closed set of transform operations. There is no
// runtime registration: every op is a known case, validated exhaustively.
type StepOp string

const (
	OpResize         StepOp = "resize"
	OpRotate         StepOp = "rotate"
	OpRename         StepOp = "rename"
	OpTextWatermark  StepOp = "text_watermark"
	OpImageWatermark StepOp = "image_watermark"
	OpWebPEncode     StepOp = "webp_encode"
)

// Resize modes.
const (
	ResizePercentage   = "percentage"
	ResizeMaxDimension = "max_dimension"
	ResizeExact        = "exact"
)

// Rotate directions.
const (
	RotateCW90  = "cw90"
	RotateCCW90 = "ccw90"
	Rotate180   = "180"
)

// Anchor names for watermark placement.
var Anchors = []string{
	"top_left", "top_center", "top_right",
	"center_left", "center", "center_right",
	"bottom_left", "bottom_center", "bottom_right",
}

const (
	DefaultAnchor       = "bottom_right"
	DefaultOpacity      = 0.5
	DefaultFontSizePt   = 36.0
	DefaultScalePercent = 20.0
	DefaultWebPQuality  = 85
)

// StepSpec is the wire-level description of one pipeline step: a flat field
// set tagged by Op. Fields recognized per op are exactly those validated
// below; anything else is a validation error, never silently ignored.
type StepSpec struct {
	Op StepOp `json:"op"`

	// resize
	Mode       string  `json:"mode,omitempty"`
	Value      float64 `json:"value,omitempty"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	KeepAspect *bool   `json:"keep_aspect,omitempty"`

	// rotate
	Direction string `json:"direction,omitempty"`

	// rename
	Pattern string `json:"pattern,omitempty"`

	// text_watermark / image_watermark
	Text         string   `json:"text,omitempty"`
	Font         string   `json:"font,omitempty"`
	SizePt       float64  `json:"size_pt,omitempty"`
	Color        string   `json:"color,omitempty"`
	Opacity      *float64 `json:"opacity,omitempty"`
	Anchor       string   `json:"anchor,omitempty"`
	Overlay      string   `json:"overlay,omitempty"`
	ScalePercent float64  `json:"scale_percent,omitempty"`

	// webp_encode
	Quality  *int `json:"quality,omitempty"`
	Lossless bool `json:"lossless,omitempty"`
}

// UnmarshalJSON rejects unknown fields so a misspelled parameter fails the
// request instead of silently dropping out of the pipeline.
func (s *StepSpec) UnmarshalJSON(data []byte) error {
	type plain StepSpec
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var p plain
	if err := dec.Decode(&p); err != nil {
		return err
	}
	*s = StepSpec(p)
	return nil
}

var renamePlaceholders = map[string]bool{
	"original": true,
	"YYYY":     true,
	"MM":       true,
	"DD":       true,
	"YYMMDD":   true,
	"N":        true,
	"NN":       true,
	"NNN":      true,
}

var placeholderPattern = regexp.MustCompile(`\{([^{}]*)\}`)

// Validate checks the spec at construction time: parameter ranges, mode and
// anchor names, rename placeholders, and that no field belonging to a
// different op is set. An invalid combination is rejected before any photo is
// processed.
func (s StepSpec) Validate() []string {
	var v []string

	switch s.Op {
	case OpResize:
		v = append(v, s.validateResize()...)
		v = append(v, s.foreignFields("mode", "value", "width", "height", "keep_aspect")...)
	case OpRotate:
		switch s.Direction {
		case RotateCW90, RotateCCW90, Rotate180:
		default:
			v = append(v, fmt.Sprintf("rotate: unknown direction %q", s.Direction))
		}
		v = append(v, s.foreignFields("direction")...)
	case OpRename:
		if strings.TrimSpace(s.Pattern) == "" {
			v = append(v, "rename: pattern is required")
		}
		for _, m := range placeholderPattern.FindAllStringSubmatch(s.Pattern, -1) {
			if !renamePlaceholders[m[1]] {
				v = append(v, fmt.Sprintf("rename: unknown placeholder {%s}", m[1]))
			}
		}
		v = append(v, s.foreignFields("pattern")...)
	case OpTextWatermark:
		if strings.TrimSpace(s.Text) == "" {
			v = append(v, "text_watermark: text is required")
		}
		if s.SizePt < 0 {
			v = append(v, "text_watermark: size_pt must not be negative")
		}
		if s.Color != "" {
			if _, err := ParseColor(s.Color); err != nil {
				v = append(v, fmt.Sprintf("text_watermark: %v", err))
			}
		}
		v = append(v, s.validateOpacity("text_watermark")...)
		v = append(v, s.validateAnchor("text_watermark")...)
		v = append(v, s.foreignFields("text", "font", "size_pt", "color", "opacity", "anchor")...)
	case OpImageWatermark:
		if strings.TrimSpace(s.Overlay) == "" {
			v = append(v, "image_watermark: overlay is required")
		}
		if s.ScalePercent < 0 || s.ScalePercent > 100 {
			v = append(v, "image_watermark: scale_percent must be within [0,100]")
		}
		v = append(v, s.validateOpacity("image_watermark")...)
		v = append(v, s.validateAnchor("image_watermark")...)
		v = append(v, s.foreignFields("overlay", "opacity", "anchor", "scale_percent")...)
	case OpWebPEncode:
		if s.Quality != nil && (*s.Quality < 0 || *s.Quality > 100) {
			v = append(v, "webp_encode: quality must be within [0,100]")
		}
		v = append(v, s.foreignFields("quality", "lossless")...)
	default:
		v = append(v, fmt.Sprintf("unknown op %q", s.Op))
	}

	return v
}

func (s StepSpec) validateResize() []string {
	var v []string
	switch s.Mode {
	case ResizePercentage:
		if s.Value <= 0 {
			v = append(v, "resize: percentage value must be positive")
		}
		if s.Width != 0 || s.Height != 0 {
			v = append(v, "resize: width/height are not valid in percentage mode")
		}
	case ResizeMaxDimension:
		if s.Value < 1 {
			v = append(v, "resize: max_dimension target must be at least 1px")
		}
		if s.Width != 0 || s.Height != 0 {
			v = append(v, "resize: width/height are not valid in max_dimension mode")
		}
	case ResizeExact:
		if s.Width < 1 || s.Height < 1 {
			v = append(v, "resize: exact mode requires width and height of at least 1px")
		}
		if s.Value != 0 {
			v = append(v, "resize: value is not valid in exact mode")
		}
	default:
		v = append(v, fmt.Sprintf("resize: unknown mode %q", s.Mode))
	}
	return v
}

func (s StepSpec) validateOpacity(op string) []string {
	if s.Opacity != nil && (*s.Opacity < 0 || *s.Opacity > 1) {
		return []string{op + ": opacity must be within [0,1]"}
	}
	return nil
}

func (s StepSpec) validateAnchor(op string) []string {
	if s.Anchor == "" {
		return nil
	}
	for _, a := range Anchors {
		if s.Anchor == a {
			return nil
		}
	}
	return []string{fmt.Sprintf("%s: unknown anchor %q", op, s.Anchor)}
}

// foreignFields reports every populated field that does not belong to the
// spec's op.
func (s StepSpec) foreignFields(allowed ...string) []string {
	ok := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		ok[a] = true
	}

	var v []string
	flag := func(name string, set bool) {
		if set && !ok[name] {
			v = append(v, fmt.Sprintf("%s: field %q does not apply", s.Op, name))
		}
	}

	flag("mode", s.Mode != "")
	flag("value", s.Value != 0)
	flag("width", s.Width != 0)
	flag("height", s.Height != 0)
	flag("keep_aspect", s.KeepAspect != nil)
	flag("direction", s.Direction != "")
	flag("pattern", s.Pattern != "")
	flag("text", s.Text != "")
	flag("font", s.Font != "")
	flag("size_pt", s.SizePt != 0)
	flag("color", s.Color != "")
	flag("opacity", s.Opacity != nil)
	flag("anchor", s.Anchor != "")
	flag("overlay", s.Overlay != "")
	flag("scale_percent", s.ScalePercent != 0)
	flag("quality", s.Quality != nil)
	flag("lossless", s.Lossless)
	return v
}

// RGBA is a parsed watermark color.
type RGBA struct {
	R, G, B, A uint8
}

// ParseColor parses "#RRGGBB" or "#RRGGBBAA".
func ParseColor(value string) (RGBA, error) {
	hexStr := strings.TrimPrefix(value, "#")
	if len(hexStr) != 6 && len(hexStr) != 8 {
		return RGBA{}, fmt.Errorf("color %q must be #RRGGBB or #RRGGBBAA", value)
	}

	var raw [4]uint8
	raw[3] = 0xFF
	for i := 0; i*2 < len(hexStr); i++ {
		var b int
		if _, err := fmt.Sscanf(hexStr[i*2:i*2+2], "%02x", &b); err != nil {
			return RGBA{}, fmt.Errorf("color %q has invalid hex digits", value)
		}
		raw[i] = uint8(b)
	}
	return RGBA{R: raw[0], G: raw[1], B: raw[2], A: raw[3]}, nil
}

// ValidationError aggregates construction-time violations. The batch never
// starts when one is returned.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return "invalid pipeline: " + e.Violations[0]
	}
	return fmt.Sprintf("invalid pipeline: %d violations: %s", len(e.Violations), strings.Join(e.Violations, "; "))
}

// ValidateSpecs validates an ordered step list, prefixing each violation with
// its step index.
func ValidateSpecs(specs []StepSpec) error {
	var all []string
	for i, s := range specs {
		for _, violation := range s.Validate() {
			all = append(all, fmt.Sprintf("step[%d] %s", i, violation))
		}
	}
	if len(all) > 0 {
		return &ValidationError{Violations: all}
	}
	return nil
}
