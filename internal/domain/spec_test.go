package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidateResizeModes(t *testing.T) {
	valid := []StepSpec{
		{Op: OpResize, Mode: ResizePercentage, Value: 50},
		{Op: OpResize, Mode: ResizeMaxDimension, Value: 1920},
		{Op: OpResize, Mode: ResizeExact, Width: 800, Height: 600},
	}
	for _, spec := range valid {
		if v := spec.Validate(); len(v) != 0 {
			t.Fatalf("expected no violations for %s mode, got %v", spec.Mode, v)
		}
	}

	invalid := []StepSpec{
		{Op: OpResize, Mode: ResizePercentage, Value: 0},
		{Op: OpResize, Mode: ResizePercentage, Value: -10},
		{Op: OpResize, Mode: ResizeMaxDimension, Value: 0},
		{Op: OpResize, Mode: ResizeExact, Width: 0, Height: 600},
		{Op: OpResize, Mode: ResizeExact, Width: 800, Height: 600, Value: 50},
		{Op: OpResize, Mode: "stretch"},
	}
	for _, spec := range invalid {
		if v := spec.Validate(); len(v) == 0 {
			t.Fatalf("expected violations for %+v", spec)
		}
	}
}

func TestValidateRejectsForeignFields(t *testing.T) {
	spec := StepSpec{Op: OpRotate, Direction: RotateCW90, Pattern: "{original}"}
	v := spec.Validate()
	if len(v) == 0 {
		t.Fatal("expected a violation for pattern on a rotate step")
	}
	if !strings.Contains(v[0], "pattern") {
		t.Fatalf("expected the violation to name the field, got %q", v[0])
	}
}

func TestValidateRenamePlaceholders(t *testing.T) {
	good := StepSpec{Op: OpRename, Pattern: "{YYYY}-{MM}-{DD}_{original}_{NNN}"}
	if v := good.Validate(); len(v) != 0 {
		t.Fatalf("expected no violations, got %v", v)
	}

	bad := StepSpec{Op: OpRename, Pattern: "{original}_{WAT}"}
	v := bad.Validate()
	if len(v) != 1 || !strings.Contains(v[0], "{WAT}") {
		t.Fatalf("expected one violation naming {WAT}, got %v", v)
	}

	if v := (StepSpec{Op: OpRename}).Validate(); len(v) == 0 {
		t.Fatal("expected a violation for an empty pattern")
	}
}

func TestValidateWatermarkBounds(t *testing.T) {
	over := 1.5
	spec := StepSpec{Op: OpTextWatermark, Text: "hi", Opacity: &over}
	if v := spec.Validate(); len(v) == 0 {
		t.Fatal("expected an opacity violation")
	}

	spec = StepSpec{Op: OpTextWatermark, Text: "hi", Anchor: "middle"}
	if v := spec.Validate(); len(v) == 0 {
		t.Fatal("expected an anchor violation")
	}

	spec = StepSpec{Op: OpTextWatermark, Text: "hi", Color: "#12345"}
	if v := spec.Validate(); len(v) == 0 {
		t.Fatal("expected a color violation")
	}

	spec = StepSpec{Op: OpImageWatermark, Overlay: "logo.png", ScalePercent: 120}
	if v := spec.Validate(); len(v) == 0 {
		t.Fatal("expected a scale violation")
	}
}

func TestValidateWebPQuality(t *testing.T) {
	q := 101
	spec := StepSpec{Op: OpWebPEncode, Quality: &q}
	if v := spec.Validate(); len(v) == 0 {
		t.Fatal("expected a quality violation")
	}

	q = 85
	spec = StepSpec{Op: OpWebPEncode, Quality: &q, Lossless: true}
	if v := spec.Validate(); len(v) != 0 {
		t.Fatalf("expected no violations, got %v", v)
	}
}

func TestUnmarshalRejectsUnknownFields(t *testing.T) {
	var spec StepSpec
	err := json.Unmarshal([]byte(`{"op":"resize","mode":"percentage","value":50,"wdith":100}`), &spec)
	if err == nil {
		t.Fatal("expected an error for a misspelled field")
	}
}

func TestValidateSpecsPrefixesStepIndex(t *testing.T) {
	err := ValidateSpecs([]StepSpec{
		{Op: OpResize, Mode: ResizePercentage, Value: 50},
		{Op: OpRotate, Direction: "diagonal"},
	})
	if err == nil {
		t.Fatal("expected a validation error")
	}
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(verr.Violations) != 1 || !strings.HasPrefix(verr.Violations[0], "step[1]") {
		t.Fatalf("expected one step[1] violation, got %v", verr.Violations)
	}
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#FF8000")
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	if c.R != 0xFF || c.G != 0x80 || c.B != 0x00 || c.A != 0xFF {
		t.Fatalf("unexpected color %+v", c)
	}

	c, err = ParseColor("#00000080")
	if err != nil {
		t.Fatalf("parse returned error: %v", err)
	}
	if c.A != 0x80 {
		t.Fatalf("expected alpha 0x80, got %x", c.A)
	}

	if _, err := ParseColor("red"); err == nil {
		t.Fatal("expected an error for a named color")
	}
}

func TestCreateBatchRequestValidate(t *testing.T) {
	req := CreateBatchRequest{
		SourceType: SourceTypeLocalFile,
		Sources:    []SourceRef{{Path: "/photos/a.jpg"}},
		Pipeline:   []StepSpec{{Op: OpRotate, Direction: RotateCW90}},
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	req.Sources = nil
	if err := req.Validate(); err == nil {
		t.Fatal("expected an error for empty sources")
	}

	req.Sources = []SourceRef{{ObjectKey: "uploads/x"}}
	if err := req.Validate(); err == nil {
		t.Fatal("expected an error for a local batch with no path")
	}
}

func TestBatchReportStatus(t *testing.T) {
	cases := []struct {
		report BatchReport
		want   string
	}{
		{BatchReport{Succeeded: 3}, BatchStatusSucceeded},
		{BatchReport{Succeeded: 2, Failed: 1}, BatchStatusPartial},
		{BatchReport{Failed: 2}, BatchStatusFailed},
		{BatchReport{Succeeded: 1, Partial: true}, BatchStatusPartial},
	}
	for _, tc := range cases {
		if got := tc.report.Status(); got != tc.want {
			t.Fatalf("report %+v: expected %s, got %s", tc.report, tc.want, got)
		}
	}
}
