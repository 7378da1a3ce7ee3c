package meta

import "testing"

func TestComposeOrientationFullTurn(t *testing.T) {
	// Four quarter-turns in either direction land back on the start code.
	for code := 1; code <= 8; code++ {
		cw := code
		ccw := code
		for i := 0; i < 4; i++ {
			cw = ComposeOrientation(cw, TurnCW90)
			ccw = ComposeOrientation(ccw, TurnCCW90)
		}
		if cw != code {
			t.Fatalf("cw90 x4 from %d: got %d", code, cw)
		}
		if ccw != code {
			t.Fatalf("ccw90 x4 from %d: got %d", code, ccw)
		}
	}
}

func TestComposeOrientationInverses(t *testing.T) {
	for code := 1; code <= 8; code++ {
		if got := ComposeOrientation(ComposeOrientation(code, TurnCW90), TurnCCW90); got != code {
			t.Fatalf("cw90 then ccw90 from %d: got %d", code, got)
		}
		if got := ComposeOrientation(ComposeOrientation(code, Turn180), Turn180); got != code {
			t.Fatalf("180 x2 from %d: got %d", code, got)
		}
	}
}

func TestComposeOrientation180IsTwoQuarterTurns(t *testing.T) {
	for code := 1; code <= 8; code++ {
		twice := ComposeOrientation(ComposeOrientation(code, TurnCW90), TurnCW90)
		if got := ComposeOrientation(code, Turn180); got != twice {
			t.Fatalf("180 from %d: got %d, want %d", code, got, twice)
		}
	}
}

func TestComposeOrientationUprightBase(t *testing.T) {
	cases := []struct {
		turn Turn
		want int
	}{
		{TurnCW90, 6},
		{TurnCCW90, 8},
		{Turn180, 3},
	}
	for _, tc := range cases {
		if got := ComposeOrientation(OrientationUp, tc.turn); got != tc.want {
			t.Fatalf("turn %s from upright: got %d, want %d", tc.turn, got, tc.want)
		}
	}
}

func TestComposeOrientationPassesUnknownThrough(t *testing.T) {
	if got := ComposeOrientation(OrientationNone, TurnCW90); got != OrientationNone {
		t.Fatalf("expected 0 to pass through, got %d", got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	raw := []byte{1, 2, 3}
	c := Carrier{
		Orientation: 6,
		GPS:         &GPS{Latitude: 1.5, Longitude: 2.5},
		Raw:         raw,
		Writable:    true,
	}

	clone := c.Clone()
	clone.GPS.Latitude = 99
	clone.Raw[0] = 0xFF

	if c.GPS.Latitude != 1.5 {
		t.Fatalf("clone mutated the source GPS: %v", c.GPS.Latitude)
	}
	if c.Raw[0] != 1 {
		t.Fatalf("clone mutated the source raw block: %v", c.Raw[0])
	}
}

func TestOrientationWritable(t *testing.T) {
	if (Carrier{Writable: true, Orientation: 6}).OrientationWritable() != true {
		t.Fatal("jpeg with orientation should be writable")
	}
	if (Carrier{Writable: false, Orientation: 6}).OrientationWritable() {
		t.Fatal("non-writable format must not report writable")
	}
	if (Carrier{Writable: true, Orientation: OrientationNone}).OrientationWritable() {
		t.Fatal("missing orientation must not report writable")
	}
}

func TestSwapsDimensions(t *testing.T) {
	if !TurnCW90.SwapsDimensions() || !TurnCCW90.SwapsDimensions() {
		t.Fatal("quarter turns swap dimensions")
	}
	if Turn180.SwapsDimensions() {
		t.Fatal("half turn keeps dimensions")
	}
}
