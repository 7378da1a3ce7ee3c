package meta

import (
	"bytes"
	"fmt"
	"math"
	"time"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	jpegstructure "github.com/dsoprea/go-jpeg-image-structure/v2"
)

const exifDateLayout = "2006:01:02 15:04:05"

// AttachJPEG embeds the carrier into an encoded JPEG and returns the new
// bytes. The passthrough block (when present) is used as the base so tags the
// engine does not model survive; orientation and pixel dimensions are always
// rewritten to match the actual output.
func AttachJPEG(encoded []byte, c Carrier, width, height int) ([]byte, error) {
	parser := jpegstructure.NewJpegMediaParser()
	intfc, err := parser.ParseBytes(encoded)
	if err != nil {
		return nil, fmt.Errorf("parse encoded jpeg: %w", err)
	}
	segments := intfc.(*jpegstructure.SegmentList)

	rootIb, err := builderFromCarrier(c)
	if err != nil {
		return nil, err
	}

	if err := patchBuilder(rootIb, c, width, height); err != nil {
		return nil, err
	}

	if err := segments.SetExif(rootIb); err != nil {
		return nil, fmt.Errorf("set exif segment: %w", err)
	}

	var out bytes.Buffer
	if err := segments.Write(&out); err != nil {
		return nil, fmt.Errorf("write jpeg segments: %w", err)
	}
	return out.Bytes(), nil
}

// builderFromCarrier starts from the carrier's raw EXIF chain when one exists
// so unknown tags pass through, otherwise from an empty standard chain.
func builderFromCarrier(c Carrier) (*exif.IfdBuilder, error) {
	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, fmt.Errorf("build ifd mapping: %w", err)
	}
	ti := exif.NewTagIndex()

	if len(c.Raw) > 0 {
		rawExif, err := exif.SearchAndExtractExif(c.Raw)
		if err == nil {
			_, index, err := exif.Collect(im, ti, rawExif)
			if err == nil {
				return exif.NewIfdBuilderFromExistingChain(index.RootIfd), nil
			}
		}
		// Fall through: a corrupt passthrough block should not fail the
		// commit, the typed fields still get written below.
	}

	return exif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, exifcommon.EncodeDefaultByteOrder), nil
}

func patchBuilder(rootIb *exif.IfdBuilder, c Carrier, width, height int) error {
	ifd0, err := exif.GetOrCreateIbFromRootIb(rootIb, "IFD0")
	if err != nil {
		return fmt.Errorf("get IFD0 builder: %w", err)
	}

	orientation := c.Orientation
	if orientation == OrientationNone {
		orientation = OrientationUp
	}
	if err := ifd0.SetStandardWithName("Orientation", []uint16{uint16(orientation)}); err != nil {
		return fmt.Errorf("set orientation: %w", err)
	}
	if c.CameraMake != "" {
		if err := ifd0.SetStandardWithName("Make", c.CameraMake); err != nil {
			return fmt.Errorf("set camera make: %w", err)
		}
	}
	if c.CameraModel != "" {
		if err := ifd0.SetStandardWithName("Model", c.CameraModel); err != nil {
			return fmt.Errorf("set camera model: %w", err)
		}
	}

	exifIb, err := exif.GetOrCreateIbFromRootIb(rootIb, "IFD0/Exif")
	if err != nil {
		return fmt.Errorf("get Exif builder: %w", err)
	}
	if !c.CaptureTime.IsZero() {
		stamp := c.CaptureTime.Format(exifDateLayout)
		if err := exifIb.SetStandardWithName("DateTimeOriginal", stamp); err != nil {
			return fmt.Errorf("set capture time: %w", err)
		}
	}
	if width > 0 && height > 0 {
		if err := exifIb.SetStandardWithName("PixelXDimension", []uint32{uint32(width)}); err != nil {
			return fmt.Errorf("set pixel x dimension: %w", err)
		}
		if err := exifIb.SetStandardWithName("PixelYDimension", []uint32{uint32(height)}); err != nil {
			return fmt.Errorf("set pixel y dimension: %w", err)
		}
	}

	if c.GPS != nil {
		if err := patchGPS(rootIb, *c.GPS); err != nil {
			return err
		}
	}

	return nil
}

// patchGPS writes the carrier's coordinate pair as a typed GPS IFD so the
// position survives even when the raw passthrough block was unusable.
func patchGPS(rootIb *exif.IfdBuilder, gps GPS) error {
	gpsIb, err := exif.GetOrCreateIbFromRootIb(rootIb, "IFD0/GPSInfo")
	if err != nil {
		return fmt.Errorf("get GPS builder: %w", err)
	}

	if err := gpsIb.SetStandardWithName("GPSVersionID", []byte{2, 3, 0, 0}); err != nil {
		return fmt.Errorf("set gps version: %w", err)
	}

	latRef := "N"
	if gps.Latitude < 0 {
		latRef = "S"
	}
	if err := gpsIb.SetStandardWithName("GPSLatitudeRef", latRef); err != nil {
		return fmt.Errorf("set gps latitude ref: %w", err)
	}
	if err := gpsIb.SetStandardWithName("GPSLatitude", gpsDegrees(gps.Latitude)); err != nil {
		return fmt.Errorf("set gps latitude: %w", err)
	}

	lonRef := "E"
	if gps.Longitude < 0 {
		lonRef = "W"
	}
	if err := gpsIb.SetStandardWithName("GPSLongitudeRef", lonRef); err != nil {
		return fmt.Errorf("set gps longitude ref: %w", err)
	}
	if err := gpsIb.SetStandardWithName("GPSLongitude", gpsDegrees(gps.Longitude)); err != nil {
		return fmt.Errorf("set gps longitude: %w", err)
	}

	return nil
}

// gpsDegrees converts a decimal coordinate to degree/minute/second rationals.
// Seconds carry millisecond precision, which keeps round-trips within ~3cm.
func gpsDegrees(value float64) []exifcommon.Rational {
	abs := math.Abs(value)
	deg := math.Floor(abs)
	min := math.Floor((abs - deg) * 60)
	sec := (abs - deg - min/60) * 3600

	return []exifcommon.Rational{
		{Numerator: uint32(deg), Denominator: 1},
		{Numerator: uint32(min), Denominator: 1},
		{Numerator: uint32(math.Round(sec * 1000)), Denominator: 1000},
	}
}

// ParseCaptureTime parses an EXIF datetime string.
func ParseCaptureTime(value string) (time.Time, error) {
	return time.ParseInLocation(exifDateLayout, value, time.Local)
}
