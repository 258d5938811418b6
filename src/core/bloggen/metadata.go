package bloggen

import (
	"bytes"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"localpiece/src/log"
)

// ImageMeta carries one uploaded image's URL plus whatever EXIF data
// could be read from it. The optional fields stay nil when the source
// lacks them.
type ImageMeta struct {
	URL       string
	Filename  string
	Timestamp *time.Time
	Latitude  *float64
	Longitude *float64
}

// ExtractMetadata reads the capture time and GPS position from the
// image bytes. It never fails: a single unreadable image must not block
// generation for the rest of the batch, so any decode problem just
// yields empty metadata and a warning.
func ExtractMetadata(data []byte, filename string) ImageMeta {
	meta := ImageMeta{Filename: filename}

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		log.Warn("failed to read image metadata", "filename", filename, "reason", err.Error())
		return meta
	}

	if tm, err := x.DateTime(); err == nil {
		meta.Timestamp = &tm
	}

	if lat, long, err := x.LatLong(); err == nil {
		meta.Latitude = &lat
		meta.Longitude = &long
	}

	return meta
}
