package utils

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

// CaptureMetadata is the subset of EXIF data recorded alongside a saved
// avatar: where the photo came from and when it was taken.
type CaptureMetadata struct {
	Width       *int    `json:"width,omitempty"`
	Height      *int    `json:"height,omitempty"`
	CameraMake  *string `json:"camera_make,omitempty"`
	CameraModel *string `json:"camera_model,omitempty"`
	TakenAt     *int64  `json:"taken_at,omitempty"`
}

// helper to safely get a string tag, trimming null terminators
func getString(exifData *exif.Exif, tagName exif.FieldName) *string {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	val := strings.Trim(strings.TrimRight(tag.String(), "\x00"), "\"")
	if val == "" {
		return nil
	}
	return &val
}

// GetCaptureMetadata extracts dimensions and camera EXIF from encoded image
// bytes. Missing EXIF is not an error; many uploads have none.
func GetCaptureMetadata(data []byte) *CaptureMetadata {
	meta := &CaptureMetadata{}

	config, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil {
		w, h := config.Width, config.Height
		meta.Width = &w
		meta.Height = &h
		log.Printf("metadata: decoded dimensions (format: %s): %dx%d", format, w, h)
	} else {
		log.Printf("metadata: Warning - could not decode config for dimensions: %v", err)
	}

	exifData, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		// not necessarily a problem, file might just lack EXIF data
		return meta
	}

	meta.CameraMake = getString(exifData, exif.Make)
	meta.CameraModel = getString(exifData, exif.Model)

	dt, err := exifData.DateTime()
	if err == nil {
		ts := dt.Unix()
		meta.TakenAt = &ts
	}

	return meta
}
