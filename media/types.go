package media

import (
	"encoding/base64"
	"errors"
	"image"
)

type AssetType string

const (
	AssetTypeAvatar   AssetType = "avatar"
	AssetTypeHeadshot AssetType = "headshot"
	AssetTypeUnknown  AssetType = "unknown"
)

// source-side failure kinds
var (
	// ErrDecode: malformed data or unreachable reference. Fatal for the
	// current edit attempt; the user re-selects a source.
	ErrDecode = errors.New("image decode failed")

	// ErrComposite: output raster could not be produced. Fatal for the
	// current save attempt; the user may retry.
	ErrComposite = errors.New("composite failed")
)

// SourceOrigin tags where raw pixel data came from
type SourceOrigin string

const (
	OriginUploadedFile SourceOrigin = "uploaded_file"
	OriginCameraFrame  SourceOrigin = "camera_frame"
)

// MediaSource is raw image data prior to decode: uploaded bytes, a captured
// frame, or an external reference. Created on user action, consumed once by
// the decoder, then discarded.
type MediaSource struct {
	Origin   SourceOrigin
	Data     []byte      // uploaded file content
	Frame    image.Image // captured camera frame
	URI      string      // data: or http(s) reference
	Filename string

	// known synchronously for camera frames, zero until decode for uploads
	Width  int
	Height int
}

// DecodedImage is a drawable raster with confirmed non-zero dimensions,
// owned by the active edit session.
type DecodedImage struct {
	Image  *image.NRGBA
	Width  int
	Height int
}

// EditedAvatar is the terminal artifact: an encoded JPEG plus its pixel
// dimensions. At most one is alive per edit session; a new save replaces it.
type EditedAvatar struct {
	Data   []byte
	Width  int
	Height int
}

// DataURI renders the encoded image as a base64 data URI for inline preview
func (a *EditedAvatar) DataURI() string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(a.Data)
}
