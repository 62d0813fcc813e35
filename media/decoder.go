package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

const maxRemoteImageBytes = 32 << 20 // 32 MiB

// Decoder turns a MediaSource into a DecodedImage with confirmed dimensions.
// Each call decodes fresh; at most one image is edited at a time, so there
// is nothing worth caching.
type Decoder struct {
	client *http.Client
}

func NewDecoder() *Decoder {
	return &Decoder{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Decode suspends until the load completes or fails. Camera frames are
// already rasters and only get validated and normalized; uploaded bytes and
// URI references are decoded with auto-orientation applied.
func (d *Decoder) Decode(ctx context.Context, src MediaSource) (*DecodedImage, error) {
	var (
		img image.Image
		err error
	)

	switch {
	case src.Frame != nil:
		img = src.Frame
	case len(src.Data) > 0:
		img, err = imaging.Decode(bytes.NewReader(src.Data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
	case src.URI != "":
		img, err = d.decodeURI(ctx, src.URI)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: empty media source", ErrDecode)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		// a zero-dimension raster is a decode failure, not a valid image
		return nil, fmt.Errorf("%w: decoded image has invalid dimensions %dx%d", ErrDecode, bounds.Dx(), bounds.Dy())
	}

	return &DecodedImage{
		Image:  imaging.Clone(img),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// decodeURI handles data: URIs and remote http(s) references. Remote fetches
// are deliberately permissive about origin, since the pixels are destined
// for sampling rather than display.
func (d *Decoder) decodeURI(ctx context.Context, uri string) (image.Image, error) {
	if strings.HasPrefix(uri, "data:") {
		payload, err := decodeDataURI(uri)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		img, err := imaging.Decode(bytes.NewReader(payload), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return img, nil
	}

	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		return nil, fmt.Errorf("%w: unsupported source reference '%s'", ErrDecode, uri)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch '%s': %v", ErrDecode, uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetching '%s' returned status %d", ErrDecode, uri, resp.StatusCode)
	}

	img, err := imaging.Decode(io.LimitReader(resp.Body, maxRemoteImageBytes), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	log.Printf("media.decoder: decoded remote image from %s", uri)
	return img, nil
}

func decodeDataURI(uri string) ([]byte, error) {
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return nil, fmt.Errorf("malformed data URI")
	}
	meta, payload := uri[len("data:"):comma], uri[comma+1:]
	if strings.HasSuffix(meta, ";base64") {
		return base64.StdEncoding.DecodeString(payload)
	}
	return []byte(payload), nil
}
