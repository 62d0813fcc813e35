package media

import (
	"bytes"
	"fmt"
	"image"
	"log"

	"github.com/disintegration/imaging"
)

const DefaultJpegQuality = 85

// Compositor renders a finalized CropRegion of a DecodedImage into the
// output EditedAvatar. When OutputSize is set, the crop is normalized to a
// fixed square (predictable storage cost for avatars); when zero, the output
// raster is exactly region.Width x region.Height at 1:1 scale.
type Compositor struct {
	OutputSize int
	Quality    int
}

func NewCompositor(outputSize, quality int) *Compositor {
	if quality <= 0 || quality > 100 {
		quality = DefaultJpegQuality
	}
	return &Compositor{OutputSize: outputSize, Quality: quality}
}

// Composite draws the selected source sub-rectangle into the output raster
// and encodes it as JPEG. Pixel content is deterministic for a fixed
// (image, region, quality); encoder byte output is stable per platform.
func (c *Compositor) Composite(img *DecodedImage, region CropRegion) (*EditedAvatar, error) {
	if img == nil || img.Image == nil {
		return nil, fmt.Errorf("%w: no source raster", ErrComposite)
	}
	if region.Width <= 0 || region.Height <= 0 {
		return nil, fmt.Errorf("%w: degenerate region %dx%d", ErrComposite, region.Width, region.Height)
	}

	cropRect := image.Rect(region.X, region.Y, region.X+region.Width, region.Y+region.Height)
	bounds := img.Image.Bounds()
	if !cropRect.In(bounds) {
		cropRect = cropRect.Intersect(bounds)
		if cropRect.Empty() {
			return nil, fmt.Errorf("%w: region %+v lies outside image bounds %v", ErrComposite, region, bounds)
		}
		log.Printf("media.compositor: region %+v clipped to image bounds %v", region, cropRect)
	}

	out := imaging.Crop(img.Image, cropRect)
	if out.Bounds().Empty() {
		return nil, fmt.Errorf("%w: crop produced an empty raster", ErrComposite)
	}

	if c.OutputSize > 0 {
		out = imaging.Fill(out, c.OutputSize, c.OutputSize, imaging.Center, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(c.Quality)); err != nil {
		return nil, fmt.Errorf("%w: jpeg encode failed: %v", ErrComposite, err)
	}

	b := out.Bounds()
	return &EditedAvatar{
		Data:   buf.Bytes(),
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}
