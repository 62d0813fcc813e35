package media

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodedImage(w, h int) *DecodedImage {
	return &DecodedImage{
		Image:  image.NewNRGBA(image.Rect(0, 0, w, h)),
		Width:  w,
		Height: h,
	}
}

func TestResolveRegionDefaultsCoverFullImage(t *testing.T) {
	region := ResolveRegion(CropGeometry{Zoom: 1.0, Aspect: 1.0}, 300, 300, 1200, 1200)
	assert.Equal(t, CropRegion{X: 0, Y: 0, Width: 1200, Height: 1200}, region)
}

func TestResolveRegionScalesOffsetsByPreviewRatio(t *testing.T) {
	// 1200px natural shown in a 300px preview: offsets must be multiplied
	// by 4 before being applied in source coordinates
	region := ResolveRegion(CropGeometry{Zoom: 2.0, OffsetX: 25, OffsetY: -25}, 300, 300, 1200, 1200)

	assert.Equal(t, 600, region.Width)
	assert.Equal(t, 600, region.Height)
	assert.Equal(t, 300+25*4, region.X)
	assert.Equal(t, 300-25*4, region.Y)
}

func TestResolveRegionClampsPanIntoImage(t *testing.T) {
	// panning far past the top-left corner clamps silently to the edge
	region := ResolveRegion(CropGeometry{Zoom: 2.0, OffsetX: -10000, OffsetY: -10000}, 400, 300, 800, 600)
	assert.Equal(t, CropRegion{X: 0, Y: 0, Width: 400, Height: 300}, region)

	region = ResolveRegion(CropGeometry{Zoom: 2.0, OffsetX: 10000, OffsetY: 10000}, 400, 300, 800, 600)
	assert.Equal(t, CropRegion{X: 400, Y: 300, Width: 400, Height: 300}, region)
}

func TestResolveRegionAlwaysInsideSource(t *testing.T) {
	cases := []CropGeometry{
		{Zoom: 1.0},
		{Zoom: 1.7, OffsetX: 12.5, OffsetY: -80},
		{Zoom: 3.0, OffsetX: 9999, OffsetY: -9999},
		{Zoom: 2.4, OffsetX: -1, OffsetY: 1},
		{Zoom: 0.2, OffsetX: 50, OffsetY: 50}, // below 1.0 treated as 1.0
	}
	for _, g := range cases {
		region := ResolveRegion(g, 250, 250, 1047, 733)
		assert.GreaterOrEqual(t, region.X, 0, "geometry %+v", g)
		assert.GreaterOrEqual(t, region.Y, 0, "geometry %+v", g)
		assert.Greater(t, region.Width, 0, "geometry %+v", g)
		assert.Greater(t, region.Height, 0, "geometry %+v", g)
		assert.LessOrEqual(t, region.X+region.Width, 1047, "geometry %+v", g)
		assert.LessOrEqual(t, region.Y+region.Height, 733, "geometry %+v", g)
	}
}

func TestResolveRegionZeroPreviewFallsBackToNatural(t *testing.T) {
	// with no preview dimensions the offsets are already in source pixels
	region := ResolveRegion(CropGeometry{Zoom: 2.0, OffsetX: 100}, 0, 0, 800, 800)
	assert.Equal(t, CropRegion{X: 300, Y: 200, Width: 400, Height: 400}, region)
}

func TestEngineLoadStartsCenteredAtMinZoom(t *testing.T) {
	engine := NewTransformEngine(DefaultZoomBounds)
	require.NoError(t, engine.Load(decodedImage(1200, 1200), 300, 300, 1.0))

	assert.Equal(t, StatePreviewing, engine.State())
	assert.Equal(t, 1.0, engine.Geometry().Zoom)
	assert.Equal(t, CropRegion{X: 0, Y: 0, Width: 1200, Height: 1200}, engine.Region())
}

func TestEngineLoadDerivesPreviewHeightFromAspect(t *testing.T) {
	engine := NewTransformEngine(DefaultZoomBounds)
	require.NoError(t, engine.Load(decodedImage(800, 600), 300, 0, 2.0))

	engine.SetZoom(2.0)
	// previewH should be 150; panning by 150 preview px maps to 600
	// source px on the y axis (600/150 = 4) but clamps at the pan limit
	engine.SetOffsets(0, 150)
	region := engine.Region()
	assert.Equal(t, 300, region.Height)
	assert.Equal(t, 300, region.Y)
}

func TestEngineRejectsImageWithoutDimensions(t *testing.T) {
	engine := NewTransformEngine(DefaultZoomBounds)
	err := engine.Load(&DecodedImage{}, 300, 300, 1.0)
	assert.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, StateIdle, engine.State())
}

func TestEngineClampsZoomToBounds(t *testing.T) {
	engine := NewTransformEngine(ZoomBounds{Min: 1.0, Max: 3.0})
	require.NoError(t, engine.Load(decodedImage(900, 900), 300, 300, 1.0))

	engine.SetZoom(5.0)
	assert.Equal(t, 3.0, engine.Geometry().Zoom)

	engine.SetZoom(0.25)
	assert.Equal(t, 1.0, engine.Geometry().Zoom)
}

func TestEngineSnapsOffsetsToValidPanRange(t *testing.T) {
	engine := NewTransformEngine(DefaultZoomBounds)
	require.NoError(t, engine.Load(decodedImage(1200, 1200), 300, 300, 1.0))

	// at zoom 1 the window covers the whole image, so no pan is possible
	engine.SetOffsets(500, -500)
	g := engine.Geometry()
	assert.Equal(t, 0.0, g.OffsetX)
	assert.Equal(t, 0.0, g.OffsetY)

	// at zoom 2 the window is half the image; 75 preview px is the limit
	engine.SetZoom(2.0)
	engine.SetOffsets(500, -500)
	g = engine.Geometry()
	assert.Equal(t, 75.0, g.OffsetX)
	assert.Equal(t, -75.0, g.OffsetY)
}

func TestEngineLastUpdateWins(t *testing.T) {
	engine := NewTransformEngine(DefaultZoomBounds)
	require.NoError(t, engine.Load(decodedImage(800, 600), 400, 300, 1.0))

	engine.Update(CropGeometry{Zoom: 1.5, OffsetX: 10, OffsetY: 10})
	engine.Update(CropGeometry{Zoom: 2.0, OffsetX: -10000, OffsetY: -10000})

	region, err := engine.Finalize()
	require.NoError(t, err)
	assert.Equal(t, CropRegion{X: 0, Y: 0, Width: 400, Height: 300}, region)
	assert.Equal(t, StateFinalized, engine.State())
}

func TestEngineIgnoresMidSessionAspectChange(t *testing.T) {
	engine := NewTransformEngine(DefaultZoomBounds)
	require.NoError(t, engine.Load(decodedImage(800, 800), 300, 300, 1.0))

	engine.Update(CropGeometry{Zoom: 1.0, Aspect: 1.78})
	assert.Equal(t, 1.0, engine.Geometry().Aspect)
}

func TestEngineIdleGuards(t *testing.T) {
	engine := NewTransformEngine(DefaultZoomBounds)

	engine.SetZoom(2.0)
	engine.SetOffsets(1, 1)
	engine.Update(CropGeometry{Zoom: 2.0})
	assert.Equal(t, StateIdle, engine.State())

	_, err := engine.Finalize()
	assert.Error(t, err)
}

func TestEngineResetReturnsToIdle(t *testing.T) {
	engine := NewTransformEngine(DefaultZoomBounds)
	require.NoError(t, engine.Load(decodedImage(400, 400), 200, 200, 1.0))
	engine.SetZoom(2.0)

	engine.Reset()
	assert.Equal(t, StateIdle, engine.State())
	assert.Equal(t, CropRegion{}, engine.Region())
}
