package media

import (
	"fmt"
	"log"
	"math"
	"sync"
)

// EditState tracks where an edit session is in its lifecycle
type EditState string

const (
	StateIdle       EditState = "idle"       // no image loaded
	StatePreviewing EditState = "previewing" // image loaded, geometry at defaults
	StateAdjusting  EditState = "adjusting"  // user actively panning/zooming
	StateFinalized  EditState = "finalized"  // region resolved for save
)

// ZoomBounds is the configured valid zoom range. Min is never below 1.0:
// zooming out past the image would show padding.
type ZoomBounds struct {
	Min float64
	Max float64
}

// DefaultZoomBounds matches the slider range of the profile photo editor
var DefaultZoomBounds = ZoomBounds{Min: 1.0, Max: 3.0}

// Clamp snaps a zoom factor to the nearest bound. Silent: this backs a
// continuous interactive control, so out-of-range input is corrected, not
// rejected.
func (b ZoomBounds) Clamp(zoom float64) float64 {
	if zoom < b.Min {
		return b.Min
	}
	if zoom > b.Max {
		return b.Max
	}
	return zoom
}

// CropGeometry is the interactive pan/zoom state. Offsets displace the crop
// window from center, in preview pixels; the resolve step scales them into
// source coordinates.
type CropGeometry struct {
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
	Zoom    float64 `json:"zoom"`
	Aspect  float64 `json:"aspect"` // fixed per session; 1.0 for the circular avatar
}

// CropRegion is the resolved pixel-accurate rectangle in source-image
// coordinates. Always satisfies 0 <= X, 0 <= Y, X+Width <= sourceWidth,
// Y+Height <= sourceHeight.
type CropRegion struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ResolveRegion is the single deterministic geometry-to-region conversion.
// The crop window spans natural/zoom source pixels per axis; offsets are
// scaled by the natural/preview ratio per axis before clamping the window
// into the image. The scale correction is what keeps crops accurate when
// the preview is rendered smaller or larger than the source; preview-space
// coordinates are never used against the source directly.
func ResolveRegion(g CropGeometry, previewW, previewH, naturalW, naturalH int) CropRegion {
	if previewW <= 0 {
		previewW = naturalW
	}
	if previewH <= 0 {
		previewH = naturalH
	}

	zoom := g.Zoom
	if zoom < 1.0 {
		zoom = 1.0
	}

	width := int(math.Round(float64(naturalW) / zoom))
	height := int(math.Round(float64(naturalH) / zoom))
	width = clampInt(width, 1, naturalW)
	height = clampInt(height, 1, naturalH)

	scaleX := float64(naturalW) / float64(previewW)
	scaleY := float64(naturalH) / float64(previewH)

	x := int(math.Round(float64(naturalW-width)/2 + g.OffsetX*scaleX))
	y := int(math.Round(float64(naturalH-height)/2 + g.OffsetY*scaleY))

	x = clampInt(x, 0, naturalW-width)
	y = clampInt(y, 0, naturalH-height)

	return CropRegion{X: x, Y: y, Width: width, Height: height}
}

// TransformEngine maintains interactive CropGeometry against one
// DecodedImage and resolves it to a CropRegion independent of the preview's
// on-screen size. Updates apply in arrival order; the region is re-derived on
// every change so no stale region is ever observable.
type TransformEngine struct {
	mu sync.Mutex

	bounds   ZoomBounds
	state    EditState
	img      *DecodedImage
	previewW int
	previewH int
	geometry CropGeometry
	region   CropRegion
}

func NewTransformEngine(bounds ZoomBounds) *TransformEngine {
	if bounds.Min < 1.0 {
		bounds.Min = 1.0
	}
	if bounds.Max < bounds.Min {
		bounds.Max = bounds.Min
	}
	return &TransformEngine{bounds: bounds, state: StateIdle}
}

// Load starts a session: geometry at defaults (zoom at the lower bound, pan
// centered). Aspect is fixed for the session; previewH may be zero to derive
// it from previewW and the aspect.
func (e *TransformEngine) Load(img *DecodedImage, previewW, previewH int, aspect float64) error {
	if img == nil || img.Width <= 0 || img.Height <= 0 {
		return fmt.Errorf("%w: cannot load image without dimensions", ErrDecode)
	}
	if aspect <= 0 {
		aspect = 1.0
	}
	if previewH <= 0 && previewW > 0 {
		previewH = int(math.Round(float64(previewW) / aspect))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.img = img
	e.previewW = previewW
	e.previewH = previewH
	e.geometry = CropGeometry{Zoom: e.bounds.Min, Aspect: aspect}
	e.state = StatePreviewing
	e.rederive()
	return nil
}

// SetZoom applies a zoom change, snapping to the configured bounds.
func (e *TransformEngine) SetZoom(zoom float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateIdle {
		return
	}
	e.geometry.Zoom = e.bounds.Clamp(zoom)
	e.state = StateAdjusting
	e.rederive()
}

// SetOffsets applies a pan change in preview pixels. Offsets snap to the
// range that keeps the crop window inside the image at the current zoom.
func (e *TransformEngine) SetOffsets(offsetX, offsetY float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateIdle {
		return
	}
	e.geometry.OffsetX = offsetX
	e.geometry.OffsetY = offsetY
	e.state = StateAdjusting
	e.rederive()
}

// Update applies a full geometry snapshot in one step (the shape a client
// sends on save: final zoom plus final offsets).
func (e *TransformEngine) Update(g CropGeometry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateIdle {
		return
	}
	if g.Aspect > 0 && g.Aspect != e.geometry.Aspect {
		// aspect is fixed at session start; a differing value is dropped
		log.Printf("media.geometry: ignoring aspect change %g -> %g mid-session", e.geometry.Aspect, g.Aspect)
	}
	e.geometry.Zoom = e.bounds.Clamp(g.Zoom)
	e.geometry.OffsetX = g.OffsetX
	e.geometry.OffsetY = g.OffsetY
	e.state = StateAdjusting
	e.rederive()
}

// rederive recomputes the region and snaps the stored offsets back to the
// valid pan range. Caller holds the lock.
func (e *TransformEngine) rederive() {
	e.region = ResolveRegion(e.geometry, e.previewW, e.previewH, e.img.Width, e.img.Height)

	// snap offsets so the geometry itself always describes a valid crop
	scaleX := float64(e.img.Width) / float64(maxInt(e.previewW, 1))
	scaleY := float64(e.img.Height) / float64(maxInt(e.previewH, 1))
	maxOffX := float64(e.img.Width-e.region.Width) / 2 / scaleX
	maxOffY := float64(e.img.Height-e.region.Height) / 2 / scaleY
	e.geometry.OffsetX = clampFloat(e.geometry.OffsetX, -maxOffX, maxOffX)
	e.geometry.OffsetY = clampFloat(e.geometry.OffsetY, -maxOffY, maxOffY)
}

// Finalize resolves the region consistent with the latest geometry. The last
// update applied before Finalize is the one reflected in the result.
func (e *TransformEngine) Finalize() (CropRegion, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateIdle {
		return CropRegion{}, fmt.Errorf("no image loaded")
	}
	e.state = StateFinalized
	return e.region, nil
}

// State reports the engine's lifecycle state
func (e *TransformEngine) State() EditState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Geometry returns the current (clamped) geometry
func (e *TransformEngine) Geometry() CropGeometry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.geometry
}

// Region returns the region consistent with the latest geometry
func (e *TransformEngine) Region() CropRegion {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.region
}

// Reset drops the session back to Idle; the DecodedImage is plain memory
// with no cleanup obligation.
func (e *TransformEngine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.img = nil
	e.state = StateIdle
	e.geometry = CropGeometry{}
	e.region = CropRegion{}
}
