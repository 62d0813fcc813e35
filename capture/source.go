package capture

import (
	"fmt"
	"image"
	"log"
	"strings"
	"time"

	"gocv.io/x/gocv"
)

// Constraints describe the requested stream: device, ideal resolution, and
// how long to wait for the stream to start producing readable frames.
type Constraints struct {
	DeviceID         int
	Width            int // ideal, the device may deliver something else
	Height           int
	ReadinessTimeout time.Duration
}

// FrameSource abstracts the underlying video device so session lifecycle
// logic can be exercised without hardware attached.
type FrameSource interface {
	// Open attaches to the device. Returns ErrPermissionDenied or
	// ErrDeviceUnavailable (possibly wrapped) on failure.
	Open(c Constraints) error
	// ReadFrame grabs the current frame. An error here means the stream is
	// not (or no longer) producing frames.
	ReadFrame() (image.Image, error)
	// Close releases the device. Must be safe to call multiple times and on
	// sources that never opened.
	Close() error
}

// GocvSource is the production FrameSource backed by gocv / OpenCV
type GocvSource struct {
	cap *gocv.VideoCapture
	mat gocv.Mat
}

func NewGocvSource() *GocvSource {
	return &GocvSource{}
}

func (s *GocvSource) Open(c Constraints) error {
	cap, err := gocv.OpenVideoCapture(c.DeviceID)
	if err != nil {
		return fmt.Errorf("%w: failed to open device %d: %v", classifyOpenError(err), c.DeviceID, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return fmt.Errorf("%w: device %d did not open", ErrDeviceUnavailable, c.DeviceID)
	}

	if c.Width > 0 {
		cap.Set(gocv.VideoCaptureFrameWidth, float64(c.Width))
	}
	if c.Height > 0 {
		cap.Set(gocv.VideoCaptureFrameHeight, float64(c.Height))
	}

	s.cap = cap
	s.mat = gocv.NewMat()
	log.Printf("capture: opened video device %d (requested %dx%d)", c.DeviceID, c.Width, c.Height)
	return nil
}

func (s *GocvSource) ReadFrame() (image.Image, error) {
	if s.cap == nil {
		return nil, ErrSessionClosed
	}
	if ok := s.cap.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, fmt.Errorf("device produced no frame")
	}
	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	return img, nil
}

func (s *GocvSource) Close() error {
	if s.cap == nil {
		return nil
	}
	s.mat.Close()
	err := s.cap.Close()
	s.cap = nil
	return err
}

// classifyOpenError splits device-open failures into the permission and
// availability kinds. OpenCV does not expose errno, so this keys off the
// message text; anything unrecognized counts as unavailable.
func classifyOpenError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "access denied") {
		return ErrPermissionDenied
	}
	return ErrDeviceUnavailable
}
