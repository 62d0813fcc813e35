package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"log"
	"mime/multipart"
	"net/textproto"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/linkedout/avatarbackend/media"
)

const (
	// fallback raster size when a ready stream unexpectedly reports zero
	// dimensions at capture time
	fallbackWidth  = 640
	fallbackHeight = 480

	defaultReadinessTimeout = 4 * time.Second
	readinessPollInterval   = 100 * time.Millisecond

	previewJpegQuality = 70
)

// Session wraps one live camera stream. At most one session is live per
// Acquirer; it must be stopped on capture, cancel, teardown, or error.
type Session struct {
	ID string

	mu     sync.Mutex
	src    FrameSource
	ready  bool
	closed bool
	width  int
	height int

	// srcMu serializes device reads against Close. FrameSource
	// implementations hold cgo handles that must not be freed mid-read.
	srcMu sync.Mutex
}

// readFrame is the only path to the underlying device. Stop takes srcMu
// around Close, so a read in flight always finishes before the device is
// released, and a read arriving after teardown sees ErrSessionClosed.
func (s *Session) readFrame() (image.Image, error) {
	s.srcMu.Lock()
	defer s.srcMu.Unlock()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrSessionClosed
	}
	return s.src.ReadFrame()
}

// Ready reports whether the stream has produced a frame with confirmed
// non-zero dimensions.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready && !s.closed
}

// Dimensions returns the stream's reported natural frame size, valid once
// the session is ready.
func (s *Session) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// awaitReadiness polls for a readable frame until the deadline. The stream
// is attached before this runs; failing here is StreamNotReady, not a device
// failure, so the caller can retry without reopening the device.
func (s *Session) awaitReadiness(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultReadinessTimeout
	}
	deadline := time.Now().Add(timeout)

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrStreamNotReady, err)
		}

		frame, err := s.readFrame()
		if errors.Is(err, ErrSessionClosed) {
			return err
		}
		if err == nil {
			b := frame.Bounds()
			if b.Dx() > 0 && b.Dy() > 0 {
				s.mu.Lock()
				s.ready = true
				s.width = b.Dx()
				s.height = b.Dy()
				s.mu.Unlock()
				log.Printf("capture: session %s ready (%dx%d)", s.ID, b.Dx(), b.Dy())
				return nil
			}
		}

		if time.Now().After(deadline) {
			return ErrStreamNotReady
		}
		time.Sleep(readinessPollInterval)
	}
}

// Capture reads the current frame into a MediaSource. Requires readiness;
// calling earlier fails with ErrCaptureNotReady.
func (s *Session) Capture() (media.MediaSource, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return media.MediaSource{}, ErrSessionClosed
	}
	if !s.ready {
		s.mu.Unlock()
		return media.MediaSource{}, ErrCaptureNotReady
	}
	s.mu.Unlock()

	frame, err := s.readFrame()
	if err != nil {
		if errors.Is(err, ErrSessionClosed) {
			return media.MediaSource{}, ErrSessionClosed
		}
		return media.MediaSource{}, fmt.Errorf("%w: frame read failed mid-session: %v", ErrDeviceUnavailable, err)
	}

	b := frame.Bounds()
	width, height := b.Dx(), b.Dy()
	if width == 0 || height == 0 {
		// recoverable anomaly: stream reported ready but the frame has no
		// dimensions; capture onto the configured fallback raster
		log.Printf("capture: session %s produced zero-dimension frame despite ready state, using %dx%d fallback", s.ID, fallbackWidth, fallbackHeight)
		width, height = fallbackWidth, fallbackHeight
		blank := image.NewNRGBA(image.Rect(0, 0, width, height))
		draw.Draw(blank, blank.Bounds(), frame, b.Min, draw.Src)
		frame = blank
	}

	return media.MediaSource{
		Origin: media.OriginCameraFrame,
		Frame:  imaging.Clone(frame),
		Width:  width,
		Height: height,
	}, nil
}

// Stop tears the session down: every underlying track is released and the
// preview stops receiving frames. Idempotent, and safe on sessions that
// never fully started.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.ready = false
	s.mu.Unlock()

	// wait out any in-flight device read before releasing the handles
	s.srcMu.Lock()
	err := s.src.Close()
	s.srcMu.Unlock()
	if err != nil {
		log.Printf("capture: error closing frame source for session %s: %v", s.ID, err)
	}
	log.Printf("capture: session %s stopped", s.ID)
}

// ServeMJPEG streams preview frames to w as multipart/x-mixed-replace parts
// until the context is cancelled or the session stops. If the very first
// frame cannot be rendered while the stream itself is live, the failure is
// ErrPlaybackBlocked: the stream is valid, only rendering failed.
func (s *Session) ServeMJPEG(ctx context.Context, w io.Writer) error {
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(MJPEGBoundary); err != nil {
		return fmt.Errorf("%w: %v", ErrPlaybackBlocked, err)
	}

	wrote := false
	defer mw.Close()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		frame, err := s.readFrame()
		if err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return nil
			}
			if !wrote {
				return fmt.Errorf("%w: %v", ErrPlaybackBlocked, err)
			}
			return nil
		}

		part, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"image/jpeg"}})
		if err == nil {
			err = imaging.Encode(part, frame, imaging.JPEG, imaging.JPEGQuality(previewJpegQuality))
		}
		if err != nil {
			if !wrote {
				return fmt.Errorf("%w: %v", ErrPlaybackBlocked, err)
			}
			return nil // client went away after playback started
		}
		wrote = true
	}
}

// MJPEGBoundary is the fixed multipart boundary used by ServeMJPEG, so
// handlers can advertise it in the Content-Type header before streaming.
const MJPEGBoundary = "avatarframe"

// Acquirer owns the camera lifecycle for one edit surface. Starting a new
// session first tears down any previous one so device handles never leak.
type Acquirer struct {
	mu          sync.Mutex
	newSource   func() FrameSource
	session     *Session
	constraints Constraints
	attempts    int
}

// NewAcquirer builds an Acquirer; newSource is called once per session
func NewAcquirer(newSource func() FrameSource) *Acquirer {
	return &Acquirer{newSource: newSource}
}

// StartSession opens the device and waits for readiness. On ErrStreamNotReady
// the session is returned anyway, still attached, so the caller can offer a
// retry instead of restarting acquisition from scratch.
func (a *Acquirer) StartSession(ctx context.Context, c Constraints) (*Session, error) {
	a.mu.Lock()
	prev := a.session
	a.session = nil
	a.constraints = c
	a.attempts = 1
	a.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}

	return a.start(ctx, c)
}

func (a *Acquirer) start(ctx context.Context, c Constraints) (*Session, error) {
	src := a.newSource()
	if err := src.Open(c); err != nil {
		src.Close()
		return nil, err
	}

	session := &Session{ID: uuid.NewString(), src: src}

	a.mu.Lock()
	a.session = session
	a.mu.Unlock()

	if err := session.awaitReadiness(ctx, c.ReadinessTimeout); err != nil {
		// stream attached but not producing; keep it so retry is cheap
		return session, err
	}
	return session, nil
}

// Retry tears down any partial session and re-attempts with the same
// constraints, bumping the attempt counter shown to the UI. No retry cap is
// enforced here; the UI decides when to give up.
func (a *Acquirer) Retry(ctx context.Context) (*Session, error) {
	a.mu.Lock()
	prev := a.session
	a.session = nil
	c := a.constraints
	a.attempts++
	attempt := a.attempts
	a.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}
	log.Printf("capture: retrying camera session (attempt %d)", attempt)

	return a.start(ctx, c)
}

// Attempts returns the number of start attempts for the current constraints
func (a *Acquirer) Attempts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts
}

// Current returns the live session, or nil
func (a *Acquirer) Current() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// StopSession stops and forgets the current session. Idempotent.
func (a *Acquirer) StopSession() {
	a.mu.Lock()
	session := a.session
	a.session = nil
	a.mu.Unlock()

	if session != nil {
		session.Stop()
	}
}
