package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkedout/avatarbackend/media"
)

// stubSource is an in-memory FrameSource for exercising session lifecycle
// without a camera attached
type stubSource struct {
	mu        sync.Mutex
	openErr   error
	frame     image.Image
	readErr   error
	failAfter int // fail reads after this many successes; 0 disables
	reads     int
	closes    int
}

func (s *stubSource) Open(c Constraints) error {
	return s.openErr
}

func (s *stubSource) ReadFrame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	s.reads++
	if s.failAfter > 0 && s.reads > s.failAfter {
		return nil, errors.New("device wedged")
	}
	return s.frame, nil
}

func (s *stubSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *stubSource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func workingSource() *stubSource {
	return &stubSource{frame: image.NewNRGBA(image.Rect(0, 0, 640, 480))}
}

func testConstraints() Constraints {
	return Constraints{DeviceID: 0, Width: 640, Height: 480, ReadinessTimeout: 200 * time.Millisecond}
}

func TestStartSessionBecomesReady(t *testing.T) {
	src := workingSource()
	acq := NewAcquirer(func() FrameSource { return src })

	session, err := acq.StartSession(context.Background(), testConstraints())
	require.NoError(t, err)
	require.NotNil(t, session)

	assert.True(t, session.Ready())
	w, h := session.Dimensions()
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
	assert.Equal(t, 1, acq.Attempts())
	assert.NotEmpty(t, session.ID)
}

func TestStartSessionOpenFailurePropagatesKind(t *testing.T) {
	acq := NewAcquirer(func() FrameSource { return &stubSource{openErr: ErrPermissionDenied} })

	session, err := acq.StartSession(context.Background(), testConstraints())
	assert.Nil(t, session)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Nil(t, acq.Current())
}

func TestStartSessionReadinessTimeout(t *testing.T) {
	src := &stubSource{readErr: errors.New("no frames yet")}
	acq := NewAcquirer(func() FrameSource { return src })

	session, err := acq.StartSession(context.Background(), testConstraints())
	assert.ErrorIs(t, err, ErrStreamNotReady)
	// the stream stays attached so a retry does not restart acquisition
	require.NotNil(t, session)
	assert.False(t, session.Ready())
	assert.Same(t, session, acq.Current())

	_, err = session.Capture()
	assert.ErrorIs(t, err, ErrCaptureNotReady)
}

func TestStartSessionTearsDownPrevious(t *testing.T) {
	first := workingSource()
	second := workingSource()
	sources := []FrameSource{first, second}
	acq := NewAcquirer(func() FrameSource {
		src := sources[0]
		sources = sources[1:]
		return src
	})

	s1, err := acq.StartSession(context.Background(), testConstraints())
	require.NoError(t, err)

	s2, err := acq.StartSession(context.Background(), testConstraints())
	require.NoError(t, err)

	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Equal(t, 1, first.closeCount())
	assert.False(t, s1.Ready())
	assert.True(t, s2.Ready())
	assert.Equal(t, 1, acq.Attempts())
}

func TestRetryBumpsAttemptsAndReplacesSession(t *testing.T) {
	stalled := &stubSource{readErr: errors.New("no frames yet")}
	working := workingSource()
	sources := []FrameSource{stalled, working}
	acq := NewAcquirer(func() FrameSource {
		src := sources[0]
		sources = sources[1:]
		return src
	})

	_, err := acq.StartSession(context.Background(), testConstraints())
	require.ErrorIs(t, err, ErrStreamNotReady)

	session, err := acq.Retry(context.Background())
	require.NoError(t, err)
	assert.True(t, session.Ready())
	assert.Equal(t, 2, acq.Attempts())
	assert.Equal(t, 1, stalled.closeCount())
}

func TestCaptureProducesCameraFrameSource(t *testing.T) {
	acq := NewAcquirer(func() FrameSource { return workingSource() })
	session, err := acq.StartSession(context.Background(), testConstraints())
	require.NoError(t, err)

	source, err := session.Capture()
	require.NoError(t, err)
	assert.Equal(t, media.OriginCameraFrame, source.Origin)
	assert.Equal(t, 640, source.Width)
	assert.Equal(t, 480, source.Height)
	require.NotNil(t, source.Frame)
	assert.Equal(t, 640, source.Frame.Bounds().Dx())
}

func TestCaptureMidSessionDeviceFailure(t *testing.T) {
	// first read satisfies readiness, the second (the capture) fails
	src := workingSource()
	src.failAfter = 1
	acq := NewAcquirer(func() FrameSource { return src })

	session, err := acq.StartSession(context.Background(), testConstraints())
	require.NoError(t, err)

	_, err = session.Capture()
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestStopIsIdempotent(t *testing.T) {
	src := workingSource()
	acq := NewAcquirer(func() FrameSource { return src })
	session, err := acq.StartSession(context.Background(), testConstraints())
	require.NoError(t, err)

	session.Stop()
	session.Stop()
	assert.Equal(t, 1, src.closeCount())

	_, err = session.Capture()
	assert.ErrorIs(t, err, ErrSessionClosed)
}

// blockingSource satisfies readiness immediately, then parks the next read
// until released, recording the order of read and close events
type blockingSource struct {
	mu      sync.Mutex
	reads   int
	release chan struct{}
	events  []string
	frame   image.Image
}

func newBlockingSource() *blockingSource {
	return &blockingSource{
		release: make(chan struct{}),
		frame:   image.NewNRGBA(image.Rect(0, 0, 640, 480)),
	}
}

func (s *blockingSource) Open(c Constraints) error { return nil }

func (s *blockingSource) ReadFrame() (image.Image, error) {
	s.mu.Lock()
	s.reads++
	blocking := s.reads == 2
	if blocking {
		s.events = append(s.events, "read-start")
	}
	s.mu.Unlock()

	if blocking {
		<-s.release
		s.mu.Lock()
		s.events = append(s.events, "read-end")
		s.mu.Unlock()
	}
	return s.frame, nil
}

func (s *blockingSource) Close() error {
	s.mu.Lock()
	s.events = append(s.events, "close")
	s.mu.Unlock()
	return nil
}

func (s *blockingSource) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func TestStopWaitsForInFlightRead(t *testing.T) {
	src := newBlockingSource()
	acq := NewAcquirer(func() FrameSource { return src })

	session, err := acq.StartSession(context.Background(), testConstraints())
	require.NoError(t, err)

	captureDone := make(chan error, 1)
	go func() {
		_, err := session.Capture()
		captureDone <- err
	}()

	// wait for the capture read to be parked inside the device
	require.Eventually(t, func() bool {
		for _, e := range src.snapshot() {
			if e == "read-start" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	stopDone := make(chan struct{})
	go func() {
		session.Stop()
		close(stopDone)
	}()

	// teardown must not release the device while the read is in flight
	select {
	case <-stopDone:
		t.Fatal("Stop completed while a device read was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(src.release)
	<-stopDone
	require.NoError(t, <-captureDone)

	events := src.snapshot()
	require.Equal(t, []string{"read-start", "read-end", "close"}, events)
}

func TestReadAfterStopSeesSessionClosed(t *testing.T) {
	src := workingSource()
	acq := NewAcquirer(func() FrameSource { return src })

	session, err := acq.StartSession(context.Background(), testConstraints())
	require.NoError(t, err)

	session.Stop()

	_, err = session.Capture()
	assert.ErrorIs(t, err, ErrSessionClosed)

	var buf bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	assert.NoError(t, session.ServeMJPEG(ctx, &buf))
	assert.Equal(t, 1, src.closeCount())
}

func TestStopSessionWithoutSession(t *testing.T) {
	acq := NewAcquirer(func() FrameSource { return workingSource() })
	acq.StopSession()
	assert.Nil(t, acq.Current())
}

func TestServeMJPEGWritesParts(t *testing.T) {
	acq := NewAcquirer(func() FrameSource { return workingSource() })
	session, err := acq.StartSession(context.Background(), testConstraints())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 350*time.Millisecond)
	defer cancel()

	var buf bytes.Buffer
	require.NoError(t, session.ServeMJPEG(ctx, &buf))

	out := buf.String()
	assert.Contains(t, out, "--"+MJPEGBoundary)
	assert.Contains(t, out, "Content-Type: image/jpeg")
}

func TestServeMJPEGPlaybackBlocked(t *testing.T) {
	// readiness succeeds, then the stream wedges before the preview's first
	// frame can be rendered
	src := workingSource()
	src.failAfter = 1
	acq := NewAcquirer(func() FrameSource { return src })

	session, err := acq.StartSession(context.Background(), testConstraints())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var buf bytes.Buffer
	err = session.ServeMJPEG(ctx, &buf)
	assert.ErrorIs(t, err, ErrPlaybackBlocked)
}
