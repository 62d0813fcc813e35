package capture

import "errors"

// Failure kinds for the camera path. Handlers map these onto user-facing
// messages; everything except ErrCaptureNotReady is expected to reach users.
var (
	// ErrPermissionDenied: the OS or user refused camera access. Fatal for
	// the camera path; callers fall back to file upload.
	ErrPermissionDenied = errors.New("camera permission denied")

	// ErrDeviceUnavailable: no camera present, or the device could not be
	// opened. Same fallback as permission denial.
	ErrDeviceUnavailable = errors.New("camera device unavailable")

	// ErrStreamNotReady: the stream attached but never produced a readable
	// frame with known dimensions within the readiness timeout. Recoverable
	// via an explicit retry; the session stays attached.
	ErrStreamNotReady = errors.New("camera stream not ready")

	// ErrPlaybackBlocked: the stream is valid but the preview sink could not
	// start rendering. Distinct from acquisition failure so the UI can offer
	// a retry of the preview alone.
	ErrPlaybackBlocked = errors.New("camera preview playback blocked")

	// ErrCaptureNotReady: Capture was called before the session reported
	// readiness. A caller bug when the UI gates the shutter correctly, but
	// defined behavior rather than a panic.
	ErrCaptureNotReady = errors.New("capture requested before stream ready")

	// ErrSessionClosed: the session was torn down
	ErrSessionClosed = errors.New("camera session closed")
)
