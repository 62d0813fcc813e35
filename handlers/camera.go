package handlers

import (
	"bytes"
	"encoding/base64"
	"errors"
	"log"
	"net/http"

	"github.com/disintegration/imaging"

	"github.com/linkedout/avatarbackend/capture"
	"github.com/linkedout/avatarbackend/media"
)

// CameraHandler exposes the device acquisition lifecycle over HTTP: start a
// session, poll its status, stream the live preview, capture a frame, retry
// a stalled stream, and tear the session down.
type CameraHandler struct {
	Acquirer    *capture.Acquirer
	Constraints capture.Constraints
}

type sessionStatusResponse struct {
	SessionID string `json:"session_id"`
	Ready     bool   `json:"ready"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Attempts  int    `json:"attempts"`
}

func sessionStatus(session *capture.Session, attempts int) sessionStatusResponse {
	w, h := session.Dimensions()
	return sessionStatusResponse{
		SessionID: session.ID,
		Ready:     session.Ready(),
		Width:     w,
		Height:    h,
		Attempts:  attempts,
	}
}

// writeCameraError maps acquisition failures onto responses that tell the
// user what to do next: denied or absent devices point at the upload path,
// a slow stream points at retry.
func writeCameraError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		WriteAPIError(w, http.StatusForbidden, "permission_denied", "Camera access was denied. You can upload a photo instead.")
	case errors.Is(err, capture.ErrDeviceUnavailable):
		WriteAPIError(w, http.StatusServiceUnavailable, "device_unavailable", "We couldn't reach your camera. Try uploading a photo instead.")
	case errors.Is(err, capture.ErrStreamNotReady):
		WriteAPIError(w, http.StatusServiceUnavailable, "stream_not_ready", "The camera is taking too long to start. Retry, or upload a photo instead.")
	case errors.Is(err, capture.ErrPlaybackBlocked):
		WriteAPIError(w, http.StatusConflict, "playback_blocked", "The camera is running but the preview couldn't start. Retry the preview.")
	default:
		WriteAPIError(w, http.StatusInternalServerError, "camera_error", "Something went wrong with the camera. Try uploading a photo instead.")
	}
}

// StartSession opens the camera. Any previous session is torn down first.
// A stream that opens but never becomes ready still yields a session, with a
// stream_not_ready error the client resolves via retry.
func (h *CameraHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.Acquirer.StartSession(r.Context(), h.Constraints)
	if err != nil {
		if session != nil && errors.Is(err, capture.ErrStreamNotReady) {
			writeJSON(w, http.StatusAccepted, map[string]interface{}{
				"session": sessionStatus(session, h.Acquirer.Attempts()),
				"error":   "stream_not_ready",
				"message": "The camera is taking too long to start. Retry, or upload a photo instead.",
			})
			return
		}
		log.Printf("camera: session start failed: %v", err)
		writeCameraError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionStatus(session, h.Acquirer.Attempts()))
}

// SessionStatus reports readiness and attempt count for the live session
func (h *CameraHandler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	session := h.Acquirer.Current()
	if session == nil {
		WriteAPIError(w, http.StatusNotFound, "no_session", "No camera session is active")
		return
	}
	writeJSON(w, http.StatusOK, sessionStatus(session, h.Acquirer.Attempts()))
}

// RetrySession re-attempts acquisition with the same constraints
func (h *CameraHandler) RetrySession(w http.ResponseWriter, r *http.Request) {
	session, err := h.Acquirer.Retry(r.Context())
	if err != nil {
		if session != nil && errors.Is(err, capture.ErrStreamNotReady) {
			writeJSON(w, http.StatusAccepted, map[string]interface{}{
				"session": sessionStatus(session, h.Acquirer.Attempts()),
				"error":   "stream_not_ready",
				"message": "Still waiting on the camera. Retry again, or upload a photo instead.",
			})
			return
		}
		log.Printf("camera: retry failed: %v", err)
		writeCameraError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionStatus(session, h.Acquirer.Attempts()))
}

// StopSession tears down the live session. Safe to call when none exists.
func (h *CameraHandler) StopSession(w http.ResponseWriter, r *http.Request) {
	h.Acquirer.StopSession()
	w.WriteHeader(http.StatusNoContent)
}

// CaptureFrame grabs the current frame and returns it as a JPEG data URI the
// edit surface can load, adjust, and submit back through the save endpoint.
func (h *CameraHandler) CaptureFrame(w http.ResponseWriter, r *http.Request) {
	session := h.Acquirer.Current()
	if session == nil {
		WriteAPIError(w, http.StatusNotFound, "no_session", "No camera session is active")
		return
	}

	source, err := session.Capture()
	if err != nil {
		if errors.Is(err, capture.ErrCaptureNotReady) {
			WriteAPIError(w, http.StatusConflict, "capture_not_ready", "The camera isn't ready yet. Wait a moment and try again.")
			return
		}
		log.Printf("camera: capture failed for session %s: %v", session.ID, err)
		writeCameraError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, source.Frame, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		log.Printf("camera: failed to encode captured frame: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "encode_error", "Couldn't process the captured frame. Try again.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"origin":   media.OriginCameraFrame,
		"width":    source.Width,
		"height":   source.Height,
		"data_uri": "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
}

// flushWriter flushes after every write so MJPEG parts reach the client as
// they are produced instead of sitting in the response buffer.
type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if fw.f != nil {
		fw.f.Flush()
	}
	return n, err
}

// Preview streams the live MJPEG preview for the active session
func (h *CameraHandler) Preview(w http.ResponseWriter, r *http.Request) {
	session := h.Acquirer.Current()
	if session == nil {
		WriteAPIError(w, http.StatusNotFound, "no_session", "No camera session is active")
		return
	}
	if !session.Ready() {
		WriteAPIError(w, http.StatusConflict, "stream_not_ready", "The camera isn't ready yet. Wait a moment and try again.")
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace;boundary="+capture.MJPEGBoundary)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if err := session.ServeMJPEG(r.Context(), flushWriter{w: w, f: flusher}); err != nil {
		// headers are gone; nothing to send the client beyond the log
		log.Printf("camera: preview for session %s ended with error: %v", session.ID, err)
	}
}
