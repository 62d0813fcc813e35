package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/linkedout/avatarbackend/database"
	"github.com/linkedout/avatarbackend/media"
	"github.com/linkedout/avatarbackend/realtime"
	"github.com/linkedout/avatarbackend/repository"
	"github.com/linkedout/avatarbackend/services"
	"github.com/linkedout/avatarbackend/utils"
	"github.com/linkedout/avatarbackend/workers"
)

const maxUploadBytes = 32 << 20 // 32 MiB

type AvatarHandler struct {
	Service    *services.AvatarService
	AvatarRepo repository.AvatarRepository
	Headshots  *workers.HeadshotGenerator
	Hub        *realtime.Hub
}

// parseFloatField reads an optional float form field, returning def when absent
func parseFloatField(r *http.Request, name string, def float64) float64 {
	raw := r.FormValue(name)
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("avatar: invalid %s '%s', using %g", name, raw, def)
		return def
	}
	return val
}

func parseIntField(r *http.Request, name string, def int) int {
	raw := r.FormValue(name)
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("avatar: invalid %s '%s', using %d", name, raw, def)
		return def
	}
	return val
}

// SaveAvatar runs the full pipeline for one save: decode the submitted
// source (uploaded file or a source URI such as a captured-frame data URI),
// resolve the crop, composite, hand off to storage, then update the profile
// record as its own step. A record-update failure after a successful store
// write returns the object key so the client can retry just that step.
func (h *AvatarHandler) SaveAvatar(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r)
	if !ok {
		WriteAPIError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_form", "Invalid multipart form: "+err.Error())
		return
	}

	var (
		source media.MediaSource
		meta   *utils.CaptureMetadata
	)

	file, header, err := r.FormFile("photo")
	switch {
	case err == nil:
		defer file.Close()
		if header.Filename != "" && !utils.IsRasterImage(header.Filename) {
			WriteAPIError(w, http.StatusUnsupportedMediaType, "unsupported_format", "Unsupported image format")
			return
		}
		data, readErr := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if readErr != nil {
			WriteAPIError(w, http.StatusBadRequest, "read_error", "Failed to read uploaded file")
			return
		}
		source = media.MediaSource{
			Origin:   media.OriginUploadedFile,
			Data:     data,
			Filename: header.Filename,
		}
		meta = utils.GetCaptureMetadata(data)
	case r.FormValue("source_uri") != "":
		origin := media.OriginUploadedFile
		if r.FormValue("origin") == string(media.OriginCameraFrame) {
			origin = media.OriginCameraFrame
		}
		source = media.MediaSource{
			Origin: origin,
			URI:    r.FormValue("source_uri"),
		}
	default:
		WriteAPIError(w, http.StatusBadRequest, "missing_source", "Provide a photo file or a source_uri")
		return
	}

	req := services.SaveRequest{
		UserID:   user.ID,
		Source:   source,
		Filename: r.FormValue("filename"),
		PreviewW: parseIntField(r, "preview_width", 0),
		PreviewH: parseIntField(r, "preview_height", 0),
		Geometry: media.CropGeometry{
			Zoom:    parseFloatField(r, "zoom", 1.0),
			OffsetX: parseFloatField(r, "offset_x", 0),
			OffsetY: parseFloatField(r, "offset_y", 0),
			Aspect:  parseFloatField(r, "aspect", 1.0),
		},
	}
	if req.Filename == "" {
		req.Filename = source.Filename
	}

	// an explicit pixel region takes precedence over interactive geometry
	if r.FormValue("region_width") != "" {
		req.Region = &media.CropRegion{
			X:      parseIntField(r, "region_x", 0),
			Y:      parseIntField(r, "region_y", 0),
			Width:  parseIntField(r, "region_width", 0),
			Height: parseIntField(r, "region_height", 0),
		}
	}

	avatar, region, err := h.Service.Compose(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, media.ErrDecode):
			WriteAPIError(w, http.StatusUnprocessableEntity, "decode_error", "We couldn't read that image. Please choose another photo.")
		case errors.Is(err, media.ErrComposite):
			WriteAPIError(w, http.StatusInternalServerError, "composite_error", "Couldn't save your photo. Try again.")
		default:
			WriteAPIError(w, http.StatusInternalServerError, "pipeline_error", "Couldn't process your photo. Try again.")
		}
		return
	}

	handoff, err := h.Service.Handoff(user.ID, req.Filename, avatar)
	if err != nil {
		log.Printf("avatar: handoff failed for user %d: %v", user.ID, err)
		h.Hub.Broadcast(realtime.AvatarFailed(user.ID, "Couldn't save your photo. Try again.", err))
		WriteAPIError(w, http.StatusBadGateway, "upload_failed", "Couldn't save your photo. Try again.")
		return
	}

	record, err := h.Service.UpdateRecord(user.ID, handoff, avatar, source.Origin, meta)
	if err != nil {
		// the object is stored; only the record write failed. Return the key
		// so the client can retry the record update without redoing the crop.
		log.Printf("avatar: record update failed for user %d after successful handoff: %v", user.ID, err)
		h.Hub.Broadcast(realtime.AvatarFailed(user.ID, "Photo stored but the profile update failed. Retry to finish.", err))
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":      "record_update_failed",
			"object_key": handoff.ObjectKey,
			"public_url": handoff.PublicURL,
		})
		return
	}

	if h.Headshots != nil {
		h.Headshots.QueueJob(workers.HeadshotJob{
			UserID:         user.ID,
			AvatarObjKey:   handoff.ObjectKey,
			AvatarPhotoURL: handoff.PublicURL,
		})
	}
	h.Hub.Broadcast(realtime.AvatarSaved(user.ID, handoff.PublicURL))

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"record":   record,
		"region":   region,
		"data_uri": avatar.DataURI(),
	})
}

// RetryRecordUpdate re-runs only the profile-record step for an object that
// was stored but whose record write failed.
func (h *AvatarHandler) RetryRecordUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r)
	if !ok {
		WriteAPIError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
		return
	}

	objectKey := r.URL.Query().Get("key")
	if objectKey == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_key", "Query parameter 'key' is required")
		return
	}

	reader, _, err := h.Service.Store.Get(objectKey)
	if err != nil {
		WriteAPIError(w, http.StatusNotFound, "object_not_found", "No stored photo under that key")
		return
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, maxUploadBytes))
	if err != nil {
		WriteAPIError(w, http.StatusInternalServerError, "read_error", "Failed to read stored photo")
		return
	}

	meta := utils.GetCaptureMetadata(data)
	avatar := &media.EditedAvatar{Data: data}
	if meta.Width != nil {
		avatar.Width = *meta.Width
	}
	if meta.Height != nil {
		avatar.Height = *meta.Height
	}

	// the stored object is a re-encoded JPEG, so the original save's origin
	// and EXIF cannot be recovered from its bytes. The client echoes the
	// origin it saved with; a prior row for the key fills in the rest.
	origin := media.OriginUploadedFile
	if r.URL.Query().Get("origin") == string(media.OriginCameraFrame) {
		origin = media.OriginCameraFrame
	}
	if prior, err := h.AvatarRepo.GetByObjectKey(objectKey); err == nil && prior != nil {
		origin = media.SourceOrigin(prior.Origin)
		if prior.CameraMake != nil {
			meta.CameraMake = prior.CameraMake
		}
		if prior.CameraModel != nil {
			meta.CameraModel = prior.CameraModel
		}
		if prior.TakenAt != nil {
			meta.TakenAt = prior.TakenAt
		}
	}

	handoff := services.HandoffResult{ObjectKey: objectKey, PublicURL: h.Service.Store.PublicURL(objectKey)}
	record, err := h.Service.UpdateRecord(user.ID, handoff, avatar, origin, meta)
	if err != nil {
		WriteAPIError(w, http.StatusInternalServerError, "record_update_failed", "Profile update failed again. Try once more.")
		return
	}

	h.Hub.Broadcast(realtime.AvatarSaved(user.ID, handoff.PublicURL))
	writeJSON(w, http.StatusOK, record)
}

// DeleteAvatar removes the stored object and clears the profile references
func (h *AvatarHandler) DeleteAvatar(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r)
	if !ok {
		WriteAPIError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
		return
	}

	objectKey := r.URL.Query().Get("key")
	if objectKey == "" {
		rows, err := h.AvatarRepo.ListByUser(user.ID, database.AvatarHistoryFilter{Limit: 1})
		if err != nil || len(rows) == 0 {
			WriteAPIError(w, http.StatusNotFound, "no_avatar", "No saved photo to delete")
			return
		}
		objectKey = rows[0].ObjectKey
	}

	if err := h.Service.Delete(user.ID, objectKey); err != nil {
		WriteAPIError(w, http.StatusInternalServerError, "delete_failed", "Couldn't delete your photo. Try again.")
		return
	}

	h.Hub.Broadcast(realtime.Event{Type: "avatar", UserID: user.ID, Status: "deleted", Message: "Profile photo removed"})
	w.WriteHeader(http.StatusNoContent)
}

// AvatarHistory lists saved avatars (newest first) plus the naturally sorted
// stored object names.
func (h *AvatarHandler) AvatarHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r)
	if !ok {
		WriteAPIError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
		return
	}

	filter := database.AvatarHistoryFilter{
		Origin: r.URL.Query().Get("origin"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.ParseUint(raw, 10, 64); err == nil {
			filter.Limit = limit
		}
	}
	if raw := r.URL.Query().Get("after"); raw != "" {
		if after, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.CreatedAfter = after
		}
	}

	rows, err := h.AvatarRepo.ListByUser(user.ID, filter)
	if err != nil {
		log.Printf("avatar: history query failed for user %d: %v", user.ID, err)
		WriteAPIError(w, http.StatusInternalServerError, "db_error", "Failed to fetch photo history")
		return
	}

	objects, err := h.Service.StoredObjects(user.ID)
	if err != nil {
		log.Printf("avatar: object listing failed for user %d: %v", user.ID, err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"history": rows,
		"objects": objects,
	})
}
