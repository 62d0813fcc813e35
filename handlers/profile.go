package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"gorm.io/gorm"

	"github.com/linkedout/avatarbackend/models"
	"github.com/linkedout/avatarbackend/repository"
)

type ProfileHandler struct {
	ProfileRepo repository.ProfileRepository
}

func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r)
	if !ok {
		WriteAPIError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
		return
	}

	profile, err := h.ProfileRepo.GetByUserID(user.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, "profile_not_found", "No profile record for this user")
			return
		}
		WriteAPIError(w, http.StatusInternalServerError, "db_error", "Failed to fetch profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type UpdateProfilePayload struct {
	DisplayName *string `json:"display_name"`
	Headline    *string `json:"headline"`
	Location    *string `json:"location"`
	About       *string `json:"about"`
}

// UpdateProfile updates editable profile fields. Photo references are not
// accepted here; they only change through the avatar pipeline.
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r)
	if !ok {
		WriteAPIError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
		return
	}

	var payload UpdateProfilePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_payload", "Invalid request payload")
		return
	}

	profile, err := h.ProfileRepo.GetByUserID(user.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			profile = &models.Profile{UserID: user.ID}
		} else {
			WriteAPIError(w, http.StatusInternalServerError, "db_error", "Failed to fetch profile")
			return
		}
	}

	if payload.DisplayName != nil {
		profile.DisplayName = *payload.DisplayName
	}
	if payload.Headline != nil {
		profile.Headline = *payload.Headline
	}
	if payload.Location != nil {
		profile.Location = *payload.Location
	}
	if payload.About != nil {
		profile.About = *payload.About
	}

	if err := h.ProfileRepo.Upsert(profile); err != nil {
		WriteAPIError(w, http.StatusInternalServerError, "db_error", "Failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
