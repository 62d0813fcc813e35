package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"

	"github.com/facette/natsort"

	"github.com/linkedout/avatarbackend/media"
	"github.com/linkedout/avatarbackend/models"
	"github.com/linkedout/avatarbackend/repository"
	"github.com/linkedout/avatarbackend/utils"
)

// ErrUploadFailed wraps store failures during handoff. The profile record is
// guaranteed untouched when this is returned, and the caller still holds the
// EditedAvatar for a retry without redoing the crop.
var ErrUploadFailed = errors.New("avatar upload failed")

const defaultAvatarFilename = "avatar.jpg"

// AvatarService runs the capture-and-crop pipeline end to end: decode,
// geometry resolution, compositing, handoff to storage, and the separate
// profile-record update.
type AvatarService struct {
	Decoder    *media.Decoder
	Compositor *media.Compositor
	Store      media.Store
	Profiles   repository.ProfileRepository
	Avatars    repository.AvatarRepository
	ZoomBounds media.ZoomBounds
}

// SaveRequest carries one save attempt. The user ID arrives explicitly;
// the pipeline never reads identity from ambient state.
type SaveRequest struct {
	UserID   uint
	Source   media.MediaSource
	Geometry media.CropGeometry
	PreviewW int
	PreviewH int
	// Region, when set, is an already-resolved pixel region and takes
	// precedence over Geometry.
	Region   *media.CropRegion
	Filename string
}

// HandoffResult is what a successful store write yields: the stable key and
// its public reference. The profile record has NOT been updated yet.
type HandoffResult struct {
	ObjectKey string
	PublicURL string
}

// SaveResult is the outcome of a full successful save
type SaveResult struct {
	Avatar  *media.EditedAvatar
	Region  media.CropRegion
	Handoff HandoffResult
	Record  *models.AvatarRecord
}

// Compose runs decode, geometry resolution, and compositing, producing the
// EditedAvatar and the region it was cut from. No storage is touched.
func (s *AvatarService) Compose(ctx context.Context, req SaveRequest) (*media.EditedAvatar, media.CropRegion, error) {
	img, err := s.Decoder.Decode(ctx, req.Source)
	if err != nil {
		return nil, media.CropRegion{}, err
	}

	var region media.CropRegion
	if req.Region != nil {
		region = *req.Region
	} else {
		engine := media.NewTransformEngine(s.ZoomBounds)
		if err := engine.Load(img, req.PreviewW, req.PreviewH, req.Geometry.Aspect); err != nil {
			return nil, media.CropRegion{}, err
		}
		engine.Update(req.Geometry)
		region, err = engine.Finalize()
		if err != nil {
			return nil, media.CropRegion{}, fmt.Errorf("%w: %v", media.ErrComposite, err)
		}
	}

	avatar, err := s.Compositor.Composite(img, region)
	if err != nil {
		return nil, media.CropRegion{}, err
	}
	return avatar, region, nil
}

// Handoff passes the encoded avatar to the storage collaborator under the
// stable key {userID}/{filename} with upsert semantics, and returns the
// public reference. It never mutates the profile record; that is the
// caller's separate, explicit next step, so a partial failure (stored but
// not recorded) stays representable and retryable.
func (s *AvatarService) Handoff(userID uint, filename string, avatar *media.EditedAvatar) (HandoffResult, error) {
	if avatar == nil || len(avatar.Data) == 0 {
		return HandoffResult{}, fmt.Errorf("%w: nothing to upload", ErrUploadFailed)
	}
	filename = utils.SanitizeFilename(filename, defaultAvatarFilename)

	userDir := fmt.Sprint(userID)
	relPath, err := s.Store.Save(media.AssetTypeAvatar, userDir, filename, bytes.NewReader(avatar.Data), true)
	if err != nil {
		return HandoffResult{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	result := HandoffResult{
		ObjectKey: relPath,
		PublicURL: s.Store.PublicURL(relPath),
	}
	log.Printf("avatar: stored %d bytes for user %d at %s", len(avatar.Data), userID, relPath)
	return result, nil
}

// UpdateRecord is the explicit second step after a successful handoff: write
// the history row and point the profile at the new reference.
func (s *AvatarService) UpdateRecord(userID uint, handoff HandoffResult, avatar *media.EditedAvatar, origin media.SourceOrigin, meta *utils.CaptureMetadata) (*models.AvatarRecord, error) {
	sum := sha256.Sum256(avatar.Data)
	record := &models.AvatarRecord{
		UserID:    userID,
		ObjectKey: handoff.ObjectKey,
		PublicURL: handoff.PublicURL,
		Width:     avatar.Width,
		Height:    avatar.Height,
		SizeBytes: len(avatar.Data),
		SHA256:    hex.EncodeToString(sum[:]),
		Origin:    string(origin),
	}
	if meta != nil {
		record.CameraMake = meta.CameraMake
		record.CameraModel = meta.CameraModel
		record.TakenAt = meta.TakenAt
	}

	if err := s.Avatars.RecordSave(record); err != nil {
		return nil, fmt.Errorf("failed to record avatar save: %w", err)
	}
	if err := s.Profiles.SetPhotoRefs(userID, handoff.PublicURL, ""); err != nil {
		return nil, fmt.Errorf("failed to update profile photo reference: %w", err)
	}
	return record, nil
}

// Delete removes the stored object, its history row, and the profile's
// photo references.
func (s *AvatarService) Delete(userID uint, objectKey string) error {
	if err := s.Store.Delete(objectKey); err != nil {
		return fmt.Errorf("failed to delete stored avatar: %w", err)
	}
	if err := s.Avatars.DeleteByObjectKey(objectKey); err != nil {
		return err
	}
	return s.Profiles.ClearPhotoRefs(userID)
}

// StoredObjects lists the user's stored avatar filenames in natural order
// (avatar-2.jpg before avatar-10.jpg).
func (s *AvatarService) StoredObjects(userID uint) ([]string, error) {
	names, err := s.Store.List(media.AssetTypeAvatar, fmt.Sprint(userID))
	if err != nil {
		return nil, err
	}
	natsort.Sort(names)
	return names, nil
}
