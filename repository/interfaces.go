package repository

import (
	"github.com/linkedout/avatarbackend/database"
	"github.com/linkedout/avatarbackend/models"
)

// UserRepository defines operations for managing user accounts
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByUsername(username string) (*models.User, error)
	Update(user *models.User) error
	Delete(id uint) error
}

// ProfileRepository defines operations for the canonical profile record.
// SetPhotoRefs is deliberately its own narrow operation: the avatar pipeline
// updates the photo reference only after a successful store write, and never
// touches any other profile field.
type ProfileRepository interface {
	GetByUserID(userID uint) (*models.Profile, error)
	Upsert(profile *models.Profile) error
	SetPhotoRefs(userID uint, photoURL, headshotURL string) error
	ClearPhotoRefs(userID uint) error
}

// AvatarRepository defines operations for the avatar history
type AvatarRepository interface {
	RecordSave(record *models.AvatarRecord) error
	GetByObjectKey(key string) (*models.AvatarRecord, error)
	ListByUser(userID uint, filter database.AvatarHistoryFilter) ([]database.AvatarHistoryRow, error)
	DeleteByObjectKey(key string) error
}
