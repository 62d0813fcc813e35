package repository

import (
	"errors"

	"github.com/linkedout/avatarbackend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormProfileRepository struct {
	db *gorm.DB
}

func NewGormProfileRepository(db *gorm.DB) ProfileRepository {
	return &GormProfileRepository{db: db}
}

func (r *GormProfileRepository) GetByUserID(userID uint) (*models.Profile, error) {
	var profile models.Profile
	err := r.db.Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// Upsert creates the profile row on first write and updates the editable
// fields afterwards. Photo references are excluded here; they only move
// through SetPhotoRefs.
func (r *GormProfileRepository) Upsert(profile *models.Profile) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"display_name", "headline", "location", "about", "updated_at",
		}),
	}).Create(profile).Error
}

func (r *GormProfileRepository) SetPhotoRefs(userID uint, photoURL, headshotURL string) error {
	res := r.db.Model(&models.Profile{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{"photo_url": photoURL, "headshot_url": headshotURL})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("no profile record to update")
	}
	return nil
}

func (r *GormProfileRepository) ClearPhotoRefs(userID uint) error {
	return r.db.Model(&models.Profile{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{"photo_url": "", "headshot_url": ""}).Error
}
