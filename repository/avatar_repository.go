package repository

import (
	"fmt"

	"github.com/linkedout/avatarbackend/database"
	"github.com/linkedout/avatarbackend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormAvatarRepository struct {
	db *gorm.DB
}

func NewGormAvatarRepository(db *gorm.DB) AvatarRepository {
	return &GormAvatarRepository{db: db}
}

// RecordSave inserts or replaces the history row for the object key. Repeated
// saves under the same key overwrite the stored object, so the row follows.
func (r *GormAvatarRepository) RecordSave(record *models.AvatarRecord) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "object_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"public_url", "width", "height", "size_bytes", "sha256", "origin",
			"camera_make", "camera_model", "taken_at", "updated_at",
		}),
	}).Create(record).Error
}

func (r *GormAvatarRepository) GetByObjectKey(key string) (*models.AvatarRecord, error) {
	var record models.AvatarRecord
	err := r.db.Where("object_key = ?", key).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByUser goes through the raw squirrel-built query path
func (r *GormAvatarRepository) ListByUser(userID uint, filter database.AvatarHistoryFilter) ([]database.AvatarHistoryRow, error) {
	sqlDB, err := r.db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return database.ListAvatarHistory(sqlDB, userID, filter)
}

func (r *GormAvatarRepository) DeleteByObjectKey(key string) error {
	return r.db.Where("object_key = ?", key).Delete(&models.AvatarRecord{}).Error
}
