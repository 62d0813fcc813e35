package models

import "time"

// AvatarRecord is one saved avatar: the stored object plus the capture
// metadata known at save time. Rows are kept after the profile moves on so
// the history endpoint can list previous photos.
type AvatarRecord struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	UserID    uint   `json:"user_id" gorm:"index;not null"`
	ObjectKey string `json:"object_key" gorm:"uniqueIndex;not null"` // {userID}/{filename}
	PublicURL string `json:"public_url"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	SizeBytes int    `json:"size_bytes"`
	SHA256    string `json:"sha256"`
	Origin    string `json:"origin"` // "uploaded_file" or "camera_frame"

	// EXIF fields, populated for uploaded files when the source carries them
	CameraMake  *string `json:"camera_make,omitempty"`
	CameraModel *string `json:"camera_model,omitempty"`
	TakenAt     *int64  `json:"taken_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
