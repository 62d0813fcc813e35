package models

import "time"

// Profile is the canonical profile record. Earlier iterations of the product
// carried several inconsistent field shapes for the same data; everything now
// maps onto this one DTO at the persistence boundary.
type Profile struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	UserID      uint   `json:"user_id" gorm:"uniqueIndex;not null"`
	DisplayName string `json:"display_name"`
	Headline    string `json:"headline"`
	Location    string `json:"location"`
	About       string `json:"about"`
	// PhotoURL is the public reference to the current avatar object. It is
	// only ever updated after a successful store write, in a separate step.
	PhotoURL    string    `json:"photo_url"`
	HeadshotURL string    `json:"headshot_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
