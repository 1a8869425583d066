package models

import (
	"time"

	"github.com/google/uuid"
)

// Destination is one configured downstream site that encoded documents are
// delivered to.
type Destination struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name" validate:"required"`
	URL         string    `json:"url" db:"url" validate:"required,url"`
	AccessToken string    `json:"access_token" db:"access_token" validate:"required"`
	Enabled     bool      `json:"enabled" db:"enabled"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
