package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
)

// Staging record lifecycle statuses.
const (
	StatusPendingNew    = "pending_new"
	StatusPendingUpdate = "pending_update"
	StatusUpToDate      = "up_to_date"
	StatusCancelled     = "cancelled"
)

// IsPending reports whether a status marks a record eligible for
// materialization.
func IsPending(status string) bool {
	return status == StatusPendingNew || status == StatusPendingUpdate
}

// StagingRecord is one staged inbound document awaiting materialization.
// (Name, Type) is unique; redelivery of the same document updates the row
// in place rather than inserting a duplicate.
type StagingRecord struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	Name           string         `json:"name" db:"name" validate:"required"`
	Type           string         `json:"type" db:"type" validate:"required"`
	Title          string         `json:"title" db:"title"`
	Channel        string         `json:"channel" db:"channel"`
	CanonicalURL   string         `json:"canonical_url" db:"canonical_url"`
	Status         string         `json:"status" db:"status"`
	RawDocument    database.JSONB `json:"raw_document" db:"raw_document"`
	MaterializedID *int64         `json:"materialized_id" db:"materialized_id"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// Document decodes the staged payload back into a ContentDocument.
func (r *StagingRecord) Document() (*ContentDocument, error) {
	var doc ContentDocument
	if err := r.RawDocument.Unmarshal(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// StagingRecordListResponse is a paginated page of staging records.
type StagingRecordListResponse struct {
	Items      []StagingRecord `json:"items"`
	TotalCount int             `json:"total_count"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
}

// AssetCacheEntry maps a remote asset reference to the local asset it was
// imported as. Entries are write-once; a populated row short-circuits any
// further fetch of the same reference.
type AssetCacheEntry struct {
	ID           uuid.UUID `json:"id" db:"id"`
	ExternalRef  string    `json:"external_ref" db:"external_ref"`
	LocalAssetID int64     `json:"local_asset_id" db:"local_asset_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
