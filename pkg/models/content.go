package models

import "time"

// Content object statuses on the destination site.
const (
	ContentStatusDraft   = "draft"
	ContentStatusPublish = "publish"
)

// Publish policies controlling the status given to materialized content.
const (
	PublishPolicyImportOnly = "import-only"
	PublishPolicyDraft      = "draft"
	PublishPolicyPublish    = "publish"
)

// LocalContent is a content object as stored on the destination site.
type LocalContent struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Type      string    `json:"type" db:"type"`
	Title     string    `json:"title" db:"title"`
	Body      string    `json:"body" db:"body"`
	Excerpt   string    `json:"excerpt" db:"excerpt"`
	Status    string    `json:"status" db:"status"`
	AuthorID  int64     `json:"author_id" db:"author_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// LocalTerm is a taxonomy term on the destination site.
type LocalTerm struct {
	ID       int64  `json:"id" db:"id"`
	Slug     string `json:"slug" db:"slug"`
	Taxonomy string `json:"taxonomy" db:"taxonomy"`
	Name     string `json:"name" db:"name"`
	ParentID int64  `json:"parent_id" db:"parent_id"`
}

// LocalAuthor is an author account on the destination site. Imported
// authors always carry the restricted author role regardless of the role
// they had on the source.
type LocalAuthor struct {
	ID          int64  `json:"id" db:"id"`
	Login       string `json:"login" db:"login"`
	Email       string `json:"email" db:"email"`
	DisplayName string `json:"display_name" db:"display_name"`
	FirstName   string `json:"first_name" db:"first_name"`
	LastName    string `json:"last_name" db:"last_name"`
	Nickname    string `json:"nickname" db:"nickname"`
	Bio         string `json:"bio" db:"bio"`
	Role        string `json:"role" db:"role"`
}

// LocalAsset is an imported media asset on the destination site.
type LocalAsset struct {
	ID       int64  `json:"id" db:"id"`
	URL      string `json:"url" db:"url"`
	Path     string `json:"path" db:"path"`
	MimeType string `json:"mime_type" db:"mime_type"`
	Title    string `json:"title" db:"title"`
}
