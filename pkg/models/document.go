package models

// ContentDocument is the transportable representation of one content item.
// (Name, Type) is the natural key identifying the logical item across all
// sites; Channel and CanonicalURL identify its origin for display/audit only.
type ContentDocument struct {
	Name         string          `json:"name" validate:"required"`
	Type         string          `json:"type" validate:"required"`
	Title        string          `json:"title" validate:"required"`
	Body         string          `json:"body"`
	Excerpt      string          `json:"excerpt"`
	Channel      string          `json:"channel" validate:"required"`
	CanonicalURL string          `json:"canonical_url"`
	Meta         []MetaEntry     `json:"meta,omitempty"`
	Author       *DocumentAuthor `json:"author,omitempty"`
	Terms        []DocumentTerm  `json:"terms,omitempty"`
	Images       []DocumentImage `json:"images,omitempty"`
}

// NaturalKey returns the document's cross-site identity.
func (d *ContentDocument) NaturalKey() (string, string) {
	return d.Name, d.Type
}

// MetaEntry is one meta key/value pair. Order is preserved end to end so
// decode mirrors encode. Values may contain placeholder sentinels or
// serialized sub-objects depending on the key's classification.
type MetaEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// DocumentAuthor is the denormalized author record carried inside a
// document. Only allow-listed fields are ever copied into a local author.
type DocumentAuthor struct {
	Login       string `json:"login"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Nickname    string `json:"nickname,omitempty"`
	Bio         string `json:"bio,omitempty"`
}

// DocumentTerm is one flattened taxonomy term. The Terms slice of a
// document is ordered so that every term's parent appears strictly before
// it; ParentID refers to the source site's term id and is resolved against
// earlier entries of the same slice during import.
type DocumentTerm struct {
	SourceID    int64  `json:"source_id"`
	ParentID    int64  `json:"parent_id"`
	Slug        string `json:"slug"`
	Taxonomy    string `json:"taxonomy"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// BelongsToDocument distinguishes terms attached to the content object
	// from ancestors pulled in only to satisfy parent linkage.
	BelongsToDocument bool `json:"belongs_to_document"`
}

// DocumentImage describes one attached media asset by its remote URL.
type DocumentImage struct {
	SourceID int64  `json:"source_id"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Title    string `json:"title,omitempty"`
}

// LinkedIdentity is the natural identity of another content object
// referenced from a meta value, replacing the source site's numeric id.
type LinkedIdentity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TermReference replaces a source-site term id in a meta value with enough
// information to re-resolve the term on the destination.
type TermReference struct {
	Slug     string `json:"slug"`
	Taxonomy string `json:"taxonomy"`
	Name     string `json:"name,omitempty"`
}

// SerializedAsset is the decoded form of a meta value embedding a URL+id
// pair (sponsor logos and similar). Both fields carry placeholder
// sentinels in transit; Thumbnail is synthesized on the destination.
type SerializedAsset struct {
	URL       string `json:"url"`
	ID        string `json:"id"`
	Thumbnail string `json:"thumbnail,omitempty"`
}
