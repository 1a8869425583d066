// Package encoder builds transportable documents from local content
// objects. Asset references embedded in the body and in classified meta
// values are replaced with sentinel placeholders so the receiving site can
// resolve them against its own media library. Encoding never fails
// terminally; a reference that cannot be resolved is passed through
// unmodified and logged as a soft warning.
package encoder

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/contentstore"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// GalleryExporter packages a third-party gallery identified by alias into
// a downloadable bundle and returns its URL. Optional.
type GalleryExporter interface {
	ExportBundle(ctx context.Context, alias string) (string, error)
}

// Config holds the encoder's site-level settings.
type Config struct {
	// SiteURL is this site's public base URL. The channel identifier is
	// derived from its domain.
	SiteURL string

	// ExportableTypes limits which content types may be encoded. Empty
	// means all types.
	ExportableTypes []string

	// MaxLinkDepth bounds traversal of linked content referenced from
	// meta values.
	MaxLinkDepth int
}

type Encoder struct {
	reader  contentstore.Reader
	gallery GalleryExporter
	config  Config
	channel string
	logger  ectologger.Logger
}

func New(reader contentstore.Reader, gallery GalleryExporter, config Config, logger ectologger.Logger) *Encoder {
	if config.MaxLinkDepth <= 0 {
		config.MaxLinkDepth = 3
	}
	return &Encoder{
		reader:  reader,
		gallery: gallery,
		config:  config,
		channel: ParseChannel(config.SiteURL),
		logger:  logger,
	}
}

// Exportable reports whether the given content type may be encoded.
func (e *Encoder) Exportable(contentType string) bool {
	if len(e.config.ExportableTypes) == 0 {
		return true
	}
	for _, t := range e.config.ExportableTypes {
		if t == contentType {
			return true
		}
	}
	return false
}

// Encode builds the transportable document for one local content object.
func (e *Encoder) Encode(ctx context.Context, contentID int64) (*models.ContentDocument, error) {
	docs, err := e.encode(ctx, contentID, 0, map[string]bool{})
	if err != nil {
		return nil, err
	}
	return docs[len(docs)-1], nil
}

// EncodeWithLinked builds the document for contentID plus a document for
// every content object reachable through linked-identity meta, up to the
// configured depth. Linked documents come first so a destination staging
// them in order can resolve references on first materialization. Cycles
// are broken by a visited set keyed on natural identity.
func (e *Encoder) EncodeWithLinked(ctx context.Context, contentID int64) ([]*models.ContentDocument, error) {
	return e.encode(ctx, contentID, 0, map[string]bool{})
}

func (e *Encoder) encode(ctx context.Context, contentID int64, depth int, visited map[string]bool) ([]*models.ContentDocument, error) {
	ctx, span := tracing.StartSpan(ctx, "encoder.Encoder.Encode")
	defer span.End()

	content, err := e.reader.ContentByID(ctx, contentID)
	if err != nil {
		return nil, err
	}

	key := content.Name + ":" + content.Type
	if visited[key] {
		return nil, fmt.Errorf("content %s already encoded in this traversal", key)
	}
	visited[key] = true

	if !e.Exportable(content.Type) {
		return nil, fmt.Errorf("content type %q is not exportable", content.Type)
	}

	doc := &models.ContentDocument{
		Name:         content.Name,
		Type:         content.Type,
		Title:        content.Title,
		Excerpt:      content.Excerpt,
		Channel:      e.channel,
		CanonicalURL: e.canonicalURL(content),
		Body:         e.encodeBody(ctx, content.Body),
	}

	var linked []*models.ContentDocument

	meta, err := e.reader.ContentMeta(ctx, contentID)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"content_id": contentID,
		}).Warn("Failed to load content meta, encoding without it")
	}
	for _, entry := range meta {
		encoded, linkedID := e.encodeMeta(ctx, entry)
		doc.Meta = append(doc.Meta, encoded)

		if linkedID == 0 {
			continue
		}
		if depth+1 >= e.config.MaxLinkDepth {
			e.logger.WithContext(ctx).WithFields(map[string]any{
				"content_id": contentID,
				"linked_id":  linkedID,
				"depth":      depth,
			}).Warn("Linked content depth limit reached, reference encoded without document")
			continue
		}
		linkedDocs, err := e.encode(ctx, linkedID, depth+1, visited)
		if err != nil {
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"content_id": contentID,
				"linked_id":  linkedID,
			}).Warn("Failed to encode linked content")
			continue
		}
		linked = append(linked, linkedDocs...)
	}

	if content.AuthorID != 0 {
		if author, err := e.reader.AuthorByID(ctx, content.AuthorID); err != nil {
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"content_id": contentID,
				"author_id":  content.AuthorID,
			}).Warn("Failed to load author, encoding without it")
		} else {
			doc.Author = &models.DocumentAuthor{
				Login:       author.Login,
				Email:       author.Email,
				DisplayName: author.DisplayName,
				FirstName:   author.FirstName,
				LastName:    author.LastName,
				Nickname:    author.Nickname,
				Bio:         author.Bio,
			}
		}
	}

	terms, err := e.flattenTerms(ctx, contentID)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"content_id": contentID,
		}).Warn("Failed to flatten terms, encoding without them")
	}
	doc.Terms = terms

	assets, err := e.reader.AttachedAssets(ctx, contentID)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"content_id": contentID,
		}).Warn("Failed to load attached assets, encoding without them")
	}
	for _, asset := range assets {
		doc.Images = append(doc.Images, models.DocumentImage{
			SourceID: asset.ID,
			URL:      asset.URL,
			MimeType: asset.MimeType,
			Title:    asset.Title,
		})
	}

	return append(linked, doc), nil
}

func (e *Encoder) canonicalURL(content *models.LocalContent) string {
	return strings.TrimRight(e.config.SiteURL, "/") + "/" + content.Type + "/" + content.Name
}

var channelPattern = regexp.MustCompile(`(?i)([a-z0-9][a-z0-9\-]{1,63}\.[a-z\.]{2,6})$`)

// ParseChannel derives the channel identifier from a site URL: the
// registrable domain's leftmost label. "https://www.acme.com.au" -> "acme".
func ParseChannel(siteURL string) string {
	host := siteURL
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/:"); i >= 0 {
		host = host[:i]
	}

	m := channelPattern.FindStringSubmatch(host)
	if m == nil {
		return ""
	}
	domain := m[1]
	if i := strings.Index(domain, "."); i >= 0 {
		return domain[:i]
	}
	return domain
}
