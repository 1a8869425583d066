package importer

import (
	"context"
	"encoding/json"
	"path"
	"strconv"
	"strings"

	"github.com/Ramsey-B/fern/pkg/encoder"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/placeholder"
)

// applyMeta decodes each meta entry per its key classification and writes
// it onto the content object. The featured image key routes through
// SetFeaturedImage once its sentinel resolves to a local asset id.
// Malformed values pass through unmodified so no meta is lost to a
// decode failure.
func (m *materialization) applyMeta(ctx context.Context, contentID int64, doc *models.ContentDocument) {
	for _, entry := range doc.Meta {
		class := encoder.Classify(entry.Key)
		if class == encoder.ClassExcluded {
			continue
		}

		value := m.decodeMetaValue(ctx, class, entry.Value)
		if entry.Key == encoder.FeaturedImageKey {
			if assetID, err := strconv.ParseInt(value, 10, 64); err == nil {
				if err := m.store.SetFeaturedImage(ctx, contentID, assetID); err != nil {
					m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"asset_id": assetID}).Warn("Failed to set featured image")
				}
				continue
			}
			// Unresolved sentinel, keep it as plain meta for the retry.
		}
		if err := m.store.SetMeta(ctx, contentID, entry.Key, value); err != nil {
			m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"key": entry.Key}).Warn("Failed to set meta, skipping")
		}
	}
}

func (m *materialization) decodeMetaValue(ctx context.Context, class encoder.Class, value string) string {
	switch class {
	case encoder.ClassImageID, encoder.ClassImageSrc:
		return placeholder.Resolve(ctx, value, m.resolvePlaceholder)
	case encoder.ClassSerializedAsset:
		return m.decodeSerializedAsset(ctx, value)
	case encoder.ClassLinkedIdentity:
		return m.decodeLinkedIdentity(ctx, value)
	case encoder.ClassTermReference:
		return m.decodeTermReference(ctx, value)
	default:
		return value
	}
}

// decodeSerializedAsset resolves both fields of the composite asset value
// and synthesizes the thumbnail variant from the local URL.
func (m *materialization) decodeSerializedAsset(ctx context.Context, value string) string {
	var sa models.SerializedAsset
	if err := json.Unmarshal([]byte(value), &sa); err != nil {
		return value
	}

	sa.URL = placeholder.Resolve(ctx, sa.URL, m.resolvePlaceholder)
	sa.ID = placeholder.Resolve(ctx, sa.ID, m.resolvePlaceholder)
	sa.Thumbnail = thumbnailURL(sa.URL)

	decoded, err := json.Marshal(sa)
	if err != nil {
		return value
	}
	return string(decoded)
}

// decodeLinkedIdentity maps a (name, type) reference onto the local id of
// the linked content object. Linked documents arrive before the documents
// that reference them, so the lookup normally hits; a miss decodes to an
// empty value rather than carrying a dangling foreign id.
func (m *Materializer) decodeLinkedIdentity(ctx context.Context, value string) string {
	var li models.LinkedIdentity
	if err := json.Unmarshal([]byte(value), &li); err != nil {
		return value
	}

	content, err := m.store.FindContent(ctx, li.Name, li.Type)
	if err != nil {
		m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"name": li.Name, "type": li.Type}).Warn("Failed to resolve linked content")
		return ""
	}
	if content == nil {
		m.logger.WithContext(ctx).WithFields(map[string]any{"name": li.Name, "type": li.Type}).Warn("Linked content not found locally")
		return ""
	}
	return strconv.FormatInt(content.ID, 10)
}

// decodeTermReference maps a (slug, taxonomy) reference onto the local
// term id, creating the term when it does not exist yet.
func (m *Materializer) decodeTermReference(ctx context.Context, value string) string {
	var tr models.TermReference
	if err := json.Unmarshal([]byte(value), &tr); err != nil {
		return value
	}

	term, err := m.store.TermBySlug(ctx, tr.Slug, tr.Taxonomy)
	if err != nil {
		m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"slug": tr.Slug, "taxonomy": tr.Taxonomy}).Warn("Failed to resolve referenced term")
		return ""
	}
	if term == nil {
		term, err = m.store.CreateTerm(ctx, &models.LocalTerm{
			Slug:     tr.Slug,
			Taxonomy: tr.Taxonomy,
			Name:     tr.Name,
		})
		if err != nil {
			m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"slug": tr.Slug, "taxonomy": tr.Taxonomy}).Warn("Failed to create referenced term")
			return ""
		}
	}
	return strconv.FormatInt(term.ID, 10)
}

// thumbnailURL derives the 150x150 thumbnail variant of an asset URL.
func thumbnailURL(assetURL string) string {
	ext := path.Ext(assetURL)
	if ext == "" {
		return assetURL
	}
	return strings.TrimSuffix(assetURL, ext) + "-150x150" + ext
}
