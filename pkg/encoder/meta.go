package encoder

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/placeholder"
)

// Class is the recognized shape of a meta value.
type Class int

const (
	// ClassOpaque values are carried as-is.
	ClassOpaque Class = iota
	// ClassImageID values hold a single local asset id.
	ClassImageID
	// ClassImageSrc values hold a single asset URL.
	ClassImageSrc
	// ClassSerializedAsset values hold a serialized structure embedding a
	// URL+id pair.
	ClassSerializedAsset
	// ClassLinkedIdentity values hold the id of another content object.
	ClassLinkedIdentity
	// ClassTermReference values hold a taxonomy term id.
	ClassTermReference
	// ClassExcluded values are never synchronized.
	ClassExcluded
)

var metaClassification = map[string]Class{
	"_thumbnail_id":  ClassImageID,
	"menu_thumbnail": ClassImageID,

	"post-sponser-logo": ClassSerializedAsset,

	"event_custom_template": ClassLinkedIdentity,
	"event_sponsers":        ClassLinkedIdentity,

	"event_speakers": ClassTermReference,

	"_edit_last":       ClassExcluded,
	"_edit_lock":       ClassExcluded,
	"post_views_count": ClassExcluded,
}

// Classify returns the classification of a meta key.
func Classify(key string) Class {
	return metaClassification[key]
}

// FeaturedImageKey is the meta key whose value declares the content
// object's featured image.
const FeaturedImageKey = "_thumbnail_id"

// encodeMeta encodes one meta entry per its key classification. The second
// return value is the local id of a linked content object when the entry
// references one, for the caller to traverse.
func (e *Encoder) encodeMeta(ctx context.Context, entry models.MetaEntry) (models.MetaEntry, int64) {
	switch Classify(entry.Key) {
	case ClassImageID:
		id, err := strconv.ParseInt(entry.Value, 10, 64)
		if err != nil {
			e.softWarn(ctx, entry.Key, err)
			return entry, 0
		}
		asset, err := e.reader.AssetByID(ctx, id)
		if err != nil {
			e.softWarn(ctx, entry.Key, err)
			return entry, 0
		}
		entry.Value = placeholder.IDFamily.Wrap(asset.URL)
		return entry, 0

	case ClassImageSrc:
		if entry.Value == "" {
			return entry, 0
		}
		entry.Value = placeholder.SrcFamily.Wrap(entry.Value)
		return entry, 0

	case ClassSerializedAsset:
		var sa models.SerializedAsset
		if err := json.Unmarshal([]byte(entry.Value), &sa); err != nil {
			e.softWarn(ctx, entry.Key, err)
			return entry, 0
		}
		// Both fields carry the URL; the family tells the decoder whether
		// to substitute the local URL or the local id.
		url := sa.URL
		sa.URL = placeholder.SrcFamily.Wrap(url)
		sa.ID = placeholder.IDFamily.Wrap(url)
		sa.Thumbnail = ""
		encoded, err := json.Marshal(sa)
		if err != nil {
			e.softWarn(ctx, entry.Key, err)
			return entry, 0
		}
		entry.Value = string(encoded)
		return entry, 0

	case ClassLinkedIdentity:
		id, err := strconv.ParseInt(entry.Value, 10, 64)
		if err != nil {
			e.softWarn(ctx, entry.Key, err)
			return entry, 0
		}
		linked, err := e.reader.ContentByID(ctx, id)
		if err != nil {
			e.softWarn(ctx, entry.Key, err)
			return entry, 0
		}
		encoded, err := json.Marshal(models.LinkedIdentity{Name: linked.Name, Type: linked.Type})
		if err != nil {
			e.softWarn(ctx, entry.Key, err)
			return entry, 0
		}
		entry.Value = string(encoded)
		return entry, id

	case ClassTermReference:
		id, err := strconv.ParseInt(entry.Value, 10, 64)
		if err != nil {
			e.softWarn(ctx, entry.Key, err)
			return entry, 0
		}
		term, err := e.reader.TermByID(ctx, id)
		if err != nil {
			e.softWarn(ctx, entry.Key, err)
			return entry, 0
		}
		encoded, err := json.Marshal(models.TermReference{Slug: term.Slug, Taxonomy: term.Taxonomy, Name: term.Name})
		if err != nil {
			e.softWarn(ctx, entry.Key, err)
			return entry, 0
		}
		entry.Value = string(encoded)
		return entry, 0

	default:
		return entry, 0
	}
}

func (e *Encoder) softWarn(ctx context.Context, key string, err error) {
	e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
		"meta_key": key,
	}).Warn("Failed to encode meta value, passing through unmodified")
}
