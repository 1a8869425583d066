package encoder

import (
	"context"
	"strconv"
	"strings"

	"github.com/Ramsey-B/fern/pkg/placeholder"
	"github.com/Ramsey-B/fern/pkg/shortcode"
)

// encodeBody rewrites the three embedded reference shapes in body markup:
// src attribute URLs, numeric asset-id list attributes, and the
// embeddable-gallery shorthand tag.
func (e *Encoder) encodeBody(ctx context.Context, body string) string {
	body = e.encodeSrcAttributes(body)
	body = e.encodeIDListAttributes(ctx, body)
	body = e.encodeGalleryTags(ctx, body)
	return body
}

var srcPattern = shortcode.SrcAttrPattern

func (e *Encoder) encodeSrcAttributes(body string) string {
	return srcPattern.ReplaceAllStringFunc(body, func(match string) string {
		url := srcPattern.FindStringSubmatch(match)[1]
		if url == "" || strings.Contains(url, placeholder.SrcFamily.Start) {
			return match
		}
		return `src="` + placeholder.SrcFamily.Wrap(url) + `"`
	})
}

var idListPattern = shortcode.IDListAttrPattern

func (e *Encoder) encodeIDListAttributes(ctx context.Context, body string) string {
	return idListPattern.ReplaceAllStringFunc(body, func(match string) string {
		groups := idListPattern.FindStringSubmatch(match)
		attr, list := groups[1], groups[2]

		var sources []string
		for _, raw := range strings.Split(list, ",") {
			if raw == "" {
				continue
			}
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				continue
			}
			asset, err := e.reader.AssetByID(ctx, id)
			if err != nil {
				e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"asset_id": id,
				}).Warn("Failed to resolve asset id in body, dropping from list")
				continue
			}
			sources = append(sources, placeholder.IDFamily.Wrap(asset.URL))
		}

		return attr + `="` + strings.Join(sources, ",") + `"`
	})
}

func (e *Encoder) encodeGalleryTags(ctx context.Context, body string) string {
	if e.gallery == nil {
		return body
	}

	return shortcode.ReplaceGalleryTags(body, func(attrs map[string]string, original string) string {
		alias, ok := attrs["alias"]
		if !ok {
			return original
		}

		bundleURL, err := e.gallery.ExportBundle(ctx, alias)
		if err != nil {
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"alias": alias,
			}).Warn("Failed to export gallery bundle, leaving tag unmodified")
			return original
		}

		return shortcode.GalleryTag(map[string]string{
			"alias":      alias,
			"bundle-url": bundleURL,
		})
	})
}
