// Package shortcode holds the body-markup patterns shared by the encode
// and decode sides: attribute reference shapes and the embeddable-gallery
// shorthand tag.
package shortcode

import (
	"regexp"
	"sort"
	"strings"
)

// SrcAttrPattern matches src attributes in markup. Group 1 is the value.
var SrcAttrPattern = regexp.MustCompile(`src\s?=\s?"(.*?)"`)

// IDListAttrPattern matches attributes carrying comma-separated numeric
// asset-id lists. Group 1 is the attribute name, group 2 the list.
var IDListAttrPattern = regexp.MustCompile(`(ids|image|images)\s?=\s?"([0-9,]*?)"`)

// galleryPattern matches the embeddable-gallery shorthand tag. Group 1 is
// the raw attribute text.
var galleryPattern = regexp.MustCompile(`\[gallery-embed(.*?)\]`)

var galleryAttrPattern = regexp.MustCompile(`([a-z0-9-]+)\s?=\s?"(.*?)"`)

// ReplaceGalleryTags invokes replace for every gallery tag in body with
// its parsed attributes and the original tag text, substituting the
// returned string.
func ReplaceGalleryTags(body string, replace func(attrs map[string]string, original string) string) string {
	return galleryPattern.ReplaceAllStringFunc(body, func(match string) string {
		raw := galleryPattern.FindStringSubmatch(match)[1]

		attrs := map[string]string{}
		for _, m := range galleryAttrPattern.FindAllStringSubmatch(raw, -1) {
			attrs[m[1]] = m[2]
		}

		return replace(attrs, match)
	})
}

// GalleryTag renders a gallery tag with the given attributes in a stable
// order: alias first, remaining keys sorted.
func GalleryTag(attrs map[string]string) string {
	var b strings.Builder
	b.WriteString("[gallery-embed")

	write := func(key string) {
		b.WriteString(` ` + key + `="` + attrs[key] + `"`)
	}

	if _, ok := attrs["alias"]; ok {
		write("alias")
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		if k != "alias" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		write(k)
	}

	b.WriteString("]")
	return b.String()
}
