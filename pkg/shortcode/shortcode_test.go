package shortcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReplaceGalleryTags(t *testing.T) {
	body := `intro [gallery-embed alias="summit" bundle-url="https://src.example/summit.zip"] middle [gallery-embed alias="expo"] end`

	out := ReplaceGalleryTags(body, func(attrs map[string]string, original string) string {
		if attrs["bundle-url"] == "" {
			return original
		}
		delete(attrs, "bundle-url")
		return GalleryTag(attrs)
	})

	assert.Equal(t, `intro [gallery-embed alias="summit"] middle [gallery-embed alias="expo"] end`, out)
}

func TestReplaceGalleryTagsNoTags(t *testing.T) {
	body := "<p>no shortcodes here</p>"
	out := ReplaceGalleryTags(body, func(attrs map[string]string, original string) string {
		t.Fatal("replace should not be called")
		return original
	})
	assert.Equal(t, body, out)
}

func TestGalleryTagStableOrdering(t *testing.T) {
	tag := GalleryTag(map[string]string{
		"bundle-url": "https://src.example/a.zip",
		"alias":      "a",
	})
	assert.Equal(t, `[gallery-embed alias="a" bundle-url="https://src.example/a.zip"]`, tag)
}

func TestSrcAttrPattern(t *testing.T) {
	matches := SrcAttrPattern.FindAllStringSubmatch(`<img src="https://a/b.jpg"/><img src = "https://a/c.png">`, -1)
	assert.Len(t, matches, 2)
	assert.Equal(t, "https://a/b.jpg", matches[0][1])
}

func TestIDListAttrPattern(t *testing.T) {
	matches := IDListAttrPattern.FindAllStringSubmatch(`[gallery ids="1,2,3"] [slide image="44"]`, -1)
	assert.Len(t, matches, 2)
	assert.Equal(t, "1,2,3", matches[0][2])
	assert.Equal(t, "44", matches[1][2])
}
