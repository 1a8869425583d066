package placeholder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Token
	}{
		{
			name:     "plain text",
			input:    "hello world",
			expected: []Token{{Literal: "hello world"}},
		},
		{
			name:  "single src sentinel",
			input: `<img src="%imgsrc-start%https://img/x.jpg%imgsrc-end%" />`,
			expected: []Token{
				{Literal: `<img src="`},
				{Family: SrcFamily, Ref: "https://img/x.jpg", Sentinel: true},
				{Literal: `" />`},
			},
		},
		{
			name:  "mixed families",
			input: `ids="%imgid-start%https://img/a.jpg%imgid-end%,%imgid-start%https://img/b.jpg%imgid-end%"`,
			expected: []Token{
				{Literal: `ids="`},
				{Family: IDFamily, Ref: "https://img/a.jpg", Sentinel: true},
				{Literal: ","},
				{Family: IDFamily, Ref: "https://img/b.jpg", Sentinel: true},
				{Literal: `"`},
			},
		},
		{
			name:  "unterminated start marker stays literal",
			input: "before %imgsrc-start%https://img/x.jpg after",
			expected: []Token{
				{Literal: "before "},
				{Literal: "%imgsrc-start%"},
				{Literal: "https://img/x.jpg after"},
			},
		},
		{
			name:  "stray end marker stays literal",
			input: "before %imgsrc-end% after",
			expected: []Token{
				{Literal: "before %imgsrc-end% after"},
			},
		},
		{
			name:  "literal after unterminated marker can still open a sentinel",
			input: "%imgsrc-start%broken %imgid-start%https://img/a.jpg%imgid-end%",
			expected: []Token{
				{Literal: "%imgsrc-start%"},
				{Literal: "broken "},
				{Family: IDFamily, Ref: "https://img/a.jpg", Sentinel: true},
			},
		},
		{
			name:     "empty input",
			input:    "",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Tokenize(tt.input))
		})
	}
}

func TestResolve(t *testing.T) {
	resolver := func(ctx context.Context, f Family, ref string) (string, bool) {
		switch {
		case f == SrcFamily && ref == "https://img/x.jpg":
			return "https://local/media/x.jpg", true
		case f == IDFamily && ref == "https://img/x.jpg":
			return "42", true
		default:
			return "", false
		}
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "src sentinel replaced with local url",
			input:    `<img src="%imgsrc-start%https://img/x.jpg%imgsrc-end%" />`,
			expected: `<img src="https://local/media/x.jpg" />`,
		},
		{
			name:     "id sentinel replaced with local id",
			input:    `ids="%imgid-start%https://img/x.jpg%imgid-end%"`,
			expected: `ids="42"`,
		},
		{
			name:     "unresolvable sentinel re-emitted verbatim",
			input:    `src="%imgsrc-start%https://img/missing.jpg%imgsrc-end%"`,
			expected: `src="%imgsrc-start%https://img/missing.jpg%imgsrc-end%"`,
		},
		{
			name:     "text without markers untouched",
			input:    "a 50% discount on everything",
			expected: "a 50% discount on everything",
		},
		{
			name:     "resolvable and unresolvable side by side",
			input:    `%imgsrc-start%https://img/x.jpg%imgsrc-end% %imgsrc-start%https://img/y.jpg%imgsrc-end%`,
			expected: `https://local/media/x.jpg %imgsrc-start%https://img/y.jpg%imgsrc-end%`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Resolve(context.Background(), tt.input, resolver))
		})
	}
}

func TestRefs(t *testing.T) {
	input := `%imgsrc-start%https://img/a.jpg%imgsrc-end% text ` +
		`%imgid-start%https://img/b.jpg%imgid-end% ` +
		`%imgsrc-start%https://img/a.jpg%imgsrc-end%`

	require.Equal(t, []string{"https://img/a.jpg", "https://img/a.jpg"}, Refs(input, SrcFamily))
	require.Equal(t, []string{"https://img/b.jpg"}, Refs(input, IDFamily))
	require.Equal(t, []string{"https://img/a.jpg", "https://img/b.jpg", "https://img/a.jpg"}, AllRefs(input))
}

func TestWrapRoundTrip(t *testing.T) {
	wrapped := SrcFamily.Wrap("https://img/x.jpg")
	tokens := Tokenize(wrapped)
	require.Len(t, tokens, 1)
	assert.True(t, tokens[0].Sentinel)
	assert.Equal(t, "https://img/x.jpg", tokens[0].Ref)
	assert.Equal(t, SrcFamily, tokens[0].Family)
}
