// Package placeholder implements the sentinel codec used to carry asset
// references inside document text. On encode, remote asset URLs are
// wrapped in marker pairs; on decode, each marker pair is replaced by a
// destination-local value. Text outside marker pairs is never touched, and
// a marker pair that cannot be resolved is re-emitted verbatim so a later
// replay can pick it up.
package placeholder

import (
	"context"
	"strings"
)

// Family is one marker pair. The payload between Start and End is always a
// remote asset URL; the family dictates what it resolves to.
type Family struct {
	Start string
	End   string
}

var (
	// SrcFamily resolves to the local URL of the imported asset. Used for
	// src attributes and other places expecting a URL.
	SrcFamily = Family{Start: "%imgsrc-start%", End: "%imgsrc-end%"}

	// IDFamily resolves to the local numeric id of the imported asset.
	// Used for gallery id lists and id-valued meta.
	IDFamily = Family{Start: "%imgid-start%", End: "%imgid-end%"}
)

// Families lists every known marker family, longest start marker first.
var Families = []Family{SrcFamily, IDFamily}

// Wrap encloses ref in the family's markers.
func (f Family) Wrap(ref string) string {
	return f.Start + ref + f.End
}

// Token is one segment of tokenized text. Either Literal text or a
// sentinel (Family + Ref).
type Token struct {
	Literal  string
	Family   Family
	Ref      string
	Sentinel bool
}

// Resolver maps a remote asset reference to its local replacement for one
// family. Returning ok=false leaves the sentinel in place.
type Resolver func(ctx context.Context, f Family, ref string) (string, bool)

// Tokenize splits input into literal and sentinel tokens. A start marker
// with no matching end marker is kept as literal text, as is an end marker
// with no preceding start.
func Tokenize(input string) []Token {
	var tokens []Token
	rest := input

	for rest != "" {
		fam, start := nextStart(rest)
		if start < 0 {
			tokens = append(tokens, Token{Literal: rest})
			break
		}

		payloadStart := start + len(fam.Start)
		end := strings.Index(rest[payloadStart:], fam.End)
		if end < 0 {
			// Unterminated marker. Everything from the start marker on is
			// literal, but text after it may still open a new sentinel.
			cut := payloadStart
			if start > 0 {
				tokens = append(tokens, Token{Literal: rest[:start]})
			}
			tokens = append(tokens, Token{Literal: rest[start:cut]})
			rest = rest[cut:]
			continue
		}

		if start > 0 {
			tokens = append(tokens, Token{Literal: rest[:start]})
		}
		tokens = append(tokens, Token{
			Family:   fam,
			Ref:      rest[payloadStart : payloadStart+end],
			Sentinel: true,
		})
		rest = rest[payloadStart+end+len(fam.End):]
	}

	return tokens
}

func nextStart(s string) (Family, int) {
	best := -1
	var bestFam Family
	for _, f := range Families {
		if i := strings.Index(s, f.Start); i >= 0 && (best < 0 || i < best) {
			best = i
			bestFam = f
		}
	}
	return bestFam, best
}

// Resolve tokenizes input and substitutes every resolvable sentinel.
// Unresolvable sentinels are re-emitted exactly as they appeared.
func Resolve(ctx context.Context, input string, resolve Resolver) string {
	if !strings.Contains(input, "%") {
		return input
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, tok := range Tokenize(input) {
		if !tok.Sentinel {
			b.WriteString(tok.Literal)
			continue
		}
		if replacement, ok := resolve(ctx, tok.Family, tok.Ref); ok {
			b.WriteString(replacement)
			continue
		}
		b.WriteString(tok.Family.Wrap(tok.Ref))
	}
	return b.String()
}

// Refs returns every sentinel reference in input belonging to the given
// family, in order of appearance, without deduplication.
func Refs(input string, f Family) []string {
	var refs []string
	for _, tok := range Tokenize(input) {
		if tok.Sentinel && tok.Family == f {
			refs = append(refs, tok.Ref)
		}
	}
	return refs
}

// AllRefs returns every sentinel reference in input across all families.
func AllRefs(input string) []string {
	var refs []string
	for _, tok := range Tokenize(input) {
		if tok.Sentinel {
			refs = append(refs, tok.Ref)
		}
	}
	return refs
}
