package synth

import (
	"strings"
	"unicode"

	"github.com/tsawler/prose/v3"
)

// genericWords are labels too vague to make a distinctive phrase
var genericWords = map[string]bool{
	"ok": true, "okay": true, "yes": true, "no": true, "button": true,
	"label": true, "text": true, "item": true, "view": true, "image": true,
	"icon": true, "untitled": true, "click": true, "tap": true, "here": true,
}

// labelWords tokenizes natural display text into lowercase words. prose
// handles punctuation and contractions; the fallback is a plain field split
// when the document fails to build (e.g. control characters).
func labelWords(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var raw []string
	if doc, err := prose.NewDocument(text); err == nil {
		for _, tok := range doc.Tokens() {
			raw = append(raw, tok.Text)
		}
	} else {
		raw = strings.Fields(text)
	}

	words := make([]string, 0, len(raw))
	for _, w := range raw {
		w = strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}))
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}

// resourceWords derives words from a resource id like
// "com.example.app:id/submit_order" or "submitOrderButton".
func resourceWords(id string) []string {
	if i := strings.LastIndexAny(id, "/:"); i >= 0 {
		id = id[i+1:]
	}
	id = splitCamel(id)
	id = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(id)

	var words []string
	for _, w := range strings.Fields(strings.ToLower(id)) {
		if w == "id" {
			continue
		}
		words = append(words, w)
	}
	return words
}

func splitCamel(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) && !unicode.IsUpper(rune(s[i-1])) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// distinctive reports whether the word list carries at least one
// non-generic word.
func distinctive(words []string) bool {
	for _, w := range words {
		if !genericWords[w] {
			return true
		}
	}
	return false
}

// normalizePhrase lowercases and collapses whitespace for matching
func normalizePhrase(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Similarity is the Sørensen–Dice coefficient over character bigrams of the
// normalized phrases. Chosen over raw edit distance: it tolerates word-order
// and small morphology differences, which matches how spoken phrases miss.
func Similarity(a, b string) float64 {
	a = normalizePhrase(a)
	b = normalizePhrase(b)
	if a == b {
		return 1.0
	}
	if len(a) < 2 || len(b) < 2 {
		return 0.0
	}

	bigrams := func(s string) map[string]int {
		m := make(map[string]int)
		r := []rune(s)
		for i := 0; i+1 < len(r); i++ {
			m[string(r[i:i+2])]++
		}
		return m
	}
	ba, bb := bigrams(a), bigrams(b)
	overlap := 0
	total := 0
	for g, ca := range ba {
		total += ca
		if cb, ok := bb[g]; ok {
			if ca < cb {
				overlap += ca
			} else {
				overlap += cb
			}
		}
	}
	for _, cb := range bb {
		total += cb
	}
	if total == 0 {
		return 0.0
	}
	return 2.0 * float64(overlap) / float64(total)
}
