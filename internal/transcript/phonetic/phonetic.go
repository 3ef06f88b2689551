// Package phonetic matches misheard words against a configured vocabulary
// using Double Metaphone codes combined with Jaro-Winkler string similarity.
//
// Matching proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     the input phrase and compared against the precompiled codes of each
//     vocabulary term. Any code overlap makes the term a candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates, the term with the
//     highest similarity to the input (case-insensitive) wins, provided it
//     clears the phonetic threshold. When no term overlaps phonetically, a
//     stricter pure-similarity fallback threshold applies instead.
//
// Because the corrector feeds the matcher sliding n-gram windows over free
// dictation, acceptance is deliberately conservative: a window can only
// match a term with the same number of words, or collapse onto a shorter
// term when the space-stripped window is essentially that term ("wire
// guard" onto "WireGuard"). Without those guards a strong trailing word
// would let a window swallow its innocent neighbours.
package phonetic

import (
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85

	// minFuzzyLengthRatio rejects fuzzy (non-phonetic) matches between
	// strings of very different lengths, where Jaro-Winkler's prefix bonus
	// overvalues containment ("wire" inside "wireguard").
	minFuzzyLengthRatio = 0.5

	// maxJoinLengthDiff bounds how far a space-stripped window may differ
	// in length from a shorter term it collapses onto. One rune absorbs a
	// dropped or doubled letter.
	maxJoinLengthDiff = 1
)

// term is one vocabulary entry with its precomputed phonetic codes.
type term struct {
	canonical string
	lower     string
	tokens    []string
	concat    string
	codes     map[string]struct{}
}

// Vocabulary is a compiled set of terms. Compile once per config load and
// reuse; a Vocabulary is read-only after construction and safe for
// concurrent use.
type Vocabulary struct {
	terms    []term
	maxWords int
}

// Compile precomputes phonetic codes for the given terms. Blank entries are
// skipped. Order is preserved; on equal scores the earlier term wins.
func Compile(terms []string) *Vocabulary {
	v := &Vocabulary{}
	for _, raw := range terms {
		canonical := strings.TrimSpace(raw)
		lower := strings.ToLower(canonical)
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		v.terms = append(v.terms, term{
			canonical: canonical,
			lower:     strings.Join(tokens, " "),
			tokens:    tokens,
			concat:    strings.Join(tokens, ""),
			codes:     codesForTokens(tokens),
		})
		if len(tokens) > v.maxWords {
			v.maxWords = len(tokens)
		}
	}
	return v
}

// Len returns the number of usable terms.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.terms)
}

// MaxWords returns the token count of the longest term, which bounds the
// n-gram window the corrector scans with.
func (v *Vocabulary) MaxWords() int {
	if v == nil {
		return 0
	}
	return v.maxWords
}

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched term to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic candidate is found and the matcher falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher scores input phrases against a [Vocabulary]. All methods are safe
// for concurrent use; the Matcher is read-only after construction.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a new [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match finds the vocabulary term most similar to phrase.
//
// phrase may be a single word or a space-separated n-gram window. A term
// with more words than the phrase never matches: that would insert words
// the user did not say. When matched is false, corrected equals phrase
// unchanged and confidence is 0.
func (m *Matcher) Match(phrase string, vocab *Vocabulary) (corrected string, confidence float64, matched bool) {
	if vocab.Len() == 0 || strings.TrimSpace(phrase) == "" {
		return phrase, 0, false
	}

	phraseLower := strings.ToLower(strings.TrimSpace(phrase))
	phraseTokens := strings.Fields(phraseLower)
	phraseConcat := strings.Join(phraseTokens, "")
	inputCodes := codesForTokens(phraseTokens)

	type candidate struct {
		term     string
		score    float64
		phonetic bool
	}

	var best candidate

	for _, tm := range vocab.terms {
		score, ok := similarity(phraseTokens, phraseLower, phraseConcat, tm)
		if !ok {
			continue
		}

		if codesOverlap(inputCodes, tm.codes) {
			if score >= m.phoneticThreshold {
				if !best.phonetic || score > best.score {
					best = candidate{term: tm.canonical, score: score, phonetic: true}
				}
			}
		} else if !best.phonetic {
			if score >= m.fuzzyThreshold && score > best.score &&
				lengthRatio(phraseConcat, tm.concat) >= minFuzzyLengthRatio {
				best = candidate{term: tm.canonical, score: score, phonetic: false}
			}
		}
	}

	if best.term != "" {
		return best.term, best.score, true
	}
	return phrase, 0, false
}

// similarity scores a phrase against one term, or reports the pairing as
// ineligible.
//
// Equal word counts compare the full strings and the space-stripped strings,
// taking the better score. A phrase with more words than the term is the
// join case: the transcription split a compound, so the space-stripped
// phrase must start with the term's first letter and be within
// maxJoinLengthDiff runes of its length.
func similarity(phraseTokens []string, phraseLower, phraseConcat string, tm term) (float64, bool) {
	n, k := len(phraseTokens), len(tm.tokens)
	switch {
	case n < k:
		return 0, false
	case n == k:
		score := matchr.JaroWinkler(phraseLower, tm.lower, false)
		if n > 1 {
			if s := matchr.JaroWinkler(phraseConcat, tm.concat, false); s > score {
				score = s
			}
		}
		return score, true
	default: // n > k: join case
		if !firstRunesEqual(phraseConcat, tm.concat) {
			return 0, false
		}
		if diff := utf8.RuneCountInString(phraseConcat) - utf8.RuneCountInString(tm.concat); diff < -maxJoinLengthDiff || diff > maxJoinLengthDiff {
			return 0, false
		}
		return matchr.JaroWinkler(phraseConcat, tm.concat, false), true
	}
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes (short words, no consonants) are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// lengthRatio returns min/max of the two strings' rune counts.
func lengthRatio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0
	}
	if la > lb {
		la, lb = lb, la
	}
	return float64(la) / float64(lb)
}

func firstRunesEqual(a, b string) bool {
	ra, _ := utf8.DecodeRuneInString(a)
	rb, _ := utf8.DecodeRuneInString(b)
	return ra != utf8.RuneError && ra == rb
}
