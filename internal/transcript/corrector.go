// Package transcript post-processes transcription results before they are
// typed. Transcription services routinely mangle project names and technical
// jargon ("cube CTL", "promeethius"); the corrector restores the spellings
// the user put in their configured vocabulary.
package transcript

import (
	"log/slog"
	"strings"
	"sync"
	"unicode"

	"github.com/voiceinput/voiceinput/internal/transcript/phonetic"
)

// Correction records one vocabulary substitution.
type Correction struct {
	// Original is the phrase as transcribed.
	Original string

	// Corrected is the vocabulary term that replaced it.
	Corrected string

	// Confidence is the similarity score that justified the swap, in (0, 1].
	Confidence float64
}

// Corrector rewrites transcripts so configured vocabulary terms appear with
// their canonical spelling. Safe for concurrent use; [Corrector.SetTerms]
// swaps the vocabulary on config reload while corrections in flight finish
// against the old one.
type Corrector struct {
	matcher *phonetic.Matcher

	mu    sync.RWMutex
	vocab *phonetic.Vocabulary
}

// NewCorrector compiles terms into a ready corrector. opts are passed
// through to the phonetic matcher.
func NewCorrector(terms []string, opts ...phonetic.Option) *Corrector {
	return &Corrector{
		matcher: phonetic.New(opts...),
		vocab:   phonetic.Compile(terms),
	}
}

// SetTerms recompiles the vocabulary.
func (c *Corrector) SetTerms(terms []string) {
	vocab := phonetic.Compile(terms)
	c.mu.Lock()
	c.vocab = vocab
	c.mu.Unlock()
	slog.Info("vocabulary updated", "terms", vocab.Len())
}

// Correct scans text with n-gram windows up to the longest term's word
// count, longest window first so multi-word terms beat their fragments.
// Surrounding punctuation survives a substitution ("kubernetes," becomes
// "Kubernetes,"), and a term that is already spelled canonically is left
// alone. Returns the corrected text and the substitutions applied, in
// order.
func (c *Corrector) Correct(text string) (string, []Correction) {
	c.mu.RLock()
	vocab := c.vocab
	c.mu.RUnlock()

	if vocab.Len() == 0 {
		return text, nil
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	// Matching runs on the punctuation-stripped core of each token; the
	// stripped lead/trail is reattached around whatever gets emitted.
	cores := make([]string, len(tokens))
	for i, tok := range tokens {
		_, cores[i], _ = splitPunct(tok)
	}

	var (
		output      []string
		corrections []Correction
	)

	// Windows scan up to the longest term's word count, but never below two
	// words so a split compound ("wire guard") can collapse onto its
	// single-word term.
	windowCap := vocab.MaxWords()
	if windowCap < 2 {
		windowCap = 2
	}

	i := 0
	for i < len(tokens) {
		maxN := windowCap
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.TrimSpace(strings.Join(cores[i:i+n], " "))
			if window == "" {
				continue
			}
			term, conf, ok := c.matcher.Match(window, vocab)
			if !ok {
				continue
			}

			if term == window {
				// Already canonical: consume the window unchanged.
				output = append(output, tokens[i:i+n]...)
			} else {
				emit := strings.Fields(term)
				lead, _, _ := splitPunct(tokens[i])
				_, _, trail := splitPunct(tokens[i+n-1])
				emit[0] = lead + emit[0]
				emit[len(emit)-1] += trail
				output = append(output, emit...)
				corrections = append(corrections, Correction{
					Original:   window,
					Corrected:  term,
					Confidence: conf,
				})
			}
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return strings.Join(output, " "), corrections
}

// splitPunct splits a token into leading punctuation, core, and trailing
// punctuation. Interior punctuation (apostrophes, hyphens) stays in the
// core.
func splitPunct(tok string) (lead, core, trail string) {
	runes := []rune(tok)
	start := 0
	for start < len(runes) && isPunct(runes[start]) {
		start++
	}
	end := len(runes)
	for end > start && isPunct(runes[end-1]) {
		end--
	}
	return string(runes[:start]), string(runes[start:end]), string(runes[end:])
}

func isPunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}
