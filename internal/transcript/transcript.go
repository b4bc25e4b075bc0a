// Package transcript post-processes raw speech-to-text output before it is
// handed to reply generation.
//
// STT output is rarely perfect for domain-specific vocabulary — product
// names, proper nouns, and technical terms are frequently misheard. The
// [Corrector] aligns transcript tokens against a configured vocabulary using
// pronunciation similarity, substituting the canonical spelling when a term
// was plausibly misrecognised. Correction runs in-process with no network
// calls, so it adds negligible latency to the pipeline.
//
// Each [Correction] records the substitution and its confidence, so callers
// can audit or log what changed.
//
// Implementations must be safe for concurrent use.
package transcript

import "strings"

// Correction captures a single substitution made by a corrector.
type Correction struct {
	// Original is the text as produced by the STT provider.
	Original string

	// Corrected is the vocabulary term that replaced it.
	Corrected string

	// Confidence is the similarity score behind this substitution (0.0–1.0).
	Confidence float64
}

// Result pairs the corrected text with an itemised record of every
// substitution applied. When nothing matched, Text equals the input and
// Corrections is empty.
type Result struct {
	Text        string
	Corrections []Correction
}

// Corrector rewrites misheard vocabulary terms in a transcript.
type Corrector interface {
	// Correct returns the transcript with vocabulary substitutions applied.
	Correct(text string) Result
}

// Matcher resolves a word or phrase to a known vocabulary term based on
// pronunciation similarity. When matched is false, corrected must equal the
// input unchanged and confidence must be 0.
type Matcher interface {
	Match(word string, terms []string) (corrected string, confidence float64, matched bool)
}

// VocabularyCorrector implements [Corrector] by sliding n-gram windows over
// the transcript and testing each window against the vocabulary with a
// [Matcher]. Longer windows are tried first so multi-word terms take
// precedence over partial single-word matches.
//
// VocabularyCorrector is read-only after construction and safe for
// concurrent use.
type VocabularyCorrector struct {
	matcher  Matcher
	terms    []string
	maxWords int
}

var _ Corrector = (*VocabularyCorrector)(nil)

// NewVocabularyCorrector builds a corrector over the given vocabulary terms.
// An empty vocabulary produces a corrector that passes text through
// unchanged.
func NewVocabularyCorrector(m Matcher, terms []string) *VocabularyCorrector {
	return &VocabularyCorrector{
		matcher:  m,
		terms:    terms,
		maxWords: maxWordCount(terms),
	}
}

// Correct implements [Corrector].
func (c *VocabularyCorrector) Correct(text string) Result {
	tokens := strings.Fields(text)
	if len(tokens) == 0 || c.maxWords == 0 || c.matcher == nil {
		return Result{Text: text}
	}

	var output []string
	var corrections []Correction

	i := 0
	for i < len(tokens) {
		maxN := c.maxWords
		if i+maxN > len(tokens) {
			maxN = len(tokens) - i
		}

		matched := false
		for n := maxN; n >= 1; n-- {
			window := strings.Join(tokens[i:i+n], " ")
			term, conf, ok := c.matcher.Match(window, c.terms)
			if !ok {
				continue
			}

			output = append(output, strings.Fields(term)...)
			corrections = append(corrections, Correction{
				Original:   window,
				Corrected:  term,
				Confidence: conf,
			})
			i += n
			matched = true
			break
		}

		if !matched {
			output = append(output, tokens[i])
			i++
		}
	}

	return Result{
		Text:        strings.Join(output, " "),
		Corrections: corrections,
	}
}

// maxWordCount returns the word count of the longest term.
func maxWordCount(terms []string) int {
	max := 0
	for _, t := range terms {
		if n := len(strings.Fields(t)); n > max {
			max = n
		}
	}
	return max
}
