// Package chunker implements the paragraph-greedy chunk builder. The
// chunking contract determines chunk granularity, and matching
// correctness downstream depends on the size invariants it enforces:
// every chunk's character count stays under maxCharacters, chunks never
// overlap, and chunk indices are dense.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultMaxCharacters is the hard upper bound on a packed chunk's size.
const DefaultMaxCharacters = 2000

// DefaultMinCharacters is the soft lower bound paragraphs are merged up to.
const DefaultMinCharacters = 120

// ParagraphInput is one paragraph as produced by the (external) paragraph
// extractor: text, the page it came from, and its original ordinal.
type ParagraphInput struct {
	Text       string
	PageNumber int
	Index      int
}

// Chunk is a packed unit of text ready for embedding.
type Chunk struct {
	Text           string
	PageNumber     int
	ChunkIndex     int
	CharacterCount int
}

// Options tunes the chunk size budget.
type Options struct {
	MaxCharacters int
	MinCharacters int
}

func (o Options) withDefaults() Options {
	if o.MaxCharacters <= 0 {
		o.MaxCharacters = DefaultMaxCharacters
	}
	if o.MinCharacters <= 0 {
		o.MinCharacters = DefaultMinCharacters
	}
	return o
}

// paragraph is the internal working unit that carries a page number
// through every transformation step.
type paragraph struct {
	text string
	page int
}

// Build runs the nine-step chunking pipeline over paragraphs in order
// and packs the result into Chunks.
func Build(paragraphs []ParagraphInput, opts Options) ([]Chunk, error) {
	if len(paragraphs) == 0 {
		return nil, fmt.Errorf("chunker.Build: no paragraphs")
	}
	opts = opts.withDefaults()

	ps := make([]paragraph, len(paragraphs))
	for i, p := range paragraphs {
		ps[i] = paragraph{text: p.Text, page: p.PageNumber}
	}

	ps = dropFootnotes(ps)
	ps = mergeFormOptions(ps, opts.MaxCharacters)
	ps = dropNoise(ps)
	ps = stripPrefixes(ps)
	ps = dropEmpties(ps)
	ps = mergeIncomplete(ps, opts.MaxCharacters)
	ps = mergeTiny(ps, opts.MinCharacters, opts.MaxCharacters)
	ps = splitOversized(ps, opts.MaxCharacters)

	if len(ps) == 0 {
		return nil, fmt.Errorf("chunker.Build: no content survived filtering")
	}

	return pack(ps, opts.MaxCharacters), nil
}

// Step 1: drop footnotes — text starting with a digit/superscript
// marker immediately followed by a known legal-preamble phrase.

var footnoteMarker = regexp.MustCompile(`^[0-9\x{00B9}\x{00B2}\x{00B3}\x{2070}-\x{2079}]+\s*`)

var footnotePreambles = []string{
	"see ",
	"capitalized terms",
	"as used herein",
	"as defined",
	"for purposes of",
	"pursuant to section",
	"incorporated by reference",
}

func dropFootnotes(ps []paragraph) []paragraph {
	out := make([]paragraph, 0, len(ps))
	for _, p := range ps {
		trimmed := strings.TrimSpace(p.text)
		if loc := footnoteMarker.FindStringIndex(trimmed); loc != nil {
			rest := strings.ToLower(strings.TrimSpace(trimmed[loc[1]:]))
			footnote := false
			for _, phrase := range footnotePreambles {
				if strings.HasPrefix(rest, phrase) {
					footnote = true
					break
				}
			}
			if footnote {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

// Step 2: merge short standalone form-option answers into the nearest
// preceding substantive paragraph, skipping over noise paragraphs when
// looking for that target, but only if the merge stays under budget.

func isFormOption(text string) bool {
	t := strings.Trim(strings.TrimSpace(text), ".:")
	switch strings.ToLower(t) {
	case "yes", "no", "n/a", "na", "y", "n", "☐", "□", "x":
		return true
	}
	return false
}

func mergeFormOptions(ps []paragraph, maxChars int) []paragraph {
	out := make([]paragraph, 0, len(ps))
	for _, p := range ps {
		if isFormOption(p.text) {
			target := -1
			for i := len(out) - 1; i >= 0; i-- {
				if isNoiseParagraph(out[i].text) {
					continue
				}
				target = i
				break
			}
			if target >= 0 {
				merged := strings.TrimSpace(out[target].text) + " " + strings.TrimSpace(p.text)
				if len(merged) < maxChars {
					out[target].text = merged
					continue
				}
			}
		}
		out = append(out, p)
	}
	return out
}

// Step 3: drop noise paragraphs — anything under 10 characters after
// trimming, which covers standalone enumerators, single letters/digits,
// bare percent signs and short page numbers. Page-number lines and
// underscore runs of 10 or more characters are not treated as noise
// and are kept.

func isNoiseParagraph(text string) bool {
	return len(strings.TrimSpace(text)) < 10
}

func dropNoise(ps []paragraph) []paragraph {
	out := make([]paragraph, 0, len(ps))
	for _, p := range ps {
		if isNoiseParagraph(p.text) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Step 4: strip structural prefixes in place. Order matters: more
// specific patterns run first so "2.2 Text" collapses to "Text", not
// "2 Text", and statutory references like "Section 2510.3-101" are
// left untouched because they never match a leading-bare-number rule.

var prefixPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d+\.\d+\s+`),               // number.number
	regexp.MustCompile(`^\d+\.[A-Za-z]\s+`),           // number.letter
	regexp.MustCompile(`^[A-Z]\.\s+`),                 // LETTER.
	regexp.MustCompile(`^\d+\.\s+`),                   // number.
	regexp.MustCompile(`^\d+\s+`),                     // number (space)
	regexp.MustCompile(`^\d+\r?\n`),                   // bare number\n
	regexp.MustCompile(`^[A-Z]\r?\n`),                 // bare LETTER\n
	regexp.MustCompile(`^\([ivxlcdmIVXLCDM]+\)\s*`),   // (roman)
	regexp.MustCompile(`^\([A-Za-z]\)\s*`),            // (letter)
}

func stripPrefixes(ps []paragraph) []paragraph {
	out := make([]paragraph, len(ps))
	for i, p := range ps {
		out[i] = paragraph{text: stripOnePrefix(p.text), page: p.page}
	}
	return out
}

func stripOnePrefix(text string) string {
	for _, re := range prefixPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			return text[loc[1]:]
		}
	}
	return text
}

// Step 5: drop empties created by stripping.

func dropEmpties(ps []paragraph) []paragraph {
	out := make([]paragraph, 0, len(ps))
	for _, p := range ps {
		if strings.TrimSpace(p.text) == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Step 6: merge incomplete paragraphs forward into the next one when
// they don't end in terminal punctuation, end with a stop-word, or the
// next paragraph starts lowercase — only while the merge stays in budget.

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true, "for": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"that": true, "which": true, "who": true,
}

func endsWithStopword(text string) bool {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return false
	}
	last := strings.Trim(fields[len(fields)-1], ".,;:!?")
	return stopWords[last]
}

func startsLowercase(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	r := rune(t[0])
	return r >= 'a' && r <= 'z'
}

func needsMerge(cur, next string) bool {
	t := strings.TrimRight(strings.TrimSpace(cur), `"')]’”`)
	if t == "" {
		return false
	}
	last := t[len(t)-1]
	if last != '.' && last != '!' && last != '?' {
		return true
	}
	if endsWithStopword(cur) {
		return true
	}
	return startsLowercase(next)
}

func mergeIncomplete(ps []paragraph, maxChars int) []paragraph {
	if len(ps) == 0 {
		return ps
	}
	out := make([]paragraph, 0, len(ps))
	i := 0
	for i < len(ps) {
		cur := ps[i]
		for i+1 < len(ps) && needsMerge(cur.text, ps[i+1].text) {
			merged := cur.text + " " + ps[i+1].text
			if len(merged) > maxChars {
				break
			}
			cur = paragraph{text: merged, page: cur.page}
			i++
		}
		out = append(out, cur)
		i++
	}
	return out
}

// Step 7: merge tiny paragraphs (< minCharacters) with neighbours,
// under the same size ceiling.

func mergeTiny(ps []paragraph, minChars, maxChars int) []paragraph {
	if len(ps) == 0 {
		return ps
	}
	out := make([]paragraph, 0, len(ps))
	i := 0
	for i < len(ps) {
		cur := ps[i]
		for len(strings.TrimSpace(cur.text)) < minChars && i+1 < len(ps) {
			merged := cur.text + " " + ps[i+1].text
			if len(merged) > maxChars {
				break
			}
			cur = paragraph{text: merged, page: cur.page}
			i++
		}
		if len(strings.TrimSpace(cur.text)) < minChars && len(out) > 0 {
			merged := out[len(out)-1].text + " " + cur.text
			if len(merged) <= maxChars {
				out[len(out)-1].text = merged
				i++
				continue
			}
		}
		out = append(out, cur)
		i++
	}
	return out
}

// Step 8: split oversized paragraphs at sentence boundaries so none
// exceeds maxCharacters.

func splitOversized(ps []paragraph, maxChars int) []paragraph {
	out := make([]paragraph, 0, len(ps))
	for _, p := range ps {
		if len(p.text) <= maxChars {
			out = append(out, p)
			continue
		}
		for _, sub := range splitLargeParagraph(p.text, maxChars) {
			out = append(out, paragraph{text: sub, page: p.page})
		}
	}
	return out
}

func splitLargeParagraph(text string, maxChars int) []string {
	sentences := splitSentences(text)
	var chunks []string
	var current strings.Builder

	for _, sent := range sentences {
		if current.Len() > 0 && current.Len()+1+len(sent) > maxChars {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	if len(chunks) == 0 || hasOversized(chunks, maxChars) {
		return splitByWords(text, maxChars)
	}
	return chunks
}

func hasOversized(parts []string, maxChars int) bool {
	for _, p := range parts {
		if len(p) > maxChars {
			return true
		}
	}
	return false
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && text[i+1] == ' ' {
			sentences = append(sentences, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if current.Len() > 0 {
		sentences = append(sentences, strings.TrimSpace(current.String()))
	}
	return sentences
}

func splitByWords(text string, maxChars int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	var current []string
	curLen := 0
	for _, w := range words {
		addLen := len(w)
		if curLen > 0 {
			addLen++
		}
		if curLen > 0 && curLen+addLen > maxChars {
			chunks = append(chunks, strings.Join(current, " "))
			current = nil
			curLen = 0
			addLen = len(w)
		}
		current = append(current, w)
		curLen += addLen
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

// Step 9: greedy-pack paragraphs into chunks. Always place at least
// one paragraph; add more while the running total plus the next
// paragraph (plus its joining space) stays within budget; otherwise
// seal the chunk and start a new one. Zero overlap by construction.

func pack(ps []paragraph, maxChars int) []Chunk {
	var chunks []Chunk
	var current []paragraph
	curLen := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		text := joinParagraphs(current)
		chunks = append(chunks, Chunk{
			Text:           text,
			PageNumber:     current[0].page,
			ChunkIndex:     len(chunks),
			CharacterCount: len(text),
		})
		current = nil
		curLen = 0
	}

	for _, p := range ps {
		if len(current) == 0 {
			current = append(current, p)
			curLen = len(p.text)
			continue
		}
		if curLen+1+len(p.text) > maxChars {
			flush()
			current = append(current, p)
			curLen = len(p.text)
			continue
		}
		current = append(current, p)
		curLen += 1 + len(p.text)
	}
	flush()

	return chunks
}

func joinParagraphs(ps []paragraph) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.text
	}
	return strings.Join(parts, " ")
}
