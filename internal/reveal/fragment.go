package reveal

import (
	"unicode"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	"github.com/fumbl3b/harryAi/internal/models"
)

// DefaultTargetSize is the chunk size, in runes, used when none is given.
const DefaultTargetSize = 120

var sentenceBoundary = regexp2.MustCompile(`(?<=[.!?])\s+`, regexp2.None)

// Fragment splits text into chunks of roughly target runes, preferring
// sentence boundaries and falling back to word boundaries for long
// sentences. Each chunk keeps its trailing whitespace, so concatenating the
// chunks yields text exactly. Empty text yields a single "No response" chunk.
func Fragment(text string, target int) []string {
	if text == "" {
		return []string{models.NoResponse}
	}
	if target <= 0 {
		target = DefaultTargetSize
	}

	var units []string
	for _, sentence := range splitSentences(text) {
		if utf8.RuneCountInString(sentence) <= target {
			units = append(units, sentence)
			continue
		}
		units = append(units, splitWords(sentence)...)
	}
	return group(units, target)
}

// splitSentences cuts text after each sentence terminator and its trailing
// whitespace. Pieces are byte slices of text, so bytes that are not valid
// UTF-8 pass through untouched.
func splitSentences(text string) []string {
	// regexp2 reports rune positions; offsets maps them back to bytes.
	offsets := runeOffsets(text)
	var out []string
	start := 0
	m, err := sentenceBoundary.FindStringMatch(text)
	for err == nil && m != nil {
		end := offsets[m.Index+m.Length]
		out = append(out, text[start:end])
		start = end
		m, err = sentenceBoundary.FindNextMatch(m)
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// runeOffsets returns the byte offset of every rune in s plus len(s). An
// invalid byte counts as one rune, the same way a []rune conversion does.
func runeOffsets(s string) []int {
	offsets := make([]int, 0, len(s)+1)
	for i := range s {
		offsets = append(offsets, i)
	}
	return append(offsets, len(s))
}

// splitWords cuts s after each run of whitespace. Leading whitespace stays
// with the first word.
func splitWords(s string) []string {
	var out []string
	start, i := 0, skip(s, 0, true)
	for i < len(s) {
		i = skip(s, i, false)
		i = skip(s, i, true)
		out = append(out, s[start:i])
		start = i
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// skip advances from i over runes whose whitespace-ness equals space.
func skip(s string, i int, space bool) int {
	for i < len(s) {
		r, w := utf8.DecodeRuneInString(s[i:])
		if unicode.IsSpace(r) != space {
			break
		}
		i += w
	}
	return i
}

func group(units []string, target int) []string {
	var chunks []string
	cur, curLen := "", 0
	for _, u := range units {
		n := utf8.RuneCountInString(u)
		if curLen > 0 && curLen+n > target {
			chunks = append(chunks, cur)
			cur, curLen = "", 0
		}
		cur += u
		curLen += n
	}
	if curLen > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}
