package reveal

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/fumbl3b/harryAi/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fragmentInputs = []string{
	"Hi.",
	"One sentence without a stop",
	"First. Second! Third? Fourth.",
	"  leading space. and\ttabs.\n\nNew paragraph here.   ",
	"Ünïcödé sentences — with dashes. Ещё одно предложение! 日本語の文。終わり.",
	strings.Repeat("word ", 200),
	strings.Repeat("Short one. ", 40) + strings.Repeat("x", 500),
	"   ",
	"a.b.c no spaces after dots",
	strings.Repeat("caf\xe9 is good. ", 12),
	"\xff\xfe broken. bytes!\xc3 trailing \xe2\x82",
}

func TestFragment_ReproducesInput(t *testing.T) {
	for _, target := range []int{1, 5, 20, 120, 1000} {
		for _, in := range fragmentInputs {
			chunks := Fragment(in, target)
			require.NotEmpty(t, chunks)
			assert.Equal(t, in, strings.Join(chunks, ""), "target=%d", target)
			for _, c := range chunks {
				assert.NotEmpty(t, c, "target=%d input=%q", target, in)
			}
		}
	}
}

func TestFragment_Empty(t *testing.T) {
	assert.Equal(t, []string{models.NoResponse}, Fragment("", 10))
}

func TestFragment_SentenceBoundaries(t *testing.T) {
	chunks := Fragment("First. Second! Third?", 8)
	assert.Equal(t, []string{"First. ", "Second! ", "Third?"}, chunks)
}

func TestFragment_GroupsShortSentences(t *testing.T) {
	chunks := Fragment("A. B. C. D.", 6)
	assert.Equal(t, []string{"A. B. ", "C. D."}, chunks)
}

func TestFragment_FallsBackToWords(t *testing.T) {
	long := "this sentence is far longer than the target size allows"
	chunks := Fragment(long, 12)

	require.Greater(t, len(chunks), 1)
	assert.Equal(t, long, strings.Join(chunks, ""))
	for _, c := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(c, " "), "chunk %q should end on a word boundary", c)
	}
}

func TestFragment_ChunkSizeNearTarget(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor ", 50)
	for _, c := range Fragment(text, 40) {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 40)
	}
}

func TestFragment_DefaultTarget(t *testing.T) {
	text := strings.Repeat("word ", 100)
	assert.Equal(t, Fragment(text, DefaultTargetSize), Fragment(text, 0))
}

func TestFragment_InvalidUTF8PassesThrough(t *testing.T) {
	in := "caf\xe9 au lait. Cr\xe8me br\xfbl\xe9e, s'il vous pla\xeet! " + strings.Repeat("\xff", 30)
	require.False(t, utf8.ValidString(in))

	for _, target := range []int{1, 4, 16, 200} {
		chunks := Fragment(in, target)
		assert.Equal(t, in, strings.Join(chunks, ""), "target=%d", target)
	}
	assert.Equal(t, []string{"caf\xe9 au lait. ", "Cr\xe8me br\xfbl\xe9e, s'il vous pla\xeet! ", strings.Repeat("\xff", 30)},
		splitSentences(in))
	assert.Equal(t, []string{"caf\xe9 ", "au ", "lait."}, splitWords("caf\xe9 au lait."))
}

func TestRuneOffsets(t *testing.T) {
	assert.Equal(t, []int{0}, runeOffsets(""))
	assert.Equal(t, []int{0, 1, 3, 4}, runeOffsets("a\u00e9b"))
	assert.Equal(t, []int{0, 1, 2}, runeOffsets("\xe9!"), "an invalid byte is one rune")
	assert.Len(t, runeOffsets("\xff\xfe\xfd"), utf8.RuneCountInString("\xff\xfe\xfd")+1)
}
