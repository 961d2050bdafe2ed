package index

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_SingleChunk(t *testing.T) {
	text := "Acme Corp manufactures industrial widgets for the aerospace sector."

	chunks := NewSplitter(0, 0).Split(text, "https://acme.com")

	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
	assert.Equal(t, "https://acme.com", chunks[0].SourceURL)
	assert.Equal(t, 0, chunks[0].Seq)
	assert.NotEmpty(t, chunks[0].ID)
	assert.Nil(t, chunks[0].Vector)
}

func TestSplit_DropsShortFragments(t *testing.T) {
	chunks := NewSplitter(0, 0).Split("tiny", "https://acme.com")
	assert.Empty(t, chunks)

	chunks = NewSplitter(0, 0).Split("   \n\n  ", "https://acme.com")
	assert.Empty(t, chunks)
}

func TestSplit_ParagraphBoundariesWithOverlap(t *testing.T) {
	para1 := strings.TrimSpace(strings.Repeat("alpha bravo charlie delta echo. ", 40))
	para2 := strings.TrimSpace(strings.Repeat("foxtrot golf hotel india juliet. ", 40))
	text := para1 + "\n\n" + para2

	chunks := NewSplitter(2000, 200).Split(text, "https://acme.com")

	require.Len(t, chunks, 2)
	assert.Equal(t, para1, chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Seq)
	assert.Equal(t, 1, chunks[1].Seq)

	// The second chunk repeats the tail of the first.
	overlap := para1[len(para1)-200:]
	assert.Equal(t, overlap+"\n"+para2, chunks[1].Text)
	assert.LessOrEqual(t, len(chunks[1].Text), 2000)
}

func TestSplit_PacksSmallParagraphs(t *testing.T) {
	text := "First paragraph about the company history and its founding story.\n\n" +
		"Second paragraph describing the current product line in detail."

	chunks := NewSplitter(2000, 200).Split(text, "https://acme.com")

	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, "First paragraph")
	assert.Contains(t, chunks[0].Text, "Second paragraph")
	assert.Contains(t, chunks[0].Text, "\n\n")
}

func TestSplit_LongParagraphFallsBackToSentences(t *testing.T) {
	sentence := "The quick brown fox jumps over the lazy dog near the river bank today."
	para := strings.TrimSpace(strings.Repeat(sentence+" ", 60))

	chunks := NewSplitter(2000, 200).Split(para, "https://acme.com")

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 2000)
		// No sentence was cut mid-word.
		assert.True(t, strings.HasSuffix(c.Text, "today."))
	}
}

func TestSplit_OversizedSentenceHardCut(t *testing.T) {
	blob := strings.Repeat("x", 4000)

	chunks := NewSplitter(2000, 200).Split(blob, "https://acme.com")

	require.Greater(t, len(chunks), 1)
	total := 0
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 2000)
		total += len(c.Text)
	}
	// Overlap duplicates some bytes, so the sum exceeds the input.
	assert.GreaterOrEqual(t, total, 4000)
}

func TestSplit_SeqMonotonicUniqueIDs(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("Detailed company fact number one. ", 200))

	chunks := NewSplitter(500, 50).Split(text, "https://acme.com")

	require.Greater(t, len(chunks), 2)
	seen := map[string]bool{}
	for i, c := range chunks {
		assert.Equal(t, i, c.Seq)
		assert.False(t, seen[c.ID])
		seen[c.ID] = true
	}
}

func TestNewSplitter_Clamps(t *testing.T) {
	s := NewSplitter(0, -1)
	assert.Equal(t, DefaultChunkSize, s.size)
	assert.Equal(t, DefaultOverlap, s.overlap)

	s = NewSplitter(100, 500)
	assert.Equal(t, 10, s.overlap)
}
