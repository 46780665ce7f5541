package slack

import (
	"strings"
	"testing"
	"unicode/utf8"

	goslack "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCheckinBlocks(t *testing.T) {
	t.Run("known topic gets its emoji and a context line", func(t *testing.T) {
		blocks := BuildCheckinBlocks("research", "digest", "12 new items, 3 relevant")

		require.Len(t, blocks, 2)

		section, ok := blocks[0].(*goslack.SectionBlock)
		require.True(t, ok)
		assert.Contains(t, section.Text.Text, ":mag:")
		assert.Contains(t, section.Text.Text, "12 new items, 3 relevant")

		meta, ok := blocks[1].(*goslack.ContextBlock)
		require.True(t, ok)
		require.Len(t, meta.ContextElements.Elements, 1)
		text, ok := meta.ContextElements.Elements[0].(*goslack.TextBlockObject)
		require.True(t, ok)
		assert.Equal(t, "research · digest", text.Text)
	})

	t.Run("unknown topic falls back to the default emoji", func(t *testing.T) {
		blocks := BuildCheckinBlocks("experimental", "", "hello")
		section := blocks[0].(*goslack.SectionBlock)
		assert.Contains(t, section.Text.Text, ":robot_face:")
	})

	t.Run("empty action type keeps the context line short", func(t *testing.T) {
		blocks := BuildCheckinBlocks("ops", "", "inbox drained")
		require.Len(t, blocks, 2)
		meta := blocks[1].(*goslack.ContextBlock)
		text := meta.ContextElements.Elements[0].(*goslack.TextBlockObject)
		assert.Equal(t, "ops", text.Text)
	})
}

func TestTruncateForSlack(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		assert.Equal(t, "hello", truncateForSlack("hello"))
	})

	t.Run("exact limit unchanged", func(t *testing.T) {
		text := strings.Repeat("a", maxBlockTextLength)
		assert.Equal(t, text, truncateForSlack(text))
	})

	t.Run("over limit truncated", func(t *testing.T) {
		text := strings.Repeat("a", maxBlockTextLength+100)
		result := truncateForSlack(text)
		assert.True(t, len(result) < len(text))
		assert.Contains(t, result, "truncated")
	})

	t.Run("multi-byte runes not split", func(t *testing.T) {
		text := strings.Repeat("🔥", maxBlockTextLength+10)
		result := truncateForSlack(text)
		assert.Contains(t, result, "truncated")
		assert.True(t, utf8.ValidString(result))
		prefix := strings.Split(result, "\n\n_...")[0]
		assert.Equal(t, maxBlockTextLength, utf8.RuneCountInString(prefix))
	})
}
