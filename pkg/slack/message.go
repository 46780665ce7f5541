package slack

import (
	"fmt"

	goslack "github.com/slack-go/slack"
)

const maxBlockTextLength = 2900

// topicEmoji gives each agent's check-ins a stable visual marker in the
// operator channel.
var topicEmoji = map[string]string{
	"research":    ":mag:",
	"growth":      ":chart_with_upwards_trend:",
	"schedule":    ":calendar:",
	"ops":         ":wrench:",
	"kill_switch": ":octagonal_sign:",
	"budget":      ":moneybag:",
	"system":      ":gear:",
}

// BuildCheckinBlocks renders one operator check-in: a markdown section with
// the message text and a context line naming the topic and action.
func BuildCheckinBlocks(topic, actionType, text string) []goslack.Block {
	emoji := topicEmoji[topic]
	if emoji == "" {
		emoji = ":robot_face:"
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, emoji+" "+truncateForSlack(text), false, false),
			nil, nil,
		),
	}

	meta := topic
	if actionType != "" {
		meta = fmt.Sprintf("%s · %s", topic, actionType)
	}
	if meta != "" {
		blocks = append(blocks, goslack.NewContextBlock("",
			goslack.NewTextBlockObject(goslack.MarkdownType, meta, false, false)))
	}
	return blocks
}

// truncateForSlack caps text at the Block Kit section limit. Slack counts
// characters, not bytes, so the cut is rune-based.
func truncateForSlack(text string) string {
	runes := []rune(text)
	if len(runes) <= maxBlockTextLength {
		return text
	}
	return string(runes[:maxBlockTextLength]) + "\n\n_... (truncated)_"
}
