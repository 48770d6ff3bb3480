package pipeline

import (
	"fmt"
	"strings"
)

// systemPrompt frames the single AI invocation per message.
const systemPrompt = `You are an assistant embedded in a task management system. ` +
	`You receive one chat message from a monitored channel, optionally preceded by similar prior work items. ` +
	`Reply with a short, practical answer suitable for posting back into the channel. ` +
	`If the message describes actionable work, say that a task should be created.`

// BuildPrompt assembles the user prompt: a labeled context block when
// retrieval produced anything, then the message text.
func BuildPrompt(contextItems []ContextItem, messageText string) string {
	if len(contextItems) == 0 {
		return messageText
	}

	var b strings.Builder
	b.WriteString("Related prior work:\n")
	for i, item := range contextItems {
		fmt.Fprintf(&b, "similar item %d: %s — %s\n", i+1, item.Title, item.Description)
	}
	b.WriteString("\nMessage:\n")
	b.WriteString(messageText)
	return b.String()
}
