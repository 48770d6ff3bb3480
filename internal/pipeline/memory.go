package pipeline

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"taskrelay/internal/logging"
	"taskrelay/internal/store"
)

// DocumentInserter is the semantic-store surface memory sync needs.
type DocumentInserter interface {
	InsertDocument(ctx context.Context, collection, title, description string, metadata map[string]interface{}) error
}

// Memory archives question/answer pairs into the semantic store so future
// retrieval can surface them. Best-effort.
type Memory struct {
	inserter DocumentInserter
}

// NewMemory creates a conversation memory sync.
func NewMemory(inserter DocumentInserter) *Memory {
	return &Memory{inserter: inserter}
}

// SyncConversation inserts one conversation record combining question and
// answer. Failures are logged and returned; callers never escalate them.
func (m *Memory) SyncConversation(ctx context.Context, question, answer, ownerItemID, sender string) error {
	title := "Conversation: " + truncateRunes(question, 60)
	description := fmt.Sprintf("Q: %s\n\nA: %s", question, answer)

	err := m.inserter.InsertDocument(ctx, store.CollectionTasks, title, description, map[string]interface{}{
		"type":         "conversation",
		"source":       "channel conversation",
		"related_item": ownerItemID,
		"created_by":   sender,
		"created_at":   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		logging.MemoryWarn("Conversation sync failed for item %s: %v", ownerItemID, err)
		return err
	}
	logging.Memory("Conversation archived for item %s", ownerItemID)
	return nil
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
