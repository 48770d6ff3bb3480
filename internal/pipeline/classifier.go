package pipeline

import "strings"

// Classifier extracts a "should create task" signal from the AI's free
// text. The signal is advisory: every processed message creates a task
// regardless, and the flag is stored for a future gate.
type Classifier interface {
	ShouldCreateTask(response string) bool
}

// KeywordClassifier is the default heuristic: a case-insensitive scan for
// task-intent phrases.
type KeywordClassifier struct{}

var taskKeywords = []string{
	"create a task",
	"new task",
	"task should be created",
	"action item",
	"follow up",
	"follow-up",
	"needs to be fixed",
}

// ShouldCreateTask reports whether the response contains a task-intent
// phrase.
func (KeywordClassifier) ShouldCreateTask(response string) bool {
	lower := strings.ToLower(response)
	for _, kw := range taskKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
