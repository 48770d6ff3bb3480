package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"taskrelay/internal/ai"
	"taskrelay/internal/logging"
	"taskrelay/internal/platform"
	"taskrelay/internal/store"
)

const maxTitleLength = 80

// TaskCreator is the store surface the processor needs.
type TaskCreator interface {
	CreateTask(ctx context.Context, task *store.Task) (*store.Task, error)
	FindUserByPrincipalName(ctx context.Context, principalName string) (*store.User, error)
	CreateUser(ctx context.Context, user *store.User) (*store.User, error)
}

// Result is the outcome of processing one message.
type Result struct {
	Success       bool
	Duplicate     bool // task already existed, message skipped
	AIResponse    string
	CreatedTaskID string
	RAGUsed       bool
	AIRecommended bool
	Err           error
}

// Processor analyzes one surviving message: extract text, retrieve
// context, invoke the AI once, resolve the sending user and materialize
// the work item.
type Processor struct {
	retriever  *Retriever
	engine     ai.Client
	classifier Classifier
	tasks      TaskCreator
	maxResults int
}

// NewProcessor creates a message processor. maxResults bounds context
// retrieval per collection.
func NewProcessor(retriever *Retriever, engine ai.Client, classifier Classifier, tasks TaskCreator, maxResults int) *Processor {
	if classifier == nil {
		classifier = KeywordClassifier{}
	}
	return &Processor{retriever: retriever, engine: engine, classifier: classifier, tasks: tasks, maxResults: maxResults}
}

// Process runs the analysis for one message. ownerItemID is the item that
// owns the originating channel. AI failure or an empty body fails the
// message; a duplicate task is reported as Duplicate, not as an error.
func (p *Processor) Process(ctx context.Context, msg platform.Message, ownerItemID string) Result {
	text := ExtractText(msg.BodyHTML)
	if text == "" {
		return Result{Err: fmt.Errorf("message %s has an empty body", msg.ExternalID)}
	}

	contextItems := p.retriever.Search(ctx, text, p.maxResults)
	prompt := BuildPrompt(contextItems, text)

	logging.Processor("Analyzing message %s (context items: %d)", msg.ExternalID, len(contextItems))
	response, err := p.engine.CompleteWithSystem(ctx, systemPrompt, prompt)
	if err != nil {
		return Result{Err: fmt.Errorf("AI invocation failed for message %s: %w", msg.ExternalID, err)}
	}

	recommended := p.classifier.ShouldCreateTask(response)
	createdBy := p.resolveSender(ctx, msg)

	task, err := p.tasks.CreateTask(ctx, &store.Task{
		ExternalMessageID: msg.ExternalID,
		SourceItemID:      ownerItemID,
		Title:             deriveTitle(text),
		Description:       text,
		CreatedBy:         createdBy,
		AIGenerated:       true,
		AIRecommended:     recommended,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateTask) {
			logging.Processor("Message %s already has a task, skipping", msg.ExternalID)
			return Result{Duplicate: true}
		}
		return Result{Err: fmt.Errorf("failed to create task for message %s: %w", msg.ExternalID, err)}
	}

	logging.Processor("Task %s created for message %s (recommended=%t)", task.ID, msg.ExternalID, recommended)
	return Result{
		Success:       true,
		AIResponse:    response,
		CreatedTaskID: task.ID,
		RAGUsed:       len(contextItems) > 0,
		AIRecommended: recommended,
	}
}

// resolveSender finds or creates the sending user and returns the value
// recorded as the task's creator. User-store failures are logged only.
func (p *Processor) resolveSender(ctx context.Context, msg platform.Message) string {
	principal := strings.TrimSpace(msg.SenderPrincipalName)
	if principal == "" {
		// No principal even after enrichment; attribute by display name.
		return msg.SenderDisplayName
	}

	existing, err := p.tasks.FindUserByPrincipalName(ctx, principal)
	if err != nil {
		logging.ProcessorError("User lookup failed for %s: %v", principal, err)
		return principal
	}
	if existing != nil {
		return existing.PrincipalName
	}

	first, last := msg.GivenName, msg.Surname
	if first == "" && last == "" {
		first, last = splitDisplayName(msg.SenderDisplayName)
	}
	if _, err := p.tasks.CreateUser(ctx, &store.User{
		PrincipalName: principal,
		DisplayName:   msg.SenderDisplayName,
		FirstName:     first,
		LastName:      last,
		Mail:          msg.Mail,
		ExternalAuth:  true,
	}); err != nil {
		logging.ProcessorError("User creation failed for %s: %v", principal, err)
	}
	return principal
}

// splitDisplayName best-effort parses "First Last" style display names.
func splitDisplayName(displayName string) (first, last string) {
	fields := strings.Fields(displayName)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}

// deriveTitle shortens the message text into a task title.
func deriveTitle(text string) string {
	if utf8.RuneCountInString(text) <= maxTitleLength {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxTitleLength-3])) + "..."
}
