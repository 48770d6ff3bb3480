package pipeline

import (
	"context"
	"strings"

	"taskrelay/internal/logging"
	"taskrelay/internal/platform"
	"taskrelay/internal/store"
)

// legacyBotDisplayName is the historical display name the relay posted
// under before the service account carried a configured identity. Kept as
// a last-resort self-message signal.
const legacyBotDisplayName = "Task Relay"

// Filter signal names, returned for diagnosability of bot-loop regressions.
const (
	SignalObjectID    = "objectId"
	SignalPrincipal   = "principalName"
	SignalDisplayName = "displayName"
	SignalDuplicate   = "duplicate"
)

// TaskFinder is the store lookup the filter needs.
type TaskFinder interface {
	FindTaskByExternalMessageID(ctx context.Context, externalID string) (*store.Task, error)
}

// Filter decides whether an inbound message is the relay's own echo or has
// already produced a task.
type Filter struct {
	tasks TaskFinder
}

// NewFilter creates a message filter backed by the given task store.
func NewFilter(tasks TaskFinder) *Filter {
	return &Filter{tasks: tasks}
}

// IsSelfOrDuplicate evaluates the self/duplicate signals in strict order,
// first match wins. It returns the name of the matched signal, or an empty
// string when the message is new and eligible for processing.
func (f *Filter) IsSelfOrDuplicate(ctx context.Context, msg platform.Message, bot platform.BotIdentity) (bool, string) {
	if bot.ObjectID != "" && msg.SenderID != "" && strings.EqualFold(bot.ObjectID, msg.SenderID) {
		logging.Filter("Message %s dropped: sender object id matches bot", msg.ExternalID)
		return true, SignalObjectID
	}

	botPrincipal := strings.TrimSpace(bot.PrincipalName)
	msgPrincipal := strings.TrimSpace(msg.SenderPrincipalName)
	if botPrincipal != "" && msgPrincipal != "" && strings.EqualFold(botPrincipal, msgPrincipal) {
		logging.Filter("Message %s dropped: sender principal matches bot", msg.ExternalID)
		return true, SignalPrincipal
	}

	if msg.SenderDisplayName != "" &&
		(msg.SenderDisplayName == legacyBotDisplayName || msg.SenderDisplayName == bot.DisplayName) {
		logging.Filter("Message %s dropped: sender display name matches bot", msg.ExternalID)
		return true, SignalDisplayName
	}

	task, err := f.tasks.FindTaskByExternalMessageID(ctx, msg.ExternalID)
	if err != nil {
		// Treat a lookup failure as "new": the unique constraint on task
		// creation still prevents a double insert.
		logging.FilterDebug("Duplicate lookup failed for message %s, treating as new: %v", msg.ExternalID, err)
		return false, ""
	}
	if task != nil {
		logging.FilterDebug("Message %s skipped: task %s already exists", msg.ExternalID, task.ID)
		return true, SignalDuplicate
	}

	return false, ""
}
