package pipeline

import (
	"context"
	"fmt"
	"html"

	"taskrelay/internal/logging"
	"taskrelay/internal/platform"
)

// MessagePoster is the platform surface the dispatcher needs.
type MessagePoster interface {
	PostChannelMessage(ctx context.Context, channelID, html string) (*platform.PostedMessage, error)
}

// Dispatcher posts AI answers back into the originating channel. Replies
// are best-effort: the task is already durable by the time a reply is
// attempted, so failures are logged and reported but never propagated.
type Dispatcher struct {
	poster      MessagePoster
	taskURLBase string
}

// NewDispatcher creates a response dispatcher. taskURLBase, when set, is
// used to render links to created tasks.
func NewDispatcher(poster MessagePoster, taskURLBase string) *Dispatcher {
	return &Dispatcher{poster: poster, taskURLBase: taskURLBase}
}

// PostResponse posts the answer, appending a task link when a task was
// created. It reports whether the reply landed.
func (d *Dispatcher) PostResponse(ctx context.Context, channelID, text, taskID string) bool {
	body := fmt.Sprintf("<p>%s</p>", html.EscapeString(text))
	if taskID != "" {
		if d.taskURLBase != "" {
			body += fmt.Sprintf(`<p><a href="%s/%s">View the created task</a></p>`, d.taskURLBase, taskID)
		} else {
			body += fmt.Sprintf("<p>Task %s created.</p>", html.EscapeString(taskID))
		}
	}

	posted, err := d.poster.PostChannelMessage(ctx, channelID, body)
	if err != nil {
		logging.DispatcherWarn("Failed to post reply to channel %s: %v", channelID, err)
		return false
	}
	logging.Dispatcher("Reply %s posted to channel %s", posted.ID, channelID)
	return true
}
