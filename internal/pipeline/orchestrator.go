// Package pipeline implements the chat-message ingestion and AI-assisted
// processing pipeline: poll subscribed channels, filter self and duplicate
// messages, enrich sender identity, retrieve related prior work, invoke
// the AI once per message, materialize a work item, reply into the channel
// and archive the exchange. One message's failure never halts the batch.
package pipeline

import (
	"context"
	"time"

	"taskrelay/internal/logging"
)

// Run states, exposed for observability.
type State string

const (
	StateIdle               State = "idle"
	StateListing            State = "listing"
	StateProcessingMessages State = "processing_messages"
	StateDone               State = "done"
)

// RunError records one failed message in a run summary.
type RunError struct {
	MessageID string
	ItemID    string
	Error     string
}

// Summary aggregates one run. Only processor failures appear in Errors;
// dispatcher and memory failures are logged only, since the task is
// already durable when they run.
type Summary struct {
	ItemsChecked      int
	MessagesFound     int
	MessagesProcessed int
	TasksCreated      int
	ResponsesPosted   int
	Errors            []RunError
}

// Orchestrator drives Listener -> Processor -> Dispatcher -> Memory for
// every surviving message, strictly sequentially.
type Orchestrator struct {
	listener   *Listener
	processor  *Processor
	dispatcher *Dispatcher
	memory     *Memory

	state State
}

// NewOrchestrator wires the pipeline stages together.
func NewOrchestrator(listener *Listener, processor *Processor, dispatcher *Dispatcher, memory *Memory) *Orchestrator {
	return &Orchestrator{
		listener:   listener,
		processor:  processor,
		dispatcher: dispatcher,
		memory:     memory,
		state:      StateIdle,
	}
}

// State returns the current run state. Only meaningful from the single
// worker goroutine.
func (o *Orchestrator) State() State {
	return o.state
}

// RunOnce executes one poll cycle. Only a failure of the initial channel
// listing is returned as an error; every later failure is absorbed into
// the summary or logged.
func (o *Orchestrator) RunOnce(ctx context.Context) (Summary, error) {
	timer := logging.StartTimer(logging.CategoryProcessor, "pipeline.RunOnce")
	defer timer.Stop()

	o.state = StateListing
	defer func() { o.state = StateDone }()

	poll, err := o.listener.PollAll(ctx)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		ItemsChecked:  poll.ItemsChecked,
		MessagesFound: poll.MessagesFound(),
	}

	o.state = StateProcessingMessages
	for _, channel := range poll.Channels {
		for _, msg := range channel.Messages {
			result := o.processor.Process(ctx, msg, channel.Subscription.OwnerItemID)

			if result.Duplicate {
				// Raced with another instance; the task exists, nothing to do.
				continue
			}
			if result.Err != nil {
				logging.ProcessorError("Message %s failed: %v", msg.ExternalID, result.Err)
				summary.Errors = append(summary.Errors, RunError{
					MessageID: msg.ExternalID,
					ItemID:    channel.Subscription.OwnerItemID,
					Error:     result.Err.Error(),
				})
				continue
			}

			summary.MessagesProcessed++
			if result.CreatedTaskID != "" {
				summary.TasksCreated++
			}

			if o.dispatcher.PostResponse(ctx, channel.Subscription.ChannelID, result.AIResponse, result.CreatedTaskID) {
				summary.ResponsesPosted++
			}

			question := ExtractText(msg.BodyHTML)
			_ = o.memory.SyncConversation(ctx, question, result.AIResponse,
				channel.Subscription.OwnerItemID, msg.SenderPrincipalName)
		}
	}

	logging.Processor("Run complete: checked=%d found=%d processed=%d tasks=%d posted=%d errors=%d",
		summary.ItemsChecked, summary.MessagesFound, summary.MessagesProcessed,
		summary.TasksCreated, summary.ResponsesPosted, len(summary.Errors))
	return summary, nil
}

// RunLoop runs cycles with a fixed sleep between them until the context is
// cancelled. A cycle in progress runs to completion.
func (o *Orchestrator) RunLoop(ctx context.Context, interval time.Duration) error {
	for {
		if _, err := o.RunOnce(ctx); err != nil {
			logging.ProcessorError("Poll cycle failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
