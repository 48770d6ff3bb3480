package pipeline

import (
	"context"
	"fmt"

	"taskrelay/internal/logging"
	"taskrelay/internal/platform"
	"taskrelay/internal/store"
)

// MessageSource is the platform surface the listener needs.
type MessageSource interface {
	FetchChannelMessages(ctx context.Context, channelID string) ([]platform.Message, error)
	BotIdentity(ctx context.Context) platform.BotIdentity
}

// SubscriptionSource lists the channels to poll.
type SubscriptionSource interface {
	ListChannelSubscriptions(ctx context.Context) ([]store.ChannelSubscription, error)
}

// ChannelMessages groups a channel's surviving messages with its
// subscription, so downstream stages know the owning item.
type ChannelMessages struct {
	Subscription store.ChannelSubscription
	Messages     []platform.Message
}

// PollResult is one poll cycle's harvest, in subscription order.
type PollResult struct {
	Channels     []ChannelMessages
	ItemsChecked int
}

// MessagesFound counts surviving messages across all channels.
func (p *PollResult) MessagesFound() int {
	total := 0
	for _, ch := range p.Channels {
		total += len(ch.Messages)
	}
	return total
}

// Listener polls all subscribed channels and applies identity enrichment
// and self/duplicate filtering to every fetched message.
type Listener struct {
	source        MessageSource
	subscriptions SubscriptionSource
	resolver      *Resolver
	filter        *Filter
}

// NewListener creates a channel listener.
func NewListener(source MessageSource, subscriptions SubscriptionSource, resolver *Resolver, filter *Filter) *Listener {
	return &Listener{source: source, subscriptions: subscriptions, resolver: resolver, filter: filter}
}

// PollAll fetches every subscribed channel once and returns the new
// messages grouped per channel. A fetch failure skips that channel for
// this cycle; only a subscription-listing failure is returned as an error.
func (l *Listener) PollAll(ctx context.Context) (*PollResult, error) {
	subs, err := l.subscriptions.ListChannelSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list channel subscriptions: %w", err)
	}

	bot := l.source.BotIdentity(ctx)
	result := &PollResult{ItemsChecked: len(subs)}

	for _, sub := range subs {
		messages, err := l.source.FetchChannelMessages(ctx, sub.ChannelID)
		if err != nil {
			logging.ListenerWarn("Skipping channel %s this cycle: %v", sub.ChannelID, err)
			continue
		}

		var survivors []platform.Message
		for _, msg := range messages {
			if msg.ExternalID == "" {
				continue
			}
			msg = l.resolver.Enrich(ctx, msg)
			if dropped, signal := l.filter.IsSelfOrDuplicate(ctx, msg, bot); dropped {
				logging.ListenerDebug("Message %s filtered (%s)", msg.ExternalID, signal)
				continue
			}
			survivors = append(survivors, msg)
		}

		if len(survivors) > 0 {
			result.Channels = append(result.Channels, ChannelMessages{Subscription: sub, Messages: survivors})
		}
		logging.Listener("Channel %s: %d fetched, %d new", sub.ChannelID, len(messages), len(survivors))
	}

	return result, nil
}
