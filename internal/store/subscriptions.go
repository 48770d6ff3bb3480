package store

import (
	"context"
	"fmt"
)

// ChannelSubscription identifies a monitored channel and its owning item.
// Subscriptions are created when an item is configured with a channel;
// the pipeline only reads them.
type ChannelSubscription struct {
	OwnerItemID string
	ChannelID   string
}

// ListChannelSubscriptions returns all monitored channels, ordered by
// owner item id for deterministic polling.
func (s *Store) ListChannelSubscriptions(ctx context.Context) ([]ChannelSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT owner_item_id, channel_id FROM channel_subscriptions ORDER BY owner_item_id, channel_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list channel subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []ChannelSubscription
	for rows.Next() {
		var sub ChannelSubscription
		if err := rows.Scan(&sub.OwnerItemID, &sub.ChannelID); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// UpsertChannelSubscription registers a channel for polling. Idempotent.
func (s *Store) UpsertChannelSubscription(ctx context.Context, sub ChannelSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.OwnerItemID == "" || sub.ChannelID == "" {
		return fmt.Errorf("owner item id and channel id are required")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO channel_subscriptions (owner_item_id, channel_id) VALUES (?, ?)`,
		sub.OwnerItemID, sub.ChannelID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert channel subscription: %w", err)
	}
	return nil
}
