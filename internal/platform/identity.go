package platform

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"taskrelay/internal/logging"
)

// identityCache holds the lazily resolved bot identity. singleflight
// collapses concurrent first lookups into one directory call.
type identityCache struct {
	group    singleflight.Group
	mu       sync.RWMutex
	resolved *BotIdentity
}

// BotIdentity resolves the service account's directory identity once per
// process. A failed lookup is not cached: the call returns a degraded
// identity (no object id) and the next caller tries the directory again.
func (c *Client) BotIdentity(ctx context.Context) BotIdentity {
	c.identity.mu.RLock()
	if cached := c.identity.resolved; cached != nil {
		c.identity.mu.RUnlock()
		return *cached
	}
	c.identity.mu.RUnlock()

	result, err, _ := c.identity.group.Do("bot-identity", func() (interface{}, error) {
		profile, err := c.GetUserByObjectID(ctx, c.botPrincipalName)
		if err != nil {
			return nil, err
		}
		identity := BotIdentity{
			ObjectID:      profile.ID,
			PrincipalName: profile.PrincipalName,
			DisplayName:   profile.DisplayName,
		}
		c.identity.mu.Lock()
		c.identity.resolved = &identity
		c.identity.mu.Unlock()
		logging.Auth("Bot identity resolved: principal=%s objectID=%s", identity.PrincipalName, identity.ObjectID)
		return identity, nil
	})
	if err != nil {
		logging.AuthWarn("Bot identity lookup failed, filtering degrades to name comparison: %v", err)
		return BotIdentity{
			PrincipalName: c.botPrincipalName,
			DisplayName:   c.botDisplayName,
		}
	}
	return result.(BotIdentity)
}
