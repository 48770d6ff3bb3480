package pipeline

import (
	"context"

	"taskrelay/internal/logging"
	"taskrelay/internal/platform"
)

// UserLookup is the directory lookup the resolver needs.
type UserLookup interface {
	GetUserByObjectID(ctx context.Context, id string) (*platform.UserProfile, error)
}

// Resolver fills in missing sender identity on inbound messages. The
// platform omits the principal name on some chat messages; without it,
// self-message filtering degrades silently.
type Resolver struct {
	directory UserLookup
}

// NewResolver creates an identity resolver backed by the given directory.
func NewResolver(directory UserLookup) *Resolver {
	return &Resolver{directory: directory}
}

// Enrich returns the message with sender identity completed from the
// directory when the principal name is missing. Lookup failure is never
// fatal: the message comes back unchanged and a warning is logged.
func (r *Resolver) Enrich(ctx context.Context, msg platform.Message) platform.Message {
	if msg.SenderPrincipalName != "" || msg.SenderID == "" {
		return msg
	}

	profile, err := r.directory.GetUserByObjectID(ctx, msg.SenderID)
	if err != nil {
		logging.ListenerWarn("Identity enrichment failed for sender %s on message %s: %v",
			msg.SenderID, msg.ExternalID, err)
		return msg
	}

	msg.SenderPrincipalName = profile.PrincipalName
	if msg.SenderDisplayName == "" {
		msg.SenderDisplayName = profile.DisplayName
	}
	msg.Mail = profile.Mail
	msg.GivenName = profile.GivenName
	msg.Surname = profile.Surname
	return msg
}
