// Package platform is the HTTP client for the external messaging platform:
// channel message listing, channel replies and directory lookups, behind a
// client-credentials token manager.
package platform

import "time"

// Message is one inbound channel message as seen by the pipeline. Only
// ExternalID, CreatedAt, SenderID, SenderDisplayName and BodyHTML come from
// the channel listing; the remaining sender fields are filled by directory
// enrichment.
type Message struct {
	ExternalID          string
	CreatedAt           time.Time
	SenderID            string
	SenderPrincipalName string
	SenderDisplayName   string
	Mail                string
	GivenName           string
	Surname             string
	BodyHTML            string
}

// UserProfile is a directory record for a platform user.
type UserProfile struct {
	ID            string `json:"id"`
	PrincipalName string `json:"userPrincipalName"`
	DisplayName   string `json:"displayName"`
	Mail          string `json:"mail"`
	GivenName     string `json:"givenName"`
	Surname       string `json:"surname"`
}

// PostedMessage is the platform's acknowledgment of a channel post.
type PostedMessage struct {
	ID  string `json:"id"`
	URL string `json:"webUrl"`
}

// BotIdentity describes the service account the relay runs as. ObjectID is
// empty when the directory lookup failed and filtering runs degraded on
// principal and display name alone.
type BotIdentity struct {
	ObjectID      string
	PrincipalName string
	DisplayName   string
}
