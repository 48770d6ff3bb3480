package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskrelay/internal/platform"
	"taskrelay/internal/store"
)

var testBot = platform.BotIdentity{
	ObjectID:      "bot-obj-1",
	PrincipalName: "relay-bot@x.com",
	DisplayName:   "Relay Bot",
}

func TestFilterSelfByObjectID(t *testing.T) {
	f := NewFilter(newMockStore())

	// Object id wins regardless of the other fields.
	dropped, signal := f.IsSelfOrDuplicate(context.Background(), platform.Message{
		ExternalID:          "m-1",
		SenderID:            "BOT-OBJ-1",
		SenderPrincipalName: "someone-else@x.com",
	}, testBot)

	assert.True(t, dropped)
	assert.Equal(t, SignalObjectID, signal)
}

func TestFilterSelfByPrincipalName(t *testing.T) {
	f := NewFilter(newMockStore())

	dropped, signal := f.IsSelfOrDuplicate(context.Background(), platform.Message{
		ExternalID:          "m-1",
		SenderID:            "u-9",
		SenderPrincipalName: "  Relay-Bot@X.com ",
	}, testBot)

	assert.True(t, dropped)
	assert.Equal(t, SignalPrincipal, signal)
}

func TestFilterSelfByDisplayName(t *testing.T) {
	f := NewFilter(newMockStore())

	dropped, signal := f.IsSelfOrDuplicate(context.Background(), platform.Message{
		ExternalID:        "m-1",
		SenderDisplayName: "Relay Bot",
	}, testBot)
	assert.True(t, dropped)
	assert.Equal(t, SignalDisplayName, signal)

	dropped, signal = f.IsSelfOrDuplicate(context.Background(), platform.Message{
		ExternalID:        "m-2",
		SenderDisplayName: legacyBotDisplayName,
	}, testBot)
	assert.True(t, dropped)
	assert.Equal(t, SignalDisplayName, signal)
}

func TestFilterDuplicate(t *testing.T) {
	ms := newMockStore()
	_, err := ms.CreateTask(context.Background(), &store.Task{ExternalMessageID: "m-1", SourceItemID: "item-1", Title: "t"})
	require.NoError(t, err)

	dropped, signal := NewFilter(ms).IsSelfOrDuplicate(context.Background(), platform.Message{
		ExternalID: "m-1", SenderID: "u-9", SenderPrincipalName: "jane@x.com",
	}, testBot)

	assert.True(t, dropped)
	assert.Equal(t, SignalDuplicate, signal)
}

func TestFilterNewMessagePasses(t *testing.T) {
	dropped, signal := NewFilter(newMockStore()).IsSelfOrDuplicate(context.Background(), platform.Message{
		ExternalID: "m-1", SenderID: "u-9", SenderPrincipalName: "jane@x.com", SenderDisplayName: "Jane Doe",
	}, testBot)

	assert.False(t, dropped)
	assert.Empty(t, signal)
}

func TestFilterDegradedBotIdentity(t *testing.T) {
	// No object id resolved: filtering runs on principal and display name.
	degraded := platform.BotIdentity{PrincipalName: "relay-bot@x.com", DisplayName: "Relay Bot"}
	f := NewFilter(newMockStore())

	dropped, signal := f.IsSelfOrDuplicate(context.Background(), platform.Message{
		ExternalID: "m-1", SenderID: "bot-obj-1", SenderPrincipalName: "relay-bot@x.com",
	}, degraded)
	assert.True(t, dropped)
	assert.Equal(t, SignalPrincipal, signal)
}

func TestFilterLookupErrorTreatedAsNew(t *testing.T) {
	ms := newMockStore()
	ms.findTaskErr = fmt.Errorf("store unavailable")

	dropped, signal := NewFilter(ms).IsSelfOrDuplicate(context.Background(), platform.Message{
		ExternalID: "m-1", SenderID: "u-9",
	}, testBot)

	assert.False(t, dropped)
	assert.Empty(t, signal)
}
