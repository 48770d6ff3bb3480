package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskrelay/internal/platform"
	"taskrelay/internal/store"
)

func newTestOrchestrator(mp *mockPlatform, ms *mockStore, engine *mockAI) *Orchestrator {
	listener := NewListener(mp, ms, NewResolver(mp), NewFilter(ms))
	processor := NewProcessor(NewRetriever(ms), engine, KeywordClassifier{}, ms, 5)
	dispatcher := NewDispatcher(mp, "https://tasks.example.com/t")
	memory := NewMemory(ms)
	return NewOrchestrator(listener, processor, dispatcher, memory)
}

func oneChannelFixture(ms *mockStore, mp *mockPlatform, messages ...platform.Message) {
	ms.subs = []store.ChannelSubscription{{OwnerItemID: "item-1", ChannelID: "C1"}}
	mp.messages["C1"] = messages
}

func TestRunOnceEndToEnd(t *testing.T) {
	mp := newMockPlatform()
	ms := newMockStore()
	engine := &mockAI{response: "Try clearing the cache."}
	oneChannelFixture(ms, mp, platform.Message{
		ExternalID:          "m-42",
		SenderID:            "u-1",
		SenderPrincipalName: "user@x.com",
		SenderDisplayName:   "Some User",
		BodyHTML:            "<p>Login is broken</p>",
	})

	summary, err := newTestOrchestrator(mp, ms, engine).RunOnce(context.Background())
	require.NoError(t, err)

	want := Summary{
		ItemsChecked:      1,
		MessagesFound:     1,
		MessagesProcessed: 1,
		TasksCreated:      1,
		ResponsesPosted:   1,
	}
	if diff := cmp.Diff(want, summary); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}

	task := ms.tasksByExternalID["m-42"]
	require.NotNil(t, task)
	assert.Equal(t, "item-1", task.SourceItemID)
	assert.True(t, task.AIGenerated)

	require.Len(t, ms.docs, 1)
	assert.Contains(t, ms.docs[0].description, "Try clearing the cache.")

	require.Len(t, mp.posted, 1)
	assert.Contains(t, mp.posted[0].html, "Try clearing the cache.")
}

func TestRunOnceIdempotentAcrossCycles(t *testing.T) {
	mp := newMockPlatform()
	ms := newMockStore()
	engine := &mockAI{response: "Try clearing the cache."}
	oneChannelFixture(ms, mp, platform.Message{
		ExternalID: "m-42", SenderID: "u-1", SenderPrincipalName: "user@x.com", BodyHTML: "<p>Login is broken</p>",
	})
	o := newTestOrchestrator(mp, ms, engine)

	first, err := o.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.TasksCreated)

	// Same message offered again next cycle: filtered as a duplicate.
	second, err := o.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.MessagesFound)
	assert.Zero(t, second.TasksCreated)
	assert.Len(t, ms.tasksByExternalID, 1)
}

func TestRunOnceNeverProcessesSelfMessages(t *testing.T) {
	mp := newMockPlatform()
	ms := newMockStore()
	engine := &mockAI{response: "should never be called"}
	oneChannelFixture(ms, mp, platform.Message{
		ExternalID:          "m-1",
		SenderID:            mp.bot.ObjectID,
		SenderPrincipalName: "anything@x.com",
		SenderDisplayName:   "Anything",
		BodyHTML:            "<p>own echo</p>",
	})

	summary, err := newTestOrchestrator(mp, ms, engine).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.MessagesFound)
	assert.Empty(t, engine.prompts)
	assert.Empty(t, ms.tasksByExternalID)
}

func TestRunOnceEnrichmentFailureDoesNotCrash(t *testing.T) {
	mp := newMockPlatform()
	ms := newMockStore()
	mp.lookupErr = fmt.Errorf("directory unavailable")
	engine := &mockAI{response: "ok"}
	oneChannelFixture(ms, mp, platform.Message{
		ExternalID: "m-1", SenderID: "u-9", SenderDisplayName: "Jane Doe", BodyHTML: "<p>hello</p>",
	})

	summary, err := newTestOrchestrator(mp, ms, engine).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.MessagesProcessed)
	require.NotNil(t, ms.tasksByExternalID["m-1"])
	// Without a principal, attribution falls back to the display name.
	assert.Equal(t, "Jane Doe", ms.tasksByExternalID["m-1"].CreatedBy)
}

func TestRunOncePartialFailureIsolation(t *testing.T) {
	mp := newMockPlatform()
	ms := newMockStore()
	engine := &mockAI{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "second") {
			return "", fmt.Errorf("model overloaded")
		}
		return "ok", nil
	}}
	oneChannelFixture(ms, mp,
		platform.Message{ExternalID: "m-1", SenderID: "u-1", SenderPrincipalName: "a@x.com", BodyHTML: "<p>first problem</p>"},
		platform.Message{ExternalID: "m-2", SenderID: "u-2", SenderPrincipalName: "b@x.com", BodyHTML: "<p>second problem</p>"},
		platform.Message{ExternalID: "m-3", SenderID: "u-3", SenderPrincipalName: "c@x.com", BodyHTML: "<p>third problem</p>"},
	)

	summary, err := newTestOrchestrator(mp, ms, engine).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.MessagesFound)
	assert.Equal(t, 2, summary.MessagesProcessed)
	assert.Equal(t, 2, summary.TasksCreated)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "m-2", summary.Errors[0].MessageID)
	assert.Equal(t, "item-1", summary.Errors[0].ItemID)

	assert.NotNil(t, ms.tasksByExternalID["m-1"])
	assert.Nil(t, ms.tasksByExternalID["m-2"])
	assert.NotNil(t, ms.tasksByExternalID["m-3"])
}

func TestRunOnceDispatchFailureIsBestEffort(t *testing.T) {
	mp := newMockPlatform()
	ms := newMockStore()
	mp.postErr = fmt.Errorf("channel gone")
	engine := &mockAI{response: "ok"}
	oneChannelFixture(ms, mp, platform.Message{
		ExternalID: "m-1", SenderID: "u-1", SenderPrincipalName: "a@x.com", BodyHTML: "<p>hello</p>",
	})

	summary, err := newTestOrchestrator(mp, ms, engine).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.TasksCreated)
	assert.Zero(t, summary.ResponsesPosted)
	assert.Empty(t, summary.Errors)
}

func TestRunOnceMemoryFailureIsBestEffort(t *testing.T) {
	mp := newMockPlatform()
	ms := newMockStore()
	ms.insertErr = fmt.Errorf("semantic store unavailable")
	engine := &mockAI{response: "ok"}
	oneChannelFixture(ms, mp, platform.Message{
		ExternalID: "m-1", SenderID: "u-1", SenderPrincipalName: "a@x.com", BodyHTML: "<p>hello</p>",
	})

	summary, err := newTestOrchestrator(mp, ms, engine).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TasksCreated)
	assert.Equal(t, 1, summary.ResponsesPosted)
	assert.Empty(t, summary.Errors)
}

func TestRunOnceListingFailureReturnsError(t *testing.T) {
	ms := newMockStore()
	ms.listSubsErr = fmt.Errorf("store unavailable")

	_, err := newTestOrchestrator(newMockPlatform(), ms, &mockAI{}).RunOnce(context.Background())
	assert.Error(t, err)
}

func TestRunOnceStateProgression(t *testing.T) {
	mp := newMockPlatform()
	ms := newMockStore()
	o := newTestOrchestrator(mp, ms, &mockAI{response: "ok"})

	assert.Equal(t, StateIdle, o.State())
	_, err := o.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, o.State())
}

func TestRunLoopStopsOnCancellation(t *testing.T) {
	mp := newMockPlatform()
	ms := newMockStore()
	o := newTestOrchestrator(mp, ms, &mockAI{response: "ok"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.RunLoop(ctx, 10*time.Millisecond) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("RunLoop did not stop after cancellation")
	}
}
