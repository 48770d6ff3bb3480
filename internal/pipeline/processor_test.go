package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskrelay/internal/platform"
	"taskrelay/internal/store"
)

func newTestProcessor(ms *mockStore, engine *mockAI) *Processor {
	return NewProcessor(NewRetriever(ms), engine, KeywordClassifier{}, ms, 5)
}

func TestProcessCreatesTaskAndUser(t *testing.T) {
	ms := newMockStore()
	engine := &mockAI{response: "Try clearing the cache."}
	p := newTestProcessor(ms, engine)

	result := p.Process(context.Background(), platform.Message{
		ExternalID:          "m-42",
		SenderPrincipalName: "jane@x.com",
		SenderDisplayName:   "Jane Doe",
		BodyHTML:            "<p>Login is broken</p>",
	}, "item-1")

	require.True(t, result.Success)
	assert.Equal(t, "Try clearing the cache.", result.AIResponse)
	assert.NotEmpty(t, result.CreatedTaskID)
	assert.False(t, result.RAGUsed)

	task := ms.tasksByExternalID["m-42"]
	require.NotNil(t, task)
	assert.Equal(t, "item-1", task.SourceItemID)
	assert.Equal(t, "Login is broken", task.Title)
	assert.Equal(t, "jane@x.com", task.CreatedBy)
	assert.True(t, task.AIGenerated)

	user := ms.users["jane@x.com"]
	require.NotNil(t, user)
	assert.Equal(t, "Jane", user.FirstName)
	assert.Equal(t, "Doe", user.LastName)
	assert.Equal(t, "member", user.Role)
	assert.True(t, user.ExternalAuth)
}

func TestProcessIncludesRetrievedContextInPrompt(t *testing.T) {
	ms := newMockStore()
	ms.hits[store.CollectionTasks] = []store.SemanticHit{
		{Title: "Prior login outage", Description: "resolved by cache flush"},
	}
	engine := &mockAI{response: "See the prior outage."}
	p := newTestProcessor(ms, engine)

	result := p.Process(context.Background(), platform.Message{
		ExternalID: "m-1", SenderPrincipalName: "jane@x.com", BodyHTML: "<p>Login is broken</p>",
	}, "item-1")

	require.True(t, result.Success)
	assert.True(t, result.RAGUsed)
	require.Len(t, engine.prompts, 1)
	assert.Contains(t, engine.prompts[0], "similar item 1: Prior login outage")
	assert.Contains(t, engine.prompts[0], "Login is broken")
	assert.NotEmpty(t, engine.systems[0])
}

func TestProcessAIFailure(t *testing.T) {
	ms := newMockStore()
	engine := &mockAI{err: fmt.Errorf("model overloaded")}
	p := newTestProcessor(ms, engine)

	result := p.Process(context.Background(), platform.Message{
		ExternalID: "m-1", SenderPrincipalName: "jane@x.com", BodyHTML: "<p>hello</p>",
	}, "item-1")

	assert.False(t, result.Success)
	require.Error(t, result.Err)
	assert.Empty(t, ms.tasksByExternalID)
}

func TestProcessEmptyBodyFails(t *testing.T) {
	p := newTestProcessor(newMockStore(), &mockAI{response: "ok"})

	result := p.Process(context.Background(), platform.Message{
		ExternalID: "m-1", BodyHTML: "<p>  </p>",
	}, "item-1")

	assert.False(t, result.Success)
	assert.Error(t, result.Err)
}

func TestProcessDuplicateTaskIsSkip(t *testing.T) {
	ms := newMockStore()
	_, err := ms.CreateTask(context.Background(), &store.Task{ExternalMessageID: "m-1", SourceItemID: "item-1", Title: "t"})
	require.NoError(t, err)

	p := newTestProcessor(ms, &mockAI{response: "ok"})
	result := p.Process(context.Background(), platform.Message{
		ExternalID: "m-1", SenderPrincipalName: "jane@x.com", BodyHTML: "<p>hello</p>",
	}, "item-1")

	assert.True(t, result.Duplicate)
	assert.False(t, result.Success)
	assert.NoError(t, result.Err)
}

func TestProcessRecordsAdvisoryRecommendation(t *testing.T) {
	ms := newMockStore()
	p := newTestProcessor(ms, &mockAI{response: "This needs a follow up with the infra team."})

	result := p.Process(context.Background(), platform.Message{
		ExternalID: "m-1", SenderPrincipalName: "jane@x.com", BodyHTML: "<p>disk full</p>",
	}, "item-1")

	require.True(t, result.Success)
	assert.True(t, result.AIRecommended)
	assert.True(t, ms.tasksByExternalID["m-1"].AIRecommended)
}

func TestProcessExistingUserNotRecreated(t *testing.T) {
	ms := newMockStore()
	_, err := ms.CreateUser(context.Background(), &store.User{PrincipalName: "jane@x.com", FirstName: "Jane"})
	require.NoError(t, err)

	p := newTestProcessor(ms, &mockAI{response: "ok"})
	result := p.Process(context.Background(), platform.Message{
		ExternalID: "m-1", SenderPrincipalName: "jane@x.com", SenderDisplayName: "Janet Doe", BodyHTML: "<p>hi</p>",
	}, "item-1")

	require.True(t, result.Success)
	assert.Len(t, ms.users, 1)
	assert.Equal(t, "Jane", ms.users["jane@x.com"].FirstName)
}

func TestDeriveTitleTruncates(t *testing.T) {
	long := strings.Repeat("word ", 40)
	title := deriveTitle(long)
	assert.LessOrEqual(t, len([]rune(title)), maxTitleLength)
	assert.True(t, strings.HasSuffix(title, "..."))

	assert.Equal(t, "short text", deriveTitle("short text"))
}

func TestSplitDisplayName(t *testing.T) {
	first, last := splitDisplayName("Jane Doe")
	assert.Equal(t, "Jane", first)
	assert.Equal(t, "Doe", last)

	first, last = splitDisplayName("Jane van der Berg")
	assert.Equal(t, "Jane", first)
	assert.Equal(t, "van der Berg", last)

	first, last = splitDisplayName("Madonna")
	assert.Equal(t, "Madonna", first)
	assert.Empty(t, last)

	first, last = splitDisplayName("")
	assert.Empty(t, first)
	assert.Empty(t, last)
}
