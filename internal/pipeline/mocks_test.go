package pipeline

import (
	"context"
	"fmt"
	"sync"

	"taskrelay/internal/platform"
	"taskrelay/internal/store"
)

// mockStore implements the store-facing interfaces with an in-memory map,
// including the unique-constraint behavior on external message ids.
type mockStore struct {
	mu   sync.Mutex
	subs []store.ChannelSubscription

	tasksByExternalID map[string]*store.Task
	users             map[string]*store.User
	docs              []insertedDoc

	hits          map[string][]store.SemanticHit // by collection
	findTaskErr   error
	createTaskErr error
	searchErr     error
	insertErr     error
	listSubsErr   error
}

type insertedDoc struct {
	collection  string
	title       string
	description string
	metadata    map[string]interface{}
}

func newMockStore() *mockStore {
	return &mockStore{
		tasksByExternalID: make(map[string]*store.Task),
		users:             make(map[string]*store.User),
		hits:              make(map[string][]store.SemanticHit),
	}
}

func (m *mockStore) ListChannelSubscriptions(context.Context) ([]store.ChannelSubscription, error) {
	if m.listSubsErr != nil {
		return nil, m.listSubsErr
	}
	return m.subs, nil
}

func (m *mockStore) FindTaskByExternalMessageID(_ context.Context, externalID string) (*store.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findTaskErr != nil {
		return nil, m.findTaskErr
	}
	return m.tasksByExternalID[externalID], nil
}

func (m *mockStore) CreateTask(_ context.Context, task *store.Task) (*store.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createTaskErr != nil {
		return nil, m.createTaskErr
	}
	if _, exists := m.tasksByExternalID[task.ExternalMessageID]; exists {
		return nil, store.ErrDuplicateTask
	}
	created := *task
	created.ID = fmt.Sprintf("task-%d", len(m.tasksByExternalID)+1)
	m.tasksByExternalID[task.ExternalMessageID] = &created
	return &created, nil
}

func (m *mockStore) FindUserByPrincipalName(_ context.Context, principalName string) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[principalName], nil
}

func (m *mockStore) CreateUser(_ context.Context, user *store.User) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := *user
	created.ID = fmt.Sprintf("user-%d", len(m.users)+1)
	if created.Role == "" {
		created.Role = "member"
	}
	m.users[user.PrincipalName] = &created
	return &created, nil
}

func (m *mockStore) SearchCollection(_ context.Context, collection, _ string, limit int) ([]store.SemanticHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	hits := m.hits[collection]
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *mockStore) InsertDocument(_ context.Context, collection, title, description string, metadata map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.docs = append(m.docs, insertedDoc{collection: collection, title: title, description: description, metadata: metadata})
	return nil
}

// mockPlatform implements the platform-facing interfaces.
type mockPlatform struct {
	mu        sync.Mutex
	messages  map[string][]platform.Message
	fetchErrs map[string]error
	profiles  map[string]*platform.UserProfile
	lookupErr error
	bot       platform.BotIdentity

	posted  []postedReply
	postErr error
}

type postedReply struct {
	channelID string
	html      string
}

func newMockPlatform() *mockPlatform {
	return &mockPlatform{
		messages:  make(map[string][]platform.Message),
		fetchErrs: make(map[string]error),
		profiles:  make(map[string]*platform.UserProfile),
		bot:       platform.BotIdentity{ObjectID: "bot-obj-1", PrincipalName: "relay-bot@x.com", DisplayName: "Relay Bot"},
	}
}

func (m *mockPlatform) FetchChannelMessages(_ context.Context, channelID string) ([]platform.Message, error) {
	if err := m.fetchErrs[channelID]; err != nil {
		return nil, err
	}
	return m.messages[channelID], nil
}

func (m *mockPlatform) BotIdentity(context.Context) platform.BotIdentity {
	return m.bot
}

func (m *mockPlatform) GetUserByObjectID(_ context.Context, id string) (*platform.UserProfile, error) {
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	if profile, ok := m.profiles[id]; ok {
		return profile, nil
	}
	return nil, fmt.Errorf("user %s not found", id)
}

func (m *mockPlatform) PostChannelMessage(_ context.Context, channelID, html string) (*platform.PostedMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postErr != nil {
		return nil, m.postErr
	}
	m.posted = append(m.posted, postedReply{channelID: channelID, html: html})
	return &platform.PostedMessage{ID: fmt.Sprintf("posted-%d", len(m.posted))}, nil
}

// mockAI implements ai.Client with a canned or per-prompt response.
type mockAI struct {
	mu       sync.Mutex
	response string
	err      error
	respond  func(prompt string) (string, error)
	prompts  []string
	systems  []string
}

func (m *mockAI) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

func (m *mockAI) CompleteWithSystem(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, userPrompt)
	m.systems = append(m.systems, systemPrompt)
	if m.respond != nil {
		return m.respond(userPrompt)
	}
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}
