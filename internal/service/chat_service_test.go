package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"

	"ai-memory-chat-be/internal/constant"
	"ai-memory-chat-be/internal/dto"
	"ai-memory-chat-be/internal/entity"
	"ai-memory-chat-be/internal/pkg/logger"
	"ai-memory-chat-be/internal/pkg/serverutils"
	"ai-memory-chat-be/internal/repository/contract"
	debugrepo "ai-memory-chat-be/internal/repository/memory"
	"ai-memory-chat-be/internal/repository/specification"
	"ai-memory-chat-be/internal/repository/unitofwork"
	"ai-memory-chat-be/pkg/embedding"
	"ai-memory-chat-be/pkg/events"
	"ai-memory-chat-be/pkg/llm"
	"ai-memory-chat-be/pkg/llm/completion"
	"ai-memory-chat-be/pkg/lock"
	"ai-memory-chat-be/pkg/memory"
	chromemstore "ai-memory-chat-be/pkg/memory/store/chromem"
	"ai-memory-chat-be/pkg/rag/response"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDB is the shared in-memory state behind every fake unit of work.
type fakeDB struct {
	mu       sync.Mutex
	chats    map[uuid.UUID]*entity.Chat
	messages []*entity.Message
	// failAssistant makes the next N assistant inserts fail.
	failAssistant int
	failHistory   bool
}

func newFakeDB() *fakeDB {
	return &fakeDB{chats: map[uuid.UUID]*entity.Chat{}}
}

func (db *fakeDB) NewUnitOfWork(context.Context) unitofwork.UnitOfWork {
	return &fakeUoW{db: db}
}

type fakeUoW struct {
	db *fakeDB
}

func (u *fakeUoW) Begin(context.Context) error { return nil }
func (u *fakeUoW) Commit() error               { return nil }
func (u *fakeUoW) Rollback() error             { return nil }
func (u *fakeUoW) ChatRepository() contract.ChatRepository {
	return &fakeChatRepo{db: u.db}
}
func (u *fakeUoW) MessageRepository() contract.MessageRepository {
	return &fakeMessageRepo{db: u.db}
}
func (u *fakeUoW) MemoryRecordRepository() contract.MemoryRecordRepository { return nil }

type fakeChatRepo struct {
	db *fakeDB
}

func (r *fakeChatRepo) Create(_ context.Context, chat *entity.Chat) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c := *chat
	r.db.chats[chat.Id] = &c
	return nil
}

func (r *fakeChatRepo) Update(ctx context.Context, chat *entity.Chat) error {
	return r.Create(ctx, chat)
}

func (r *fakeChatRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.chats, id)
	return nil
}

func (r *fakeChatRepo) FindOne(_ context.Context, specs ...specification.Specification) (*entity.Chat, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, s := range specs {
		if byID, ok := s.(specification.ByID); ok {
			if c, found := r.db.chats[byID.ID]; found {
				copied := *c
				return &copied, nil
			}
		}
	}
	return nil, nil
}

func (r *fakeChatRepo) FindAll(_ context.Context, _ ...specification.Specification) ([]*entity.Chat, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	res := make([]*entity.Chat, 0, len(r.db.chats))
	for _, c := range r.db.chats {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (r *fakeChatRepo) Count(_ context.Context, _ ...specification.Specification) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return int64(len(r.db.chats)), nil
}

type fakeMessageRepo struct {
	db *fakeDB
}

func (r *fakeMessageRepo) Create(_ context.Context, message *entity.Message) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if message.Role == entity.RoleAssistant && r.db.failAssistant > 0 {
		r.db.failAssistant--
		return errors.New("insert failed")
	}
	m := *message
	r.db.messages = append(r.db.messages, &m)
	return nil
}

func (r *fakeMessageRepo) DeleteByChatId(_ context.Context, chatId uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	kept := r.db.messages[:0]
	for _, m := range r.db.messages {
		if m.ChatId != chatId {
			kept = append(kept, m)
		}
	}
	r.db.messages = kept
	return nil
}

// FindAll keeps insertion order, which is the transcript order here.
func (r *fakeMessageRepo) FindAll(_ context.Context, specs ...specification.Specification) ([]*entity.Message, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failHistory {
		return nil, errors.New("query failed")
	}

	var res []*entity.Message
	for _, m := range r.db.messages {
		if matches(m, specs) {
			res = append(res, m)
		}
	}
	return res, nil
}

func (r *fakeMessageRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	res, err := r.FindAll(ctx, specs...)
	return int64(len(res)), err
}

func matches(m *entity.Message, specs []specification.Specification) bool {
	for _, s := range specs {
		switch spec := s.(type) {
		case specification.ByChatID:
			if m.ChatId != spec.ChatID {
				return false
			}
		case specification.ExcludeRoles:
			for _, role := range spec.Roles {
				if string(m.Role) == role {
					return false
				}
			}
		}
	}
	return true
}

type fakeChatCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	panics  bool
	prompts []string
	history [][]llm.Message
	opts    []completion.Options
}

func (f *fakeChatCompleter) Complete(_ context.Context, systemPrompt string, history []llm.Message, opts completion.Options) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("boom")
	}
	f.prompts = append(f.prompts, systemPrompt)
	f.history = append(f.history, append([]llm.Message(nil), history...))
	f.opts = append(f.opts, opts)
	return f.reply, f.err
}

type fakePublisher struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (f *fakePublisher) Publish(_ context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakePublisher) decoded(t *testing.T) []dto.MemoryExtractionMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	res := make([]dto.MemoryExtractionMessage, 0, len(f.payloads))
	for _, p := range f.payloads {
		var m dto.MemoryExtractionMessage
		require.NoError(t, json.Unmarshal(p, &m))
		res = append(res, m)
	}
	return res
}

type broadcastFrame struct {
	chatID    uuid.UUID
	eventType string
	data      interface{}
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	frames []broadcastFrame
}

func (f *fakeBroadcaster) Publish(_ context.Context, chatID uuid.UUID, eventType string, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, broadcastFrame{chatID: chatID, eventType: eventType, data: data})
}

type fakeEvents struct {
	mu    sync.Mutex
	types []string
}

func (f *fakeEvents) Publish(_ context.Context, event events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = append(f.types, event.EventType())
	return nil
}

type chatFixture struct {
	db          *fakeDB
	completer   *fakeChatCompleter
	extraction  *fakePublisher
	debugRepo   *debugrepo.DebugRepository
	broadcaster *fakeBroadcaster
	events      *fakeEvents
	memories    *memory.Manager
	svc         IChatService
	owner       memory.Owner
}

func newChatFixture(t *testing.T, cfg ChatServiceConfig) *chatFixture {
	t.Helper()
	f := &chatFixture{
		db:          newFakeDB(),
		completer:   &fakeChatCompleter{reply: "Hello there."},
		extraction:  &fakePublisher{},
		debugRepo:   debugrepo.NewDebugRepository(),
		broadcaster: &fakeBroadcaster{},
		events:      &fakeEvents{},
		owner:       memory.Owner{UserKey: "user-1", SessionKey: "session-1"},
	}
	f.memories = memory.NewManager(memory.Config{},
		chromemstore.New(embedding.NewHashProvider(128)),
		lock.NewLocalLocker(),
		f.completer,
		response.ParseMemories,
		logger.NewNopLogger(),
	)
	f.svc = NewChatService(f.db, f.memories, f.completer, f.extraction, f.debugRepo, f.broadcaster, f.events, cfg, logger.NewNopLogger())
	return f
}

func (f *chatFixture) createChat(t *testing.T) uuid.UUID {
	t.Helper()
	chat, err := f.svc.CreateChat(context.Background(), &dto.CreateChatRequest{})
	require.NoError(t, err)
	return chat.Id
}

func (f *chatFixture) assistantMessages(chatId uuid.UUID) []*entity.Message {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var res []*entity.Message
	for _, m := range f.db.messages {
		if m.ChatId == chatId && m.Role == entity.RoleAssistant {
			res = append(res, m)
		}
	}
	return res
}

func TestCreateChatSeedsSystemMessage(t *testing.T) {
	f := newChatFixture(t, ChatServiceConfig{})
	ctx := context.Background()

	chat, err := f.svc.CreateChat(ctx, &dto.CreateChatRequest{Title: "  "})
	require.NoError(t, err)
	assert.Equal(t, entity.DefaultChatTitle, chat.Title)

	require.Len(t, f.db.messages, 1)
	assert.Equal(t, entity.RoleSystem, f.db.messages[0].Role)
	assert.Equal(t, constant.ChatInitialSystemMessage, f.db.messages[0].Content)
	assert.Equal(t, []string{events.TypeChatCreated}, f.events.types)

	detail, err := f.svc.GetChat(ctx, chat.Id)
	require.NoError(t, err)
	assert.Empty(t, detail.Messages)
}

func TestSendMessageRejectsBlankContent(t *testing.T) {
	f := newChatFixture(t, ChatServiceConfig{})
	chatId := f.createChat(t)

	_, err := f.svc.SendMessage(context.Background(), f.owner, chatId, &dto.SendMessageRequest{Content: " \n "}, false)

	var validationErr *serverutils.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Fields, "content")
	assert.Len(t, f.db.messages, 1)
	assert.Empty(t, f.completer.prompts)
}

func TestSendMessageUnknownChat(t *testing.T) {
	f := newChatFixture(t, ChatServiceConfig{})

	_, err := f.svc.SendMessage(context.Background(), f.owner, uuid.New(), &dto.SendMessageRequest{Content: "hi"}, false)

	assert.True(t, serverutils.IsNotFound(err))
	assert.Empty(t, f.db.messages)
}

func TestSendMessageStoresReplyAndRequestsExtraction(t *testing.T) {
	f := newChatFixture(t, ChatServiceConfig{MaxCompletionTokens: 500, Temperature: 0.7})
	chatId := f.createChat(t)

	res, err := f.svc.SendMessage(context.Background(), f.owner, chatId, &dto.SendMessageRequest{Content: "  I live in Lisbon "}, false)
	require.NoError(t, err)

	assert.Equal(t, "I live in Lisbon", res.Sent.Content)
	assert.Equal(t, "Hello there.", res.Reply.Content)
	assert.Equal(t, string(entity.RoleAssistant), res.Reply.Role)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, res.Sent.Id, res.Messages[0].Id)
	assert.Equal(t, res.Reply.Id, res.Messages[1].Id)
	assert.Nil(t, res.Debug)
	assert.Len(t, f.assistantMessages(chatId), 1)

	require.Len(t, f.completer.opts, 1)
	assert.Equal(t, completion.Options{MaxTokens: 500, Temperature: 0.7, ResponseFormat: llm.ResponseFormatText}, f.completer.opts[0])
	history := f.completer.history[0]
	require.Len(t, history, 2)
	assert.Equal(t, "system", history[0].Role)
	assert.Equal(t, llm.Message{Role: "user", Content: "I live in Lisbon"}, history[1])

	requests := f.extraction.decoded(t)
	require.Len(t, requests, 1)
	assert.Equal(t, "user-1", requests[0].UserKey)
	assert.Equal(t, "session-1", requests[0].SessionKey)
	assert.False(t, requests[0].Inline)
	assert.Equal(t, "Hello there.", requests[0].Reply)
	require.Len(t, requests[0].Conversation, 3)
	assert.Equal(t, llm.Message{Role: "assistant", Content: "Hello there."}, requests[0].Conversation[2])

	require.Len(t, f.broadcaster.frames, 2)
	assert.Equal(t, constant.WsEventMessageCreated, f.broadcaster.frames[0].eventType)
	assert.Equal(t, res.Reply, f.broadcaster.frames[1].data)
	assert.Equal(t, []string{events.TypeChatCreated, events.TypeChatMessageCreated, events.TypeChatMessageCreated}, f.events.types)
}

func TestSendMessageInjectsStoredMemories(t *testing.T) {
	f := newChatFixture(t, ChatServiceConfig{})
	chatId := f.createChat(t)
	ctx := context.Background()

	stored := f.memories.ForOwner(f.owner).StoreCandidates(ctx, []memory.Candidate{
		{Content: "User's name is Ana", Category: "name", Importance: "high"},
	})
	require.Equal(t, 1, stored)

	_, err := f.svc.SendMessage(ctx, f.owner, chatId, &dto.SendMessageRequest{Content: "User's name is Ana"}, false)
	require.NoError(t, err)

	require.Len(t, f.completer.prompts, 1)
	assert.Contains(t, f.completer.prompts[0], "## Name\n- User's name is Ana")
}

func TestSendMessageCompletionUnavailable(t *testing.T) {
	f := newChatFixture(t, ChatServiceConfig{})
	f.completer.err = &completion.CompletionUnavailableError{Attempts: 3, Err: errors.New("timeout")}
	chatId := f.createChat(t)

	res, err := f.svc.SendMessage(context.Background(), f.owner, chatId, &dto.SendMessageRequest{Content: "hi"}, false)
	require.NoError(t, err)

	assert.Equal(t, constant.ChatReplyUnavailable, res.Reply.Content)
	assert.Len(t, f.assistantMessages(chatId), 1)
	assert.Empty(t, f.extraction.payloads)
}

func TestSendMessageProcessingFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *chatFixture)
	}{
		{"history query fails", func(f *chatFixture) { f.db.failHistory = true }},
		{"completer panics", func(f *chatFixture) { f.completer.panics = true }},
		{"reply is blank", func(f *chatFixture) { f.completer.reply = "   " }},
		{"reply insert fails", func(f *chatFixture) { f.db.failAssistant = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newChatFixture(t, ChatServiceConfig{})
			chatId := f.createChat(t)
			tt.setup(f)

			res, err := f.svc.SendMessage(context.Background(), f.owner, chatId, &dto.SendMessageRequest{Content: "hi"}, false)
			require.NoError(t, err)

			assert.Equal(t, constant.ChatReplyProcessingError, res.Reply.Content)
			assert.Len(t, f.assistantMessages(chatId), 1)
			assert.Empty(t, f.extraction.payloads)
		})
	}
}

func TestSendMessageFailsWhenApologyCannotBeStored(t *testing.T) {
	f := newChatFixture(t, ChatServiceConfig{})
	chatId := f.createChat(t)
	f.db.failAssistant = 2

	_, err := f.svc.SendMessage(context.Background(), f.owner, chatId, &dto.SendMessageRequest{Content: "hi"}, false)

	require.Error(t, err)
	assert.Empty(t, f.assistantMessages(chatId))
}

func TestSendMessageJSONModeCarriesInlineCandidates(t *testing.T) {
	f := newChatFixture(t, ChatServiceConfig{ResponseFormat: llm.ResponseFormatJSON})
	f.completer.reply = `{"response": "Noted!", "memories": [{"content": "Lives in Lisbon", "category": "location", "importance": "high"}]}`
	chatId := f.createChat(t)

	res, err := f.svc.SendMessage(context.Background(), f.owner, chatId, &dto.SendMessageRequest{Content: "I live in Lisbon"}, false)
	require.NoError(t, err)
	assert.Equal(t, "Noted!", res.Reply.Content)
	assert.Equal(t, llm.ResponseFormatJSON, f.completer.opts[0].ResponseFormat)

	requests := f.extraction.decoded(t)
	require.Len(t, requests, 1)
	assert.True(t, requests[0].Inline)
	require.Len(t, requests[0].Candidates, 1)
	assert.Equal(t, "Lives in Lisbon", requests[0].Candidates[0].Content)
}

func TestSendMessageJSONModeFallsBackToExtraction(t *testing.T) {
	f := newChatFixture(t, ChatServiceConfig{ResponseFormat: llm.ResponseFormatJSON})
	f.completer.reply = "plain text reply"
	chatId := f.createChat(t)

	res, err := f.svc.SendMessage(context.Background(), f.owner, chatId, &dto.SendMessageRequest{Content: "hi"}, false)
	require.NoError(t, err)
	assert.Equal(t, "plain text reply", res.Reply.Content)

	requests := f.extraction.decoded(t)
	require.Len(t, requests, 1)
	assert.False(t, requests[0].Inline)
}

func TestSendMessageDebugGating(t *testing.T) {
	tests := []struct {
		name      string
		cfg       ChatServiceConfig
		showDebug bool
		want      bool
	}{
		{"off by default", ChatServiceConfig{}, true, false},
		{"flag allowed and set", ChatServiceConfig{AllowDebugFlag: true}, true, true},
		{"flag allowed but unset", ChatServiceConfig{AllowDebugFlag: true}, false, false},
		{"debug mode", ChatServiceConfig{DebugMode: true}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newChatFixture(t, tt.cfg)
			chatId := f.createChat(t)

			res, err := f.svc.SendMessage(context.Background(), f.owner, chatId, &dto.SendMessageRequest{Content: "hi"}, tt.showDebug)
			require.NoError(t, err)

			info, err := f.svc.GetDebugInfo(context.Background(), chatId)
			if !tt.want {
				assert.Nil(t, res.Debug)
				assert.True(t, serverutils.IsNotFound(err))
				return
			}
			require.NotNil(t, res.Debug)
			assert.Equal(t, "Hello there.", res.Debug.RawContent)
			assert.False(t, res.Debug.Timestamp.IsZero())
			require.NoError(t, err)
			assert.Equal(t, res.Debug, info)
		})
	}
}

func TestListUpdateDeleteChat(t *testing.T) {
	f := newChatFixture(t, ChatServiceConfig{DebugMode: true})
	ctx := context.Background()

	first := f.createChat(t)
	second := f.createChat(t)

	chats, err := f.svc.ListChats(ctx)
	require.NoError(t, err)
	assert.Len(t, chats, 2)

	_, err = f.svc.UpdateChat(ctx, first, &dto.UpdateChatRequest{Title: " "})
	var validationErr *serverutils.ValidationError
	assert.ErrorAs(t, err, &validationErr)

	updated, err := f.svc.UpdateChat(ctx, first, &dto.UpdateChatRequest{Title: "Trip planning"})
	require.NoError(t, err)
	assert.Equal(t, "Trip planning", updated.Title)

	_, err = f.svc.SendMessage(ctx, f.owner, first, &dto.SendMessageRequest{Content: "hi"}, false)
	require.NoError(t, err)
	_, ok := f.debugRepo.Get(first)
	require.True(t, ok)

	require.NoError(t, f.svc.DeleteChat(ctx, first))
	_, err = f.svc.GetChat(ctx, first)
	assert.True(t, serverutils.IsNotFound(err))
	_, ok = f.debugRepo.Get(first)
	assert.False(t, ok)
	for _, m := range f.db.messages {
		assert.Equal(t, second, m.ChatId)
	}

	assert.True(t, serverutils.IsNotFound(f.svc.DeleteChat(ctx, first)))
	assert.Contains(t, f.events.types, events.TypeChatDeleted)
}
