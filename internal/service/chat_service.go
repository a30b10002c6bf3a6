package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ai-memory-chat-be/internal/constant"
	"ai-memory-chat-be/internal/dto"
	"ai-memory-chat-be/internal/entity"
	"ai-memory-chat-be/internal/pkg/logger"
	"ai-memory-chat-be/internal/pkg/serverutils"
	debugrepo "ai-memory-chat-be/internal/repository/memory"
	"ai-memory-chat-be/internal/repository/specification"
	"ai-memory-chat-be/internal/repository/unitofwork"
	"ai-memory-chat-be/pkg/events"
	"ai-memory-chat-be/pkg/llm"
	"ai-memory-chat-be/pkg/llm/completion"
	"ai-memory-chat-be/pkg/memory"
	"ai-memory-chat-be/pkg/rag/prompt"
	"ai-memory-chat-be/pkg/rag/response"

	"github.com/google/uuid"
)

var ErrChatNotFound = &serverutils.NotFoundError{Resource: "chat"}

type IChatService interface {
	CreateChat(ctx context.Context, request *dto.CreateChatRequest) (*dto.ChatResponse, error)
	ListChats(ctx context.Context) ([]*dto.ChatResponse, error)
	GetChat(ctx context.Context, chatId uuid.UUID) (*dto.ChatDetailResponse, error)
	UpdateChat(ctx context.Context, chatId uuid.UUID, request *dto.UpdateChatRequest) (*dto.ChatResponse, error)
	DeleteChat(ctx context.Context, chatId uuid.UUID) error
	SendMessage(ctx context.Context, owner memory.Owner, chatId uuid.UUID, request *dto.SendMessageRequest, showDebug bool) (*dto.SendMessageResponse, error)
	GetDebugInfo(ctx context.Context, chatId uuid.UUID) (*debugrepo.DebugInfo, error)
}

// MemoryProvider hands out owner-bound memory services.
type MemoryProvider interface {
	ForOwner(owner memory.Owner) memory.Service
}

// Broadcaster pushes frames to live subscribers of a chat.
type Broadcaster interface {
	Publish(ctx context.Context, chatID uuid.UUID, eventType string, data interface{})
}

type ChatServiceConfig struct {
	MaxCompletionTokens int
	Temperature         float64
	ResponseFormat      llm.ResponseFormat
	// DebugMode records diagnostics for every turn.
	DebugMode bool
	// AllowDebugFlag lets a request opt in with show_memory_response.
	AllowDebugFlag bool
}

type turnState string

const (
	stateReceivingInput     turnState = "receiving_input"
	stateBuildingContext    turnState = "building_context"
	stateAwaitingCompletion turnState = "awaiting_completion"
	stateParsing            turnState = "parsing"
	statePersisting         turnState = "persisting"
	stateExtractingMemories turnState = "extracting_memories"
	stateDone               turnState = "done"
	stateFailed             turnState = "failed"
)

type chatService struct {
	uowFactory  unitofwork.RepositoryFactory
	memories    MemoryProvider
	completer   completion.Completer
	extraction  IPublisherService
	debugRepo   *debugrepo.DebugRepository
	broadcaster Broadcaster
	events      events.Publisher
	cfg         ChatServiceConfig
	logger      logger.ILogger
}

func NewChatService(
	uowFactory unitofwork.RepositoryFactory,
	memories MemoryProvider,
	completer completion.Completer,
	extraction IPublisherService,
	debugRepo *debugrepo.DebugRepository,
	broadcaster Broadcaster,
	eventPublisher events.Publisher,
	cfg ChatServiceConfig,
	log logger.ILogger,
) IChatService {
	if cfg.ResponseFormat == "" {
		cfg.ResponseFormat = llm.ResponseFormatText
	}
	if eventPublisher == nil {
		eventPublisher = events.NopPublisher{}
	}
	return &chatService{
		uowFactory:  uowFactory,
		memories:    memories,
		completer:   completer,
		extraction:  extraction,
		debugRepo:   debugRepo,
		broadcaster: broadcaster,
		events:      eventPublisher,
		cfg:         cfg,
		logger:      log,
	}
}

func toChatResponse(c *entity.Chat) *dto.ChatResponse {
	return &dto.ChatResponse{
		Id:        c.Id,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func toMessageResponse(m *entity.Message) *dto.MessageResponse {
	return &dto.MessageResponse{
		Id:        m.Id,
		ChatId:    m.ChatId,
		Role:      string(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

// CreateChat stores the chat together with its seed system message.
func (cs *chatService) CreateChat(ctx context.Context, request *dto.CreateChatRequest) (*dto.ChatResponse, error) {
	title := strings.TrimSpace(request.Title)
	if title == "" {
		title = entity.DefaultChatTitle
	}

	now := time.Now()
	chat := entity.Chat{
		Id:        uuid.New(),
		Title:     title,
		CreatedAt: now,
	}
	seed := entity.Message{
		Id:        uuid.New(),
		ChatId:    chat.Id,
		Role:      entity.RoleSystem,
		Content:   constant.ChatInitialSystemMessage,
		CreatedAt: now,
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	if err := uow.ChatRepository().Create(ctx, &chat); err != nil {
		return nil, err
	}
	if err := uow.MessageRepository().Create(ctx, &seed); err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, err
	}

	cs.publishEvent(ctx, events.TypeChatCreated, map[string]interface{}{"chat_id": chat.Id.String(), "title": chat.Title})
	return toChatResponse(&chat), nil
}

func (cs *chatService) ListChats(ctx context.Context) ([]*dto.ChatResponse, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)
	chats, err := uow.ChatRepository().FindAll(ctx, specification.OrderBy{Field: "created_at", Desc: true})
	if err != nil {
		return nil, err
	}

	res := make([]*dto.ChatResponse, 0, len(chats))
	for _, c := range chats {
		res = append(res, toChatResponse(c))
	}
	return res, nil
}

func (cs *chatService) findChat(ctx context.Context, uow unitofwork.UnitOfWork, chatId uuid.UUID) (*entity.Chat, error) {
	chat, err := uow.ChatRepository().FindOne(ctx, specification.ByID{ID: chatId})
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

func (cs *chatService) visibleMessages(ctx context.Context, uow unitofwork.UnitOfWork, chatId uuid.UUID) ([]*dto.MessageResponse, error) {
	messages, err := uow.MessageRepository().FindAll(ctx,
		specification.ByChatID{ChatID: chatId},
		specification.ExcludeRoles{Roles: []string{string(entity.RoleSystem)}},
		specification.TranscriptOrder{},
	)
	if err != nil {
		return nil, err
	}
	res := make([]*dto.MessageResponse, 0, len(messages))
	for _, m := range messages {
		res = append(res, toMessageResponse(m))
	}
	return res, nil
}

func (cs *chatService) GetChat(ctx context.Context, chatId uuid.UUID) (*dto.ChatDetailResponse, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)
	chat, err := cs.findChat(ctx, uow, chatId)
	if err != nil {
		return nil, err
	}
	messages, err := cs.visibleMessages(ctx, uow, chatId)
	if err != nil {
		return nil, err
	}
	return &dto.ChatDetailResponse{ChatResponse: *toChatResponse(chat), Messages: messages}, nil
}

func (cs *chatService) UpdateChat(ctx context.Context, chatId uuid.UUID, request *dto.UpdateChatRequest) (*dto.ChatResponse, error) {
	title := strings.TrimSpace(request.Title)
	if title == "" {
		return nil, serverutils.NewValidationError("title", "is required")
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)
	chat, err := cs.findChat(ctx, uow, chatId)
	if err != nil {
		return nil, err
	}

	chat.Title = title
	if err := uow.ChatRepository().Update(ctx, chat); err != nil {
		return nil, err
	}
	return toChatResponse(chat), nil
}

// DeleteChat removes the chat and all of its messages.
func (cs *chatService) DeleteChat(ctx context.Context, chatId uuid.UUID) error {
	uow := cs.uowFactory.NewUnitOfWork(ctx)
	if _, err := cs.findChat(ctx, uow, chatId); err != nil {
		return err
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.MessageRepository().DeleteByChatId(ctx, chatId); err != nil {
		return err
	}
	if err := uow.ChatRepository().Delete(ctx, chatId); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	if cs.debugRepo != nil {
		cs.debugRepo.Delete(chatId)
	}
	cs.publishEvent(ctx, events.TypeChatDeleted, map[string]interface{}{"chat_id": chatId.String()})
	return nil
}

func (cs *chatService) GetDebugInfo(ctx context.Context, chatId uuid.UUID) (*debugrepo.DebugInfo, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)
	if _, err := cs.findChat(ctx, uow, chatId); err != nil {
		return nil, err
	}
	if cs.debugRepo == nil {
		return nil, &serverutils.NotFoundError{Resource: "debug info"}
	}
	info, ok := cs.debugRepo.Get(chatId)
	if !ok {
		return nil, &serverutils.NotFoundError{Resource: "debug info"}
	}
	return info, nil
}

func (cs *chatService) transition(chatId uuid.UUID, from, to turnState) {
	cs.logger.Debug("ChatService", "Turn state changed", map[string]interface{}{
		"chat_id": chatId,
		"from":    from,
		"to":      to,
	})
}

// turnOutcome is what the generation steps produced for one turn.
type turnOutcome struct {
	history    []llm.Message
	reply      string
	parsed     response.Result
	raw        string
	generated  bool
	generation error
}

// SendMessage runs one conversational turn. Once the user message is stored
// exactly one assistant message is stored after it, either the reply or an
// apology.
func (cs *chatService) SendMessage(ctx context.Context, owner memory.Owner, chatId uuid.UUID, request *dto.SendMessageRequest, showDebug bool) (*dto.SendMessageResponse, error) {
	content := strings.TrimSpace(request.Content)
	if content == "" {
		return nil, serverutils.NewValidationError("content", "is required")
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)
	if _, err := cs.findChat(ctx, uow, chatId); err != nil {
		return nil, err
	}

	userMessage := entity.Message{
		Id:        uuid.New(),
		ChatId:    chatId,
		Role:      entity.RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := uow.MessageRepository().Create(ctx, &userMessage); err != nil {
		return nil, err
	}

	outcome := cs.generate(ctx, uow, owner, chatId, content)

	state := stateParsing
	if outcome.generation != nil {
		state = stateFailed
	}
	cs.transition(chatId, state, statePersisting)

	replyMessage, replied, err := cs.persistReply(ctx, uow, chatId, outcome)
	if err != nil {
		cs.transition(chatId, statePersisting, stateFailed)
		return nil, err
	}

	debugAllowed := cs.cfg.DebugMode || (showDebug && cs.cfg.AllowDebugFlag)
	var debug *debugrepo.DebugInfo
	if debugAllowed && outcome.raw != "" {
		debug = &debugrepo.DebugInfo{
			RawContent: outcome.raw,
			ParseError: outcome.parsed.ParseError,
			Timestamp:  time.Now().UTC(),
		}
		if cs.debugRepo != nil {
			cs.debugRepo.Save(chatId, debug)
		}
	}

	if replied {
		cs.transition(chatId, statePersisting, stateExtractingMemories)
		cs.requestExtraction(ctx, owner, chatId, outcome)
		cs.transition(chatId, stateExtractingMemories, stateDone)
	} else {
		cs.transition(chatId, statePersisting, stateDone)
	}

	sent := toMessageResponse(&userMessage)
	reply := toMessageResponse(replyMessage)
	cs.announce(ctx, chatId, sent, reply)

	messages, err := cs.visibleMessages(ctx, cs.uowFactory.NewUnitOfWork(ctx), chatId)
	if err != nil {
		cs.logger.Warn("ChatService", "Failed to reload transcript", map[string]interface{}{"chat_id": chatId, "error": err.Error()})
		messages = []*dto.MessageResponse{sent, reply}
	}

	res := &dto.SendMessageResponse{Sent: sent, Reply: reply, Messages: messages}
	if debugAllowed {
		res.Debug = debug
	}
	return res, nil
}

// generate covers building context through parsing. Any failure is recorded
// in the outcome rather than returned.
func (cs *chatService) generate(ctx context.Context, uow unitofwork.UnitOfWork, owner memory.Owner, chatId uuid.UUID, content string) (outcome turnOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome.generated = false
			outcome.generation = fmt.Errorf("panic during turn: %v", r)
			cs.logger.Error("ChatService", "Recovered panic while generating reply", map[string]interface{}{"chat_id": chatId, "panic": r})
		}
	}()

	cs.transition(chatId, stateReceivingInput, stateBuildingContext)

	transcript, err := uow.MessageRepository().FindAll(ctx,
		specification.ByChatID{ChatID: chatId},
		specification.TranscriptOrder{},
	)
	if err != nil {
		outcome.generation = fmt.Errorf("load history: %w", err)
		return outcome
	}
	outcome.history = make([]llm.Message, 0, len(transcript))
	for _, m := range transcript {
		outcome.history = append(outcome.history, llm.Message{Role: string(m.Role), Content: m.Content})
	}

	memSvc := cs.memories.ForOwner(owner)
	relevant := memSvc.GetRelevantMemories(ctx, content, constant.ChatRelevantMemoryLimit)
	baseTemplate := prompt.CleanChatSystemPrompt
	if cs.cfg.ResponseFormat == llm.ResponseFormatJSON {
		baseTemplate = prompt.JSONChatSystemPrompt
	}
	systemPrompt := prompt.Build(baseTemplate, memSvc.FormatMemoriesForPrompt(relevant))

	cs.transition(chatId, stateBuildingContext, stateAwaitingCompletion)
	raw, err := cs.completer.Complete(ctx, systemPrompt, outcome.history, completion.Options{
		MaxTokens:      cs.cfg.MaxCompletionTokens,
		Temperature:    cs.cfg.Temperature,
		ResponseFormat: cs.cfg.ResponseFormat,
	})
	if err != nil {
		outcome.generation = err
		cs.logger.Warn("ChatService", "Completion failed", map[string]interface{}{
			"chat_id": chatId,
			"error":   err.Error(),
		})
		return outcome
	}

	cs.transition(chatId, stateAwaitingCompletion, stateParsing)
	outcome.raw = raw
	outcome.parsed = response.Parse(raw, cs.cfg.ResponseFormat)
	if outcome.parsed.ParseError != "" {
		cs.logger.Debug("ChatService", "Response parse fallback", map[string]interface{}{
			"chat_id":     chatId,
			"parse_error": outcome.parsed.ParseError,
		})
	}
	outcome.reply = outcome.parsed.Reply
	outcome.generated = strings.TrimSpace(outcome.reply) != ""
	if !outcome.generated {
		outcome.generation = errors.New("empty reply after parsing")
	}
	return outcome
}

func apologyFor(err error) string {
	if errors.Is(err, completion.ErrCompletionUnavailable) {
		return constant.ChatReplyUnavailable
	}
	return constant.ChatReplyProcessingError
}

// persistReply stores the reply, or the matching apology, and reports whether
// the stored message is the generated reply. If storing the reply fails the
// processing apology is written in a fresh unit of work.
func (cs *chatService) persistReply(ctx context.Context, uow unitofwork.UnitOfWork, chatId uuid.UUID, outcome turnOutcome) (*entity.Message, bool, error) {
	content := outcome.reply
	if !outcome.generated {
		content = apologyFor(outcome.generation)
	}

	msg := &entity.Message{
		Id:        uuid.New(),
		ChatId:    chatId,
		Role:      entity.RoleAssistant,
		Content:   content,
		CreatedAt: time.Now(),
	}
	err := uow.MessageRepository().Create(ctx, msg)
	if err == nil {
		return msg, outcome.generated, nil
	}

	cs.logger.Error("ChatService", "Failed to store assistant message", map[string]interface{}{
		"chat_id": chatId,
		"error":   err.Error(),
	})

	retryCtx := context.WithoutCancel(ctx)
	apology := &entity.Message{
		Id:        uuid.New(),
		ChatId:    chatId,
		Role:      entity.RoleAssistant,
		Content:   constant.ChatReplyProcessingError,
		CreatedAt: time.Now(),
	}
	if err := cs.uowFactory.NewUnitOfWork(retryCtx).MessageRepository().Create(retryCtx, apology); err != nil {
		return nil, false, fmt.Errorf("store apology: %w", err)
	}
	return apology, false, nil
}

func (cs *chatService) requestExtraction(ctx context.Context, owner memory.Owner, chatId uuid.UUID, outcome turnOutcome) {
	conversation := make([]llm.Message, 0, len(outcome.history)+1)
	conversation = append(conversation, outcome.history...)
	conversation = append(conversation, llm.Message{Role: string(entity.RoleAssistant), Content: outcome.reply})

	payload := dto.MemoryExtractionMessage{
		UserKey:      owner.UserKey,
		SessionKey:   owner.SessionKey,
		ChatId:       chatId.String(),
		Conversation: conversation,
		Reply:        outcome.reply,
	}
	if cs.cfg.ResponseFormat == llm.ResponseFormatJSON && outcome.parsed.ParseError == "" {
		payload.Inline = true
		payload.Candidates = outcome.parsed.Memories
	}

	body, err := json.Marshal(payload)
	if err != nil {
		cs.logger.Error("ChatService", "Failed to encode extraction request", map[string]interface{}{"chat_id": chatId, "error": err.Error()})
		return
	}
	if err := cs.extraction.Publish(ctx, body); err != nil {
		cs.logger.Error("ChatService", "Failed to request memory extraction", map[string]interface{}{"chat_id": chatId, "error": err.Error()})
	}
}

func (cs *chatService) announce(ctx context.Context, chatId uuid.UUID, messages ...*dto.MessageResponse) {
	for _, m := range messages {
		if cs.broadcaster != nil {
			cs.broadcaster.Publish(ctx, chatId, constant.WsEventMessageCreated, m)
		}
		cs.publishEvent(ctx, events.TypeChatMessageCreated, map[string]interface{}{
			"chat_id":    chatId.String(),
			"message_id": m.Id.String(),
			"role":       m.Role,
		})
	}
}

func (cs *chatService) publishEvent(ctx context.Context, eventType string, data map[string]interface{}) {
	if err := cs.events.Publish(ctx, events.New(eventType, data)); err != nil {
		cs.logger.Warn("ChatService", "Failed to publish event", map[string]interface{}{
			"type":  eventType,
			"error": err.Error(),
		})
	}
}
