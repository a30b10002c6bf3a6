package bootstrap

import (
	"context"
	"fmt"
	"time"

	"ai-memory-chat-be/internal/config"
	"ai-memory-chat-be/internal/controller"
	"ai-memory-chat-be/internal/pkg/logger"
	"ai-memory-chat-be/internal/repository/memory"
	"ai-memory-chat-be/internal/repository/unitofwork"
	"ai-memory-chat-be/internal/service"
	"ai-memory-chat-be/internal/websocket"
	"ai-memory-chat-be/pkg/embedding"
	"ai-memory-chat-be/pkg/events"
	"ai-memory-chat-be/pkg/llm"
	"ai-memory-chat-be/pkg/llm/completion"
	"ai-memory-chat-be/pkg/llm/factory"
	"ai-memory-chat-be/pkg/lock"
	memorypkg "ai-memory-chat-be/pkg/memory"
	chromemstore "ai-memory-chat-be/pkg/memory/store/chromem"
	pgvectorstore "ai-memory-chat-be/pkg/memory/store/pgvector"
	pktNats "ai-memory-chat-be/pkg/nats"
	"ai-memory-chat-be/pkg/rag/response"
	"ai-memory-chat-be/pkg/worker"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	embeddingCacheTTL = 30 * time.Minute
	redisLockTTL      = 10 * time.Second
)

type Container struct {
	// Controllers
	ChatController   controller.IChatController
	MemoryController controller.IMemoryController

	// Background services, started and stopped by main.go
	ConsumerService service.IConsumerService
	WebSocketHub    *websocket.Hub
	WorkerPool      *worker.Pool

	Logger logger.ILogger

	pubSub *gochannel.GoChannel
	nats   *pktNats.Publisher
	rdb    *redis.Client
	cfg    *config.Config
}

func NewContainer(db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Core facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Extraction topic
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: int64(cfg.Worker.QueueSize)},
		watermill.NewStdLogger(false, false),
	)

	// 3. AI providers
	embedder, err := embedding.NewProvider(embedding.ProviderConfig{
		Provider:      cfg.Ai.EmbeddingProvider,
		Model:         cfg.Ai.EmbeddingModel,
		Dimensions:    cfg.Ai.EmbeddingDimensions,
		APIKey:        cfg.Keys.OpenAI,
		OpenAIBaseURL: cfg.Ai.OpenAIBaseURL,
		OllamaBaseURL: cfg.Ai.OllamaBaseURL,
		OllamaModel:   cfg.Ai.OllamaModel,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	embedder = embedding.NewCachedProvider(embedder, embeddingCacheTTL)
	sysLogger.Info("Bootstrap", "Using embedding provider", map[string]interface{}{
		"provider":   cfg.Ai.EmbeddingProvider,
		"dimensions": embedder.Dimensions(),
	})

	llmBaseURL := cfg.Ai.OpenAIBaseURL
	if cfg.Ai.LLMProvider == "ollama" {
		llmBaseURL = cfg.Ai.OllamaBaseURL
	}
	llmProvider, err := factory.NewLLMProvider(cfg.Ai.LLMProvider, cfg.Ai.LLMModel, llmBaseURL, cfg.Keys.OpenAI)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	sysLogger.Info("Bootstrap", "Using LLM provider", map[string]interface{}{
		"provider": cfg.Ai.LLMProvider,
		"model":    cfg.Ai.LLMModel,
	})

	completer := completion.NewClient(llmProvider, completion.Config{
		Timeout:       cfg.Completion.Timeout,
		MaxAttempts:   cfg.Completion.MaxAttempts,
		BaseBackoff:   cfg.Completion.BaseBackoff,
		BackoffFactor: cfg.Completion.BackoffFactor,
		Jitter:        cfg.Completion.Jitter,
	}, sysLogger)

	// 4. Infrastructure
	rdb := connectRedis(cfg.App.RedisURL, sysLogger)

	var natsPub *pktNats.Publisher
	var eventPublisher events.Publisher = events.NopPublisher{}
	if cfg.App.NatsURL != "" {
		natsPub, err = pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn("Bootstrap", "Failed to connect to NATS, domain events disabled", map[string]interface{}{"error": err.Error()})
		} else {
			eventPublisher = natsPub
		}
	}

	wsHub := websocket.NewHub(rdb, logger.NewIsolatedLogger("logs/websocket.log"))

	// 5. Memory
	var store memorypkg.Store
	switch cfg.Memory.StoreBackend {
	case "pgvector":
		store = pgvectorstore.New(uowFactory, embedder)
	case "chromem", "":
		store = chromemstore.New(embedder)
	default:
		return nil, fmt.Errorf("unsupported memory store backend: %s", cfg.Memory.StoreBackend)
	}

	var locker lock.Locker
	switch cfg.Memory.LockBackend {
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis lock backend requires a reachable REDIS_URL")
		}
		locker = lock.NewRedisLocker(rdb, redisLockTTL)
	case "local", "":
		locker = lock.NewLocalLocker()
	default:
		return nil, fmt.Errorf("unsupported memory lock backend: %s", cfg.Memory.LockBackend)
	}

	memories := memorypkg.NewManager(memorypkg.Config{
		MaxUserMemories:       cfg.Memory.MaxUserMemories,
		MaxSessionMemories:    cfg.Memory.MaxSessionMemories,
		SimilarityThreshold:   cfg.Memory.SimilarityThreshold,
		ExtractionTemperature: cfg.Memory.ExtractionTemperature,
		ExtractionMaxTokens:   cfg.Memory.ExtractionMaxTokens,
	}, store, locker, completer, response.ParseMemories, sysLogger)

	pool := worker.NewPool(worker.Config{
		Name:           "memory-extraction",
		Workers:        cfg.Worker.Workers,
		QueueSize:      cfg.Worker.QueueSize,
		EnqueueTimeout: cfg.Worker.EnqueueTimeout,
	}, sysLogger)

	// 6. Services
	publisherService := service.NewPublisherService(cfg.Worker.Topic, pubSub)
	consumerService := service.NewMemoryExtractionConsumer(pubSub, cfg.Worker.Topic, pool, memories, sysLogger)

	chatService := service.NewChatService(
		uowFactory,
		memories,
		completer,
		publisherService,
		memory.NewDebugRepository(),
		wsHub,
		eventPublisher,
		service.ChatServiceConfig{
			MaxCompletionTokens: cfg.Completion.MaxCompletionTokens,
			Temperature:         cfg.Completion.Temperature,
			ResponseFormat:      llm.ParseResponseFormat(cfg.Completion.ResponseFormat),
			DebugMode:           cfg.App.DebugMode,
			AllowDebugFlag:      cfg.App.Environment != "production",
		},
		sysLogger,
	)
	memoryService := service.NewMemoryService(memories, eventPublisher, sysLogger)

	// 7. Controllers
	return &Container{
		ChatController:   controller.NewChatController(chatService, wsHub, sysLogger),
		MemoryController: controller.NewMemoryController(memoryService),
		ConsumerService:  consumerService,
		WebSocketHub:     wsHub,
		WorkerPool:       pool,
		Logger:           sysLogger,
		pubSub:           pubSub,
		nats:             natsPub,
		rdb:              rdb,
		cfg:              cfg,
	}, nil
}

// connectRedis returns nil when no URL is configured or Redis is unreachable.
func connectRedis(url string, log logger.ILogger) *redis.Client {
	if url == "" {
		return nil
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Warn("Bootstrap", "Failed to parse Redis URL, using it as address", map[string]interface{}{"error": err.Error()})
		opt = &redis.Options{Addr: url}
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("Bootstrap", "Redis unreachable, running single instance", map[string]interface{}{"error": err.Error()})
		_ = rdb.Close()
		return nil
	}
	return rdb
}

// Shutdown stops intake first, then drains queued extraction jobs within the
// configured grace period, then releases connections.
func (c *Container) Shutdown(ctx context.Context) {
	if err := c.pubSub.Close(); err != nil {
		c.Logger.Warn("Bootstrap", "Failed to close extraction topic", map[string]interface{}{"error": err.Error()})
	}

	graceCtx, cancel := context.WithTimeout(ctx, c.cfg.Worker.ShutdownGrace)
	defer cancel()
	if err := c.WorkerPool.Shutdown(graceCtx); err != nil {
		c.Logger.Warn("Bootstrap", "Extraction jobs abandoned at shutdown", map[string]interface{}{"error": err.Error()})
	}

	if c.nats != nil {
		c.nats.Close()
	}
	if c.rdb != nil {
		_ = c.rdb.Close()
	}
	_ = c.Logger.Sync()
}
