package bootstrap

import (
	"context"
	"log"

	"llamatalks-be/internal/config"
	"llamatalks-be/internal/controller"
	"llamatalks-be/internal/pkg/logger"
	"llamatalks-be/internal/repository/contract"
	"llamatalks-be/internal/repository/memory"
	redisrepo "llamatalks-be/internal/repository/redis"
	"llamatalks-be/internal/repository/unitofwork"
	"llamatalks-be/internal/service"
	"llamatalks-be/pkg/document"
	"llamatalks-be/pkg/embedding"
	"llamatalks-be/pkg/events"
	"llamatalks-be/pkg/llm/factory"
	pktNats "llamatalks-be/pkg/nats"
	"llamatalks-be/pkg/rag/retrieval"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ChatController      controller.IChatController
	IngestionController controller.IIngestionController
	HealthController    controller.IHealthController

	// Services, exposed for commands that bypass HTTP
	ChatService      service.IChatService
	IngestionService service.IIngestionService

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	Logger logger.ILogger

	closers []func()
}

// Close releases broker and cache connections.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	_ = c.Logger.Sync()
}

// NewContainer wires the application. A nil db selects the in-memory stores.
func NewContainer(db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	ingestionLogger := logger.NewIsolatedLogger(cfg.App.IngestionLogPath)
	c := &Container{Logger: sysLogger}
	c.closers = append(c.closers, func() { _ = ingestionLogger.Sync() })

	var uowFactory unitofwork.RepositoryFactory
	if db != nil {
		uowFactory = unitofwork.NewRepositoryFactory(db)
	} else {
		log.Println("[WARN] DB_CONNECTION_STRING not set, using in-memory stores")
		uowFactory = memory.NewRepositoryFactory(memory.NewStore())
	}

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	var eventPublisher events.Publisher = events.NoopPublisher{}
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	} else {
		eventPublisher = natsPub
		c.closers = append(c.closers, natsPub.Close)
	}

	// Redis
	batchRepo, rdb := newBatchRepository(cfg, c)

	// 3. AI Providers
	embeddingProvider := embedding.NewOllamaProvider(
		cfg.Ai.OllamaBaseURL,
		cfg.Ai.EmbeddingModel,
		cfg.Ai.EmbeddingDimensions,
		cfg.Ai.EmbeddingTimeout,
		cfg.Ai.MaxRetries,
	)
	log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s, %d dims)", cfg.Ai.EmbeddingModel, cfg.Ai.EmbeddingDimensions)

	llmProvider, err := factory.NewLLMProvider(factory.Config{
		Provider:   "ollama",
		Model:      cfg.Ai.ChatModel,
		BaseURL:    cfg.Ai.OllamaBaseURL,
		Timeout:    cfg.Ai.ChatTimeout,
		MaxRetries: cfg.Ai.MaxRetries,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] Using LLM Provider: OLLAMA (%s)", cfg.Ai.ChatModel)

	var fallbackParser document.Parser
	if cfg.Ingestion.TikaURL != "" {
		fallbackParser = document.NewTikaParser(cfg.Ingestion.TikaURL, cfg.Ai.EmbeddingTimeout, cfg.Ai.MaxRetries)
	}

	// 4. Services
	augmenter := retrieval.NewAugmenter(
		embeddingProvider,
		uowFactory.NewUnitOfWork(context.Background()).EmbeddingRepository(),
		cfg.Rag.MaxResults,
		cfg.Rag.MinScore,
	)

	chatService := service.NewChatService(
		uowFactory,
		llmProvider,
		augmenter,
		eventPublisher,
		sysLogger,
		service.ChatServiceConfig{
			MemoryWindowSize: cfg.Rag.MemoryWindowSize,
			StreamBufferSize: cfg.Rag.StreamBufferSize,
			SerializeTurns:   cfg.Rag.SerializeTurns,
			LockWaitTimeout:  cfg.Rag.LockWaitTimeout,
		},
	)

	publisherService := service.NewPublisherService(cfg.Ingestion.Topic, pubSub)
	ingestionService := service.NewIngestionService(
		uowFactory,
		batchRepo,
		document.NewLoader(fallbackParser),
		embeddingProvider,
		publisherService,
		eventPublisher,
		ingestionLogger,
		service.IngestionServiceConfig{
			ChunkSize:     cfg.Ingestion.ChunkSize,
			ChunkOverlap:  cfg.Ingestion.ChunkOverlap,
			DedupStrategy: cfg.Ingestion.DedupStrategy,
		},
	)
	consumerService := service.NewConsumerService(
		pubSub,
		cfg.Ingestion.Topic,
		ingestionService,
		ingestionLogger,
	)

	// 5. Controllers
	checks := map[string]controller.HealthCheck{}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
	}
	checks["database"] = uowFactory.Ping

	c.ChatController = controller.NewChatController(chatService, sysLogger)
	c.IngestionController = controller.NewIngestionController(ingestionService)
	c.HealthController = controller.NewHealthController(checks)
	c.ChatService = chatService
	c.IngestionService = ingestionService
	c.ConsumerService = consumerService
	return c, nil
}

// newBatchRepository uses Redis when it answers a ping and a process-local
// cache otherwise.
func newBatchRepository(cfg *config.Config, c *Container) (contract.BatchRepository, *redis.Client) {
	if cfg.App.RedisURL == "" {
		return memory.NewBatchRepository(), nil
	}

	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v. Batch status kept in memory", err)
		_ = rdb.Close()
		return memory.NewBatchRepository(), nil
	}

	c.closers = append(c.closers, func() { _ = rdb.Close() })
	return redisrepo.NewBatchRepository(rdb), rdb
}
