package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"docchat/internal/ai"
	"docchat/internal/app"
	"docchat/internal/cache"
	"docchat/internal/chunker"
	"docchat/internal/config"
	"docchat/internal/embedding"
	"docchat/internal/model"
	"docchat/internal/observability"
	"docchat/internal/pkg/pdfextract"
	"docchat/internal/platform/database"
	rabbitmqClient "docchat/internal/platform/rabbitmq"
	redisClient "docchat/internal/platform/redis"
	"docchat/internal/repository"
	"docchat/internal/retrieval"
	"docchat/internal/upload"
	"docchat/internal/worker"
)

type Options struct {
	// Consume starts the RabbitMQ processing consumer when the queue driver
	// is rabbitmq. One-shot commands leave it off.
	Consume bool
}

type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Redis    *redis.Client
	MQConn   *amqp.Connection
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	Sessions  *app.SessionService
	Uploads   *app.UploadService
	Answers   *app.AskService
	Processor *app.Processor

	inProcess       *worker.InProcessQueue
	consumer        *worker.ProcessingConsumer
	shutdownTracing func(context.Context) error

	StartedAt time.Time
}

func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, StartedAt: time.Now()}
	if err := a.init(ctx, opts); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, opts Options) error {
	cfg := a.Config

	shutdownTracing, err := observability.SetupTracing(cfg.App.Name, cfg.Telemetry.TraceStdout)
	if err != nil {
		return err
	}
	a.shutdownTracing = shutdownTracing

	a.Registry = prometheus.NewRegistry()
	if cfg.Telemetry.MetricsEnabled {
		a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		a.Metrics = observability.NewMetrics(a.Registry)
	}

	a.DB, err = database.New(ctx, cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		return err
	}
	if err := database.Migrate(a.DB); err != nil {
		return err
	}

	var history app.HistoryCache
	if cfg.Redis.Enabled {
		a.Redis, err = redisClient.New(ctx, redisClient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		history = cache.NewHistoryCache(
			a.Redis,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
		)
	}

	sessionRepo := repository.NewSessionRepository(a.DB)
	documentRepo := repository.NewDocumentRepository(a.DB)
	chunkRepo := repository.NewChunkRepository(a.DB)
	messageRepo := repository.NewMessageRepository(a.DB)

	store := upload.NewStore(cfg.Upload.UploadDir, cfg.Upload.FilesDir)
	if err := store.EnsureDirs(); err != nil {
		return err
	}
	signer, err := upload.NewSigner(cfg.Upload.Secret, cfg.TicketTTL())
	if err != nil {
		return err
	}

	provider, err := newEmbeddingProvider(cfg.Embedding)
	if err != nil {
		return err
	}
	gateway := embedding.NewGateway(provider, model.EmbeddingDimensions, a.Metrics)

	a.Processor = app.NewProcessor(
		documentRepo,
		pdfextract.ExtractFile,
		chunker.NewHybrid(chunker.Options{}),
		gateway,
		store,
		a.Metrics,
	)

	queue, err := a.newQueue(ctx, opts)
	if err != nil {
		return err
	}

	a.Sessions = app.NewSessionService(sessionRepo, documentRepo, messageRepo, history, store)
	a.Uploads = app.NewUploadService(sessionRepo, documentRepo, history, signer, store, queue, a.Metrics, app.UploadLimits{
		MaxUploadBytes: cfg.Upload.MaxUploadBytes,
		MaxChunkBytes:  cfg.Upload.MaxChunkBytes,
	})

	engine := retrieval.NewEngine(gateway, chunkRepo, a.Metrics, cfg.Retrieval.DefaultTopK, cfg.Retrieval.MaxTopK)
	a.Answers = app.NewAskService(
		sessionRepo,
		documentRepo,
		messageRepo,
		history,
		engine,
		newCompletionStreamer(cfg.LLM),
		a.Metrics,
		cfg.StreamTimeout(),
	)
	return nil
}

func (a *App) newQueue(ctx context.Context, opts Options) (app.Queue, error) {
	cfg := a.Config
	if cfg.Queue.Driver != "rabbitmq" {
		a.inProcess = worker.NewInProcessQueue(a.Processor, cfg.Queue.Workers, cfg.JobTimeout())
		return a.inProcess, nil
	}

	conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}
	a.MQConn = conn

	if opts.Consume {
		a.consumer = worker.NewProcessingConsumer(conn, a.Processor, cfg.RabbitMQ.ProcessingQueue, cfg.Queue.Workers, cfg.JobTimeout())
		if err := a.consumer.Start(ctx); err != nil {
			return nil, fmt.Errorf("start processing consumer failed: %w", err)
		}
	}
	return worker.NewRabbitMQQueue(rabbitmqClient.NewPublisher(conn, cfg.RabbitMQ.ProcessingQueue)), nil
}

func newEmbeddingProvider(cfg config.EmbeddingConfig) (embedding.Provider, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.APIKey == "" {
			log.Warn().Msg("embedding api key not set, using hash fallback embeddings")
			return nil, nil
		}
		return ai.NewOpenAIEmbedder(ai.EmbeddingConfig{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: model.EmbeddingDimensions,
		})
	case "ollama":
		return ai.NewOllamaEmbedder(cfg.OllamaURL, cfg.Model)
	default:
		log.Info().Msg("embedding provider disabled, using hash fallback embeddings")
		return nil, nil
	}
}

// newCompletionStreamer returns nil when no provider is configured, which the
// answer service reports as a configuration error per request.
func newCompletionStreamer(cfg config.LLMConfig) app.CompletionStreamer {
	client, err := ai.NewChatClient(ai.ChatConfig{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Model: cfg.Model})
	if err != nil {
		log.Warn().Err(err).Msg("chat completion disabled")
		return nil
	}
	return client
}

func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.consumer != nil {
		a.consumer.Close()
	}
	if a.inProcess != nil {
		if err := a.inProcess.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain processing queue: %w", err))
		}
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.DB != nil {
		if err := database.Close(a.DB); err != nil {
			errs = append(errs, err)
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
