package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"golang.org/x/crypto/bcrypt"

	"github.com/aerodocs/docuchat/internal/config"
	"github.com/aerodocs/docuchat/internal/core/domain"
	"github.com/aerodocs/docuchat/internal/core/ports"
	"github.com/aerodocs/docuchat/internal/core/usecase"
	"github.com/aerodocs/docuchat/internal/infrastructure/chunking"
	"github.com/aerodocs/docuchat/internal/infrastructure/extractor"
	historystore "github.com/aerodocs/docuchat/internal/infrastructure/history/neo4j"
	"github.com/aerodocs/docuchat/internal/infrastructure/llm/ollama"
	natsqueue "github.com/aerodocs/docuchat/internal/infrastructure/queue/nats"
	"github.com/aerodocs/docuchat/internal/infrastructure/repository/postgres"
	"github.com/aerodocs/docuchat/internal/infrastructure/resilience"
	"github.com/aerodocs/docuchat/internal/infrastructure/storage/localfs"
	"github.com/aerodocs/docuchat/internal/infrastructure/vector/qdrant"
)

// App wires shared clients once and exposes the use cases both binaries
// mount.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue     ports.MessageQueue
	Repo      ports.DocumentRepository
	Users     ports.UserStore
	ChatUC    *usecase.ChatUseCase
	IngestUC  ports.DocumentIngestor
	ProcessUC ports.DocumentProcessor

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, telemetry usecase.TurnTelemetry) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	conversations := postgres.NewConversationRepository(db)
	users := postgres.NewUserRepository(db)
	if err := seedAdminUser(ctx, users, cfg, logger); err != nil {
		return nil, fmt.Errorf("seed admin user: %w", err)
	}

	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""))
	if err != nil {
		return nil, fmt.Errorf("open neo4j: %w", err)
	}
	history := historystore.NewHistoryStore(driver)
	if err := history.Ping(ctx); err != nil {
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := natsqueue.New(cfg.NATSURL, cfg.NATSIngestSubject, cfg.NATSEventPrefix, natsqueue.Options{
		Executor: resilience.NewExecutor("nats", resilience.DefaultConfig(), natsqueue.ClassifyError, logger),
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaChatModel, cfg.OllamaEmbedModel, resilience.DefaultConfig(), logger)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollectionPrefix)
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	extract := extractor.New(storage)

	retrieverTimeout := time.Duration(cfg.ChatRetrieverTimeoutSec) * time.Second
	retrievers := map[domain.Partition][]ports.Retriever{}
	for _, partition := range []domain.Partition{domain.PartitionPublic, domain.PartitionSecure} {
		retrievers[partition] = []ports.Retriever{
			usecase.NewDenseRetriever(embedder, vectorDB, partition, retrieverTimeout),
			usecase.NewLexicalRetriever(vectorDB, partition, retrieverTimeout),
		}
	}

	chatUC := usecase.NewChatUseCase(
		usecase.NewPartitionRouter(),
		usecase.NewQueryRewriter(generator, cfg.ChatRewriteFallback),
		retrievers,
		generator,
		history,
		conversations,
		queue,
		telemetry,
		usecase.ChatLimits{
			TopK:              cfg.ChatTopK,
			RRFK:              cfg.ChatRRFK,
			DenseWeight:       cfg.ChatDenseWeight,
			LexicalWeight:     cfg.ChatLexicalWeight,
			RetrievalWorkers:  cfg.ChatRetrievalWorkers,
			GenerationTimeout: time.Duration(cfg.ChatGenerationTimeoutSec) * time.Second,
		},
		logger,
	)

	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, queue, logger)
	processUC := usecase.NewProcessDocumentUseCase(repo, extract, chunker, embedder, vectorDB, logger)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:     queue,
		Repo:      repo,
		Users:     users,
		ChatUC:    chatUC,
		IngestUC:  ingestUC,
		ProcessUC: processUC,

		closeFn: func() {
			queue.Close()
			_ = driver.Close(context.Background())
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// seedAdminUser creates the configured admin account on first start. Without
// it a fresh deployment has no credentials that could reach the admin-gated
// user creation endpoint.
func seedAdminUser(ctx context.Context, users ports.UserStore, cfg config.Config, logger *slog.Logger) error {
	if cfg.AuthAdminUsername == "" || cfg.AuthAdminPassword == "" {
		return nil
	}

	_, err := users.GetByUsername(ctx, cfg.AuthAdminUsername)
	if err == nil {
		return nil
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AuthAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := users.Create(ctx, &domain.User{
		ID:           uuid.NewString(),
		Username:     cfg.AuthAdminUsername,
		PasswordHash: string(hash),
		Role:         domain.RoleAdmin,
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		return err
	}

	logger.Info("seeded admin user", "username", cfg.AuthAdminUsername)
	return nil
}
