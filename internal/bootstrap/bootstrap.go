package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/docvault/internal/config"
	"github.com/kirillkom/docvault/internal/core/ports"
	"github.com/kirillkom/docvault/internal/core/usecase"
	"github.com/kirillkom/docvault/internal/infrastructure/chunking"
	"github.com/kirillkom/docvault/internal/infrastructure/embedding"
	"github.com/kirillkom/docvault/internal/infrastructure/extractor"
	natsqueue "github.com/kirillkom/docvault/internal/infrastructure/queue/nats"
	"github.com/kirillkom/docvault/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/docvault/internal/infrastructure/resilience"
	"github.com/kirillkom/docvault/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/docvault/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue ports.JobQueue
	Jobs  *usecase.JobCoordinator

	IngestUC  ports.DocumentIngestor
	ProcessUC ports.DocumentProcessor
	ReadUC    ports.DocumentReader
	DeleteUC  ports.DocumentRemover
	SearchUC  ports.SearchService

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	docs := postgres.NewDocumentRepository(db)
	versions := postgres.NewVersionRepository(db)
	files := postgres.NewFileRepository(db)
	chunks := postgres.NewChunkRepository(db)
	embeddings := postgres.NewEmbeddingRepository(db)
	aclRepo := postgres.NewACLRepository(db)
	jobRepo := postgres.NewJobRepository(db)
	searchLogs := postgres.NewSearchLogRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultPolicy(), logger)

	queue, err := natsqueue.New(cfg.NATSURL, cfg.NATSStream, cfg.NATSSubject, cfg.NATSDurable, logger, natsqueue.Options{
		Executor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init job queue: %w", err)
	}

	embedder := embedding.New(cfg.OllamaURL, cfg.OllamaEmbedModel, cfg.EmbedBatchSize, executor)
	vectorIndex := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, 0, executor)

	chunker, err := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init chunker: %w", err)
	}
	textExtractor := extractor.New()

	resolver := usecase.NewACLResolverUseCase(aclRepo, docs)
	jobs := usecase.NewJobCoordinator(jobRepo, queue, logger)

	ingestUC := usecase.NewIngestDocumentUseCase(docs, versions, files, aclRepo, storage, resolver, jobs)
	processUC := usecase.NewProcessDocumentUseCase(
		docs, files, chunks, embeddings, aclRepo, storage,
		textExtractor, chunker, embedder, vectorIndex,
		usecase.ProcessConfig{
			IndexName:    cfg.QdrantCollection,
			ModelName:    cfg.OllamaEmbedModel,
			ModelVersion: cfg.EmbeddingModelVersion,
		},
		logger,
	)
	readUC := usecase.NewDocumentReadUseCase(docs, resolver)
	deleteUC := usecase.NewDeleteDocumentUseCase(docs, embeddings, resolver, vectorIndex, logger)
	searchUC := usecase.NewSearchUseCase(embedder, vectorIndex, resolver, docs, chunks, searchLogs, logger)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue: queue,
		Jobs:  jobs,

		IngestUC:  ingestUC,
		ProcessUC: processUC,
		ReadUC:    readUC,
		DeleteUC:  deleteUC,
		SearchUC:  searchUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
