// Package app wires the collaborators shared by the api, the worker and the
// cli from one Config.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docrag/internal/activities"
	"docrag/internal/answer"
	"docrag/internal/blob"
	"docrag/internal/config"
	"docrag/internal/extract"
	"docrag/internal/ingest"
	"docrag/internal/logging"
	"docrag/internal/providers"
	"docrag/internal/rag"
	"docrag/internal/retrieval"
	"docrag/internal/storage"
	"docrag/internal/vector"
	"docrag/internal/workflows"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

const connectTimeout = 10 * time.Second

type App struct {
	Config   config.Config
	Logger   *zap.Logger
	DB       *storage.DB
	Docs     storage.DocumentStore
	Blobs    blob.Store
	Files    *blob.FSStore
	Index    vector.Index
	Embedder providers.Embedder
	LLM      *providers.Manager

	temporal client.Client
}

// New connects to Postgres and builds the configured blob store, vector
// index and providers. Temporal is dialed lazily by Temporal.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	db, err := storage.NewDB(cctx, cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.Docs = storage.NewDocumentRepo(db)

	if err := a.buildBlobs(cctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildIndex(cctx); err != nil {
		a.Close()
		return nil, err
	}
	if a.Embedder, err = providers.NewEmbedder(cfg.Embed); err != nil {
		a.Close()
		return nil, err
	}
	if a.LLM, err = providers.NewManager(cfg.LLM); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("collaborators ready",
		zap.String("blob_backend", cfg.Blob.Backend),
		zap.String("vector_backend", cfg.Vector.Backend),
		zap.String("embed_model", a.Embedder.Model()),
		zap.String("llm_model", a.LLM.Model()),
	)
	return a, nil
}

func (a *App) buildBlobs(ctx context.Context) error {
	cfg := a.Config.Blob
	var s blob.Store
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "fs":
		fs, err := blob.NewFSStore(cfg.Root, a.Config.PublicBaseURL, cfg.SigningKey, cfg.URLTTL)
		if err != nil {
			return err
		}
		a.Files = fs
		s = fs
	case "s3":
		s3, err := blob.NewS3Store(ctx, blob.S3Config{
			Bucket:       cfg.Bucket,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			AccessKey:    cfg.AccessKey,
			SecretKey:    cfg.SecretKey,
			UsePathStyle: cfg.UsePathStyle,
			URLTTL:       cfg.URLTTL,
		})
		if err != nil {
			return err
		}
		s = s3
	case "memory":
		s = blob.NewMemoryStore(cfg.URLTTL)
	default:
		return fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
	a.Blobs = blob.NewCachedLinks(s)
	return nil
}

func (a *App) buildIndex(ctx context.Context) error {
	cfg := a.Config.Vector
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "pgvector":
		a.Index = vector.NewPgIndex(a.DB.Pool)
	case "qdrant":
		q := vector.NewQdrantIndex(vector.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Timeout:    a.Config.Retry.Timeout,
		})
		if err := q.EnsureCollection(ctx, a.Config.Embed.Dim); err != nil {
			return err
		}
		a.Index = q
	case "memory":
		a.Index = vector.NewMemoryIndex()
	default:
		return fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
	return nil
}

// Temporal returns the shared Temporal client, dialing it on first use.
func (a *App) Temporal() (client.Client, error) {
	if a.temporal != nil {
		return a.temporal, nil
	}
	c, err := client.Dial(client.Options{
		HostPort:      a.Config.Temporal.Address,
		Namespace:     a.Config.Temporal.Namespace,
		Logger:        logging.NewTemporalLogger(a.Logger),
		DataConverter: workflows.DataConverter(),
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal %s: %w", a.Config.Temporal.Address, err)
	}
	a.temporal = c
	return c, nil
}

func (a *App) Activities() (*activities.Activities, error) {
	return activities.New(a.Config, activities.Deps{
		Docs:      a.Docs,
		Blobs:     a.Blobs,
		Index:     a.Index,
		Embedder:  a.Embedder,
		Extractor: extract.New(a.Config.Extract),
	})
}

// RAG builds the document service. Ingestion runs on the Temporal workers.
func (a *App) RAG() (*rag.Service, error) {
	tc, err := a.Temporal()
	if err != nil {
		return nil, err
	}
	runner := ingest.NewTemporalRunner(tc, a.Config.Temporal.TaskQueue)
	ing := ingest.NewService(a.Blobs, a.Docs, runner, a.Config)
	r := retrieval.New(a.Embedder, a.Index, a.Docs, a.Config.Retrieval, a.Config.Retry)
	c := answer.New(a.LLM, a.Blobs, a.Config.Answer, a.Config.LLM, a.Config.Retry)
	return rag.NewService(ing, r, c, a.Docs, a.Blobs), nil
}

func (a *App) Close() {
	if a.temporal != nil {
		a.temporal.Close()
	}
	a.DB.Close()
}
