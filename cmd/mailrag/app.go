package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/mailrag/internal/config"
	"github.com/kailas-cloud/mailrag/internal/db"
	dbFile "github.com/kailas-cloud/mailrag/internal/db/file"
	dbMemory "github.com/kailas-cloud/mailrag/internal/db/memory"
	dbMinio "github.com/kailas-cloud/mailrag/internal/db/minio"
	dbRedis "github.com/kailas-cloud/mailrag/internal/db/redis"
	"github.com/kailas-cloud/mailrag/internal/domain"
	"github.com/kailas-cloud/mailrag/internal/metrics"
	budgetrepo "github.com/kailas-cloud/mailrag/internal/repository/budget"
	emailrepo "github.com/kailas-cloud/mailrag/internal/repository/email"
	"github.com/kailas-cloud/mailrag/internal/repository/embcache"
	"github.com/kailas-cloud/mailrag/internal/repository/vector"
	"github.com/kailas-cloud/mailrag/internal/transport/local"
	openaiTransport "github.com/kailas-cloud/mailrag/internal/transport/openai"
	"github.com/kailas-cloud/mailrag/internal/usecase/category"
	embeddinguc "github.com/kailas-cloud/mailrag/internal/usecase/embedding"
	"github.com/kailas-cloud/mailrag/internal/usecase/generation"
	healthuc "github.com/kailas-cloud/mailrag/internal/usecase/health"
	indexinguc "github.com/kailas-cloud/mailrag/internal/usecase/indexing"
	replyuc "github.com/kailas-cloud/mailrag/internal/usecase/reply"
	retrievaluc "github.com/kailas-cloud/mailrag/internal/usecase/retrieval"
	usageuc "github.com/kailas-cloud/mailrag/internal/usecase/usage"
)

// app is the wired object graph shared by every mode.
type app struct {
	cfg       config.Config
	logger    *zap.Logger
	redis     *dbRedis.Store
	provider  *embeddinguc.Provider
	store     *vector.Store
	emails    *emailrepo.FileSource
	indexer   *indexinguc.Service
	replier   *replyuc.Service
	completer *generation.ResilientCompleter
	health    *healthuc.Service
	usage     *usageuc.Service
}

// buildApp is the composition root: storage, embedding chain, vector store, use cases.
func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if needsRedis(cfg) {
		rs, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		a.redis = rs
		timeout := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
		if err := rs.WaitForReady(ctx, timeout); err != nil {
			a.close()
			return nil, fmt.Errorf("database not ready: %w", err)
		}
		logger.Info("Connected to database", zap.Strings("addrs", cfg.Database.Addrs))
	}

	blob, err := a.buildBlob()
	if err != nil {
		a.close()
		return nil, err
	}

	provider, tracker, err := a.buildProvider(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.provider = provider
	if err := provider.Warmup(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("embedding warm-up: %w", err)
	}

	var docEmbedder, queryEmbedder domain.Embedder = provider, provider
	if cfg.Embedding.DocumentInstruction != "" {
		docEmbedder = domain.NewInstructionEmbedder(provider, cfg.Embedding.DocumentInstruction)
	}
	if cfg.Embedding.QueryInstruction != "" {
		queryEmbedder = domain.NewInstructionEmbedder(provider, cfg.Embedding.QueryInstruction)
	}

	store, err := vector.Open(ctx, blob, docEmbedder, vector.Options{
		Dimension:   provider.Dimension(),
		Compression: vector.Compression(cfg.Storage.Compression),
		Logger:      logger,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	a.store = store

	a.emails = emailrepo.NewFileSource(cfg.Emails.Path, logger)

	var categorize indexinguc.Categorizer
	if cfg.Emails.Categorize {
		categorize = category.Fill
	}
	a.indexer = indexinguc.New(store, categorize, logger)

	retriever := retrievaluc.New(queryEmbedder, store)

	base := openaiTransport.NewCompleter(&openaiTransport.Config{
		APIKey:   cfg.Generation.APIKey,
		BaseURL:  cfg.Generation.BaseURL,
		Model:    cfg.Generation.Model,
		Provider: "openai",
		Logger:   logger,
	})
	a.completer = generation.NewResilientCompleter(base, generation.Config{
		MaxRetries:      cfg.Generation.MaxRetries,
		BreakerFailures: cfg.Generation.BreakerFailures,
		BreakerTimeout:  time.Duration(cfg.Generation.BreakerTimeoutSec) * time.Second,
	}, logger)

	a.replier = replyuc.New(retriever, a.completer, a.emails, replyuc.Options{
		TopK:        cfg.Retrieval.TopK,
		MaxTokens:   cfg.Generation.MaxTokens,
		Temperature: cfg.Generation.Temperature,
		Timeout:     cfg.GenerationTimeout(),
	})

	a.health = healthuc.New(store, provider, a.completer)

	// Pass a nil interface, not a typed nil pointer, when no budget is configured.
	var budgetReader usageuc.BudgetReader
	if tracker != nil {
		budgetReader = tracker
	}
	a.usage = usageuc.New(budgetReader)
	return a, nil
}

func needsRedis(cfg config.Config) bool {
	return cfg.Storage.Driver == config.DriverRedis ||
		cfg.Storage.Driver == config.DriverValkey ||
		cfg.Embedding.Cache == config.CacheRedis ||
		cfg.Embedding.Budget.Persist
}

func (a *app) buildBlob() (db.BlobStore, error) {
	sc := a.cfg.Storage
	switch sc.Driver {
	case config.DriverFile:
		return dbFile.NewBlob(sc.Path), nil
	case config.DriverRedis, config.DriverValkey:
		return a.redis.Blob(sc.Key), nil
	case config.DriverMinio:
		blob, err := dbMinio.NewBlob(dbMinio.Config{
			Endpoint:  sc.Minio.Endpoint,
			AccessKey: sc.Minio.AccessKey,
			SecretKey: sc.Minio.SecretKey,
			UseSSL:    sc.Minio.UseSSL,
			Bucket:    sc.Minio.Bucket,
			Object:    sc.Key,
		})
		if err != nil {
			return nil, fmt.Errorf("create minio blob: %w", err)
		}
		return blob, nil
	case config.DriverMemory:
		a.logger.Warn("Memory storage driver: the collection is lost on exit")
		return dbMemory.NewBlob(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
	}
}

// buildProvider assembles the decorator chain:
// transport -> rate limit -> cache -> instrumented (budget) -> Provider.
func (a *app) buildProvider(ctx context.Context) (*embeddinguc.Provider, *embeddinguc.BudgetTracker, error) {
	ec := a.cfg.Embedding

	var transport domain.Embedder
	switch ec.Provider {
	case config.ProviderOpenAI:
		transport = openaiTransport.NewEmbedder(&openaiTransport.Config{
			APIKey:     ec.APIKey,
			BaseURL:    ec.BaseURL,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			Provider:   ec.Provider,
			Logger:     a.logger,
		})
	case config.ProviderHashing:
		h, err := local.NewHashingEmbedder(ec.Dimensions)
		if err != nil {
			return nil, nil, fmt.Errorf("create hashing embedder: %w", err)
		}
		transport = h
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider %q", ec.Provider)
	}

	var embedder domain.Embedder = transport
	if ec.RateLimitRPS > 0 {
		embedder = embeddinguc.NewRateLimitedEmbedder(embedder, ec.RateLimitRPS, ec.RateBurst)
	}

	switch ec.Cache {
	case config.CacheLRU:
		lru, err := embcache.NewLRUStore(ec.CacheSize)
		if err != nil {
			return nil, nil, fmt.Errorf("create embedding cache: %w", err)
		}
		embedder = embcache.New(embedder, lru, ec.Model, metrics.EmbeddingCacheTotal, a.logger).
			WithCallTimeout(time.Duration(ec.TimeoutSec) * time.Second)
	case config.CacheRedis:
		embedder = embcache.New(embedder, a.redis, ec.Model, metrics.EmbeddingCacheTotal, a.logger).
			WithCallTimeout(time.Duration(ec.TimeoutSec) * time.Second)
	}

	var tracker *embeddinguc.BudgetTracker
	var budget embeddinguc.BudgetChecker
	if ec.Budget.DailyTokenLimit > 0 || ec.Budget.MonthlyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if ec.Budget.Action == string(embeddinguc.BudgetActionReject) {
			action = embeddinguc.BudgetActionReject
		}
		tracker = embeddinguc.NewBudgetTracker(
			ec.Provider, ec.Budget.DailyTokenLimit, ec.Budget.MonthlyTokenLimit, action, a.logger,
		)
		if ec.Budget.Persist {
			tracker.WithStore(ctx, budgetrepo.New(a.redis, budgetrepo.DefaultDailyTTL, budgetrepo.DefaultMonthlyTTL))
		}
		budget = tracker
	}
	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, ec.Provider, ec.Model, budget, a.logger)

	provider := embeddinguc.NewProvider(embedder, embeddinguc.ProviderConfig{
		Provider:      ec.Provider,
		Model:         ec.Model,
		Dimension:     ec.Dimensions,
		Timeout:       a.cfg.EmbeddingTimeout(),
		MaxInputChars: ec.MaxInputChars,
	}, a.logger)

	a.logger.Info("Embedding provider created",
		zap.String("provider", ec.Provider),
		zap.String("model", ec.Model),
		zap.String("cache", ec.Cache),
		zap.Float64("rate_limit_rps", ec.RateLimitRPS),
	)
	return provider, tracker, nil
}

// index runs one indexing pass over the configured mailbox export.
func (a *app) index(ctx context.Context, mode indexinguc.Mode) (indexinguc.Report, error) {
	return a.indexer.IndexSource(ctx, a.emails, mode)
}

func (a *app) close() {
	var errs []error
	if a.store != nil {
		a.store.Close()
	}
	if a.provider != nil {
		errs = append(errs, a.provider.Close())
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("Shutdown cleanup failed", zap.Error(err))
	}
}
