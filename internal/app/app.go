// Package app wires the engine's components from configuration. Both the API
// server and the CLI build on it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/landrecords/rag-engine/internal/cache"
	"github.com/landrecords/rag-engine/internal/config"
	"github.com/landrecords/rag-engine/internal/domain"
	"github.com/landrecords/rag-engine/internal/extract"
	"github.com/landrecords/rag-engine/internal/jobs"
	"github.com/landrecords/rag-engine/internal/observability"
	"github.com/landrecords/rag-engine/internal/ocr"
	"github.com/landrecords/rag-engine/internal/ocr/tesseract"
	"github.com/landrecords/rag-engine/internal/pipeline"
	"github.com/landrecords/rag-engine/internal/planner"
	"github.com/landrecords/rag-engine/internal/progress"
	"github.com/landrecords/rag-engine/internal/search"
	"github.com/landrecords/rag-engine/internal/storage"
	"github.com/landrecords/rag-engine/internal/textclean"
	"github.com/landrecords/rag-engine/internal/translate"
)

// App holds the long-lived services of one engine process.
type App struct {
	Config    *config.Config
	Logger    *observability.Logger
	Manager   *jobs.Manager
	Cache     *cache.Store
	Progress  *progress.Tracker
	Index     *search.Index
	Extractor *extract.FitzExtractor

	db     *sql.DB
	cancel context.CancelFunc
}

// New builds every component named by cfg. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*App, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	backend, db, err := newCacheBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	store := cache.NewStore(backend, logger.WithOperation("cache"))

	engine, err := newOCREngine(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	translator, err := newTranslator(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	extractor := extract.NewFitzExtractor(extract.Options{
		DPI:         cfg.Extraction.DPI,
		JPEGQuality: cfg.Extraction.JPEGQuality,
		ScratchDir:  cfg.Extraction.ScratchDir,
	}, logger.WithOperation("extract"))

	tracker := progress.NewTracker(logger.WithOperation("progress"))
	index := search.NewIndex()

	executor := pipeline.New(pipeline.Config{
		Workers: cfg.Pipeline.Workers,
		Retry: pipeline.RetryConfig{
			MaxRetries:     cfg.Pipeline.MaxRetries,
			InitialBackoff: cfg.Pipeline.InitialBackoff,
			MaxBackoff:     cfg.Pipeline.MaxBackoff,
		},
		ModelVersion: cfg.ModelVersion(),
	}, pipeline.Deps{
		OCR:        engine,
		Cleaner:    textclean.New(),
		Translator: translator,
		Cache:      store,
		Progress:   tracker,
		Logger:     logger.WithOperation("pipeline"),
	})

	manager := jobs.NewManager(jobs.Config{
		MaxConcurrentJobs: cfg.Jobs.MaxConcurrentJobs,
		MaxQueueDepth:     cfg.Jobs.MaxQueueDepth,
		Retention:         cfg.Jobs.Retention,
		JanitorInterval:   cfg.Jobs.JanitorInterval,
		SourceLang:        cfg.Translation.SourceLang,
		TargetLang:        cfg.Translation.TargetLang,
	}, jobs.Deps{
		Extractor: extractor,
		Validator: extractor.Validator(),
		Planner:   planner.New(cfg.Pipeline.MaxPagesPerChunk),
		Executor:  executor,
		Progress:  tracker,
		Index:     index,
		Cache:     store,
		Logger:    logger,
	})

	logger.Info().
		Str("cache", cfg.Cache.Driver).
		Str("ocr", engine.Name()).
		Str("translator", translator.Model()).
		Str("model_version", cfg.ModelVersion()).
		Msg("engine components ready")

	return &App{
		Config:    cfg,
		Logger:    logger,
		Manager:   manager,
		Cache:     store,
		Progress:  tracker,
		Index:     index,
		Extractor: extractor,
		db:        db,
	}, nil
}

// Start launches the job runners and the cache janitor.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.Manager.Start()
	go a.Cache.RunJanitor(ctx, a.Config.Cache.EvictionInterval, a.Config.Cache.TTL)
}

// Ready reports whether the backing stores are reachable.
func (a *App) Ready(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database not reachable: %w", err)
	}
	return nil
}

// Close stops background work and releases the stores.
func (a *App) Close(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	var errs []error
	if err := a.Manager.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.Cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close cache: %w", err))
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

func newCacheBackend(ctx context.Context, cfg *config.Config, logger *observability.Logger) (cache.Backend, *sql.DB, error) {
	switch cfg.Cache.Driver {
	case "redis":
		backend, err := cache.NewRedisBackend(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
			Prefix:   cfg.Cache.Redis.Prefix,
			TTL:      cfg.Cache.TTL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis cache: %w", err)
		}
		return backend, nil, nil

	case "sql":
		db, err := storage.Open(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("open cache database: %w", err)
		}
		logger.Info().Str("driver", cfg.Database.Driver).Msg("chunk cache stored in database")
		return cache.NewSQLBackend(db), db, nil

	default:
		return cache.NewMemoryBackend(cfg.Cache.MaxEntries), nil, nil
	}
}

func newOCREngine(cfg *config.Config) (domain.OCREngine, error) {
	switch cfg.OCR.Engine {
	case "tesseract":
		return tesseract.New(tesseract.Config{
			Languages:      cfg.OCR.Languages,
			TessdataPrefix: cfg.OCR.TessdataPrefix,
		}), nil
	case "none":
		return ocr.NullEngine{}, nil
	}
	return nil, domain.ConfigError(fmt.Sprintf("unknown ocr engine %q", cfg.OCR.Engine), nil)
}

func newTranslator(cfg *config.Config, logger *observability.Logger) (domain.Translator, error) {
	switch cfg.Translation.Provider {
	case "openrouter":
		return translate.NewClient(translate.ClientConfig{
			APIURL:  cfg.Translation.APIURL,
			APIKey:  cfg.Translation.APIKey,
			Model:   cfg.Translation.Model,
			Timeout: cfg.Translation.Timeout,
		}, logger.WithOperation("translate")), nil
	case "glossary":
		g, err := translate.NewGlossary(cfg.Translation.GlossaryPath)
		if err != nil {
			return nil, domain.ConfigError("load glossary", err)
		}
		return g, nil
	case "none":
		return translate.NewPassthrough(), nil
	}
	return nil, domain.ConfigError(fmt.Sprintf("unknown translation provider %q", cfg.Translation.Provider), nil)
}
