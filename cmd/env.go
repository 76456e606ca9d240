package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deeplydigital/pole-burndown/internal/extract"
	"github.com/deeplydigital/pole-burndown/internal/gis"
	"github.com/deeplydigital/pole-burndown/internal/notify"
	"github.com/deeplydigital/pole-burndown/internal/pipeline"
	"github.com/deeplydigital/pole-burndown/internal/report"
	"github.com/deeplydigital/pole-burndown/internal/resilience"
	"github.com/deeplydigital/pole-burndown/internal/resolve"
	"github.com/deeplydigital/pole-burndown/internal/store"
	"github.com/deeplydigital/pole-burndown/pkg/katapult"
	"github.com/deeplydigital/pole-burndown/pkg/notion"
)

// defaultSQLitePath is used when the sqlite driver has no database_url.
const defaultSQLitePath = "burndown.db"

// pipelineEnv holds the store and pipeline shared by the run commands.
type pipelineEnv struct {
	Store    store.Store
	Provider katapult.Client
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = defaultSQLitePath
		}
		st, err := store.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the configured store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initProvider() katapult.Client {
	return katapult.NewClient(cfg.Katapult.APIKey,
		katapult.WithBaseURL(cfg.Katapult.BaseURL),
		katapult.WithMinInterval(cfg.Katapult.MinInterval()),
		katapult.WithRetry(cfg.Retry.Policy()),
	)
}

func initExtractor() (*extract.Extractor, error) {
	opts := []extract.Option{extract.WithAttachmentCompany(cfg.Resolver.AttachmentCompany)}
	if path := cfg.Resolver.PrioritiesFile; path != "" {
		p, err := resolve.LoadPriorities(path)
		if err != nil {
			return nil, eris.Wrap(err, "load resolver priorities")
		}
		opts = append(opts, extract.WithPriorities(p))
		zap.L().Info("resolver priorities loaded", zap.String("path", path))
	}
	return extract.New(opts...), nil
}

// sinkOptions wires the publishing sinks that are configured.
func sinkOptions() []pipeline.Option {
	var opts []pipeline.Option
	breakers := resilience.NewBreakers(cfg.Breaker.Policy())

	if cfg.GIS.Enabled {
		layers := gis.DefaultLayers()
		layers.Poles.ID = cfg.GIS.PoleLayer
		layers.Connections.ID = cfg.GIS.ConnectionLayer
		layers.Anchors.ID = cfg.GIS.AnchorLayer
		opts = append(opts, pipeline.WithGIS(gis.NewService(cfg.GIS.BaseURL, cfg.GIS.Token,
			gis.WithRetry(cfg.Retry.Policy()),
			gis.WithBreaker(breakers.Get("gis")),
			gis.WithBatchSize(cfg.GIS.BatchSize),
			gis.WithLayers(layers),
		)))
		zap.L().Info("gis sink enabled", zap.String("base_url", cfg.GIS.BaseURL))
	}

	if cfg.Email.Enabled {
		opts = append(opts, pipeline.WithMailer(notify.NewMailer(
			cfg.Email.Host, cfg.Email.Port, cfg.Email.Username, cfg.Email.Password,
			cfg.Email.From, cfg.Email.To,
			notify.WithRetry(cfg.Retry.Policy()),
		)))
		zap.L().Info("email sink enabled", zap.Int("recipients", len(cfg.Email.To)))
	}

	if cfg.Notion.Token != "" && cfg.Notion.BurndownDB != "" {
		client := notion.NewClient(cfg.Notion.Token, notion.WithRetry(cfg.Retry.Policy()))
		opts = append(opts, pipeline.WithNotion(report.NewNotionPublisher(client, cfg.Notion.BurndownDB)))
		zap.L().Info("notion sink enabled")
	} else {
		zap.L().Debug("notion not configured, burndown records stay local")
	}
	return opts
}

// initPipeline validates cfg for mode, opens the store and builds the
// Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	ex, err := initExtractor()
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	provider := initProvider()
	opts := append([]pipeline.Option{pipeline.WithExtractor(ex)}, sinkOptions()...)
	return &pipelineEnv{
		Store:    st,
		Provider: provider,
		Pipeline: pipeline.New(cfg, st, provider, opts...),
	}, nil
}
