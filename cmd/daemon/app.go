package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/genricoloni/nowplaying/internal/bridge"
	"github.com/genricoloni/nowplaying/internal/config"
	"github.com/genricoloni/nowplaying/internal/domain"
	"github.com/genricoloni/nowplaying/internal/engine"
	"github.com/genricoloni/nowplaying/internal/fetcher"
	"github.com/genricoloni/nowplaying/internal/observer"
	"github.com/genricoloni/nowplaying/internal/processor"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// coreOptions builds the engine and everything it depends on
var coreOptions = fx.Options(
	fx.Provide(
		loadConfig,
		func(c *config.AppConfig) domain.Config { return c },
		newLogger,
		newBridge,
		fx.Annotate(fetcher.NewHTTPFetcher, fx.As(new(domain.Fetcher))),
		fx.Annotate(processor.NewThumbnailProcessor, fx.As(new(domain.ImageProcessor))),
		engine.NewEngine,
	),
)

// AppOptions is the full daemon graph: the engine plus its observers and lifecycle
var AppOptions = fx.Options(
	coreOptions,
	fx.Provide(
		observer.NewLogObserver,
		observer.NewArtworkFileObserver,
		func(logger *zap.Logger) *observer.StatusLineObserver {
			return observer.NewStatusLineObserver(logger, os.Stdout)
		},
	),
	fx.Invoke(registerHooks),
)

// loadConfig reads the file named by --config, or the default location
func loadConfig() (*config.AppConfig, error) {
	path := cfgFile
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger creates a zap logger for the configured level
func newLogger(cfg *config.AppConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.GetLogLevel())
	if err != nil {
		return nil, err
	}

	if level == zapcore.DebugLevel {
		return zap.NewDevelopment()
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// newBridge creates the configured bridge and releases its connection on stop
func newBridge(lc fx.Lifecycle, cfg domain.Config, logger *zap.Logger) (domain.Bridge, error) {
	b, err := bridge.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	if c, ok := b.(io.Closer); ok {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return c.Close()
			},
		})
	}
	return b, nil
}

type hookParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Logger    *zap.Logger
	Config    *config.AppConfig
	Engine    *engine.Engine
	Log       *observer.LogObserver
	Artwork   *observer.ArtworkFileObserver
	Status    *observer.StatusLineObserver
}

// registerHooks subscribes the observers and ties the engine to the app lifecycle
func registerHooks(p hookParams) {
	p.Engine.Subscribe(p.Log)
	p.Engine.Subscribe(p.Artwork)
	p.Engine.Subscribe(p.Status)

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Config.LogLoaded(p.Logger)
			p.Logger.Info("nowplaying daemon started", zap.String("artwork", p.Artwork.Path()))
			return p.Engine.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Info("Shutting down")
			return p.Engine.Stop(ctx)
		},
	})
}
