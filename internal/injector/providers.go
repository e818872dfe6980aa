package injector

import (
	"context"

	"github.com/google/wire"

	"github.com/talaub/lowzero/internal/config"
	"github.com/talaub/lowzero/internal/core/observability/log"
	"github.com/talaub/lowzero/internal/core/world"
	"github.com/talaub/lowzero/internal/inspector"
)

// ConfigPath is the optional YAML configuration file; empty uses the defaults
// plus environment overrides.
type ConfigPath string

// App bundles what the serve command runs.
type App struct {
	Config    config.Config
	Log       log.Log
	World     *world.World
	Inspector *inspector.Server
}

var ProviderSet = wire.NewSet(
	ProvideConfig,
	ProvideLogger,
	ProvideCapacities,
	ProvideWorld,
	ProvideInspector,
	wire.Struct(new(App), "*"),
)

func ProvideConfig(path ConfigPath) (config.Config, error) {
	return config.Load(string(path))
}

func ProvideLogger(cfg config.Config) log.Log {
	return log.New(cfg.Level())
}

func ProvideCapacities(cfg config.Config) (config.Capacities, error) {
	return config.LoadCapacities(cfg.CapacitiesFile)
}

// ProvideWorld loads the configured schemas. The cleanup closes the world.
func ProvideWorld(ctx context.Context, logger log.Log, cfg config.Config, caps config.Capacities) (*world.World, func(), error) {
	w := world.New(logger, world.OptionsFromConfig(cfg, caps))
	cleanup := func() {
		if err := w.Close(); err != nil {
			logger.Error("Failed to close world", log.Error(err))
		}
	}
	if err := w.Load(ctx, cfg.SchemaPaths...); err != nil {
		cleanup()
		return nil, nil, err
	}
	w.Freeze()
	return w, cleanup, nil
}

func ProvideInspector(w *world.World, logger log.Log) *inspector.Server {
	return inspector.NewServer(w, logger)
}
