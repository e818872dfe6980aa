package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/talaub/lowzero/internal/core/observability/log"
	"github.com/talaub/lowzero/internal/injector"
	"github.com/talaub/lowzero/internal/scene"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr, scenePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the configured schemas and serve the inspector",
		Long: `Load the schemas named by the configuration (or LOWZERO_SCHEMAS) into a world
and serve the inspector websocket until interrupted. A scene document, when
given, is loaded and reloaded whenever the file changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, cleanup, err := injector.InitializeApp(ctx, injector.ConfigPath(opts.configPath))
			if err != nil {
				return err
			}
			defer cleanup()

			if addr == "" {
				addr = app.Config.InspectorAddr
			}
			if scenePath == "" {
				scenePath = app.Config.ScenePath
			}
			if scenePath != "" {
				watcher, err := scene.NewWatcher(app.World, scenePath, scene.DefaultDebounce)
				if err != nil {
					return err
				}
				if err := watcher.Load(); err != nil {
					return err
				}
				go func() {
					if err := watcher.Run(ctx); err != nil {
						app.Log.Error("Scene watcher stopped", log.Error(err))
					}
				}()
			}
			if err := app.Inspector.Start(ctx, addr); err != nil {
				return err
			}
			app.Log.Info("Serving", log.Int("types", len(app.World.Types().Types())))

			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := app.Inspector.Stop(shutdownCtx); err != nil {
				app.Log.Error("Error stopping inspector", log.Error(err))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to inspector_addr)")
	cmd.Flags().StringVar(&scenePath, "scene", "", "scene document to load and reload on change (defaults to scene)")
	return cmd
}
