// Command lowzero validates type schemas, converts scene documents and serves the
// runtime inspector.
package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/talaub/lowzero/internal/core/observability/log"
	"github.com/talaub/lowzero/internal/core/world"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "lowzero",
		Short: "Schema-driven object runtime tooling",
		Long: `lowzero loads type schemas into a world of paged type pools.

  lowzero validate core.yaml render.yaml   Check schemas for conflicts
  lowzero dump core.yaml scene.yaml        Load and re-emit a scene document
  lowzero stress core.yaml --type Texture  Hammer a pool from many goroutines
  lowzero serve --config lowzero.yaml      Serve the inspector websocket`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (LOWZERO_* variables override it)")
	cmd.PersistentFlags().StringVarP(&opts.logLevel, "log-level", "l", "warn", "log level for offline commands (debug, info, warn, error)")

	cmd.AddCommand(
		newValidateCmd(opts),
		newDumpCmd(opts),
		newStressCmd(opts),
		newServeCmd(opts),
	)
	return cmd
}

func (o *rootOptions) logger() (log.Log, error) {
	level, err := log.ParseLevel(o.logLevel)
	if err != nil {
		return nil, err
	}
	return log.New(level), nil
}

// loadWorld builds a world from schema files for the offline commands.
func (o *rootOptions) loadWorld(ctx context.Context, schemas []string) (*world.World, error) {
	logger, err := o.logger()
	if err != nil {
		return nil, err
	}
	w := world.New(logger, world.Options{})
	if err := w.Load(ctx, schemas...); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}
