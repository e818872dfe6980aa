package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/talaub/lowzero/internal/core/pool"
	"github.com/talaub/lowzero/pkg/concurrent"
)

func newStressCmd(opts *rootOptions) *cobra.Command {
	var (
		typeName string
		workers  int
		ops      int
	)
	cmd := &cobra.Command{
		Use:   "stress <schema>...",
		Short: "Create and destroy instances of a type from many goroutines",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := opts.loadWorld(cmd.Context(), args)
			if err != nil {
				return err
			}
			defer w.Close()

			p, ok := w.Pool(typeName)
			if !ok {
				return fmt.Errorf("%q: unknown type", typeName)
			}
			if p.IsComponent() {
				return fmt.Errorf("%q: %w", typeName, pool.ErrNotForComponents)
			}

			var created, exhausted atomic.Int64
			start := time.Now()
			err = concurrent.Run(cmd.Context(), workers, ops, func(_ context.Context, i int) error {
				h, err := p.Create(fmt.Sprintf("%s-%d", typeName, i))
				if errors.Is(err, pool.ErrBudgetExhausted) {
					exhausted.Add(1)
					return nil
				}
				if err != nil {
					return err
				}
				created.Add(1)
				// Keep every other instance so pages fill up and slots are reused.
				if i%2 == 0 {
					p.Destroy(h)
				}
				return nil
			})
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d ops in %s (%.0f ops/s), created=%d exhausted=%d living=%d capacity=%d pages=%d\n",
				typeName, ops, elapsed.Round(time.Microsecond), float64(ops)/elapsed.Seconds(),
				created.Load(), exhausted.Load(), p.LivingCount(), p.Capacity(), p.PageCount())
			return nil
		},
	}
	cmd.Flags().StringVarP(&typeName, "type", "t", "", "type to allocate")
	cmd.Flags().IntVarP(&workers, "workers", "w", runtime.GOMAXPROCS(0), "concurrent workers")
	cmd.Flags().IntVarP(&ops, "ops", "n", 10000, "operations to run")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
