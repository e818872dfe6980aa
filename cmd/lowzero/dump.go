package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/talaub/lowzero/internal/core/serialization"
	"github.com/talaub/lowzero/internal/core/world"
)

func newDumpCmd(opts *rootOptions) *cobra.Command {
	var (
		types  []string
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "dump <schema>... <document>",
		Short: "Load a scene document and write it back out",
		Long: `Load a scene document into a world built from the given schemas and write
every living instance back to stdout. Unknown entries are reported and skipped
unless --strict is set.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas, document := args[:len(args)-1], args[len(args)-1]

			w, err := opts.loadWorld(cmd.Context(), schemas)
			if err != nil {
				return err
			}
			defer w.Close()

			data, err := os.ReadFile(document)
			if err != nil {
				return err
			}
			root, err := serialization.Unmarshal(data)
			if err != nil {
				return fmt.Errorf("parse %s: %w", document, err)
			}
			if _, err := w.LoadDocument(root); err != nil {
				if strict || !errors.Is(err, world.ErrBadDocument) {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}

			node, err := w.Dump(types...)
			if err != nil {
				return err
			}
			out, err := serialization.Marshal(node)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "only dump these types")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on unknown document entries")
	return cmd
}
