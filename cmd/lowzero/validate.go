package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <schema>...",
		Short: "Validate type schemas together",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := opts.loadWorld(cmd.Context(), args)
			if err != nil {
				return err
			}
			defer w.Close()

			out := cmd.OutOrStdout()
			for _, doc := range w.Documents() {
				fmt.Fprintf(out, "%s: %d types, %d enums\n", doc.Module, len(doc.Types), len(doc.Enums))
			}
			for _, p := range w.Pools() {
				kind := "type"
				if p.IsComponent() {
					kind = "component"
				}
				fmt.Fprintf(out, "  %-16s id=%-3d %-9s capacity=%d page=%d\n", p.Name(), p.ID(), kind, p.Capacity(), p.PageSize())
			}
			return nil
		},
	}
}
