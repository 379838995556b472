package main

import (
	"github.com/spf13/cobra"

	"github.com/Semprini/data-products/ducklake-init/internal/sessionrc"
)

func newRenderCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "render",
		Short: "Render the DuckDB rc file and exit",
		Long: `Render writes rc.output_path from rc.template_path using the same values
the bootstrap uses. It makes no network calls.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			r, err := sessionrc.NewRenderer(c.cfg)
			if err != nil {
				return err
			}
			return r.Render()
		},
	}
}
