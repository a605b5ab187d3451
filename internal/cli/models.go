package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lk2023060901/llm-field-extractor/internal/extraction/biz"
)

func newModelsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models served by the LLM endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := root.load()
			if err != nil {
				return err
			}
			defer app.Cleanup()

			models, err := app.Extractor.ListModels(cmd.Context())
			if errors.Is(err, biz.ErrModelsUnsupported) {
				return errors.New("the configured endpoint cannot list models")
			}
			if err != nil {
				return fmt.Errorf("list models: %w", err)
			}

			if len(models) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No models found.")
				return nil
			}
			for _, m := range models {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
}
