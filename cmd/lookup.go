package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/graded-card-estimator/internal/estimate"
)

func newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <psa-cert>",
		Short: "Looks up one cert with a local browser and prints the estimate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			app, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			defer func() {
				if cerr := app.Close(context.Background()); cerr != nil {
					app.Logger().Warn("close failed", zap.Error(cerr))
				}
			}()

			est, err := app.Service().Estimate(cmd.Context(), args[0])
			if err != nil {
				e := estimate.AsError(err)
				return fmt.Errorf("%s: %s", estimate.OutcomeOf(e), e.Detail)
			}
			return printJSON(cmd.OutOrStdout(), est)
		},
	}
}
