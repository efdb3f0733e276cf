package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/graded-card-estimator/internal/client"
)

func newQueryCmd() *cobra.Command {
	var (
		baseURL string
		apiKey  string
		history bool
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "query [psa-cert]",
		Short: "Calls a running estimator",
		Long: `Queries a running estimator over HTTP. With a cert it prints the estimate,
or the lookup history with --history. Without a cert it runs the site check.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			if baseURL == "" {
				baseURL = cfg.Client.BaseURL
			}
			if apiKey == "" {
				apiKey = cfg.Auth.APIKey
			}
			c, err := client.New(client.Config{
				BaseURL: baseURL,
				APIKey:  apiKey,
				Timeout: time.Duration(cfg.Client.TimeoutSeconds) * time.Second,
			})
			if err != nil {
				return fmt.Errorf("init client: %w", err)
			}

			ctx := cmd.Context()
			switch {
			case len(args) == 0:
				report, err := c.SiteCheck(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			case history:
				hist, err := c.History(ctx, args[0], limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), hist)
			default:
				est, err := c.Estimate(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), est)
			}
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "estimator base URL (default client.base_url)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (default auth.api_key)")
	cmd.Flags().BoolVar(&history, "history", false, "print lookup history instead of an estimate")
	cmd.Flags().IntVar(&limit, "limit", 0, "history rows to return")
	return cmd
}
