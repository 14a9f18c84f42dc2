package cli

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/nox-kernel/central/internal/config"
	"github.com/nox-kernel/central/internal/costs"
)

func newCostsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "costs",
		Short: "Inspect the usage/cost ledger",
	}
	cmd.AddCommand(newCostsShowCmd())
	return cmd
}

func newCostsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print today's and this month's spend, broken down per provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tracker := costs.New(filepath.Join(cfg.HomeDir, "costs.jsonl"))

			byProvider, err := tracker.SpendByProvider(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(byProvider) == 0 {
				fmt.Fprintln(out, "no usage recorded")
				return nil
			}

			providers := make([]string, 0, len(byProvider))
			for provider := range byProvider {
				providers = append(providers, provider)
			}
			sort.Strings(providers)

			var totalToday, totalMonth float64
			fmt.Fprintf(out, "%-12s  %10s  %10s\n", "PROVIDER", "TODAY", "MONTH")
			for _, provider := range providers {
				spend := byProvider[provider]
				fmt.Fprintf(out, "%-12s  %10.4f  %10.4f\n", provider, spend.TodayUSD, spend.MonthUSD)
				totalToday += spend.TodayUSD
				totalMonth += spend.MonthUSD
			}
			fmt.Fprintf(out, "%-12s  %10.4f  %10.4f\n", "total", totalToday, totalMonth)
			return nil
		},
	}
}
