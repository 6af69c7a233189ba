package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/split-budget/internal/app"
	"github.com/FACorreiaa/split-budget/internal/domain/transaction"
	"github.com/FACorreiaa/split-budget/internal/seed"
)

const maxSeedMonths = 120

func newSeedCmd(c *cli) *cobra.Command {
	var (
		email  string
		months int
		seedN  int64
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill an account with generated transactions",
		Long: `Generates a salary, bills, discretionary spending and transfers to
reserves and investments for each of the last --months months, ending with
the current one, then rebuilds the account's monthly summaries.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if months < 1 || months > maxSeedMonths {
				return fmt.Errorf("--months must be between 1 and %d", maxSeedMonths)
			}

			return c.withDeps(func(deps *app.Dependencies) error {
				ctx := cmd.Context()
				user, err := lookupUser(ctx, deps, email)
				if err != nil {
					return err
				}
				categories, err := deps.CategoryService.List(ctx, user.ID)
				if err != nil {
					return err
				}

				// one rebuild at the end instead of one per insert
				txs := transaction.NewService(deps.TransactionRepo, deps.CategoryService, c.logger)
				gen := seed.New(seedN)
				now := time.Now().UTC()
				start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(months - 1), 0)

				created := 0
				for m := start; !m.After(now); m = m.AddDate(0, 1, 0) {
					for _, in := range gen.Month(m.Year(), m.Month(), user.Currency, categories, now) {
						if _, err := txs.Create(ctx, user.ID, in); err != nil {
							return fmt.Errorf("failed to create %q on %s: %w", in.Description, in.OccurredOn, err)
						}
						created++
					}
				}

				if err := deps.SummaryService.RecomputeAll(ctx, user.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %d transactions for %s over %d months\n", created, user.Email, months)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().IntVar(&months, "months", 6, "number of months to generate")
	cmd.Flags().Int64Var(&seedN, "seed", 0, "random seed, 0 for a random one")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
