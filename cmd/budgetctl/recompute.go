package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/split-budget/internal/app"
)

func newRecomputeCmd(c *cli) *cobra.Command {
	var (
		email string
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild monthly summaries from the first transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (email == "") == !all {
				return errors.New("pass exactly one of --email or --all")
			}

			return c.withDeps(func(deps *app.Dependencies) error {
				ctx := cmd.Context()
				if !all {
					user, err := lookupUser(ctx, deps, email)
					if err != nil {
						return err
					}
					if err := deps.SummaryService.RecomputeAll(ctx, user.ID); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "recomputed summaries for %s\n", user.Email)
					return nil
				}

				ids, err := deps.AuthRepo.ListUserIDs(ctx)
				if err != nil {
					return err
				}
				failed := 0
				for _, id := range ids {
					if err := deps.SummaryService.RecomputeAll(ctx, id); err != nil {
						if ctx.Err() != nil {
							return ctx.Err()
						}
						failed++
						c.logger.Error("recompute failed", slog.String("user_id", id.String()), slog.Any("error", err))
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recomputed summaries for %d users, %d failed\n", len(ids)-failed, failed)
				if failed > 0 {
					return fmt.Errorf("%d users failed", failed)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().BoolVar(&all, "all", false, "rebuild every account")
	return cmd
}
