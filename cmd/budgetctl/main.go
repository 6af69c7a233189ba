// Command budgetctl administers a split-budget installation: migrations,
// accounts, demo data, statement imports and summary rebuilds.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/split-budget/internal/app"
	"github.com/FACorreiaa/split-budget/internal/domain/auth/repository"
	"github.com/FACorreiaa/split-budget/pkg/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&cli{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// cli carries the state shared by every command.
type cli struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "budgetctl",
		Short:         "Administer a split-budget installation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg != nil {
				return nil
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			c.cfg = cfg
			c.logger = app.NewLogger(cfg, cmd.ErrOrStderr())
			return nil
		},
	}

	root.AddCommand(
		newMigrateCmd(c),
		newUserCmd(c),
		newSeedCmd(c),
		newImportCmd(c),
		newRecomputeCmd(c),
	)
	return root
}

// withDeps runs fn with fully initialized dependencies.
func (c *cli) withDeps(fn func(deps *app.Dependencies) error) error {
	deps, err := app.InitDependencies(c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer deps.Cleanup()
	return fn(deps)
}

func lookupUser(ctx context.Context, deps *app.Dependencies, email string) (*repository.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("--email is required")
	}
	user, err := deps.AuthRepo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user %s: %w", email, err)
	}
	return user, nil
}
