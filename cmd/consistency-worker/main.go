package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/folio/backend/internal/app"
	"github.com/folio/backend/internal/config"
	"github.com/folio/backend/internal/logging"
	"github.com/folio/backend/internal/middleware"
)

var rootCmd = &cobra.Command{
	Use:   "consistency-worker",
	Short: "Run account consistency, expiry and content jobs",
	Long: `Runs the background side of the account consistency workflow.

Available subcommands:
  run         - Run every job on its schedule until interrupted
  check       - Run one consistency pass and print the summary
  sweep       - Delete accounts whose suspension grace period expired
  notify      - Run one low-content check
  issue-token - Sign an HS256 token for local testing`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every job on its schedule until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			return a.Runner.Start(ctx)
		})
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one consistency pass",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			sum, err := a.Checker.RunAll(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, sum)
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete accounts past their grace period",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			sum, err := a.Sweeper.Sweep(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, sum)
		})
	},
}

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Run one low-content check",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			res, err := a.Dispatcher.CheckContent(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		})
	},
}

var (
	tokenUserID string
	tokenEmail  string
	tokenName   string
	tokenAdmin  bool
	tokenTTL    time.Duration
)

var issueTokenCmd = &cobra.Command{
	Use:   "issue-token",
	Short: "Sign an HS256 token with JWT_SECRET",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if tokenUserID == "" {
			return fmt.Errorf("--user is required")
		}
		tok, err := middleware.NewJWTVerifier(cfg.JWTSecret).Issue(middleware.Identity{
			UserID: tokenUserID,
			Email:  tokenEmail,
			Name:   tokenName,
			Admin:  tokenAdmin,
		}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	issueTokenCmd.Flags().StringVar(&tokenUserID, "user", "", "user id claim")
	issueTokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	issueTokenCmd.Flags().StringVar(&tokenName, "name", "", "display name claim")
	issueTokenCmd.Flags().BoolVar(&tokenAdmin, "admin", false, "grant the admin claim")
	issueTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")

	rootCmd.AddCommand(runCmd, checkCmd, sweepCmd, notifyCmd, issueTokenCmd)
}

// withApp builds the App from the environment, runs fn and closes every backend.
func withApp(parent context.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()
	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
