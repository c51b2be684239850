// Package cmd defines and implements the CLI commands for the socialcards executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/socialcards/internal/app"
	"github.com/JakeFAU/socialcards/internal/cards"
	"github.com/JakeFAU/socialcards/internal/config"
	"github.com/JakeFAU/socialcards/internal/logging"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a mock app during tests.
type App interface {
	Close()
	Logger() *zap.Logger
	Plan(ctx context.Context) (cards.JobBatch, error)
	Capture(ctx context.Context) (cards.RunReport, error)
	WatchTarget() (string, bool)
	SharedCache() bool
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return app.NewApp(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "socialcards",
		Short: "Plan and capture social card images for a static site.",
		Long: `socialcards renders a social card image for every page of a static site.

The plan phase runs during the site build: it queries the content, skips pages
whose card image already exists and stores the remaining jobs in a cache. The
capture phase runs once the site is being served: it drives a headless browser
over each planned card page and writes a PNG of exactly the configured size.`,
		SilenceUsage: true,

		// Build the application before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, optional)")

	cmd.AddCommand(newPlanCmd())
	cmd.AddCommand(newCaptureCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// warnUnsharedCache flags a plan or capture invocation whose cache cannot reach
// the other phase's process.
func warnUnsharedCache(cmd *cobra.Command) {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil || appInstance.SharedCache() {
		return
	}
	appInstance.Logger().Warn("the memory cache backend is not shared between invocations; "+
		"use the run command or a persistent backend so capture sees the planned batch",
		zap.String("command", cmd.Name()))
}

// executeRoot runs the command tree and closes the App whether or not the command
// succeeded. Cobra skips post-run hooks after an error.
func executeRoot(ctx context.Context, root *cobra.Command) error {
	executed, err := root.ExecuteContextC(ctx)
	if executed != nil && executed.Context() != nil {
		if appInstance, ok := executed.Context().Value(appKey).(App); ok && appInstance != nil {
			appInstance.Close()
		}
	}
	return err
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := executeRoot(ctx, newRootCmd()); err != nil {
		stop()
		os.Exit(1)
	}
}
