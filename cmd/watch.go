package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const watchDebounce = 500 * time.Millisecond

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Capture cards every time a new batch is planned",
		Long: `Captures the current batch, then watches the file cache and captures again
whenever the plan phase writes a new batch. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: runWatchCommand,
	}
}

func runWatchCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	target, ok := appInstance.WatchTarget()
	if !ok {
		return errors.New("watch requires the file cache backend")
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	logger := appInstance.Logger()
	logger.Info("watching for planned batches", zap.String("file", target))

	capture := func(context.Context) error { return runCaptureCommand(cmd, args) }
	if err := capture(cmd.Context()); err != nil {
		logger.Error("initial capture failed", zap.Error(err))
	}
	return watchBatches(cmd.Context(), watcher, target, watchDebounce, capture, logger)
}

// watchBatches calls onChange once writes to target settle, until ctx is done.
func watchBatches(
	ctx context.Context,
	watcher *fsnotify.Watcher,
	target string,
	debounce time.Duration,
	onChange func(context.Context) error,
	logger *zap.Logger,
) error {
	target = filepath.Clean(target)
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || (!event.Has(fsnotify.Write) && !event.Has(fsnotify.Create)) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := onChange(ctx); err != nil {
				logger.Error("capture after batch change failed", zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", zap.Error(err))
		}
	}
}
