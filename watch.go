package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/treesync/treesync/internal/config"
	"github.com/treesync/treesync/internal/sync"
)

// defaultDebounce batches bursts of filesystem events (editors write
// several times per save) into one sync pass.
const defaultDebounce = 2 * time.Second

func newWatchCmd() *cobra.Command {
	var (
		flags    runFlags
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch (TASK | LOCAL REMOTE)",
		Short: "Sync continuously as the local tree changes",
		Long: `Run an initial sync pass, then watch the local tree and re-run a pass
whenever files change. Remote-side changes are picked up on each pass, not
observed live. Stop with Ctrl-C.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args, &flags, debounce)
		},
	}

	addRunFlags(cmd, &flags)
	cmd.Flags().DurationVar(&debounce, "debounce", defaultDebounce, "settle time after a change before syncing")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string, f *runFlags, debounce time.Duration) error {
	rt, err := resolveRun(cmd, args, "", f)
	if err != nil {
		return err
	}

	logger := buildLogger(rt.LogLevel, rt.LogFormat)

	localRoot, err := filepath.Abs(config.ExpandPath(rt.Local))
	if err != nil {
		return err
	}

	ctx := shutdownContext(cmd.Context(), logger)

	runPass := func() {
		err := runSync(cmd, args, "", f)
		if err != nil && !errors.Is(err, errRunHadFailures) && !errors.Is(err, context.Canceled) {
			logger.Error("sync pass failed", slog.Any("error", err))
		}
	}

	runPass()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watchRecursive(watcher, localRoot); err != nil {
		return err
	}

	logger.Info("watching for changes",
		slog.String("root", localRoot),
		slog.Duration("debounce", debounce),
	)

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	schedule := func() {
		if timer != nil {
			timer.Stop()
		}

		timer = time.AfterFunc(debounce, func() {
			select {
			case fire <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-fire:
			runPass()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if isBookkeepingPath(event.Name) {
				continue
			}

			// New directories need their own watch before the next pass.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watchRecursive(watcher, event.Name)
				}
			}

			schedule()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("watch error", slog.Any("error", err))
		}
	}
}

// watchRecursive adds a directory and everything beneath it to a watcher.
func watchRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtrees sync as best they can
		}

		if d.IsDir() {
			return watcher.Add(path)
		}

		return nil
	})
}

// isBookkeepingPath reports whether a changed path is the engine's own
// metadata, whose writes must not re-trigger a pass.
func isBookkeepingPath(p string) bool {
	name := filepath.Base(p)

	return name == sync.MetaFileName ||
		name == sync.LockFileName ||
		strings.HasPrefix(name, sync.MetaFileName+".tmp-")
}
