package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/treesync/treesync/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "treesync",
		Short: "Synchronize directory trees over FS, FTP, FTPS, and SFTP",
		Long: `treesync keeps two directory trees in sync: a local one and a remote one
reachable over FTP, FTPS, SFTP, or the local filesystem. It detects changes
from file size and modification time against a per-directory baseline, so
no database and no server-side software is needed.

Trees are given either as a configured task name or as two locations:

  treesync sync photos
  treesync sync ~/Pictures sftp://user@nas/photos`,
		Version: version,
		// Silence cobra's default error/usage printing; main() handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newDownloadCmd())
	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}

// buildLogger creates an slog.Logger from the resolved log settings.
// Config provides the baseline; --verbose and --quiet override it because
// CLI flags always win. The auto format picks colored output on a
// terminal and plain text otherwise.
func buildLogger(logLevel, logFormat string) *slog.Logger {
	level := slog.LevelInfo

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	tty := isatty.IsTerminal(os.Stderr.Fd())

	switch {
	case logFormat == "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	case logFormat == "text" || !tty:
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	default:
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	}
}

// cliOverrides collects the persistent flag values shared by every
// subcommand into the config override set.
func cliOverrides() config.CLIOverrides {
	return config.CLIOverrides{ConfigPath: flagConfigPath}
}
