package main

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/spf13/cobra"

	"github.com/treesync/treesync/internal/config"
	"github.com/treesync/treesync/internal/sync"
	"github.com/treesync/treesync/internal/target"
)

// scannedEntry is one listed entry in scan output.
type scannedEntry struct {
	Path    string    `json:"path"`
	Kind    string    `json:"kind"`
	Size    int64     `json:"size,omitempty"`
	ModTime time.Time `json:"mtime,omitzero"`
}

func newScanCmd() *cobra.Command {
	var (
		recursive bool
		include   []string
		exclude   []string
	)

	cmd := &cobra.Command{
		Use:   "scan LOCATION",
		Short: "List a tree without syncing anything",
		Long: `List the entries of a local or remote tree. Useful for checking
connectivity and credentials, and for previewing what a sync would see.

  treesync scan sftp://user@nas/photos
  treesync scan --recursive ftp://host/pub`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), args[0], recursive, include, exclude)
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "descend into sub-directories")
	cmd.Flags().StringArrayVar(&include, "include", nil, "include only files matching this glob (repeatable)")
	cmd.Flags().StringArrayVar(&exclude, "exclude", nil, "exclude entries matching this glob (repeatable)")

	return cmd
}

func runScan(parent context.Context, location string, recursive bool, include, exclude []string) error {
	env := config.ReadEnvOverrides()

	cfg, err := config.LoadResolved(env, cliOverrides())
	if err != nil {
		return err
	}

	rt := config.ResolveAdHoc(cfg, ".", location)
	rt.ApplyOverrides(env, config.CLIOverrides{})

	logger := buildLogger(rt.LogLevel, rt.LogFormat)

	loc, err := target.ParseLocation(location)
	if err != nil {
		return err
	}

	if loc.IsRemote() && loc.User != "" && loc.Password == "" {
		if rt.Password != "" {
			loc.Password = rt.Password
		} else if rt.KeyFile == "" {
			loc.Password = promptPassword(loc.User, loc.Host)
		}
	}

	timeout, err := time.ParseDuration(rt.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("connect_timeout: %w", err)
	}

	t, err := target.New(loc, target.Options{
		Timeout:         timeout,
		TLSInsecure:     rt.TLSInsecure,
		KeyFile:         rt.KeyFile,
		KnownHostsFile:  rt.KnownHostsFile,
		InsecureHostKey: rt.InsecureHostKey,
	})
	if err != nil {
		return err
	}

	filter, err := sync.NewFilter(include, exclude)
	if err != nil {
		return err
	}

	ctx := shutdownContext(parent, logger)

	if err := t.Connect(ctx); err != nil {
		return err
	}
	defer t.Close()

	var entries []scannedEntry
	if err := collectEntries(ctx, t, filter, "", recursive, &entries); err != nil {
		return err
	}

	return printEntries(entries, flagJSON)
}

// collectEntries lists one directory level and optionally descends,
// appending to out in listing order.
func collectEntries(ctx context.Context, t target.Target, filter *sync.Filter, relPath string, recursive bool, out *[]scannedEntry) error {
	entries, err := t.List(ctx, relPath)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.Kind == target.KindUnsupported {
			continue
		}

		isDir := e.Kind == target.KindDir
		if !filter.ShouldSync(e.Name, isDir).Included {
			continue
		}

		entryPath := path.Join(relPath, e.Name)

		*out = append(*out, scannedEntry{
			Path:    entryPath,
			Kind:    e.Kind.String(),
			Size:    e.Size,
			ModTime: e.ModTime,
		})

		if isDir && recursive {
			if err := collectEntries(ctx, t, filter, entryPath, recursive, out); err != nil {
				return err
			}
		}
	}

	return nil
}
