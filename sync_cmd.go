package main

import (
	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "sync (TASK | LOCAL REMOTE)",
		Short: "Synchronize two trees bidirectionally",
		Long: `Run one sync pass between the local and remote tree.

Changes propagate in both directions. An entry changed on both sides since
the last run is a conflict, handled per --resolve (default: skip and
report). Use --dry-run to preview the planned actions.

The mode configured for a task (or in the [sync] section) applies; the
upload and download commands override it.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, args, "", &flags)
		},
	}

	addRunFlags(cmd, &flags)

	return cmd
}

func newUploadCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "upload (TASK | LOCAL REMOTE)",
		Short: "Copy local changes to the remote tree",
		Long: `Run one sync pass with the local tree as the source of truth.

Changes that happened only on the remote side are left untouched. Local
deletions propagate by default; pass --delete=false to keep them from
propagating. A file changed on both sides is still a conflict and is
handled per --resolve.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, args, "upload", &flags)
		},
	}

	addRunFlags(cmd, &flags)

	return cmd
}

func newDownloadCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "download (TASK | LOCAL REMOTE)",
		Short: "Copy remote changes to the local tree",
		Long: `Run one sync pass with the remote tree as the source of truth.

Changes that happened only on the local side are left untouched. Remote
deletions propagate by default; pass --delete=false to keep them from
propagating. A file changed on both sides is still a conflict and is
handled per --resolve.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, args, "download", &flags)
		},
	}

	addRunFlags(cmd, &flags)

	return cmd
}
