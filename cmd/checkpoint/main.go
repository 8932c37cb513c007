// Command checkpoint is the thin CLI wiring layer over the core
// packages. Per spec.md section 6, parsing, help/version banners,
// colour handling and the rest of the CLI surface are external
// contracts; this file only translates flags into calls against
// internal/snapshot, internal/retention, internal/metadata and
// internal/lock. Compare, restore and remote verbs are not wired here.
package main

import (
	"fmt"
	"os"

	"github.com/juju/clock"
	"github.com/spf13/cobra"

	"github.com/Open-Technology-Foundation/checkpoint/internal/checksum"
	"github.com/Open-Technology-Foundation/checkpoint/internal/config"
	"github.com/Open-Technology-Foundation/checkpoint/internal/errs"
	"github.com/Open-Technology-Foundation/checkpoint/internal/lock"
	"github.com/Open-Technology-Foundation/checkpoint/internal/metadata"
	"github.com/Open-Technology-Foundation/checkpoint/internal/retention"
	"github.com/Open-Technology-Foundation/checkpoint/internal/snapshot"
)

// Exit codes from spec.md section 6.
const (
	exitOK                 = 0
	exitGenericFailure     = 1
	exitMissingArgument    = 2
	exitInvalidOptionValue = 22
	exitLockNotAcquired    = 3
	exitVerifyMismatch     = 4
	exitPartialRestore     = 5
)

func main() {
	os.Exit(run())
}

func run() int {
	var backupDir, suffix, description string
	var tags []string
	var hardlink, verify, forceLock bool

	root := &cobra.Command{
		Use:          "checkpoint SOURCE",
		Short:        "Create and manage directory snapshots",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			dir, err := config.ResolveBackupDir(backupDir, source)
			if err != nil {
				return err
			}
			cfg := config.Default()
			tagMap, err := parseTags(tags)
			if err != nil {
				return err
			}
			name, err := snapshot.Create(source, dir, snapshot.Options{
				Suffix:      suffix,
				Description: description,
				Tags:        tagMap,
				Hardlink:    hardlink,
				Verify:      verify,
				ForceLock:   forceLock,
				Checksum:    checksum.SHA256,
			}, cfg, clock.WallClock)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}
	root.Flags().StringVar(&backupDir, "backup-dir", "", "explicit backup root")
	root.Flags().StringVar(&suffix, "suffix", "", "snapshot name suffix")
	root.Flags().StringVar(&description, "description", "", "DESCRIPTION metadata field")
	root.Flags().StringSliceVar(&tags, "tag", nil, "KEY=VALUE metadata tag, repeatable")
	root.Flags().BoolVar(&hardlink, "hardlink", true, "hardlink unchanged files against the prior snapshot")
	root.Flags().BoolVar(&verify, "verify", false, "verify the snapshot against source before publishing")
	root.Flags().BoolVar(&forceLock, "force", false, "remove any existing lock before acquiring")

	root.AddCommand(
		listCmd(),
		pruneCmd(),
		forceUnlockCmd(),
		metadataCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "checkpoint:", err)
		return exitCodeFor(err)
	}
	return exitOK
}

func listCmd() *cobra.Command {
	var backupDir string
	cmd := &cobra.Command{
		Use:  "list SOURCE",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ResolveBackupDir(backupDir, args[0])
			if err != nil {
				return err
			}
			names, err := retention.List(dir)
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&backupDir, "backup-dir", "", "explicit backup root")
	return cmd
}

func pruneCmd() *cobra.Command {
	var backupDir string
	var keepN, maxAgeDays int
	cmd := &cobra.Command{
		Use:  "prune SOURCE",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.ResolveBackupDir(backupDir, args[0])
			if err != nil {
				return err
			}
			mode := retention.KeepN(keepN)
			if maxAgeDays > 0 {
				mode = retention.MaxAgeDays(maxAgeDays)
			}
			removed, err := retention.Apply(dir, mode)
			if err != nil {
				return err
			}
			for _, n := range removed {
				fmt.Fprintln(cmd.OutOrStdout(), "removed", n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&backupDir, "backup-dir", "", "explicit backup root")
	cmd.Flags().IntVar(&keepN, "keep", 5, "number of snapshots to keep")
	cmd.Flags().IntVar(&maxAgeDays, "max-age-days", 0, "delete snapshots older than this many days")
	return cmd
}

func forceUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:  "force-unlock BACKUP_ROOT",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return lock.ForceRelease(args[0])
		},
	}
}

func metadataCmd() *cobra.Command {
	show := &cobra.Command{
		Use:  "show SNAPSHOT",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := metadata.Show(args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), record.Format())
			return nil
		},
	}
	var key, value string
	update := &cobra.Command{
		Use:  "update SNAPSHOT",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return metadata.Update(args[0], key, value)
		},
	}
	update.Flags().StringVar(&key, "key", "", "metadata key")
	update.Flags().StringVar(&value, "value", "", "metadata value")

	parent := &cobra.Command{Use: "metadata"}
	parent.AddCommand(show, update)
	return parent
}

func parseTags(pairs []string) (map[string]string, error) {
	out := map[string]string{}
	for _, p := range pairs {
		idx := -1
		for i, r := range p {
			if r == '=' {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, errs.NewInput("invalid --tag %q: want KEY=VALUE", p)
		}
		out[p[:idx]] = p[idx+1:]
	}
	return out, nil
}

func exitCodeFor(err error) int {
	switch {
	case errs.IsInput(err):
		return exitInvalidOptionValue
	case errs.IsLockTimeout(err), errs.IsLockStolen(err):
		return exitLockNotAcquired
	case errs.IsVerifyMismatch(err):
		return exitVerifyMismatch
	case errs.IsPartialRestore(err):
		return exitPartialRestore
	default:
		return exitGenericFailure
	}
}
