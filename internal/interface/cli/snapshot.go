package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scottlz0310/ci-helper/internal/adapter/gateway/storage"
	"github.com/scottlz0310/ci-helper/internal/application/port/output"
	"github.com/scottlz0310/ci-helper/internal/domain/ciherr"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect and manage pre-fix filesystem snapshots",
		RunE:  func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.AddCommand(newSnapshotListCmd())
	cmd.AddCommand(newSnapshotGCCmd())
	cmd.AddCommand(newSnapshotMirrorCmd())
	return cmd
}

func newSnapshotListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			c, err := newContainer(globalConfig, globalLog)
			if err != nil {
				return err
			}
			defer c.Close()

			ids, err := c.snapshots.List()
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No snapshots.")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func newSnapshotGCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Delete snapshots past the retention window or count cap",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			c, err := newContainer(globalConfig, globalLog)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.snapshots.GC(globalConfig.SnapshotRetention(), globalConfig.SnapshotMaxCount(), nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Snapshot GC complete.")
			return nil
		},
	}
}

func newSnapshotMirrorCmd() *cobra.Command {
	var bucket string
	var prefix string
	var region string
	var localDir string

	cmd := &cobra.Command{
		Use:   "mirror <snapshot-id>",
		Short: "Copy a snapshot to a secondary store (S3 bucket or local directory)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			c, err := newContainer(globalConfig, globalLog)
			if err != nil {
				return err
			}
			defer c.Close()

			var mirror output.SnapshotMirror
			switch {
			case bucket != "":
				mirror, err = storage.NewS3SnapshotMirror(storage.S3Config{BucketName: bucket, Prefix: prefix, Region: region})
			case localDir != "":
				mirror, err = storage.NewLocalSnapshotMirror(localDir)
			default:
				return ciherr.New(ciherr.KindConfig, "either --bucket or --local-dir is required")
			}
			if err != nil {
				return ciherr.Wrap(ciherr.KindExternal, "could not initialize snapshot mirror", err)
			}

			manifest, files, err := c.snapshots.Export(args[0])
			if err != nil {
				return err
			}
			entry, err := mirror.SaveSnapshot(cmd.Context(), output.SaveSnapshotRequest{
				SnapshotID: args[0],
				Manifest:   manifest,
				Files:      files,
			})
			if err != nil {
				return ciherr.Wrap(ciherr.KindExternal, "mirror upload failed", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Mirrored %s to %s (%d bytes)\n", args[0], entry.StoragePath, entry.Size)
			return nil
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "S3 bucket to mirror into")
	cmd.Flags().StringVar(&prefix, "prefix", "", "key prefix inside the bucket")
	cmd.Flags().StringVar(&region, "region", "", "AWS region override")
	cmd.Flags().StringVar(&localDir, "local-dir", "", "local directory to mirror into instead of S3")
	return cmd
}
