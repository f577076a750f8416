package cli

import (
	"fmt"

	"finetune-orchestrator/storage/archive"

	"github.com/spf13/cobra"
)

func (a *App) newArchiveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Compress or extract model archives",
	}

	compressCmd := &cobra.Command{
		Use:   "compress <dir> <name>",
		Short: "Zip a directory into <name>_<timestamp>.zip next to it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			zips := archive.NewZipService(commandLogger(cmd, a.cfg.LogLevel))
			path, err := zips.Compress(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	extractCmd := &cobra.Command{
		Use:   "extract <zip> [dir]",
		Short: "Extract an archive, into its own directory by default",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 2 {
				target = args[1]
			}
			zips := archive.NewZipService(commandLogger(cmd, a.cfg.LogLevel))
			if err := zips.Extract(args[0], target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Extracted: %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(compressCmd, extractCmd)
	return cmd
}
