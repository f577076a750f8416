package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func (a *App) newMetadataCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Read or update the metadata of this instance",
	}

	getCmd := &cobra.Command{
		Use:   "get [key]",
		Short: "Print one metadata value, or all items as key=value",
		Long: `Print instance metadata.

Examples:
  finetune-startup metadata get
  finetune-startup metadata get fine_tuning_id`,
		Args: cobra.MaximumNArgs(1),
		RunE: a.runMetadataGet,
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a metadata item, adding it when absent",
		Long: `Set a metadata item.

On GCP the write fails when the metadata changed since it was read;
it is not retried.

Examples:
  finetune-startup metadata set status completed`,
		Args: cobra.ExactArgs(2),
		RunE: a.runMetadataSet,
	}

	cmd.AddCommand(getCmd, setCmd)
	return cmd
}

func (a *App) runMetadataGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client, err := a.newMetadata(ctx, commandLogger(cmd, a.cfg.LogLevel))
	if err != nil {
		return fmt.Errorf("create metadata client: %w", err)
	}

	items, err := client.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("read metadata: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		value, ok := items[args[0]]
		if !ok {
			return fmt.Errorf("metadata key not set: %s", args[0])
		}
		fmt.Fprintln(out, value)
		return nil
	}

	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "%s=%s\n", k, items[k])
	}
	return nil
}

func (a *App) runMetadataSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	client, err := a.newMetadata(ctx, commandLogger(cmd, a.cfg.LogLevel))
	if err != nil {
		return fmt.Errorf("create metadata client: %w", err)
	}

	if err := client.Update(ctx, args[0], args[1]); err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated: %s\n", args[0])
	return nil
}
