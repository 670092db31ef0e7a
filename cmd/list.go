package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/creativeprojects/mailfolder/term"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Display list of mailboxes",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	mailStore, err := openStore()
	if err != nil {
		return err
	}
	defer mailStore.Close(context.Background())

	statuses, err := mailStore.StatusAll(cmd.Context())
	if err != nil {
		return fmt.Errorf("cannot list mailboxes: %w", err)
	}
	table := pterm.TableData{
		{"Mailbox", "Messages", "Unread", "Deleted", "Size", "Flags"},
	}
	for _, status := range statuses {
		name := status.Name
		if status.Cached {
			name += " *"
		}
		table = append(table, []string{
			name,
			strconv.FormatUint(uint64(status.Messages), 10),
			strconv.FormatUint(uint64(status.Unseen), 10),
			strconv.FormatUint(uint64(status.Messages-status.Undeleted), 10),
			strconv.FormatInt(status.Size, 10),
			displayFlags(status.PermanentFlags),
		})
	}
	return term.Table(false, table)
}

func displayFlags(source []string) string {
	flags := make([]string, len(source))
	for i, flag := range source {
		flags[i] = strings.TrimPrefix(flag, "\\")
	}
	return strings.Join(flags, ", ")
}
