package cmd

import (
	"context"

	"github.com/creativeprojects/mailfolder/term"
	"github.com/spf13/cobra"
)

var expungeCmd = &cobra.Command{
	Use:   "expunge <mailbox>...",
	Short: "Remove the messages flagged as deleted",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExpunge,
}

var expungeCompact bool

func init() {
	rootCmd.AddCommand(expungeCmd)
	expungeCmd.Flags().BoolVar(&expungeCompact, "compact", false, "rewrite the mailbox even when no message is deleted")
}

func runExpunge(cmd *cobra.Command, args []string) error {
	mailStore, err := openStore()
	if err != nil {
		return err
	}
	defer mailStore.Close(context.Background())

	for _, name := range args {
		mbox, err := mailStore.Folder(name)
		if err != nil {
			return err
		}
		expunge := mbox.Expunge
		if expungeCompact {
			expunge = mbox.Compact
		}
		removed, err := expunge()
		if err != nil {
			return err
		}
		stats := mbox.Stats()
		term.Infof("%s: %d messages removed", name, len(removed))
		term.Debugf("%s: %d messages read, %d bytes scanned, %d Content-Length mismatches",
			name, stats.Messages, stats.BytesScanned, stats.SlackMisses)
	}
	return nil
}
