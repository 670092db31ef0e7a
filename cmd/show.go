package cmd

import (
	"context"
	"strconv"

	"github.com/creativeprojects/mailfolder/term"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

const dateFormat = "2006-01-02 15:04:05 MST"

var showCmd = &cobra.Command{
	Use:   "show <mailbox>",
	Short: "Display the messages of a mailbox",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	mailStore, err := openStore()
	if err != nil {
		return err
	}
	defer mailStore.Close(context.Background())

	mbox, err := mailStore.Folder(args[0])
	if err != nil {
		return err
	}
	messages, err := mbox.Messages()
	if err != nil {
		return err
	}
	table := pterm.TableData{
		{"#", "Offset", "Length", "Flags", "Date", "From", "Subject"},
	}
	for i, msg := range messages {
		date := ""
		if !msg.Date().IsZero() {
			date = msg.Date().Format(dateFormat)
		}
		table = append(table, []string{
			strconv.Itoa(i),
			strconv.FormatInt(msg.Offset(), 10),
			strconv.FormatInt(msg.Length(), 10),
			msg.Flags().Persisted().String(),
			date,
			msg.Author(),
			msg.Subject(),
		})
	}
	return term.Table(false, table)
}
