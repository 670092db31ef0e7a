package cmd

import (
	"context"
	"strconv"

	"github.com/creativeprojects/mailfolder/mailbox"
	"github.com/creativeprojects/mailfolder/term"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [mailbox]...",
	Short: "Display history of imports",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	mailStore, err := openStore()
	if err != nil {
		return err
	}
	defer mailStore.Close(context.Background())

	names := args
	if len(names) == 0 {
		names, err = mailStore.List()
		if err != nil {
			return err
		}
	}
	if len(names) == 0 {
		term.Warn("No mailbox found")
	}

	for _, name := range names {
		history, err := mailbox.LoadHistory(mailStore.HistoryPath(name))
		if err != nil {
			term.Error(err)
			continue
		}
		if len(history.Actions) == 0 {
			continue
		}
		term.Infof("%s:", name)
		displayHistory(history)
	}
	return nil
}

func displayHistory(history *mailbox.History) {
	table := pterm.TableData{
		{"Date", "Action", "Source", "Messages"},
	}
	for _, action := range history.Actions {
		table = append(table, []string{
			action.Date.Format(dateFormat),
			action.Action,
			action.SourceTag[0:min(16, len(action.SourceTag))],
			strconv.Itoa(len(action.Entries)),
		})
	}
	_ = term.Table(true, table)
	term.Debugf("last import on %s", history.LastAction().Format(dateFormat))
}
