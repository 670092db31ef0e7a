package cmd

import (
	"context"

	"github.com/creativeprojects/mailfolder/folder"
	"github.com/creativeprojects/mailfolder/intern"
	"github.com/creativeprojects/mailfolder/term"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Find duplicate emails across mailboxes (same message-ID)",
	Args:  cobra.NoArgs,
	RunE:  runDuplicates,
}

func init() {
	rootCmd.AddCommand(duplicatesCmd)
}

func runDuplicates(cmd *cobra.Command, args []string) error {
	mailStore, err := openStore()
	if err != nil {
		return err
	}
	defer mailStore.Close(context.Background())

	names, err := mailStore.List()
	if err != nil {
		return err
	}

	duplicates := 0
	// all the folders share the same interning table, so the handles can be compared across folders
	found := make(map[intern.Handle][]*folder.Message, 0)
	for _, name := range names {
		mbox, err := mailStore.Folder(name)
		if err != nil {
			term.Error(err)
			continue
		}
		term.Debugf("reading mailbox %s", name)
		messages, err := mbox.Messages()
		if err != nil {
			term.Error(err)
			continue
		}
		for _, msg := range messages {
			if msg.Has(folder.FlagDeleted) {
				continue
			}
			key := msg.MessageIDHandle()
			if previous, exists := found[key]; exists {
				duplicates++
				found[key] = append(previous, msg)
				continue
			}
			found[key] = []*folder.Message{msg}
		}
	}

	if duplicates > 0 {
		table := pterm.TableData{
			{"Message-ID", "Mailboxes"},
		}
		for _, messages := range found {
			if len(messages) < 2 {
				continue
			}
			mailboxes := ""
			for i, msg := range messages {
				if i > 0 {
					mailboxes += ", "
				}
				mailboxes += msg.Folder().Name()
			}
			table = append(table, []string{messages[0].MessageID(), mailboxes})
		}
		_ = term.Table(false, table)
	}

	term.Infof("total of %d unique messages", len(found))
	switch duplicates {
	case 0:
		term.Info("no duplicate message")
	case 1:
		term.Info("found 1 duplicate message")
	default:
		term.Infof("found %d duplicate messages", duplicates)
	}
	return nil
}
