package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/creativeprojects/mailfolder/folder"
	"github.com/creativeprojects/mailfolder/term"
	"github.com/spf13/cobra"
)

var appendCmd = &cobra.Command{
	Use:   "append <mailbox> <file>...",
	Short: "Append RFC822 messages to a mailbox",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runAppend,
}

var (
	appendFlags  []string
	appendCreate bool
)

func init() {
	rootCmd.AddCommand(appendCmd)
	flags := appendCmd.Flags()
	flags.StringSliceVar(&appendFlags, "flag", nil, "flags of the new messages (read, replied, forwarded, marked, deleted)")
	flags.BoolVar(&appendCreate, "create", false, "create the mailbox if it doesn't exist")
}

func runAppend(cmd *cobra.Command, args []string) error {
	var flags folder.Flags
	for _, name := range appendFlags {
		flag, err := folder.ParseFlag(name)
		if err != nil {
			return err
		}
		flags |= flag
	}

	mailStore, err := openStore()
	if err != nil {
		return err
	}
	defer mailStore.Close(context.Background())

	mbox, err := mailStore.Folder(args[0])
	if err != nil && appendCreate {
		mbox, err = mailStore.Create(args[0])
	}
	if err != nil {
		return err
	}
	for _, filename := range args[1:] {
		err = appendFile(mbox, filename, flags)
		if err != nil {
			return err
		}
		term.Infof("appended %s", filename)
	}
	return nil
}

func appendFile(mbox *folder.Folder, filename string, flags folder.Flags) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = mbox.Append(file, flags)
	if err != nil {
		return fmt.Errorf("cannot append %s: %w", filename, err)
	}
	return nil
}
