package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/creativeprojects/mailfolder/folder"
	"github.com/creativeprojects/mailfolder/term"
	"github.com/spf13/cobra"
)

var flagCmd = &cobra.Command{
	Use:   "flag <mailbox> <index>...",
	Short: "Change the flags of messages",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runFlag,
}

type flagChange struct {
	set   bool
	clear bool
	flag  folder.Flags
}

var flagChanges = map[string]*flagChange{
	"read":      {flag: folder.FlagRead},
	"replied":   {flag: folder.FlagReplied},
	"forwarded": {flag: folder.FlagForwarded},
	"mark":      {flag: folder.FlagMarked},
	"delete":    {flag: folder.FlagDeleted},
}

func init() {
	rootCmd.AddCommand(flagCmd)
	flags := flagCmd.Flags()
	for name, change := range flagChanges {
		flags.BoolVar(&change.set, name, false, "set the "+name+" flag")
		flags.BoolVar(&change.clear, "un"+name, false, "clear the "+name+" flag")
	}
}

func runFlag(cmd *cobra.Command, args []string) error {
	var set, clear folder.Flags
	for name, change := range flagChanges {
		if change.set && change.clear {
			return fmt.Errorf("cannot set and clear the %s flag", name)
		}
		if change.set {
			set |= change.flag
		}
		if change.clear {
			clear |= change.flag
		}
	}
	if set == 0 && clear == 0 {
		return errors.New("no flag to change")
	}

	mailStore, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		err := mailStore.Close(context.Background())
		if err != nil {
			term.Error(err)
		}
	}()

	mbox, err := mailStore.Folder(args[0])
	if err != nil {
		return err
	}
	for _, arg := range args[1:] {
		index, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid message index %q", arg)
		}
		msg, err := mbox.Message(index)
		if err != nil {
			return err
		}
		if set != 0 {
			err = mbox.SetFlag(msg, set, true)
			if err != nil {
				return err
			}
		}
		if clear != 0 {
			err = mbox.SetFlag(msg, clear, false)
			if err != nil {
				return err
			}
		}
		term.Debugf("message %d: %s", index, msg.Flags().Persisted())
	}
	return nil
}
