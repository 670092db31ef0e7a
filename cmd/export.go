package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/creativeprojects/mailfolder/folder"
	"github.com/creativeprojects/mailfolder/importer"
	"github.com/creativeprojects/mailfolder/term"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <mailbox>",
	Short: "Export the messages of a mailbox into an mbox file or a maildir",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var exportFlags struct {
	mbox    string
	maildir string
}

func init() {
	rootCmd.AddCommand(exportCmd)
	flags := exportCmd.Flags()
	flags.StringVar(&exportFlags.mbox, "mbox", "", "mbox file to create")
	flags.StringVar(&exportFlags.maildir, "maildir", "", "maildir to write into")
	exportCmd.MarkFlagsMutuallyExclusive("mbox", "maildir")
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFlags.mbox == "" && exportFlags.maildir == "" {
		return errors.New("missing destination: --mbox or --maildir")
	}
	if exportFlags.mbox != "" && exists(exportFlags.mbox) {
		return fmt.Errorf("file %s already exists", exportFlags.mbox)
	}
	mailStore, err := openStore()
	if err != nil {
		return err
	}
	defer mailStore.Close(context.Background())

	mbox, err := mailStore.Folder(args[0])
	if err != nil {
		return err
	}

	var count int
	if exportFlags.maildir != "" {
		count, err = importer.ToMaildir(cmd.Context(), mbox, exportFlags.maildir)
	} else {
		count, err = exportMbox(cmd.Context(), mbox, exportFlags.mbox)
	}
	term.Infof("%d messages exported", count)
	return err
}

func exportMbox(ctx context.Context, mbox *folder.Folder, filename string) (int, error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, err
	}
	output := bufio.NewWriter(file)
	count, err := importer.ToMbox(ctx, mbox, output)
	if err == nil {
		err = output.Flush()
	}
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	return count, err
}
