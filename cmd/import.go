package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/creativeprojects/mailfolder/importer"
	"github.com/creativeprojects/mailfolder/lib"
	"github.com/creativeprojects/mailfolder/mailbox"
	"github.com/creativeprojects/mailfolder/term"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <mailbox>",
	Short: "Import messages from an mbox file or a maildir",
	Long:  "\nImport messages from an mbox file or a maildir. Messages already imported from the same source are skipped.",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var importFlags struct {
	mbox      string
	maildir   string
	rateLimit int
}

func init() {
	rootCmd.AddCommand(importCmd)
	flags := importCmd.Flags()
	flags.StringVar(&importFlags.mbox, "mbox", "", "mbox file to import")
	flags.StringVar(&importFlags.maildir, "maildir", "", "maildir to import")
	flags.IntVar(&importFlags.rateLimit, "rate-limit", 0, "maximum reading speed in bytes per second")
	importCmd.MarkFlagsMutuallyExclusive("mbox", "maildir")
}

func runImport(cmd *cobra.Command, args []string) error {
	if importFlags.mbox == "" && importFlags.maildir == "" {
		return errors.New("missing source: --mbox or --maildir")
	}
	mailStore, err := openStore()
	if err != nil {
		return err
	}
	defer mailStore.Close(context.Background())

	name := args[0]
	mbox, err := mailStore.Folder(name)
	if errors.Is(err, lib.ErrMailboxNotFound) {
		mbox, err = mailStore.Create(name)
	}
	if err != nil {
		return err
	}
	// the appended messages are kept in memory for the history
	err = mbox.Load()
	if err != nil {
		return err
	}

	historyFile := mailStore.HistoryPath(name)
	history, err := mailbox.LoadHistory(historyFile)
	if err != nil {
		return err
	}
	imp := importer.New(mbox, history, logger())
	imp.SetRateLimit(importFlags.rateLimit)
	spinner, _ := pterm.DefaultSpinner.Start("importing into " + name)
	progress := newSpinnerProgresser(spinner)
	imp.SetProgress(progress)

	var result importer.Result
	if importFlags.mbox != "" {
		result, err = importMbox(cmd.Context(), imp, importFlags.mbox)
	} else {
		result, err = imp.FromMaildir(cmd.Context(), importFlags.maildir)
	}
	progress.Stop()

	saveErr := history.Save(historyFile)
	if saveErr != nil {
		term.Errorf("cannot save history: %s", saveErr)
	}
	term.Infof("%d messages imported, %d already imported before", result.Imported, result.Skipped)
	return err
}

func importMbox(ctx context.Context, imp *importer.Importer, filename string) (importer.Result, error) {
	file, err := os.Open(filename)
	if err != nil {
		return importer.Result{}, err
	}
	defer file.Close()

	location, err := filepath.Abs(filename)
	if err != nil {
		location = filename
	}
	result, err := imp.FromMbox(ctx, file, location)
	if err != nil {
		return result, fmt.Errorf("import from %s: %w", filename, err)
	}
	return result, nil
}
