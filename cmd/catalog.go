package cmd

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/creativeprojects/mailfolder/term"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Display the UID catalog of the mailboxes",
	Args:  cobra.NoArgs,
	RunE:  runCatalog,
}

var catalogFlags struct {
	prune  bool
	backup string
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	flags := catalogCmd.Flags()
	flags.BoolVar(&catalogFlags.prune, "prune", false, "remove the entries of the mailboxes that don't exist anymore")
	flags.StringVar(&catalogFlags.backup, "backup", "", "copy the catalog into this file")
}

func runCatalog(cmd *cobra.Command, args []string) error {
	mailStore, err := openStore()
	if err != nil {
		return err
	}
	defer mailStore.Close(context.Background())

	if catalogFlags.backup != "" {
		err = mailStore.BackupCatalog(catalogFlags.backup)
		if err != nil {
			return err
		}
		term.Infof("catalog saved into %s", catalogFlags.backup)
	}
	if catalogFlags.prune {
		pruned, err := mailStore.Prune()
		for _, name := range pruned {
			term.Infof("removed %s from the catalog", name)
		}
		if err != nil {
			return err
		}
	}

	entries, err := mailStore.Catalog()
	if err != nil {
		return err
	}
	table := pterm.TableData{
		{"Mailbox", "UIDVALIDITY", "Created", "File"},
	}
	for _, entry := range entries {
		file := "yes"
		if !exists(filepath.Join(mailStore.Root(), entry.Name)) {
			file = "missing"
		}
		table = append(table, []string{
			entry.Name,
			strconv.FormatUint(uint64(entry.UidValidity), 10),
			entry.Created.Format(dateFormat),
			file,
		})
	}
	return term.Table(false, table)
}
