package cmd

import (
	"os"

	"github.com/creativeprojects/mailfolder/term"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "mailfolder",
	Short:         "Berkeley mailbox folders: list, read, flag, expunge, import",
	Long:          "\nBerkeley mailbox folders with summary files: list, read, flag, expunge, import",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initLog)
	flag := rootCmd.PersistentFlags()
	flag.StringVarP(&global.configFile, "config", "c", "mailfolder.yaml", "configuration file")
	flag.StringVarP(&global.root, "root", "r", "", "directory of the mailbox files (overrides the configuration)")
	flag.BoolVarP(&global.quiet, "quiet", "q", false, "only display warnings and errors")
	flag.BoolVarP(&global.verbose, "verbose", "v", false, "display debugging information")
}

func initLog() {
	switch {
	case global.verbose:
		term.SetLevel(term.LevelDebug)
	case global.quiet:
		term.SetLevel(term.LevelWarn)
	}
}

func Execute(version, commit, date, builtBy string) {
	build = buildInfo{version: version, commit: commit, date: date, builtBy: builtBy}
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		term.Error(err)
		os.Exit(1)
	}
}
