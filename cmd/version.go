package cmd

import (
	"runtime"

	"github.com/creativeprojects/mailfolder/term"
	"github.com/spf13/cobra"
)

type buildInfo struct {
	version string
	commit  string
	date    string
	builtBy string
}

// set from main on startup
var build = buildInfo{version: "dev"}

func (b buildInfo) String() string {
	info := "mailfolder " + b.version
	if b.commit != "" {
		info += " (commit " + b.commit + ")"
	}
	if b.date != "" {
		info += " built on " + b.date
	}
	if b.builtBy != "" {
		info += " by " + b.builtBy
	}
	return info + " " + runtime.GOOS + "/" + runtime.GOARCH
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		term.Info(build.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
