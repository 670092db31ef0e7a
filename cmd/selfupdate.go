package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/creativeprojects/mailfolder/term"
	"github.com/spf13/cobra"
)

var releases = selfupdate.NewRepositorySlug("creativeprojects", "mailfolder")

var selfUpdateCmd = &cobra.Command{
	Use:   "selfupdate",
	Short: "Replace the running binary with the latest release (or the one given with --to)",
	Args:  cobra.NoArgs,
	RunE:  runSelfUpdate,
}

var selfUpdateFlags struct {
	check   bool
	to      string
	timeout time.Duration
}

func init() {
	rootCmd.AddCommand(selfUpdateCmd)
	flags := selfUpdateCmd.Flags()
	flags.BoolVar(&selfUpdateFlags.check, "check", false, "only display the release that would be installed")
	flags.StringVar(&selfUpdateFlags.to, "to", "", "install this version instead of the latest")
	flags.DurationVar(&selfUpdateFlags.timeout, "timeout", 30*time.Second, "time allowed to look for the release")
}

func runSelfUpdate(cmd *cobra.Command, args []string) error {
	term.Debug(build.String())
	if global.verbose {
		selfupdate.SetLogger(term.NewLogger("selfupdate: "))
	}
	updater, err := selfupdate.NewUpdater(selfupdate.Config{
		Validator: &selfupdate.ChecksumValidator{UniqueFilename: "checksums.txt"},
	})
	if err != nil {
		return err
	}

	release, err := findRelease(cmd.Context(), updater, selfUpdateFlags.to)
	if err != nil {
		return err
	}
	if selfUpdateFlags.to == "" && release.LessOrEqual(build.version) {
		term.Infof("mailfolder %s is up to date", build.version)
		return nil
	}
	if selfUpdateFlags.check {
		term.Infof("mailfolder %s can be installed (running %s)", release.Version(), build.version)
		return nil
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("cannot locate the running binary: %w", err)
	}
	err = updater.UpdateTo(cmd.Context(), release, executable)
	if err != nil {
		return fmt.Errorf("cannot install mailfolder %s: %w", release.Version(), err)
	}
	term.Infof("mailfolder %s installed", release.Version())
	return nil
}

// findRelease looks for the given version, or the latest one when empty
func findRelease(ctx context.Context, updater *selfupdate.Updater, version string) (*selfupdate.Release, error) {
	ctx, cancel := context.WithTimeout(ctx, selfUpdateFlags.timeout)
	defer cancel()

	var (
		release *selfupdate.Release
		found   bool
		err     error
	)
	if version == "" {
		release, found, err = updater.DetectLatest(ctx, releases)
	} else {
		release, found, err = updater.DetectVersion(ctx, releases, version)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot look for releases: %w", err)
	}
	if !found {
		if version == "" {
			version = "latest"
		}
		return nil, fmt.Errorf("no %s release of mailfolder for this platform", version)
	}
	return release, nil
}
