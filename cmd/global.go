package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/creativeprojects/mailfolder/cfg"
	"github.com/creativeprojects/mailfolder/lib"
	"github.com/creativeprojects/mailfolder/store"
	"github.com/creativeprojects/mailfolder/term"
)

type GlobalFlags struct {
	configFile string
	root       string
	quiet      bool
	verbose    bool
}

var global GlobalFlags

// loadConfig reads the configuration file. The --root flag overrides the root directory,
// and is enough on its own when there's no configuration file.
func loadConfig() (*cfg.Config, error) {
	config, err := cfg.LoadFromFile(global.configFile)
	if err != nil {
		if global.root == "" || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("cannot open or read configuration file: %w", err)
		}
		return cfg.New(global.root), nil
	}
	if global.root != "" {
		config.Root = global.root
	}
	return config, nil
}

func logger() lib.Logger {
	if global.verbose {
		return term.NewLogger("")
	}
	return &lib.NoLog{}
}

func openStore() (*store.Store, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, err
	}
	term.Debugf("mail folders in %s", config.Root)
	return store.New(config, logger())
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
