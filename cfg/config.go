package cfg

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/creativeprojects/mailfolder/folder"
	"gopkg.in/yaml.v3"
)

const DefaultCatalogName = ".mailfolder.db"

type Config struct {
	// Root is the directory holding the mailbox files
	Root               string        `yaml:"root"`
	ContentLengthSlack int64         `yaml:"contentLengthSlack"`
	StatusFlushDelay   time.Duration `yaml:"statusFlushDelay"`
	SummaryFlushDelay  time.Duration `yaml:"summaryFlushDelay"`
	FreshnessInterval  time.Duration `yaml:"freshnessInterval"`
	LockTimeout        time.Duration `yaml:"lockTimeout"`
	LockStaleAge       time.Duration `yaml:"lockStaleAge"`
	// CompactRateLimit in bytes per second, zero means unlimited
	CompactRateLimit int `yaml:"compactRateLimit"`
	// Catalog is the bbolt file keeping the UIDs, relative to Root when not absolute
	Catalog string `yaml:"catalog"`
}

func New(root string) *Config {
	config := &Config{Root: root}
	config.setDefaults()
	return config
}

// LoadFromFile loads the configuration from the file
func LoadFromFile(fileName string) (*Config, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	return Load(file)
}

// Load the configuration from a io.ReadCloser
func Load(reader io.ReadCloser) (*Config, error) {
	defer reader.Close()
	decoder := yaml.NewDecoder(reader)
	config := &Config{}
	err := decoder.Decode(config)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("cannot decode configuration: %w", err)
	}
	err = config.validate()
	if err != nil {
		return nil, err
	}
	config.setDefaults()
	return config, nil
}

// CatalogFile returns the full path of the UID catalog
func (c *Config) CatalogFile() string {
	if c.Catalog == "" {
		return filepath.Join(c.Root, DefaultCatalogName)
	}
	if filepath.IsAbs(c.Catalog) {
		return c.Catalog
	}
	return filepath.Join(c.Root, c.Catalog)
}

// FolderOptions converts the configuration for the folders. Zero values get the default.
func (c *Config) FolderOptions() folder.Options {
	options := folder.DefaultOptions()
	if c.ContentLengthSlack > 0 {
		options.ContentLengthSlack = c.ContentLengthSlack
	}
	if c.FreshnessInterval > 0 {
		options.FreshnessInterval = c.FreshnessInterval
	}
	if c.LockTimeout > 0 {
		options.LockTimeout = c.LockTimeout
	}
	if c.LockStaleAge > 0 {
		options.LockStaleAge = c.LockStaleAge
	}
	if c.CompactRateLimit > 0 {
		options.WriteRateLimit = c.CompactRateLimit
	}
	return options
}

func (c *Config) setDefaults() {
	if c.StatusFlushDelay <= 0 {
		c.StatusFlushDelay = folder.DefaultStatusFlushDelay
	}
	if c.SummaryFlushDelay <= 0 {
		c.SummaryFlushDelay = folder.DefaultSummaryFlushDelay
	}
}

func (c *Config) validate() error {
	if c.Root == "" {
		return errors.New("missing root directory in configuration")
	}
	if c.ContentLengthSlack < 0 {
		return fmt.Errorf("invalid contentLengthSlack %d", c.ContentLengthSlack)
	}
	if c.CompactRateLimit < 0 {
		return fmt.Errorf("invalid compactRateLimit %d", c.CompactRateLimit)
	}
	return nil
}
