package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Catalog sources.
const (
	CatalogSourceFile     = "file"
	CatalogSourcePostgres = "postgres"
)

// feedExtensions lists the file formats the file source can decode.
var feedExtensions = []string{".json", ".yaml", ".yml"}

// CatalogConfig selects where experiment and segment feeds come from and how
// often the installed catalog is refreshed.
type CatalogConfig struct {
	Source          string `envconfig:"SOURCE" default:"file" validate:"oneof=file postgres"`
	ExperimentsFile string `envconfig:"EXPERIMENTS_FILE" default:"feeds/experiments.json"`
	SegmentsFile    string `envconfig:"SEGMENTS_FILE" default:"feeds/segments.json"`

	// ReloadInterval of zero disables periodic reloads.
	ReloadInterval time.Duration `envconfig:"RELOAD_INTERVAL" default:"5m"`
	FetchTimeout   time.Duration `envconfig:"FETCH_TIMEOUT" default:"10s" validate:"min=1s"`

	// Watch reloads the catalog when a feed file changes. File source only.
	Watch         bool          `envconfig:"WATCH" default:"true"`
	WatchDebounce time.Duration `envconfig:"WATCH_DEBOUNCE" default:"500ms"`
}

// Validate checks CatalogConfig fields for correctness.
func (c *CatalogConfig) Validate() error {
	if c.ReloadInterval != 0 && c.ReloadInterval < time.Second {
		return fmt.Errorf("catalog reload interval must be 0 (disabled) or at least 1s, got %s", c.ReloadInterval)
	}
	if c.WatchDebounce < 0 {
		return fmt.Errorf("catalog watch debounce cannot be negative")
	}

	if c.Source != CatalogSourceFile {
		return nil
	}

	for _, path := range []string{c.ExperimentsFile, c.SegmentsFile} {
		if err := validateFeedPath(path); err != nil {
			return err
		}
	}
	return nil
}

// WatchEnabled reports whether feed files should be watched for changes.
func (c *CatalogConfig) WatchEnabled() bool {
	return c.Watch && c.Source == CatalogSourceFile
}

func validateFeedPath(path string) error {
	if err := validateNoWhitespace(path, "catalog feed path"); err != nil {
		return err
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(feedExtensions, ext) {
		return fmt.Errorf("catalog feed %q must have one of the extensions %v", path, feedExtensions)
	}
	return nil
}
