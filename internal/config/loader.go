package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".wavecrawl"

// xdgConfigFile is the file name looked up inside XDGConfigDir.
const xdgConfigFile = "config.yaml"

var (
	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidSiteConfig is returned when a site entry carries a malformed
	// URL pattern or CSS selector.
	ErrInvalidSiteConfig = errors.New("invalid site configuration")
)

// LoadConfigFile reads and validates the YAML site configuration at path.
// Unknown keys are rejected so a misspelled "ignorePattern" is not silently
// dropped. A missing file yields ErrConfigNotFound; whether that matters is
// up to the caller.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cf, err := parseConfigFile(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cf, nil
}

func parseConfigFile(data []byte) (*File, error) {
	var cf File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if cf.Sites == nil {
		cf.Sites = make(map[string]SiteConfig)
	}

	if err := cf.Defaults.validate(); err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}
	for host, site := range cf.Sites {
		if err := site.validate(); err != nil {
			return nil, fmt.Errorf("site %s: %w", host, err)
		}
	}
	return &cf, nil
}

// validate checks the globs and the selector compile the way the crawler
// will use them.
func (sc SiteConfig) validate() error {
	for _, group := range [][]string{sc.IgnorePatterns, sc.FollowPatterns, sc.TargetPatterns} {
		for _, p := range group {
			if _, err := filepath.Match(p, ""); err != nil {
				return fmt.Errorf("%w: pattern %q: %w", ErrInvalidSiteConfig, p, err)
			}
		}
	}
	if sc.TargetSelector != "" {
		if _, err := cascadia.Compile(sc.TargetSelector); err != nil {
			return fmt.Errorf("%w: selector %q: %w", ErrInvalidSiteConfig, sc.TargetSelector, err)
		}
	}
	return nil
}

// FindConfigFile returns the configuration file to load, or "" if none
// exists. An explicit configPath is used as is. Otherwise the first existing
// file among these wins:
//   - ./.wavecrawl
//   - $XDG_CONFIG_HOME/wavecrawl/config.yaml
//   - ~/.wavecrawl
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if fileExists(configPath) {
			return configPath
		}
		return ""
	}

	for _, candidate := range configCandidates() {
		if fileExists(candidate) {
			return candidate
		}
	}
	return ""
}

func configCandidates() []string {
	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	candidates = append(candidates, XDGConfigFile())
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	return candidates
}

// XDGConfigFile returns the per-user configuration file path inside
// XDGConfigDir.
func XDGConfigFile() string {
	return filepath.Join(XDGConfigDir(), xdgConfigFile)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
