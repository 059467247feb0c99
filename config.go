// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cosmos

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cosmos-pm/cosmos/internal/fs"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Defaults written by Init.
const (
	DefaultGalaxyName = "core"
	DefaultGalaxyURL  = "file:///mnt/usb/galaxies/core"
	DefaultInstallDir = "/"
	DefaultCacheDir   = "/var/cache/cosmos"
)

// EnvPrefix prefixes environment variables that override config keys, as
// in COSMOS_CACHE_DIR.
const EnvPrefix = "COSMOS"

// Config is the persisted cosmos configuration.
type Config struct {
	// Galaxies maps galaxy names, which are case-insensitive, to a locator:
	// a filesystem path, a file:// URL or a remote URL.
	Galaxies   map[string]string `toml:"galaxies" mapstructure:"galaxies"`
	InstallDir string            `toml:"install_dir" mapstructure:"install_dir"`
	CacheDir   string            `toml:"cache_dir" mapstructure:"cache_dir"`
	// Priority lists galaxy names to consult first, in order. Galaxies not
	// listed follow in lexical order.
	Priority []string `toml:"priority,omitempty" mapstructure:"priority"`
	// Transports enables opt-in fetch schemes: https, ftp, s3.
	Transports []string `toml:"transports,omitempty" mapstructure:"transports"`
}

// GalaxyRef is one configured galaxy.
type GalaxyRef struct {
	Name string
	URL  string
}

// DefaultConfig returns the configuration Init writes.
func DefaultConfig() *Config {
	return &Config{
		Galaxies:   map[string]string{DefaultGalaxyName: DefaultGalaxyURL},
		InstallDir: DefaultInstallDir,
		CacheDir:   DefaultCacheDir,
	}
}

// LoadConfig reads the config file at path. COSMOS_INSTALL_DIR and
// COSMOS_CACHE_DIR override the file.
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, newError(KindIO, path, errors.New("config does not exist; run cosmos init"))
	}

	// Galaxy names may contain dots, so keys must not nest on them.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetDefault("install_dir", DefaultInstallDir)
	v.SetDefault("cache_dir", DefaultCacheDir)

	if err := v.ReadInConfig(); err != nil {
		return nil, newError(KindMetadataParse, path, err)
	}
	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, newError(KindMetadataParse, path, err)
	}
	if err := c.normalize(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return c, nil
}

// EditConfig applies edit to the config file at path as written, without
// environment overrides, and saves the result.
func EditConfig(path string, edit func(*Config) error) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return newError(KindIO, path, err)
	}
	c := &Config{InstallDir: DefaultInstallDir, CacheDir: DefaultCacheDir}
	if err := toml.NewDecoder(bytes.NewReader(b)).Decode(c); err != nil {
		return newError(KindMetadataParse, path, err)
	}
	if err := c.normalize(); err != nil {
		return errors.Wrap(err, path)
	}
	if err := edit(c); err != nil {
		return err
	}
	return c.Save(path)
}

func (c *Config) normalize() error {
	galaxies := make(map[string]string, len(c.Galaxies))
	for name, url := range c.Galaxies {
		name = strings.ToLower(name)
		if name == "" {
			return errorf(KindMissingRequiredField, "galaxies", "empty galaxy name")
		}
		if url == "" {
			return errorf(KindMissingRequiredField, name, "galaxy has no locator")
		}
		galaxies[name] = url
	}
	c.Galaxies = galaxies
	for i, name := range c.Priority {
		c.Priority[i] = strings.ToLower(name)
	}
	if c.InstallDir == "" {
		return errorf(KindMissingRequiredField, "install_dir", "empty")
	}
	if c.CacheDir == "" {
		return errorf(KindMissingRequiredField, "cache_dir", "empty")
	}
	return nil
}

// Bytes serializes the config as TOML.
func (c *Config) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the config to path atomically.
func (c *Config) Save(path string) error {
	b, err := c.Bytes()
	if err != nil {
		return newError(KindIO, path, errors.Wrap(err, "unable to marshal config"))
	}
	if err := fs.WriteFileAtomic(path, b, 0644); err != nil {
		return newError(KindIO, path, err)
	}
	return nil
}

// Ordered returns the configured galaxies in priority order.
func (c *Config) Ordered() []GalaxyRef {
	seen := make(map[string]bool, len(c.Galaxies))
	refs := make([]GalaxyRef, 0, len(c.Galaxies))
	for _, name := range c.Priority {
		name = strings.ToLower(name)
		url, ok := c.Galaxies[name]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		refs = append(refs, GalaxyRef{Name: name, URL: url})
	}

	var rest []string
	for name := range c.Galaxies {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		refs = append(refs, GalaxyRef{Name: name, URL: c.Galaxies[name]})
	}
	return refs
}

// AddGalaxy adds or replaces a galaxy.
func (c *Config) AddGalaxy(name, url string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return errorf(KindMissingRequiredField, "galaxy", "empty name")
	}
	if url == "" {
		return errorf(KindMissingRequiredField, name, "empty locator")
	}
	if c.Galaxies == nil {
		c.Galaxies = make(map[string]string)
	}
	c.Galaxies[name] = url
	return nil
}

// RemoveGalaxy drops a galaxy and its priority entry, reporting whether it
// was configured.
func (c *Config) RemoveGalaxy(name string) bool {
	name = strings.ToLower(name)
	_, ok := c.Galaxies[name]
	delete(c.Galaxies, name)

	kept := c.Priority[:0]
	for _, p := range c.Priority {
		if p != name {
			kept = append(kept, p)
		}
	}
	c.Priority = kept
	return ok
}

// GalaxyCacheDir is where a remote galaxy is mirrored.
func (c *Config) GalaxyCacheDir(name string) string {
	return filepath.Join(c.CacheDir, "galaxies", name)
}

// TarballPath is where a star's artifact is cached for galaxy.
func (c *Config) TarballPath(galaxy string, s *Star) string {
	return filepath.Join(c.GalaxyCacheDir(galaxy), "packages", s.TarballName())
}
