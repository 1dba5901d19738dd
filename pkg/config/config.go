// Package config loads the news-globe client configuration from a YAML file
// under the XDG config directory, with optional live reload.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// FilterDefaults seeds the time/color filter model at startup.
type FilterDefaults struct {
	Enabled     bool   `yaml:"enabled"`
	ColorCoding bool   `yaml:"color_coding"`
	WindowHours int    `yaml:"window_hours"`
	ColorFrom   string `yaml:"color_from"` // hex, oldest end of the gradient
	ColorTo     string `yaml:"color_to"`   // hex, newest end of the gradient
}

// AudioConfig controls the optional ambient soundtrack.
type AudioConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type Config struct {
	BackendURL string `yaml:"backend_url"`

	// Poll cadences. Fetch is the slow network poll; repaint is the denser
	// UI settle tick; snapshot_refresh feeds lookahead consumers; overlay
	// drives the live-position feeds.
	FetchInterval    string `yaml:"fetch_interval"`
	RepaintInterval  string `yaml:"repaint_interval"`
	SnapshotRefresh  string `yaml:"snapshot_refresh"`
	OverlayInterval  string `yaml:"overlay_interval"`
	ViewportDebounce string `yaml:"viewport_debounce"`
	SidebarDebounce  string `yaml:"sidebar_debounce"`

	// QueryWindow is the trailing window sent to the backend, e.g. "24h".
	QueryWindow string `yaml:"query_window"`

	DataDir string `yaml:"data_dir"`

	// HighlightKeywords mark sidebar rows whose cluster title or summary
	// contains any of these (case-insensitive substring match).
	HighlightKeywords []string `yaml:"highlight_keywords"`

	Filter FilterDefaults `yaml:"filter"`
	Audio  AudioConfig    `yaml:"audio"`
}

func Default() *Config {
	return &Config{
		BackendURL:       "http://localhost:8080",
		FetchInterval:    "15s",
		RepaintInterval:  "5s",
		SnapshotRefresh:  "10s",
		OverlayInterval:  "5s",
		ViewportDebounce: "1s",
		SidebarDebounce:  "300ms",
		QueryWindow:      "24h",
		Filter: FilterDefaults{
			Enabled:     false,
			ColorCoding: true,
			WindowHours: 24,
			ColorFrom:   "#2040c0",
			ColorTo:     "#ff4020",
		},
		Audio: AudioConfig{Dir: "audio"},
	}
}

// DefaultPath returns the XDG-resolved config file location.
func DefaultPath() (string, error) {
	return xdg.ConfigFile(filepath.Join("news-globe", "config.yaml"))
}

// Load reads cfg from path, filling defaults for anything unset. A missing
// file is not an error: defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for name, s := range map[string]string{
		"fetch_interval":    c.FetchInterval,
		"repaint_interval":  c.RepaintInterval,
		"snapshot_refresh":  c.SnapshotRefresh,
		"overlay_interval":  c.OverlayInterval,
		"viewport_debounce": c.ViewportDebounce,
		"sidebar_debounce":  c.SidebarDebounce,
	} {
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, s, err)
		}
	}
	if c.Filter.WindowHours <= 0 {
		return fmt.Errorf("filter.window_hours must be positive, got %d", c.Filter.WindowHours)
	}
	return nil
}

func (c *Config) duration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		// validate() already rejected malformed values; this covers the
		// zero-value Config used in tests.
		return 5 * time.Second
	}
	return d
}

func (c *Config) FetchEvery() time.Duration    { return c.duration(c.FetchInterval) }
func (c *Config) RepaintEvery() time.Duration  { return c.duration(c.RepaintInterval) }
func (c *Config) SnapshotEvery() time.Duration { return c.duration(c.SnapshotRefresh) }
func (c *Config) OverlayEvery() time.Duration  { return c.duration(c.OverlayInterval) }
func (c *Config) ViewportSettle() time.Duration {
	return c.duration(c.ViewportDebounce)
}
func (c *Config) SidebarSettle() time.Duration { return c.duration(c.SidebarDebounce) }

// ResolveDataDir returns the directory for the snapshot store and download
// cache, creating it if needed.
func (c *Config) ResolveDataDir() (string, error) {
	dir := c.DataDir
	if dir == "" {
		var err error
		dir, err = xdg.DataFile("news-globe")
		if err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Watch reloads the config whenever the file changes and hands the fresh
// value to onChange. Parse failures keep the previous config. The returned
// stop function releases the watcher.
func Watch(path string, onChange func(*Config)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace the file, which drops a watch
	// registered on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					log.Printf("Config reload failed, keeping previous: %v", err)
					continue
				}
				log.Printf("Config reloaded from %s", path)
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("Config watcher error: %v", err)
			}
		}
	}()
	return func() { watcher.Close() }, nil
}
