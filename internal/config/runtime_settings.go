package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/MimeLyc/live-caption-history/internal/captionfilter"
	"github.com/MimeLyc/live-caption-history/pkg/log"
)

// RuntimeSettings are the caption filter settings that can change while the
// service runs, through the API or by editing the settings file.
type RuntimeSettings struct {
	MinLength           int     `json:"min_length"`
	DebounceMS          int     `json:"debounce_ms"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	MaxCacheSize        int     `json:"max_cache_size"`
}

func RuntimeSettingsFromFilter(s captionfilter.Settings) RuntimeSettings {
	return RuntimeSettings{
		MinLength:           s.MinLength,
		DebounceMS:          int(s.Debounce / time.Millisecond),
		SimilarityThreshold: s.SimilarityThreshold,
		MaxCacheSize:        s.MaxCacheSize,
	}
}

func (s RuntimeSettings) FilterSettings() captionfilter.Settings {
	return captionfilter.Settings{
		MinLength:           s.MinLength,
		Debounce:            time.Duration(s.DebounceMS) * time.Millisecond,
		SimilarityThreshold: s.SimilarityThreshold,
		MaxCacheSize:        s.MaxCacheSize,
	}
}

func (s RuntimeSettings) Validate() error {
	if s.MinLength < 1 {
		return fmt.Errorf("min_length must be at least 1")
	}
	if s.DebounceMS < 1 {
		return fmt.Errorf("debounce_ms must be at least 1")
	}
	if s.SimilarityThreshold <= 0 || s.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in (0, 1]")
	}
	if s.MaxCacheSize < 1 {
		return fmt.Errorf("max_cache_size must be at least 1")
	}
	return nil
}

// WithRuntimeSettings overlays a settings file onto the environment configuration.
func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		c.Filter = settings.FilterSettings()
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// RuntimeSettingsStore keeps the current settings, persists updates to the
// settings file and notifies subscribers of every effective change.
type RuntimeSettingsStore struct {
	path string

	mu        sync.RWMutex
	current   RuntimeSettings
	listeners []func(RuntimeSettings)
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) Path() string {
	return s.path
}

// OnChange registers fn to be called after the settings changed.
func (s *RuntimeSettingsStore) OnChange(fn func(RuntimeSettings)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}
	s.apply(next)
	return next, nil
}

// Reload re-reads the settings file. Invalid files are rejected and the
// current settings are kept.
func (s *RuntimeSettingsStore) Reload() (RuntimeSettings, error) {
	next, err := LoadRuntimeSettingsFile(s.path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	s.apply(next)
	return next, nil
}

func (s *RuntimeSettingsStore) apply(next RuntimeSettings) {
	s.mu.Lock()
	if s.current == next {
		s.mu.Unlock()
		return
	}
	s.current = next
	listeners := append([]func(RuntimeSettings){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
}

// Watch reloads the settings whenever the settings file is written, until ctx
// is done. The directory is watched because atomic writes replace the file.
func (s *RuntimeSettingsStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create settings watcher: %w", err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			log.Warn("Failed to close settings watcher: %v", err)
		}
	}()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch settings directory: %w", err)
	}
	log.Info("Watching filter settings file %s", s.path)

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			settings, err := s.Reload()
			if err != nil {
				log.Warn("Ignoring settings file change: %v", err)
				continue
			}
			log.Info("Filter settings reloaded: %+v", settings)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("Settings watcher error: %v", err)
		}
	}
}
