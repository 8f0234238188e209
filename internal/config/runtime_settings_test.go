package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/live-caption-history/internal/captionfilter"
)

func validRuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		MinLength:           10,
		DebounceMS:          1000,
		SimilarityThreshold: 0.85,
		MaxCacheSize:        100,
	}
}

func TestRuntimeSettings_Validate(t *testing.T) {
	valid := validRuntimeSettings()
	require.NoError(t, valid.Validate())

	invalid := valid
	invalid.SimilarityThreshold = 0
	require.Error(t, invalid.Validate())

	invalidCache := valid
	invalidCache.MaxCacheSize = 0
	require.Error(t, invalidCache.Validate())

	invalidLength := valid
	invalidLength.MinLength = -1
	require.Error(t, invalidLength.Validate())
}

func TestRuntimeSettings_FilterConversion(t *testing.T) {
	defaults := captionfilter.DefaultSettings()
	rs := RuntimeSettingsFromFilter(defaults)
	assert.Equal(t, validRuntimeSettings(), rs)
	assert.Equal(t, defaults, rs.FilterSettings())
}

func TestRuntimeSettingsFile_RoundTrip(t *testing.T) {
	tmp := t.TempDir()
	filePath := filepath.Join(tmp, "settings", "filter.json")
	input := validRuntimeSettings()
	input.MinLength = 4

	require.NoError(t, WriteRuntimeSettingsFile(filePath, input))

	got, err := LoadRuntimeSettingsFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, input, got)

	info, err := os.Stat(filePath)
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}

func TestWriteRuntimeSettingsFile_RejectsInvalid(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "filter.json")
	require.Error(t, WriteRuntimeSettingsFile(filePath, RuntimeSettings{}))
	_, err := os.Stat(filePath)
	assert.True(t, os.IsNotExist(err))
}

func TestWithRuntimeSettings_OverridesConfig(t *testing.T) {
	t.Setenv("FILTER_MIN_LENGTH", "20")

	override := validRuntimeSettings()
	override.MinLength = 3
	override.DebounceMS = 400

	cfg, err := NewFromEnv(WithRuntimeSettings(override))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Filter.MinLength)
	assert.Equal(t, 400*time.Millisecond, cfg.Filter.Debounce)
}

func TestRuntimeSettingsStore_UpdatePersistsFileAndNotifies(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "filter.json")

	store, err := NewRuntimeSettingsStore(filePath, validRuntimeSettings())
	require.NoError(t, err)

	var notified []RuntimeSettings
	store.OnChange(func(s RuntimeSettings) { notified = append(notified, s) })

	next := validRuntimeSettings()
	next.MaxCacheSize = 5
	got, err := store.UpdateRuntimeSettings(next)
	require.NoError(t, err)
	assert.Equal(t, next, got)

	loaded, err := LoadRuntimeSettingsFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, next, loaded)

	// Unchanged settings do not notify again.
	_, err = store.UpdateRuntimeSettings(next)
	require.NoError(t, err)
	assert.Equal(t, []RuntimeSettings{next}, notified)

	_, err = store.UpdateRuntimeSettings(RuntimeSettings{})
	require.Error(t, err)
	current, _ := store.GetRuntimeSettings()
	assert.Equal(t, next, current)
}

func TestRuntimeSettingsStore_WatchAppliesExternalEdits(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "filter.json")
	require.NoError(t, WriteRuntimeSettingsFile(filePath, validRuntimeSettings()))

	store, err := NewRuntimeSettingsStore(filePath, validRuntimeSettings())
	require.NoError(t, err)

	var mu sync.Mutex
	var latest RuntimeSettings
	store.OnChange(func(s RuntimeSettings) {
		mu.Lock()
		latest = s
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	edited := validRuntimeSettings()
	edited.MinLength = 2
	require.Eventually(t, func() bool {
		// Rewrite until the watcher is up and picks the change.
		_ = WriteRuntimeSettingsFile(filePath, edited)
		mu.Lock()
		defer mu.Unlock()
		return latest == edited
	}, 5*time.Second, 50*time.Millisecond)

	current, _ := store.GetRuntimeSettings()
	assert.Equal(t, edited, current)
}
