// Package captionfilter decides whether a raw live caption carries new content
// worth forwarding, suppressing noise, near-duplicates and rapid-fire repeats.
package captionfilter

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/MimeLyc/live-caption-history/internal/textsim"
	"github.com/MimeLyc/live-caption-history/pkg/log"
)

const (
	// specialCharLimit is the non-alphanumeric share at which a caption is noise.
	specialCharLimit = 0.9
	// recentWindow is how many of the newest cached captions are similarity-checked.
	recentWindow = 5
)

type Settings struct {
	MinLength           int           `json:"min_length"`
	Debounce            time.Duration `json:"debounce"`
	SimilarityThreshold float64       `json:"similarity_threshold"`
	MaxCacheSize        int           `json:"max_cache_size"`
}

func DefaultSettings() Settings {
	return Settings{
		MinLength:           10,
		Debounce:            time.Second,
		SimilarityThreshold: 0.85,
		MaxCacheSize:        100,
	}
}

// merge overlays the non-zero fields of next onto s.
func (s Settings) merge(next Settings) Settings {
	if next.MinLength > 0 {
		s.MinLength = next.MinLength
	}
	if next.Debounce > 0 {
		s.Debounce = next.Debounce
	}
	if next.SimilarityThreshold > 0 {
		s.SimilarityThreshold = next.SimilarityThreshold
	}
	if next.MaxCacheSize > 0 {
		s.MaxCacheSize = next.MaxCacheSize
	}
	return s
}

type Reason string

const (
	ReasonAccepted      Reason = ""
	ReasonEmpty         Reason = "empty"
	ReasonTooShort      Reason = "too_short"
	ReasonSpecialChars  Reason = "special_chars"
	ReasonDuplicate     Reason = "duplicate"
	ReasonDebounced     Reason = "debounced"
	ReasonCached        Reason = "cached"
	ReasonSimilarRecent Reason = "similar_recent"
)

type Stats struct {
	Total     int `json:"total"`
	Filtered  int `json:"filtered"`
	Processed int `json:"processed"`
	CacheSize int `json:"cache_size"`
}

// FilterRate is the percentage of captions rejected so far.
func (s Stats) FilterRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Filtered) / float64(s.Total) * 100
}

type Filter struct {
	mu       sync.Mutex
	settings Settings
	now      func() time.Time

	cache    []string
	cacheSet map[string]struct{}

	lastCaption     string
	lastCaptionTime time.Time

	stats Stats
}

type Option func(*Filter)

func WithSettings(s Settings) Option {
	return func(f *Filter) {
		f.settings = f.settings.merge(s)
	}
}

// WithClock replaces time.Now, used by the debounce window.
func WithClock(now func() time.Time) Option {
	return func(f *Filter) {
		f.now = now
	}
}

func New(opts ...Option) *Filter {
	f := &Filter{
		settings: DefaultSettings(),
		now:      time.Now,
		cacheSet: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	log.Debug("Caption filter initialized: %+v", f.settings)
	return f
}

// ShouldProcess reports whether text should be forwarded downstream.
func (f *Filter) ShouldProcess(text string) bool {
	ok, _ := f.Check(text)
	return ok
}

// Check runs the filter gate and returns the rejection reason, if any.
// Every call counts towards Total; rejections count towards Filtered.
func (f *Filter) Check(text string) (bool, Reason) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stats.Total++
	reason := f.evaluateLocked(text)
	if reason != ReasonAccepted {
		f.stats.Filtered++
		log.Debug("Caption filtered (%s): %q", reason, preview(text, 30))
		return false, reason
	}
	return true, ReasonAccepted
}

func (f *Filter) evaluateLocked(text string) Reason {
	text = strings.TrimSpace(text)
	if text == "" {
		return ReasonEmpty
	}
	if utf8.RuneCountInString(text) < f.settings.MinLength {
		return ReasonTooShort
	}
	if textsim.SpecialCharRatio(text) >= specialCharLimit {
		return ReasonSpecialChars
	}
	if text == f.lastCaption {
		return ReasonDuplicate
	}

	now := f.now()
	if f.lastCaption != "" && now.Sub(f.lastCaptionTime) < f.settings.Debounce {
		if textsim.Similarity(text, f.lastCaption) >= f.settings.SimilarityThreshold {
			return ReasonDebounced
		}
	}

	if _, ok := f.cacheSet[text]; ok {
		return ReasonCached
	}
	if f.similarToRecentLocked(text) {
		return ReasonSimilarRecent
	}

	f.addToCacheLocked(text)
	f.lastCaption = text
	f.lastCaptionTime = now
	f.stats.Processed++
	return ReasonAccepted
}

func (f *Filter) similarToRecentLocked(text string) bool {
	start := max(len(f.cache)-recentWindow, 0)
	for _, recent := range f.cache[start:] {
		if sim := textsim.Similarity(text, recent); sim >= f.settings.SimilarityThreshold {
			log.Debug("Similar caption detected (%.1f%%): %q ~ %q", sim*100, preview(text, 30), preview(recent, 30))
			return true
		}
	}
	return false
}

func (f *Filter) addToCacheLocked(text string) {
	f.cache = append(f.cache, text)
	f.cacheSet[text] = struct{}{}
	f.evictLocked()
}

// evictLocked drops the oldest captions until the cache fits MaxCacheSize.
func (f *Filter) evictLocked() {
	for len(f.cache) > f.settings.MaxCacheSize {
		delete(f.cacheSet, f.cache[0])
		f.cache[0] = ""
		f.cache = f.cache[1:]
	}
}

// UpdateSettings merges the non-zero fields of next into the current settings.
func (f *Filter) UpdateSettings(next Settings) Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = f.settings.merge(next)
	f.evictLocked()
	log.Info("Caption filter settings updated: %+v", f.settings)
	return f.settings
}

func (f *Filter) Settings() Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

func (f *Filter) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	ret := f.stats
	ret.CacheSize = len(f.cache)
	return ret
}

// Reset clears the cache, last-caption tracking and statistics.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache = nil
	f.cacheSet = make(map[string]struct{})
	f.lastCaption = ""
	f.lastCaptionTime = time.Time{}
	f.stats = Stats{}
	log.Info("Caption filter reset")
}

// ClearCache empties the duplicate cache only.
func (f *Filter) ClearCache() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache = nil
	f.cacheSet = make(map[string]struct{})
}

func preview(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
