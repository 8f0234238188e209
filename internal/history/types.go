package history

import (
	"context"
	"time"
)

const (
	RecordVersion     = "2.0.0"
	DefaultStorageKey = "meetTranslationHistory"
	UnknownSpeaker    = "Unknown"
)

// Store is the durable key-value storage the history is persisted to.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// LanguageDetector decides whether caption text is already Vietnamese.
type LanguageDetector interface {
	IsVietnamese(text string) bool
}

// Caption is one update from the caption capture layer. Each update carries the
// full current utterance of the speaker, not a delta.
type Caption struct {
	Speaker    string `json:"speaker"`
	Original   string `json:"original"`
	Translated string `json:"translated,omitempty"`
}

// Entry is a finalized speaker turn. Timestamp and Duration are milliseconds.
type Entry struct {
	ID         string `json:"id"`
	Speaker    string `json:"speaker"`
	Original   string `json:"original"`
	Translated string `json:"translated"`
	Timestamp  int64  `json:"timestamp"`
	Duration   int64  `json:"duration"`
	WordCount  int    `json:"wordCount"`
}

func (e Entry) StartedAt() time.Time {
	return time.UnixMilli(e.Timestamp)
}

func (e Entry) Length() time.Duration {
	return time.Duration(e.Duration) * time.Millisecond
}

// LiveBuffer is the in-progress turn of the current speaker. The zero value
// means no one is speaking.
type LiveBuffer struct {
	Speaker    string    `json:"speaker"`
	Original   string    `json:"original"`
	Translated string    `json:"translated"`
	StartTime  time.Time `json:"startTime"`
	LastUpdate time.Time `json:"lastUpdate"`
}

func (b LiveBuffer) IsIdle() bool {
	return b.Speaker == ""
}

// Record is the persisted form of the history.
type Record struct {
	History []Entry `json:"history"`
	SavedAt int64   `json:"savedAt"`
	Version string  `json:"version"`
}

// TranscriptPolicy selects what ends up in Entry.Original and Entry.Translated.
type TranscriptPolicy string

const (
	// PolicyTargetOnly stores the Vietnamese text in both fields: the original
	// when it already is Vietnamese, the translation otherwise.
	PolicyTargetOnly TranscriptPolicy = "target"
	// PolicyKeepSource keeps the source text and its translation apart.
	PolicyKeepSource TranscriptPolicy = "both"
)

func ParsePolicy(s string) (TranscriptPolicy, bool) {
	switch TranscriptPolicy(s) {
	case PolicyTargetOnly, PolicyKeepSource:
		return TranscriptPolicy(s), true
	default:
		return PolicyTargetOnly, false
	}
}

type Settings struct {
	// MinSpeakerDuration is accepted for compatibility; turn detection always
	// finalizes on a speaker switch and never consults it.
	MinSpeakerDuration time.Duration
	AutosaveInterval   time.Duration
	StorageKey         string
	Policy             TranscriptPolicy
}

func DefaultSettings() Settings {
	return Settings{
		MinSpeakerDuration: 3 * time.Second,
		AutosaveInterval:   30 * time.Second,
		StorageKey:         DefaultStorageKey,
		Policy:             PolicyTargetOnly,
	}
}

func (s Settings) merge(next Settings) Settings {
	if next.MinSpeakerDuration > 0 {
		s.MinSpeakerDuration = next.MinSpeakerDuration
	}
	if next.AutosaveInterval > 0 {
		s.AutosaveInterval = next.AutosaveInterval
	}
	if next.StorageKey != "" {
		s.StorageKey = next.StorageKey
	}
	if next.Policy != "" {
		s.Policy = next.Policy
	}
	return s
}

// bufferState is either idle or buffering.
type bufferState interface {
	isBufferState()
}

type idle struct{}

type buffering struct {
	buf LiveBuffer
}

func (idle) isBufferState()      {}
func (buffering) isBufferState() {}
