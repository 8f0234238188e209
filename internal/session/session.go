// Package session wires the caption filter, translation and the history manager
// into the single ingestion path captions go through.
package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/language"

	"github.com/MimeLyc/live-caption-history/internal/captionfilter"
	"github.com/MimeLyc/live-caption-history/internal/history"
	"github.com/MimeLyc/live-caption-history/internal/translator"
	"github.com/MimeLyc/live-caption-history/pkg/log"
)

const defaultTranslateTimeout = 10 * time.Second

// Detector decides whether a caption still needs translating.
type Detector interface {
	NeedsTranslation(text string, target language.Tag) bool
}

type Result struct {
	Accepted   bool                 `json:"accepted"`
	Reason     captionfilter.Reason `json:"reason,omitempty"`
	Translated string               `json:"translated,omitempty"`
}

type Stats struct {
	Filter             captionfilter.Stats `json:"filter"`
	FilterRate         float64             `json:"filter_rate"`
	HistoryEntries     int                 `json:"history_entries"`
	LiveSpeaker        string              `json:"live_speaker,omitempty"`
	Translations       int                 `json:"translations"`
	TranslationFailure int                 `json:"translation_failures"`
}

// Session serializes caption ingestion so captions are filtered, translated and
// recorded in strict arrival order.
type Session struct {
	filter     *captionfilter.Filter
	history    *history.Manager
	detector   Detector
	translator translator.Translator
	target     language.Tag
	timeout    time.Duration

	// mu orders ingestion only; counters are read without it.
	mu           sync.Mutex
	translations atomic.Int64
	failures     atomic.Int64
}

type Option func(*Session)

// WithTranslator enables translation of captions that arrive without one.
func WithTranslator(t translator.Translator) Option {
	return func(s *Session) {
		s.translator = t
	}
}

func WithTarget(tag language.Tag) Option {
	return func(s *Session) {
		s.target = tag
	}
}

func WithTranslateTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(filter *captionfilter.Filter, manager *history.Manager, detector Detector, opts ...Option) *Session {
	s := &Session{
		filter:   filter,
		history:  manager,
		detector: detector,
		target:   language.Vietnamese,
		timeout:  defaultTranslateTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Filter() *captionfilter.Filter {
	return s.filter
}

func (s *Session) History() *history.Manager {
	return s.history
}

func (s *Session) Target() language.Tag {
	return s.target
}

// Ingest runs one caption through the pipeline. Rejected captions never reach
// the history. A failed translation is logged and the caption is recorded
// untranslated.
func (s *Session) Ingest(ctx context.Context, c history.Caption) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, reason := s.filter.Check(c.Original)
	if !ok {
		return Result{Accepted: false, Reason: reason}
	}

	if strings.TrimSpace(c.Translated) == "" && s.translator != nil && s.detector.NeedsTranslation(c.Original, s.target) {
		c.Translated = s.translateLocked(ctx, c.Original)
	}

	s.history.ProcessCaption(c)
	return Result{Accepted: true, Translated: c.Translated}
}

func (s *Session) translateLocked(ctx context.Context, text string) string {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	translated, err := s.translator.Translate(ctx, text, s.target)
	if err != nil {
		s.failures.Add(1)
		log.Warn("Caption translation failed, keeping original: %v", err)
		return ""
	}
	s.translations.Add(1)
	return translated
}

func (s *Session) Stats() Stats {
	fs := s.filter.Stats()
	return Stats{
		Filter:             fs,
		FilterRate:         fs.FilterRate(),
		HistoryEntries:     len(s.history.History()),
		LiveSpeaker:        s.history.LiveBuffer().Speaker,
		Translations:       int(s.translations.Load()),
		TranslationFailure: int(s.failures.Load()),
	}
}

// Reset clears the filter state and the transcript, as when joining a new
// meeting.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter.Reset()
	s.history.ClearHistory()
}
