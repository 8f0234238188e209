// Package history turns a stream of per-speaker caption updates into an
// append-only transcript segmented by speaker turns, with debounced autosave to
// durable storage.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MimeLyc/live-caption-history/internal/textsim"
	"github.com/MimeLyc/live-caption-history/pkg/log"
)

type Manager struct {
	detector LanguageDetector
	writer   *writer
	now      func() time.Time
	location *time.Location

	mu            sync.Mutex
	settings      Settings
	state         bufferState
	history       []Entry
	dirty         bool
	autosaveTimer *time.Timer
	closing       bool
	lastWriteErr  error

	onHistoryUpdate    func([]Entry)
	onLiveBufferUpdate func(LiveBuffer)
}

type Option func(*Manager)

func WithSettings(s Settings) Option {
	return func(m *Manager) {
		m.settings = m.settings.merge(s)
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLocation sets the time zone of the text export.
func WithLocation(loc *time.Location) Option {
	return func(m *Manager) {
		m.location = loc
	}
}

// NewManager creates a manager persisting to store. A nil store keeps the
// history in memory only.
func NewManager(store Store, detector LanguageDetector, opts ...Option) *Manager {
	m := &Manager{
		detector: detector,
		now:      time.Now,
		location: time.Local,
		settings: DefaultSettings(),
		state:    idle{},
		history:  []Entry{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.writer = newWriter(store, m.handleWriteResult)

	log.Info("History manager initialized: key=%s autosave=%s policy=%s",
		m.settings.StorageKey, m.settings.AutosaveInterval, m.settings.Policy)
	return m
}

func (m *Manager) OnHistoryUpdate(fn func([]Entry)) {
	m.mu.Lock()
	m.onHistoryUpdate = fn
	m.mu.Unlock()
}

func (m *Manager) OnLiveBufferUpdate(fn func(LiveBuffer)) {
	m.mu.Lock()
	m.onLiveBufferUpdate = fn
	m.mu.Unlock()
}

// ProcessCaption feeds one caption update. A caption from a different speaker
// closes the current turn into the history before a new turn starts; a caption
// from the same speaker replaces the buffered text.
func (m *Manager) ProcessCaption(c Caption) {
	speaker := strings.TrimSpace(c.Speaker)
	if speaker == "" {
		speaker = UnknownSpeaker
	}
	now := m.now()

	m.mu.Lock()
	var snapshot []Entry
	finalized := false
	if cur, ok := m.state.(buffering); ok && cur.buf.Speaker != speaker {
		m.finalizeLocked()
		snapshot = m.historySnapshotLocked()
		finalized = true
	}

	original, translated := m.transcriptTextLocked(c)
	var live LiveBuffer
	switch st := m.state.(type) {
	case idle:
		live = LiveBuffer{
			Speaker:    speaker,
			Original:   original,
			Translated: translated,
			StartTime:  now,
			LastUpdate: now,
		}
	case buffering:
		live = st.buf
		live.Original = original
		live.Translated = translated
		live.LastUpdate = now
	}
	m.state = buffering{buf: live}
	onHistory, onLive := m.onHistoryUpdate, m.onLiveBufferUpdate
	m.mu.Unlock()

	if finalized && onHistory != nil {
		onHistory(snapshot)
	}
	if onLive != nil {
		onLive(live)
	}
}

// transcriptTextLocked applies the transcript policy to an incoming caption.
func (m *Manager) transcriptTextLocked(c Caption) (string, string) {
	translated := c.Translated
	if strings.TrimSpace(translated) == "" {
		translated = c.Original
	}

	if m.settings.Policy == PolicyKeepSource {
		return c.Original, translated
	}

	text := translated
	if m.detector != nil && m.detector.IsVietnamese(c.Original) {
		text = c.Original
	}
	return text, text
}

// finalizeLocked closes the buffered turn into a history entry and schedules
// an autosave. It is a no-op when idle.
func (m *Manager) finalizeLocked() bool {
	cur, ok := m.state.(buffering)
	if !ok {
		return false
	}
	buf := cur.buf

	entry := Entry{
		ID:         newEntryID(m.now()),
		Speaker:    buf.Speaker,
		Original:   strings.TrimSpace(buf.Original),
		Translated: strings.TrimSpace(buf.Translated),
		Timestamp:  buf.StartTime.UnixMilli(),
		Duration:   buf.LastUpdate.Sub(buf.StartTime).Milliseconds(),
		WordCount:  textsim.WordCount(buf.Original),
	}
	m.history = append(m.history, entry)
	m.dirty = true
	m.state = idle{}

	log.Info("Finalized turn: %s (%d words)", entry.Speaker, entry.WordCount)
	m.scheduleAutosaveLocked()
	return true
}

// ForceFinalize closes the current turn regardless of its duration and saves.
// Used when leaving a meeting so the last turn is not lost.
func (m *Manager) ForceFinalize() {
	m.mu.Lock()
	finalized := m.finalizeLocked()
	var snapshot []Entry
	if finalized {
		snapshot = m.historySnapshotLocked()
	}
	onHistory := m.onHistoryUpdate
	m.mu.Unlock()

	if finalized && onHistory != nil {
		onHistory(snapshot)
	}
	m.SaveToStorage()
}

// ClearHistory empties the history and the live buffer, persists, and notifies.
func (m *Manager) ClearHistory() {
	log.Info("Clearing history")

	m.mu.Lock()
	m.history = []Entry{}
	m.state = idle{}
	m.dirty = true
	onHistory := m.onHistoryUpdate
	m.mu.Unlock()

	m.SaveToStorage()
	if onHistory != nil {
		onHistory([]Entry{})
	}
}

// PruneBefore drops entries that started before cutoff and returns how many
// were removed.
func (m *Manager) PruneBefore(cutoff time.Time) int {
	limit := cutoff.UnixMilli()

	m.mu.Lock()
	kept := make([]Entry, 0, len(m.history))
	for _, e := range m.history {
		if e.Timestamp >= limit {
			kept = append(kept, e)
		}
	}
	removed := len(m.history) - len(kept)
	if removed == 0 {
		m.mu.Unlock()
		return 0
	}
	m.history = kept
	m.dirty = true
	m.scheduleAutosaveLocked()
	snapshot := m.historySnapshotLocked()
	onHistory := m.onHistoryUpdate
	m.mu.Unlock()

	log.Info("Pruned %d history entries older than %s", removed, cutoff.Format(time.RFC3339))
	if onHistory != nil {
		onHistory(snapshot)
	}
	return removed
}

func (m *Manager) History() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.historySnapshotLocked()
}

func (m *Manager) LiveBuffer() LiveBuffer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.state.(buffering); ok {
		return cur.buf
	}
	return LiveBuffer{}
}

func (m *Manager) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

func (m *Manager) UpdateSettings(next Settings) Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = m.settings.merge(next)
	log.Info("History settings updated: %+v", m.settings)
	return m.settings
}

// SaveToStorage queues the current history for writing when it changed since
// the last save. It does not wait for the write; see Flush.
func (m *Manager) SaveToStorage() {
	m.mu.Lock()
	if !m.dirty {
		m.mu.Unlock()
		return
	}
	rec := Record{
		History: m.historySnapshotLocked(),
		SavedAt: m.now().UnixMilli(),
		Version: RecordVersion,
	}
	key := m.settings.StorageKey
	m.dirty = false
	m.mu.Unlock()

	m.writer.submit(key, rec)
}

// Flush waits until queued writes reached the store.
func (m *Manager) Flush(ctx context.Context) error {
	return m.writer.flush(ctx)
}

func (m *Manager) handleWriteResult(err error, entries int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastWriteErr = err
	if err == nil {
		log.Info("Saved %d history entries", entries)
		return
	}

	log.Error("History save failed: %v", err)
	m.dirty = true
	m.scheduleAutosaveLocked()
}

// LoadFromStorage replaces the in-memory history with the stored record. It
// returns false, leaving the history untouched, when nothing is stored or the
// record cannot be read.
func (m *Manager) LoadFromStorage(ctx context.Context) bool {
	entries, err := m.load(ctx)
	if err != nil {
		log.Error("History load failed: %v", err)
		return false
	}
	if entries == nil {
		return false
	}

	m.mu.Lock()
	m.history = entries
	snapshot := m.historySnapshotLocked()
	onHistory := m.onHistoryUpdate
	m.mu.Unlock()

	log.Info("Loaded %d history entries", len(snapshot))
	if onHistory != nil {
		onHistory(snapshot)
	}
	return true
}

func (m *Manager) load(ctx context.Context) ([]Entry, error) {
	store := m.writer.store
	if store == nil {
		return nil, nil
	}
	key := m.Settings().StorageKey

	data, ok, err := store.Get(ctx, key)
	if err != nil {
		return nil, WrapError(err, ErrStorageRead, "read history record").WithContext("key", key)
	}
	if !ok {
		return nil, nil
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, WrapError(err, ErrDecode, "decode history record").WithContext("key", key)
	}
	if rec.Version != "" && rec.Version != RecordVersion {
		log.Warn("History record version %s differs from %s", rec.Version, RecordVersion)
	}
	if rec.History == nil {
		rec.History = []Entry{}
	}
	return rec.History, nil
}

// scheduleAutosaveLocked restarts the autosave timer. It does nothing once
// Destroy has started.
func (m *Manager) scheduleAutosaveLocked() {
	if m.closing {
		return
	}
	if m.autosaveTimer != nil {
		m.autosaveTimer.Stop()
	}
	m.autosaveTimer = time.AfterFunc(m.settings.AutosaveInterval, m.SaveToStorage)
}

func (m *Manager) StopAutoSave() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopAutoSaveLocked()
}

func (m *Manager) stopAutoSaveLocked() {
	if m.autosaveTimer != nil {
		m.autosaveTimer.Stop()
		m.autosaveTimer = nil
	}
}

// Destroy finalizes the current turn, stops autosave and writes the history a
// final time. It returns the error of that last write; the history is then
// left dirty and is not retried. The manager must not be used afterwards.
func (m *Manager) Destroy(ctx context.Context) error {
	log.Info("Destroying history manager")

	m.mu.Lock()
	m.closing = true
	m.lastWriteErr = nil
	m.stopAutoSaveLocked()
	finalized := m.finalizeLocked()
	var snapshot []Entry
	if finalized {
		snapshot = m.historySnapshotLocked()
	}
	onHistory := m.onHistoryUpdate
	m.mu.Unlock()

	if finalized && onHistory != nil {
		onHistory(snapshot)
	}
	m.SaveToStorage()

	err := m.Flush(ctx)
	m.writer.close()
	if err != nil {
		return fmt.Errorf("flush history: %w", err)
	}

	m.mu.Lock()
	writeErr := m.lastWriteErr
	m.mu.Unlock()
	if writeErr != nil {
		return fmt.Errorf("final history save: %w", writeErr)
	}
	return nil
}

func (m *Manager) historySnapshotLocked() []Entry {
	ret := make([]Entry, len(m.history))
	copy(ret, m.history)
	return ret
}

func newEntryID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("entry_%d_%s", now.UnixMilli(), suffix)
}
