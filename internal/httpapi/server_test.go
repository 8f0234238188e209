package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MimeLyc/live-caption-history/internal/captionfilter"
	"github.com/MimeLyc/live-caption-history/internal/config"
	"github.com/MimeLyc/live-caption-history/internal/history"
	"github.com/MimeLyc/live-caption-history/internal/langdetect"
	"github.com/MimeLyc/live-caption-history/internal/metrics"
	"github.com/MimeLyc/live-caption-history/internal/session"
)

type fakeSettingsStore struct {
	current   config.RuntimeSettings
	updateErr error
}

func (f *fakeSettingsStore) GetRuntimeSettings() (config.RuntimeSettings, error) {
	return f.current, nil
}

func (f *fakeSettingsStore) UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error) {
	if f.updateErr != nil {
		return config.RuntimeSettings{}, f.updateErr
	}
	f.current = next
	return f.current, nil
}

var testNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	clock := func() time.Time { return testNow }
	detector := langdetect.NewDetector()
	filter := captionfilter.New(captionfilter.WithClock(clock))
	manager := history.NewManager(nil, detector,
		history.WithClock(clock),
		history.WithLocation(time.UTC),
		history.WithSettings(history.Settings{AutosaveInterval: time.Hour, Policy: history.PolicyKeepSource}),
	)
	t.Cleanup(func() { _ = manager.Destroy(context.Background()) })
	return session.New(filter, manager, detector, session.WithTarget(language.Vietnamese))
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewServer(newTestSession(t), opts...)
}

func do(t *testing.T, srv *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_PostCaption(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/captions", map[string]string{
		"speaker": "Alice",
		"text":    "Good morning everyone, let's begin",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var res session.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.True(t, res.Accepted)

	rec = do(t, srv, http.MethodGet, "/api/live", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var live liveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &live))
	require.False(t, live.Idle)
	require.Equal(t, "Alice", live.Speaker)
	require.Equal(t, "Good morning everyone, let's begin", live.Original)
	require.Equal(t, testNow.UnixMilli(), live.StartTime)
	require.Equal(t, testNow.UnixMilli(), live.LastUpdate)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.IsType(t, float64(0), raw["startTime"])
}

func TestNewLiveResponse_IdleHasZeroTimes(t *testing.T) {
	res := newLiveResponse(history.LiveBuffer{})
	require.True(t, res.Idle)
	require.Zero(t, res.StartTime)
	require.Zero(t, res.LastUpdate)
}

func TestServer_PostCaption_RejectedReportsReason(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/captions", map[string]string{"speaker": "Alice", "text": "hi"})
	require.Equal(t, http.StatusOK, rec.Code)

	var res session.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.False(t, res.Accepted)
	require.Equal(t, captionfilter.ReasonTooShort, res.Reason)
}

func TestServer_PostCaption_InvalidBody(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/captions", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_PostCaption_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/captions", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_FinalizeAndHistory(t *testing.T) {
	srv := newTestServer(t)

	do(t, srv, http.MethodPost, "/api/captions", map[string]string{"speaker": "Alice", "text": "Good morning everyone, let's begin"})
	do(t, srv, http.MethodPost, "/api/captions", map[string]string{"speaker": "Bob", "text": "Thanks Alice, I have two updates"})

	rec := do(t, srv, http.MethodPost, "/api/history/finalize", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []history.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	require.Equal(t, "Alice", entries[0].Speaker)
	require.Equal(t, "Bob", entries[1].Speaker)

	rec = do(t, srv, http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)

	rec = do(t, srv, http.MethodDelete, "/api/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/history", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Empty(t, entries)
}

func TestServer_Export(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/api/captions", map[string]string{"speaker": "Alice", "text": "Good morning everyone, let's begin"})
	do(t, srv, http.MethodPost, "/api/history/finalize", nil)

	rec := do(t, srv, http.MethodGet, "/api/history/export?format=md", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "meeting-history-2024-05-01.md")
	require.Contains(t, rec.Body.String(), "**[09:30] Alice:**")

	rec = do(t, srv, http.MethodGet, "/api/history/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var entries []history.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
}

func TestServer_Export_UnknownFormat(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/history/export?format=pdf", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Stats(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/api/captions", map[string]string{"speaker": "Alice", "text": "Good morning everyone, let's begin"})
	do(t, srv, http.MethodPost, "/api/captions", map[string]string{"speaker": "Alice", "text": "ok"})

	rec := do(t, srv, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats session.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, 2, stats.Filter.Total)
	require.Equal(t, 1, stats.Filter.Filtered)
	require.Equal(t, "Alice", stats.LiveSpeaker)
}

func TestServer_Settings_GetFallsBackToFilter(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got config.RuntimeSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 10, got.MinLength)
	require.Equal(t, 1000, got.DebounceMS)
}

func TestServer_Settings_PutWithoutStore(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPut, "/api/settings", config.RuntimeSettings{MinLength: 5})
	require.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestServer_Settings_PutAppliesToFilter(t *testing.T) {
	store := &fakeSettingsStore{current: config.RuntimeSettingsFromFilter(captionfilter.DefaultSettings())}
	srv := newTestServer(t, WithRuntimeSettingsStore(store))

	next := config.RuntimeSettings{MinLength: 3, DebounceMS: 500, SimilarityThreshold: 0.9, MaxCacheSize: 20}
	rec := do(t, srv, http.MethodPut, "/api/settings", next)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, next, store.current)

	applied := srv.session.Filter().Settings()
	require.Equal(t, 3, applied.MinLength)
	require.Equal(t, 500*time.Millisecond, applied.Debounce)
	require.Equal(t, 20, applied.MaxCacheSize)

	rec = do(t, srv, http.MethodPost, "/api/captions", map[string]string{"speaker": "Alice", "text": "yes"})
	var res session.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.True(t, res.Accepted)
}

func TestServer_Settings_PutInvalid(t *testing.T) {
	store := &fakeSettingsStore{}
	srv := newTestServer(t, WithRuntimeSettingsStore(store))

	rec := do(t, srv, http.MethodPut, "/api/settings", config.RuntimeSettings{MinLength: 5, DebounceMS: 100, SimilarityThreshold: 1.5, MaxCacheSize: 10})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Settings_PutStoreError(t *testing.T) {
	store := &fakeSettingsStore{updateErr: errors.New("disk full")}
	srv := newTestServer(t, WithRuntimeSettingsStore(store))

	rec := do(t, srv, http.MethodPut, "/api/settings", config.RuntimeSettings{MinLength: 5, DebounceMS: 100, SimilarityThreshold: 0.8, MaxCacheSize: 10})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "disk full")
}

func TestServer_Metrics(t *testing.T) {
	sess := newTestSession(t)
	reg, err := metrics.NewRegistry(sess)
	require.NoError(t, err)
	srv := NewServer(sess, WithMetrics(reg))

	do(t, srv, http.MethodPost, "/api/captions", map[string]string{"speaker": "Alice", "text": "Good morning everyone, let's begin"})

	rec := do(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "captiond_filter_captions_total 1")
}

func TestServer_MetricsNotMountedByDefault(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHub_PublishDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer+5; i++ {
		hub.Publish(Event{Type: EventLive})
	}
	require.Len(t, events, subscriberBuffer)
	require.Equal(t, 1, hub.Subscribers())

	cancel()
	require.Equal(t, 0, hub.Subscribers())
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	hub := NewHub()
	events, _ := hub.Subscribe()

	hub.Close()
	_, ok := <-events
	require.False(t, ok)

	late, _ := hub.Subscribe()
	_, ok = <-late
	require.False(t, ok)
}

func TestServer_StreamSendsSnapshotThenUpdates(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		var name, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && name != "":
				return name, data
			}
		}
	}

	name, data := readEvent()
	require.Equal(t, "history", name)
	require.Equal(t, "[]", data)

	name, data = readEvent()
	require.Equal(t, "live", name)
	require.Contains(t, data, `"idle":true`)

	require.Eventually(t, func() bool { return srv.Hub().Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	do(t, srv, http.MethodPost, "/api/captions", map[string]string{"speaker": "Alice", "text": "Good morning everyone, let's begin"})

	name, data = readEvent()
	require.Equal(t, "live", name)
	require.Contains(t, data, `"speaker":"Alice"`)
	require.Contains(t, data, `"idle":false`)
}

func TestServer_CaptionSocket(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/captions"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"speaker": "Alice", "text": "Good morning everyone, let's begin"}))
	var ack map[string]any
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "ack", ack["type"])
	require.Equal(t, float64(1), ack["seq"])
	require.Equal(t, true, ack["accepted"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	ack = nil
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "error", ack["type"])
	require.Equal(t, float64(2), ack["seq"])

	require.NoError(t, conn.WriteJSON(map[string]string{"speaker": "Alice", "text": "hi"}))
	ack = nil
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, false, ack["accepted"])
	require.Equal(t, string(captionfilter.ReasonTooShort), ack["reason"])

	require.Equal(t, "Alice", srv.session.History().LiveBuffer().Speaker)
}
