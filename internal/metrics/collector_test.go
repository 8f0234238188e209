package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/live-caption-history/internal/captionfilter"
	"github.com/MimeLyc/live-caption-history/internal/session"
)

type staticStats session.Stats

func (s staticStats) Stats() session.Stats { return session.Stats(s) }

func TestSessionCollector_Collect(t *testing.T) {
	source := staticStats{
		Filter:             captionfilter.Stats{Total: 10, Filtered: 4, Processed: 6, CacheSize: 6},
		HistoryEntries:     3,
		LiveSpeaker:        "Lan",
		Translations:       5,
		TranslationFailure: 1,
	}
	collector := NewSessionCollector(source)

	expected := `
# HELP captiond_filter_captions_total Captions evaluated by the filter
# TYPE captiond_filter_captions_total counter
captiond_filter_captions_total 10
# HELP captiond_filter_captions_filtered_total Captions rejected by the filter
# TYPE captiond_filter_captions_filtered_total counter
captiond_filter_captions_filtered_total 4
# HELP captiond_history_entries Finalized speaker turns in the transcript
# TYPE captiond_history_entries gauge
captiond_history_entries 3
# HELP captiond_history_speaker_active 1 while a speaker turn is being buffered
# TYPE captiond_history_speaker_active gauge
captiond_history_speaker_active 1
# HELP captiond_translate_requests_total Caption translations by outcome
# TYPE captiond_translate_requests_total counter
captiond_translate_requests_total{outcome="error"} 1
captiond_translate_requests_total{outcome="ok"} 5
`
	err := testutil.CollectAndCompare(collector, strings.NewReader(expected),
		"captiond_filter_captions_total",
		"captiond_filter_captions_filtered_total",
		"captiond_history_entries",
		"captiond_history_speaker_active",
		"captiond_translate_requests_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 8, testutil.CollectAndCount(collector))
}

func TestSessionCollector_NilSource(t *testing.T) {
	assert.Zero(t, testutil.CollectAndCount(NewSessionCollector(nil)))
}

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(staticStats{})
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "captiond_filter_cache_size")
	assert.Contains(t, names, "go_goroutines")
}
