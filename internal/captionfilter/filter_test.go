package captionfilter

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestFilter(opts ...Option) (*Filter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	f := New(append([]Option{WithClock(clock.Now)}, opts...)...)
	return f, clock
}

func TestFilter_DefaultScenarioStats(t *testing.T) {
	f, _ := newTestFilter()

	assert.False(t, f.ShouldProcess(""))
	assert.False(t, f.ShouldProcess("hi"))
	assert.True(t, f.ShouldProcess("hello world testing"))
	assert.False(t, f.ShouldProcess("hello world testing"))

	stats := f.Stats()
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.Filtered)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.CacheSize)
	assert.InDelta(t, 75.0, stats.FilterRate(), 1e-9)
}

func TestFilter_RejectionReasons(t *testing.T) {
	f, clock := newTestFilter()

	check := func(text string, want Reason) {
		t.Helper()
		ok, reason := f.Check(text)
		assert.Equal(t, want == ReasonAccepted, ok, text)
		assert.Equal(t, want, reason, text)
	}

	check("   \t ", ReasonEmpty)
	check("  short  ", ReasonTooShort)
	check("#### !!!! ????", ReasonSpecialChars)
	check("the meeting starts now ok", ReasonAccepted)
	check("  the meeting starts now ok  ", ReasonDuplicate)
	check("The Meeting starts NOW ok", ReasonDebounced)

	clock.Advance(2 * time.Second)
	check("The Meeting starts NOW ok", ReasonSimilarRecent)
	check("please share your screen", ReasonAccepted)

	clock.Advance(2 * time.Second)
	check("the meeting starts now ok", ReasonCached)
}

func TestFilter_ShortTextsAlwaysRejected(t *testing.T) {
	f, clock := newTestFilter(WithSettings(Settings{MinLength: 12}))

	for n := 0; n < 12; n++ {
		clock.Advance(5 * time.Second)
		text := strings.Repeat("x", n)
		assert.False(t, f.ShouldProcess(text), "len %d", n)
		assert.False(t, f.ShouldProcess("   "+text+"   "), "padded len %d", n)
	}
	assert.Zero(t, f.Stats().Processed)
}

func TestFilter_MinLengthCountsRunes(t *testing.T) {
	f, _ := newTestFilter()

	// 10 runes, more than 10 bytes.
	assert.True(t, f.ShouldProcess("được rồi à"))
}

func TestFilter_DebounceLetsDistinctCaptionsThrough(t *testing.T) {
	f, clock := newTestFilter()

	require.True(t, f.ShouldProcess("we should ship the release on friday"))
	clock.Advance(100 * time.Millisecond)
	assert.True(t, f.ShouldProcess("does anyone have questions about pricing"))
}

func TestFilter_CacheIsBounded(t *testing.T) {
	f, clock := newTestFilter(WithSettings(Settings{MaxCacheSize: 3}))

	for i := 0; i < 10; i++ {
		clock.Advance(2 * time.Second)
		require.True(t, f.ShouldProcess(fmt.Sprintf("caption number %d unique%d", i, i)))
		assert.LessOrEqual(t, f.Stats().CacheSize, 3)
	}
	assert.Equal(t, 3, f.Stats().CacheSize)
}

func TestFilter_EvictedCaptionIsAcceptedAgain(t *testing.T) {
	f, clock := newTestFilter(WithSettings(Settings{MaxCacheSize: 1}))

	require.True(t, f.ShouldProcess("first caption of the call"))
	clock.Advance(2 * time.Second)
	require.True(t, f.ShouldProcess("someone else is talking now"))
	clock.Advance(2 * time.Second)
	assert.True(t, f.ShouldProcess("first caption of the call"))
}

func TestFilter_ResetAndClearCache(t *testing.T) {
	f, clock := newTestFilter()

	require.True(t, f.ShouldProcess("hello world testing"))
	clock.Advance(2 * time.Second)
	require.True(t, f.ShouldProcess("another caption entirely"))

	f.ClearCache()
	stats := f.Stats()
	assert.Equal(t, 0, stats.CacheSize)
	assert.Equal(t, 2, stats.Processed)

	// Last-caption tracking survives ClearCache.
	assert.False(t, f.ShouldProcess("another caption entirely"))

	f.Reset()
	assert.Equal(t, Stats{}, f.Stats())
	assert.True(t, f.ShouldProcess("another caption entirely"))
}

func TestFilter_UpdateSettingsMergesNonZero(t *testing.T) {
	f, _ := newTestFilter()

	got := f.UpdateSettings(Settings{MinLength: 5, Debounce: 500 * time.Millisecond})
	assert.Equal(t, 5, got.MinLength)
	assert.Equal(t, 500*time.Millisecond, got.Debounce)
	assert.Equal(t, 0.85, got.SimilarityThreshold)
	assert.Equal(t, 100, got.MaxCacheSize)
	assert.Equal(t, got, f.Settings())

	assert.True(t, f.ShouldProcess("hi there"))
}
