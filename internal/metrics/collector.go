// Package metrics exposes caption pipeline statistics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/MimeLyc/live-caption-history/internal/session"
)

const namespace = "captiond"

// StatsSource is read on every scrape.
type StatsSource interface {
	Stats() session.Stats
}

// SessionCollector reports filter and history statistics. Values are read from
// the session on each scrape rather than mirrored into counters.
type SessionCollector struct {
	source StatsSource

	captionsTotal     *prometheus.Desc
	captionsFiltered  *prometheus.Desc
	captionsProcessed *prometheus.Desc
	cacheSize         *prometheus.Desc
	historyEntries    *prometheus.Desc
	speaking          *prometheus.Desc
	translations      *prometheus.Desc
}

func NewSessionCollector(source StatsSource) *SessionCollector {
	return &SessionCollector{
		source: source,
		captionsTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "filter", "captions_total"),
			"Captions evaluated by the filter",
			nil, nil,
		),
		captionsFiltered: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "filter", "captions_filtered_total"),
			"Captions rejected by the filter",
			nil, nil,
		),
		captionsProcessed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "filter", "captions_processed_total"),
			"Captions accepted by the filter",
			nil, nil,
		),
		cacheSize: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "filter", "cache_size"),
			"Captions held in the duplicate cache",
			nil, nil,
		),
		historyEntries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "history", "entries"),
			"Finalized speaker turns in the transcript",
			nil, nil,
		),
		speaking: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "history", "speaker_active"),
			"1 while a speaker turn is being buffered",
			nil, nil,
		),
		translations: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "translate", "requests_total"),
			"Caption translations by outcome",
			[]string{"outcome"}, nil,
		),
	}
}

func (c *SessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.captionsTotal
	ch <- c.captionsFiltered
	ch <- c.captionsProcessed
	ch <- c.cacheSize
	ch <- c.historyEntries
	ch <- c.speaking
	ch <- c.translations
}

func (c *SessionCollector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		return
	}
	stats := c.source.Stats()

	speaking := 0.0
	if stats.LiveSpeaker != "" {
		speaking = 1
	}

	ch <- prometheus.MustNewConstMetric(c.captionsTotal, prometheus.CounterValue, float64(stats.Filter.Total))
	ch <- prometheus.MustNewConstMetric(c.captionsFiltered, prometheus.CounterValue, float64(stats.Filter.Filtered))
	ch <- prometheus.MustNewConstMetric(c.captionsProcessed, prometheus.CounterValue, float64(stats.Filter.Processed))
	ch <- prometheus.MustNewConstMetric(c.cacheSize, prometheus.GaugeValue, float64(stats.Filter.CacheSize))
	ch <- prometheus.MustNewConstMetric(c.historyEntries, prometheus.GaugeValue, float64(stats.HistoryEntries))
	ch <- prometheus.MustNewConstMetric(c.speaking, prometheus.GaugeValue, speaking)
	ch <- prometheus.MustNewConstMetric(c.translations, prometheus.CounterValue, float64(stats.Translations), "ok")
	ch <- prometheus.MustNewConstMetric(c.translations, prometheus.CounterValue, float64(stats.TranslationFailure), "error")
}

// NewRegistry returns a registry with the session collector and the Go runtime
// collectors.
func NewRegistry(source StatsSource) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewSessionCollector(source)); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	return reg, nil
}
