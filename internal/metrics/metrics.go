// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics wires the cache and fetch pipelines to Prometheus
// counters, grounded on the prometheus/client_golang dependency shared by
// the vjache-cie and scttfrdmn-objectfs example repos. A nil *Recorder is
// valid everywhere and behaves as a no-op, so the library works without
// ever constructing a registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder wraps the Prometheus collectors cjdk updates while caching and
// fetching. The zero value is not usable; use NewRecorder.
type Recorder struct {
	CacheHits       *prometheus.CounterVec
	CacheMisses     *prometheus.CounterVec
	Downloads       *prometheus.CounterVec
	DownloadBytes   *prometheus.CounterVec
	ExtractEntries  *prometheus.CounterVec
	WriterWaits     *prometheus.CounterVec
}

// NewRecorder creates and registers the cjdk collectors on reg. Passing a
// fresh prometheus.NewRegistry() keeps cjdk's metrics isolated from any
// host process's default registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cjdk_cache_hits_total",
			Help: "Cache lookups that found a fresh, already-committed entry.",
		}, []string{"prefix"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cjdk_cache_misses_total",
			Help: "Cache lookups that required fetching (as writer or waiter).",
		}, []string{"prefix"}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cjdk_downloads_total",
			Help: "HTTP downloads performed, by outcome.",
		}, []string{"outcome"}),
		DownloadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cjdk_download_bytes_total",
			Help: "Bytes streamed from HTTP download responses.",
		}, []string{"prefix"}),
		ExtractEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cjdk_extract_entries_total",
			Help: "Archive entries extracted, by archive format.",
		}, []string{"format"}),
		WriterWaits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cjdk_writer_waits_total",
			Help: "Times a caller waited for another process's fetching directory to vanish.",
		}, []string{"prefix"}),
	}
	reg.MustRegister(r.CacheHits, r.CacheMisses, r.Downloads, r.DownloadBytes, r.ExtractEntries, r.WriterWaits)
	return r
}

func (r *Recorder) hit(prefix string) {
	if r == nil {
		return
	}
	r.CacheHits.WithLabelValues(prefix).Inc()
}

func (r *Recorder) miss(prefix string) {
	if r == nil {
		return
	}
	r.CacheMisses.WithLabelValues(prefix).Inc()
}

// RecordCacheLookup increments the hit or miss counter for prefix.
func (r *Recorder) RecordCacheLookup(prefix string, hit bool) {
	if hit {
		r.hit(prefix)
	} else {
		r.miss(prefix)
	}
}

// RecordDownload increments the download outcome counter and, on success,
// the per-prefix byte counter.
func (r *Recorder) RecordDownload(prefix, outcome string, bytes int64) {
	if r == nil {
		return
	}
	r.Downloads.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		r.DownloadBytes.WithLabelValues(prefix).Add(float64(bytes))
	}
}

// RecordExtractEntry increments the per-format extracted-entry counter.
func (r *Recorder) RecordExtractEntry(format string) {
	if r == nil {
		return
	}
	r.ExtractEntries.WithLabelValues(format).Inc()
}

// RecordWriterWait increments the per-prefix "waited for another writer"
// counter.
func (r *Recorder) RecordWriterWait(prefix string) {
	if r == nil {
		return
	}
	r.WriterWaits.WithLabelValues(prefix).Inc()
}
