// Package metrics provides a lightweight, Prometheus-compatible metrics
// collector for lookupbot. It outputs text/plain in Prometheus exposition
// format without requiring the prometheus/client_golang dependency.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the global metrics collector.
var Collector = NewMetricsCollector()

// MetricsCollector aggregates named counters with optional labels.
type MetricsCollector struct {
	counters  sync.Map // key -> *Counter
	startTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{startTime: time.Now()}
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add increments the counter by n.
func (c *Counter) Add(n int64) { c.value.Add(n) }

// Value returns the current counter value.
func (c *Counter) Value() int64 { return c.value.Load() }

// GetCounter returns (creating if needed) a counter with the given name,
// help string, and label pairs ("key=value").
func (c *MetricsCollector) GetCounter(name, help string, labels ...string) *Counter {
	key := name + "{" + strings.Join(labels, ",") + "}"
	if v, ok := c.counters.Load(key); ok {
		return v.(*Counter)
	}
	counter := &Counter{name: name, help: help, labels: formatLabels(labels)}
	actual, _ := c.counters.LoadOrStore(key, counter)
	return actual.(*Counter)
}

func formatLabels(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		k, v, ok := strings.Cut(l, "=")
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%q", k, v))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Export renders all metrics in Prometheus exposition format.
func (c *MetricsCollector) Export() string {
	helpWritten := make(map[string]bool)

	var keys []string
	byKey := make(map[string]*Counter)
	c.counters.Range(func(k, v any) bool {
		key := k.(string)
		keys = append(keys, key)
		byKey[key] = v.(*Counter)
		return true
	})
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		counter := byKey[key]
		if !helpWritten[counter.name] {
			b.WriteString(fmt.Sprintf("# HELP %s %s\n", counter.name, counter.help))
			b.WriteString(fmt.Sprintf("# TYPE %s counter\n", counter.name))
			helpWritten[counter.name] = true
		}
		b.WriteString(fmt.Sprintf("%s%s %d\n", counter.name, counter.labels, counter.Value()))
	}

	b.WriteString("# HELP lookupbot_uptime_seconds Seconds since process start\n")
	b.WriteString("# TYPE lookupbot_uptime_seconds gauge\n")
	b.WriteString(fmt.Sprintf("lookupbot_uptime_seconds %.0f\n", c.Uptime().Seconds()))

	return b.String()
}

// Handler serves the exposition format over HTTP.
func (c *MetricsCollector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprint(w, c.Export())
	})
}
