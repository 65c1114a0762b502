package obs

import (
	"sort"
	"strings"
	"sync"
)

// Label is a key/value pair attached to measurements.
type Label struct {
	Key   string
	Value string
}

// Meter is a very small interface for emitting counters/histograms.
// Implementations may no-op or bridge to a metrics system.
type Meter interface {
	Counter(name string, value float64, labels ...Label)
	Histogram(name string, value float64, labels ...Label)
}

// NopMeter is a Meter that discards all measurements.
type NopMeter struct{}

func (NopMeter) Counter(name string, value float64, labels ...Label)   {}
func (NopMeter) Histogram(name string, value float64, labels ...Label) {}

// MemMeter accumulates measurements in memory. Counters are summed and
// histograms keep count and sum. Safe for concurrent use.
type MemMeter struct {
	mu       sync.Mutex
	counters map[string]float64
	hists    map[string]HistogramStat
}

// HistogramStat is the aggregate MemMeter keeps per histogram series.
type HistogramStat struct {
	Count int
	Sum   float64
}

func (m *MemMeter) Counter(name string, value float64, labels ...Label) {
	k := seriesKey(name, labels)
	m.mu.Lock()
	if m.counters == nil {
		m.counters = make(map[string]float64)
	}
	m.counters[k] += value
	m.mu.Unlock()
}

func (m *MemMeter) Histogram(name string, value float64, labels ...Label) {
	k := seriesKey(name, labels)
	m.mu.Lock()
	if m.hists == nil {
		m.hists = make(map[string]HistogramStat)
	}
	st := m.hists[k]
	st.Count++
	st.Sum += value
	m.hists[k] = st
	m.mu.Unlock()
}

// CounterValue returns the current value of a counter series.
func (m *MemMeter) CounterValue(name string, labels ...Label) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[seriesKey(name, labels)]
}

// CounterTotal sums every series of the counter name.
func (m *MemMeter) CounterTotal(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum float64
	for k, v := range m.counters {
		if k == name || strings.HasPrefix(k, name+"{") {
			sum += v
		}
	}
	return sum
}

// HistogramValue returns the aggregate of a histogram series.
func (m *MemMeter) HistogramValue(name string, labels ...Label) HistogramStat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hists[seriesKey(name, labels)]
}

// seriesKey renders name{k="v",...} with labels sorted by key.
func seriesKey(name string, labels []Label) string {
	if len(labels) == 0 {
		return name
	}
	ls := append([]Label(nil), labels...)
	sort.Slice(ls, func(i, j int) bool { return ls[i].Key < ls[j].Key })
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, l := range ls {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(l.Key)
		b.WriteString(`="`)
		b.WriteString(l.Value)
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}
