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

// MemMeter accumulates measurements in memory, keyed by name and sorted
// labels. Histograms keep every observation.
type MemMeter struct {
	mu       sync.Mutex
	counters map[string]float64
	hists    map[string][]float64
}

func NewMemMeter() *MemMeter {
	return &MemMeter{counters: map[string]float64{}, hists: map[string][]float64{}}
}

func (m *MemMeter) Counter(name string, value float64, labels ...Label) {
	m.mu.Lock()
	m.counters[seriesKey(name, labels)] += value
	m.mu.Unlock()
}

func (m *MemMeter) Histogram(name string, value float64, labels ...Label) {
	m.mu.Lock()
	k := seriesKey(name, labels)
	m.hists[k] = append(m.hists[k], value)
	m.mu.Unlock()
}

// CounterValue returns the current value of a counter series.
func (m *MemMeter) CounterValue(name string, labels ...Label) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[seriesKey(name, labels)]
}

// Observations returns a copy of a histogram series.
func (m *MemMeter) Observations(name string, labels ...Label) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.hists[seriesKey(name, labels)]...)
}

func seriesKey(name string, labels []Label) string {
	if len(labels) == 0 {
		return name
	}
	ls := append([]Label(nil), labels...)
	sort.Slice(ls, func(i, j int) bool { return ls[i].Key < ls[j].Key })
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('{')
	for i, l := range ls {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(l.Key)
		sb.WriteByte('=')
		sb.WriteString(l.Value)
	}
	sb.WriteByte('}')
	return sb.String()
}
