package usagemetrics

import (
	"strings"
	"sync"
)

// Recorder accepts accounting events. The active recorder is process-global
// so call sites never carry a dependency on the exporter wiring.
type Recorder interface {
	RecordCharge(mode, outcome string)
	RecordTokens(prompt, completion int)
	RecordRefusal()
	RecordDegraded()
}

type recorder struct {
	metrics *metrics
}

type noopRecorder struct{}

func (noopRecorder) RecordCharge(string, string) {}
func (noopRecorder) RecordTokens(int, int)       {}
func (noopRecorder) RecordRefusal()              {}
func (noopRecorder) RecordDegraded()             {}

var (
	activeRecorder Recorder = noopRecorder{}
	recorderMu     sync.RWMutex
)

func setRecorder(rec Recorder) {
	if rec == nil {
		return
	}
	recorderMu.Lock()
	activeRecorder = rec
	recorderMu.Unlock()
}

func current() Recorder {
	recorderMu.RLock()
	defer recorderMu.RUnlock()
	return activeRecorder
}

func RecordCharge(mode, outcome string) { current().RecordCharge(mode, outcome) }
func RecordTokens(prompt, completion int) {
	current().RecordTokens(prompt, completion)
}
func RecordRefusal()  { current().RecordRefusal() }
func RecordDegraded() { current().RecordDegraded() }

func (r *recorder) RecordCharge(mode, outcome string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.charges.WithLabelValues(normalizeLabel(mode), normalizeLabel(outcome)).Inc()
}

func (r *recorder) RecordTokens(prompt, completion int) {
	if r == nil || r.metrics == nil {
		return
	}
	if prompt > 0 {
		r.metrics.tokens.WithLabelValues("prompt").Add(float64(prompt))
	}
	if completion > 0 {
		r.metrics.tokens.WithLabelValues("completion").Add(float64(completion))
	}
}

func (r *recorder) RecordRefusal() {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.refusals.Inc()
}

func (r *recorder) RecordDegraded() {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.degraded.Inc()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
