package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const (
	namespace = "osce"
	subsystem = "dialogue"
)

// DialogueMetrics exposes counters/histograms for reply selection.
type DialogueMetrics struct {
	selectionsTotal  *prometheus.CounterVec
	matchScore       prometheus.Histogram
	generativeTime   *prometheus.HistogramVec
	enforcementTotal *prometheus.CounterVec
}

func NewDialogueMetrics(reg prometheus.Registerer) *DialogueMetrics {
	m := &DialogueMetrics{
		selectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "selections_total",
			Help:      "Total replies selected, by route",
		}, []string{"route"}),
		matchScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "match_score",
			Help:      "Score of accepted fast script matches",
			Buckets:   []float64{0.42, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0, 1.25, 1.35},
		}),
		generativeTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "generative_seconds",
			Help:      "Latency of generative fallback calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		enforcementTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "enforcement_total",
			Help:      "Enforcement filter outcomes",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.selectionsTotal, m.matchScore, m.generativeTime, m.enforcementTotal)
	return m
}

func (m *DialogueMetrics) ObserveSelection(route string) {
	if m == nil {
		return
	}
	m.selectionsTotal.WithLabelValues(route).Inc()
}

func (m *DialogueMetrics) ObserveMatchScore(score float64) {
	if m == nil {
		return
	}
	m.matchScore.Observe(score)
}

func (m *DialogueMetrics) ObserveGenerative(status string, seconds float64) {
	if m == nil {
		return
	}
	m.generativeTime.WithLabelValues(status).Observe(seconds)
}

func (m *DialogueMetrics) ObserveEnforcement(outcome string) {
	if m == nil || outcome == "" {
		return
	}
	m.enforcementTotal.WithLabelValues(outcome).Inc()
}

// Snapshot summarises the dialogue metrics currently held by a gatherer.
type Snapshot struct {
	Selections        map[string]uint64 `json:"selections"`
	Enforcement       map[string]uint64 `json:"enforcement"`
	GenerativeCalls   uint64            `json:"generative_calls"`
	GenerativeAvgMs   float64           `json:"generative_avg_ms"`
	MatchScoreSamples uint64            `json:"match_score_samples"`
	MatchScoreAvg     float64           `json:"match_score_avg"`
}

// TakeSnapshot reads the dialogue families from gatherer. A nil gatherer
// reads the default registry.
func TakeSnapshot(gatherer prometheus.Gatherer) (Snapshot, error) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	snap := Snapshot{
		Selections:  map[string]uint64{},
		Enforcement: map[string]uint64{},
	}
	mfs, err := gatherer.Gather()
	if err != nil {
		return snap, err
	}

	for _, mf := range mfs {
		if mf == nil {
			continue
		}
		switch mf.GetName() {
		case "osce_dialogue_selections_total":
			sumCounters(mf, "route", snap.Selections)
		case "osce_dialogue_enforcement_total":
			sumCounters(mf, "outcome", snap.Enforcement)
		case "osce_dialogue_generative_seconds":
			var sum float64
			for _, metric := range mf.Metric {
				if h := metric.GetHistogram(); h != nil {
					snap.GenerativeCalls += h.GetSampleCount()
					sum += h.GetSampleSum()
				}
			}
			if snap.GenerativeCalls > 0 {
				snap.GenerativeAvgMs = sum / float64(snap.GenerativeCalls) * 1000.0
			}
		case "osce_dialogue_match_score":
			for _, metric := range mf.Metric {
				if h := metric.GetHistogram(); h != nil && h.GetSampleCount() > 0 {
					snap.MatchScoreSamples = h.GetSampleCount()
					snap.MatchScoreAvg = h.GetSampleSum() / float64(h.GetSampleCount())
				}
			}
		}
	}
	return snap, nil
}

func sumCounters(mf *dto.MetricFamily, label string, into map[string]uint64) {
	for _, metric := range mf.Metric {
		if metric == nil || metric.GetCounter() == nil {
			continue
		}
		into[labelValue(metric, label)] += uint64(metric.GetCounter().GetValue())
	}
}

func labelValue(metric *dto.Metric, name string) string {
	for _, lp := range metric.Label {
		if lp != nil && lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
