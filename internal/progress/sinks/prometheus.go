package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/citemetric/scholarcrawl/internal/progress"
)

// PrometheusSink exports scrape progress metrics. It owns every collector for
// profile completions, fetch outcomes, soft blocks, and governor pauses.
type PrometheusSink struct {
	profilesCompleted *prometheus.CounterVec
	fetchRequests     *prometheus.CounterVec
	fetchDuration     *prometheus.HistogramVec
	softBlocks        prometheus.Counter
	escalations       prometheus.Counter
	giveUps           prometheus.Counter
	pauses            prometheus.Counter
	pauseSeconds      prometheus.Counter
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		profilesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scholarcrawl_profiles_completed_total",
			Help: "Profiles completed partitioned by result.",
		}, []string{"result"}),
		fetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scholarcrawl_fetch_requests_total",
			Help: "Fetch completions partitioned by status class.",
		}, []string{"status_class"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scholarcrawl_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by status class.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"status_class"}),
		softBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scholarcrawl_soft_blocks_total",
			Help: "Soft-block signals observed across all fetch paths.",
		}),
		escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scholarcrawl_identity_escalations_total",
			Help: "Escalations from direct to proxied identities.",
		}),
		giveUps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scholarcrawl_fetch_giveups_total",
			Help: "Logical fetch requests abandoned after retry exhaustion.",
		}),
		pauses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scholarcrawl_governor_pauses_total",
			Help: "Global cooldown pauses triggered by the block governor.",
		}),
		pauseSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scholarcrawl_governor_pause_seconds_total",
			Help: "Cumulative seconds spent in governor pauses.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.profilesCompleted,
		s.fetchRequests,
		s.fetchDuration,
		s.softBlocks,
		s.escalations,
		s.giveUps,
		s.pauses,
		s.pauseSeconds,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. Safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageProfileDone:
		s.profilesCompleted.WithLabelValues("success").Inc()
	case progress.StageProfileError:
		s.profilesCompleted.WithLabelValues("error").Inc()
	case progress.StageFetchDone:
		class := string(evt.StatusClass)
		if class == "" {
			class = string(progress.StatusOther)
		}
		s.fetchRequests.WithLabelValues(class).Inc()
		if evt.Dur > 0 {
			s.fetchDuration.WithLabelValues(class).Observe(evt.Dur.Seconds())
		}
	case progress.StageSoftBlock:
		s.softBlocks.Inc()
	case progress.StageEscalate:
		s.escalations.Inc()
	case progress.StageGiveUp:
		s.giveUps.Inc()
	case progress.StagePauseStart:
		s.pauses.Inc()
	case progress.StagePauseEnd:
		if evt.Dur > 0 {
			s.pauseSeconds.Add(evt.Dur.Seconds())
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
