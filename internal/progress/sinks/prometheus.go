package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/suhas-sunder/ilovesvg-sub003/internal/progress"
)

// PrometheusSink counts lifecycle transitions per stage so dashboards can
// show where jobs spend time and where they fail.
type PrometheusSink struct {
	stages *prometheus.CounterVec
}

// NewPrometheusSink registers the stage counter on the given registerer.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	stages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vectorizer_job_stage_total",
			Help: "Total job lifecycle transitions, labeled by stage.",
		},
		[]string{"stage"},
	)
	if err := reg.Register(stages); err != nil {
		return nil, fmt.Errorf("register stage counter: %w", err)
	}
	return &PrometheusSink{stages: stages}, nil
}

// Consume increments the stage counter for each event.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.stages.WithLabelValues(string(evt.Stage)).Inc()
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
