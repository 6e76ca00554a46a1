package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/suhas-sunder/ilovesvg-sub003/internal/progress"
)

func TestPrometheusSink_CountsStages(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	batch := []progress.Event{
		{JobID: "a", TS: time.Now(), Stage: progress.StageRunning},
		{JobID: "a", TS: time.Now(), Stage: progress.StageDone},
		{JobID: "b", TS: time.Now(), Stage: progress.StageRunning},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Equal(t, "vectorizer_job_stage_total", families[0].GetName())

	counts := map[string]float64{}
	for _, m := range families[0].GetMetric() {
		counts[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	require.Equal(t, 2.0, counts["RUNNING"])
	require.Equal(t, 1.0, counts["DONE"])
}

func TestPrometheusSink_DuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
