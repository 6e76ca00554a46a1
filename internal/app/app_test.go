package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/suhas-sunder/ilovesvg-sub003/internal/config"
)

func TestNew_BuildsRunnableApp(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	a := New(cfg, nil)
	require.NotNil(t, a.Converter())

	stats := a.Converter().GateStats()
	require.GreaterOrEqual(t, stats.MaxConcurrency, 1)
	require.LessOrEqual(t, stats.MaxConcurrency, 2)
	require.Equal(t, 8, stats.QueueMax)
}
