package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *recordingSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *recordingSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func validEvent(stage Stage) Event {
	return Event{JobID: "job-1", TS: time.Now().UTC(), Stage: stage}
}

func TestHub_FansOutToSinks(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	h := NewHub(Config{FlushInterval: 5 * time.Millisecond}, sink)
	defer func() { require.NoError(t, h.Close(context.Background())) }()

	h.Emit(validEvent(StageValidating))
	h.Emit(validEvent(StageRunning))
	h.Emit(validEvent(StageDone))

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 3
	}, time.Second, time.Millisecond)

	got := sink.snapshot()
	require.Equal(t, StageValidating, got[0].Stage)
	require.Equal(t, StageDone, got[2].Stage)
}

func TestHub_CloseFlushesPendingEvents(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	h := NewHub(Config{FlushInterval: time.Hour}, sink)

	h.Emit(validEvent(StageFailed))
	require.NoError(t, h.Close(context.Background()))

	require.Len(t, sink.snapshot(), 1)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.True(t, sink.closed)
}

func TestHub_DiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	h := NewHub(Config{FlushInterval: 5 * time.Millisecond}, sink)

	h.Emit(Event{Stage: StageRunning})                              // no job id
	h.Emit(Event{JobID: "x", TS: time.Now(), Stage: Stage("what")}) // unknown stage
	require.NoError(t, h.Close(context.Background()))

	require.Empty(t, sink.snapshot())
}

func TestHub_EmitAfterCloseIsNoop(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	h := NewHub(Config{}, sink)
	require.NoError(t, h.Close(context.Background()))

	h.Emit(validEvent(StageDone))
	require.Empty(t, sink.snapshot())
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, validEvent(StagePostprocessing).Validate())

	bad := validEvent(StageDone)
	bad.Dur = -time.Second
	require.Error(t, bad.Validate())

	require.Error(t, Event{JobID: "x", TS: time.Now()}.Validate())
}
