// Package convert sequences a conversion job through validation, gate
// admission, preprocessing, vectorization and postprocessing, guaranteeing
// the gate slot is released on every exit path.
package convert

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/suhas-sunder/ilovesvg-sub003/internal/gate"
	"github.com/suhas-sunder/ilovesvg-sub003/internal/hash/sha256"
	"github.com/suhas-sunder/ilovesvg-sub003/internal/metrics"
	"github.com/suhas-sunder/ilovesvg-sub003/internal/preprocess"
	"github.com/suhas-sunder/ilovesvg-sub003/internal/progress"
	"github.com/suhas-sunder/ilovesvg-sub003/internal/trace"
)

// Request is one conversion job. The file reader is owned exclusively by
// the job for its lifetime; nothing is persisted across requests.
type Request struct {
	// JobID identifies the job in logs and lifecycle events. When empty a
	// fresh UUID is assigned.
	JobID      string
	File       io.Reader
	Params     trace.Params
	Output     trace.OutputPolicy
	Preprocess preprocess.Options
}

// Response carries the finished markup plus gate occupancy, which clients
// use for adaptive throttling.
type Response struct {
	SVG    string
	Width  int
	Height int
	Gate   gate.Stats
}

// Converter is the orchestrator. One instance serves the whole process,
// wrapping the single shared admission gate.
type Converter struct {
	gate    *gate.Gate
	limits  Limits
	pre     *preprocess.Processor
	adapter *trace.Adapter
	emitter progress.Emitter
	logger  *zap.Logger
}

// New constructs a Converter. emitter may be nil when lifecycle reporting
// is not wanted.
func New(
	g *gate.Gate,
	limits Limits,
	pre *preprocess.Processor,
	adapter *trace.Adapter,
	emitter progress.Emitter,
	logger *zap.Logger,
) *Converter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Converter{gate: g, limits: limits, pre: pre, adapter: adapter, emitter: emitter, logger: logger}
}

// Limits exposes the validator policy so the transport layer can run the
// cheap pre-gate guards before building a Request.
func (c *Converter) Limits() Limits {
	return c.limits
}

// GateStats reports current gate occupancy.
func (c *Converter) GateStats() gate.Stats {
	return c.gate.Stats()
}

// Convert runs the job to completion. Failures are always *Error; the gate
// slot acquired here is released exactly once on every path out.
func (c *Converter) Convert(ctx context.Context, req Request) (Response, *Error) {
	start := time.Now()
	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	c.emit(jobID, progress.StageValidating, 0, "")
	if req.File == nil {
		c.emit(jobID, progress.StageFailed, 0, "no payload")
		return Response{}, badRequestf("missing image payload")
	}

	c.emit(jobID, progress.StageGateWaiting, 0, "")
	slot, err := c.gate.Acquire(ctx)
	if err != nil {
		var busy *gate.BusyError
		if errors.As(err, &busy) {
			metrics.ObserveGateRejection()
			metrics.ObserveConversion("busy", 0)
			c.emit(jobID, progress.StageFailed, time.Since(start), "queue full")
			return Response{}, busyError(busy.RetryAfter)
		}
		metrics.ObserveConversion("canceled", 0)
		c.emit(jobID, progress.StageFailed, time.Since(start), "wait canceled")
		return Response{}, internalError("conversion aborted while waiting for a slot", err)
	}
	defer func() {
		slot.Release()
		stats := c.gate.Stats()
		metrics.ObserveGate(stats.Running, stats.Queued)
	}()
	stats := c.gate.Stats()
	metrics.ObserveGate(stats.Running, stats.Queued)
	c.emit(jobID, progress.StageRunning, 0, "")

	data, err := io.ReadAll(req.File)
	if err != nil {
		metrics.ObserveConversion("read_error", 0)
		c.emit(jobID, progress.StageFailed, time.Since(start), "upload read failed")
		return Response{}, internalError("read upload failed", err)
	}
	c.logger.Debug("upload received",
		zap.String("job_id", jobID),
		zap.String("content_sha", sha256.Digest(data)),
		zap.Int("bytes", len(data)),
	)

	if verr := c.limits.CheckPixels(data); verr != nil {
		metrics.ObserveConversion("rejected", 0)
		c.emit(jobID, progress.StageFailed, time.Since(start), verr.Msg)
		return Response{}, verr
	}

	normalized := c.pre.Normalize(data, req.Preprocess)

	result, err := c.adapter.Vectorize(normalized.PNG, req.Params, req.Output, func() {
		c.emit(jobID, progress.StagePostprocessing, 0, "")
	})
	if err != nil {
		c.logger.Error("vectorization failed", zap.String("job_id", jobID), zap.Error(err))
		metrics.ObserveConversion("error", 0)
		c.emit(jobID, progress.StageFailed, time.Since(start), "vectorization failed")
		return Response{}, internalError("image could not be vectorized", err)
	}

	metrics.ObserveConversion("success", time.Since(start))
	c.emit(jobID, progress.StageDone, time.Since(start), "")
	c.logger.Info("conversion complete",
		zap.String("job_id", jobID),
		zap.Int("width", result.Width),
		zap.Int("height", result.Height),
		zap.Duration("elapsed", time.Since(start)),
	)
	return Response{
		SVG:    result.SVG,
		Width:  result.Width,
		Height: result.Height,
		Gate:   c.gate.Stats(),
	}, nil
}

func (c *Converter) emit(jobID string, stage progress.Stage, dur time.Duration, note string) {
	if c.emitter == nil {
		return
	}
	c.emitter.Emit(progress.Event{
		JobID: jobID,
		TS:    time.Now().UTC(),
		Stage: stage,
		Dur:   dur,
		Note:  note,
	})
}
