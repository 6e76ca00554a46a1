// Package api exposes the HTTP interface for the vectorizer service.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/suhas-sunder/ilovesvg-sub003/internal/config"
	"github.com/suhas-sunder/ilovesvg-sub003/internal/convert"
	"github.com/suhas-sunder/ilovesvg-sub003/internal/metrics"
	"github.com/suhas-sunder/ilovesvg-sub003/internal/preprocess"
	"github.com/suhas-sunder/ilovesvg-sub003/internal/trace"
)

// multipartMemoryLimit is the in-memory threshold for multipart parsing;
// larger parts spill to temporary files.
const multipartMemoryLimit = 32 << 20

// Server wires HTTP handlers to the conversion orchestrator.
type Server struct {
	router    chi.Router
	converter *convert.Converter
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(converter *convert.Converter, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		converter: converter,
		cfg:       cfg,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		cr := r
		if cfg.RateLimit.Enabled {
			cr = r.With(rateLimitMiddleware(newIPLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)))
		}
		cr.Post("/convert", s.convert)
		r.Get("/gate", s.gateStats)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) gateStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, s.converter.GateStats())
}

type gateOccupancy struct {
	Running int `json:"running"`
	Queued  int `json:"queued"`
}

type convertResponse struct {
	SVG    string        `json:"svg"`
	Width  int           `json:"width"`
	Height int           `json:"height"`
	Gate   gateOccupancy `json:"gate"`
}

func (s *Server) convert(w http.ResponseWriter, r *http.Request) {
	limits := s.converter.Limits()

	// Cheapest guard first: declared size, before touching the body.
	if verr := limits.CheckDeclared(r.ContentLength); verr != nil {
		s.writeConvertError(w, verr)
		return
	}
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "request must be multipart/form-data with a file part")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "missing file part")
		return
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			s.logger.Warn("close upload failed", zap.Error(closeErr))
		}
	}()
	if verr := limits.CheckPart(header.Size, header.Header.Get("Content-Type")); verr != nil {
		s.writeConvertError(w, verr)
		return
	}

	req, err := s.buildRequest(r)
	if err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	req.JobID = RequestID(r.Context())
	req.File = file

	resp, cerr := s.converter.Convert(r.Context(), req)
	if cerr != nil {
		s.writeConvertError(w, cerr)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, convertResponse{
		SVG:    resp.SVG,
		Width:  resp.Width,
		Height: resp.Height,
		Gate: gateOccupancy{
			Running: resp.Gate.Running,
			Queued:  resp.Gate.Queued,
		},
	})
}

// buildRequest resolves tracer and output settings: config defaults, then
// the named preset, then explicit form fields, in increasing precedence.
func (s *Server) buildRequest(r *http.Request) (convert.Request, error) {
	td := s.cfg.Trace
	params := trace.Params{
		Threshold:    td.Threshold,
		TurdSize:     td.TurdSize,
		OptTolerance: td.OptTolerance,
	}

	if name := r.FormValue("preset"); name != "" {
		preset, ok := s.cfg.Presets[name]
		if !ok {
			return convert.Request{}, fmt.Errorf("unknown preset %q", name)
		}
		params.Threshold = preset.Threshold
		params.TurdSize = preset.TurdSize
		params.OptTolerance = preset.OptTolerance
	}

	var err error
	if params.Threshold, err = formInt(r, "threshold", params.Threshold, 0, 255); err != nil {
		return convert.Request{}, err
	}
	if params.TurdSize, err = formInt(r, "turdSize", params.TurdSize, 0, 1<<20); err != nil {
		return convert.Request{}, err
	}
	if params.OptTolerance, err = formFloat(r, "optTolerance", params.OptTolerance, 0); err != nil {
		return convert.Request{}, err
	}
	turnPolicy := r.FormValue("turnPolicy")
	if turnPolicy == "" {
		turnPolicy = td.TurnPolicy
	}
	if params.TurnPolicy, err = trace.ParseTurnPolicy(turnPolicy); err != nil {
		return convert.Request{}, err
	}

	output := trace.OutputPolicy{
		LineColor:   td.LineColor,
		BGColor:     td.BGColor,
		Transparent: true,
	}
	if v := r.FormValue("lineColor"); v != "" {
		if !validHexColor(v) {
			return convert.Request{}, fmt.Errorf("lineColor %q is not a hex color", v)
		}
		output.LineColor = v
	}
	if v := r.FormValue("bgColor"); v != "" {
		if !validHexColor(v) {
			return convert.Request{}, fmt.Errorf("bgColor %q is not a hex color", v)
		}
		output.BGColor = v
	}
	if output.Invert, err = formBool(r, "invert", false); err != nil {
		return convert.Request{}, err
	}
	var transparent bool
	if transparent, err = formBool(r, "transparent", true); err != nil {
		return convert.Request{}, err
	}
	output.Transparent = transparent

	pre := preprocess.Options{Mode: preprocess.ParseMode(r.FormValue("preprocess"))}
	if pre.BlurSigma, err = formFloat(r, "blurSigma", 0, 0); err != nil {
		return convert.Request{}, err
	}
	if pre.EdgeBoost, err = formFloat(r, "edgeBoost", 1.0, 0); err != nil {
		return convert.Request{}, err
	}
	if pre.EdgeBoost == 0 {
		return convert.Request{}, fmt.Errorf("edgeBoost must be > 0")
	}

	return convert.Request{
		Params:     params,
		Output:     output,
		Preprocess: pre,
	}, nil
}

// writeConvertError maps the conversion error taxonomy onto HTTP statuses.
// Busy additionally carries the retry hint as both a JSON field and a
// Retry-After header in whole seconds.
func (s *Server) writeConvertError(w http.ResponseWriter, cerr *convert.Error) {
	switch cerr.Kind {
	case convert.KindBadRequest:
		writeError(s.logger, w, http.StatusBadRequest, cerr.Msg)
	case convert.KindPayloadTooLarge:
		writeError(s.logger, w, http.StatusRequestEntityTooLarge, cerr.Msg)
	case convert.KindUnsupportedMedia:
		writeError(s.logger, w, http.StatusUnsupportedMediaType, cerr.Msg)
	case convert.KindBusy:
		retryMs := cerr.RetryAfter.Milliseconds()
		retrySecs := (retryMs + 999) / 1000
		w.Header().Set("Retry-After", strconv.FormatInt(retrySecs, 10))
		writeJSON(s.logger, w, http.StatusTooManyRequests, map[string]any{
			"error":        cerr.Msg,
			"code":         "BUSY",
			"retryAfterMs": retryMs,
		})
	default:
		writeError(s.logger, w, http.StatusInternalServerError, cerr.Msg)
	}
}

func formInt(r *http.Request, key string, def, min, max int) (int, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	if n < min || n > max {
		return 0, fmt.Errorf("%s must be in [%d, %d]", key, min, max)
	}
	return n, nil
}

func formFloat(r *http.Request, key string, def, min float64) (float64, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	if f < min {
		return 0, fmt.Errorf("%s must be >= %g", key, min)
	}
	return f, nil
}

func formBool(r *http.Request, key string, def bool) (bool, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", key)
	}
	return b, nil
}

func validHexColor(s string) bool {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 3 && len(s) != 6 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
