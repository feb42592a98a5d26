package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/marketsift/marketsift/internal/listing"
	"github.com/marketsift/marketsift/internal/orchestrator"
	"github.com/marketsift/marketsift/internal/sources"
)

const maxRequestBody = 8 << 20

// extractRequest is the body of POST /extract and /extract/all.
type extractRequest struct {
	Marketplace string          `json:"marketplace"`
	Identifier  string          `json:"identifier"`
	Content     string          `json:"content,omitempty"`
	Options     *requestOptions `json:"options,omitempty"`
}

// streamRequest is the body of POST /extract/stream.
type streamRequest struct {
	Marketplace string          `json:"marketplace"`
	Identifiers []string        `json:"identifiers"`
	Options     *requestOptions `json:"options,omitempty"`
}

// requestOptions mirrors the orchestrator options with wire-level names.
type requestOptions struct {
	PreferredTiers     []int    `json:"preferredTiers,omitempty"`
	RequiredConfidence float64  `json:"requiredConfidence,omitempty"`
	AllowFallback      *bool    `json:"allowFallback,omitempty"`
	TimeoutMS          int64    `json:"timeout,omitempty"`
	IncludeChannels    []string `json:"includeChannels,omitempty"`
	ExcludeChannels    []string `json:"excludeChannels,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// toOptions validates and converts the wire options. Unknown channel names
// are refused rather than silently ignored.
func (ro *requestOptions) toOptions(content string) (orchestrator.Options, error) {
	opts := orchestrator.Options{Content: content}
	if ro == nil {
		return opts, nil
	}

	opts.PreferredTiers = ro.PreferredTiers
	opts.RequiredConfidence = ro.RequiredConfidence
	if ro.AllowFallback != nil && !*ro.AllowFallback {
		opts.DisableFallback = true
	}
	if ro.TimeoutMS > 0 {
		opts.Timeout = time.Duration(ro.TimeoutMS) * time.Millisecond
	}

	for _, name := range ro.IncludeChannels {
		c, ok := sources.ParseChannel(name)
		if !ok {
			return opts, fmt.Errorf("unknown channel %q in includeChannels", name)
		}
		opts.IncludeChannels = append(opts.IncludeChannels, c)
	}
	for _, name := range ro.ExcludeChannels {
		c, ok := sources.ParseChannel(name)
		if !ok {
			return opts, fmt.Errorf("unknown channel %q in excludeChannels", name)
		}
		opts.ExcludeChannels = append(opts.ExcludeChannels, c)
	}
	return opts, nil
}

// handleExtract runs the single-source-with-fallback path, read-through
// cached when a cache is wired. Content-bearing requests bypass the cache:
// the same identifier can arrive with different uploads.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if !s.decode(w, r, &req) {
		return
	}
	marketplace, opts, ok := s.validate(w, r, req.Marketplace, req.Identifier, req.Content, req.Options)
	if !ok {
		return
	}

	if req.Content == "" {
		if cached := s.cache.Get(r.Context(), marketplace, req.Identifier); cached != nil {
			s.writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	res, err := s.orch.GetData(ctx, marketplace, req.Identifier, opts)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Content == "" {
		s.cache.Put(r.Context(), marketplace, req.Identifier, res)
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleExtractAll runs the parallel multi-source merge.
func (s *Server) handleExtractAll(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if !s.decode(w, r, &req) {
		return
	}
	marketplace, opts, ok := s.validate(w, r, req.Marketplace, req.Identifier, req.Content, req.Options)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	res, err := s.orch.GetFromAllSources(ctx, marketplace, req.Identifier, opts)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// streamLine is one NDJSON line of POST /extract/stream.
type streamLine struct {
	Identifier string               `json:"identifier"`
	Result     *orchestrator.Result `json:"result"`
}

// handleExtractStream runs identifiers sequentially and emits one NDJSON
// line per result as it completes.
func (s *Server) handleExtractStream(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Identifiers) == 0 {
		s.writeError(w, r, http.StatusBadRequest, "identifiers is required")
		return
	}
	marketplace, opts, ok := s.validate(w, r, req.Marketplace, req.Identifiers[0], "", req.Options)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	for _, identifier := range req.Identifiers {
		ctx, cancel := s.requestContext(r)
		res, err := s.orch.GetData(ctx, marketplace, identifier, opts)
		cancel()
		if err != nil {
			// Invalid identifier inside the batch: emit an empty result line
			// and keep streaming the rest.
			res = &orchestrator.Result{AttemptedSources: []orchestrator.AttemptRecord{}}
			log.Warn().Str("identifier", identifier).Err(err).Msg("Stream entry rejected")
		}
		if err := enc.Encode(streamLine{Identifier: identifier, Result: res}); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// handleAdapters lists the registered adapters for a marketplace.
func (s *Server) handleAdapters(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["marketplace"]
	marketplace, ok := listing.ParseMarketplace(name)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("unknown marketplace %q", name))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"marketplace": marketplace,
		"adapters":    s.orch.GetAvailableAdapters(r.Context(), marketplace),
	})
}

// handleHealth returns the orchestrator's two-level health report.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"sources": s.orch.GetHealthReport(),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusNotFound, "no such route")
}

// decode reads a JSON body, rejecting unknown garbage early.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// validate parses the marketplace and options common to the extract routes.
func (s *Server) validate(w http.ResponseWriter, r *http.Request, marketplaceName, identifier, content string, ro *requestOptions) (listing.Marketplace, orchestrator.Options, bool) {
	marketplace, ok := listing.ParseMarketplace(marketplaceName)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("unknown marketplace %q", marketplaceName))
		return "", orchestrator.Options{}, false
	}
	if identifier == "" {
		s.writeError(w, r, http.StatusBadRequest, "identifier is required")
		return "", orchestrator.Options{}, false
	}
	opts, err := ro.toOptions(content)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return "", orchestrator.Options{}, false
	}
	return marketplace, opts, true
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = orchestrator.DefaultTimeout
	}
	return context.WithTimeout(r.Context(), timeout)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	requestID, _ := r.Context().Value(requestIDKey).(string)
	s.writeJSON(w, status, errorResponse{Error: msg, RequestID: requestID})
}
