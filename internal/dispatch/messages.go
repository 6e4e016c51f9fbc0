package dispatch

import (
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/elidickinson/ccmux-go/internal/ccerrors"
	"github.com/elidickinson/ccmux-go/internal/config"
	"github.com/elidickinson/ccmux-go/internal/router"
	"github.com/elidickinson/ccmux-go/internal/wire"
)

// handleMessages serves POST /v1/messages, the gateway's primary entry
// point: parse, route, resolve the routed model's provider bindings, and
// try each binding in priority order until one succeeds.
func (s *State) handleMessages(w http.ResponseWriter, r *http.Request) {
	if !validateJSONContentType(r) {
		writeError(w, s.logger, parseError("Content-Type must be application/json"))
		return
	}

	var req wire.Request
	if err := decodeJSONBodyLoose(w, r, &req); err != nil {
		s.logger.Error("failed to parse /v1/messages request", zap.Error(err))
		writeError(w, s.logger, parseError("invalid request format: %v", err))
		return
	}

	requestedModel := req.Model
	start := time.Now()
	inner := s.snapshot()
	traceID := s.Tracer.NewTraceID()

	decision := inner.router.Route(&req)

	modelConfig, hasMapping := s.modelConfig(decision.ModelName)
	if !hasMapping {
		s.handleMessagesDirect(w, r, &req, decision, requestedModel, traceID, start)
		return
	}

	mappings, err := resolveMappings(modelConfig, r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	for idx, mapping := range mappings {
		provider, ok := inner.registry.GetProvider(mapping.Provider)
		if !ok {
			s.logger.Info("provider not found in registry, trying next fallback", zap.String("provider", mapping.Provider))
			continue
		}

		attempt := cloneRequest(&req)
		attempt.Model = mapping.ActualModel
		maybeInjectContinuation(attempt, mapping, decision.RouteType)

		isStreaming := attempt.IsStreaming()
		s.logger.Info("dispatching request",
			zap.String("route_type", string(decision.RouteType)),
			zap.String("requested_model", requestedModel),
			zap.String("provider", mapping.Provider),
			zap.String("actual_model", mapping.ActualModel),
			zap.Int("attempt", idx+1), zap.Int("of", len(mappings)),
			zap.Bool("stream", isStreaming))

		s.Tracer.TraceRequest(traceID, attempt, mapping.Provider, string(decision.RouteType), isStreaming)

		if isStreaming {
			body, upstreamHeader, err := provider.SendMessageStream(r.Context(), attempt)
			if err != nil {
				s.Tracer.TraceError(traceID, err.Error())
				if ce, ok := ccerrors.AsError(err); ok && ce.IsClientError() {
					writeError(w, s.logger, providerError("%v", err))
					return
				}
				s.logger.Info("provider streaming failed, trying next fallback", zap.String("provider", mapping.Provider), zap.Error(err))
				continue
			}
			writeRoutingInfo(s.logger, mapping.ActualModel, mapping.Provider, string(decision.RouteType))
			relaySSE(w, body, upstreamHeader, s.logger)
			return
		}

		resp, err := provider.SendMessage(r.Context(), attempt)
		if err != nil {
			s.Tracer.TraceError(traceID, err.Error())
			if ce, ok := ccerrors.AsError(err); ok && ce.IsClientError() {
				writeError(w, s.logger, providerError("%v", err))
				return
			}
			s.logger.Info("provider failed, trying next fallback", zap.String("provider", mapping.Provider), zap.Error(err))
			continue
		}

		resp.Model = requestedModel
		latency := time.Since(start)
		s.Tracer.TraceResponse(traceID, resp, latency)
		writeRoutingInfo(s.logger, mapping.ActualModel, mapping.Provider, string(decision.RouteType))
		s.logger.Info("request succeeded",
			zap.String("provider", mapping.Provider), zap.Duration("latency", latency),
			zap.Int("output_tokens", resp.Usage.OutputTokens))
		writeJSON(w, http.StatusOK, resp)
		return
	}

	s.logger.Error("all provider mappings failed", zap.String("model", decision.ModelName))
	writeError(w, s.logger, providerError("all %d provider mappings failed for model: %s", len(mappings), decision.ModelName))
}

// handleMessagesDirect handles the backward-compatible path: decision.ModelName
// has no [[models]] entry, so fall back to a direct registry lookup keyed by
// model name with no fallback chain.
func (s *State) handleMessagesDirect(w http.ResponseWriter, r *http.Request, req *wire.Request, decision router.RouteDecision, requestedModel, traceID string, start time.Time) {
	inner := s.snapshot()
	provider, err := inner.registry.GetProviderForModel(decision.ModelName)
	if err != nil {
		s.logger.Error("no model mapping or provider found", zap.String("model", decision.ModelName))
		writeError(w, s.logger, providerError("no model mapping or provider found for model: %s", decision.ModelName))
		return
	}

	req.Model = decision.ModelName
	isStreaming := req.IsStreaming()
	s.Tracer.TraceRequest(traceID, req, provider.Name(), string(decision.RouteType), isStreaming)

	if isStreaming {
		body, upstreamHeader, err := provider.SendMessageStream(r.Context(), req)
		if err != nil {
			s.Tracer.TraceError(traceID, err.Error())
			writeError(w, s.logger, providerError("%v", err))
			return
		}
		writeRoutingInfo(s.logger, decision.ModelName, provider.Name(), string(decision.RouteType))
		relaySSE(w, body, upstreamHeader, s.logger)
		return
	}

	resp, err := provider.SendMessage(r.Context(), req)
	if err != nil {
		s.Tracer.TraceError(traceID, err.Error())
		writeError(w, s.logger, providerError("%v", err))
		return
	}
	resp.Model = requestedModel
	s.Tracer.TraceResponse(traceID, resp, time.Since(start))
	writeRoutingInfo(s.logger, decision.ModelName, provider.Name(), string(decision.RouteType))
	writeJSON(w, http.StatusOK, resp)
}

// handleCountTokens serves POST /v1/messages/count_tokens, routing the same
// way handleMessages does but calling each provider's CountTokens instead of
// SendMessage.
func (s *State) handleCountTokens(w http.ResponseWriter, r *http.Request) {
	if !validateJSONContentType(r) {
		writeError(w, s.logger, parseError("Content-Type must be application/json"))
		return
	}

	var req wire.CountTokensRequest
	if err := decodeJSONBodyLoose(w, r, &req); err != nil {
		writeError(w, s.logger, parseError("invalid count_tokens request format: %v", err))
		return
	}

	inner := s.snapshot()

	routingReq := &wire.Request{
		Model:     req.Model,
		Messages:  req.Messages,
		MaxTokens: 1024,
		System:    req.System,
		Tools:     req.Tools,
	}
	decision := inner.router.Route(routingReq)

	modelConfig, hasMapping := s.modelConfig(decision.ModelName)
	if !hasMapping {
		provider, err := inner.registry.GetProviderForModel(decision.ModelName)
		if err != nil {
			writeError(w, s.logger, providerError("no model mapping or provider found for model: %s", decision.ModelName))
			return
		}
		req.Model = decision.ModelName
		resp, err := provider.CountTokens(r.Context(), &req)
		if err != nil {
			writeError(w, s.logger, providerError("%v", err))
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	mappings, err := resolveMappings(modelConfig, r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	for _, mapping := range mappings {
		provider, ok := inner.registry.GetProvider(mapping.Provider)
		if !ok {
			continue
		}
		attempt := req
		attempt.Model = mapping.ActualModel
		resp, err := provider.CountTokens(r.Context(), &attempt)
		if err != nil {
			s.logger.Debug("provider failed token count, trying next fallback", zap.String("provider", mapping.Provider), zap.Error(err))
			continue
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	writeError(w, s.logger, providerError("all %d provider mappings failed for token counting: %s", len(mappings), decision.ModelName))
}

func cloneRequest(req *wire.Request) *wire.Request {
	clone := *req
	clone.Messages = append([]wire.Message(nil), req.Messages...)
	return &clone
}

// maybeInjectContinuation prepends a continuation reminder to the last
// message when the mapping asks for it and the last turn ended in a tool
// result with no accompanying text — but never for background-routed
// requests, which are expected to be short-lived single-shot calls.
func maybeInjectContinuation(req *wire.Request, mapping config.ModelMapping, routeType router.RouteType) {
	if !mapping.InjectContinuationPrompt || routeType == router.RouteBackground {
		return
	}
	if len(req.Messages) == 0 {
		return
	}
	last := &req.Messages[len(req.Messages)-1]
	if shouldInjectContinuation(last) {
		injectContinuationText(last)
	}
}

// rateLimitHeaderPrefix marks the upstream response headers that must ride
// along on the downstream streaming response verbatim (spec.md §4.4, §4.5.d).
const rateLimitHeaderPrefix = "anthropic-ratelimit-"

// relaySSE copies an already-Anthropic-formatted SSE body to the client
// verbatim, flushing after every write so events aren't buffered.
// upstreamHeader carries the provider's raw response headers, if any; rate
// limit headers found there are forwarded onto the downstream response.
func relaySSE(w http.ResponseWriter, body io.ReadCloser, upstreamHeader http.Header, logger *zap.Logger) {
	defer body.Close()
	for name, values := range upstreamHeader {
		if !strings.HasPrefix(strings.ToLower(name), rateLimitHeaderPrefix) {
			continue
		}
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			if err != io.EOF {
				logger.Debug("stream read error", zap.Error(err))
			}
			return
		}
	}
}
