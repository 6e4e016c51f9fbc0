package dispatch

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/elidickinson/ccmux-go/internal/ccerrors"
)

// handleChatCompletions serves POST /v1/chat/completions, the OpenAI
// Chat-Completions-shaped entry point. It translates into the gateway's
// canonical wire format, routes and dispatches exactly as /v1/messages
// does, then translates the response back. Streaming is not supported here;
// clients that need it should use /v1/messages instead.
func (s *State) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if !validateJSONContentType(r) {
		writeError(w, s.logger, parseError("Content-Type must be application/json"))
		return
	}

	var chatReq openAIChatRequest
	if err := decodeJSONBodyLoose(w, r, &chatReq); err != nil {
		writeError(w, s.logger, parseError("invalid request format: %v", err))
		return
	}
	if chatReq.isStreaming() {
		writeError(w, s.logger, parseError("streaming is not supported for /v1/chat/completions; use /v1/messages instead"))
		return
	}

	requestedModel := chatReq.Model

	req, err := transformOpenAIToAnthropic(&chatReq)
	if err != nil {
		writeError(w, s.logger, parseError("failed to transform OpenAI request: %v", err))
		return
	}

	inner := s.snapshot()
	decision := inner.router.Route(req)

	modelConfig, hasMapping := s.modelConfig(decision.ModelName)
	if !hasMapping {
		provider, err := inner.registry.GetProviderForModel(decision.ModelName)
		if err != nil {
			writeError(w, s.logger, providerError("no model mapping or provider found for model: %s", decision.ModelName))
			return
		}
		req.Model = decision.ModelName
		resp, err := provider.SendMessage(r.Context(), req)
		if err != nil {
			writeError(w, s.logger, providerError("%v", err))
			return
		}
		writeJSON(w, http.StatusOK, transformAnthropicToOpenAI(resp, requestedModel))
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
			continue
		}

		attempt := cloneRequest(req)
		attempt.Model = mapping.ActualModel
		maybeInjectContinuation(attempt, mapping, decision.RouteType)

		s.logger.Info("dispatching chat-completions request",
			zap.String("route_type", string(decision.RouteType)),
			zap.String("requested_model", requestedModel),
			zap.String("provider", mapping.Provider),
			zap.String("actual_model", mapping.ActualModel),
			zap.Int("attempt", idx+1), zap.Int("of", len(mappings)))

		resp, err := provider.SendMessage(r.Context(), attempt)
		if err != nil {
			if ce, ok := ccerrors.AsError(err); ok && ce.IsClientError() {
				writeError(w, s.logger, providerError("%v", err))
				return
			}
			s.logger.Info("provider failed, trying next fallback", zap.String("provider", mapping.Provider), zap.Error(err))
			continue
		}

		writeRoutingInfo(s.logger, mapping.ActualModel, mapping.Provider, string(decision.RouteType))
		writeJSON(w, http.StatusOK, transformAnthropicToOpenAI(resp, requestedModel))
		return
	}

	writeError(w, s.logger, providerError("all %d provider mappings failed for model: %s", len(mappings), decision.ModelName))
}
