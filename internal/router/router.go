// Package router implements model routing (spec.md §3, §4.1): it inspects an
// incoming Anthropic Messages request and decides which logical model name
// should actually serve it, based on a fixed priority order of signals.
package router

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/elidickinson/ccmux-go/internal/config"
	"github.com/elidickinson/ccmux-go/internal/wire"
)

// RouteType names which signal produced a RouteDecision.
type RouteType string

const (
	RouteWebSearch RouteType = "websearch"
	RouteBackground RouteType = "background"
	RoutePromptRule RouteType = "prompt_rule"
	RouteThink      RouteType = "think"
	RouteDefault    RouteType = "default"
)

// RouteDecision is the outcome of routing one request.
type RouteDecision struct {
	ModelName     string
	RouteType     RouteType
	MatchedPrompt string
	HasMatch      bool
}

const subagentModelTagOpen = "<CCM-SUBAGENT-MODEL>"

var subagentModelTagRe = regexp.MustCompile(`<CCM-SUBAGENT-MODEL>(.*?)</CCM-SUBAGENT-MODEL>`)

// captureRefPattern detects $1, $name, ${1}, ${name} references in a prompt
// rule's model template, the same syntax regexp.Regexp.Expand understands.
var captureRefPattern = regexp.MustCompile(`\$(?:\d+|[a-zA-Z_]\w*|\{[^}]+\})`)

func containsCaptureReference(s string) bool {
	return strings.Contains(s, "$") && captureRefPattern.MatchString(s)
}

// compiledPromptRule is a router.prompt_rules entry with its pattern
// pre-compiled and its dynamic-model-template status pre-computed.
type compiledPromptRule struct {
	regex      *regexp.Regexp
	model      string
	stripMatch bool
	isDynamic  bool
}

const (
	defaultAutoMapPattern    = `^claude-`
	defaultBackgroundPattern = `(?i)claude.*haiku`
)

// Router selects a model for each incoming request according to the
// configured routing signals, highest priority first:
//  1. WebSearch  - a web_search tool is present in the request
//  2. Background - the original model name matches the background regex
//  3. Subagent   - a CCM-SUBAGENT-MODEL tag is present in the system prompt
//  4. PromptRule - a configured regex matches the turn-starting user message
//  5. Think      - Plan Mode / extended thinking is enabled
//  6. Default    - the auto-mapped or original model name
type Router struct {
	cfg             *config.AppConfig
	logger          *zap.Logger
	autoMapRegex    *regexp.Regexp
	backgroundRegex *regexp.Regexp
	promptRules     []compiledPromptRule
}

// New builds a Router from the loaded configuration, compiling the
// auto-map, background, and prompt-rule regexes up front.
func New(cfg *config.AppConfig, logger *zap.Logger) *Router {
	r := &Router{
		cfg:             cfg,
		logger:          logger,
		autoMapRegex:    compileOrDefault(cfg.Router.AutoMapRegex, defaultAutoMapPattern, logger, "auto_map_regex"),
		backgroundRegex: compileOrDefault(cfg.Router.BackgroundRegex, defaultBackgroundPattern, logger, "background_regex"),
	}

	for _, rule := range cfg.Router.PromptRules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			logger.Warn("invalid prompt_rule pattern, skipping", zap.String("pattern", rule.Pattern), zap.Error(err))
			continue
		}
		r.promptRules = append(r.promptRules, compiledPromptRule{
			regex:      re,
			model:      rule.Model,
			stripMatch: rule.StripMatch,
			isDynamic:  containsCaptureReference(rule.Model),
		})
	}
	if len(r.promptRules) > 0 {
		logger.Info("loaded prompt routing rules", zap.Int("count", len(r.promptRules)))
	}

	return r
}

func compileOrDefault(pattern, fallback string, logger *zap.Logger, field string) *regexp.Regexp {
	if pattern == "" {
		return regexp.MustCompile(fallback)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		logger.Warn("invalid regex pattern, falling back to default", zap.String("field", field), zap.String("pattern", pattern), zap.Error(err))
		return regexp.MustCompile(fallback)
	}
	return re
}

// Route decides which model should serve req, mutating req in place:
// auto-mapping rewrites req.Model, a matched subagent tag or prompt rule may
// strip text from the system prompt or the turn-starting user message.
func (r *Router) Route(req *wire.Request) RouteDecision {
	originalModel := req.Model

	if r.autoMapRegex != nil && r.autoMapRegex.MatchString(req.Model) {
		old := req.Model
		req.Model = r.cfg.Router.Default
		r.logger.Debug("auto-mapped model", zap.String("from", old), zap.String("to", req.Model))
	}

	if r.cfg.Router.Websearch != "" && r.hasWebSearchTool(req) {
		r.logger.Debug("routing to websearch model")
		return RouteDecision{ModelName: r.cfg.Router.Websearch, RouteType: RouteWebSearch}
	}

	if r.cfg.Router.Background != "" && r.isBackgroundTask(originalModel) {
		r.logger.Debug("routing to background model")
		return RouteDecision{ModelName: r.cfg.Router.Background, RouteType: RouteBackground}
	}

	if model, ok := r.extractSubagentModel(req); ok {
		r.logger.Debug("routing to subagent model", zap.String("model", model))
		return RouteDecision{ModelName: model, RouteType: RouteDefault}
	}

	if model, matched, ok := r.matchPromptRule(req); ok {
		r.logger.Debug("routing via prompt rule match", zap.String("model", model))
		return RouteDecision{ModelName: model, RouteType: RoutePromptRule, MatchedPrompt: matched, HasMatch: true}
	}

	if r.cfg.Router.Think != "" && r.isPlanMode(req) {
		r.logger.Debug("routing to think model (plan mode detected)")
		return RouteDecision{ModelName: r.cfg.Router.Think, RouteType: RouteThink}
	}

	r.logger.Debug("using model", zap.String("model", req.Model))
	return RouteDecision{ModelName: req.Model, RouteType: RouteDefault}
}

func (r *Router) hasWebSearchTool(req *wire.Request) bool {
	for _, t := range req.Tools {
		if t.IsWebSearch() {
			return true
		}
	}
	return false
}

func (r *Router) isPlanMode(req *wire.Request) bool {
	return req.Thinking.Enabled()
}

func (r *Router) isBackgroundTask(model string) bool {
	return r.backgroundRegex != nil && r.backgroundRegex.MatchString(model)
}

// extractSubagentModel looks for a <CCM-SUBAGENT-MODEL>name</CCM-SUBAGENT-MODEL>
// tag in the second system-prompt block, removing the tag from the text on a
// match. The tag value is first resolved against the configured models list
// (case-insensitive); if no configured model matches, the raw tag value is
// used directly as a deprecated provider-model-name fallback.
func (r *Router) extractSubagentModel(req *wire.Request) (string, bool) {
	if req.System == nil || req.System.IsText() {
		return "", false
	}
	blocks := req.System.Blocks
	if len(blocks) < 2 {
		return "", false
	}

	second := &blocks[1]
	if !strings.Contains(second.Text, subagentModelTagOpen) {
		return "", false
	}

	m := subagentModelTagRe.FindStringSubmatch(second.Text)
	if m == nil {
		return "", false
	}
	tagValue := m[1]
	second.Text = subagentModelTagRe.ReplaceAllString(second.Text, "")

	for _, mc := range r.cfg.Models {
		if strings.EqualFold(mc.Name, tagValue) {
			return mc.Name, true
		}
	}

	r.logger.Debug("CCM-SUBAGENT-MODEL tag not found in models config, using as direct provider model name (deprecated)",
		zap.String("tag_value", tagValue))
	return tagValue, true
}

// matchPromptRule checks each configured rule, in order, against the
// turn-starting user message. The first match wins; its model template is
// expanded against the match's capture groups if dynamic, and the matched
// phrase is stripped from the turn-starting message when the rule asks for it.
func (r *Router) matchPromptRule(req *wire.Request) (model, matchedText string, ok bool) {
	if len(r.promptRules) == 0 {
		return "", "", false
	}

	userContent, found := r.extractTurnStartingUserMessage(req)
	if !found {
		return "", "", false
	}

	for _, rule := range r.promptRules {
		loc := rule.regex.FindStringSubmatchIndex(userContent)
		if loc == nil {
			continue
		}
		matched := userContent[loc[0]:loc[1]]

		resolvedModel := rule.model
		if rule.isDynamic {
			resolvedModel = string(rule.regex.ExpandString(nil, rule.model, userContent, loc))
		}

		r.logger.Debug("prompt rule matched",
			zap.String("pattern", rule.regex.String()), zap.String("model", resolvedModel), zap.Bool("strip_match", rule.stripMatch))

		if rule.stripMatch {
			r.stripMatchFromTurnStartingMessage(req, rule.regex)
		}

		return resolvedModel, matched, true
	}

	return "", "", false
}

// findTurnStartIndex returns the index of the first message in the current
// turn. A turn starts at the conversation's beginning, or right after an
// assistant message that contains no tool_use block (meaning the previous
// turn ended there).
func (r *Router) findTurnStartIndex(req *wire.Request) int {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		msg := req.Messages[i]
		if msg.Role != "assistant" {
			continue
		}
		if !messageHasToolUse(msg.Content) {
			return i + 1
		}
	}
	return 0
}

func messageHasToolUse(content wire.MessageContent) bool {
	if content.IsText() {
		return false
	}
	for _, b := range content.Blocks {
		if b.IsToolUse() {
			return true
		}
	}
	return false
}

const systemReminderPrefix = "<system-reminder>"

// extractTurnStartingUserMessage returns the text of the first user message
// in the current turn that carries non-system-reminder text, falling back to
// the last user message in the request if the turn has none.
func (r *Router) extractTurnStartingUserMessage(req *wire.Request) (string, bool) {
	start := r.findTurnStartIndex(req)

	for i := start; i < len(req.Messages); i++ {
		msg := req.Messages[i]
		if msg.Role != "user" {
			continue
		}
		if text, ok := turnMessageText(msg.Content); ok {
			return text, true
		}
	}

	return r.extractLastUserMessage(req)
}

// turnMessageText extracts the non-system-reminder text of one message for
// prompt-rule matching: the whole string for text-form content (unless it is
// entirely a system-reminder block), or text blocks joined by a space for
// block-form content.
func turnMessageText(content wire.MessageContent) (string, bool) {
	if content.IsText() {
		if strings.HasPrefix(strings.TrimSpace(content.Text), systemReminderPrefix) {
			return "", false
		}
		return content.Text, true
	}

	var parts []string
	for _, b := range content.Blocks {
		if !b.IsText() {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(b.Known.Text), systemReminderPrefix) {
			continue
		}
		parts = append(parts, b.Known.Text)
	}
	joined := strings.Join(parts, " ")
	if strings.TrimSpace(joined) == "" {
		return "", false
	}
	return joined, true
}

func (r *Router) extractLastUserMessage(req *wire.Request) (string, bool) {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != "user" {
			continue
		}
		return turnMessageText(req.Messages[i].Content)
	}
	return "", false
}

// stripMatchFromTurnStartingMessage removes every match of regex from the
// turn-starting user message's text content, falling back to the last user
// message if the turn has no text-bearing message.
func (r *Router) stripMatchFromTurnStartingMessage(req *wire.Request, regex *regexp.Regexp) {
	start := r.findTurnStartIndex(req)

	for i := start; i < len(req.Messages); i++ {
		msg := &req.Messages[i]
		if msg.Role != "user" {
			continue
		}
		if _, ok := turnMessageText(msg.Content); !ok {
			continue
		}
		stripMatchFromContent(&msg.Content, regex)
		return
	}

	r.stripMatchFromLastUserMessage(req, regex)
}

func (r *Router) stripMatchFromLastUserMessage(req *wire.Request, regex *regexp.Regexp) {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role != "user" {
			continue
		}
		stripMatchFromContent(&req.Messages[i].Content, regex)
		return
	}
}

func stripMatchFromContent(content *wire.MessageContent, regex *regexp.Regexp) {
	if content.IsText() {
		content.Text = regex.ReplaceAllString(content.Text, "")
		return
	}
	for i := range content.Blocks {
		b := &content.Blocks[i]
		if !b.IsText() {
			continue
		}
		b.Known.Text = regex.ReplaceAllString(b.Known.Text, "")
	}
}
