package router

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elidickinson/ccmux-go/internal/config"
	"github.com/elidickinson/ccmux-go/internal/wire"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Router: config.RouterConfig{
			Default:   "default.model",
			Background: "background.model",
			Think:      "think.model",
			Websearch:  "websearch.model",
		},
	}
}

func simpleRequest(text string) *wire.Request {
	return &wire.Request{
		Model:     "claude-opus-4",
		MaxTokens: 1024,
		Messages: []wire.Message{
			{Role: "user", Content: wire.TextContent(text)},
		},
	}
}

func TestPlanModeDetection(t *testing.T) {
	r := New(testConfig(), zap.NewNop())
	req := simpleRequest("Explain quantum computing")
	req.Thinking = &wire.ThinkingConfig{Type: "enabled"}

	decision := r.Route(req)
	assert.Equal(t, RouteThink, decision.RouteType)
	assert.Equal(t, "think.model", decision.ModelName)
}

func TestBackgroundTaskDetection(t *testing.T) {
	r := New(testConfig(), zap.NewNop())
	req := simpleRequest("Hello")
	req.Model = "claude-3-5-haiku-20241022"

	decision := r.Route(req)
	assert.Equal(t, RouteBackground, decision.RouteType)
	assert.Equal(t, "background.model", decision.ModelName)
}

func TestDefaultRouting(t *testing.T) {
	cfg := testConfig()
	cfg.Router.Background = ""
	r := New(cfg, zap.NewNop())
	req := simpleRequest("Write a function to sort an array")

	decision := r.Route(req)
	assert.Equal(t, RouteDefault, decision.RouteType)
	assert.Equal(t, "default.model", decision.ModelName)
}

func TestThinkHasPriorityOverDefault(t *testing.T) {
	r := New(testConfig(), zap.NewNop())
	req := simpleRequest("Explain complex topic")
	req.Thinking = &wire.ThinkingConfig{Type: "enabled"}

	decision := r.Route(req)
	assert.Equal(t, RouteThink, decision.RouteType)
}

func TestWebSearchToolDetection(t *testing.T) {
	r := New(testConfig(), zap.NewNop())
	req := simpleRequest("Search the web for latest news")
	req.Tools = []wire.Tool{{Type: "web_search_2025_04_01", Name: "web_search"}}

	decision := r.Route(req)
	assert.Equal(t, RouteWebSearch, decision.RouteType)
	assert.Equal(t, "websearch.model", decision.ModelName)
}

func TestWebSearchHasHighestPriority(t *testing.T) {
	r := New(testConfig(), zap.NewNop())
	req := simpleRequest("Search and explain")
	req.Thinking = &wire.ThinkingConfig{Type: "enabled"}
	req.Tools = []wire.Tool{{Type: "web_search"}}

	decision := r.Route(req)
	assert.Equal(t, RouteWebSearch, decision.RouteType)
	assert.Equal(t, "websearch.model", decision.ModelName)
}

func TestAutoMapClaudeModels(t *testing.T) {
	r := New(testConfig(), zap.NewNop())
	req := simpleRequest("Hello")
	req.Model = "claude-3-5-sonnet-20241022"

	decision := r.Route(req)
	assert.Equal(t, RouteDefault, decision.RouteType)
	assert.Equal(t, "default.model", decision.ModelName)
}

func TestAutoMapCustomRegex(t *testing.T) {
	cfg := testConfig()
	cfg.Router.AutoMapRegex = "^(claude-|gpt-)"
	r := New(cfg, zap.NewNop())
	req := simpleRequest("Hello")
	req.Model = "gpt-4"

	decision := r.Route(req)
	assert.Equal(t, RouteDefault, decision.RouteType)
	assert.Equal(t, "default.model", decision.ModelName)
}

func TestNoAutoMapNonMatching(t *testing.T) {
	r := New(testConfig(), zap.NewNop())
	req := simpleRequest("Hello")
	req.Model = "glm-4.6"

	decision := r.Route(req)
	assert.Equal(t, RouteDefault, decision.RouteType)
	assert.Equal(t, "glm-4.6", decision.ModelName)
}

func TestPromptRuleMatching(t *testing.T) {
	cfg := testConfig()
	cfg.Router.PromptRules = []config.PromptRule{
		{Pattern: "(?i)commit.*changes", Model: "fast-model"},
	}
	r := New(cfg, zap.NewNop())
	req := simpleRequest("Please commit these changes")

	decision := r.Route(req)
	assert.Equal(t, RoutePromptRule, decision.RouteType)
	assert.Equal(t, "fast-model", decision.ModelName)
}

func TestPromptRuleStripMatch(t *testing.T) {
	cfg := testConfig()
	cfg.Router.PromptRules = []config.PromptRule{
		{Pattern: `\[fast\]`, Model: "fast-model", StripMatch: true},
	}
	r := New(cfg, zap.NewNop())
	req := simpleRequest("[fast] Write a function to sort an array")

	decision := r.Route(req)
	assert.Equal(t, RoutePromptRule, decision.RouteType)
	assert.Equal(t, "fast-model", decision.ModelName)
	assert.Equal(t, " Write a function to sort an array", req.Messages[0].Content.Text)
}

func TestPromptRuleNoStripMatch(t *testing.T) {
	cfg := testConfig()
	cfg.Router.PromptRules = []config.PromptRule{
		{Pattern: `\[fast\]`, Model: "fast-model", StripMatch: false},
	}
	r := New(cfg, zap.NewNop())
	req := simpleRequest("[fast] Write a function to sort an array")

	decision := r.Route(req)
	assert.Equal(t, RoutePromptRule, decision.RouteType)
	assert.Contains(t, req.Messages[0].Content.Text, "[fast]")
}

func TestPromptRuleDynamicModelNumeric(t *testing.T) {
	cfg := testConfig()
	cfg.Router.PromptRules = []config.PromptRule{
		{Pattern: `(?i)CCM-MODEL:([a-zA-Z0-9._-]+)`, Model: "$1", StripMatch: true},
	}
	r := New(cfg, zap.NewNop())
	req := simpleRequest("CCM-MODEL:deepseek-v3 Write a function")

	decision := r.Route(req)
	assert.Equal(t, RoutePromptRule, decision.RouteType)
	assert.Equal(t, "deepseek-v3", decision.ModelName)
	assert.NotContains(t, req.Messages[0].Content.Text, "CCM-MODEL")
	assert.Contains(t, req.Messages[0].Content.Text, "Write a function")
}

func TestPromptRuleDynamicModelNamed(t *testing.T) {
	cfg := testConfig()
	cfg.Router.PromptRules = []config.PromptRule{
		{Pattern: `(?i)USE-MODEL:(?P<model>[a-zA-Z0-9._-]+)`, Model: "$model", StripMatch: true},
	}
	r := New(cfg, zap.NewNop())
	req := simpleRequest("USE-MODEL:gpt-4o please help")

	decision := r.Route(req)
	assert.Equal(t, RoutePromptRule, decision.RouteType)
	assert.Equal(t, "gpt-4o", decision.ModelName)
}

func TestPromptRuleDynamicModelWithPrefix(t *testing.T) {
	cfg := testConfig()
	cfg.Router.PromptRules = []config.PromptRule{
		{Pattern: `@(\w+)-mode`, Model: "provider-$1", StripMatch: false},
	}
	r := New(cfg, zap.NewNop())
	req := simpleRequest("@fast-mode explain this")

	decision := r.Route(req)
	assert.Equal(t, RoutePromptRule, decision.RouteType)
	assert.Equal(t, "provider-fast", decision.ModelName)
}

func TestPromptRuleStaticModelUnchanged(t *testing.T) {
	cfg := testConfig()
	cfg.Router.PromptRules = []config.PromptRule{
		{Pattern: `\[static\]`, Model: "static-model", StripMatch: true},
	}
	r := New(cfg, zap.NewNop())
	req := simpleRequest("[static] do something")

	decision := r.Route(req)
	assert.Equal(t, RoutePromptRule, decision.RouteType)
	assert.Equal(t, "static-model", decision.ModelName)
}

func TestContainsCaptureReference(t *testing.T) {
	assert.True(t, containsCaptureReference("$1"))
	assert.True(t, containsCaptureReference("$model"))
	assert.True(t, containsCaptureReference("${1}"))
	assert.True(t, containsCaptureReference("${name}"))
	assert.True(t, containsCaptureReference("prefix-$1-suffix"))
	assert.False(t, containsCaptureReference("static-model"))
	assert.False(t, containsCaptureReference("no-refs-here"))
}

func TestPromptRulePersistsThroughToolCalls(t *testing.T) {
	cfg := testConfig()
	cfg.Router.PromptRules = []config.PromptRule{
		{Pattern: "(?i)OPUS", Model: "opus-model"},
	}
	r := New(cfg, zap.NewNop())

	req := &wire.Request{
		Model: "claude-opus-4",
		Messages: []wire.Message{
			{Role: "user", Content: wire.TextContent("OPUS write me a test suite")},
			{Role: "assistant", Content: wire.BlockContent([]wire.ContentBlock{
				wire.ToolUseBlock("tool_1", "Read", json.RawMessage(`{"file_path":"/src/main.rs"}`)),
			})},
			{Role: "user", Content: wire.BlockContent([]wire.ContentBlock{
				wire.ToolResultBlockOf("tool_1", wire.ToolResultText("fn main() {}")),
			})},
		},
	}

	decision := r.Route(req)
	assert.Equal(t, RoutePromptRule, decision.RouteType)
	assert.Equal(t, "opus-model", decision.ModelName)
}

func TestPromptRuleResetsAfterTurnEnds(t *testing.T) {
	cfg := testConfig()
	cfg.Router.PromptRules = []config.PromptRule{
		{Pattern: "(?i)OPUS", Model: "opus-model"},
	}
	r := New(cfg, zap.NewNop())

	req := &wire.Request{
		Model: "claude-opus-4",
		Messages: []wire.Message{
			{Role: "user", Content: wire.TextContent("OPUS write me tests")},
			{Role: "assistant", Content: wire.TextContent("Here are the tests...")},
			{Role: "user", Content: wire.TextContent("Now add documentation")},
		},
	}

	decision := r.Route(req)
	assert.Equal(t, RouteDefault, decision.RouteType)
	assert.Equal(t, "default.model", decision.ModelName)
}

func TestPromptRuleStripMatchInMultiTurn(t *testing.T) {
	cfg := testConfig()
	cfg.Router.PromptRules = []config.PromptRule{
		{Pattern: `\[OPUS\]`, Model: "opus-model", StripMatch: true},
	}
	r := New(cfg, zap.NewNop())

	req := &wire.Request{
		Model: "claude-opus-4",
		Messages: []wire.Message{
			{Role: "user", Content: wire.TextContent("[OPUS] write me tests")},
			{Role: "assistant", Content: wire.BlockContent([]wire.ContentBlock{
				wire.ToolUseBlock("tool_1", "Read", json.RawMessage(`{}`)),
			})},
			{Role: "user", Content: wire.BlockContent([]wire.ContentBlock{
				wire.ToolResultBlockOf("tool_1", wire.ToolResultText("content")),
			})},
		},
	}

	decision := r.Route(req)
	assert.Equal(t, RoutePromptRule, decision.RouteType)
	assert.Equal(t, "opus-model", decision.ModelName)
	assert.NotContains(t, req.Messages[0].Content.Text, "[OPUS]")
	assert.Contains(t, req.Messages[0].Content.Text, "write me tests")
}

func TestSubagentModelTagExtraction(t *testing.T) {
	r := New(testConfig(), zap.NewNop())
	req := simpleRequest("Do the subtask")
	req.System = &wire.SystemPrompt{}
	sys := wire.SystemPrompt{Blocks: []wire.SystemBlock{
		{Type: "text", Text: "You are a helpful assistant."},
		{Type: "text", Text: "<CCM-SUBAGENT-MODEL>fast-model</CCM-SUBAGENT-MODEL>extra context"},
	}}
	req.System = &sys

	decision := r.Route(req)
	require.Equal(t, RouteDefault, decision.RouteType)
	assert.Equal(t, "fast-model", decision.ModelName)
	assert.NotContains(t, req.System.Blocks[1].Text, "CCM-SUBAGENT-MODEL")
	assert.Contains(t, req.System.Blocks[1].Text, "extra context")
}

func TestSubagentModelResolvesConfiguredModelCaseInsensitive(t *testing.T) {
	cfg := testConfig()
	cfg.Models = []config.ModelConfig{{Name: "Fast-Model"}}
	r := New(cfg, zap.NewNop())
	req := simpleRequest("Do the subtask")
	req.System = &wire.SystemPrompt{Blocks: []wire.SystemBlock{
		{Type: "text", Text: "base"},
		{Type: "text", Text: "<CCM-SUBAGENT-MODEL>fast-model</CCM-SUBAGENT-MODEL>"},
	}}

	decision := r.Route(req)
	assert.Equal(t, "Fast-Model", decision.ModelName)
}
