package providers

import (
	"context"
	"fmt"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
)

const DefaultClaudeModel = "claude-3-5-haiku-latest"

// ClaudeText generates post text with Anthropic's messages API.
type ClaudeText struct {
	name   string
	model  string
	limit  int
	apiKey string
}

func NewClaudeText(name, apiKey, model string, dailyLimit int) *ClaudeText {
	if model == "" {
		model = DefaultClaudeModel
	}
	return &ClaudeText{name: name, model: model, limit: dailyLimit, apiKey: apiKey}
}

func (p *ClaudeText) Name() string    { return p.name }
func (p *ClaudeText) DailyLimit() int { return p.limit }

// Generate runs the blocking llmkit call on its own goroutine so the
// caller's deadline still applies.
func (p *ClaudeText) Generate(ctx context.Context, prompt string) (string, error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		settings := types.RequestSettings{
			Model:       p.model,
			MaxTokens:   400,
			Temperature: 0.9,
		}
		resp, err := anthropic.PromptWithSettings(systemPrompt, prompt, "", p.apiKey, settings)
		if err != nil {
			done <- result{err: err}
			return
		}
		if len(resp.Content) == 0 {
			done <- result{err: fmt.Errorf("no content in response")}
			return
		}
		done <- result{text: resp.Content[0].Text}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.text, r.err
	}
}
