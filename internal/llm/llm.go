package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-haiku-4-5-20251001"

// Client wraps the Anthropic API for drafting issue descriptions.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = DefaultModel
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

type draft struct {
	Description string `json:"description"`
}

// buildDraftPrompt constructs the system and user prompts for drafting a
// description from an issue title.
func buildDraftPrompt(title string) (system string, user string) {
	system = `You help people file issues on a team board. Given an issue title, write a short description a teammate could act on. Return ONLY a JSON object with one field:
- "description": one to three plain sentences describing the problem or request, what is expected, and where to look first if the title hints at it

Rules:
- Do not invent reproduction steps, versions, or people
- Do not repeat the title verbatim as the description
- Return valid JSON only, no markdown fencing or explanation`

	user = "Issue title: " + strings.TrimSpace(title)
	return
}

// DraftDescription asks the model for a short description of an issue titled title.
func (c *Client) DraftDescription(ctx context.Context, title string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", fmt.Errorf("title is required")
	}
	systemPrompt, userPrompt := buildDraftPrompt(title)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	return parseDraft(text)
}

func parseDraft(text string) (string, error) {
	text = stripFences(text)
	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}

	var d draft
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return "", fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	d.Description = strings.TrimSpace(d.Description)
	if d.Description == "" {
		return "", fmt.Errorf("LLM returned an empty description")
	}
	return d.Description, nil
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		} else {
			text = ""
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}
