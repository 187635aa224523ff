package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"OpinionsScanner/internal/config"
	"OpinionsScanner/internal/ports"
)

// maxPromptChars keeps long opinions inside the model's context window.
const maxPromptChars = 12000

var jsonListPattern = regexp.MustCompile(`(?s)\[.*?\]`)

// ChatGPTClient implements ports.TextToTags backed by OpenAI-compatible APIs.
type ChatGPTClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	client       *resty.Client
}

var _ ports.TextToTags = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.ChatGPTConfig) *ChatGPTClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChatGPTClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		client:       resty.New().SetTimeout(timeout),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ExtractTags asks for five patent-law topics and decodes the first JSON list
// in the reply.
func (c *ChatGPTClient) ExtractTags(ctx context.Context, text string) ([]string, error) {
	if c == nil {
		return nil, fmt.Errorf("chatgpt client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return nil, fmt.Errorf("chatgpt client misconfigured")
	}

	var out chatResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetBody(chatRequest{
			Model: c.model,
			Messages: []chatMessage{
				{Role: "system", Content: safePrompt(c.systemPrompt)},
				{Role: "user", Content: tagPrompt(text)},
			},
		}).
		SetResult(&out).
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("send prompt: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("chatgpt error %s: %s", resp.Status(), truncate(strings.TrimSpace(resp.String()), 1024))
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("chatgpt reply has no choices")
	}

	return parseTagList(out.Choices[0].Message.Content)
}

func tagPrompt(text string) string {
	return "Read the following court opinion and give exactly 5 concise patent-law topic tags " +
		"(for example \"Obviousness\" or \"Claim Construction\"). " +
		"Answer with a JSON list of strings only.\n\n" + truncate(text, maxPromptChars)
}

// parseTagList decodes the first [...] block of reply and drops blank entries.
func parseTagList(reply string) ([]string, error) {
	block := jsonListPattern.FindString(reply)
	if block == "" {
		return nil, fmt.Errorf("no tag list in reply %q", truncate(reply, 200))
	}

	var raw []string
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return nil, fmt.Errorf("decode tag list: %w", err)
	}

	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags, nil
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are a helpful assistant that labels legal documents."
	}
	return prompt
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
