package engine

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/local-mcps/crawl4ai-mcp/internal/common"
)

const defaultLLMModel = "gpt-4o-mini"

// Page content is truncated to this many characters before being sent
// to the model.
const maxLLMContentChars = 24000

// llmClient performs LLM-backed extraction and filtering against an
// OpenAI-compatible API.
type llmClient struct {
	apiKey  string
	baseURL string
}

func newLLMClient(apiKey, baseURL string) *llmClient {
	return &llmClient{apiKey: apiKey, baseURL: baseURL}
}

func (c *llmClient) api(apiKey string) (*openai.Client, error) {
	key := apiKey
	if key == "" {
		key = c.apiKey
	}
	if key == "" {
		return nil, common.ErrMissingAPIKey
	}
	cfg := openai.DefaultConfig(key)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	return openai.NewClientWithConfig(cfg), nil
}

func clipContent(s string) string {
	if len(s) > maxLLMContentChars {
		return s[:maxLLMContentChars]
	}
	return s
}

// Extract runs an instruction-driven extraction over page content and
// returns the model output, JSON when a schema was given.
func (c *llmClient) Extract(ctx context.Context, content string, ex *Extraction) (string, error) {
	api, err := c.api(ex.APIKey)
	if err != nil {
		return "", err
	}

	model := ex.Model
	if model == "" {
		model = defaultLLMModel
	}

	system := "You extract data from web page content. Follow the instruction exactly and return only the extracted data."
	if ex.Schema != nil {
		schemaJSON, err := json.Marshal(ex.Schema)
		if err != nil {
			return "", fmt.Errorf("invalid extraction schema: %w", err)
		}
		system += " Respond with a JSON object conforming to this schema: " + string(schemaJSON)
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: float32(ex.Temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: ex.Instruction + "\n\nPage content:\n" + clipContent(content),
			},
		},
	}
	if ex.Schema != nil {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("llm extraction: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm extraction: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// FilterContent asks the model to keep only content relevant to the
// filter query and returns the reduced markdown.
func (c *llmClient) FilterContent(ctx context.Context, markdown string, f *ContentFilter) (string, error) {
	api, err := c.api(f.APIKey)
	if err != nil {
		return "", err
	}

	model := f.Model
	if model == "" {
		model = defaultLLMModel
	}

	query := f.Query
	if query == "" {
		query = "relevant content"
	}

	resp, err := api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You filter web page markdown. Keep only the parts relevant to the stated topic, preserving their original markdown formatting. Return the filtered markdown and nothing else.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: "Topic: " + query + "\n\nContent:\n" + clipContent(markdown),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm filter: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm filter: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
