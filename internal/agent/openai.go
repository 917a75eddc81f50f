package agent

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are a clinical and operational intelligence analyst for a hospital system. " +
	"Answer concisely using population-level, de-identified reasoning. " +
	"Never invent patient identifiers."

// OpenAIConfig selects the model backend. A non-empty Endpoint switches to
// Azure OpenAI, where Model is the deployment name.
type OpenAIConfig struct {
	APIKey     string
	Endpoint   string
	Model      string
	APIVersion string
}

// OpenAIDeriver derives insights with a chat completion call
type OpenAIDeriver struct {
	client *openai.Client
	model  string
}

// NewOpenAIDeriver constructs an OpenAI or Azure OpenAI backed deriver
func NewOpenAIDeriver(cfg OpenAIConfig) (*OpenAIDeriver, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	var clientCfg openai.ClientConfig
	if cfg.Endpoint != "" {
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
		clientCfg.AzureModelMapperFunc = func(string) string { return model }
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
	}

	return &OpenAIDeriver{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

// Derive sends query to the chat completion API
func (d *OpenAIDeriver) Derive(ctx context.Context, query string) (string, error) {
	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned from OpenAI")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
