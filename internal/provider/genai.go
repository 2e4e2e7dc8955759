package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GenAITextModel completes prompts with the Gemini API.
type GenAITextModel struct {
	client *genai.Client
	model  string
}

var _ TextModel = (*GenAITextModel)(nil)

// NewGenAITextModel creates a Gemini-backed TextModel.
func NewGenAITextModel(ctx context.Context, apiKey, modelName string) (*GenAITextModel, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GenAITextModel{client: client, model: modelName}, nil
}

// Complete implements TextModel.
func (m *GenAITextModel) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := m.client.Models.GenerateContent(
		ctx,
		m.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	var b strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, p := range resp.Candidates[0].Content.Parts {
			if p != nil {
				b.WriteString(p.Text)
			}
		}
	}
	return b.String(), nil
}
