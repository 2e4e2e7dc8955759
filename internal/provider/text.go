package provider

import (
	"context"
	"strings"

	"github.com/quickgpt/quickgpt/internal/model"
)

// TextModel is a single-turn completion backend.
type TextModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// TextGenerator answers prompts with a TextModel.
type TextGenerator struct {
	model TextModel
}

var _ Generator = (*TextGenerator)(nil)

// NewTextGenerator creates a TextGenerator.
func NewTextGenerator(m TextModel) *TextGenerator {
	return &TextGenerator{model: m}
}

// Mode implements Generator.
func (g *TextGenerator) Mode() model.Mode {
	return model.ModeText
}

// Generate implements Generator.
func (g *TextGenerator) Generate(ctx context.Context, prompt string) (*Output, error) {
	reply, err := g.model.Complete(ctx, prompt)
	if err != nil {
		return nil, &ProviderError{Mode: model.ModeText, Stage: StageComplete, Err: err}
	}
	if strings.TrimSpace(reply) == "" {
		return nil, &ProviderError{Mode: model.ModeText, Stage: StageComplete, Err: ErrEmptyOutput}
	}
	return &Output{Content: reply}, nil
}
