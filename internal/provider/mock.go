package provider

import (
	"context"
	"fmt"
	"strings"
)

// MockTextModel is a deterministic TextModel for local development.
type MockTextModel struct{}

var _ TextModel = MockTextModel{}

// Complete implements TextModel.
func (MockTextModel) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	prompt = strings.TrimSpace(prompt)
	if r := []rune(prompt); len(r) > 80 {
		prompt = string(r[:80]) + "..."
	}
	return fmt.Sprintf("This is a mock reply to: %q", prompt), nil
}
