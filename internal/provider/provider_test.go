package provider

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/quickgpt/quickgpt/internal/model"
)

type stubTextModel struct {
	reply string
	err   error
	calls int
}

func (s *stubTextModel) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls++
	return s.reply, s.err
}

func TestTextGenerator_Generate(t *testing.T) {
	upstream := errors.New("deadline exceeded")

	tests := []struct {
		name      string
		model     *stubTextModel
		wantErr   error
		wantReply string
	}{
		{"success", &stubTextModel{reply: "hello"}, nil, "hello"},
		{"upstream failure", &stubTextModel{err: upstream}, upstream, ""},
		{"blank reply", &stubTextModel{reply: "  \n"}, ErrEmptyOutput, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewTextGenerator(tt.model)
			out, err := g.Generate(context.Background(), "hi")

			if tt.wantErr != nil {
				var perr *ProviderError
				if !errors.As(err, &perr) {
					t.Fatalf("expected *ProviderError, got %T %v", err, err)
				}
				if perr.Stage != StageComplete || perr.Mode != model.ModeText {
					t.Errorf("unexpected error detail: %+v", perr)
				}
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected wrapped %v, got %v", tt.wantErr, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.Content != tt.wantReply || out.IsImage {
				t.Errorf("unexpected output %+v", out)
			}
			if tt.model.calls != 1 {
				t.Errorf("provider must be called exactly once, got %d", tt.model.calls)
			}
		})
	}
}

func TestRegistry_Resolve(t *testing.T) {
	text := NewTextGenerator(MockTextModel{})
	r := NewRegistry(text, nil)

	g, err := r.Resolve(model.ModeText)
	if err != nil {
		t.Fatalf("Resolve(text) failed: %v", err)
	}
	if g.Mode() != model.ModeText {
		t.Errorf("resolved wrong generator: %s", g.Mode())
	}

	if _, err := r.Resolve(model.ModeImage); !errors.Is(err, ErrUnsupportedMode) {
		t.Errorf("expected ErrUnsupportedMode, got %v", err)
	}
}

func TestProviderError_Message(t *testing.T) {
	err := &ProviderError{Mode: model.ModeImage, Stage: StageUpload, Err: errors.New("boom")}
	if !strings.Contains(err.Error(), "upload") || !strings.Contains(err.Error(), "boom") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestMockTextModel(t *testing.T) {
	reply, err := MockTextModel{}.Complete(context.Background(), "tell me a joke")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if !strings.Contains(reply, "tell me a joke") {
		t.Errorf("mock reply should echo the prompt, got %q", reply)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (MockTextModel{}).Complete(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
