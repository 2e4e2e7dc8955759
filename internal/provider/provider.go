// Package provider wraps the external generation services behind one
// Generator interface selected by generation mode.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/quickgpt/quickgpt/internal/model"
)

// Failure stages reported in ProviderError.
const (
	StageComplete   = "complete"
	StageSynthesize = "synthesize"
	StageNormalize  = "normalize"
	StageUpload     = "upload"
)

var (
	// ErrEmptyOutput is returned when a provider answers with nothing usable.
	ErrEmptyOutput = errors.New("provider returned empty output")
	// ErrUnsupportedMode is returned by Registry for modes without a generator.
	ErrUnsupportedMode = errors.New("generation mode not available")
)

// ProviderError wraps a failed external call with the stage it failed in.
type ProviderError struct {
	Mode  model.Mode
	Stage string
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s generation failed at %s: %v", e.Mode, e.Stage, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Output is the provider-neutral result of one generation. Content is the
// reply text, or the hosted URL for images.
type Output struct {
	Content string
	IsImage bool
}

// Generator performs one generation call. Implementations never retry.
type Generator interface {
	Mode() model.Mode
	Generate(ctx context.Context, prompt string) (*Output, error)
}

// Registry resolves a Generator per mode.
type Registry struct {
	generators map[model.Mode]Generator
}

// NewRegistry builds a Registry from the given generators. Nil entries are
// skipped so optional providers can be passed unconditionally.
func NewRegistry(gens ...Generator) *Registry {
	r := &Registry{generators: make(map[model.Mode]Generator, len(gens))}
	for _, g := range gens {
		if g != nil {
			r.generators[g.Mode()] = g
		}
	}
	return r
}

// Resolve returns the generator for mode.
func (r *Registry) Resolve(mode model.Mode) (Generator, error) {
	g, ok := r.generators[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMode, mode)
	}
	return g, nil
}
