package provider

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // decode jpeg synthesizer output
	"image/png"
	"time"

	"github.com/nfnt/resize"

	"github.com/quickgpt/quickgpt/internal/model"
)

// Image bounds for hosted images.
const (
	MaxImageWidth  = 800
	MaxImageHeight = 800
)

// ImageSynthesizer turns a prompt into raw image bytes.
type ImageSynthesizer interface {
	Synthesize(ctx context.Context, prompt string) ([]byte, error)
}

// AssetHost stores image bytes and returns a durable public URL.
type AssetHost interface {
	Upload(ctx context.Context, fileName string, data []byte) (string, error)
}

// ImageGenerator runs synthesize, normalize and upload in sequence.
// Any failing step aborts the whole generation.
type ImageGenerator struct {
	synth ImageSynthesizer
	host  AssetHost
	now   func() time.Time
}

var _ Generator = (*ImageGenerator)(nil)

// NewImageGenerator creates an ImageGenerator.
func NewImageGenerator(synth ImageSynthesizer, host AssetHost) *ImageGenerator {
	return &ImageGenerator{synth: synth, host: host, now: time.Now}
}

// Mode implements Generator.
func (g *ImageGenerator) Mode() model.Mode {
	return model.ModeImage
}

// Generate implements Generator.
func (g *ImageGenerator) Generate(ctx context.Context, prompt string) (*Output, error) {
	raw, err := g.synth.Synthesize(ctx, prompt)
	if err != nil {
		return nil, &ProviderError{Mode: model.ModeImage, Stage: StageSynthesize, Err: err}
	}

	normalized, err := NormalizeImage(raw)
	if err != nil {
		return nil, &ProviderError{Mode: model.ModeImage, Stage: StageNormalize, Err: err}
	}

	fileName := fmt.Sprintf("%d.png", g.now().UnixMilli())
	url, err := g.host.Upload(ctx, fileName, normalized)
	if err != nil {
		return nil, &ProviderError{Mode: model.ModeImage, Stage: StageUpload, Err: err}
	}
	if url == "" {
		return nil, &ProviderError{Mode: model.ModeImage, Stage: StageUpload, Err: ErrEmptyOutput}
	}

	return &Output{Content: url, IsImage: true}, nil
}

// NormalizeImage decodes raw, fits it into MaxImageWidth x MaxImageHeight
// keeping the aspect ratio, and re-encodes it as PNG.
func NormalizeImage(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyOutput
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	// Thumbnail leaves images already within bounds untouched.
	fitted := resize.Thumbnail(MaxImageWidth, MaxImageHeight, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := png.Encode(&buf, fitted); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
