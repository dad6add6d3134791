package gemini

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"time"

	"github.com/phrazzld/carouselmaker/internal/config"
	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/generation"
	"github.com/phrazzld/carouselmaker/internal/platform/logger"
	"google.golang.org/genai"
)

type imagePromptData struct {
	Position         int
	Heading          string
	Hook             bool
	StyleName        string
	StyleDescription string
	Background       string
	Accent           string
	Width, Height    int
}

// ImageGenerator implements generation.ImageProvider.
type ImageGenerator struct {
	models  ContentGenerator
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

var _ generation.ImageProvider = (*ImageGenerator)(nil)

// NewImageGenerator creates an ImageGenerator calling cfg.ImageModel.
func NewImageGenerator(models ContentGenerator, cfg config.LLMConfig, logger *slog.Logger) (*ImageGenerator, error) {
	if models == nil {
		return nil, fmt.Errorf("%w: content generator cannot be nil", generation.ErrInvalidConfig)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageGenerator{
		models:  models,
		model:   cfg.ImageModel,
		timeout: cfg.RequestTimeout,
		logger:  logger.With("component", "gemini_image_generator", "model", cfg.ImageModel),
	}, nil
}

// GenerateSlideImage makes one image request for slide. The returned bytes
// are a decodable PNG or JPEG; anything else is an error.
func (g *ImageGenerator) GenerateSlideImage(
	ctx context.Context,
	slide generation.SlideContent,
	style domain.Style,
) ([]byte, error) {
	log := logger.FromContextOrDefault(ctx, g.logger).With("position", slide.Position)

	prompt, err := renderPrompt("image.tmpl", imagePromptData{
		Position:         slide.Position,
		Heading:          slide.Heading,
		Hook:             slide.Type == domain.SlideTypeHook,
		StyleName:        style.Name,
		StyleDescription: style.Description,
		Background:       style.Background,
		Accent:           style.Accent,
		Width:            domain.SlideWidth,
		Height:           domain.SlideHeight,
	})
	if err != nil {
		return nil, err
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}

	content, err := firstCandidate(resp)
	if err != nil {
		return nil, err
	}
	data, mimeType, ok := responseImage(content)
	if !ok {
		return nil, fmt.Errorf("%w: response carried no image", generation.ErrNoImage)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable %s image: %v", generation.ErrInvalidResponse, mimeType, err)
	}
	log.DebugContext(ctx, "slide image generated",
		"format", format,
		"width", cfg.Width,
		"height", cfg.Height,
		"bytes", len(data))
	return data, nil
}
