package gemini

import (
	"context"
	"fmt"

	"github.com/phrazzld/carouselmaker/internal/config"
	"github.com/phrazzld/carouselmaker/internal/generation"
	"google.golang.org/genai"
)

// ContentGenerator is the part of the genai Models service used here.
type ContentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// NewClient creates a Gemini API client. Its Models field is the
// ContentGenerator shared by CopyWriter and ImageGenerator.
func NewClient(ctx context.Context, cfg config.LLMConfig) (*genai.Client, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}
	return client, nil
}
