package gemini

import (
	"fmt"

	"github.com/phrazzld/carouselmaker/internal/config"
	"github.com/phrazzld/carouselmaker/internal/generation"
)

// validateConfig checks the settings every adapter in this package needs.
func validateConfig(cfg config.LLMConfig) error {
	if cfg.GeminiAPIKey == "" {
		return fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.CopyModel == "" {
		return fmt.Errorf("%w: copy model cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ImageModel == "" {
		return fmt.Errorf("%w: image model cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries cannot be negative", generation.ErrInvalidConfig)
	}
	return nil
}
