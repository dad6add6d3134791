package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/carouselmaker/internal/config"
	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/generation"
	"github.com/phrazzld/carouselmaker/internal/platform/logger"
	"google.golang.org/genai"
)

type copyPromptData struct {
	InputText        string
	SlideCount       int
	StyleName        string
	StyleDescription string
}

// slideSchema is one element of the JSON array the copy model returns.
type slideSchema struct {
	Position int    `json:"position"`
	Heading  string `json:"heading"`
	BodyText string `json:"body_text"`
}

// CopyWriter implements generation.CopyProvider.
type CopyWriter struct {
	models  ContentGenerator
	model   string
	timeout time.Duration
	retry   retryPolicy
	logger  *slog.Logger
}

var _ generation.CopyProvider = (*CopyWriter)(nil)

// NewCopyWriter creates a CopyWriter calling cfg.CopyModel through models.
func NewCopyWriter(models ContentGenerator, cfg config.LLMConfig, logger *slog.Logger) (*CopyWriter, error) {
	if models == nil {
		return nil, fmt.Errorf("%w: content generator cannot be nil", generation.ErrInvalidConfig)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CopyWriter{
		models:  models,
		model:   cfg.CopyModel,
		timeout: cfg.RequestTimeout,
		retry: retryPolicy{
			maxRetries: cfg.MaxRetries,
			baseDelay:  time.Duration(cfg.RetryDelaySeconds) * time.Second,
		},
		logger: logger.With("component", "gemini_copy_writer", "model", cfg.CopyModel),
	}, nil
}

// GenerateSlides asks the model for count slides of copy.
func (w *CopyWriter) GenerateSlides(
	ctx context.Context,
	inputText string,
	style domain.Style,
	count int,
) ([]generation.SlideContent, error) {
	if strings.TrimSpace(inputText) == "" {
		return nil, ErrEmptyInputText
	}
	if count < 1 {
		return nil, ErrInvalidSlideCount
	}
	log := logger.FromContextOrDefault(ctx, w.logger)

	prompt, err := renderPrompt("copy.tmpl", copyPromptData{
		InputText:        inputText,
		SlideCount:       count,
		StyleName:        style.Name,
		StyleDescription: style.Description,
	})
	if err != nil {
		return nil, err
	}

	var slides []slideSchema
	err = w.retry.do(ctx, log, func(ctx context.Context) error {
		if w.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, w.timeout)
			defer cancel()
		}
		resp, err := w.models.GenerateContent(ctx, w.model, genai.Text(prompt), &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
		})
		if err != nil {
			return err
		}
		content, err := firstCandidate(resp)
		if err != nil {
			return err
		}
		slides, err = parseSlides(responseText(content))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate carousel copy: %w", err)
	}

	out := make([]generation.SlideContent, len(slides))
	for i, s := range slides {
		out[i] = generation.SlideContent{
			Position: s.Position,
			Heading:  strings.TrimSpace(s.Heading),
			BodyText: strings.TrimSpace(s.BodyText),
		}
	}
	log.InfoContext(ctx, "carousel copy generated",
		"requested_slides", count,
		"returned_slides", len(out))
	return out, nil
}

// parseSlides decodes the model output, accepting either a bare array or
// an object with a "slides" array.
func parseSlides(text string) ([]slideSchema, error) {
	text = stripCodeFence(text)

	var slides []slideSchema
	if err := json.Unmarshal([]byte(text), &slides); err != nil {
		var wrapped struct {
			Slides []slideSchema `json:"slides"`
		}
		if err2 := json.Unmarshal([]byte(text), &wrapped); err2 != nil {
			return nil, fmt.Errorf("%w: failed to parse JSON response: %v", generation.ErrInvalidResponse, err)
		}
		slides = wrapped.Slides
	}

	if len(slides) == 0 {
		return nil, fmt.Errorf("%w: no slides in response", generation.ErrInvalidResponse)
	}
	for i, s := range slides {
		if strings.TrimSpace(s.Heading) == "" {
			return nil, fmt.Errorf("%w: slide %d missing heading", generation.ErrInvalidResponse, i+1)
		}
	}
	return slides, nil
}
