package gemini_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/carouselmaker/internal/config"
	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/generation"
	"github.com/phrazzld/carouselmaker/internal/platform/gemini"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// fakeModels returns scripted responses in order, repeating the last one.
type fakeModels struct {
	mu        sync.Mutex
	responses []*genai.GenerateContentResponse
	errs      []error
	prompts   []string
	configs   []*genai.GenerateContentConfig
	models    []string
}

func (f *fakeModels) GenerateContent(
	_ context.Context,
	model string,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.prompts)
	var prompt string
	for _, c := range contents {
		for _, p := range c.Parts {
			prompt += p.Text
		}
	}
	f.prompts = append(f.prompts, prompt)
	f.configs = append(f.configs, cfg)
	f.models = append(f.models, model)

	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if len(f.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	return f.responses[min(i, len(f.responses)-1)], nil
}

func (f *fakeModels) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func imageResponse(data []byte) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "here is your image"},
				{InlineData: &genai.Blob{MIMEType: "image/png", Data: data}},
			}},
		}},
	}
}

func testConfig() config.LLMConfig {
	return config.LLMConfig{
		GeminiAPIKey:      "test-key",
		CopyModel:         "copy-model",
		ImageModel:        "image-model",
		RequestTimeout:    time.Second,
		MaxRetries:        2,
		RetryDelaySeconds: 0,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func techStyle(t *testing.T) domain.Style {
	t.Helper()
	s, ok := domain.LookupStyle(domain.StyleTech)
	require.True(t, ok)
	return s
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 5))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestConstructorsValidateConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.LLMConfig)
	}{
		{"missing key", func(c *config.LLMConfig) { c.GeminiAPIKey = "" }},
		{"missing copy model", func(c *config.LLMConfig) { c.CopyModel = "" }},
		{"missing image model", func(c *config.LLMConfig) { c.ImageModel = "" }},
		{"negative retries", func(c *config.LLMConfig) { c.MaxRetries = -1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)

			_, err := gemini.NewCopyWriter(&fakeModels{}, cfg, nil)
			assert.ErrorIs(t, err, generation.ErrInvalidConfig)
			_, err = gemini.NewImageGenerator(&fakeModels{}, cfg, nil)
			assert.ErrorIs(t, err, generation.ErrInvalidConfig)
		})
	}

	_, err := gemini.NewCopyWriter(nil, testConfig(), nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}

func TestCopyWriterGeneratesSlides(t *testing.T) {
	t.Parallel()

	models := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse(
		"```json\n" + `[
			{"position": 1, "heading": "Stop guessing", "body_text": "Measure first."},
			{"position": 2, "heading": " Ship small ", "body_text": " Tiny diffs win. "},
			{"position": 3, "heading": "Follow for more", "body_text": "Daily tips."}
		]` + "\n```")}}

	w, err := gemini.NewCopyWriter(models, testConfig(), discardLogger())
	require.NoError(t, err)

	slides, err := w.GenerateSlides(context.Background(), "How to debug production", techStyle(t), 3)
	require.NoError(t, err)
	require.Len(t, slides, 3)
	assert.Equal(t, "Ship small", slides[1].Heading)
	assert.Equal(t, "Tiny diffs win.", slides[1].BodyText)
	assert.Equal(t, 3, slides[2].Position)

	require.Equal(t, 1, models.calls())
	assert.Equal(t, "copy-model", models.models[0])
	assert.Equal(t, "application/json", models.configs[0].ResponseMIMEType)
	assert.Contains(t, models.prompts[0], "exactly 3 slides")
	assert.Contains(t, models.prompts[0], "How to debug production")
	assert.Contains(t, models.prompts[0], "Tech")
}

func TestCopyWriterAcceptsWrappedArray(t *testing.T) {
	t.Parallel()

	models := &fakeModels{responses: []*genai.GenerateContentResponse{
		textResponse(`{"slides":[{"position":1,"heading":"Hook","body_text":"Body"}]}`),
	}}
	w, err := gemini.NewCopyWriter(models, testConfig(), discardLogger())
	require.NoError(t, err)

	slides, err := w.GenerateSlides(context.Background(), "text", techStyle(t), 3)
	require.NoError(t, err)
	assert.Len(t, slides, 1)
}

func TestCopyWriterRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	models := &fakeModels{
		errs:      []error{errors.New("503 unavailable"), errors.New("503 unavailable")},
		responses: []*genai.GenerateContentResponse{textResponse(`[{"position":1,"heading":"H","body_text":"B"}]`)},
	}
	w, err := gemini.NewCopyWriter(models, testConfig(), discardLogger())
	require.NoError(t, err)

	slides, err := w.GenerateSlides(context.Background(), "text", techStyle(t), 3)
	require.NoError(t, err)
	assert.Len(t, slides, 1)
	assert.Equal(t, 3, models.calls())
}

func TestCopyWriterGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	unavailable := errors.New("503 unavailable")
	models := &fakeModels{errs: []error{unavailable, unavailable, unavailable, unavailable}}
	w, err := gemini.NewCopyWriter(models, testConfig(), discardLogger())
	require.NoError(t, err)

	_, err = w.GenerateSlides(context.Background(), "text", techStyle(t), 3)
	assert.ErrorIs(t, err, generation.ErrTransientFailure)
	assert.Equal(t, 3, models.calls())
}

func TestCopyWriterDoesNotRetryPermanentErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		resp    *genai.GenerateContentResponse
		wantErr error
	}{
		{"malformed json", textResponse(`not json`), generation.ErrInvalidResponse},
		{"empty array", textResponse(`[]`), generation.ErrInvalidResponse},
		{"missing heading", textResponse(`[{"position":1,"body_text":"B"}]`), generation.ErrInvalidResponse},
		{"no candidates", &genai.GenerateContentResponse{}, generation.ErrInvalidResponse},
		{"safety", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonSafety,
			Content:      &genai.Content{Parts: []*genai.Part{{Text: "[]"}}},
		}}}, generation.ErrContentBlocked},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			models := &fakeModels{responses: []*genai.GenerateContentResponse{tc.resp}}
			w, err := gemini.NewCopyWriter(models, testConfig(), discardLogger())
			require.NoError(t, err)

			_, err = w.GenerateSlides(context.Background(), "text", techStyle(t), 3)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, 1, models.calls())
		})
	}
}

func TestCopyWriterRejectsBadInput(t *testing.T) {
	t.Parallel()

	models := &fakeModels{}
	w, err := gemini.NewCopyWriter(models, testConfig(), discardLogger())
	require.NoError(t, err)

	_, err = w.GenerateSlides(context.Background(), "  ", techStyle(t), 3)
	assert.ErrorIs(t, err, gemini.ErrEmptyInputText)
	_, err = w.GenerateSlides(context.Background(), "text", techStyle(t), 0)
	assert.ErrorIs(t, err, gemini.ErrInvalidSlideCount)
	assert.Zero(t, models.calls())
}

func TestImageGeneratorReturnsInlineImage(t *testing.T) {
	t.Parallel()

	data := tinyPNG(t)
	models := &fakeModels{responses: []*genai.GenerateContentResponse{imageResponse(data)}}
	g, err := gemini.NewImageGenerator(models, testConfig(), discardLogger())
	require.NoError(t, err)

	slide := generation.SlideContent{Position: 1, Heading: "Stop guessing", Type: domain.SlideTypeHook}
	got, err := g.GenerateSlideImage(context.Background(), slide, techStyle(t))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	assert.Equal(t, "image-model", models.models[0])
	assert.Equal(t, []string{"IMAGE", "TEXT"}, models.configs[0].ResponseModalities)
	assert.Contains(t, models.prompts[0], "Stop guessing")
	assert.Contains(t, models.prompts[0], "1080x1350")
	assert.Contains(t, models.prompts[0], "opening slide")
}

func TestImageGeneratorFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		models  *fakeModels
		wantErr error
	}{
		{
			name:    "api error",
			models:  &fakeModels{errs: []error{errors.New("quota")}},
			wantErr: generation.ErrTransientFailure,
		},
		{
			name:    "text only",
			models:  &fakeModels{responses: []*genai.GenerateContentResponse{textResponse("sorry")}},
			wantErr: generation.ErrNoImage,
		},
		{
			name:    "undecodable bytes",
			models:  &fakeModels{responses: []*genai.GenerateContentResponse{imageResponse([]byte("garbage"))}},
			wantErr: generation.ErrInvalidResponse,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			g, err := gemini.NewImageGenerator(tc.models, testConfig(), discardLogger())
			require.NoError(t, err)

			img, err := g.GenerateSlideImage(context.Background(), generation.SlideContent{Position: 2}, techStyle(t))
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Nil(t, img)
			assert.Equal(t, 1, tc.models.calls(), "image generator never retries on its own")
		})
	}
}
