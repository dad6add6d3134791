package generation_test

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/generation"
	"github.com/phrazzld/carouselmaker/internal/ledger"
	"github.com/phrazzld/carouselmaker/internal/metrics"
	"github.com/phrazzld/carouselmaker/internal/mocks"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	chatID          = int64(1001)
	statusMessageID = 55
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	db       *mocks.MemoryDB
	ledger   *ledger.Ledger
	metrics  *metrics.Metrics
	copy     *mocks.MockCopyProvider
	images   *mocks.MockImageProvider
	renderer *mocks.MockRenderer
	objects  *mocks.MockObjectStore
	delivery *mocks.MockDelivery
	config   generation.OrchestratorConfig
	user     *domain.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := mocks.NewMemoryDB()
	m := metrics.NewUnregistered()
	h := &harness{
		db:       db,
		metrics:  m,
		ledger:   ledger.New(db.Transactor(), db.Users(), db.Credits(), db.Generations(), m, discardLogger()),
		copy:     &mocks.MockCopyProvider{},
		images:   &mocks.MockImageProvider{Image: []byte("hook-image")},
		renderer: &mocks.MockRenderer{},
		objects:  mocks.NewMockObjectStore(),
		delivery: &mocks.MockDelivery{},
		config: generation.OrchestratorConfig{
			StoragePrefix: "carousels",
			ImageSlides:   1,
			Now:           func() time.Time { return fixedNow },
		},
	}

	ctx := context.Background()
	u, err := domain.NewUser(777, "alice", "Alice")
	require.NoError(t, err)
	require.NoError(t, db.Users().Create(ctx, u))
	u, _, err = h.ledger.GrantWelcome(ctx, u.ID)
	require.NoError(t, err)
	ok, err := h.ledger.Charge(ctx, u, domain.CreditsPerCarousel)
	require.NoError(t, err)
	require.True(t, ok)
	h.user = u
	return h
}

func (h *harness) orchestrator(t *testing.T) *generation.Orchestrator {
	t.Helper()
	requester, err := generation.NewImageRequester(h.images, generation.ImageRequesterConfig{
		MaxConcurrency: 2,
		MaxRetries:     2,
		RetryBackoff:   time.Millisecond,
	}, h.metrics, discardLogger())
	require.NoError(t, err)

	o, err := generation.NewOrchestrator(generation.Dependencies{
		Generations: h.db.Generations(),
		Slides:      h.db.Slides(),
		Ledger:      h.ledger,
		Copy:        h.copy,
		Images:      requester,
		Renderer:    h.renderer,
		Objects:     h.objects,
		Delivery:    h.delivery,
	}, h.config, h.metrics, discardLogger())
	require.NoError(t, err)
	return o
}

func (h *harness) request() generation.Request {
	return generation.Request{
		UserID:          h.user.ID,
		ChatID:          chatID,
		InputText:       "Five habits of effective engineers: write things down, ship small, ask early.",
		Style:           domain.StyleTech,
		StatusMessageID: statusMessageID,
		TaskID:          uuid.New(),
	}
}

func (h *harness) generation(t *testing.T, taskID uuid.UUID) *domain.CarouselGeneration {
	t.Helper()
	g, err := h.db.Generations().GetByTaskID(context.Background(), taskID)
	require.NoError(t, err)
	return g
}

func (h *harness) balance(t *testing.T) int64 {
	t.Helper()
	b, err := h.ledger.Balance(context.Background(), h.user.ID)
	require.NoError(t, err)
	return b
}

func TestRunCompletes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	req := h.request()

	err := h.orchestrator(t).Run(context.Background(), req)

	require.NoError(t, err)
	gen := h.generation(t, req.TaskID)
	assert.Equal(t, domain.GenerationStatusCompleted, gen.Status)
	assert.Equal(t, domain.MinSlidesPerCarousel, gen.SlideCount)
	assert.Equal(t, []int{domain.MinSlidesPerCarousel}, h.copy.Calls())

	slides := h.db.SlideRows()
	require.Len(t, slides, 3)
	keyPattern := regexp.MustCompile(`^carousels/` + h.user.ID.String() + `/` + gen.ID.String() + `/\d+_slide_[0-2]\.png$`)
	for _, s := range slides {
		require.NotNil(t, s.StorageKey)
		assert.Regexp(t, keyPattern, *s.StorageKey)
	}
	assert.Len(t, h.objects.Objects(), 3)
	assert.Contains(t, h.objects.Objects(),
		generation.ObjectKey("carousels", h.user.ID, gen.ID, fixedNow.Unix(), 0))

	groups := h.delivery.MediaGroups()
	require.Len(t, groups, 1)
	assert.Equal(t, [][]byte{[]byte("png-0"), []byte("png-1"), []byte("png-2")}, groups[0])

	var texts []string
	for _, e := range h.delivery.Edits() {
		texts = append(texts, e.Text)
	}
	assert.Equal(t, []string{
		generation.StatusWritingCopy,
		generation.StatusHookImage,
		"Generating slide images... (1/1 ready)",
		"Rendering 3 slides...",
		generation.StatusSending,
	}, texts)
	assert.Equal(t, []mocks.SentMessage{{ChatID: chatID, MessageID: statusMessageID}}, h.delivery.Deletes())
	assert.Empty(t, h.delivery.Messages())

	calls := h.renderer.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []byte("hook-image"), calls[0].Image)
	assert.Equal(t, domain.SlideTypeHook, calls[0].Slide.Type)
	assert.Nil(t, calls[1].Image)
	assert.Equal(t, domain.SlideTypeCTA, calls[2].Slide.Type)

	assert.Equal(t, int64(domain.FreeCreditsOnStart-1), h.balance(t))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.GenerationOutcomes.WithLabelValues("completed")))
}

func TestRunImageFailureFallsBackAndCompletes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.images.Image = nil
	h.images.Err = errors.New("model overloaded")
	req := h.request()

	err := h.orchestrator(t).Run(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, domain.GenerationStatusCompleted, h.generation(t, req.TaskID).Status)
	assert.Equal(t, 3, h.images.CallCount(), "first attempt plus two retries")
	assert.Nil(t, h.renderer.Calls()[0].Image)
	assert.Len(t, h.delivery.MediaGroups(), 1)
	n, err := h.db.Credits().CountRefunds(context.Background(), h.generation(t, req.TaskID).ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunRendererFailureRefundsOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.renderer.RenderFn = func(slide generation.SlideContent, _ domain.Style, _ []byte) ([]byte, error) {
		if slide.Position == 2 {
			return nil, errors.New("font missing")
		}
		return []byte("png"), nil
	}
	req := h.request()
	o := h.orchestrator(t)

	err := o.Run(context.Background(), req)

	require.Error(t, err)
	assert.ErrorIs(t, err, generation.ErrGenerationFailed)
	assert.Contains(t, err.Error(), "font missing")

	gen := h.generation(t, req.TaskID)
	assert.Equal(t, domain.GenerationStatusFailed, gen.Status)
	assert.Contains(t, gen.ErrorMessage, "failed to render slide 3")

	ctx := context.Background()
	n, err := h.db.Credits().CountRefunds(ctx, gen.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(domain.FreeCreditsOnStart), h.balance(t))
	require.NoError(t, h.ledger.Reconcile(ctx, h.user.ID))

	assert.Equal(t, []mocks.SentMessage{{ChatID: chatID, Text: generation.FailureMessage}}, h.delivery.Messages())
	assert.Empty(t, h.delivery.MediaGroups())
	assert.Empty(t, h.db.SlideRows())

	// A second failure path for the same generation must not refund again.
	require.NoError(t, o.Abandon(ctx, gen, "retry after crash"))
	n, _ = h.db.Credits().CountRefunds(ctx, gen.ID)
	assert.Equal(t, 1, n)
	assert.Len(t, h.delivery.Messages(), 1)
}

func TestRunFatalSteps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		arrange func(h *harness)
		wantErr error
	}{
		{
			name:    "copy provider error",
			arrange: func(h *harness) { h.copy.Err = generation.ErrContentBlocked },
			wantErr: generation.ErrContentBlocked,
		},
		{
			name:    "empty copy",
			arrange: func(h *harness) { h.copy.Slides = []generation.SlideContent{} },
			wantErr: generation.ErrEmptyCopy,
		},
		{
			name: "upload error",
			arrange: func(h *harness) {
				h.objects.PutFn = func(context.Context, string, []byte, string) (string, error) {
					return "", errors.New("bucket unavailable")
				}
			},
		},
		{
			name:    "delivery error",
			arrange: func(h *harness) { h.delivery.SendMediaGroupErr = errors.New("chat not found") },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			tc.arrange(h)
			req := h.request()

			err := h.orchestrator(t).Run(context.Background(), req)

			require.ErrorIs(t, err, generation.ErrGenerationFailed)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
			assert.Equal(t, domain.GenerationStatusFailed, h.generation(t, req.TaskID).Status)
			assert.Equal(t, int64(domain.FreeCreditsOnStart), h.balance(t))
			assert.Len(t, h.delivery.Messages(), 1)
		})
	}
}

func TestRunTruncatesCopyToMaxSlides(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.copy.Slides = mocks.SampleSlides(domain.MaxSlidesPerCarousel + 2)
	req := h.request()

	require.NoError(t, h.orchestrator(t).Run(context.Background(), req))

	gen := h.generation(t, req.TaskID)
	assert.Equal(t, domain.MaxSlidesPerCarousel, gen.SlideCount)
	calls := h.renderer.Calls()
	require.Len(t, calls, domain.MaxSlidesPerCarousel)
	assert.Equal(t, domain.SlideTypeCTA, calls[len(calls)-1].Slide.Type)
}

func TestRunUsesStyleCTAImage(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.config.CTAImages = map[string][]byte{domain.StyleTech: []byte("cta-image")}

	require.NoError(t, h.orchestrator(t).Run(context.Background(), h.request()))

	calls := h.renderer.Calls()
	assert.Equal(t, []byte("cta-image"), calls[len(calls)-1].Image)
}

func TestRunValidationCreatesNothing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		style string
	}{
		{"empty text", "", domain.StyleTech},
		{"text too long", strings.Repeat("a", domain.MaxInputTextLength+1), domain.StyleTech},
		{"unknown style", "hello", "comic_sans"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			req := h.request()
			req.InputText = tc.text
			req.Style = tc.style

			err := h.orchestrator(t).Run(context.Background(), req)

			assert.ErrorIs(t, err, domain.ErrValidation)
			_, err = h.db.Generations().GetByTaskID(context.Background(), req.TaskID)
			assert.Error(t, err)
			assert.Empty(t, h.copy.Calls())
			assert.Equal(t, int64(domain.FreeCreditsOnStart-1), h.balance(t), "no refund for invalid input")
		})
	}
}

func TestResumeRequiresPending(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	o := h.orchestrator(t)
	req := h.request()

	gen, err := domain.NewCarouselGeneration(req.UserID, req.ChatID, req.InputText, req.Style, req.TaskID)
	require.NoError(t, err)
	gen.Status = domain.GenerationStatusRendering
	h.db.PutGeneration(*gen)

	err = o.Resume(context.Background(), gen, statusMessageID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	gen.Status = domain.GenerationStatusPending
	h.db.PutGeneration(*gen)
	require.NoError(t, o.Resume(context.Background(), gen, statusMessageID))
	assert.Equal(t, domain.GenerationStatusCompleted, h.generation(t, req.TaskID).Status)
}

func TestAbandonRefundsInterruptedGeneration(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	o := h.orchestrator(t)
	req := h.request()
	ctx := context.Background()

	gen, err := domain.NewCarouselGeneration(req.UserID, req.ChatID, req.InputText, req.Style, req.TaskID)
	require.NoError(t, err)
	gen.Status = domain.GenerationStatusUploading
	h.db.PutGeneration(*gen)

	require.NoError(t, o.Abandon(ctx, gen, "worker restarted"))
	require.NoError(t, o.Abandon(ctx, gen, "worker restarted"))

	got := h.generation(t, req.TaskID)
	assert.Equal(t, domain.GenerationStatusFailed, got.Status)
	assert.Equal(t, "worker restarted", got.ErrorMessage)
	n, _ := h.db.Credits().CountRefunds(ctx, gen.ID)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(domain.FreeCreditsOnStart), h.balance(t))
	assert.Len(t, h.delivery.Messages(), 1)
	assert.Empty(t, h.delivery.MediaGroups())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.GenerationOutcomes.WithLabelValues("abandoned")))
}

func TestNewOrchestratorValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := generation.NewOrchestrator(generation.Dependencies{}, h.config, nil, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	requester, err := generation.NewImageRequester(h.images, generation.ImageRequesterConfig{MaxConcurrency: 1}, nil, nil)
	require.NoError(t, err)
	deps := generation.Dependencies{
		Generations: h.db.Generations(), Slides: h.db.Slides(), Ledger: h.ledger,
		Copy: h.copy, Images: requester, Renderer: h.renderer, Objects: h.objects, Delivery: h.delivery,
	}
	_, err = generation.NewOrchestrator(deps, generation.OrchestratorConfig{}, nil, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig, "empty storage prefix")
}

func TestObjectKeyTime(t *testing.T) {
	t.Parallel()

	key := generation.ObjectKey("carousels", uuid.New(), uuid.New(), fixedNow.Unix(), 3)
	got, ok := generation.ObjectKeyTime(key)
	require.True(t, ok)
	assert.Equal(t, fixedNow, got)

	for _, bad := range []string{"", "carousels/readme.txt", "a/b/x_slide_1.png", "a/b/-5_slide_1.png"} {
		_, ok := generation.ObjectKeyTime(bad)
		assert.False(t, ok, bad)
	}
}
