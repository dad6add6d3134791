package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/metrics"
	"github.com/phrazzld/carouselmaker/internal/platform/logger"
	"github.com/phrazzld/carouselmaker/internal/store"
)

// Refunder atomically fails a generation and refunds its charge.
// refunded is false when the generation was already terminal.
type Refunder interface {
	FailAndRefund(ctx context.Context, generationID, userID uuid.UUID, amount int64, errorMessage string) (refunded bool, err error)
}

// Request is one accepted carousel request. The credit has already been charged.
type Request struct {
	UserID          uuid.UUID
	ChatID          int64
	InputText       string
	Style           string
	StatusMessageID int
	TaskID          uuid.UUID
}

// Dependencies are the collaborators of an Orchestrator.
type Dependencies struct {
	Generations store.CarouselStore
	Slides      store.SlideStore
	Ledger      Refunder
	Copy        CopyProvider
	Images      *ImageRequester
	Renderer    Renderer
	Objects     ObjectStore
	Delivery    Delivery
}

// OrchestratorConfig holds pipeline settings.
type OrchestratorConfig struct {
	// StoragePrefix is the first segment of every object key.
	StoragePrefix string

	// ImageSlides is how many leading slides get a generated image.
	ImageSlides int

	// CTAImages maps a style slug to the image shown on its CTA slide.
	CTAImages map[string][]byte

	// Now defaults to time.Now.
	Now func() time.Time
}

// Orchestrator runs the generation state machine.
type Orchestrator struct {
	generations store.CarouselStore
	slides      store.SlideStore
	ledger      Refunder
	copy        CopyProvider
	images      *ImageRequester
	renderer    Renderer
	objects     ObjectStore
	delivery    Delivery
	config      OrchestratorConfig
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewOrchestrator validates deps and creates an Orchestrator.
func NewOrchestrator(
	deps Dependencies,
	config OrchestratorConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) (*Orchestrator, error) {
	switch {
	case deps.Generations == nil, deps.Slides == nil:
		return nil, fmt.Errorf("%w: stores cannot be nil", ErrInvalidConfig)
	case deps.Ledger == nil:
		return nil, fmt.Errorf("%w: ledger cannot be nil", ErrInvalidConfig)
	case deps.Copy == nil, deps.Images == nil, deps.Renderer == nil:
		return nil, fmt.Errorf("%w: providers cannot be nil", ErrInvalidConfig)
	case deps.Objects == nil, deps.Delivery == nil:
		return nil, fmt.Errorf("%w: object store and delivery cannot be nil", ErrInvalidConfig)
	}
	if config.StoragePrefix == "" {
		return nil, fmt.Errorf("%w: storage prefix cannot be empty", ErrInvalidConfig)
	}
	if config.ImageSlides < 0 {
		return nil, fmt.Errorf("%w: image slides cannot be negative", ErrInvalidConfig)
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		generations: deps.Generations,
		slides:      deps.Slides,
		ledger:      deps.Ledger,
		copy:        deps.Copy,
		images:      deps.Images,
		renderer:    deps.Renderer,
		objects:     deps.Objects,
		delivery:    deps.Delivery,
		config:      config,
		metrics:     m,
		logger:      logger.With(slog.String("component", "orchestrator")),
	}, nil
}

// Run validates req, creates a PENDING generation and drives it to a
// terminal state. Validation errors wrap domain.ErrValidation and leave no
// record behind. Any failure after creation refunds the charge and returns
// an error wrapping ErrGenerationFailed.
func (o *Orchestrator) Run(ctx context.Context, req Request) error {
	if err := domain.ValidateInput(req.InputText, req.Style); err != nil {
		return err
	}

	gen, err := domain.NewCarouselGeneration(req.UserID, req.ChatID, req.InputText, req.Style, req.TaskID)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if err := o.generations.Create(ctx, gen); err != nil {
		return fmt.Errorf("failed to create generation: %w", err)
	}

	return o.execute(ctx, gen, req.StatusMessageID)
}

// Resume drives an existing PENDING generation. No step of a PENDING
// generation has run yet, so resuming cannot repeat side effects.
func (o *Orchestrator) Resume(ctx context.Context, gen *domain.CarouselGeneration, statusMessageID int) error {
	if gen.Status != domain.GenerationStatusPending {
		return fmt.Errorf("%w: cannot resume generation in status %s", domain.ErrInvalidTransition, gen.Status)
	}
	return o.execute(ctx, gen, statusMessageID)
}

// Abandon fails a generation interrupted mid-pipeline, refunds it and tells
// the user. The pipeline is not re-run because partial work, such as a sent
// media group, may not be repeatable.
func (o *Orchestrator) Abandon(ctx context.Context, gen *domain.CarouselGeneration, reason string) error {
	log := o.log(ctx, gen)
	log.Warn("abandoning interrupted generation",
		slog.String("status", string(gen.Status)),
		slog.String("reason", reason))

	refunded, err := o.ledger.FailAndRefund(ctx, gen.ID, gen.UserID, domain.CreditsPerCarousel,
		domain.TruncateErrorMessage(reason))
	if err != nil {
		return fmt.Errorf("failed to abandon generation %s: %w", gen.ID, err)
	}
	if refunded {
		o.metrics.GenerationOutcomes.WithLabelValues("abandoned").Inc()
		o.notifyFailure(ctx, gen)
	}
	return nil
}

// pipeline carries the state produced by earlier steps.
type pipeline struct {
	gen      *domain.CarouselGeneration
	style    domain.Style
	notifier *ProgressNotifier
	statusID int
	contents []SlideContent
	images   [][]byte
	rendered [][]byte
}

type step struct {
	status domain.GenerationStatus
	run    func(ctx context.Context, p *pipeline) Result
}

func (o *Orchestrator) steps() []step {
	return []step{
		{domain.GenerationStatusCopywriting, o.writeCopy},
		{domain.GenerationStatusImageGeneration, o.generateImages},
		{domain.GenerationStatusRendering, o.render},
		{domain.GenerationStatusUploading, o.upload},
		{domain.GenerationStatusSending, o.send},
	}
}

func (o *Orchestrator) execute(ctx context.Context, gen *domain.CarouselGeneration, statusMessageID int) error {
	log := o.log(ctx, gen)

	style, ok := domain.LookupStyle(gen.StyleSlug)
	if !ok {
		return o.fail(ctx, gen, fmt.Errorf("%w: %q", domain.ErrUnknownStyle, gen.StyleSlug))
	}

	p := &pipeline{
		gen:      gen,
		style:    style,
		notifier: NewProgressNotifier(o.delivery, gen.ChatID, statusMessageID, log),
		statusID: statusMessageID,
	}

	for _, s := range o.steps() {
		if err := o.advance(ctx, gen, s.status); err != nil {
			return o.fail(ctx, gen, err)
		}

		start := time.Now()
		r := s.run(ctx, p)
		o.metrics.StepDuration.WithLabelValues(string(s.status)).Observe(time.Since(start).Seconds())

		switch r.Outcome {
		case OutcomeFatal:
			return o.fail(ctx, gen, fmt.Errorf("%s: %w", s.status, r.Err))
		case OutcomeFallback:
			log.Warn("step degraded", slog.String("step", string(s.status)), slog.String("error", r.Err.Error()))
		}
	}

	if err := o.advance(ctx, gen, domain.GenerationStatusCompleted); err != nil {
		return o.fail(ctx, gen, err)
	}

	o.metrics.GenerationOutcomes.WithLabelValues("completed").Inc()
	log.Info("carousel completed", slog.Int("slide_count", len(p.rendered)))
	return nil
}

// advance commits the transition before the step's work starts.
func (o *Orchestrator) advance(ctx context.Context, gen *domain.CarouselGeneration, to domain.GenerationStatus) error {
	if err := o.generations.TransitionStatus(ctx, gen.ID, gen.Status, to); err != nil {
		return fmt.Errorf("failed to move generation from %s to %s: %w", gen.Status, to, err)
	}
	gen.Status = to
	return nil
}

func (o *Orchestrator) writeCopy(ctx context.Context, p *pipeline) Result {
	p.notifier.Update(ctx, StatusWritingCopy)

	count := domain.EstimateSlideCount(p.gen.InputText)
	contents, err := o.copy.GenerateSlides(ctx, p.gen.InputText, p.style, count)
	if err != nil {
		return Fatal(err)
	}
	if len(contents) == 0 {
		return Fatal(ErrEmptyCopy)
	}
	if len(contents) > domain.MaxSlidesPerCarousel {
		contents = contents[:domain.MaxSlidesPerCarousel]
	}

	for i := range contents {
		contents[i].Position = i
		contents[i].Type = domain.SlideTypeFor(i, len(contents))
	}
	p.contents = contents
	p.images = make([][]byte, len(contents))

	if err := o.generations.SetSlideCount(ctx, p.gen.ID, len(contents)); err != nil {
		return Fatal(fmt.Errorf("failed to record slide count: %w", err))
	}
	p.gen.SlideCount = len(contents)
	return Succeeded()
}

func (o *Orchestrator) generateImages(ctx context.Context, p *pipeline) Result {
	n := min(o.config.ImageSlides, len(p.contents))
	if n == 0 {
		return Succeeded()
	}
	p.notifier.Update(ctx, StatusHookImage)

	results := o.images.RequestImages(ctx, p.contents[:n], p.style, func(ctx context.Context, ready, total int) {
		p.notifier.Update(ctx, fmt.Sprintf(StatusImagesReady, ready, total))
	})

	var missing []error
	for _, r := range results {
		if r.Outcome == OutcomeSucceeded {
			p.images[r.Index] = r.Image
			continue
		}
		missing = append(missing, fmt.Errorf("slide %d: %w", r.Index+1, r.Err))
	}
	if len(missing) > 0 {
		return Fallback(errors.Join(missing...))
	}
	return Succeeded()
}

func (o *Orchestrator) render(ctx context.Context, p *pipeline) Result {
	p.notifier.Update(ctx, fmt.Sprintf(StatusRendering, len(p.contents)))

	p.rendered = make([][]byte, 0, len(p.contents))
	for i, content := range p.contents {
		image := p.images[i]
		if image == nil && content.Type == domain.SlideTypeCTA {
			image = o.config.CTAImages[p.style.Slug]
		}

		png, err := o.renderer.Render(content, p.style, image)
		if err != nil {
			return Fatal(fmt.Errorf("failed to render slide %d: %w", i+1, err))
		}
		p.rendered = append(p.rendered, png)
	}
	return Succeeded()
}

func (o *Orchestrator) upload(ctx context.Context, p *pipeline) Result {
	ts := o.config.Now().Unix()
	for i, content := range p.contents {
		key := ObjectKey(o.config.StoragePrefix, p.gen.UserID, p.gen.ID, ts, i)
		stored, err := o.objects.Put(ctx, key, p.rendered[i], "image/png")
		if err != nil {
			return Fatal(fmt.Errorf("failed to upload slide %d: %w", i+1, err))
		}

		slide, err := domain.NewSlide(p.gen.ID, content.Position, content.Heading, content.BodyText, content.Type, stored)
		if err != nil {
			return Fatal(err)
		}
		if err := o.slides.Create(ctx, slide); err != nil {
			return Fatal(fmt.Errorf("failed to record slide %d: %w", i+1, err))
		}
	}
	return Succeeded()
}

func (o *Orchestrator) send(ctx context.Context, p *pipeline) Result {
	p.notifier.Update(ctx, StatusSending)

	if err := o.delivery.SendMediaGroup(ctx, p.gen.ChatID, p.rendered); err != nil {
		return Fatal(fmt.Errorf("failed to send media group: %w", err))
	}

	if p.statusID != 0 {
		if err := o.delivery.DeleteMessage(ctx, p.gen.ChatID, p.statusID); err != nil {
			o.log(ctx, p.gen).Debug("failed to delete status message",
				slog.String("error", err.Error()))
		}
	}
	return Succeeded()
}

// fail records the terminal failure and refund in one transaction, then
// notifies the user. The returned error always wraps cause.
func (o *Orchestrator) fail(ctx context.Context, gen *domain.CarouselGeneration, cause error) error {
	log := o.log(ctx, gen)
	log.Error("carousel generation failed",
		slog.String("status", string(gen.Status)),
		slog.String("error", cause.Error()))

	refunded, err := o.ledger.FailAndRefund(ctx, gen.ID, gen.UserID, domain.CreditsPerCarousel,
		domain.TruncateErrorMessage(cause.Error()))
	if err != nil {
		log.Error("failed to refund failed generation", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w (refund pending: %v)", ErrTransientFailure, cause, err)
	}

	gen.Status = domain.GenerationStatusFailed
	o.metrics.GenerationOutcomes.WithLabelValues("failed").Inc()
	if refunded {
		o.notifyFailure(ctx, gen)
	}
	return fmt.Errorf("%w: %w", ErrGenerationFailed, cause)
}

func (o *Orchestrator) notifyFailure(ctx context.Context, gen *domain.CarouselGeneration) {
	if err := o.delivery.SendMessage(ctx, gen.ChatID, FailureMessage); err != nil {
		o.log(ctx, gen).Warn("failed to notify user of failure", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) log(ctx context.Context, gen *domain.CarouselGeneration) *slog.Logger {
	return logger.FromContextOrDefault(ctx, o.logger).With(
		slog.String("generation_id", gen.ID.String()),
		slog.String("user_id", gen.UserID.String()))
}

// ObjectKey returns the storage key of a rendered slide:
// {prefix}/{user}/{generation}/{unix ts}_slide_{index}.png.
func ObjectKey(prefix string, userID, generationID uuid.UUID, ts int64, index int) string {
	return fmt.Sprintf("%s/%s/%s/%d_slide_%d.png", prefix, userID, generationID, ts, index)
}

// ObjectKeyTime extracts the upload time encoded by ObjectKey.
func ObjectKeyTime(key string) (time.Time, bool) {
	name := path.Base(key)
	tsPart, _, ok := strings.Cut(name, "_slide_")
	if !ok {
		return time.Time{}, false
	}
	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil || ts <= 0 {
		return time.Time{}, false
	}
	return time.Unix(ts, 0).UTC(), true
}
