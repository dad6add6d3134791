package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/events"
	"github.com/phrazzld/carouselmaker/internal/platform/logger"
	"github.com/phrazzld/carouselmaker/internal/task"
)

// StatusSender posts the message a generation edits with its progress.
type StatusSender interface {
	SendStatus(ctx context.Context, chatID int64, text string) (int, error)
}

// CarouselRequest is a user's request for a new carousel.
type CarouselRequest struct {
	TelegramID int64
	ChatID     int64
	InputText  string
	Style      string
	// StatusMessageID is the message to edit with progress. When zero and a
	// StatusSender is configured, a new status message is posted.
	StatusMessageID int
}

// Submission describes an accepted carousel request.
type Submission struct {
	TaskID          uuid.UUID `json:"task_id"`
	UserID          uuid.UUID `json:"user_id"`
	Balance         int64     `json:"balance"`
	StatusMessageID int       `json:"status_message_id,omitempty"`
}

// StatusAccepted is the first text of the status message.
const StatusAccepted = "Generating your carousel... This may take a minute."

// CarouselService accepts carousel requests from the front-end.
type CarouselService interface {
	// Request validates the input, charges the user and hands the job to the
	// background pipeline. Validation failures wrap domain.ErrValidation and
	// leave the balance untouched.
	Request(ctx context.Context, req CarouselRequest) (*Submission, error)
}

type carouselService struct {
	users   UserService
	ledger  CreditLedger
	emitter events.EventEmitter
	status  StatusSender
	logger  *slog.Logger
}

// NewCarouselService creates a new CarouselService. status may be nil.
func NewCarouselService(
	users UserService,
	ledger CreditLedger,
	emitter events.EventEmitter,
	status StatusSender,
	logger *slog.Logger,
) (CarouselService, error) {
	if users == nil {
		return nil, &ServiceError{Service: "carousel", Operation: "create_service", Message: "users cannot be nil"}
	}
	if ledger == nil {
		return nil, &ServiceError{Service: "carousel", Operation: "create_service", Message: "ledger cannot be nil"}
	}
	if emitter == nil {
		return nil, &ServiceError{Service: "carousel", Operation: "create_service", Message: "emitter cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &carouselService{
		users:   users,
		ledger:  ledger,
		emitter: emitter,
		status:  status,
		logger:  logger.With("component", "carousel_service"),
	}, nil
}

// Request implements CarouselService.
func (s *carouselService) Request(ctx context.Context, req CarouselRequest) (*Submission, error) {
	if err := domain.ValidateInput(req.InputText, req.Style); err != nil {
		return nil, err
	}
	if req.ChatID == 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrEmptyChatID)
	}

	user, err := s.users.GetByTelegramID(ctx, req.TelegramID)
	if err != nil {
		return nil, err
	}

	taskID := uuid.New()
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		"user_id", user.ID,
		"task_id", taskID,
		"style", req.Style)

	charged, err := s.ledger.Charge(ctx, user, domain.CreditsPerCarousel)
	if err != nil {
		log.Error("failed to charge credits", "error", err)
		return nil, NewServiceError("carousel", "request", "failed to charge credits", err)
	}
	if !charged {
		log.Info("carousel request rejected: insufficient credits", "balance", user.CreditBalance)
		return nil, ErrInsufficientCredits
	}

	statusMessageID := req.StatusMessageID
	if statusMessageID == 0 && s.status != nil {
		statusMessageID, err = s.status.SendStatus(ctx, req.ChatID, StatusAccepted)
		if err != nil {
			// Progress edits are skipped without a status message.
			log.Warn("failed to send status message", "error", err)
			statusMessageID = 0
		}
	}

	payload := task.CarouselPayload{
		UserID:          user.ID,
		ChatID:          req.ChatID,
		InputText:       req.InputText,
		Style:           req.Style,
		StatusMessageID: statusMessageID,
	}

	event, err := events.NewTaskRequestEvent(task.TaskTypeCarouselGeneration, payload, events.WithID(taskID))
	if err == nil {
		err = s.emitter.EmitEvent(ctx, event)
	}
	if err != nil {
		log.Error("failed to hand carousel request to the pipeline", "error", err)
		// No generation exists yet, so the refund is bound to the task.
		if refundErr := s.ledger.RefundTask(context.WithoutCancel(ctx), user.ID, domain.CreditsPerCarousel, taskID); refundErr != nil {
			log.Error("failed to refund unqueued request", "error", refundErr)
		}
		return nil, NewServiceError("carousel", "request", "failed to enqueue generation", err)
	}

	log.Info("carousel request accepted", "balance", user.CreditBalance)
	return &Submission{
		TaskID:          taskID,
		UserID:          user.ID,
		Balance:         user.CreditBalance,
		StatusMessageID: statusMessageID,
	}, nil
}
