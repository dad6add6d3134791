package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/platform/logger"
	"github.com/phrazzld/carouselmaker/internal/store"
	"github.com/phrazzld/carouselmaker/internal/task"
)

// statsCacheKey is where the latest Stats snapshot is cached.
const statsCacheKey = "admin:stats"

// Stats is an operational snapshot.
type Stats struct {
	TotalUsers          int                             `json:"total_users"`
	TotalCarousels      int                             `json:"total_carousels"`
	GenerationsByStatus map[domain.GenerationStatus]int `json:"generations_by_status"`
	TasksByStatus       map[task.TaskStatus]int         `json:"tasks_by_status"`
	GeneratedAt         time.Time                       `json:"generated_at"`
}

// StatsCache holds recent Stats snapshots.
type StatsCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// AdminService backs the operator endpoints and CLI.
type AdminService interface {
	// Stats counts users, generations by status and tasks by status.
	Stats(ctx context.Context) (*Stats, error)

	// Grant credits amount to the user with telegramID.
	Grant(ctx context.Context, telegramID int64, amount int64) (*domain.User, error)
}

// AdminDeps are the collaborators of an AdminService.
type AdminDeps struct {
	Users       store.UserStore
	Generations store.CarouselStore
	Tasks       task.TaskStore
	Ledger      CreditLedger
	// Cache and CacheTTL are optional
	Cache    StatsCache
	CacheTTL time.Duration
}

type adminService struct {
	deps   AdminDeps
	now    func() time.Time
	logger *slog.Logger
}

// NewAdminService creates a new AdminService
func NewAdminService(deps AdminDeps, logger *slog.Logger) AdminService {
	if logger == nil {
		logger = slog.Default()
	}
	return &adminService{
		deps:   deps,
		now:    time.Now,
		logger: logger.With("component", "admin_service"),
	}
}

// Stats implements AdminService. A cache failure falls through to the
// database.
func (s *adminService) Stats(ctx context.Context) (*Stats, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if s.deps.Cache != nil {
		var cached Stats
		found, err := s.deps.Cache.Get(ctx, statsCacheKey, &cached)
		if err != nil {
			log.Warn("failed to read cached stats", "error", err)
		} else if found {
			return &cached, nil
		}
	}

	users, err := s.deps.Users.Count(ctx)
	if err != nil {
		return nil, NewServiceError("admin", "stats", "failed to count users", err)
	}
	generations, err := s.deps.Generations.CountByStatus(ctx)
	if err != nil {
		return nil, NewServiceError("admin", "stats", "failed to count generations", err)
	}
	tasks, err := s.deps.Tasks.CountByStatus(ctx)
	if err != nil {
		return nil, NewServiceError("admin", "stats", "failed to count tasks", err)
	}

	stats := &Stats{
		TotalUsers:          users,
		GenerationsByStatus: generations,
		TasksByStatus:       tasks,
		GeneratedAt:         s.now().UTC(),
	}
	for _, n := range generations {
		stats.TotalCarousels += n
	}

	if s.deps.Cache != nil && s.deps.CacheTTL > 0 {
		if err := s.deps.Cache.Set(ctx, statsCacheKey, stats, s.deps.CacheTTL); err != nil {
			log.Warn("failed to cache stats", "error", err)
		}
	}
	return stats, nil
}

// Grant implements AdminService.
func (s *adminService) Grant(ctx context.Context, telegramID int64, amount int64) (*domain.User, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: grant amount must be positive", domain.ErrValidation)
	}
	user, err := s.deps.Users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, NewServiceError("admin", "grant", "failed to retrieve user", err)
	}
	updated, err := s.deps.Ledger.AdminGrant(ctx, user.ID, amount)
	if err != nil {
		return nil, NewServiceError("admin", "grant", "failed to grant credits", err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("credits granted",
		"user_id", user.ID,
		"telegram_id", telegramID,
		"amount", amount,
		"balance", updated.CreditBalance)
	return updated, nil
}
