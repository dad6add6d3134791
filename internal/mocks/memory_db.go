package mocks

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/store"
	"github.com/phrazzld/carouselmaker/internal/task"
)

// MemoryDB holds the in-memory tables shared by the store views.
// Transactions are serialized, which models the row lock taken by
// GetForUpdate. Writes made outside a transaction while one is open are
// lost if that transaction rolls back.
type MemoryDB struct {
	txMu sync.Mutex

	mu          sync.Mutex
	users       map[uuid.UUID]domain.User
	credits     []domain.CreditTransaction
	generations map[uuid.UUID]domain.CarouselGeneration
	slides      []domain.Slide
	tasks       map[uuid.UUID]task.Record
	errs        map[string]error
}

// NewMemoryDB creates an empty database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users:       make(map[uuid.UUID]domain.User),
		generations: make(map[uuid.UUID]domain.CarouselGeneration),
		tasks:       make(map[uuid.UUID]task.Record),
		errs:        make(map[string]error),
	}
}

// FailNext makes the next call of op (e.g. "credits.Create") return err.
func (db *MemoryDB) FailNext(op string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.errs[op] = err
}

// takeErr must be called with mu held.
func (db *MemoryDB) takeErr(op string) error {
	err, ok := db.errs[op]
	if ok {
		delete(db.errs, op)
	}
	return err
}

type snapshot struct {
	users       map[uuid.UUID]domain.User
	credits     []domain.CreditTransaction
	generations map[uuid.UUID]domain.CarouselGeneration
	slides      []domain.Slide
	tasks       map[uuid.UUID]task.Record
}

func (db *MemoryDB) snapshot() snapshot {
	db.mu.Lock()
	defer db.mu.Unlock()
	return snapshot{
		users:       maps.Clone(db.users),
		credits:     slices.Clone(db.credits),
		generations: maps.Clone(db.generations),
		slides:      slices.Clone(db.slides),
		tasks:       maps.Clone(db.tasks),
	}
}

func (db *MemoryDB) restore(s snapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users = s.users
	db.credits = s.credits
	db.generations = s.generations
	db.slides = s.slides
	db.tasks = s.tasks
}

// Transactor returns a store.Transactor over the database.
// The *sql.Tx handed to fn is always nil; the store views ignore it.
func (db *MemoryDB) Transactor() store.Transactor {
	return memoryTransactor{db: db}
}

type memoryTransactor struct {
	db *MemoryDB
}

func (t memoryTransactor) WithinTx(ctx context.Context, fn store.TxFn) error {
	t.db.txMu.Lock()
	defer t.db.txMu.Unlock()

	before := t.db.snapshot()
	if err := fn(ctx, nil); err != nil {
		t.db.restore(before)
		return err
	}
	return nil
}

// Users returns the store.UserStore view.
func (db *MemoryDB) Users() store.UserStore { return memoryUsers{db} }

// Credits returns the store.CreditStore view.
func (db *MemoryDB) Credits() store.CreditStore { return memoryCredits{db} }

// Generations returns the store.CarouselStore view.
func (db *MemoryDB) Generations() store.CarouselStore { return memoryGenerations{db} }

// Slides returns the store.SlideStore view.
func (db *MemoryDB) Slides() store.SlideStore { return memorySlides{db} }

// Tasks returns the task.TaskStore view.
func (db *MemoryDB) Tasks() task.TaskStore { return memoryTasks{db} }

// Transactions returns a copy of every credit transaction in insertion order.
func (db *MemoryDB) Transactions() []domain.CreditTransaction {
	db.mu.Lock()
	defer db.mu.Unlock()
	return slices.Clone(db.credits)
}

// SlideRows returns a copy of every slide row.
func (db *MemoryDB) SlideRows() []domain.Slide {
	db.mu.Lock()
	defer db.mu.Unlock()
	return slices.Clone(db.slides)
}

// TaskRecord returns the record for id.
func (db *MemoryDB) TaskRecord(id uuid.UUID) (task.Record, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	r, ok := db.tasks[id]
	return r, ok
}

// PutGeneration stores g as-is, bypassing validation and state rules.
func (db *MemoryDB) PutGeneration(g domain.CarouselGeneration) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.generations[g.ID] = g
}

// users

type memoryUsers struct{ db *MemoryDB }

func (s memoryUsers) Create(_ context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.takeErr("users.Create"); err != nil {
		return err
	}
	for _, existing := range s.db.users {
		if existing.TelegramID == u.TelegramID {
			return store.ErrTelegramIDExists
		}
	}
	s.db.users[u.ID] = *u
	return nil
}

func (s memoryUsers) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.takeErr("users.GetByID"); err != nil {
		return nil, err
	}
	u, ok := s.db.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return &u, nil
}

func (s memoryUsers) GetByTelegramID(_ context.Context, telegramID int64) (*domain.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, u := range s.db.users {
		if u.TelegramID == telegramID {
			return &u, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (s memoryUsers) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.GetByID(ctx, id)
}

func (s memoryUsers) UpdateBalance(_ context.Context, id uuid.UUID, balance int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.takeErr("users.UpdateBalance"); err != nil {
		return err
	}
	u, ok := s.db.users[id]
	if !ok {
		return store.ErrUserNotFound
	}
	if balance < 0 {
		return fmt.Errorf("%w: balance %d", domain.ErrNegativeBalance, balance)
	}
	u.CreditBalance = balance
	u.UpdatedAt = time.Now().UTC()
	s.db.users[id] = u
	return nil
}

func (s memoryUsers) Count(context.Context) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return len(s.db.users), nil
}

func (s memoryUsers) WithTx(*sql.Tx) store.UserStore { return s }

// credits

type memoryCredits struct{ db *MemoryDB }

func (s memoryCredits) Create(_ context.Context, tx *domain.CreditTransaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.takeErr("credits.Create"); err != nil {
		return err
	}
	for _, existing := range s.db.credits {
		if tx.ExternalPaymentID != nil && existing.ExternalPaymentID != nil &&
			*tx.ExternalPaymentID == *existing.ExternalPaymentID {
			return store.ErrPaymentExists
		}
		if tx.Type == domain.TransactionRefund && existing.Type == domain.TransactionRefund &&
			tx.GenerationID != nil && existing.GenerationID != nil &&
			*tx.GenerationID == *existing.GenerationID {
			return store.ErrRefundExists
		}
		if tx.Type == domain.TransactionRefund && existing.Type == domain.TransactionRefund &&
			tx.TaskID != nil && existing.TaskID != nil && *tx.TaskID == *existing.TaskID {
			return store.ErrRefundExists
		}
		if tx.Type == domain.TransactionWelcomeBonus && existing.Type == domain.TransactionWelcomeBonus &&
			tx.UserID == existing.UserID {
			return store.ErrWelcomeExists
		}
	}
	s.db.credits = append(s.db.credits, *tx)
	return nil
}

func (s memoryCredits) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CreditTransaction, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*domain.CreditTransaction
	for i := len(s.db.credits) - 1; i >= 0; i-- {
		if s.db.credits[i].UserID == userID {
			t := s.db.credits[i]
			out = append(out, &t)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s memoryCredits) SumByUser(_ context.Context, userID uuid.UUID) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var sum int64
	for _, t := range s.db.credits {
		if t.UserID == userID {
			sum += t.Amount
		}
	}
	return sum, nil
}

func (s memoryCredits) CountRefunds(_ context.Context, generationID uuid.UUID) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n := 0
	for _, t := range s.db.credits {
		if t.Type == domain.TransactionRefund && t.GenerationID != nil && *t.GenerationID == generationID {
			n++
		}
	}
	return n, nil
}

func (s memoryCredits) WithTx(*sql.Tx) store.CreditStore { return s }

// generations

type memoryGenerations struct{ db *MemoryDB }

func (s memoryGenerations) Create(_ context.Context, g *domain.CarouselGeneration) error {
	if err := g.Validate(); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.takeErr("generations.Create"); err != nil {
		return err
	}
	for _, existing := range s.db.generations {
		if existing.TaskID == g.TaskID {
			return store.ErrTaskIDExists
		}
	}
	s.db.generations[g.ID] = *g
	return nil
}

func (s memoryGenerations) GetByID(_ context.Context, id uuid.UUID) (*domain.CarouselGeneration, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	g, ok := s.db.generations[id]
	if !ok {
		return nil, store.ErrGenerationNotFound
	}
	return &g, nil
}

func (s memoryGenerations) GetByTaskID(_ context.Context, taskID uuid.UUID) (*domain.CarouselGeneration, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.takeErr("generations.GetByTaskID"); err != nil {
		return nil, err
	}
	for _, g := range s.db.generations {
		if g.TaskID == taskID {
			return &g, nil
		}
	}
	return nil, store.ErrGenerationNotFound
}

func (s memoryGenerations) TransitionStatus(_ context.Context, id uuid.UUID, from, to domain.GenerationStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.takeErr("generations.TransitionStatus"); err != nil {
		return err
	}
	g, ok := s.db.generations[id]
	if !ok || g.Status != from {
		return store.ErrStatusConflict
	}
	g.Status = to
	g.UpdatedAt = time.Now().UTC()
	s.db.generations[id] = g
	return nil
}

func (s memoryGenerations) SetSlideCount(_ context.Context, id uuid.UUID, count int) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	g, ok := s.db.generations[id]
	if !ok {
		return store.ErrGenerationNotFound
	}
	g.SlideCount = count
	s.db.generations[id] = g
	return nil
}

func (s memoryGenerations) MarkFailed(_ context.Context, id uuid.UUID, msg string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.takeErr("generations.MarkFailed"); err != nil {
		return false, err
	}
	g, ok := s.db.generations[id]
	if !ok {
		return false, store.ErrGenerationNotFound
	}
	if g.Status.IsTerminal() {
		return false, nil
	}
	g.Status = domain.GenerationStatusFailed
	g.ErrorMessage = domain.TruncateErrorMessage(msg)
	g.UpdatedAt = time.Now().UTC()
	s.db.generations[id] = g
	return true, nil
}

func (s memoryGenerations) CountByStatus(context.Context) (map[domain.GenerationStatus]int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	counts := make(map[domain.GenerationStatus]int)
	for _, g := range s.db.generations {
		counts[g.Status]++
	}
	return counts, nil
}

func (s memoryGenerations) WithTx(*sql.Tx) store.CarouselStore { return s }

// slides

type memorySlides struct{ db *MemoryDB }

func (s memorySlides) Create(_ context.Context, sl *domain.Slide) error {
	if err := sl.Validate(); err != nil {
		return err
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.takeErr("slides.Create"); err != nil {
		return err
	}
	s.db.slides = append(s.db.slides, *sl)
	return nil
}

func (s memorySlides) ListByCarousel(_ context.Context, carouselID uuid.UUID) ([]*domain.Slide, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*domain.Slide
	for _, sl := range s.db.slides {
		if sl.CarouselID == carouselID {
			c := sl
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s memorySlides) ClearStorageKeys(_ context.Context, keys []string) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n := 0
	for i := range s.db.slides {
		if k := s.db.slides[i].StorageKey; k != nil && slices.Contains(keys, *k) {
			s.db.slides[i].StorageKey = nil
			n++
		}
	}
	return n, nil
}

func (s memorySlides) WithTx(*sql.Tx) store.SlideStore { return s }

// tasks

type memoryTasks struct{ db *MemoryDB }

func (s memoryTasks) SaveTask(_ context.Context, env task.Envelope) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.takeErr("tasks.SaveTask"); err != nil {
		return err
	}
	if _, ok := s.db.tasks[env.TaskID]; ok {
		return store.ErrDuplicate
	}
	now := time.Now().UTC()
	s.db.tasks[env.TaskID] = task.Record{
		ID:        env.TaskID,
		Type:      env.Type,
		Payload:   slices.Clone([]byte(env.Payload)),
		Status:    task.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (s memoryTasks) UpdateTaskStatus(_ context.Context, id uuid.UUID, status task.TaskStatus, errorMsg string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r, ok := s.db.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	r.Status = status
	r.ErrorMessage = errorMsg
	if status == task.TaskStatusProcessing {
		r.Attempts++
	}
	r.UpdatedAt = time.Now().UTC()
	s.db.tasks[id] = r
	return nil
}

func (s memoryTasks) GetTask(_ context.Context, id uuid.UUID) (task.Record, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r, ok := s.db.tasks[id]
	if !ok {
		return task.Record{}, store.ErrTaskNotFound
	}
	return r, nil
}

func (s memoryTasks) GetPendingTasks(context.Context) ([]task.Record, error) {
	return s.byStatus(task.TaskStatusPending, 0), nil
}

func (s memoryTasks) GetProcessingTasks(_ context.Context, olderThan time.Duration) ([]task.Record, error) {
	return s.byStatus(task.TaskStatusProcessing, olderThan), nil
}

func (s memoryTasks) byStatus(status task.TaskStatus, olderThan time.Duration) []task.Record {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var out []task.Record
	for _, r := range s.db.tasks {
		if r.Status != status {
			continue
		}
		if olderThan > 0 && !r.UpdatedAt.Before(cutoff) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s memoryTasks) CountByStatus(context.Context) (map[task.TaskStatus]int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	counts := make(map[task.TaskStatus]int)
	for _, r := range s.db.tasks {
		counts[r.Status]++
	}
	return counts, nil
}

func (s memoryTasks) WithTx(*sql.Tx) task.TaskStore { return s }
