package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/events"
	"github.com/phrazzld/carouselmaker/internal/ledger"
	"github.com/phrazzld/carouselmaker/internal/mocks"
	"github.com/phrazzld/carouselmaker/internal/service"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockEventEmitter mocks the events.EventEmitter interface
type MockEventEmitter struct {
	mock.Mock
}

func (m *MockEventEmitter) EmitEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockStatusSender mocks the service.StatusSender interface
type MockStatusSender struct {
	mock.Mock
}

func (m *MockStatusSender) SendStatus(ctx context.Context, chatID int64, text string) (int, error) {
	args := m.Called(ctx, chatID, text)
	return args.Int(0), args.Error(1)
}

type fixture struct {
	db     *mocks.MemoryDB
	ledger *ledger.Ledger
	users  service.UserService
}

func newFixture() *fixture {
	db := mocks.NewMemoryDB()
	l := ledger.New(db.Transactor(), db.Users(), db.Credits(), db.Generations(), nil, discardLogger())
	return &fixture{
		db:     db,
		ledger: l,
		users:  service.NewUserService(db.Users(), l, discardLogger()),
	}
}

// register creates a user through the service so it holds the welcome bonus.
func (f *fixture) register(t *testing.T, telegramID int64) *domain.User {
	t.Helper()
	u, created, err := f.users.GetOrCreate(context.Background(), telegramID, "alice", "Alice Doe")
	require.NoError(t, err)
	require.True(t, created)
	return u
}

// registerBroke creates a user without any credits.
func (f *fixture) registerBroke(t *testing.T, telegramID int64) *domain.User {
	t.Helper()
	u, err := domain.NewUser(telegramID, "bob", "Bob Roe")
	require.NoError(t, err)
	require.NoError(t, f.db.Users().Create(context.Background(), u))
	return u
}

func (f *fixture) balance(t *testing.T, u *domain.User) int64 {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), u.ID)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Reconcile(context.Background(), u.ID))
	return b
}
