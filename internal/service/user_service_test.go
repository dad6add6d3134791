package service_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/carouselmaker/internal/domain"
	"github.com/phrazzld/carouselmaker/internal/ledger"
	"github.com/phrazzld/carouselmaker/internal/mocks"
	"github.com/phrazzld/carouselmaker/internal/service"
	"github.com/phrazzld/carouselmaker/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateRegistersWithWelcomeBonus(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	user, created, err := f.users.GetOrCreate(ctx, 4242, "alice", "Alice Doe")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(domain.FreeCreditsOnStart), user.CreditBalance)

	again, created, err := f.users.GetOrCreate(ctx, 4242, "alice", "Alice Doe")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)
	assert.Equal(t, int64(domain.FreeCreditsOnStart), again.CreditBalance)

	txs := f.db.Transactions()
	require.Len(t, txs, 1, "the bonus is granted once")
	assert.Equal(t, domain.TransactionWelcomeBonus, txs[0].Type)
	assert.Equal(t, int64(domain.FreeCreditsOnStart), f.balance(t, user))
}

func TestGetOrCreateRollsBackFailedRegistration(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	f.db.FailNext("credits.Create", errors.New("connection reset"))
	_, _, err := f.users.GetOrCreate(ctx, 7, "carol", "")
	require.Error(t, err)

	user, created, err := f.users.GetOrCreate(ctx, 7, "carol", "")
	require.NoError(t, err)
	assert.True(t, created, "the failed registration left no user behind")
	assert.Equal(t, int64(domain.FreeCreditsOnStart), user.CreditBalance)
	assert.Len(t, f.db.Transactions(), 1)
}

func TestGetOrCreateGrantsBonusToUserWithoutEntries(t *testing.T) {
	t.Parallel()

	f := newFixture()
	bare := f.registerBroke(t, 8)

	user, created, err := f.users.GetOrCreate(context.Background(), 8, "bob", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, bare.ID, user.ID)
	assert.Equal(t, int64(domain.FreeCreditsOnStart), user.CreditBalance)
	assert.Equal(t, int64(domain.FreeCreditsOnStart), f.balance(t, user))
}

// slowCredits delays history reads the way a remote database would.
type slowCredits struct {
	store.CreditStore
}

func (s slowCredits) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CreditTransaction, error) {
	time.Sleep(5 * time.Millisecond)
	return s.CreditStore.ListByUser(ctx, userID, limit, offset)
}

func (s slowCredits) WithTx(tx *sql.Tx) store.CreditStore {
	return slowCredits{s.CreditStore.WithTx(tx)}
}

func TestGetOrCreateConcurrentCallsGrantBonusOnce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(t *testing.T, f *fixture)
	}{
		{name: "stored user without entries", setup: func(t *testing.T, f *fixture) { f.registerBroke(t, 7000) }},
		{name: "new user", setup: func(*testing.T, *fixture) {}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db := mocks.NewMemoryDB()
			credits := slowCredits{db.Credits()}
			l := ledger.New(db.Transactor(), db.Users(), credits, db.Generations(), nil, discardLogger())
			f := &fixture{db: db, ledger: l, users: service.NewUserService(db.Users(), l, discardLogger())}
			tt.setup(t, f)

			const callers = 4
			var wg sync.WaitGroup
			errs := make(chan error, callers)
			for range callers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _, err := f.users.GetOrCreate(context.Background(), 7000, "dave", "")
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			user, err := db.Users().GetByTelegramID(context.Background(), 7000)
			require.NoError(t, err)
			assert.Equal(t, int64(domain.FreeCreditsOnStart), f.balance(t, user))

			var welcomes int
			for _, tx := range db.Transactions() {
				if tx.Type == domain.TransactionWelcomeBonus {
					welcomes++
				}
			}
			assert.Equal(t, 1, welcomes)
		})
	}
}

func TestGetOrCreateKeepsSpentBalance(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	user := f.register(t, 9)

	for range domain.FreeCreditsOnStart {
		ok, err := f.ledger.Charge(ctx, user, 1)
		require.NoError(t, err)
		require.True(t, ok)
	}

	again, _, err := f.users.GetOrCreate(ctx, 9, "alice", "")
	require.NoError(t, err)
	assert.Zero(t, again.CreditBalance, "an exhausted balance is not topped up again")
}

func TestGetOrCreateRejectsInvalidTelegramID(t *testing.T) {
	t.Parallel()

	f := newFixture()
	_, _, err := f.users.GetOrCreate(context.Background(), 0, "", "")
	require.Error(t, err)

	var svcErr *service.ServiceError
	assert.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "get_or_create", svcErr.Operation)
}

func TestGetByTelegramIDNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture()
	_, err := f.users.GetByTelegramID(context.Background(), 404)
	assert.ErrorIs(t, err, service.ErrUserNotFound)
}
