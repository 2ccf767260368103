package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newTestPostgresRepository connects to TEST_DB_HOST when set, or starts a
// postgres container when TEST_USE_CONTAINERS=1. Otherwise the test is
// skipped.
func newTestPostgresRepository(t *testing.T) *PostgresRepository {
	t.Helper()
	ctx := context.Background()

	var dsn string
	if host := os.Getenv("TEST_DB_HOST"); host != "" {
		port := envOrDefault("TEST_DB_PORT", "5432")
		user := envOrDefault("TEST_DB_USER", "postgres")
		password := envOrDefault("TEST_DB_PASSWORD", "postgres")
		name := envOrDefault("TEST_DB_NAME", "test_db")
		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			host, port, user, password, name)
	} else if os.Getenv("TEST_USE_CONTAINERS") == "1" {
		container, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("test_db"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)
		t.Cleanup(func() {
			if err := container.Terminate(context.Background()); err != nil {
				t.Logf("failed to terminate postgres container: %v", err)
			}
		})

		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	} else {
		t.Skip("set TEST_DB_HOST or TEST_USE_CONTAINERS=1 to run postgres tests")
	}

	db, err := OpenPostgres(dsn, PoolConfig{})
	require.NoError(t, err)

	repo := NewPostgresRepository(db)
	require.NoError(t, repo.Migrate(ctx))

	require.NoError(t, db.Exec("TRUNCATE credit_balances, credit_records, listings, payment_accounts").Error)
	require.NoError(t, db.Exec("UPDATE ledger_sequences SET next_value = 1").Error)

	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestPostgresRepositoryAtomic(t *testing.T) {
	repo := newTestPostgresRepository(t)
	ctx := context.Background()

	err := repo.Atomic(ctx, func(tx Store) error {
		id, err := tx.NextSequence(ctx, SequenceCreditID)
		if err != nil {
			return err
		}
		if err := tx.CreateCredit(ctx, &CreditRecord{
			CreditID:             id,
			Issuer:               "owner",
			VintageYear:          2023,
			VerificationStandard: "Gold Standard",
			ProjectType:          "Reforestation",
			Amount:               100,
			CreatedAt:            time.Now().UTC(),
		}); err != nil {
			return err
		}
		return Credit(ctx, tx, "owner", 100)
	})
	require.NoError(t, err)

	balance, err := repo.GetBalance(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	minted, err := repo.TotalMinted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), minted)

	next, err := repo.PeekSequence(ctx, SequenceCreditID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next)
}

func TestPostgresRepositoryRollback(t *testing.T) {
	repo := newTestPostgresRepository(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.Atomic(ctx, func(tx Store) error {
		if _, err := tx.NextSequence(ctx, SequenceListingID); err != nil {
			return err
		}
		if err := Credit(ctx, tx, "alice", 10); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	balance, err := repo.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	next, err := repo.PeekSequence(ctx, SequenceListingID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next)
}

func TestPostgresRepositoryConcurrentDebits(t *testing.T) {
	repo := newTestPostgresRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Atomic(ctx, func(tx Store) error {
		return Credit(ctx, tx, "alice", 10)
	}))

	var wg sync.WaitGroup
	results := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- repo.Atomic(ctx, func(tx Store) error {
				return Move(ctx, tx, "alice", "bob", 10)
			})
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)

	total, err := repo.TotalBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)
}
