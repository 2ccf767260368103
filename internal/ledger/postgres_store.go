package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// PoolConfig holds connection pool settings. Zero values fall back to
// defaults.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenPostgres opens a gorm connection and configures its pool.
func OpenPostgres(dsn string, pool PoolConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if pool.MaxOpenConns == 0 {
		pool.MaxOpenConns = 20
	}
	if pool.MaxIdleConns == 0 {
		pool.MaxIdleConns = 5
	}
	if pool.ConnMaxLifetime == 0 {
		pool.ConnMaxLifetime = 5 * time.Minute
	}
	if pool.MaxIdleConns > pool.MaxOpenConns {
		pool.MaxIdleConns = pool.MaxOpenConns
	}

	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)

	return db, nil
}

// PostgresRepository is the gorm-backed Repository. Units of work run in
// serializable transactions and lock the rows they read.
type PostgresRepository struct {
	pgStore
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{pgStore: pgStore{db: db}}
}

// Migrate creates the ledger tables and seeds the id sequences.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	db := r.db.WithContext(ctx)
	if err := db.AutoMigrate(
		&CreditBalance{},
		&CreditRecord{},
		&Listing{},
		&PaymentAccount{},
		&Sequence{},
	); err != nil {
		return fmt.Errorf("failed to migrate ledger tables: %w", err)
	}

	sequences := []Sequence{
		{Name: SequenceCreditID, NextValue: 1},
		{Name: SequenceListingID, NextValue: 1},
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&sequences).Error; err != nil {
		return fmt.Errorf("failed to seed sequences: %w", err)
	}
	return nil
}

// Atomic runs fn inside one serializable transaction.
func (r *PostgresRepository) Atomic(ctx context.Context, fn func(tx Store) error) error {
	var fnErr error
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&pgStore{db: tx, locking: true})
		return fnErr
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})

	if err != nil && fnErr == nil {
		// begin or commit failed, e.g. a serialization conflict
		return fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}
	return err
}

func (r *PostgresRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type pgStore struct {
	db      *gorm.DB
	locking bool
}

// query returns a session that takes row locks inside transactions.
func (s *pgStore) query(ctx context.Context) *gorm.DB {
	q := s.db.WithContext(ctx)
	if s.locking {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func (s *pgStore) GetBalance(ctx context.Context, owner string) (int64, error) {
	var balance CreditBalance
	err := s.query(ctx).Where("owner = ?", owner).Take(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance.Amount, nil
}

func (s *pgStore) SetBalance(ctx context.Context, owner string, amount int64) error {
	if amount < 0 {
		return ErrInsufficientBalance
	}
	balance := CreditBalance{Owner: owner, Amount: amount, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
	}).Create(&balance).Error
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	return nil
}

func (s *pgStore) GetCredit(ctx context.Context, creditID uint64) (*CreditRecord, error) {
	var credit CreditRecord
	err := s.db.WithContext(ctx).Where("credit_id = ?", creditID).Take(&credit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get credit: %w", err)
	}
	return &credit, nil
}

func (s *pgStore) CreateCredit(ctx context.Context, credit *CreditRecord) error {
	if err := s.db.WithContext(ctx).Create(credit).Error; err != nil {
		return fmt.Errorf("failed to create credit: %w", err)
	}
	return nil
}

func (s *pgStore) GetListing(ctx context.Context, listingID uint64) (*Listing, error) {
	var listing Listing
	err := s.query(ctx).Where("listing_id = ?", listingID).Take(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return &listing, nil
}

func (s *pgStore) CreateListing(ctx context.Context, listing *Listing) error {
	if err := s.db.WithContext(ctx).Create(listing).Error; err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}
	return nil
}

func (s *pgStore) UpdateListing(ctx context.Context, listing *Listing) error {
	result := s.db.WithContext(ctx).Model(&Listing{}).
		Where("listing_id = ?", listing.ListingID).
		Updates(map[string]interface{}{
			"amount":           listing.Amount,
			"price_per_credit": listing.PricePerCredit,
			"active":           listing.Active,
			"status":           listing.Status,
			"buyer":            listing.Buyer,
			"updated_at":       listing.UpdatedAt,
			"closed_at":        listing.ClosedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update listing: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrListingNotFound
	}
	return nil
}

func (s *pgStore) GetPaymentBalance(ctx context.Context, account string) (int64, error) {
	var payment PaymentAccount
	err := s.query(ctx).Where("account = ?", account).Take(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get payment balance: %w", err)
	}
	return payment.Balance, nil
}

func (s *pgStore) SetPaymentBalance(ctx context.Context, account string, amount int64) error {
	if amount < 0 {
		return ErrInsufficientFunds
	}
	payment := PaymentAccount{Account: account, Balance: amount, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account"}},
		DoUpdates: clause.AssignmentColumns([]string{"balance", "updated_at"}),
	}).Create(&payment).Error
	if err != nil {
		return fmt.Errorf("failed to set payment balance: %w", err)
	}
	return nil
}

func (s *pgStore) NextSequence(ctx context.Context, name string) (uint64, error) {
	var seq Sequence
	err := s.query(ctx).Where("name = ?", name).Take(&seq).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("failed to lock sequence %s: %w", name, err)
		}
		seq = Sequence{Name: name, NextValue: 1}
		if err := s.db.WithContext(ctx).Create(&seq).Error; err != nil {
			return 0, fmt.Errorf("failed to create sequence %s: %w", name, err)
		}
	}

	value := seq.NextValue
	err = s.db.WithContext(ctx).Model(&Sequence{}).
		Where("name = ?", name).
		Update("next_value", value+1).Error
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", name, err)
	}
	return value, nil
}

func (s *pgStore) ListBalances(ctx context.Context) ([]CreditBalance, error) {
	var balances []CreditBalance
	if err := s.db.WithContext(ctx).Order("owner ASC").Find(&balances).Error; err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	return balances, nil
}

func (s *pgStore) ListCredits(ctx context.Context) ([]CreditRecord, error) {
	var credits []CreditRecord
	if err := s.db.WithContext(ctx).Order("credit_id ASC").Find(&credits).Error; err != nil {
		return nil, fmt.Errorf("failed to list credits: %w", err)
	}
	return credits, nil
}

func (s *pgStore) ListListings(ctx context.Context, filter ListingFilter) ([]Listing, error) {
	q := s.db.WithContext(ctx).Model(&Listing{})
	if filter.Seller != "" {
		q = q.Where("seller = ?", filter.Seller)
	}
	if filter.CreditID != 0 {
		q = q.Where("credit_id = ?", filter.CreditID)
	}
	if filter.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var listings []Listing
	if err := q.Order("listing_id ASC").Find(&listings).Error; err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	return listings, nil
}

func (s *pgStore) ListPaymentAccounts(ctx context.Context) ([]PaymentAccount, error) {
	var accounts []PaymentAccount
	if err := s.db.WithContext(ctx).Order("account ASC").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to list payment accounts: %w", err)
	}
	return accounts, nil
}

func (s *pgStore) TotalBalances(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&CreditBalance{}).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum balances: %w", err)
	}
	return total, nil
}

func (s *pgStore) TotalMinted(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&CreditRecord{}).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum minted credits: %w", err)
	}
	return total, nil
}

func (s *pgStore) PeekSequence(ctx context.Context, name string) (uint64, error) {
	var seq Sequence
	err := s.db.WithContext(ctx).Where("name = ?", name).Take(&seq).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 1, nil
		}
		return 0, fmt.Errorf("failed to read sequence %s: %w", name, err)
	}
	return seq.NextValue, nil
}
