package notifications

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LogSink writes every event to the structured log
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a log sink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, event *Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID.String()),
		zap.String("kind", string(event.Kind)),
		zap.Time("occurred_at", event.OccurredAt),
	}
	if event.Actor != "" {
		fields = append(fields, zap.String("actor", event.Actor))
	}
	if event.Counterparty != "" {
		fields = append(fields, zap.String("counterparty", event.Counterparty))
	}
	if event.CreditID != 0 {
		fields = append(fields, zap.Uint64("credit_id", event.CreditID))
	}
	if event.ListingID != 0 {
		fields = append(fields, zap.Uint64("listing_id", event.ListingID))
	}
	if event.Amount != 0 {
		fields = append(fields, zap.Int64("amount", event.Amount))
	}
	if event.Price != 0 {
		fields = append(fields, zap.Int64("price", event.Price))
	}
	s.logger.Info("Market event", fields...)
	return nil
}

// Journal is a queryable event history
type Journal interface {
	Sink
	List(ctx context.Context, filter JournalFilter) ([]JournalEntry, error)
}

const defaultJournalLimit = 100

// GormJournal persists events to the market_events table
type GormJournal struct {
	db *gorm.DB
}

// NewGormJournal creates a database-backed journal
func NewGormJournal(db *gorm.DB) *GormJournal {
	return &GormJournal{db: db}
}

// Migrate creates the journal table
func (j *GormJournal) Migrate() error {
	return j.db.AutoMigrate(&JournalEntry{})
}

func (j *GormJournal) Name() string { return "journal" }

func (j *GormJournal) Deliver(ctx context.Context, event *Event) error {
	entry := toJournalEntry(event)
	// Retried deliveries must not duplicate rows
	return j.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(entry).Error
}

func (j *GormJournal) List(ctx context.Context, filter JournalFilter) ([]JournalEntry, error) {
	query := j.db.WithContext(ctx).Model(&JournalEntry{})
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if filter.CreditID != 0 {
		query = query.Where("credit_id = ?", filter.CreditID)
	}
	if filter.ListingID != 0 {
		query = query.Where("listing_id = ?", filter.ListingID)
	}
	if filter.Actor != "" {
		query = query.Where("actor = ? OR counterparty = ?", filter.Actor, filter.Actor)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultJournalLimit
	}

	var entries []JournalEntry
	if err := query.Order("occurred_at DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// MemoryJournal keeps events in process memory
type MemoryJournal struct {
	mu      sync.RWMutex
	entries []JournalEntry
	seen    map[string]struct{}
}

// NewMemoryJournal creates an in-memory journal
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{seen: make(map[string]struct{})}
}

func (j *MemoryJournal) Name() string { return "journal" }

func (j *MemoryJournal) Deliver(_ context.Context, event *Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	id := event.ID.String()
	if _, ok := j.seen[id]; ok {
		return nil
	}
	j.seen[id] = struct{}{}
	j.entries = append(j.entries, *toJournalEntry(event))
	return nil
}

func (j *MemoryJournal) List(_ context.Context, filter JournalFilter) ([]JournalEntry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []JournalEntry
	for _, entry := range j.entries {
		if filter.Kind != "" && entry.Kind != string(filter.Kind) {
			continue
		}
		if filter.CreditID != 0 && entry.CreditID != filter.CreditID {
			continue
		}
		if filter.ListingID != 0 && entry.ListingID != filter.ListingID {
			continue
		}
		if filter.Actor != "" && entry.Actor != filter.Actor && entry.Counterparty != filter.Actor {
			continue
		}
		result = append(result, entry)
	}

	sort.SliceStable(result, func(a, b int) bool {
		return result[a].OccurredAt.After(result[b].OccurredAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultJournalLimit
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
