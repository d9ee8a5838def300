package haiku

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// StoreError carries an "<operation>.<reason>" code alongside the failure kind and its cause.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

func (e *StoreError) Code() string {
	return e.code
}

const (
	opStoreNew          = "haiku.store.new"
	opInsert            = "haiku.insert"
	opGetByID           = "haiku.get_by_id"
	opGetNewest         = "haiku.get_newest"
	opSetPosted         = "haiku.set_posted"
	opGetUnposted       = "haiku.get_unposted"
	opGetByAuthor       = "haiku.get_by_author"
	opGetStats          = "haiku.get_stats"
	opGetAll            = "haiku.get_all"
	opGetAllWithinWeeks = "haiku.get_all_within_weeks"
	opClearAll          = "haiku.clear_all"
	opClose             = "haiku.close"
)

func newStoreError(operation, reason string, kind, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	var wrapped error
	switch {
	case kind != nil && cause != nil:
		wrapped = fmt.Errorf("%w: %w", kind, cause)
	case kind != nil:
		wrapped = kind
	default:
		wrapped = cause
	}
	return &StoreError{code: code, err: wrapped}
}

// Repository is the bot-facing contract of the haiku store.
type Repository interface {
	Insert(ctx context.Context, request InsertRequest) (Record, error)
	GetByID(ctx context.Context, id int64) (Record, error)
	GetNewest(ctx context.Context) ([]Record, error)
	SetPosted(ctx context.Context, id int64) error
	GetUnposted(ctx context.Context) ([]Record, error)
	GetByAuthor(ctx context.Context, query string, limit int) ([]Record, error)
	GetStats(ctx context.Context, topN int) ([]AuthorStat, error)
	GetAll(ctx context.Context) ([]Record, error)
	GetAllWithinWeeks(ctx context.Context, weeks int) ([]Record, error)
}

type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store persists haiku entries through a single gorm engine handle.
type Store struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

var _ Repository = (*Store)(nil)

// NewStore constructs the store and ensures the haiku schema is present.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newStoreError(opStoreNew, "missing_database", ErrStorageUnavailable, errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	if err := ensureSchema(cfg.Database); err != nil {
		logger.Error("haiku schema migration failed", zap.Error(err))
		return nil, newStoreError(opStoreNew, "migrate_failed", ErrStorageUnavailable, err)
	}

	return &Store{
		db:     cfg.Database,
		clock:  clock,
		logger: logger,
	}, nil
}

// ensureSchema migrates only handles that lack the table; database.Open has already
// migrated the handles it returns.
func ensureSchema(db *gorm.DB) error {
	if db.Migrator().HasTable(&Record{}) {
		return nil
	}
	return db.AutoMigrate(&Record{})
}

// Insert persists a new haiku and returns it with its assigned id.
func (s *Store) Insert(ctx context.Context, request InsertRequest) (Record, error) {
	now := s.clock()
	if err := request.validate(); err != nil {
		return Record{}, s.fail(opInsert, "invalid_request", ErrValidation, err)
	}

	date := request.Date
	if date.IsZero() {
		date = now
	}

	record := Record{
		Text:   request.Text,
		Author: request.Author,
		Posted: request.Posted,
		Date:   date.UTC(),
	}
	// Select forces posted=false to be written instead of deferring to the column default.
	if err := s.db.WithContext(ctx).Select("haiku", "author", "posted", "date").Create(&record).Error; err != nil {
		return Record{}, s.fail(opInsert, "insert_failed", ErrStorageUnavailable, err, zap.String("author", request.Author))
	}

	s.logger.Debug("haiku stored", zap.Int64("id", record.ID), zap.String("author", record.Author))
	return record, nil
}

// GetByID returns the haiku with the given id or ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id int64) (Record, error) {
	var record Record
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, newStoreError(opGetByID, "not_found", ErrNotFound, nil)
	}
	if err != nil {
		return Record{}, s.fail(opGetByID, "query_failed", ErrStorageUnavailable, err, zap.Int64("id", id))
	}
	return record, nil
}

// GetNewest returns every haiku, most recently inserted first.
func (s *Store) GetNewest(ctx context.Context) ([]Record, error) {
	var records []Record
	if err := s.db.WithContext(ctx).Order("id DESC").Find(&records).Error; err != nil {
		return nil, s.fail(opGetNewest, "query_failed", ErrStorageUnavailable, err)
	}
	return records, nil
}

// SetPosted marks the haiku as posted. Marking an already posted haiku is a no-op.
func (s *Store) SetPosted(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("id = ?", id).
		Update("posted", true)
	if result.Error != nil {
		return s.fail(opSetPosted, "update_failed", ErrStorageUnavailable, result.Error, zap.Int64("id", id))
	}
	if result.RowsAffected == 0 {
		return newStoreError(opSetPosted, "not_found", ErrNotFound, nil)
	}
	return nil
}

// GetUnposted returns haiku not yet posted in insertion order.
func (s *Store) GetUnposted(ctx context.Context) ([]Record, error) {
	var records []Record
	if err := s.db.WithContext(ctx).
		Where("posted = ?", false).
		Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, s.fail(opGetUnposted, "query_failed", ErrStorageUnavailable, err)
	}
	return records, nil
}

// GetByAuthor returns up to limit haiku whose author contains query, ignoring case, newest first.
func (s *Store) GetByAuthor(ctx context.Context, query string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultAuthorLimit
	}

	// both sides are folded by the engine so an exact-case substring always matches.
	pattern := "%" + escapeLike(query) + "%"
	var records []Record
	if err := s.db.WithContext(ctx).
		Where(`LOWER(author) LIKE LOWER(?) ESCAPE '\'`, pattern).
		Order("id DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, s.fail(opGetByAuthor, "query_failed", ErrStorageUnavailable, err, zap.String("query", query))
	}
	return records, nil
}

// GetStats counts haiku per author, highest count first. Authors with equal counts keep the
// order in which their first haiku was inserted. topN <= 0 returns every author.
func (s *Store) GetStats(ctx context.Context, topN int) ([]AuthorStat, error) {
	query := s.db.WithContext(ctx).
		Model(&Record{}).
		Select("author, COUNT(*) AS haiku_count, MIN(id) AS first_id").
		Group("author").
		Order("haiku_count DESC").
		Order("first_id ASC")
	if topN > 0 {
		query = query.Limit(topN)
	}

	var stats []AuthorStat
	if err := query.Scan(&stats).Error; err != nil {
		return nil, s.fail(opGetStats, "query_failed", ErrStorageUnavailable, err)
	}
	return stats, nil
}

// GetAll returns every haiku. Order is not part of the contract.
func (s *Store) GetAll(ctx context.Context) ([]Record, error) {
	var records []Record
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, s.fail(opGetAll, "query_failed", ErrStorageUnavailable, err)
	}
	return records, nil
}

// GetAllWithinWeeks returns every haiku dated no earlier than weeks*7 days before now.
func (s *Store) GetAllWithinWeeks(ctx context.Context, weeks int) ([]Record, error) {
	if weeks <= 0 {
		return nil, newStoreError(opGetAllWithinWeeks, "invalid_weeks", ErrValidation, fmt.Errorf("weeks must be positive, got %d", weeks))
	}

	since := windowStart(s.clock(), weeks)
	var records []Record
	if err := s.db.WithContext(ctx).
		Where("date >= ?", since).
		Find(&records).Error; err != nil {
		return nil, s.fail(opGetAllWithinWeeks, "query_failed", ErrStorageUnavailable, err, zap.Int("weeks", weeks))
	}
	return records, nil
}

// ClearAll deletes every haiku. Ids are not reset. Maintenance and tests only.
func (s *Store) ClearAll(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Record{}).Error; err != nil {
		return s.fail(opClearAll, "delete_failed", ErrStorageUnavailable, err)
	}
	s.logger.Warn("haiku store cleared")
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return s.fail(opClose, "handle_unavailable", ErrStorageUnavailable, err)
	}
	if err := sqlDB.Close(); err != nil {
		return s.fail(opClose, "close_failed", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) fail(operation, reason string, kind, cause error, fields ...zap.Field) error {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if cause != nil {
		attrs = append(attrs, zap.Error(cause))
	}
	attrs = append(attrs, fields...)
	if errors.Is(kind, ErrValidation) {
		s.logger.Warn("haiku store rejected request", attrs...)
	} else {
		s.logger.Error("haiku store error", attrs...)
	}
	return newStoreError(operation, reason, kind, cause)
}
