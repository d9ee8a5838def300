package haiku

import (
	"errors"
	"strings"
	"time"
)

const (
	// DefaultAuthorLimit caps GetByAuthor results when the caller passes no positive limit.
	DefaultAuthorLimit = 3

	daysPerWeek = 7
)

var (
	// ErrNotFound indicates that no haiku carries the requested id.
	ErrNotFound = errors.New("haiku: not found")
	// ErrValidation indicates caller input the store refuses to persist or query with.
	ErrValidation = errors.New("haiku: validation failed")
	// ErrStorageUnavailable wraps any failure reported by the underlying engine.
	ErrStorageUnavailable = errors.New("haiku: storage unavailable")
)

// Record models a persisted haiku entry.
type Record struct {
	ID     int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Text   string    `gorm:"column:haiku;type:text;not null" json:"haiku"`
	Author string    `gorm:"column:author;type:text;not null;index:idx_haiku_author" json:"author"`
	Posted bool      `gorm:"column:posted;not null;default:false" json:"posted"`
	Date   time.Time `gorm:"column:date;not null" json:"date"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "haiku"
}

// AuthorStat is one row of the per-author aggregate.
type AuthorStat struct {
	Author  string `gorm:"column:author" json:"author"`
	Count   int64  `gorm:"column:haiku_count" json:"count"`
	FirstID int64  `gorm:"column:first_id" json:"-"`
}

// InsertRequest describes a new haiku. A zero Date means the insertion instant.
type InsertRequest struct {
	Text   string
	Author string
	Posted bool
	Date   time.Time
}

func (r InsertRequest) validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return errors.New("text is required")
	}
	if strings.TrimSpace(r.Author) == "" {
		return errors.New("author is required")
	}
	return nil
}

// escapeLike makes a user query safe to embed in a LIKE pattern as a literal substring.
func escapeLike(query string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(query)
}

func windowStart(now time.Time, weeks int) time.Time {
	return now.UTC().AddDate(0, 0, -weeks*daysPerWeek)
}
