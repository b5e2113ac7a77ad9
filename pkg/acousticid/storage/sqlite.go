package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const DefaultDBFile = "acousticid.sqlite3"

// DefaultListLimit caps ListAnalyses when the caller passes no limit.
const DefaultListLimit = 50

const errDBClientNil = "db client is nil"

var ErrNotFound = errors.New("analysis not found")

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

// Analysis is one row of analysis history. Uploaded audio is never stored,
// only what was learned about it.
type Analysis struct {
	ID              string    `gorm:"primaryKey;type:varchar(36)"`
	OriginalName    string    `json:"original_name"`
	MimeType        string    `json:"mime_type"`
	SizeBytes       int64     `json:"size_bytes"`
	DurationSeconds float64   `json:"duration_seconds"`
	Outcome         string    `gorm:"index:idx_outcome" json:"outcome"`
	Message         string    `json:"message"`
	CandidateCount  int       `json:"candidate_count"`
	TopTitle        string    `json:"top_title"`
	TopArtist       string    `json:"top_artist"`
	CreatedAt       time.Time `gorm:"index:idx_created_at" json:"created_at"`
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	// sqlite takes one writer at a time
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Analysis{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *DBClient) RecordAnalysis(a Analysis) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if err := c.DB.Create(&a).Error; err != nil {
		return fmt.Errorf("inserting analysis: %w", err)
	}
	return nil
}

// ListAnalyses returns the most recent analyses first.
func (c *DBClient) ListAnalyses(limit int) ([]Analysis, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var rows []Analysis
	if err := c.DB.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}
	return rows, nil
}

func (c *DBClient) GetAnalysis(id string) (*Analysis, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}

	var row Analysis
	err := c.DB.Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying analysis: %w", err)
	}
	return &row, nil
}

func (c *DBClient) DeleteAnalysis(id string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}

	res := c.DB.Where("id = ?", id).Delete(&Analysis{})
	if res.Error != nil {
		return fmt.Errorf("deleting analysis: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PruneBefore deletes analyses created before cutoff and reports how many
// rows went.
func (c *DBClient) PruneBefore(cutoff time.Time) (int64, error) {
	if c == nil || c.DB == nil {
		return 0, errors.New(errDBClientNil)
	}

	res := c.DB.Where("created_at < ?", cutoff).Delete(&Analysis{})
	if res.Error != nil {
		return 0, fmt.Errorf("pruning analyses: %w", res.Error)
	}
	return res.RowsAffected, nil
}
