package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/himanishpuri/SoundMeta/pkg/models"
)

const DefaultDBFile = "soundmeta.sqlite3"
const errDBClientNil = "db client is nil"

var ErrNotFound = errors.New("recognition not found")

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

// Recognition is one row of request history.
type Recognition struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	RequestID    string `gorm:"type:varchar(36);uniqueIndex:idx_request_id"`
	Filename     string
	MimeType     string
	SizeBytes    int64
	Success      bool   `gorm:"index:idx_outcome,priority:1"`
	Source       string `gorm:"index:idx_outcome,priority:2"`
	Title        string
	Artist       string
	Album        string
	FailureKind  string
	FailureCode  string
	ProcessingMs int64
	CreatedAt    time.Time `gorm:"index:idx_created_at"`
}

func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("SOUNDMETA_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
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

	// sqlite serialises writers; one connection avoids SQLITE_BUSY under concurrent requests
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Recognition{}); err != nil {
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

// SaveRecognition stores one history entry. Saving the same request twice is a no-op.
func (c *DBClient) SaveRecognition(e models.HistoryEntry) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	if e.RequestID == "" {
		return errors.New("history entry has no request id")
	}

	row := Recognition{
		RequestID:    e.RequestID,
		Filename:     e.Filename,
		MimeType:     e.MimeType,
		SizeBytes:    e.SizeBytes,
		Success:      e.Success,
		Source:       e.Source,
		Title:        e.Title,
		Artist:       e.Artist,
		Album:        e.Album,
		FailureKind:  string(e.FailureKind),
		FailureCode:  e.FailureCode,
		ProcessingMs: e.ProcessingMs,
		CreatedAt:    e.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}

	if err := c.DB.Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil
		}
		return fmt.Errorf("inserting recognition: %w", err)
	}
	return nil
}

// ListRecent returns up to limit entries, newest first.
func (c *DBClient) ListRecent(limit int) ([]models.HistoryEntry, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	if limit <= 0 {
		limit = 20
	}

	var rows []Recognition
	if err := c.DB.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing recognitions: %w", err)
	}

	out := make([]models.HistoryEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toEntry())
	}
	return out, nil
}

func (c *DBClient) GetByRequestID(requestID string) (*models.HistoryEntry, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var row Recognition
	if err := c.DB.Where("request_id = ?", requestID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, requestID)
		}
		return nil, fmt.Errorf("querying recognition: %w", err)
	}
	e := row.toEntry()
	return &e, nil
}

func (c *DBClient) Stats() (*models.HistoryStats, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}

	st := &models.HistoryStats{BySource: make(map[string]int64)}
	if err := c.DB.Model(&Recognition{}).Count(&st.Total).Error; err != nil {
		return nil, fmt.Errorf("counting recognitions: %w", err)
	}

	var groups []struct {
		Source string
		N      int64
	}
	err := c.DB.Model(&Recognition{}).
		Select("source, count(*) as n").
		Where("success = ?", true).
		Group("source").
		Scan(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("grouping recognitions: %w", err)
	}
	for _, g := range groups {
		st.BySource[g.Source] = g.N
		st.Succeeded += g.N
	}
	return st, nil
}

func (r Recognition) toEntry() models.HistoryEntry {
	return models.HistoryEntry{
		RequestID:    r.RequestID,
		Filename:     r.Filename,
		MimeType:     r.MimeType,
		SizeBytes:    r.SizeBytes,
		Success:      r.Success,
		Source:       r.Source,
		Title:        r.Title,
		Artist:       r.Artist,
		Album:        r.Album,
		FailureKind:  models.ErrorKind(r.FailureKind),
		FailureCode:  r.FailureCode,
		ProcessingMs: r.ProcessingMs,
		CreatedAt:    r.CreatedAt,
	}
}
