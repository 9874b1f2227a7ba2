package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/skypro1111/storyreel/internal/run"
)

// ErrNotFound is returned by Get for unknown run IDs
var ErrNotFound = errors.New("run not found")

// DBRun is the persisted form of a finished run
type DBRun struct {
	gorm.Model
	RunID        string `gorm:"uniqueIndex;not null"`
	Status       string `gorm:"not null"`
	Style        string
	SceneCount   int
	ResultURL    string
	ErrorKind    string
	ErrorMessage string
	LogText      string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Store keeps a local record of finished runs in SQLite
type Store struct {
	db *gorm.DB
}

// Open opens or creates the history database at path
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database %s: %w", path, err)
	}

	if err := db.AutoMigrate(&DBRun{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record stores r, replacing an earlier record with the same run ID
func (s *Store) Record(ctx context.Context, r run.Run) error {
	if r.ID == "" {
		return fmt.Errorf("run has no ID")
	}

	rec := &DBRun{
		RunID:      r.ID,
		Status:     string(r.Status),
		Style:      r.Style,
		SceneCount: r.SceneCount,
		ResultURL:  r.ResultURL,
		LogText:    r.LogText,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	if r.Error != nil {
		rec.ErrorKind = string(r.Error.Kind)
		rec.ErrorMessage = r.Error.Message
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "run_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"updated_at", "status", "style", "scene_count", "result_url",
			"error_kind", "error_message", "log_text", "started_at", "finished_at",
		}),
	}).Create(rec).Error
}

// Recent returns up to limit runs, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]run.Run, error) {
	if limit <= 0 {
		limit = 20
	}

	var recs []DBRun
	err := s.db.WithContext(ctx).Order("started_at DESC").Order("id DESC").Limit(limit).Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]run.Run, 0, len(recs))
	for i := range recs {
		runs = append(runs, recs[i].toRun())
	}
	return runs, nil
}

// Get returns the run with runID
func (s *Store) Get(ctx context.Context, runID string) (run.Run, error) {
	var rec DBRun
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return run.Run{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return run.Run{}, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return rec.toRun(), nil
}

func (r *DBRun) toRun() run.Run {
	out := run.Run{
		ID:         r.RunID,
		Status:     run.Status(r.Status),
		Style:      r.Style,
		SceneCount: r.SceneCount,
		ResultURL:  r.ResultURL,
		LogText:    r.LogText,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	if r.ErrorKind != "" {
		out.Error = &run.ErrorDescriptor{Kind: run.ErrorKind(r.ErrorKind), Message: r.ErrorMessage}
	}
	return out
}
