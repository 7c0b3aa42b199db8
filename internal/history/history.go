// Package history keeps a sqlite record of every sweep and of each course within it.
package history

import (
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"moul.io/zapgorm2"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

type SweepRun struct {
	ID          string `gorm:"primaryKey"`
	StartedAt   time.Time
	FinishedAt  *time.Time
	Courses     int
	Transferred int64
	Error       string
}

func (SweepRun) TableName() string {
	return "sweep_run"
}

type CourseRun struct {
	ID              int64 `gorm:"primaryKey;autoIncrement"`
	RunID           string
	Course          string
	StartedAt       time.Time
	Duration        time.Duration `gorm:"column:duration_ns"`
	Classes         int
	Submitted       int
	Processed       int
	Validated       int
	FromLog         int
	Failed          int
	Transferred     int64
	FolderSize      int64
	BudgetExhausted bool
	Skipped         bool
	Error           string
}

func (CourseRun) TableName() string {
	return "course_run"
}

type History struct {
	db     *gorm.DB
	logger *zap.Logger
}

func Open(path string, logger *zap.Logger) (*History, error) {
	logger = logger.Named("history")
	gormLogger := zapgorm2.New(logger)
	gormLogger.LogLevel = gormlogger.Warn
	gormLogger.IgnoreRecordNotFoundError = true
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database %s: %w", path, err)
	}
	h := &History{db: db, logger: logger}
	if err := h.migrate(); err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return h, nil
}

func (h *History) migrate() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	fs, err := iofs.New(embedMigrations, "migrations")
	if err != nil {
		return err
	}
	driver, err := sqlite3.WithInstance(sqlDB, &sqlite3.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", fs, "sqlite3", driver)
	if err != nil {
		return err
	}
	err = m.Up()
	switch {
	case err == nil:
		h.logger.Info("database migration complete")
	case errors.Is(err, migrate.ErrNoChange):
		h.logger.Debug("no database migration required")
	default:
		return err
	}
	return nil
}

func (h *History) Close() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (h *History) StartRun(run *SweepRun) error {
	return h.db.Create(run).Error
}

func (h *History) FinishRun(run *SweepRun) error {
	return h.db.Save(run).Error
}

// AddCourseRun inserts the row, setting CourseRun.ID.
func (h *History) AddCourseRun(run *CourseRun) error {
	return h.db.Create(run).Error
}

func (h *History) GetRun(id string) (*SweepRun, error) {
	var run SweepRun
	if err := h.db.First(&run, "id = ?", id).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &run, nil
}

func (h *History) CourseRuns(runID string) ([]CourseRun, error) {
	var runs []CourseRun
	if err := h.db.Where("run_id = ?", runID).Order("id").Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// LastCourseRun returns (nil, nil) if the course was never swept.
func (h *History) LastCourseRun(course string) (*CourseRun, error) {
	var run CourseRun
	if err := h.db.Where("course = ?", course).Order("started_at DESC, id DESC").First(&run).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &run, nil
}
