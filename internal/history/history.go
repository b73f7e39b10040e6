// Package history keeps a local log of finished and aborted transfers.
package history

import (
	"fmt"
	"time"

	"github.com/SpatiumPortae/lanbeam/internal/transfer"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const FileName = "history.sqlite3"

// Entry is a recorded transfer.
type Entry struct {
	ID          string `gorm:"primaryKey"`
	Direction   string `gorm:"index"`
	Name        string
	MimeType    string
	Size        int64
	Transferred int64
	Status      string
	Peer        string
	Error       string
	CreatedAt   time.Time `gorm:"index"`
}

// Store records transfer results in sqlite.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// Open opens, and migrates if needed, the history database at path.
func Open(path string, lgr *zap.Logger) (*Store, error) {
	if lgr == nil {
		lgr = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrating history database: %w", err)
	}
	return &Store{db: db, logger: lgr.With(zap.String("component", "history")), now: time.Now}, nil
}

// Record stores the result. Failures are logged, a broken history never fails a transfer.
func (s *Store) Record(r transfer.Result) {
	e := Entry{
		ID:          uuid.NewString(),
		Direction:   string(r.Direction),
		Name:        r.Name,
		MimeType:    r.MimeType,
		Size:        r.Size,
		Transferred: r.Transferred,
		Status:      r.Status.String(),
		Peer:        r.Peer,
		CreatedAt:   s.now(),
	}
	if r.Err != nil {
		e.Error = r.Err.Error()
	}
	if err := s.db.Create(&e).Error; err != nil {
		s.logger.Error("recording transfer", zap.String("name", r.Name), zap.Error(err))
	}
}

// List returns the most recent entries first. A limit <= 0 returns every entry.
func (s *Store) List(limit int) ([]Entry, error) {
	var entries []Entry
	q := s.db.Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	return entries, nil
}

// Clear removes every entry.
func (s *Store) Clear() error {
	return s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Entry{}).Error
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
