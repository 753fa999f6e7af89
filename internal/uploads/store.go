package uploads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/gsis-platform/gsis-dashboard/internal/domain"
)

// ErrNotFound reports a delete against a row the principal cannot see.
var ErrNotFound = errors.New("upload not found")

// Store persists upload-metadata rows in the shared database. Reads are
// scoped to the owning principal unless the caller holds admin-wide scope.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to the database and migrates the upload schema.
func Open(dsn string, logger *slog.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to upload database: %w", err)
	}
	if err := db.AutoMigrate(&domain.Upload{}); err != nil {
		return nil, fmt.Errorf("failed to migrate upload schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// NewStore wraps an existing connection (tests, shared pools).
func NewStore(db *gorm.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Create inserts an upload row, assigning an id when absent.
func (s *Store) Create(ctx context.Context, u *domain.Upload) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		s.logger.Error("failed to create upload row", "upload_id", u.ID, "error", err)
		return fmt.Errorf("failed to create upload: %w", err)
	}
	return nil
}

// ListByUser returns the principal's uploads, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]domain.Upload, error) {
	var out []domain.Upload
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	return out, nil
}

// ListAll returns every upload row (admin-wide scope), newest first.
func (s *Store) ListAll(ctx context.Context) ([]domain.Upload, error) {
	var out []domain.Upload
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	return out, nil
}

// Delete removes an upload. Non-admin principals may only delete their own
// rows; anything else reports ErrNotFound.
func (s *Store) Delete(ctx context.Context, id, principal string, admin bool) error {
	q := s.db.WithContext(ctx).Where("id = ?", id)
	if !admin {
		q = q.Where("user_id = ?", principal)
	}
	res := q.Delete(&domain.Upload{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete upload: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
