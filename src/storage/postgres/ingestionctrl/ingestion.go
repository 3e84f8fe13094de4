package ingestionctrl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Status string

const (
	StatusIndexed   Status = "indexed"
	StatusForgotten Status = "forgotten"
)

// Ingestion is one indexed deck. The id is the document id handed out at ingestion.
type Ingestion struct {
	ID             int64      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	UserID         string     `gorm:"not null;index" json:"user_id"`
	FilePath       string     `gorm:"not null" json:"file_path"`
	ChunkCount     int        `gorm:"not null" json:"chunk_count"`
	EmbeddingModel string     `json:"embedding_model"`
	Status         Status     `gorm:"type:varchar(20);not null" json:"status"`
	IndexedAt      time.Time  `gorm:"not null" json:"indexed_at"`
	ForgottenAt    *time.Time `json:"forgotten_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type IngestionService struct {
	db *gorm.DB
}

func NewIngestionService(db *gorm.DB) *IngestionService {
	return &IngestionService{db: db}
}

func (s *IngestionService) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Ingestion{}); err != nil {
		return fmt.Errorf("failed to migrate ingestions: %v", err)
	}
	return nil
}

// RecordIndexed stores a newly indexed deck. A deck indexed earlier for the
// same user is superseded and marked forgotten. Replaying the same id is a no-op.
func (s *IngestionService) RecordIndexed(ctx context.Context, ingestion *Ingestion) error {
	ingestion.Status = StatusIndexed
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := markForgotten(tx, ingestion.UserID, ingestion.IndexedAt, ingestion.ID); err != nil {
			return err
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(ingestion)
		if result.Error != nil {
			return fmt.Errorf("failed to create ingestion: %v", result.Error)
		}
		return nil
	})
}

// MarkForgotten flags every indexed deck of the user as forgotten.
func (s *IngestionService) MarkForgotten(ctx context.Context, userID string, at time.Time) error {
	return markForgotten(s.db.WithContext(ctx), userID, at, 0)
}

func markForgotten(db *gorm.DB, userID string, at time.Time, exceptID int64) error {
	result := db.Model(&Ingestion{}).
		Where("user_id = ? AND status = ? AND id <> ?", userID, StatusIndexed, exceptID).
		Updates(map[string]interface{}{
			"status":       StatusForgotten,
			"forgotten_at": at,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark ingestions forgotten: %v", result.Error)
	}
	return nil
}

func (s *IngestionService) ListByUser(ctx context.Context, userID string) ([]Ingestion, error) {
	var ingestions []Ingestion
	result := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("indexed_at desc").Find(&ingestions)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list ingestions: %v", result.Error)
	}
	return ingestions, nil
}

// Current returns the deck currently indexed for the user, or nil.
func (s *IngestionService) Current(ctx context.Context, userID string) (*Ingestion, error) {
	var ingestion Ingestion
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, StatusIndexed).
		Order("indexed_at desc").
		First(&ingestion)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ingestion: %v", result.Error)
	}
	return &ingestion, nil
}
