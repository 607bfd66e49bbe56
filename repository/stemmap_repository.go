package repository

import (
	"context"
	"errors"

	"stemdesk/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StemmapRepository defines the storage operations for stemmap records.
type StemmapRepository interface {
	// SaveStemmap inserts or replaces the record for its upload.
	SaveStemmap(ctx context.Context, record *model.StemmapRecord) error

	// GetStemmapByUploadID returns the current record, or nil.
	GetStemmapByUploadID(ctx context.Context, uploadID string) (*model.StemmapRecord, error)
}

// MySQLStemmapRepository is the gorm-backed stemmap repository.
type MySQLStemmapRepository struct {
	db *gorm.DB
}

// NewMySQLStemmapRepository creates a new stemmap repository instance.
func NewMySQLStemmapRepository(db *gorm.DB) *MySQLStemmapRepository {
	return &MySQLStemmapRepository{db: db}
}

// SaveStemmap inserts or replaces the record for its upload.
func (r *MySQLStemmapRepository) SaveStemmap(ctx context.Context, record *model.StemmapRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "upload_id"}},
		UpdateAll: true,
	}).Create(record).Error
}

// GetStemmapByUploadID returns the current record, or nil.
func (r *MySQLStemmapRepository) GetStemmapByUploadID(ctx context.Context, uploadID string) (*model.StemmapRecord, error) {
	var record model.StemmapRecord
	err := r.db.WithContext(ctx).First(&record, "upload_id = ?", uploadID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}
