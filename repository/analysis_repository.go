package repository

import (
	"context"
	"errors"

	"stemdesk/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AnalysisRepository defines the storage operations for analysis results.
// An upload has at most one current result; saving replaces it wholesale.
type AnalysisRepository interface {
	// SaveAnalysisResult inserts or fully replaces the result for its upload.
	SaveAnalysisResult(ctx context.Context, result *model.AnalysisResult) error

	// GetAnalysisResultByUploadID returns the current result, or nil.
	GetAnalysisResultByUploadID(ctx context.Context, uploadID string) (*model.AnalysisResult, error)
}

// MySQLAnalysisRepository is the gorm-backed analysis repository.
type MySQLAnalysisRepository struct {
	db *gorm.DB
}

// NewMySQLAnalysisRepository creates a new analysis repository instance.
func NewMySQLAnalysisRepository(db *gorm.DB) *MySQLAnalysisRepository {
	return &MySQLAnalysisRepository{db: db}
}

// SaveAnalysisResult inserts or fully replaces the result for its upload.
// The upsert is keyed on the upload_id unique index so a rerun of a stage
// never leaves merged or duplicated entries behind.
func (r *MySQLAnalysisRepository) SaveAnalysisResult(ctx context.Context, result *model.AnalysisResult) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "upload_id"}},
		UpdateAll: true,
	}).Create(result).Error
}

// GetAnalysisResultByUploadID returns the current result, or nil.
func (r *MySQLAnalysisRepository) GetAnalysisResultByUploadID(ctx context.Context, uploadID string) (*model.AnalysisResult, error) {
	var result model.AnalysisResult
	err := r.db.WithContext(ctx).First(&result, "upload_id = ?", uploadID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}
