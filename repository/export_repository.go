package repository

import (
	"context"

	"stemdesk/model"

	"gorm.io/gorm"
)

// ExportRepository defines the storage operations for export records.
// Exports are append-only; there is no update or delete.
type ExportRepository interface {
	// CreateExport appends a new export record.
	CreateExport(ctx context.Context, export *model.Export) error

	// GetExportsByUploadID lists an upload's export history, newest first.
	GetExportsByUploadID(ctx context.Context, uploadID string) ([]*model.Export, error)
}

// MySQLExportRepository is the gorm-backed export repository.
type MySQLExportRepository struct {
	db *gorm.DB
}

// NewMySQLExportRepository creates a new export repository instance.
func NewMySQLExportRepository(db *gorm.DB) *MySQLExportRepository {
	return &MySQLExportRepository{db: db}
}

// CreateExport appends a new export record.
func (r *MySQLExportRepository) CreateExport(ctx context.Context, export *model.Export) error {
	return r.db.WithContext(ctx).Create(export).Error
}

// GetExportsByUploadID lists an upload's export history, newest first.
func (r *MySQLExportRepository) GetExportsByUploadID(ctx context.Context, uploadID string) ([]*model.Export, error) {
	var exports []*model.Export
	err := r.db.WithContext(ctx).
		Where("upload_id = ?", uploadID).
		Order("created_at DESC").
		Find(&exports).Error
	if err != nil {
		return nil, err
	}
	return exports, nil
}
