package repository

import (
	"context"
	"errors"

	"stemdesk/model"

	"gorm.io/gorm"
)

// UploadRepository defines the storage operations for upload records.
type UploadRepository interface {
	// CreateUpload registers a new upload record.
	CreateUpload(ctx context.Context, upload *model.Upload) error

	// GetUploadByID returns the upload, or nil if unknown.
	GetUploadByID(ctx context.Context, id string) (*model.Upload, error)

	// GetAllUploads lists uploads newest first.
	GetAllUploads(ctx context.Context) ([]*model.Upload, error)

	// UpdateUploadStatus sets the lifecycle status of an upload.
	UpdateUploadStatus(ctx context.Context, id, status string) error
}

// MySQLUploadRepository is the gorm-backed upload repository.
type MySQLUploadRepository struct {
	db *gorm.DB
}

// NewMySQLUploadRepository creates a new upload repository instance.
func NewMySQLUploadRepository(db *gorm.DB) *MySQLUploadRepository {
	return &MySQLUploadRepository{db: db}
}

// CreateUpload registers a new upload record.
func (r *MySQLUploadRepository) CreateUpload(ctx context.Context, upload *model.Upload) error {
	return r.db.WithContext(ctx).Create(upload).Error
}

// GetUploadByID returns the upload, or nil if unknown.
func (r *MySQLUploadRepository) GetUploadByID(ctx context.Context, id string) (*model.Upload, error) {
	var upload model.Upload
	err := r.db.WithContext(ctx).First(&upload, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &upload, nil
}

// GetAllUploads lists uploads newest first.
func (r *MySQLUploadRepository) GetAllUploads(ctx context.Context) ([]*model.Upload, error) {
	var uploads []*model.Upload
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&uploads).Error
	if err != nil {
		return nil, err
	}
	return uploads, nil
}

// UpdateUploadStatus sets the lifecycle status of an upload.
func (r *MySQLUploadRepository) UpdateUploadStatus(ctx context.Context, id, status string) error {
	return r.db.WithContext(ctx).
		Model(&model.Upload{}).
		Where("id = ?", id).
		Update("status", status).Error
}
