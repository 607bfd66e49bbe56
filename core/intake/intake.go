// Package intake accepts a batch of uploaded stem files, stores them into an
// isolated workspace and registers the upload record. The record is written
// only after every file is confirmed durable; any failure mid-batch removes
// the partial workspace so no registered upload ever references missing files.
package intake

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"stemdesk/core/apperr"
	"stemdesk/core/workspace"
	"stemdesk/logger"
	"stemdesk/model"
	"stemdesk/repository"
)

// IncomingFile is one file in an upload batch.
type IncomingFile struct {
	Name   string
	Size   int64
	Reader io.Reader
}

// FileInfo describes one stored file in the intake response.
type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Service performs upload intake.
type Service struct {
	uploads      repository.UploadRepository
	ws           *workspace.Workspace
	maxFileBytes int64
	maxBatchSize int
}

// NewService creates an intake Service.
func NewService(uploads repository.UploadRepository, ws *workspace.Workspace, maxFileBytes int64, maxBatchSize int) *Service {
	return &Service{
		uploads:      uploads,
		ws:           ws,
		maxFileBytes: maxFileBytes,
		maxBatchSize: maxBatchSize,
	}
}

// BeginUpload allocates a fresh upload, streams the batch into its workspace
// and registers the upload record with status "uploaded".
func (s *Service) BeginUpload(ctx context.Context, files []IncomingFile, folderName string) (*model.Upload, []FileInfo, error) {
	if len(files) == 0 {
		return nil, nil, apperr.New(apperr.KindValidation, "empty upload batch")
	}
	if len(files) > s.maxBatchSize {
		return nil, nil, apperr.Newf(apperr.KindTooLarge, "batch of %d files exceeds the %d file cap", len(files), s.maxBatchSize)
	}
	if folderName == "" {
		folderName = "Uploaded Pack"
	}

	uploadID := uuid.NewString()
	if err := s.ws.Create(uploadID); err != nil {
		return nil, nil, err
	}

	stored, totalSize, err := s.storeBatch(uploadID, files)
	if err != nil {
		// Whole-batch rollback: a registered upload must never reference a
		// workspace with missing files.
		if rmErr := s.ws.Remove(uploadID); rmErr != nil {
			logger.Error("rollback workspace after failed intake",
				logger.String("uploadId", uploadID), logger.ErrorField(rmErr))
		}
		return nil, nil, err
	}

	upload := &model.Upload{
		ID:             uploadID,
		FolderPath:     s.ws.Dir(uploadID),
		FolderName:     folderName,
		FileCount:      len(stored),
		TotalSizeBytes: totalSize,
		Status:         model.StatusUploaded,
	}
	if err := s.uploads.CreateUpload(ctx, upload); err != nil {
		if rmErr := s.ws.Remove(uploadID); rmErr != nil {
			logger.Error("rollback workspace after failed registration",
				logger.String("uploadId", uploadID), logger.ErrorField(rmErr))
		}
		return nil, nil, apperr.Wrap(apperr.KindStorage, "register upload", err)
	}

	logger.Info("upload registered",
		logger.String("uploadId", uploadID),
		logger.String("folderName", folderName),
		logger.Int("fileCount", len(stored)),
		logger.Int64("totalSize", totalSize))

	return upload, stored, nil
}

func (s *Service) storeBatch(uploadID string, files []IncomingFile) ([]FileInfo, int64, error) {
	rawDir := s.ws.RawDir(uploadID)
	stored := make([]FileInfo, 0, len(files))
	seen := make(map[string]struct{}, len(files))
	var totalSize int64

	for _, f := range files {
		if f.Size > s.maxFileBytes {
			return nil, 0, apperr.Newf(apperr.KindTooLarge, "file %q exceeds the %d byte cap", f.Name, s.maxFileBytes)
		}
		name, err := workspace.SanitizeFilename(f.Name)
		if err != nil {
			return nil, 0, err
		}
		// Sanitizing drops any directory prefix, so two batch entries can
		// collapse to the same stored name. Overwriting would desync the
		// registered counts from the workspace.
		if _, dup := seen[name]; dup {
			return nil, 0, apperr.Newf(apperr.KindValidation, "duplicate file name %q in batch", name)
		}
		seen[name] = struct{}{}

		written, err := s.storeFile(filepath.Join(rawDir, name), f.Reader)
		if err != nil {
			return nil, 0, err
		}
		if written > s.maxFileBytes {
			return nil, 0, apperr.Newf(apperr.KindTooLarge, "file %q exceeds the %d byte cap", f.Name, s.maxFileBytes)
		}

		stored = append(stored, FileInfo{Name: name, Size: written})
		totalSize += written
	}
	return stored, totalSize, nil
}

// storeFile streams one file to disk and fsyncs it, returning the byte count
// actually written. Declared size is advisory; the on-disk count is what the
// upload record aggregates.
func (s *Service) storeFile(path string, r io.Reader) (int64, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStorage, "create stem file", err)
	}

	// Cap the copy one byte past the limit so oversized streams are detected
	// without writing unbounded data.
	written, err := io.Copy(out, io.LimitReader(r, s.maxFileBytes+1))
	if err != nil {
		out.Close()
		return 0, apperr.Wrap(apperr.KindStorage, "write stem file", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return 0, apperr.Wrap(apperr.KindStorage, "sync stem file", err)
	}
	if err := out.Close(); err != nil {
		return 0, apperr.Wrap(apperr.KindStorage, "close stem file", err)
	}
	return written, nil
}
