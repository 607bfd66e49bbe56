// Package export produces downloadable results: the analyzer's top-N ranked
// export and compressed bundles of the named workspace output directories.
// Bundles are flushed to durable storage before their retrieval handle is
// returned, so callers never stream a half-written archive.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"stemdesk/core/analyzer"
	"stemdesk/core/apperr"
	"stemdesk/core/pipeline"
	"stemdesk/core/workspace"
	"stemdesk/logger"
	"stemdesk/model"
	"stemdesk/repository"
)

// Ranker is the analyzer operation this package consumes.
type Ranker interface {
	Rank(ctx context.Context, analysisIndexPath, outDir string, topN int, progress analyzer.Progress) error
}

// Mirror optionally copies finished bundles to object storage.
type Mirror interface {
	MirrorBundle(ctx context.Context, localPath, objectName string) error
}

// Handle points a caller at a finished bundle.
type Handle struct {
	BundleName   string `json:"bundleName"`
	DownloadPath string `json:"downloadPath"`
	SizeBytes    int64  `json:"size"`
}

// Manager performs exports and packaging.
type Manager struct {
	uploads repository.UploadRepository
	exports repository.ExportRepository
	ws      *workspace.Workspace
	ranker  Ranker
	lock    pipeline.StageLock
	hub     *pipeline.Hub
	mirror  Mirror // nil when no object storage is configured
}

// NewManager creates an export Manager. mirror may be nil.
func NewManager(
	uploads repository.UploadRepository,
	exports repository.ExportRepository,
	ws *workspace.Workspace,
	ranker Ranker,
	lock pipeline.StageLock,
	hub *pipeline.Hub,
	mirror Mirror,
) *Manager {
	return &Manager{
		uploads: uploads,
		exports: exports,
		ws:      ws,
		ranker:  ranker,
		lock:    lock,
		hub:     hub,
		mirror:  mirror,
	}
}

func (m *Manager) getUpload(ctx context.Context, uploadID string) (*model.Upload, error) {
	upload, err := m.uploads.GetUploadByID(ctx, uploadID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "look up upload", err)
	}
	if upload == nil {
		return nil, apperr.Newf(apperr.KindNotFound, "upload %s not found", uploadID)
	}
	return upload, nil
}

// ExportTopN runs the analyzer's ranking step bounded to n and records the
// produced report as an append-only export entry.
func (m *Manager) ExportTopN(ctx context.Context, uploadID string, n int) (string, error) {
	if n < 1 {
		return "", apperr.Newf(apperr.KindValidation, "topN must be at least 1, got %d", n)
	}
	if _, err := m.getUpload(ctx, uploadID); err != nil {
		return "", err
	}
	if !m.ws.HasAnalysisIndex(uploadID) {
		return "", apperr.New(apperr.KindPrecondition, "no analysis artifact for this upload; run analyze first")
	}

	acquired, err := m.lock.TryAcquire(ctx, uploadID)
	if err != nil {
		return "", apperr.Wrap(apperr.KindStorage, "acquire stage lease", err)
	}
	if !acquired {
		return "", apperr.Newf(apperr.KindConflict, "a stage is already running for upload %s", uploadID)
	}
	defer func() {
		if relErr := m.lock.Release(context.WithoutCancel(ctx), uploadID); relErr != nil {
			logger.Warn("release stage lease", logger.String("uploadId", uploadID), logger.ErrorField(relErr))
		}
	}()

	if err := m.setStatus(ctx, uploadID, model.StatusExporting); err != nil {
		return "", err
	}

	outDir, err := m.ws.EnsureDir(uploadID, workspace.ExportsDirName)
	if err != nil {
		m.markFailed(ctx, uploadID)
		return "", err
	}

	stop := pipeline.WatchOutputs(m.hub, uploadID, "export", outDir)
	err = m.ranker.Rank(ctx, m.ws.AnalysisIndexPath(uploadID), outDir, n, func(pct int) {
		if m.hub != nil {
			m.hub.Publish(pipeline.Event{UploadID: uploadID, Stage: "export", Kind: pipeline.EventProgress, Percent: pct})
		}
	})
	stop()
	if err != nil {
		m.markFailed(ctx, uploadID)
		return "", err
	}

	// The report is informative; its absence is not a failure.
	report := ""
	if data, readErr := os.ReadFile(filepath.Join(outDir, workspace.ReportName)); readErr == nil {
		report = string(data)
	}

	manifestJSON, err := json.Marshal(map[string]interface{}{
		"topN":   n,
		"report": report,
	})
	if err != nil {
		m.markFailed(ctx, uploadID)
		return "", apperr.Wrap(apperr.KindStorage, "encode export manifest", err)
	}
	record := &model.Export{
		ID:           uuid.NewString(),
		UploadID:     uploadID,
		ExportType:   model.ExportTypeTopN,
		OutputPath:   outDir,
		ManifestJSON: string(manifestJSON),
	}
	if err := m.exports.CreateExport(ctx, record); err != nil {
		m.markFailed(ctx, uploadID)
		return "", apperr.Wrap(apperr.KindStorage, "persist export record", err)
	}

	if err := m.setStatus(ctx, uploadID, model.StatusExported); err != nil {
		// The upload must not stay "exporting" forever; try the failure marker
		// even though the status write just failed.
		m.markFailed(ctx, uploadID)
		return "", err
	}

	logger.Info("top-n export completed", logger.String("uploadId", uploadID), logger.Int("topN", n))
	return report, nil
}

// PackageDirectory archives one of the closed set of workspace categories
// into a compressed bundle at a deterministic path, overwriting any prior
// bundle of the same category. The handle is returned only after the archive
// is durable.
func (m *Manager) PackageDirectory(ctx context.Context, uploadID, category string) (*Handle, error) {
	if _, err := m.getUpload(ctx, uploadID); err != nil {
		return nil, err
	}

	sourceDir, err := m.ws.CategoryDir(uploadID, category)
	if err != nil {
		return nil, err
	}
	if fi, statErr := os.Stat(sourceDir); statErr != nil || !fi.IsDir() {
		return nil, apperr.Newf(apperr.KindPrecondition,
			"%s directory not found; run the producing stage first", category)
	}

	bundlePath := m.ws.BundlePath(uploadID, category)
	size, err := zipDirectory(sourceDir, bundlePath)
	if err != nil {
		return nil, err
	}

	manifestJSON, err := json.Marshal(map[string]interface{}{
		"category": category,
		"size":     size,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "encode bundle manifest", err)
	}
	record := &model.Export{
		ID:           uuid.NewString(),
		UploadID:     uploadID,
		ExportType:   model.ExportTypeBundlePrefix + category,
		OutputPath:   bundlePath,
		ManifestJSON: string(manifestJSON),
	}
	if err := m.exports.CreateExport(ctx, record); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "persist bundle record", err)
	}

	if m.mirror != nil {
		objectName := fmt.Sprintf("bundles/%s/%s", uploadID, workspace.BundleName(category))
		if mirrorErr := m.mirror.MirrorBundle(ctx, bundlePath, objectName); mirrorErr != nil {
			// Mirroring is best-effort; the local bundle is the source of truth.
			logger.Warn("mirror bundle to object storage",
				logger.String("uploadId", uploadID),
				logger.String("object", objectName),
				logger.ErrorField(mirrorErr))
		}
	}

	logger.Info("bundle packaged",
		logger.String("uploadId", uploadID),
		logger.String("category", category),
		logger.Int64("size", size))

	return &Handle{
		BundleName:   workspace.BundleName(category),
		DownloadPath: fmt.Sprintf("/download/%s/%s", uploadID, workspace.BundleName(category)),
		SizeBytes:    size,
	}, nil
}

// Retrieve resolves a bundle name to its on-disk path for streaming. Names
// outside the closed bundle-name set are rejected before touching the
// filesystem, and the bundle must belong to the given upload.
func (m *Manager) Retrieve(ctx context.Context, uploadID, bundleName string) (string, error) {
	if !workspace.IsBundleName(bundleName) {
		return "", apperr.Newf(apperr.KindValidation, "invalid bundle name %q", bundleName)
	}
	upload, err := m.getUpload(ctx, uploadID)
	if err != nil {
		return "", err
	}

	path := filepath.Join(upload.FolderPath, bundleName)
	if fi, statErr := os.Stat(path); statErr != nil || fi.IsDir() {
		return "", apperr.Newf(apperr.KindNotFound, "bundle %s not found; package it first", bundleName)
	}
	return path, nil
}

func (m *Manager) setStatus(ctx context.Context, uploadID, status string) error {
	if err := m.uploads.UpdateUploadStatus(ctx, uploadID, status); err != nil {
		return apperr.Wrap(apperr.KindStorage, "update upload status", err)
	}
	return nil
}

// markFailed records the export failure marker. The marker must land even when
// the request context is gone, otherwise a later read sees an eternally-running
// export.
func (m *Manager) markFailed(ctx context.Context, uploadID string) {
	if err := m.uploads.UpdateUploadStatus(context.WithoutCancel(ctx), uploadID, model.StatusExportFailed); err != nil {
		logger.Error("record export failure status",
			logger.String("uploadId", uploadID),
			logger.ErrorField(err))
	}
}
