// Package pipeline drives the multi-stage audio-pack workflow. Each stage
// validates its preconditions, invokes the external analyzer synchronously,
// persists the produced artifact both on the workspace and in the database,
// and advances the upload's recorded status. Stages are idempotent by
// replacement: rerunning a completed stage overwrites its artifact rather
// than erroring.
package pipeline

import (
	"context"
	"encoding/json"
	"os"

	"stemdesk/core/analyzer"
	"stemdesk/core/apperr"
	"stemdesk/core/workspace"
	"stemdesk/logger"
	"stemdesk/model"
	"stemdesk/repository"

	"github.com/google/uuid"
)

// Stage names accepted by RunStage.
const (
	StageScan    = "scan"
	StageAnalyze = "analyze"
)

// StageResult is the payload a completed stage returns to the caller.
type StageResult struct {
	Stage         string                 `json:"step"`
	UploadID      string                 `json:"uploadId"`
	RawIndex      *model.RawIndex        `json:"rawIndex,omitempty"`
	Duplicates    []model.DuplicateGroup `json:"duplicates,omitempty"`
	AnalysisIndex *model.AnalysisIndex   `json:"analysisIndex,omitempty"`
	FileCount     int                    `json:"fileCount"`
	NextStage     string                 `json:"nextStep,omitempty"`
}

// Coordinator is the pipeline state machine for all uploads.
type Coordinator struct {
	uploads  repository.UploadRepository
	analyses repository.AnalysisRepository
	ws       *workspace.Workspace
	analyzer analyzer.Analyzer
	lock     StageLock
	hub      *Hub
}

// NewCoordinator creates a Coordinator with its injected collaborators.
func NewCoordinator(
	uploads repository.UploadRepository,
	analyses repository.AnalysisRepository,
	ws *workspace.Workspace,
	an analyzer.Analyzer,
	lock StageLock,
	hub *Hub,
) *Coordinator {
	return &Coordinator{
		uploads:  uploads,
		analyses: analyses,
		ws:       ws,
		analyzer: an,
		lock:     lock,
		hub:      hub,
	}
}

// Lock exposes the stage lock so managers mutating the same workspace
// (stemmap apply, export) serialize against running stages.
func (c *Coordinator) Lock() StageLock {
	return c.lock
}

// Hub exposes the progress hub.
func (c *Coordinator) Hub() *Hub {
	return c.hub
}

// RunStage validates preconditions for the requested stage, runs it to
// completion and returns its result. A stage already in flight for the same
// upload is rejected with a conflict error.
func (c *Coordinator) RunStage(ctx context.Context, uploadID, stage string) (*StageResult, error) {
	if stage != StageScan && stage != StageAnalyze {
		return nil, apperr.Newf(apperr.KindValidation, "unknown stage %q", stage)
	}

	upload, err := c.uploads.GetUploadByID(ctx, uploadID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "look up upload", err)
	}
	if upload == nil {
		return nil, apperr.Newf(apperr.KindNotFound, "upload %s not found", uploadID)
	}

	acquired, err := c.lock.TryAcquire(ctx, uploadID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "acquire stage lease", err)
	}
	if !acquired {
		return nil, apperr.Newf(apperr.KindConflict, "a stage is already running for upload %s", uploadID)
	}
	defer func() {
		if relErr := c.lock.Release(context.WithoutCancel(ctx), uploadID); relErr != nil {
			logger.Warn("release stage lease", logger.String("uploadId", uploadID), logger.ErrorField(relErr))
		}
	}()

	switch stage {
	case StageScan:
		return c.runScan(ctx, upload)
	default:
		return c.runAnalyze(ctx, upload)
	}
}

func (c *Coordinator) runScan(ctx context.Context, upload *model.Upload) (*StageResult, error) {
	rawDir := c.ws.RawDir(upload.ID)
	if fi, err := os.Stat(rawDir); err != nil || !fi.IsDir() {
		return nil, apperr.New(apperr.KindPrecondition, "raw-material directory missing for this upload")
	}

	if err := c.setStatus(ctx, upload.ID, model.StatusScanning); err != nil {
		return nil, err
	}
	c.publish(upload.ID, StageScan, EventStart, 0, "")

	outPath := c.ws.RawIndexPath(upload.ID)
	if _, err := c.ws.EnsureDir(upload.ID, workspace.AnalysisDir); err != nil {
		return nil, c.failStage(ctx, upload.ID, StageScan, model.StatusScanFailed, err)
	}

	err := c.analyzer.Scan(ctx, rawDir, outPath, c.progressFn(upload.ID, StageScan))
	if err != nil {
		return nil, c.failStage(ctx, upload.ID, StageScan, model.StatusScanFailed, err)
	}

	rawIndex, err := c.ws.ReadRawIndex(upload.ID)
	if err != nil {
		return nil, c.failStage(ctx, upload.ID, StageScan, model.StatusScanFailed, err)
	}

	// Replace the stored result wholesale. A fresh scan invalidates any
	// previously computed analysis index, so that field is cleared.
	if err := c.saveResult(ctx, upload.ID, rawIndex, nil); err != nil {
		return nil, c.failStage(ctx, upload.ID, StageScan, model.StatusScanFailed, err)
	}

	if err := c.setStatus(ctx, upload.ID, model.StatusScanned); err != nil {
		// The upload must not stay "scanning" forever; try the failure marker
		// even though the status write just failed.
		return nil, c.failStage(ctx, upload.ID, StageScan, model.StatusScanFailed, err)
	}
	c.publish(upload.ID, StageScan, EventDone, 100, "")

	logger.Info("scan stage completed",
		logger.String("uploadId", upload.ID),
		logger.Int("files", len(rawIndex.Files)),
		logger.Int("duplicateGroups", len(rawIndex.Duplicates)))

	return &StageResult{
		Stage:      StageScan,
		UploadID:   upload.ID,
		RawIndex:   rawIndex,
		Duplicates: rawIndex.Duplicates,
		FileCount:  len(rawIndex.Files),
		NextStage:  StageAnalyze,
	}, nil
}

func (c *Coordinator) runAnalyze(ctx context.Context, upload *model.Upload) (*StageResult, error) {
	if !c.ws.HasRawIndex(upload.ID) {
		return nil, apperr.New(apperr.KindPrecondition, "no raw index for this upload; run scan first")
	}

	if err := c.setStatus(ctx, upload.ID, model.StatusAnalyzing); err != nil {
		return nil, err
	}
	c.publish(upload.ID, StageAnalyze, EventStart, 0, "")

	err := c.analyzer.Analyze(ctx,
		c.ws.RawIndexPath(upload.ID),
		c.ws.AnalysisIndexPath(upload.ID),
		c.progressFn(upload.ID, StageAnalyze))
	if err != nil {
		return nil, c.failStage(ctx, upload.ID, StageAnalyze, model.StatusAnalyzeFailed, err)
	}

	rawIndex, err := c.ws.ReadRawIndex(upload.ID)
	if err != nil {
		return nil, c.failStage(ctx, upload.ID, StageAnalyze, model.StatusAnalyzeFailed, err)
	}
	analysisIndex, err := c.ws.ReadAnalysisIndex(upload.ID)
	if err != nil {
		return nil, c.failStage(ctx, upload.ID, StageAnalyze, model.StatusAnalyzeFailed, err)
	}

	if err := c.saveResult(ctx, upload.ID, rawIndex, analysisIndex); err != nil {
		return nil, c.failStage(ctx, upload.ID, StageAnalyze, model.StatusAnalyzeFailed, err)
	}

	if err := c.setStatus(ctx, upload.ID, model.StatusAnalyzed); err != nil {
		return nil, c.failStage(ctx, upload.ID, StageAnalyze, model.StatusAnalyzeFailed, err)
	}
	c.publish(upload.ID, StageAnalyze, EventDone, 100, "")

	logger.Info("analyze stage completed",
		logger.String("uploadId", upload.ID),
		logger.Int("files", len(analysisIndex.Files)))

	return &StageResult{
		Stage:         StageAnalyze,
		UploadID:      upload.ID,
		AnalysisIndex: analysisIndex,
		FileCount:     len(analysisIndex.Files),
		NextStage:     "export",
	}, nil
}

// saveResult upserts the AnalysisResult record for an upload, replacing any
// prior row wholesale.
func (c *Coordinator) saveResult(ctx context.Context, uploadID string, rawIndex *model.RawIndex, analysisIndex *model.AnalysisIndex) error {
	rawJSON, err := json.Marshal(rawIndex)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "encode raw index", err)
	}
	dupJSON, err := json.Marshal(rawIndex.Duplicates)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "encode duplicate groups", err)
	}
	result := &model.AnalysisResult{
		ID:             uuid.NewString(),
		UploadID:       uploadID,
		RawIndexJSON:   string(rawJSON),
		DuplicatesJSON: string(dupJSON),
	}
	if analysisIndex != nil {
		analysisJSON, err := json.Marshal(analysisIndex)
		if err != nil {
			return apperr.Wrap(apperr.KindStorage, "encode analysis index", err)
		}
		result.AnalysisIndexJSON = string(analysisJSON)
	}
	if err := c.analyses.SaveAnalysisResult(ctx, result); err != nil {
		return apperr.Wrap(apperr.KindStorage, "persist analysis result", err)
	}
	return nil
}

// failStage records the stage's error marker and publishes a failure event.
// The original error is returned unchanged so collaborator diagnostics
// survive to the API response.
func (c *Coordinator) failStage(ctx context.Context, uploadID, stage, marker string, cause error) error {
	// Status must reflect the failure even when the request context is gone,
	// otherwise a later read sees an eternally-running stage.
	if err := c.uploads.UpdateUploadStatus(context.WithoutCancel(ctx), uploadID, marker); err != nil {
		logger.Error("record stage failure status",
			logger.String("uploadId", uploadID),
			logger.String("marker", marker),
			logger.ErrorField(err))
	}
	c.publish(uploadID, stage, EventFailed, 0, apperr.DetailOf(cause))
	return cause
}

func (c *Coordinator) setStatus(ctx context.Context, uploadID, status string) error {
	if err := c.uploads.UpdateUploadStatus(ctx, uploadID, status); err != nil {
		return apperr.Wrap(apperr.KindStorage, "update upload status", err)
	}
	return nil
}

func (c *Coordinator) progressFn(uploadID, stage string) analyzer.Progress {
	return func(pct int) {
		c.publish(uploadID, stage, EventProgress, pct, "")
	}
}

func (c *Coordinator) publish(uploadID, stage, kind string, pct int, detail string) {
	if c.hub == nil {
		return
	}
	c.hub.Publish(Event{
		UploadID: uploadID,
		Stage:    stage,
		Kind:     kind,
		Percent:  pct,
		Detail:   detail,
	})
}
