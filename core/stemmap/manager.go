// Package stemmap manages the lifecycle of the 8-slot assignment document:
// generate from the scan artifact, validate and save edits, load, apply into
// the organized stems directory, and prepare the BR-864 hardware output. The
// canonical copy of the document lives on the workspace as stemmap.yaml so it
// survives independently of the database.
package stemmap

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"stemdesk/core/apperr"
	"stemdesk/core/pipeline"
	"stemdesk/core/transformer"
	"stemdesk/core/workspace"
	"stemdesk/logger"
	"stemdesk/model"
	"stemdesk/repository"
)

// Manager owns the stemmap document lifecycle for all uploads.
type Manager struct {
	uploads     repository.UploadRepository
	stemmaps    repository.StemmapRepository
	exports     repository.ExportRepository
	ws          *workspace.Workspace
	transformer transformer.Transformer
	lock        pipeline.StageLock
	hub         *pipeline.Hub
}

// NewManager creates a stemmap Manager.
func NewManager(
	uploads repository.UploadRepository,
	stemmaps repository.StemmapRepository,
	exports repository.ExportRepository,
	ws *workspace.Workspace,
	tf transformer.Transformer,
	lock pipeline.StageLock,
	hub *pipeline.Hub,
) *Manager {
	return &Manager{
		uploads:     uploads,
		stemmaps:    stemmaps,
		exports:     exports,
		ws:          ws,
		transformer: tf,
		lock:        lock,
		hub:         hub,
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

// Generate derives a fresh document from the scan artifact's file list plus
// the transformer's per-file type guesses. Every item starts enabled with
// slot, type, bpm and key unset. The generated document is saved immediately.
func (m *Manager) Generate(ctx context.Context, uploadID, title string, bpmMin, bpmMax int) (*model.StemmapDocument, error) {
	upload, err := m.getUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}

	rawIndex, err := m.ws.ReadRawIndex(uploadID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.New(apperr.KindPrecondition, "no scan artifact for this upload; run scan first")
		}
		return nil, err
	}

	if title == "" {
		title = "PACK"
	}
	if bpmMin == 0 {
		bpmMin = model.BPMMin
	}
	if bpmMax == 0 {
		bpmMax = model.BPMMax
	}
	if bpmMin < model.BPMMin || bpmMax > model.BPMMax || bpmMin > bpmMax {
		return nil, apperr.Newf(apperr.KindValidation, "bpm range [%d,%d] outside [%d,%d]",
			bpmMin, bpmMax, model.BPMMin, model.BPMMax)
	}

	guesses, err := m.transformer.Classify(ctx, upload.FolderPath, transformer.ClassifyOptions{
		Title:  title,
		BPMMin: bpmMin,
		BPMMax: bpmMax,
	})
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(rawIndex.Files))
	for _, f := range rawIndex.Files {
		files = append(files, f.Name)
	}
	sort.Strings(files)

	doc := &model.StemmapDocument{
		Title: title,
		Items: make([]model.StemmapItem, 0, len(files)),
	}
	for _, name := range files {
		doc.Items = append(doc.Items, model.StemmapItem{
			File:     name,
			Detected: guesses[name],
			Enabled:  true,
		})
	}

	if err := m.Save(ctx, uploadID, doc); err != nil {
		return nil, err
	}

	logger.Info("stemmap generated",
		logger.String("uploadId", uploadID),
		logger.Int("items", len(doc.Items)))
	return doc, nil
}

// Save validates the document and persists it verbatim, both as the
// canonical workspace copy and as the database record.
func (m *Manager) Save(ctx context.Context, uploadID string, doc *model.StemmapDocument) error {
	if _, err := m.getUpload(ctx, uploadID); err != nil {
		return err
	}
	if doc == nil {
		return apperr.New(apperr.KindValidation, "missing stemmap document")
	}
	if err := doc.Validate(); err != nil {
		return apperr.Wrap(apperr.KindValidation, "invalid stemmap document", err)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "encode stemmap document", err)
	}
	if err := workspace.WriteFileAtomic(m.ws.StemmapPath(uploadID), data); err != nil {
		return err
	}

	record := &model.StemmapRecord{
		ID:           uuid.NewString(),
		UploadID:     uploadID,
		StemmapYAML:  string(data),
		PackTitle:    doc.Title,
		BPM:          doc.BPM,
		KeySignature: doc.Key,
	}
	if err := m.stemmaps.SaveStemmap(ctx, record); err != nil {
		return apperr.Wrap(apperr.KindStorage, "persist stemmap record", err)
	}
	return nil
}

// Load reads the canonical workspace document, falling back to the database
// mirror when the workspace copy is gone. A document that exists nowhere is a
// not-found outcome; callers may choose to generate on that signal, the
// manager itself never does.
func (m *Manager) Load(ctx context.Context, uploadID string) (*model.StemmapDocument, error) {
	if _, err := m.getUpload(ctx, uploadID); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(m.ws.StemmapPath(uploadID))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, apperr.Wrap(apperr.KindStorage, "read stemmap document", err)
		}
		record, dbErr := m.stemmaps.GetStemmapByUploadID(ctx, uploadID)
		if dbErr != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "look up stemmap record", dbErr)
		}
		if record == nil || record.StemmapYAML == "" {
			return nil, apperr.New(apperr.KindNotFound, "stemmap not found; generate one first")
		}
		data = []byte(record.StemmapYAML)
	}

	var doc model.StemmapDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "decode stemmap document", err)
	}
	return &doc, nil
}

// Apply materializes the saved document's enabled items into the organized
// stems directory. Disabled items are skipped but stay in the document, so
// re-enabling is lossless. The document itself is never mutated by apply.
func (m *Manager) Apply(ctx context.Context, uploadID string) (*transformer.Outcome, error) {
	upload, err := m.getUpload(ctx, uploadID)
	if err != nil {
		return nil, err
	}

	mapPath := m.ws.StemmapPath(uploadID)
	if _, err := os.Stat(mapPath); err != nil {
		return nil, apperr.New(apperr.KindPrecondition, "no saved stemmap for this upload; save one first")
	}

	acquired, err := m.lock.TryAcquire(ctx, uploadID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "acquire stage lease", err)
	}
	if !acquired {
		return nil, apperr.Newf(apperr.KindConflict, "a stage is already running for upload %s", uploadID)
	}
	defer m.releaseLock(ctx, uploadID)

	if err := m.setStatus(ctx, uploadID, model.StatusApplyingStemmap); err != nil {
		return nil, err
	}

	outDir, err := m.ws.EnsureDir(uploadID, workspace.Stems8DirName)
	if err != nil {
		m.markFailed(ctx, uploadID, model.StatusApplyFailed)
		return nil, err
	}
	stop := pipeline.WatchOutputs(m.hub, uploadID, "apply-stemmap", outDir)
	outcome, err := m.transformer.Materialize(ctx, upload.FolderPath, mapPath, m.ws.RawDir(uploadID), outDir)
	stop()
	if err != nil {
		m.markFailed(ctx, uploadID, model.StatusApplyFailed)
		return nil, err
	}

	if err := m.setStatus(ctx, uploadID, model.StatusStemmapApplied); err != nil {
		// The upload must not stay "applying-stemmap" forever; try the failure
		// marker even though the status write just failed.
		m.markFailed(ctx, uploadID, model.StatusApplyFailed)
		return nil, err
	}

	logger.Info("stemmap applied",
		logger.String("uploadId", uploadID),
		logger.Int("materialized", len(outcome.Materialized)),
		logger.Int("failures", len(outcome.Failures)))
	return outcome, nil
}

// PrepareHardware converts the organized stems into the BR-864 ready format
// and appends an export record carrying the produced manifest.
func (m *Manager) PrepareHardware(ctx context.Context, uploadID string, padToLongest bool) (string, error) {
	upload, err := m.getUpload(ctx, uploadID)
	if err != nil {
		return "", err
	}

	inDir := filepath.Join(upload.FolderPath, workspace.Stems8DirName)
	if fi, statErr := os.Stat(inDir); statErr != nil || !fi.IsDir() {
		return "", apperr.New(apperr.KindPrecondition, "no organized stems for this upload; apply the stemmap first")
	}

	acquired, err := m.lock.TryAcquire(ctx, uploadID)
	if err != nil {
		return "", apperr.Wrap(apperr.KindStorage, "acquire stage lease", err)
	}
	if !acquired {
		return "", apperr.Newf(apperr.KindConflict, "a stage is already running for upload %s", uploadID)
	}
	defer m.releaseLock(ctx, uploadID)

	if err := m.setStatus(ctx, uploadID, model.StatusPreparingBR864); err != nil {
		return "", err
	}

	outDir, err := m.ws.EnsureDir(uploadID, workspace.BR864DirName)
	if err != nil {
		m.markFailed(ctx, uploadID, model.StatusBR864Failed)
		return "", err
	}
	stop := pipeline.WatchOutputs(m.hub, uploadID, "prep-br864", outDir)
	err = m.transformer.PrepareHardware(ctx, upload.FolderPath, inDir, outDir,
		transformer.HardwareOptions{PadToLongest: padToLongest})
	stop()
	if err != nil {
		m.markFailed(ctx, uploadID, model.StatusBR864Failed)
		return "", err
	}

	// The manifest is informative; its absence is not a failure.
	manifest := ""
	if data, readErr := os.ReadFile(filepath.Join(outDir, workspace.ManifestName)); readErr == nil {
		manifest = string(data)
	}

	manifestJSON, err := json.Marshal(map[string]interface{}{
		"padToLongest": padToLongest,
		"manifest":     manifest,
	})
	if err != nil {
		m.markFailed(ctx, uploadID, model.StatusBR864Failed)
		return "", apperr.Wrap(apperr.KindStorage, "encode hardware manifest", err)
	}
	record := &model.Export{
		ID:           uuid.NewString(),
		UploadID:     uploadID,
		ExportType:   model.ExportTypeBR864,
		OutputPath:   outDir,
		ManifestJSON: string(manifestJSON),
	}
	if err := m.exports.CreateExport(ctx, record); err != nil {
		m.markFailed(ctx, uploadID, model.StatusBR864Failed)
		return "", apperr.Wrap(apperr.KindStorage, "persist hardware export record", err)
	}

	if err := m.setStatus(ctx, uploadID, model.StatusBR864Ready); err != nil {
		m.markFailed(ctx, uploadID, model.StatusBR864Failed)
		return "", err
	}
	return manifest, nil
}

func (m *Manager) setStatus(ctx context.Context, uploadID, status string) error {
	if err := m.uploads.UpdateUploadStatus(ctx, uploadID, status); err != nil {
		return apperr.Wrap(apperr.KindStorage, "update upload status", err)
	}
	return nil
}

func (m *Manager) markFailed(ctx context.Context, uploadID, marker string) {
	if err := m.uploads.UpdateUploadStatus(context.WithoutCancel(ctx), uploadID, marker); err != nil {
		logger.Error("record stage failure status",
			logger.String("uploadId", uploadID),
			logger.String("marker", marker),
			logger.ErrorField(err))
	}
}

func (m *Manager) releaseLock(ctx context.Context, uploadID string) {
	if err := m.lock.Release(context.WithoutCancel(ctx), uploadID); err != nil {
		logger.Warn("release stage lease", logger.String("uploadId", uploadID), logger.ErrorField(err))
	}
}
