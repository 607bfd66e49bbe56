// Package workspace owns the on-disk layout of one upload's working
// directory. The workspace carries a canonical copy of every artifact the
// pipeline produces, so the directory alone is sufficient to reconstruct
// pipeline state without the database.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"stemdesk/core/apperr"
	"stemdesk/model"
)

// Fixed subdirectory names inside an upload workspace.
const (
	RawDirName     = "stems_raw"
	AnalysisDir    = "analysis"
	Stems8DirName  = "stems_8"
	BR864DirName   = "br864_ready"
	ExportsDirName = "exports"

	RawIndexName      = "raw_index.json"
	AnalysisIndexName = "analysis_index.json"
	StemmapName       = "stemmap.yaml"
	ReportName        = "report.md"
	ManifestName      = "manifest.md"
)

// Categories is the closed set of packageable workspace subdirectories.
var Categories = []string{ExportsDirName, Stems8DirName, BR864DirName}

// Workspace derives per-upload paths under a configured base directory.
type Workspace struct {
	baseDir string
}

// New creates a Workspace rooted at baseDir, creating it if absent.
func New(baseDir string) (*Workspace, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "create upload base directory", err)
	}
	return &Workspace{baseDir: baseDir}, nil
}

// BaseDir returns the configured base directory.
func (w *Workspace) BaseDir() string {
	return w.baseDir
}

// Dir returns the workspace root for an upload.
func (w *Workspace) Dir(uploadID string) string {
	return filepath.Join(w.baseDir, uploadID)
}

// RawDir returns the raw-material subdirectory holding the uploaded stems.
func (w *Workspace) RawDir(uploadID string) string {
	return filepath.Join(w.Dir(uploadID), RawDirName)
}

// RawIndexPath returns the scan artifact path.
func (w *Workspace) RawIndexPath(uploadID string) string {
	return filepath.Join(w.Dir(uploadID), AnalysisDir, RawIndexName)
}

// AnalysisIndexPath returns the analyze artifact path.
func (w *Workspace) AnalysisIndexPath(uploadID string) string {
	return filepath.Join(w.Dir(uploadID), AnalysisDir, AnalysisIndexName)
}

// StemmapPath returns the canonical stemmap document path.
func (w *Workspace) StemmapPath(uploadID string) string {
	return filepath.Join(w.Dir(uploadID), StemmapName)
}

// CategoryDir returns the directory a category bundles, or an error for a
// name outside the closed set.
func (w *Workspace) CategoryDir(uploadID, category string) (string, error) {
	for _, c := range Categories {
		if c == category {
			return filepath.Join(w.Dir(uploadID), c), nil
		}
	}
	return "", apperr.Newf(apperr.KindValidation, "unknown export category %q", category)
}

// BundleName returns the bundle file name for a category.
func BundleName(category string) string {
	return category + ".zip"
}

// IsBundleName reports whether name is exactly one of the closed set of
// bundle names. Anything else is rejected before touching the filesystem.
func IsBundleName(name string) bool {
	for _, c := range Categories {
		if name == BundleName(c) {
			return true
		}
	}
	return false
}

// BundlePath returns the on-workspace path of a category's bundle.
func (w *Workspace) BundlePath(uploadID, category string) string {
	return filepath.Join(w.Dir(uploadID), BundleName(category))
}

// Create makes the workspace skeleton (root and stems_raw) for a new upload.
func (w *Workspace) Create(uploadID string) error {
	if err := os.MkdirAll(w.RawDir(uploadID), 0755); err != nil {
		return apperr.Wrap(apperr.KindStorage, "create workspace", err)
	}
	return nil
}

// Remove deletes the entire workspace. Used to roll back a failed intake.
func (w *Workspace) Remove(uploadID string) error {
	return os.RemoveAll(w.Dir(uploadID))
}

// DirMap reports which named output directories currently exist, letting the
// dashboard reconstruct pipeline state from the filesystem alone.
func (w *Workspace) DirMap(uploadID string) map[string]bool {
	dirs := map[string]bool{
		RawDirName:     false,
		Stems8DirName:  false,
		BR864DirName:   false,
		ExportsDirName: false,
	}
	for name := range dirs {
		if fi, err := os.Stat(filepath.Join(w.Dir(uploadID), name)); err == nil && fi.IsDir() {
			dirs[name] = true
		}
	}
	return dirs
}

// SanitizeFilename reduces a client-supplied file name to a safe base name.
// Path separators, traversal components and hidden names are rejected rather
// than silently rewritten.
func SanitizeFilename(name string) (string, error) {
	if name == "" {
		return "", apperr.New(apperr.KindValidation, "empty file name")
	}
	// Clients on Windows may send backslash-separated paths.
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "", apperr.Newf(apperr.KindValidation, "invalid file name %q", name)
	}
	if strings.HasPrefix(base, ".") {
		return "", apperr.Newf(apperr.KindValidation, "hidden file name %q rejected", name)
	}
	return base, nil
}

// ResolveRawFile resolves a client-supplied name to a file inside the
// upload's raw-material directory, rejecting traversal.
func (w *Workspace) ResolveRawFile(uploadID, name string) (string, error) {
	base, err := SanitizeFilename(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(w.RawDir(uploadID), base), nil
}

// WriteFileAtomic writes data to path via a temp file, fsync and rename, so a
// concurrent reader never observes a partial artifact.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return apperr.Wrap(apperr.KindStorage, "create artifact directory", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "create temp artifact", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperr.Wrap(apperr.KindStorage, "write artifact", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return apperr.Wrap(apperr.KindStorage, "sync artifact", err)
	}
	if err := tmp.Close(); err != nil {
		return apperr.Wrap(apperr.KindStorage, "close artifact", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return apperr.Wrap(apperr.KindStorage, "publish artifact", err)
	}
	return nil
}

// ReadRawIndex loads and validates the scan artifact from the workspace.
func (w *Workspace) ReadRawIndex(uploadID string) (*model.RawIndex, error) {
	data, err := os.ReadFile(w.RawIndexPath(uploadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.New(apperr.KindNotFound, "raw index not found")
		}
		return nil, apperr.Wrap(apperr.KindStorage, "read raw index", err)
	}
	var idx model.RawIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "decode raw index", err)
	}
	if err := idx.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "raw index failed validation", err)
	}
	return &idx, nil
}

// ReadAnalysisIndex loads the analyze artifact from the workspace.
func (w *Workspace) ReadAnalysisIndex(uploadID string) (*model.AnalysisIndex, error) {
	data, err := os.ReadFile(w.AnalysisIndexPath(uploadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.New(apperr.KindNotFound, "analysis index not found")
		}
		return nil, apperr.Wrap(apperr.KindStorage, "read analysis index", err)
	}
	var idx model.AnalysisIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "decode analysis index", err)
	}
	return &idx, nil
}

// HasRawIndex reports whether the scan artifact exists on the workspace.
func (w *Workspace) HasRawIndex(uploadID string) bool {
	fi, err := os.Stat(w.RawIndexPath(uploadID))
	return err == nil && !fi.IsDir()
}

// HasAnalysisIndex reports whether the analyze artifact exists.
func (w *Workspace) HasAnalysisIndex(uploadID string) bool {
	fi, err := os.Stat(w.AnalysisIndexPath(uploadID))
	return err == nil && !fi.IsDir()
}

// EnsureDir creates a directory inside the upload workspace.
func (w *Workspace) EnsureDir(uploadID string, parts ...string) (string, error) {
	dir := filepath.Join(append([]string{w.Dir(uploadID)}, parts...)...)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", apperr.Wrap(apperr.KindStorage, fmt.Sprintf("create %s", dir), err)
	}
	return dir, nil
}
