package export

import (
	"archive/zip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"stemdesk/core/analyzer"
	"stemdesk/core/apperr"
	"stemdesk/core/pipeline"
	"stemdesk/core/workspace"
	"stemdesk/model"
)

type fakeUploadRepo struct {
	mu      sync.Mutex
	uploads map[string]*model.Upload
}

func newFakeUploadRepo(uploads ...*model.Upload) *fakeUploadRepo {
	r := &fakeUploadRepo{uploads: make(map[string]*model.Upload)}
	for _, u := range uploads {
		cp := *u
		r.uploads[u.ID] = &cp
	}
	return r
}

func (r *fakeUploadRepo) CreateUpload(ctx context.Context, upload *model.Upload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *upload
	r.uploads[upload.ID] = &cp
	return nil
}

func (r *fakeUploadRepo) GetUploadByID(ctx context.Context, id string) (*model.Upload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.uploads[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUploadRepo) GetAllUploads(ctx context.Context) ([]*model.Upload, error) {
	return nil, nil
}

func (r *fakeUploadRepo) UpdateUploadStatus(ctx context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.uploads[id]; ok {
		u.Status = status
	}
	return nil
}

func (r *fakeUploadRepo) status(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.uploads[id]; ok {
		return u.Status
	}
	return ""
}

type fakeExportRepo struct {
	mu      sync.Mutex
	exports []*model.Export
}

func (r *fakeExportRepo) CreateExport(ctx context.Context, export *model.Export) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *export
	r.exports = append(r.exports, &cp)
	return nil
}

func (r *fakeExportRepo) GetExportsByUploadID(ctx context.Context, uploadID string) ([]*model.Export, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Export
	for _, e := range r.exports {
		if e.UploadID == uploadID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeRanker struct {
	err   error
	topN  int
	calls int
}

func (f *fakeRanker) Rank(ctx context.Context, analysisIndexPath, outDir string, topN int, progress analyzer.Progress) error {
	f.calls++
	f.topN = topN
	if f.err != nil {
		return f.err
	}
	if progress != nil {
		progress(100)
	}
	if err := os.WriteFile(filepath.Join(outDir, "01_kick.wav"), []byte("riff"), 0644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outDir, workspace.ReportName), []byte("# Top picks\n"), 0644)
}

type fakeMirror struct {
	mu      sync.Mutex
	objects []string
	err     error
}

func (f *fakeMirror) MirrorBundle(ctx context.Context, localPath, objectName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.objects = append(f.objects, objectName)
	return nil
}

type fixture struct {
	mgr     *Manager
	uploads *fakeUploadRepo
	exports *fakeExportRepo
	ranker  *fakeRanker
	mirror  *fakeMirror
	ws      *workspace.Workspace
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.Create("u1"); err != nil {
		t.Fatal(err)
	}
	uploads := newFakeUploadRepo(&model.Upload{
		ID:         "u1",
		FolderPath: ws.Dir("u1"),
		Status:     model.StatusAnalyzed,
	})
	exports := &fakeExportRepo{}
	ranker := &fakeRanker{}
	mirror := &fakeMirror{}
	mgr := NewManager(uploads, exports, ws, ranker, pipeline.NewMemoryLock(), pipeline.NewHub(), mirror)
	return &fixture{mgr: mgr, uploads: uploads, exports: exports, ranker: ranker, mirror: mirror, ws: ws}
}

func (f *fixture) writeAnalysisIndex(t *testing.T) {
	t.Helper()
	data, err := json.Marshal(model.AnalysisIndex{Root: workspace.RawDirName})
	if err != nil {
		t.Fatal(err)
	}
	if err := workspace.WriteFileAtomic(f.ws.AnalysisIndexPath("u1"), data); err != nil {
		t.Fatal(err)
	}
}

func TestExportTopNValidatesN(t *testing.T) {
	f := newFixture(t)
	for _, n := range []int{0, -3} {
		_, err := f.mgr.ExportTopN(context.Background(), "u1", n)
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Errorf("n=%d: kind = %v, want validation", n, apperr.KindOf(err))
		}
	}
}

func TestExportTopNRequiresAnalysis(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.ExportTopN(context.Background(), "u1", 10)
	if apperr.KindOf(err) != apperr.KindPrecondition {
		t.Errorf("kind = %v, want precondition", apperr.KindOf(err))
	}
	if f.ranker.calls != 0 {
		t.Error("ranker invoked without analysis artifact")
	}
}

func TestExportTopN(t *testing.T) {
	f := newFixture(t)
	f.writeAnalysisIndex(t)

	report, err := f.mgr.ExportTopN(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("ExportTopN: %v", err)
	}
	if report != "# Top picks\n" {
		t.Errorf("report = %q", report)
	}
	if f.ranker.topN != 5 {
		t.Errorf("ranker got topN = %d", f.ranker.topN)
	}
	if f.uploads.status("u1") != model.StatusExported {
		t.Errorf("status = %q, want exported", f.uploads.status("u1"))
	}

	recs, _ := f.exports.GetExportsByUploadID(context.Background(), "u1")
	if len(recs) != 1 || recs[0].ExportType != model.ExportTypeTopN {
		t.Fatalf("export records = %+v", recs)
	}
	var payload struct {
		TopN   int    `json:"topN"`
		Report string `json:"report"`
	}
	if err := json.Unmarshal([]byte(recs[0].ManifestJSON), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.TopN != 5 || payload.Report == "" {
		t.Errorf("manifest payload = %+v", payload)
	}
}

func TestExportTopNFailureRecordsMarker(t *testing.T) {
	f := newFixture(t)
	f.writeAnalysisIndex(t)
	f.ranker.err = apperr.New(apperr.KindCollaborator, "export exited 1")

	_, err := f.mgr.ExportTopN(context.Background(), "u1", 10)
	if apperr.KindOf(err) != apperr.KindCollaborator {
		t.Fatalf("kind = %v", apperr.KindOf(err))
	}
	if f.uploads.status("u1") != model.StatusExportFailed {
		t.Errorf("status = %q, want export-failed", f.uploads.status("u1"))
	}
	if len(f.exports.exports) != 0 {
		t.Error("export record appended despite failure")
	}
}

func TestExportTopNOutputDirFailureRecordsMarker(t *testing.T) {
	f := newFixture(t)
	f.writeAnalysisIndex(t)
	// A regular file where the exports directory belongs makes EnsureDir fail
	// after the in-progress status is already written.
	if err := os.WriteFile(filepath.Join(f.ws.Dir("u1"), workspace.ExportsDirName), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := f.mgr.ExportTopN(context.Background(), "u1", 10)
	if err == nil {
		t.Fatal("expected output directory failure")
	}
	if f.uploads.status("u1") != model.StatusExportFailed {
		t.Errorf("status = %q, want export-failed", f.uploads.status("u1"))
	}
	if f.ranker.calls != 0 {
		t.Error("ranker invoked without an output directory")
	}
}

func TestPackageDirectoryRequiresSource(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.PackageDirectory(context.Background(), "u1", workspace.Stems8DirName)
	if apperr.KindOf(err) != apperr.KindPrecondition {
		t.Errorf("kind = %v, want precondition", apperr.KindOf(err))
	}
	if _, err := f.mgr.PackageDirectory(context.Background(), "u1", "stems_raw"); apperr.KindOf(err) != apperr.KindValidation {
		t.Error("uploaded raw material must not be packageable")
	}
}

func TestPackageDirectory(t *testing.T) {
	f := newFixture(t)
	dir, err := f.ws.EnsureDir("u1", workspace.Stems8DirName, "1_kick")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "kick.wav"), []byte("riff data"), 0644); err != nil {
		t.Fatal(err)
	}

	handle, err := f.mgr.PackageDirectory(context.Background(), "u1", workspace.Stems8DirName)
	if err != nil {
		t.Fatalf("PackageDirectory: %v", err)
	}
	if handle.BundleName != "stems_8.zip" {
		t.Errorf("bundleName = %q", handle.BundleName)
	}
	if handle.DownloadPath != "/download/u1/stems_8.zip" {
		t.Errorf("downloadPath = %q", handle.DownloadPath)
	}
	if handle.SizeBytes <= 0 {
		t.Errorf("size = %d", handle.SizeBytes)
	}

	// The archive is a readable zip holding the materialized file.
	zr, err := zip.OpenReader(f.ws.BundlePath("u1", workspace.Stems8DirName))
	if err != nil {
		t.Fatalf("open bundle: %v", err)
	}
	defer zr.Close()
	found := false
	for _, zf := range zr.File {
		if zf.Name == "1_kick/kick.wav" {
			found = true
		}
		if strings.Contains(zf.Name, `\`) {
			t.Errorf("non-slash separator in entry %q", zf.Name)
		}
	}
	if !found {
		t.Errorf("1_kick/kick.wav missing from bundle")
	}

	recs, _ := f.exports.GetExportsByUploadID(context.Background(), "u1")
	if len(recs) != 1 || recs[0].ExportType != "bundle-stems_8" {
		t.Fatalf("export records = %+v", recs)
	}
	if len(f.mirror.objects) != 1 || f.mirror.objects[0] != "bundles/u1/stems_8.zip" {
		t.Errorf("mirrored objects = %v", f.mirror.objects)
	}
}

func TestPackageDirectoryOverwritesPriorBundle(t *testing.T) {
	f := newFixture(t)
	dir, err := f.ws.EnsureDir("u1", workspace.ExportsDirName)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.wav"), []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mgr.PackageDirectory(context.Background(), "u1", workspace.ExportsDirName); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "b.wav"), []byte("b"), 0644); err != nil {
		t.Fatal(err)
	}
	handle, err := f.mgr.PackageDirectory(context.Background(), "u1", workspace.ExportsDirName)
	if err != nil {
		t.Fatalf("repackage: %v", err)
	}

	zr, err := zip.OpenReader(f.ws.BundlePath("u1", workspace.ExportsDirName))
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	if len(zr.File) != 2 {
		t.Errorf("entries = %d, want 2 after repackage", len(zr.File))
	}
	if handle.SizeBytes <= 0 {
		t.Errorf("size = %d", handle.SizeBytes)
	}
}

func TestPackageDirectoryMirrorFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.mirror.err = apperr.New(apperr.KindStorage, "bucket unreachable")
	dir, err := f.ws.EnsureDir("u1", workspace.ExportsDirName)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.wav"), []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mgr.PackageDirectory(context.Background(), "u1", workspace.ExportsDirName); err != nil {
		t.Fatalf("mirror failure must not fail packaging: %v", err)
	}
}

func TestRetrieve(t *testing.T) {
	f := newFixture(t)

	// Names outside the closed set never reach the filesystem.
	for _, name := range []string{"", "../../etc/passwd", "stems_raw.zip", "exports.zip.bak"} {
		_, err := f.mgr.Retrieve(context.Background(), "u1", name)
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Errorf("Retrieve(%q) kind = %v, want validation", name, apperr.KindOf(err))
		}
	}

	// Valid name but never packaged.
	_, err := f.mgr.Retrieve(context.Background(), "u1", "exports.zip")
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("kind = %v, want not_found", apperr.KindOf(err))
	}

	dir, err := f.ws.EnsureDir("u1", workspace.ExportsDirName)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.wav"), []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mgr.PackageDirectory(context.Background(), "u1", workspace.ExportsDirName); err != nil {
		t.Fatal(err)
	}

	path, err := f.mgr.Retrieve(context.Background(), "u1", "exports.zip")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("retrieved path unreadable: %v", err)
	}

	// Unknown upload.
	if _, err := f.mgr.Retrieve(context.Background(), "ghost", "exports.zip"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("ghost upload kind = %v, want not_found", apperr.KindOf(err))
	}
}
