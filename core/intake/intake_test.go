package intake

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"stemdesk/core/apperr"
	"stemdesk/core/workspace"
	"stemdesk/model"
)

type fakeUploadRepo struct {
	mu        sync.Mutex
	uploads   map[string]*model.Upload
	createErr error
}

func newFakeUploadRepo() *fakeUploadRepo {
	return &fakeUploadRepo{uploads: make(map[string]*model.Upload)}
}

func (r *fakeUploadRepo) CreateUpload(ctx context.Context, upload *model.Upload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
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
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Upload, 0, len(r.uploads))
	for _, u := range r.uploads {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeUploadRepo) UpdateUploadStatus(ctx context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.uploads[id]; ok {
		u.Status = status
	}
	return nil
}

func newTestService(t *testing.T, repo *fakeUploadRepo, maxFileBytes int64, maxBatch int) (*Service, *workspace.Workspace) {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	return NewService(repo, ws, maxFileBytes, maxBatch), ws
}

func batch(names ...string) []IncomingFile {
	files := make([]IncomingFile, 0, len(names))
	for _, n := range names {
		content := "data for " + n
		files = append(files, IncomingFile{
			Name:   n,
			Size:   int64(len(content)),
			Reader: strings.NewReader(content),
		})
	}
	return files
}

func TestBeginUploadStoresBatch(t *testing.T) {
	repo := newFakeUploadRepo()
	svc, ws := newTestService(t, repo, 1<<20, 100)

	upload, stored, err := svc.BeginUpload(context.Background(), batch("kick.wav", "bass.wav"), "My Pack")
	if err != nil {
		t.Fatalf("BeginUpload: %v", err)
	}
	if upload.Status != model.StatusUploaded {
		t.Errorf("status = %q, want %q", upload.Status, model.StatusUploaded)
	}
	if upload.FolderName != "My Pack" {
		t.Errorf("folderName = %q", upload.FolderName)
	}
	if upload.FileCount != 2 || len(stored) != 2 {
		t.Fatalf("fileCount = %d, stored = %d", upload.FileCount, len(stored))
	}

	// Aggregated size must equal the bytes actually on disk.
	var onDisk int64
	for _, f := range stored {
		fi, err := os.Stat(filepath.Join(ws.RawDir(upload.ID), f.Name))
		if err != nil {
			t.Fatalf("stored file missing: %v", err)
		}
		if fi.Size() != f.Size {
			t.Errorf("%s: reported %d bytes, on disk %d", f.Name, f.Size, fi.Size())
		}
		onDisk += fi.Size()
	}
	if upload.TotalSizeBytes != onDisk {
		t.Errorf("totalSize = %d, on disk %d", upload.TotalSizeBytes, onDisk)
	}

	got, _ := repo.GetUploadByID(context.Background(), upload.ID)
	if got == nil {
		t.Fatal("upload record not registered")
	}
}

func TestBeginUploadDefaultsFolderName(t *testing.T) {
	repo := newFakeUploadRepo()
	svc, _ := newTestService(t, repo, 1<<20, 100)
	upload, _, err := svc.BeginUpload(context.Background(), batch("kick.wav"), "")
	if err != nil {
		t.Fatalf("BeginUpload: %v", err)
	}
	if upload.FolderName != "Uploaded Pack" {
		t.Errorf("folderName = %q", upload.FolderName)
	}
}

func TestBeginUploadEmptyBatch(t *testing.T) {
	svc, _ := newTestService(t, newFakeUploadRepo(), 1<<20, 100)
	_, _, err := svc.BeginUpload(context.Background(), nil, "x")
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("kind = %v, want validation", apperr.KindOf(err))
	}
}

func TestBeginUploadBatchCap(t *testing.T) {
	svc, _ := newTestService(t, newFakeUploadRepo(), 1<<20, 2)
	_, _, err := svc.BeginUpload(context.Background(), batch("a.wav", "b.wav", "c.wav"), "x")
	if apperr.KindOf(err) != apperr.KindTooLarge {
		t.Errorf("kind = %v, want too_large", apperr.KindOf(err))
	}
}

func TestBeginUploadFileSizeCap(t *testing.T) {
	repo := newFakeUploadRepo()
	svc, ws := newTestService(t, repo, 8, 100)

	files := []IncomingFile{{
		Name:   "big.wav",
		Size:   4, // lies about its size; the stream is what counts
		Reader: strings.NewReader("way more than eight bytes"),
	}}
	_, _, err := svc.BeginUpload(context.Background(), files, "x")
	if apperr.KindOf(err) != apperr.KindTooLarge {
		t.Fatalf("kind = %v, want too_large", apperr.KindOf(err))
	}
	assertNoWorkspaces(t, ws)
	if len(repo.uploads) != 0 {
		t.Error("upload registered despite oversized file")
	}
}

func TestBeginUploadRejectsCollidingNames(t *testing.T) {
	repo := newFakeUploadRepo()
	svc, ws := newTestService(t, repo, 1<<20, 100)

	// Distinct batch entries whose names sanitize to the same stored name
	// would silently overwrite each other and desync the registered counts.
	_, _, err := svc.BeginUpload(context.Background(), batch("a/kick.wav", "b/kick.wav"), "x")
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("kind = %v, want validation", apperr.KindOf(err))
	}
	assertNoWorkspaces(t, ws)
	if len(repo.uploads) != 0 {
		t.Error("upload registered despite colliding file names")
	}
}

func TestBeginUploadRejectsBadName(t *testing.T) {
	repo := newFakeUploadRepo()
	svc, ws := newTestService(t, repo, 1<<20, 100)

	files := append(batch("ok.wav"), IncomingFile{
		Name:   ".hidden.wav",
		Size:   4,
		Reader: strings.NewReader("data"),
	})
	_, _, err := svc.BeginUpload(context.Background(), files, "x")
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("kind = %v, want validation", apperr.KindOf(err))
	}
	// The already-stored ok.wav must be rolled back with the workspace.
	assertNoWorkspaces(t, ws)
	if len(repo.uploads) != 0 {
		t.Error("upload registered despite rejected file name")
	}
}

func TestBeginUploadRollsBackOnRegistrationFailure(t *testing.T) {
	repo := newFakeUploadRepo()
	repo.createErr = errors.New("db down")
	svc, ws := newTestService(t, repo, 1<<20, 100)

	_, _, err := svc.BeginUpload(context.Background(), batch("kick.wav"), "x")
	if apperr.KindOf(err) != apperr.KindStorage {
		t.Fatalf("kind = %v, want storage", apperr.KindOf(err))
	}
	assertNoWorkspaces(t, ws)
}

func assertNoWorkspaces(t *testing.T, ws *workspace.Workspace) {
	t.Helper()
	entries, err := os.ReadDir(ws.BaseDir())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace left behind after failed intake: %d entries", len(entries))
	}
}
