package export

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"stemdesk/core/apperr"
)

// zipDirectory recursively archives sourceDir's contents into a zip file at
// destPath, overwriting any prior archive. The archive is written to a temp
// file, fsynced and renamed into place so a reader never sees a partial
// bundle. Returns the archive size in bytes.
func zipDirectory(sourceDir, destPath string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".bundle-*")
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStorage, "create bundle temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	zw := zip.NewWriter(tmp)
	walkErr := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		entry, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(entry, src)
		return err
	})
	if walkErr != nil {
		zw.Close()
		tmp.Close()
		return 0, apperr.Wrap(apperr.KindStorage, "archive directory", walkErr)
	}

	if err := zw.Close(); err != nil {
		tmp.Close()
		return 0, apperr.Wrap(apperr.KindStorage, "finalize archive", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, apperr.Wrap(apperr.KindStorage, "sync archive", err)
	}
	fi, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		return 0, apperr.Wrap(apperr.KindStorage, "stat archive", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, apperr.Wrap(apperr.KindStorage, "close archive", err)
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		return 0, apperr.Wrap(apperr.KindStorage, "publish archive", err)
	}
	return fi.Size(), nil
}
