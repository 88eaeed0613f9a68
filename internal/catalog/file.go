package catalog

import (
	"bufio"
	"context"
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/tcgvision/cardmatch/internal/errors"
)

const (
	snapshotMagic   = "cardmatch-catalog"
	snapshotVersion = 1

	catalogFilePermissions = 0o644
	catalogDirPermissions  = 0o755
)

// snapshotHeader precedes the record list in a gob snapshot.
type snapshotHeader struct {
	Magic   string
	Version int
	Count   int
}

// FileBackend stores the catalog as a versioned gob snapshot. The snapshot is
// written to a temporary file and renamed into place so readers never see a
// partial file. An exclusive lock on <path>.lock is held until Close, so only
// one process can own the catalog file.
type FileBackend struct {
	path string
	lock *flock.Flock

	mu     sync.Mutex
	closed bool
}

// NewFileBackend creates the parent directory and takes the writer lock.
// A lock held by another process fails with a conflict.
func NewFileBackend(path string) (*FileBackend, error) {
	if path == "" {
		return nil, errors.InvalidInput("catalog", "catalog file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), catalogDirPermissions); err != nil {
		return nil, errors.FileError(err, filepath.Dir(path))
	}

	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, errors.New(err).
			Component("catalog").
			Category(errors.CategoryFileIO).
			Context("lock_path", lock.Path()).
			Build()
	}
	if !ok {
		return nil, errors.Newf("catalog %s is locked by another process", path).
			Component("catalog").
			Category(errors.CategoryConflict).
			Context("lock_path", lock.Path()).
			Build()
	}

	return &FileBackend{path: path, lock: lock}, nil
}

// Path returns the snapshot file path.
func (f *FileBackend) Path() string { return f.path }

// Name implements Backend.
func (f *FileBackend) Name() string { return "file" }

// Load implements Backend.
func (f *FileBackend) Load(context.Context) ([]Record, error) {
	file, err := os.Open(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.FileError(err, f.path)
	}
	defer file.Close()

	records, err := readSnapshot(bufio.NewReader(file))
	if err != nil {
		return nil, errors.New(err).
			Component("catalog").
			Category(errors.CategoryFileIO).
			Context("path", f.path).
			Build()
	}
	return records, nil
}

// Save implements Backend.
func (f *FileBackend) Save(ctx context.Context, records []Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return errors.Newf("file backend is closed").
			Component("catalog").
			Category(errors.CategoryFileIO).
			Build()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir, base := filepath.Split(f.path)
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return errors.FileError(err, f.path)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	if err := writeSnapshot(w, records); err != nil {
		return errors.FileError(err, tmpName)
	}
	if err := w.Flush(); err != nil {
		return errors.FileError(err, tmpName)
	}
	if err := tmp.Sync(); err != nil {
		return errors.FileError(err, tmpName)
	}
	if err := tmp.Chmod(catalogFilePermissions); err != nil {
		return errors.FileError(err, tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.FileError(err, tmpName)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return errors.FileError(err, f.path)
	}
	committed = true
	return nil
}

// Close releases the writer lock.
func (f *FileBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	if err := f.lock.Unlock(); err != nil {
		return errors.FileError(err, f.lock.Path())
	}
	return nil
}

func writeSnapshot(w io.Writer, records []Record) error {
	enc := gob.NewEncoder(w)
	if err := enc.Encode(snapshotHeader{Magic: snapshotMagic, Version: snapshotVersion, Count: len(records)}); err != nil {
		return err
	}
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return err
		}
	}
	return nil
}

func readSnapshot(r io.Reader) ([]Record, error) {
	dec := gob.NewDecoder(r)

	var hdr snapshotHeader
	if err := dec.Decode(&hdr); err != nil {
		return nil, errors.Newf("read snapshot header: %w", err).Build()
	}
	if hdr.Magic != snapshotMagic {
		return nil, errors.Newf("not a catalog snapshot (magic %q)", hdr.Magic).Build()
	}
	if hdr.Version != snapshotVersion {
		return nil, errors.Newf("unsupported catalog snapshot version %d", hdr.Version).Build()
	}
	if hdr.Count < 0 {
		return nil, errors.Newf("corrupt catalog snapshot count %d", hdr.Count).Build()
	}

	records := make([]Record, 0, min(hdr.Count, 1<<16))
	for i := range hdr.Count {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return nil, errors.Newf("read record %d of %d: %w", i, hdr.Count, err).Build()
		}
		records = append(records, rec)
	}
	return records, nil
}
