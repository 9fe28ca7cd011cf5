package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"myhelper/internal/failure"
)

// maxCreateAttempts bounds id regeneration on collision.
const maxCreateAttempts = 8

// FileStore keeps one JSON file per record at <root>/<kind>/<id>.json.
type FileStore struct {
	root    string
	stripes Stripes
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, failure.Wrap(failure.KindStorage, err, "create data dir %s", root)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(kind, id string) string {
	return filepath.Join(s.root, kind, id+".json")
}

func (s *FileStore) Get(ctx context.Context, kind, id string, out any) error {
	if err := checkKey(kind, id); err != nil {
		return err
	}
	data, err := s.read(kind, id)
	if err != nil {
		return err
	}
	return decode(kind, id, data, out)
}

func (s *FileStore) Put(ctx context.Context, kind, id string, v any) error {
	if err := checkKey(kind, id); err != nil {
		return err
	}
	data, err := encode(kind, id, v)
	if err != nil {
		return err
	}
	unlock := s.stripes.Lock(kind, id)
	defer unlock()
	return storageErr(s.writeAtomic(kind, id, data), "put", kind, id)
}

func (s *FileStore) UpdateAtomic(ctx context.Context, kind, id string, def []byte, mutate Mutator) ([]byte, error) {
	if err := checkKey(kind, id); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unlock := s.stripes.Lock(kind, id)
	defer unlock()

	cur, err := s.read(kind, id)
	if errors.Is(err, ErrNotFound) && def != nil {
		cur, err = def, nil
	}
	if err != nil {
		return nil, err
	}
	next, err := mutate(cur)
	if errors.Is(err, ErrUnchanged) {
		return cur, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.writeAtomic(kind, id, next); err != nil {
		return nil, storageErr(err, "update", kind, id)
	}
	return next, nil
}

func (s *FileStore) Create(ctx context.Context, kind string, gen func() string, v any) (string, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id := gen()
		if err := checkKey(kind, id); err != nil {
			return "", err
		}
		data, err := encode(kind, id, v)
		if err != nil {
			return "", err
		}
		err = s.writeExclusive(kind, id, data)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", storageErr(err, "create", kind, id)
		}
		return id, nil
	}
	return "", failure.Wrap(failure.KindStorage, ErrExists, "create %s: id collisions", kind)
}

func (s *FileStore) List(ctx context.Context, kind string) ([]string, error) {
	if !validName.MatchString(kind) {
		return nil, failure.New(failure.KindValidation, "invalid record kind %q", kind)
	}
	entries, err := os.ReadDir(filepath.Join(s.root, kind))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, failure.Wrap(failure.KindStorage, err, "list %s", kind)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileStore) read(kind, id string) ([]byte, error) {
	data, err := os.ReadFile(s.path(kind, id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, failure.Wrap(failure.KindStorage, err, "read %s/%s", kind, id)
	}
	return data, nil
}

// writeTemp writes data to a synced temp file next to the record.
func (s *FileStore) writeTemp(kind, id string, data []byte) (string, error) {
	dir := filepath.Join(s.root, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, "."+id+".*.tmp")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return tmp, nil
}

func (s *FileStore) writeAtomic(kind, id string, data []byte) error {
	tmp, err := s.writeTemp(kind, id, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path(kind, id)); err != nil {
		os.Remove(tmp)
		return err
	}
	return syncDir(filepath.Join(s.root, kind))
}

// writeExclusive publishes the record only if no file exists at its path.
// The hard link fails with ErrExist on collision, so readers never observe a
// partially written record.
func (s *FileStore) writeExclusive(kind, id string, data []byte) error {
	tmp, err := s.writeTemp(kind, id, data)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)
	if err := os.Link(tmp, s.path(kind, id)); err != nil {
		return err
	}
	return syncDir(filepath.Join(s.root, kind))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return err
	}
	return nil
}
