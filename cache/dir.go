package cache

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/carbocation/orthoexpr"
	"github.com/carbocation/pfx"
)

// Dir stores entries as files under a local root directory.
type Dir struct {
	root string
}

// NewDir returns a directory-backed store rooted at root, creating it if
// needed. A leading ~ is expanded.
func NewDir(root string) (*Dir, error) {
	root, err := orthoexpr.ExpandHome(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, pfx.Err(err)
	}

	return &Dir{root: root}, nil
}

func (d *Dir) pathFor(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(k)), nil
}

func (d *Dir) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := d.pathFor(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, pfx.Err(err)
	}

	return f, nil
}

// Put writes to a temporary file in the destination directory and renames it
// into place, so readers never observe a partial entry.
func (d *Dir) Put(ctx context.Context, key string, r io.Reader) error {
	p, err := d.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return pfx.Err(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return pfx.Err(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return pfx.Err(err)
	}
	if err := tmp.Close(); err != nil {
		return pfx.Err(err)
	}

	if err := os.Rename(tmp.Name(), p); err != nil {
		return pfx.Err(err)
	}

	return nil
}
