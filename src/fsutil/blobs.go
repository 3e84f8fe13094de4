package fsutil

import (
	"context"
	"fmt"
	"path/filepath"
)

// Blobs stores opaque byte blobs as files below a root directory.
// Missing blobs surface as errors matching fs.ErrNotExist.
type Blobs struct {
	fs   FileStore
	root string
}

func NewBlobs(fs FileStore, root string) *Blobs {
	return &Blobs{
		fs:   fs,
		root: root,
	}
}

func (b *Blobs) path(key string) string {
	return filepath.Join(b.root, filepath.FromSlash(key))
}

func (b *Blobs) Put(ctx context.Context, key string, data []byte) error {
	p := b.path(key)
	if err := b.fs.MakeDirectory(filepath.Dir(p)); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}
	return b.fs.WriteFile(p, data)
}

func (b *Blobs) Get(ctx context.Context, key string) ([]byte, error) {
	return b.fs.ReadFile(b.path(key))
}

// Delete removes the blob and, when it becomes empty, its parent directory.
func (b *Blobs) Delete(ctx context.Context, key string) error {
	p := b.path(key)
	if err := b.fs.Remove(p); err != nil {
		return err
	}
	// best effort; the directory may still hold other blobs
	_ = b.fs.Remove(filepath.Dir(p))
	return nil
}
