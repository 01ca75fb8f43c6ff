package bufferstore

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/wippyai/typestream/buffer"
	"github.com/wippyai/typestream/errors"
)

const bufferExt = ".tsbuf"

// Dir stores each payload as a file named by its key.
type Dir struct {
	root string
}

// NewDir opens a directory store, creating root when missing.
func NewDir(root string) (*Dir, error) {
	if root == "" {
		return nil, errors.InvalidInput(errors.PhaseStore, "directory store needs a path")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidInput, err, "creating "+root)
	}
	return &Dir{root: root}, nil
}

// Root returns the store directory.
func (d *Dir) Root() string { return d.root }

func (d *Dir) path(key string) string {
	return filepath.Join(d.root, key+bufferExt)
}

func (d *Dir) StoreBuffer(_ context.Context, meta buffer.Meta, payload []byte) error {
	key := Key(meta)
	target := d.path(key)
	if _, err := os.Stat(target); err == nil {
		return nil
	}
	obj, err := encodeObject(meta, payload)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(d.root, key+".*.tmp")
	if err != nil {
		return errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "creating buffer file")
	}
	if _, err := tmp.Write(obj); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "writing buffer file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "writing buffer file")
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "renaming buffer file")
	}
	Logger().Debug("buffer stored", zap.String("path", target), zap.Int("bytes", len(obj)))
	return nil
}

func (d *Dir) CreateLoader(_ context.Context, meta buffer.Meta) (buffer.Loader, error) {
	return newLazyLoader(meta, d.fetch), nil
}

func (d *Dir) fetch(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(d.path(key))
	if os.IsNotExist(err) {
		return nil, errors.NotFound(errors.PhaseStore, "buffer", key)
	}
	if err != nil {
		return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "reading buffer file")
	}
	return data, nil
}

func (d *Dir) Close() error { return nil }
