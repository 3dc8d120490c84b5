package io

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	fberrors "github.com/matzehuels/flowboard/pkg/errors"
	"github.com/matzehuels/flowboard/pkg/workflow"
)

// Source reads an encoded document. Reading may block (a file, a remote
// store); it should honor ctx.
type Source interface {
	ReadDocument(ctx context.Context) ([]byte, error)
}

// Sink receives an encoded document.
type Sink interface {
	WriteDocument(ctx context.Context, data []byte) error
}

// SourceFunc adapts a function to [Source].
type SourceFunc func(ctx context.Context) ([]byte, error)

func (f SourceFunc) ReadDocument(ctx context.Context) ([]byte, error) { return f(ctx) }

// SinkFunc adapts a function to [Sink].
type SinkFunc func(ctx context.Context, data []byte) error

func (f SinkFunc) WriteDocument(ctx context.Context, data []byte) error { return f(ctx, data) }

// FileSource reads the document at path.
func FileSource(path string) Source {
	return SourceFunc(func(ctx context.Context) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fberrors.Wrap(fberrors.ErrCodeNotFound, err, "read %s", path)
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return data, nil
	})
}

// FileSink writes the document to path, replacing it atomically.
func FileSink(path string) Sink {
	return SinkFunc(func(ctx context.Context, data []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		tmp, err := os.CreateTemp(filepath.Dir(path), ".flowboard-*")
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		defer os.Remove(tmp.Name())
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		if err := os.Rename(tmp.Name(), path); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		return nil
	})
}

// Replacer is satisfied by *workflow.Store.
type Replacer interface {
	ReplaceAll(nodes []workflow.Node, edges []workflow.Edge) error
}

// Load reads a document from src, checks it and replaces the store's graph.
//
// Reading is the only step that may block. If ctx is done by the time the
// document is available the import is abandoned. On any failure the store is
// left untouched: decoding and checking errors are MALFORMED_DOCUMENT, a
// store rejection is IMPORT_REJECTED.
func Load(ctx context.Context, store Replacer, src Source, f Format, opts ImportOptions) error {
	data, err := src.ReadDocument(ctx)
	if err != nil {
		return err
	}
	doc, err := Unmarshal(data, f)
	if err != nil {
		return err
	}
	nodes, edges, err := Import(doc, opts)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("import abandoned: %w", err)
	}
	return store.ReplaceAll(nodes, edges)
}

// Save encodes the store's graph in format f and hands it to sink.
func Save(ctx context.Context, store Snapshotter, sink Sink, f Format) error {
	data, err := Marshal(Export(store), f)
	if err != nil {
		return fberrors.Wrap(fberrors.ErrCodeInternal, err, "export")
	}
	return sink.WriteDocument(ctx, data)
}

// ImportFile loads the document at path into store, inferring the format
// from the extension.
func ImportFile(ctx context.Context, store Replacer, path string, opts ImportOptions) error {
	f, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	return Load(ctx, store, FileSource(path), f, opts)
}

// ExportFile writes store to path, inferring the format from the extension.
func ExportFile(ctx context.Context, store Snapshotter, path string) error {
	f, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	return Save(ctx, store, FileSink(path), f)
}
