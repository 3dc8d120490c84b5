package storage

import (
	"context"

	"github.com/matzehuels/flowboard/pkg/io"
)

// Source reads the named document from s.
func Source(s Store, name string) io.Source {
	return io.SourceFunc(func(ctx context.Context) ([]byte, error) {
		e, err := s.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		return e.Data, nil
	})
}

// Sink writes to the named document in s.
func Sink(s Store, name string) io.Sink {
	return io.SinkFunc(func(ctx context.Context, data []byte) error {
		_, err := s.Put(ctx, name, data)
		return err
	})
}
