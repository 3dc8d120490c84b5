// Package storage keeps named workflow documents.
//
// A document is the encoded form produced by pkg/io (JSON). Backends store
// it verbatim under a name chosen by the user:
//   - file: one <name>.json per document in a directory, for the CLI
//   - memory: process-local, for tests and the throwaway server mode
//   - redis: a hash per document plus a sorted-set index
//   - mongo: one collection, one record per document
//
// # Usage
//
//	st, err := storage.Open(ctx, storage.Config{Backend: storage.BackendFile, Dir: dir})
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//
//	err = io.Save(ctx, wf, storage.Sink(st, "onboarding"), io.FormatJSON)
//	err = io.Load(ctx, wf, storage.Source(st, "onboarding"), io.FormatJSON, io.ImportOptions{})
//
// Every entry carries a SHA-256 checksum of its data. Stores returned by
// [Open] report loads and saves to the observability storage hooks, and the
// network backends retry transient failures with exponential backoff.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	fberrors "github.com/matzehuels/flowboard/pkg/errors"
	"github.com/matzehuels/flowboard/pkg/observability"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrCorrupt is returned when stored data no longer matches its checksum.
var ErrCorrupt = errors.New("checksum mismatch")

// Info describes a stored document.
type Info struct {
	Name      string    `json:"name"`
	Size      int       `json:"size"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Entry is a stored document with its data.
type Entry struct {
	Info
	Data []byte `json:"-"`
}

// Store is the interface for document storage backends.
type Store interface {
	// Get returns the named document, or an error wrapping ErrNotFound.
	Get(ctx context.Context, name string) (Entry, error)

	// Put creates or replaces the named document.
	Put(ctx context.Context, name string, data []byte) (Info, error)

	// Delete removes the named document. Deleting a missing document
	// returns an error wrapping ErrNotFound.
	Delete(ctx context.Context, name string) error

	// List returns all documents sorted by name.
	List(ctx context.Context) ([]Info, error)

	// Close releases backend resources.
	Close() error
}

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

func newInfo(name string, data []byte, at time.Time) Info {
	return Info{Name: name, Size: len(data), Checksum: Hash(data), UpdatedAt: at.UTC()}
}

func notFound(name string) error {
	return fberrors.Wrap(fberrors.ErrCodeNotFound, ErrNotFound, "document %q", name)
}

func storageErr(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if fberrors.GetCode(err) != "" {
		return err
	}
	return fberrors.Wrap(fberrors.ErrCodeStorage, err, format, args...)
}

func verify(e Entry) (Entry, error) {
	if e.Checksum != "" && e.Checksum != Hash(e.Data) {
		return Entry{}, fberrors.Wrap(fberrors.ErrCodeStorage, ErrCorrupt, "document %q", e.Name)
	}
	return e, nil
}

// Backend names accepted by [Open].
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

// Config selects and configures a backend.
type Config struct {
	Backend string      `toml:"backend"`
	Dir     string      `toml:"dir"`
	Redis   RedisConfig `toml:"redis"`
	Mongo   MongoConfig `toml:"mongo"`
}

// Open creates the configured backend wrapped with observability hooks.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Backend {
	case BackendFile, "":
		s, err = NewFileStore(cfg.Dir)
	case BackendMemory:
		s = NewMemoryStore()
	case BackendRedis:
		s, err = NewRedisStore(ctx, cfg.Redis)
	case BackendMongo:
		s, err = NewMongoStore(ctx, cfg.Mongo)
	default:
		return nil, fberrors.New(fberrors.ErrCodeUnsupported, "unsupported storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Backend, err)
	}
	backend := cfg.Backend
	if backend == "" {
		backend = BackendFile
	}
	return Instrument(s, backend), nil
}

// Instrument wraps s so that every load and save is reported to
// observability.Storage() under the given backend name. Names are checked
// before they reach the backend.
func Instrument(s Store, backend string) Store {
	return &instrumented{Store: s, backend: backend}
}

type instrumented struct {
	Store
	backend string
}

func (i *instrumented) Get(ctx context.Context, name string) (Entry, error) {
	if err := fberrors.ValidateDocumentName(name); err != nil {
		return Entry{}, err
	}
	start := time.Now()
	e, err := i.Store.Get(ctx, name)
	observability.Storage().OnLoad(ctx, i.backend, name, len(e.Data), time.Since(start), err)
	return e, err
}

func (i *instrumented) Put(ctx context.Context, name string, data []byte) (Info, error) {
	if err := fberrors.ValidateDocumentName(name); err != nil {
		return Info{}, err
	}
	start := time.Now()
	info, err := i.Store.Put(ctx, name, data)
	observability.Storage().OnSave(ctx, i.backend, name, len(data), time.Since(start), err)
	return info, err
}

func (i *instrumented) Delete(ctx context.Context, name string) error {
	if err := fberrors.ValidateDocumentName(name); err != nil {
		return err
	}
	return i.Store.Delete(ctx, name)
}
