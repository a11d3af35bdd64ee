// Package store defines bucse's Object Store Interface (spec §4.1, C1): the
// capability set the rest of the core uses to read and write immutable blobs
// without caring whether they live on a local directory, an SFTP server, or
// an S3 bucket.
package store

import (
	"context"

	bucseerrors "github.com/bchodorowski/bucse/pkg/errors"
)

// MaxControlBlobBytes bounds repository.json / repository (§7 CapacityError).
const MaxControlBlobBytes = 1 << 20

// ActionAddedFunc is invoked by a tickable Destination whenever it discovers
// one or more new action files. files lists the storage names the reconciler
// has not yet ingested; more reports whether additional files remain in this
// discovery batch and the callback will be invoked again before ingestion
// should proceed (spec §4.6 step 3).
type ActionAddedFunc func(ctx context.Context, files []string, more bool) error

// Destination is the capability-set a concrete object store backend exposes
// (spec §4.1). Implementations: local (file:// and bare paths), sftp
// (ssh://), s3 (s3://, an [EXPANSION] additive scheme).
type Destination interface {
	// Init resolves backend-specific setup (authentication, path templates)
	// from a parsed URL. Called once before any other method.
	Init(ctx context.Context, rawURL string) error

	// CreateDirs idempotent-ish-initializes a brand-new repository layout.
	// Fails if the control blobs already exist (used by bucse-init only).
	CreateDirs(ctx context.Context) error

	// PutStorageFile writes an immutable named object under the storage
	// namespace. Fails if name already exists.
	PutStorageFile(ctx context.Context, name string, data []byte) error
	// GetStorageFile reads a whole storage object.
	GetStorageFile(ctx context.Context, name string) ([]byte, error)

	// AddActionFile deposits an immutable event under the actions namespace
	// and records name as already-seen so it is never re-ingested by this
	// destination's own polling.
	AddActionFile(ctx context.Context, name string, data []byte) error
	// ListActionFiles lists all action object names currently in the store.
	ListActionFiles(ctx context.Context) ([]string, error)

	// PutRepositoryJSONFile / GetRepositoryJSONFile is the plaintext control blob.
	PutRepositoryJSONFile(ctx context.Context, data []byte) error
	GetRepositoryJSONFile(ctx context.Context) ([]byte, error)
	// PutRepositoryFile / GetRepositoryFile is the encrypted control blob.
	PutRepositoryFile(ctx context.Context, data []byte) error
	GetRepositoryFile(ctx context.Context) ([]byte, error)

	// SetActionAddedCallback registers the reconciler's ingestion callback.
	SetActionAddedCallback(cb ActionAddedFunc)

	// IsTickable reports whether Tick should be called periodically. All
	// three backends (local, SSH, S3) return true and discover new action
	// files on the 1Hz tick.
	IsTickable() bool
	// Tick is invoked at ~1Hz by the concurrency harness when IsTickable is
	// true. Implementations should list new action files and invoke the
	// registered callback.
	Tick(ctx context.Context) error

	// Close releases any held resources (connections, file handles).
	Close() error
}

// ErrExists, ErrNotFound, ErrStoreRead, ErrStoreWrite, and ErrTooLarge are
// shared error constructors used by every Destination implementation so the
// §7 error taxonomy is applied consistently regardless of backend.

func ErrExists(component, what string) error {
	return bucseerrors.New(bucseerrors.ErrCodeExists, what+" already exists").WithComponent(component)
}

func ErrNotFound(component, what string) error {
	return bucseerrors.New(bucseerrors.ErrCodeNotFound, what+" not found").WithComponent(component)
}

func ErrStoreRead(component string, cause error) error {
	return bucseerrors.New(bucseerrors.ErrCodeStoreRead, "store read failed").WithComponent(component).WithCause(cause)
}

func ErrStoreWrite(component string, cause error) error {
	return bucseerrors.New(bucseerrors.ErrCodeStoreWrite, "store write failed").WithComponent(component).WithCause(cause)
}

func ErrTooLarge(component, what string) error {
	return bucseerrors.New(bucseerrors.ErrCodeTooLarge, what+" exceeds size limit").WithComponent(component)
}

// Scheme dispatch (file://, ssh://, s3://, bare path) lives in internal/repo,
// which is free to import all three backend packages without creating an
// import cycle back into this package.
