// Package repo implements bucse's Repository Lifecycle and Concurrency
// Harness (spec §4.9/§4.10, C9/C10): opening and initializing a repository
// against any Destination, and the single coarse mutex plus background tick
// goroutine that every VFS operation serializes through.
//
// Grounded on the teacher's client.go lifecycle (Open/Close, a single
// client-wide mutex guarding its in-memory cache and backend handle) and its
// background refresh goroutine, generalized from "S3 client" to "bucse
// repository" and from "refresh the metadata cache" to "tick the
// destination and ingest newly discovered actions."
package repo

import (
	"context"
	"sync"
	"time"

	"github.com/bchodorowski/bucse/internal/action"
	"github.com/bchodorowski/bucse/internal/block"
	"github.com/bchodorowski/bucse/internal/bucselog"
	"github.com/bchodorowski/bucse/internal/cache"
	"github.com/bchodorowski/bucse/internal/config"
	"github.com/bchodorowski/bucse/internal/crypto"
	"github.com/bchodorowski/bucse/internal/filesystem"
	"github.com/bchodorowski/bucse/internal/reconciler"
	"github.com/bchodorowski/bucse/internal/store"
	bucseerrors "github.com/bchodorowski/bucse/pkg/errors"
	"github.com/bchodorowski/bucse/pkg/metrics"
)

const defaultPollInterval = time.Second

// Repository ties together the Object Store, Cipher, Block Engine, Action
// Log, and Filesystem Projection behind a single coarse mutex (spec §4.10:
// "every externally-invoked VFS operation acquires the mutex on entry and
// releases it on exit"). Callers reach the projection, block engine, and
// action log only while holding Lock.
type Repository struct {
	mu sync.Mutex

	Store      store.Destination
	Cipher     crypto.Cipher
	Passphrase string
	Cache      *cache.Cache
	Block      *block.Engine
	Log        *reconciler.Log
	Projection *filesystem.Projection
	ReadOnly   bool

	Name    string
	Comment string

	Logger  *bucselog.Logger
	Metrics *metrics.Registry

	pollInterval time.Duration
	shutdown     chan struct{}
	tickDone     chan struct{}

	prevCacheStats      cache.Stats
	prevIngestedBatches int64
}

// Lock acquires the repository's coarse mutex. Every operations-layer entry
// point must call Lock before touching Projection/Log/Block and Unlock on
// every return path (spec §4.10).
func (r *Repository) Lock() { r.mu.Lock() }

// Unlock releases the coarse mutex acquired by Lock.
func (r *Repository) Unlock() { r.mu.Unlock() }

// Init creates a brand-new repository at rawURL (spec §4.9, used by
// bucse-init): lays out the destination's empty storage/actions namespaces,
// writes the plaintext repository.json and the encrypted repository blob,
// and does not start the concurrency harness.
func Init(ctx context.Context, rawURL, name, comment, cipherName, passphrase string) error {
	dest, err := OpenDestination(ctx, rawURL)
	if err != nil {
		return err
	}
	defer dest.Close()

	cipher, err := crypto.ByName(cipherName)
	if err != nil {
		return err
	}
	if cipher.NeedsPassphrase() && passphrase == "" {
		return bucseerrors.New(bucseerrors.ErrCodeMalformedJSON, "cipher "+cipherName+" requires a passphrase").
			WithComponent("repo")
	}

	if err := dest.CreateDirs(ctx); err != nil {
		return err
	}

	rj, err := encodeRepositoryJSON(RepositoryJSON{Name: name, Comment: comment, Encryption: cipher.Name()})
	if err != nil {
		return err
	}
	if err := dest.PutRepositoryJSONFile(ctx, rj); err != nil {
		return err
	}

	blob, err := encodeRepositoryBlob(RepositoryBlob{Time: time.Now().UnixMicro()})
	if err != nil {
		return err
	}
	ciphertext, err := cipher.Encrypt(blob, passphrase)
	if err != nil {
		return bucseerrors.New(bucseerrors.ErrCodeInternal, "failed to encrypt repository blob").
			WithComponent("repo").WithCause(err)
	}
	return dest.PutRepositoryFile(ctx, ciphertext)
}

// Mount opens an existing repository per cfg (spec §4.9, used by
// bucse-mount): reads both control blobs, resolves the cipher named in
// repository.json, builds the projection/cache/block engine/action log, does
// an initial full ingest of every action file in the store, and starts the
// background tick goroutine. Callers must call Unmount when done.
func Mount(ctx context.Context, cfg *config.Configuration) (*Repository, error) {
	dest, err := OpenDestination(ctx, cfg.Repository)
	if err != nil {
		return nil, err
	}

	rjData, err := dest.GetRepositoryJSONFile(ctx)
	if err != nil {
		dest.Close()
		return nil, err
	}
	rj, err := decodeRepositoryJSON(rjData)
	if err != nil {
		dest.Close()
		return nil, err
	}

	cipher, err := crypto.ByName(rj.Encryption)
	if err != nil {
		dest.Close()
		return nil, err
	}
	if cipher.NeedsPassphrase() && cfg.Passphrase == "" {
		dest.Close()
		return nil, bucseerrors.New(bucseerrors.ErrCodeMalformedJSON, "repository requires a passphrase").
			WithComponent("repo")
	}

	blobCiphertext, err := dest.GetRepositoryFile(ctx)
	if err != nil {
		dest.Close()
		return nil, err
	}
	blobPlain, err := cipher.Decrypt(blobCiphertext, cfg.Passphrase)
	if err != nil {
		dest.Close()
		return nil, bucseerrors.New(bucseerrors.ErrCodeDecryptFailed, "failed to decrypt repository blob").
			WithComponent("repo").WithCause(err)
	}
	blob, err := decodeRepositoryBlob(blobPlain)
	if err != nil {
		dest.Close()
		return nil, err
	}

	proj := filesystem.New(microsToTime(blob.Time))
	c := cache.New()

	decrypt := func(ciphertext []byte) ([]byte, error) {
		return cipher.Decrypt(ciphertext, cfg.Passphrase)
	}
	log := reconciler.New(proj, dest, decrypt)

	pollInterval := defaultPollInterval
	if cfg.PollIntervalSeconds > 0 {
		pollInterval = time.Duration(cfg.PollIntervalSeconds) * time.Second
	}

	reg := metrics.New()
	if cfg.MetricsListenAddr != "" {
		if err := reg.Start(cfg.MetricsListenAddr); err != nil {
			dest.Close()
			return nil, bucseerrors.New(bucseerrors.ErrCodeInternal, "failed to start metrics listener").
				WithComponent("repo").WithCause(err)
		}
	}

	r := &Repository{
		Store:        dest,
		Cipher:       cipher,
		Passphrase:   cfg.Passphrase,
		Cache:        c,
		Block:        block.New(dest, cipher, cfg.Passphrase, c),
		Log:          log,
		Projection:   proj,
		ReadOnly:     cfg.ReadOnly,
		Name:         rj.Name,
		Comment:      rj.Comment,
		Logger:       bucselog.Default().WithComponent("repo"),
		Metrics:      reg,
		pollInterval: pollInterval,
		shutdown:     make(chan struct{}),
		tickDone:     make(chan struct{}),
	}

	dest.SetActionAddedCallback(func(cbCtx context.Context, files []string, more bool) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.Log.Ingest(cbCtx, files, more)
	})

	names, err := dest.ListActionFiles(ctx)
	if err != nil {
		dest.Close()
		return nil, err
	}
	if err := log.Ingest(ctx, names, false); err != nil {
		dest.Close()
		return nil, err
	}

	go r.tickLoop()

	return r, nil
}

// microsToTime converts a microsecond Unix timestamp, as stored in the
// repository blob, to a time.Time.
func microsToTime(us int64) time.Time { return time.UnixMicro(us) }

// tickLoop drives the destination's Tick (spec §4.10: "the concurrency
// harness invokes Tick at approximately 1Hz") until Unmount signals
// shutdown. Every tick records metrics; a destination whose IsTickable
// reports false is skipped and its Tick is not called.
func (r *Repository) tickLoop() {
	defer close(r.tickDone)
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.shutdown:
			return
		case <-ticker.C:
			r.mu.Lock()
			store := r.Store
			r.mu.Unlock()
			r.Metrics.RecordTick()
			r.reportStats()
			if !store.IsTickable() {
				continue
			}
			if err := store.Tick(context.Background()); err != nil {
				r.Logger.Warn("tick failed: %v", err)
			}
		}
	}
}

// reportStats snapshots the Block Cache and action log into Metrics. Called
// once per tick rather than on every Get/Put, since the cache's own hit/miss
// counters are cumulative and cheap to re-read (spec §4.3's Stats).
func (r *Repository) reportStats() {
	cs := r.Cache.Stats()
	r.Metrics.SetCacheSize(cs.Count, cs.Bytes)
	r.Metrics.AddCacheHits(cs.Hits - r.prevCacheStats.Hits)
	r.Metrics.AddCacheMisses(cs.Misses - r.prevCacheStats.Misses)
	r.Metrics.AddCacheEvictions(cs.Evictions - r.prevCacheStats.Evictions)
	r.prevCacheStats = cs

	r.mu.Lock()
	depth := len(r.Log.Actions)
	ingested := r.Log.IngestedBatches
	outOfOrder := r.Log.LastIngestOutOfOrder
	r.mu.Unlock()
	r.Metrics.SetActionLogDepth(depth)
	r.Metrics.RecordIngest(int(ingested-r.prevIngestedBatches), outOfOrder)
	r.prevIngestedBatches = ingested
}

// EmitAction validates, serializes, encrypts, and deposits an Action that
// writes no new blocks (AddDirectory/RemoveFile/RemoveDirectory, and the
// AddFile/EditFile a rename emits to reuse a file's existing blocks; a flush
// of new content goes through the Block Engine's Flush instead), then
// appends it to the Action Log. Callers must already hold
// Lock and must have applied the corresponding mutation to Projection
// themselves before calling this (mirrors how Flush's caller applies
// block.ApplyFlush before the Action is considered authoritative).
func (r *Repository) EmitAction(ctx context.Context, a *action.Action) error {
	if err := a.Validate(); err != nil {
		return err
	}
	batchBytes, err := action.EncodeBatch(action.Batch{a})
	if err != nil {
		return err
	}
	ciphertext, err := r.Cipher.Encrypt(batchBytes, r.Passphrase)
	if err != nil {
		return bucseerrors.New(bucseerrors.ErrCodeInternal, "failed to encrypt action").
			WithComponent("repo").WithCause(err)
	}
	name, err := block.NewStorageName()
	if err != nil {
		return err
	}
	if err := r.Store.AddActionFile(ctx, name, ciphertext); err != nil {
		return err
	}
	r.Log.Actions = append(r.Log.Actions, a)
	return nil
}

// Unmount stops the background tick goroutine, flushes every dirty file left
// in the Projection, clears the Block Cache, and closes the destination
// (spec §4.3/§4.9/§4.10 cooperative shutdown). A write() with no intervening
// flush or release must not be silently dropped by unmount.
func (r *Repository) Unmount(ctx context.Context) error {
	close(r.shutdown)
	<-r.tickDone

	r.mu.Lock()
	err := flushDirLocked(ctx, r, "/", r.Projection.Root)
	r.Cache.Clear()
	r.mu.Unlock()
	if err != nil {
		r.Logger.Warn("flush on unmount failed: %v", err)
	}

	if err := r.Metrics.Stop(ctx); err != nil {
		r.Logger.Warn("metrics listener shutdown failed: %v", err)
	}
	return r.Store.Close()
}

// flushDirLocked recursively flushes every dirty file under dir (called with
// r's mutex already held), mirroring fuseops' flushLocked: build and deposit
// the Action via the Block Engine, then apply the result to the file in
// place.
func flushDirLocked(ctx context.Context, r *Repository, path string, dir *filesystem.Dir) error {
	for name, f := range dir.Files {
		if f.DirtyFlags&(filesystem.PendingWrite|filesystem.PendingTrunc|filesystem.PendingCreate) == 0 {
			continue
		}
		childPath := joinPath(path, name)
		a, err := r.Block.Flush(ctx, f, childPath, time.Now().UnixMicro())
		if err != nil {
			return err
		}
		block.ApplyFlush(f, a)
		r.Log.Actions = append(r.Log.Actions, a)
	}
	for name, childDir := range dir.Dirs {
		if err := flushDirLocked(ctx, r, joinPath(path, name), childDir); err != nil {
			return err
		}
	}
	return nil
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}
