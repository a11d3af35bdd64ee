// Package local implements bucse's Object Store Interface (C1) over a plain
// local directory tree, grounded on the original implementation's
// destinations/dest_local.c: tickable, re-listing the action namespace on
// each 1Hz tick so one mount can discover actions appended by another.
package local

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bchodorowski/bucse/internal/store"
	"github.com/bchodorowski/bucse/pkg/utils"
)

const (
	storageDir = "storage"
	actionsDir = "actions"
	repoJSON   = "repository.json"
	repoBlob   = "repository"
)

// Destination is a local-directory bucse object store.
type Destination struct {
	mu   sync.Mutex
	root string

	seen map[string]bool
	cb   store.ActionAddedFunc
}

// New constructs an unopened local Destination.
func New() *Destination {
	return &Destination{seen: make(map[string]bool)}
}

// PathFromURL strips a "file://" prefix, leaving a bare path unchanged.
func PathFromURL(rawURL string) string {
	if p, ok := strings.CutPrefix(rawURL, "file://"); ok {
		return p
	}
	return rawURL
}

func (d *Destination) Init(_ context.Context, rawURL string) error {
	d.root = PathFromURL(rawURL)
	return nil
}

func (d *Destination) CreateDirs(_ context.Context) error {
	if _, err := os.Stat(filepath.Join(d.root, repoJSON)); err == nil {
		return store.ErrExists("store.local", "repository")
	}
	for _, sub := range []string{storageDir, actionsDir} {
		if err := os.MkdirAll(filepath.Join(d.root, sub), 0o755); err != nil {
			return store.ErrStoreWrite("store.local", err)
		}
	}
	return nil
}

// storagePath and actionPath resolve a (remote-supplied, in principle
// untrusted) storage/action name to a path under the repository root,
// rejecting names that would escape it via pkg/utils.SecureJoin — an Action
// decoded from a corrupt or hostile event file is the one place a "../../"
// style name could otherwise reach outside storage/ or actions/.
func (d *Destination) storagePath(name string) (string, error) {
	p, err := utils.SecureJoin(d.root, storageDir, name)
	if err != nil {
		return "", store.ErrTooLarge("store.local", "storage object "+name)
	}
	return p, nil
}

func (d *Destination) actionPath(name string) (string, error) {
	p, err := utils.SecureJoin(d.root, actionsDir, name)
	if err != nil {
		return "", store.ErrTooLarge("store.local", "action object "+name)
	}
	return p, nil
}

func (d *Destination) PutStorageFile(_ context.Context, name string, data []byte) error {
	path, err := d.storagePath(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return store.ErrExists("store.local", "storage object "+name)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return store.ErrStoreWrite("store.local", err)
	}
	return nil
}

func (d *Destination) GetStorageFile(_ context.Context, name string) ([]byte, error) {
	path, err := d.storagePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, store.ErrNotFound("store.local", "storage object "+name)
	}
	if err != nil {
		return nil, store.ErrStoreRead("store.local", err)
	}
	return data, nil
}

func (d *Destination) AddActionFile(_ context.Context, name string, data []byte) error {
	path, err := d.actionPath(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return store.ErrExists("store.local", "action object "+name)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return store.ErrStoreWrite("store.local", err)
	}
	d.mu.Lock()
	d.seen[name] = true
	d.mu.Unlock()
	return nil
}

func (d *Destination) ListActionFiles(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(d.root, actionsDir))
	if err != nil {
		return nil, store.ErrStoreRead("store.local", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (d *Destination) putControlFile(name string, data []byte) error {
	if len(data) > store.MaxControlBlobBytes {
		return store.ErrTooLarge("store.local", name)
	}
	if err := os.WriteFile(filepath.Join(d.root, name), data, 0o644); err != nil {
		return store.ErrStoreWrite("store.local", err)
	}
	return nil
}

func (d *Destination) getControlFile(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.root, name))
	if os.IsNotExist(err) {
		return nil, store.ErrNotFound("store.local", name)
	}
	if err != nil {
		return nil, store.ErrStoreRead("store.local", err)
	}
	return data, nil
}

func (d *Destination) PutRepositoryJSONFile(_ context.Context, data []byte) error {
	return d.putControlFile(repoJSON, data)
}
func (d *Destination) GetRepositoryJSONFile(_ context.Context) ([]byte, error) {
	return d.getControlFile(repoJSON)
}
func (d *Destination) PutRepositoryFile(_ context.Context, data []byte) error {
	return d.putControlFile(repoBlob, data)
}
func (d *Destination) GetRepositoryFile(_ context.Context) ([]byte, error) {
	return d.getControlFile(repoBlob)
}

func (d *Destination) SetActionAddedCallback(cb store.ActionAddedFunc) {
	d.mu.Lock()
	d.cb = cb
	d.mu.Unlock()
}

func (d *Destination) IsTickable() bool { return true }

// Tick re-lists the action namespace and reports any name not seen before,
// so a second mount of the same repository learns about actions appended by
// another mount without needing to be remounted.
func (d *Destination) Tick(ctx context.Context) error {
	d.mu.Lock()
	cb := d.cb
	d.mu.Unlock()
	if cb == nil {
		return nil
	}
	names, err := d.ListActionFiles(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	var fresh []string
	for _, n := range names {
		if !d.seen[n] {
			fresh = append(fresh, n)
			d.seen[n] = true
		}
	}
	d.mu.Unlock()
	if len(fresh) == 0 {
		return nil
	}
	return cb(ctx, fresh, false)
}

func (d *Destination) Close() error { return nil }

var _ store.Destination = (*Destination)(nil)
