// Package sftp implements bucse's Object Store Interface (C1) over an SSH
// connection, grounded on rclone's backend/sftp (github.com/pkg/sftp +
// golang.org/x/crypto/ssh) and on the original destinations/dest_ssh.c.
// Like dest_ssh, it is tickable: listing over SFTP is
// round-trip-expensive, so new action names are discovered once per 1Hz
// tick and remembered as seen so each is reported only once.
package sftp

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"sort"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"

	"github.com/bchodorowski/bucse/internal/store"
	"github.com/bchodorowski/bucse/pkg/retry"
)

const (
	storageDir = "storage"
	actionsDir = "actions"
	repoJSON   = "repository.json"
	repoBlob   = "repository"
)

// Destination is an SFTP-backed bucse object store: "ssh://host[:port]/path".
type Destination struct {
	mu     sync.Mutex
	client *ssh.Client
	sftp   *sftp.Client
	root   string

	seen map[string]bool
	cb   store.ActionAddedFunc

	retryer *retry.Retryer
}

// New constructs an unopened SFTP Destination. Reads and writes are retried
// with backoff (pkg/retry): SFTP round trips over a WAN, like the S3
// backend's, are where a transient failure is expected to be common enough
// to matter, unlike the local directory backend.
func New() *Destination {
	return &Destination{seen: make(map[string]bool), retryer: retry.New(retry.DefaultConfig())}
}

// ParseURL splits "ssh://user@host:port/path" into a dial address, user, and
// remote root path.
func ParseURL(rawURL string) (addr, user, remotePath string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", "", fmt.Errorf("sftp: invalid URL: %w", err)
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "22"
	}
	user = u.User.Username()
	if user == "" {
		user = os.Getenv("USER")
	}
	return host + ":" + port, user, u.Path, nil
}

func (d *Destination) Init(_ context.Context, rawURL string) error {
	addr, user, remotePath, err := ParseURL(rawURL)
	if err != nil {
		return err
	}
	d.root = remotePath

	auths := []ssh.AuthMethod{}
	if agentAuth, ok := sshAgentAuth(); ok {
		auths = append(auths, agentAuth)
	}
	auths = append(auths, ssh.PasswordCallback(func() (string, error) {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return "", fmt.Errorf("sftp: password required but stdin is not a terminal")
		}
		fmt.Fprintf(os.Stderr, "Password for %s@%s: ", user, addr)
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		return string(pw), err
	}))

	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            auths,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // matches original dest_ssh.c posture; see DESIGN.md
	}
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return store.ErrStoreWrite("store.sftp", err)
	}
	sc, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return store.ErrStoreWrite("store.sftp", err)
	}
	d.client = client
	d.sftp = sc
	return nil
}

func (d *Destination) CreateDirs(_ context.Context) error {
	if _, err := d.sftp.Stat(path.Join(d.root, repoJSON)); err == nil {
		return store.ErrExists("store.sftp", "repository")
	}
	for _, sub := range []string{storageDir, actionsDir} {
		if err := d.sftp.MkdirAll(path.Join(d.root, sub)); err != nil {
			return store.ErrStoreWrite("store.sftp", err)
		}
	}
	return nil
}

func (d *Destination) storagePath(name string) string { return path.Join(d.root, storageDir, name) }
func (d *Destination) actionPath(name string) string   { return path.Join(d.root, actionsDir, name) }

func (d *Destination) writeNew(p string, data []byte) error {
	return d.retryer.Do(func() error {
		if _, err := d.sftp.Stat(p); err == nil {
			return store.ErrExists("store.sftp", p)
		}
		f, err := d.sftp.Create(p)
		if err != nil {
			return store.ErrStoreWrite("store.sftp", err)
		}
		defer f.Close()
		if _, err := f.Write(data); err != nil {
			return store.ErrStoreWrite("store.sftp", err)
		}
		return nil
	})
}

func (d *Destination) readAll(p string) ([]byte, error) {
	var buf []byte
	err := d.retryer.Do(func() error {
		f, err := d.sftp.Open(p)
		if os.IsNotExist(err) {
			return store.ErrNotFound("store.sftp", p)
		}
		if err != nil {
			return store.ErrStoreRead("store.sftp", err)
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return store.ErrStoreRead("store.sftp", err)
		}
		b := make([]byte, info.Size())
		if _, err := f.Read(b); err != nil {
			return store.ErrStoreRead("store.sftp", err)
		}
		buf = b
		return nil
	})
	return buf, err
}

func (d *Destination) PutStorageFile(_ context.Context, name string, data []byte) error {
	return d.writeNew(d.storagePath(name), data)
}

func (d *Destination) GetStorageFile(_ context.Context, name string) ([]byte, error) {
	return d.readAll(d.storagePath(name))
}

func (d *Destination) AddActionFile(_ context.Context, name string, data []byte) error {
	if err := d.writeNew(d.actionPath(name), data); err != nil {
		return err
	}
	d.mu.Lock()
	d.seen[name] = true
	d.mu.Unlock()
	return nil
}

func (d *Destination) ListActionFiles(_ context.Context) ([]string, error) {
	var names []string
	err := d.retryer.Do(func() error {
		entries, err := d.sftp.ReadDir(path.Join(d.root, actionsDir))
		if err != nil {
			return store.ErrStoreRead("store.sftp", err)
		}
		out := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() {
				out = append(out, e.Name())
			}
		}
		sort.Strings(out)
		names = out
		return nil
	})
	return names, err
}

func (d *Destination) putControlFile(name string, data []byte) error {
	if len(data) > store.MaxControlBlobBytes {
		return store.ErrTooLarge("store.sftp", name)
	}
	p := path.Join(d.root, name)
	return d.retryer.Do(func() error {
		f, err := d.sftp.Create(p)
		if err != nil {
			return store.ErrStoreWrite("store.sftp", err)
		}
		defer f.Close()
		if _, err := f.Write(data); err != nil {
			return store.ErrStoreWrite("store.sftp", err)
		}
		return nil
	})
}

func (d *Destination) getControlFile(name string) ([]byte, error) {
	return d.readAll(path.Join(d.root, name))
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

// Tick lists the actions directory once and hands unseen names to the
// callback, amortizing the round trip an SFTP LIST requires (§4.10,
// SUPPLEMENTED FEATURES item 3).
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

func (d *Destination) Close() error {
	var firstErr error
	if d.sftp != nil {
		if err := d.sftp.Close(); err != nil {
			firstErr = err
		}
	}
	if d.client != nil {
		if err := d.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ store.Destination = (*Destination)(nil)
