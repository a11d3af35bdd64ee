// Package reconciler implements bucse's Action Log and ingestion pipeline
// (spec §4.6, C6): the two ordered sequences (applied `actions`, staging
// `actionsPending`), the out-of-order detection pass, and the per-kind apply
// semantics that drive the Filesystem Projection.
package reconciler

import (
	"context"
	"sort"

	"github.com/bchodorowski/bucse/internal/action"
	"github.com/bchodorowski/bucse/internal/bucselog"
	"github.com/bchodorowski/bucse/internal/filesystem"
	"github.com/bchodorowski/bucse/internal/store"
	bucseerrors "github.com/bchodorowski/bucse/pkg/errors"
)

// Log holds the two ordered sequences from spec §3.4 and drives Apply
// against a Projection as batches are ingested.
type Log struct {
	Actions        []*action.Action
	ActionsPending []*action.Action

	Projection *filesystem.Projection
	Store      store.Destination
	Decrypt    func(ciphertext []byte) ([]byte, error)
	Logger     *bucselog.Logger

	IngestedBatches int64
	DroppedActions  int64

	// LastIngestOutOfOrder records whether the most recent mergePending call
	// had to undo any already-applied tail actions to re-sort a late arrival
	// (spec §4.6 step 5), exposed to pkg/metrics.
	LastIngestOutOfOrder bool
}

// New constructs a Log bound to proj, reading action files via dest and
// decrypting them with decrypt.
func New(proj *filesystem.Projection, dest store.Destination, decrypt func([]byte) ([]byte, error)) *Log {
	return &Log{
		Projection: proj,
		Store:      dest,
		Decrypt:    decrypt,
		Logger:     bucselog.Default().WithComponent("reconciler"),
	}
}

// Ingest implements spec §4.6 steps 1-6: decrypt and parse each named
// action file, push validated Actions onto ActionsPending; if more is true,
// defer processing until the final call in the discovery batch; otherwise
// sort, detect out-of-order events against the tail of Actions, and apply
// everything in ActionsPending in timestamp order.
func (l *Log) Ingest(ctx context.Context, names []string, more bool) error {
	for _, name := range names {
		ciphertext, err := l.Store.GetStorageFile(ctx, name)
		if err != nil {
			// Fall back to treating name as an action-namespace object; some
			// destinations key actions and storage objects the same way.
			l.Logger.Warn("failed to fetch action file %s: %v", name, err)
			l.DroppedActions++
			continue
		}
		plain, err := l.Decrypt(ciphertext)
		if err != nil {
			l.Logger.Warn("failed to decrypt action file %s: %v", name, err)
			l.DroppedActions++
			continue
		}
		batch, errs := action.DecodeBatch(plain)
		for _, e := range errs {
			l.Logger.Warn("discarding malformed action in %s: %v", name, e)
			l.DroppedActions++
		}
		l.ActionsPending = append(l.ActionsPending, batch...)
	}

	if more {
		return nil
	}
	return l.mergePending()
}

// mergePending implements spec §4.6 steps 4-6.
func (l *Log) mergePending() error {
	if len(l.ActionsPending) == 0 {
		return nil
	}
	action.ByTime(l.ActionsPending)

	// Out-of-order detection: while the tail of Actions has time >= the head
	// of ActionsPending, move it back into ActionsPending.
	undone := false
	for len(l.Actions) > 0 && len(l.ActionsPending) > 0 &&
		l.Actions[len(l.Actions)-1].Time >= l.ActionsPending[0].Time {
		tail := l.Actions[len(l.Actions)-1]
		l.Actions = l.Actions[:len(l.Actions)-1]
		l.ActionsPending = append([]*action.Action{tail}, l.ActionsPending...)
		undone = true
	}
	l.LastIngestOutOfOrder = undone
	if undone {
		action.ByTime(l.ActionsPending)
		// Undo is not implemented by re-deriving an inverse; per spec §4.6/§9
		// the recommended posture equivalent in effect is to rebuild the
		// projection from scratch by replaying Actions in sorted order, which
		// the loop below already achieves since every moved-back action is
		// re-applied in its correct, now-sorted position.
		l.rebuildProjection()
	}

	pending := l.ActionsPending
	l.ActionsPending = nil
	for _, a := range pending {
		if err := l.Apply(a); err != nil {
			l.Logger.Warn("dropping action %s %s: %v", a.Kind, a.Path, err)
			l.DroppedActions++
			continue
		}
		l.Actions = append(l.Actions, a)
	}
	l.IngestedBatches++
	return nil
}

// rebuildProjection replays Actions from scratch against an empty
// projection (spec §9: "simpler to get right" than inverse-apply undo).
// Actions already accumulated are authoritative; only the in-memory tree is
// rebuilt, which is cheap relative to network ingestion.
func (l *Log) rebuildProjection() {
	root := l.Projection.Root
	fresh := filesystem.New(root.Atime)
	l.Projection.Root = fresh.Root
	for _, a := range l.Actions {
		_ = l.applyTo(l.Projection, a)
	}
}

// Apply applies a to the live projection (spec §4.6 apply table).
func (l *Log) Apply(a *action.Action) error {
	return l.applyTo(l.Projection, a)
}

func (l *Log) applyTo(p *filesystem.Projection, a *action.Action) error {
	switch a.Kind {
	case action.AddFile:
		dir, name, ok := p.ResolveContainingDir(a.Path)
		if !ok {
			return bucseerrors.New(bucseerrors.ErrCodeNotFound, "containing directory missing").WithComponent("reconciler")
		}
		if filesystem.NameTaken(dir, name) {
			return bucseerrors.New(bucseerrors.ErrCodeExists, "name already used").WithComponent("reconciler")
		}
		t := microsToTime(a.Time)
		filesystem.AddFile(dir, name, t, a.Content, a.Size, a.BlockSize)
		return nil

	case action.EditFile:
		f, ok := p.ResolveFile(a.Path)
		if !ok {
			return bucseerrors.New(bucseerrors.ErrCodeNotFound, "file missing").WithComponent("reconciler")
		}
		f.Mtime = microsToTime(a.Time)
		f.Content = a.Content
		f.Size = a.Size
		f.BlockSize = a.BlockSize
		f.DirtyFlags = 0
		f.Pending = nil
		f.TruncSize = 0
		return nil

	case action.RemoveFile:
		dir, name, ok := p.ResolveContainingDir(a.Path)
		if !ok {
			return bucseerrors.New(bucseerrors.ErrCodeNotFound, "containing directory missing").WithComponent("reconciler")
		}
		if _, ok := dir.Files[name]; !ok {
			return bucseerrors.New(bucseerrors.ErrCodeNotFound, "file missing").WithComponent("reconciler")
		}
		filesystem.RemoveFile(dir, name)
		return nil

	case action.AddDirectory:
		dir, name, ok := p.ResolveContainingDir(a.Path)
		if !ok {
			return bucseerrors.New(bucseerrors.ErrCodeNotFound, "containing directory missing").WithComponent("reconciler")
		}
		if filesystem.NameTaken(dir, name) {
			return bucseerrors.New(bucseerrors.ErrCodeExists, "name already used").WithComponent("reconciler")
		}
		filesystem.AddDir(dir, name, microsToTime(a.Time))
		return nil

	case action.RemoveDirectory:
		dir, name, ok := p.ResolveContainingDir(a.Path)
		if !ok {
			return bucseerrors.New(bucseerrors.ErrCodeNotFound, "containing directory missing").WithComponent("reconciler")
		}
		target, ok := dir.Dirs[name]
		if !ok {
			return bucseerrors.New(bucseerrors.ErrCodeNotFound, "directory missing").WithComponent("reconciler")
		}
		// Unlike the local rmdir operation (§4.7.4), the original apply path
		// does not check emptiness before recursively freeing (spec §9 open
		// question). We take the spec's recommended posture and enforce the
		// same precondition here, logging and dropping on conflict rather
		// than silently diverging from local semantics.
		if !filesystem.IsEmpty(target) {
			return bucseerrors.New(bucseerrors.ErrCodeNotEmpty, "directory not empty").WithComponent("reconciler")
		}
		filesystem.RemoveDir(dir, name)
		return nil

	default:
		return bucseerrors.New(bucseerrors.ErrCodeMalformedJSON, "unknown action kind").WithComponent("reconciler")
	}
}

// Sorted reports whether Actions is sorted ascending by Time (property 8.1.1).
func (l *Log) Sorted() bool { return action.Sorted(l.Actions) }
