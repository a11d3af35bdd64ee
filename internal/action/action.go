// Package action implements bucse's event record (Action), its JSON codec,
// and the ordering rule the reconciler and block engine build on.
package action

import (
	"encoding/json"
	"fmt"
	"sort"

	bucseerrors "github.com/bchodorowski/bucse/pkg/errors"
)

// MaxStorageNameLen bounds a content entry: 20 random bytes hex-encoded to
// 40 characters, with this larger limit as headroom. Names are not padded.
const MaxStorageNameLen = 64

// MaxActionFileBytes bounds a serialized+encrypted action file (§7 CapacityError).
const MaxActionFileBytes = 1 << 20

// Kind is the action's effect on the projection.
type Kind string

const (
	AddFile         Kind = "addFile"
	EditFile        Kind = "editFile"
	RemoveFile      Kind = "removeFile"
	AddDirectory    Kind = "addDirectory"
	RemoveDirectory Kind = "removeDirectory"
)

func (k Kind) valid() bool {
	switch k {
	case AddFile, EditFile, RemoveFile, AddDirectory, RemoveDirectory:
		return true
	default:
		return false
	}
}

// Action is bucse's immutable event record (spec §3.1). Time is a 64-bit
// microsecond timestamp and is the sole ordering key.
type Action struct {
	Time      int64    `json:"time"`
	Kind      Kind     `json:"action"`
	Path      string   `json:"path"`
	Content   []string `json:"content"`
	Size      int64    `json:"size"`
	BlockSize int64    `json:"blockSize"`
}

// wireAction mirrors Action's JSON fields and order; EncodeBatch fills a nil
// Content with an empty slice so directory/remove actions still serialize an
// empty array rather than null, matching the on-disk format's
// placeholder-zero convention (§6.3).
type wireAction struct {
	Time      int64    `json:"time"`
	Kind      Kind     `json:"action"`
	Path      string   `json:"path"`
	Content   []string `json:"content"`
	Size      int64    `json:"size"`
	BlockSize int64    `json:"blockSize"`
}

// Validate checks the structural invariants from §3.1: content length must
// match ceil(size/blockSize) for file actions, and must be empty with zeroed
// size/blockSize for directory and remove actions.
func (a *Action) Validate() error {
	if !a.Kind.valid() {
		return bucseerrors.New(bucseerrors.ErrCodeMalformedJSON, fmt.Sprintf("unknown action kind %q", a.Kind)).
			WithComponent("action")
	}
	if len(a.Path) == 0 {
		return bucseerrors.New(bucseerrors.ErrCodeMalformedJSON, "action path is empty").WithComponent("action")
	}
	for _, name := range a.Content {
		if len(name) > MaxStorageNameLen {
			return bucseerrors.New(bucseerrors.ErrCodeTooLarge, "content name exceeds MAX_STORAGE_NAME_LEN").
				WithComponent("action")
		}
	}

	switch a.Kind {
	case AddFile, EditFile:
		if a.BlockSize == 0 {
			if a.Size != 0 || len(a.Content) != 0 {
				return bucseerrors.New(bucseerrors.ErrCodeMalformedJSON, "zero blockSize requires zero size and empty content").
					WithComponent("action")
			}
			return nil
		}
		want := ceilDiv(a.Size, a.BlockSize)
		if int64(len(a.Content)) != want {
			return bucseerrors.New(bucseerrors.ErrCodeMalformedJSON,
				fmt.Sprintf("content length %d does not match ceil(size/blockSize)=%d", len(a.Content), want)).
				WithComponent("action")
		}
	case RemoveFile, AddDirectory, RemoveDirectory:
		if len(a.Content) != 0 || a.Size != 0 || a.BlockSize != 0 {
			return bucseerrors.New(bucseerrors.ErrCodeMalformedJSON, "directory/remove action must carry zeroed content/size/blockSize").
				WithComponent("action")
		}
	}
	return nil
}

func ceilDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Batch is an ordered sequence of actions as they appear in a single action
// file (§6.3): a JSON array, usually a singleton for locally produced events.
type Batch []*Action

// EncodeBatch serializes a batch as the JSON array format of §6.3.
func EncodeBatch(batch Batch) ([]byte, error) {
	out := make([]wireAction, len(batch))
	for i, a := range batch {
		content := a.Content
		if content == nil {
			content = []string{}
		}
		out[i] = wireAction{
			Time: a.Time, Kind: a.Kind, Path: a.Path,
			Content: content, Size: a.Size, BlockSize: a.BlockSize,
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, bucseerrors.New(bucseerrors.ErrCodeMalformedJSON, "failed to encode action batch").
			WithComponent("action").WithCause(err)
	}
	if len(data) > MaxActionFileBytes {
		return nil, bucseerrors.New(bucseerrors.ErrCodeTooLarge, "encoded action file exceeds 1 MiB").
			WithComponent("action")
	}
	return data, nil
}

// DecodeBatch parses a JSON array of action objects. Unknown kinds or
// structurally invalid elements are discarded (logged by the caller) rather
// than failing the whole batch, matching the original parser's skip-on-error
// posture.
func DecodeBatch(data []byte) (Batch, []error) {
	if len(data) > MaxActionFileBytes {
		return nil, []error{bucseerrors.New(bucseerrors.ErrCodeTooLarge, "action file exceeds 1 MiB").WithComponent("action")}
	}

	var raw []wireAction
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, []error{bucseerrors.New(bucseerrors.ErrCodeMalformedJSON, "failed to parse action batch").
			WithComponent("action").WithCause(err)}
	}

	var (
		batch  Batch
		errs   []error
	)
	for _, w := range raw {
		a := &Action{Time: w.Time, Kind: w.Kind, Path: w.Path, Content: w.Content, Size: w.Size, BlockSize: w.BlockSize}
		if err := a.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		batch = append(batch, a)
	}
	return batch, errs
}

// ByTime sorts actions ascending by Time, stable so ties keep insertion
// order — the tie-break that yields last-writer-wins (spec §4.4).
func ByTime(actions []*Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Time < actions[j].Time
	})
}

// Sorted reports whether actions is non-decreasing by Time (property 8.1.1).
func Sorted(actions []*Action) bool {
	for i := 1; i < len(actions); i++ {
		if actions[i].Time < actions[i-1].Time {
			return false
		}
	}
	return true
}
