package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleContent(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	}
	return out
}

func TestAction_Validate(t *testing.T) {
	t.Run("addFile with matching content length", func(t *testing.T) {
		a := &Action{Time: 1, Kind: AddFile, Path: "a.txt", Content: sampleContent(2), Size: 1000, BlockSize: 512}
		require.NoError(t, a.Validate())
	})

	t.Run("addFile with mismatched content length", func(t *testing.T) {
		a := &Action{Time: 1, Kind: AddFile, Path: "a.txt", Content: sampleContent(1), Size: 1000, BlockSize: 512}
		require.Error(t, a.Validate())
	})

	t.Run("empty file has zero blockSize and no content", func(t *testing.T) {
		a := &Action{Time: 1, Kind: AddFile, Path: "empty.txt"}
		require.NoError(t, a.Validate())
	})

	t.Run("removeFile must have zeroed fields", func(t *testing.T) {
		a := &Action{Time: 2, Kind: RemoveFile, Path: "a.txt"}
		require.NoError(t, a.Validate())

		bad := &Action{Time: 2, Kind: RemoveFile, Path: "a.txt", Size: 10}
		require.Error(t, bad.Validate())
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		a := &Action{Time: 1, Kind: Kind("bogus"), Path: "a.txt"}
		require.Error(t, a.Validate())
	})

	t.Run("content name over limit rejected", func(t *testing.T) {
		long := make([]byte, MaxStorageNameLen+1)
		for i := range long {
			long[i] = 'a'
		}
		a := &Action{Time: 1, Kind: AddFile, Path: "a.txt", Content: []string{string(long)}, Size: 1, BlockSize: 512}
		require.Error(t, a.Validate())
	})
}

func TestEncodeDecodeBatch_RoundTrip(t *testing.T) {
	batch := Batch{
		{Time: 100, Kind: AddFile, Path: "a.txt", Content: sampleContent(1), Size: 5, BlockSize: 512},
	}
	data, err := EncodeBatch(batch)
	require.NoError(t, err)

	decoded, errs := DecodeBatch(data)
	require.Empty(t, errs)
	require.Len(t, decoded, 1)
	assert.Equal(t, batch[0].Time, decoded[0].Time)
	assert.Equal(t, batch[0].Kind, decoded[0].Kind)
	assert.Equal(t, batch[0].Path, decoded[0].Path)
	assert.Equal(t, batch[0].Content, decoded[0].Content)
}

func TestDecodeBatch_DiscardsInvalidElementsOnly(t *testing.T) {
	data := []byte(`[
		{"time":1,"action":"addFile","path":"ok.txt","content":["aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"],"size":1,"blockSize":512},
		{"time":2,"action":"bogusKind","path":"bad.txt","content":[],"size":0,"blockSize":0}
	]`)
	batch, errs := DecodeBatch(data)
	require.Len(t, errs, 1)
	require.Len(t, batch, 1)
	assert.Equal(t, "ok.txt", batch[0].Path)
}

func TestDecodeBatch_OversizedRejected(t *testing.T) {
	big := make([]byte, MaxActionFileBytes+1)
	_, errs := DecodeBatch(big)
	require.Len(t, errs, 1)
}

func TestByTime_StableTieBreak(t *testing.T) {
	actions := []*Action{
		{Time: 5, Path: "earlier-insert"},
		{Time: 5, Path: "later-insert"},
		{Time: 3, Path: "first"},
	}
	ByTime(actions)
	require.True(t, Sorted(actions))
	assert.Equal(t, "first", actions[0].Path)
	assert.Equal(t, "earlier-insert", actions[1].Path)
	assert.Equal(t, "later-insert", actions[2].Path)
}

func TestSorted(t *testing.T) {
	assert.True(t, Sorted([]*Action{{Time: 1}, {Time: 2}, {Time: 2}, {Time: 3}}))
	assert.False(t, Sorted([]*Action{{Time: 2}, {Time: 1}}))
}
