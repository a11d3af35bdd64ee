package local

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bchodorowski/bucse/pkg/errors"
)

func newTestDestination(t *testing.T) *Destination {
	t.Helper()
	d := New()
	require.NoError(t, d.Init(context.Background(), t.TempDir()))
	require.NoError(t, d.CreateDirs(context.Background()))
	return d
}

func TestCreateDirsFailsIfAlreadyInitialized(t *testing.T) {
	d := newTestDestination(t)
	require.NoError(t, d.PutRepositoryJSONFile(context.Background(), []byte(`{}`)))

	err := d.CreateDirs(context.Background())
	require.Error(t, err)
	var bucseErr *errors.BucseError
	require.ErrorAs(t, err, &bucseErr)
	assert.Equal(t, errors.ErrCodeExists, bucseErr.Code)
}

func TestStorageFileRoundTrip(t *testing.T) {
	d := newTestDestination(t)
	ctx := context.Background()

	name := "0123456789abcdef0123456789abcdef01234567"
	require.NoError(t, d.PutStorageFile(ctx, name, []byte("plaintext-block")))

	got, err := d.GetStorageFile(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, []byte("plaintext-block"), got)
}

func TestPutStorageFileRejectsCollision(t *testing.T) {
	d := newTestDestination(t)
	ctx := context.Background()
	name := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

	require.NoError(t, d.PutStorageFile(ctx, name, []byte("first")))
	err := d.PutStorageFile(ctx, name, []byte("second"))
	require.Error(t, err)

	var bucseErr *errors.BucseError
	require.ErrorAs(t, err, &bucseErr)
	assert.Equal(t, errors.ErrCodeExists, bucseErr.Code)
}

func TestGetStorageFileMissingIsNotFound(t *testing.T) {
	d := newTestDestination(t)
	_, err := d.GetStorageFile(context.Background(), "missing")

	var bucseErr *errors.BucseError
	require.ErrorAs(t, err, &bucseErr)
	assert.Equal(t, errors.ErrCodeNotFound, bucseErr.Code)
}

func TestStorageNameCannotEscapeRoot(t *testing.T) {
	d := newTestDestination(t)
	err := d.PutStorageFile(context.Background(), "../../etc/passwd", []byte("x"))

	require.Error(t, err)
	var bucseErr *errors.BucseError
	require.ErrorAs(t, err, &bucseErr)
	assert.Equal(t, errors.ErrCodeTooLarge, bucseErr.Code)
}

func TestListActionFilesSorted(t *testing.T) {
	d := newTestDestination(t)
	ctx := context.Background()

	require.NoError(t, d.AddActionFile(ctx, "b", []byte("[]")))
	require.NoError(t, d.AddActionFile(ctx, "a", []byte("[]")))

	names, err := d.ListActionFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestTickReportsActionsAddedByAnotherDestination(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	writer := New()
	require.NoError(t, writer.Init(ctx, root))
	require.NoError(t, writer.CreateDirs(ctx))

	reader := New()
	require.NoError(t, reader.Init(ctx, root))
	assert.True(t, reader.IsTickable())

	var reported [][]string
	reader.SetActionAddedCallback(func(_ context.Context, names []string, more bool) error {
		got := append([]string(nil), names...)
		reported = append(reported, got)
		return nil
	})

	require.NoError(t, reader.Tick(ctx))
	assert.Empty(t, reported)

	require.NoError(t, writer.AddActionFile(ctx, "0000000000000000000000000000000000000a", []byte("[]")))
	require.NoError(t, reader.Tick(ctx))
	require.Len(t, reported, 1)
	assert.Equal(t, []string{"0000000000000000000000000000000000000a"}, reported[0])

	// A second tick with no new action files must not re-report the same name.
	require.NoError(t, reader.Tick(ctx))
	assert.Len(t, reported, 1)
}

func TestControlFileRoundTrip(t *testing.T) {
	d := newTestDestination(t)
	ctx := context.Background()

	require.NoError(t, d.PutRepositoryJSONFile(ctx, []byte(`{"name":"r"}`)))
	got, err := d.GetRepositoryJSONFile(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"r"}`, string(got))

	require.NoError(t, d.PutRepositoryFile(ctx, []byte(`{"time":1}`)))
	got, err = d.GetRepositoryFile(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"time":1}`, string(got))
}
