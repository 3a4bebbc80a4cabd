package localstore_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgstream/internal/localstore"
	"tgstream/internal/remote"
)

const storage remote.ChatTarget = "storage"

func readAll(t *testing.T, s remote.ChunkStream) ([]byte, []int) {
	t.Helper()
	var out []byte
	var sizes []int
	for {
		chunk, err := s.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out, sizes
		}
		require.NoError(t, err)
		out = append(out, chunk...)
		sizes = append(sizes, len(chunk))
	}
}

func TestSendMediaAndStream(t *testing.T) {
	store, err := localstore.Open(afero.NewMemMapFs(), localstore.Options{ChunkSize: 4})
	require.NoError(t, err)

	payload := []byte("0123456789")
	msg, err := store.SendMedia(context.Background(), storage, remote.Upload{
		Name: "clip.mp4", MimeType: "video/mp4", Reader: bytes.NewReader(payload),
	})
	require.NoError(t, err)
	require.NotNil(t, msg.Media)
	assert.Equal(t, "1", msg.Ref.ID)
	assert.Equal(t, int64(len(payload)), msg.Media.Size)
	assert.True(t, msg.Media.Video)

	stream, err := store.OpenMediaStream(context.Background(), msg.Media.FileRef)
	require.NoError(t, err)
	defer stream.Close()

	got, sizes := readAll(t, stream)
	assert.Equal(t, payload, got)
	assert.Equal(t, []int{4, 4, 2}, sizes)
}

func TestSendMediaRejectsEmptyFile(t *testing.T) {
	store, err := localstore.Open(afero.NewMemMapFs(), localstore.Options{})
	require.NoError(t, err)

	_, err = store.SendMedia(context.Background(), storage, remote.Upload{Name: "empty.mp4", Reader: strings.NewReader("")})
	assert.ErrorIs(t, err, remote.ErrRejected)
}

func TestHistoryIsNewestFirstAndLimited(t *testing.T) {
	store, err := localstore.Open(afero.NewMemMapFs(), localstore.Options{})
	require.NoError(t, err)

	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		_, err := store.SendMedia(ctx, storage, remote.Upload{Name: name, MimeType: "video/mp4", Reader: strings.NewReader(name)})
		require.NoError(t, err)
	}
	_, err = store.SendMedia(ctx, "elsewhere", remote.Upload{Name: "x", Reader: strings.NewReader("x")})
	require.NoError(t, err)

	it, err := store.History(ctx, storage, 2)
	require.NoError(t, err)

	var names []string
	for {
		msg, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		names = append(names, msg.Media.FileName)
	}
	assert.Equal(t, []string{"c", "b"}, names)
}

func TestForwardCopiesMedia(t *testing.T) {
	store, err := localstore.Open(afero.NewMemMapFs(), localstore.Options{})
	require.NoError(t, err)
	ctx := context.Background()

	orig, err := store.SendMedia(ctx, "inbox", remote.Upload{Name: "v.mp4", MimeType: "video/mp4", Reader: strings.NewReader("video")})
	require.NoError(t, err)

	fwd, err := store.Forward(ctx, orig.Ref, storage)
	require.NoError(t, err)
	assert.Equal(t, storage, fwd.Ref.Chat)
	assert.NotEqual(t, orig.Ref.ID, fwd.Ref.ID)
	assert.Equal(t, orig.Media.FileRef, fwd.Media.FileRef)

	_, err = store.Forward(ctx, remote.MessageRef{Chat: "inbox", ID: "999"}, storage)
	assert.ErrorIs(t, err, remote.ErrObjectNotFound)
}

func TestIndexSurvivesReopenAndFlagsMalformedRecords(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "messages.json", []byte(`{"nextId":3,"messages":[
		{"id":1,"chat":"storage","media":{"object":"o1","size":5,"video":true}},
		"not-a-message"
	]}`), 0o644))

	store, err := localstore.Open(fsys, localstore.Options{})
	require.NoError(t, err)

	ctx := context.Background()
	it, err := store.History(ctx, storage, 10)
	require.NoError(t, err)

	msg, err := it.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", msg.Ref.ID)

	_, err = it.Next(ctx)
	assert.ErrorIs(t, err, remote.ErrMalformedMessage)

	sent, err := store.SendMedia(ctx, storage, remote.Upload{Name: "n", Reader: strings.NewReader("n")})
	require.NoError(t, err)
	assert.Equal(t, "3", sent.Ref.ID)
}

func TestOpenMediaStreamMissingObject(t *testing.T) {
	store, err := localstore.Open(afero.NewMemMapFs(), localstore.Options{})
	require.NoError(t, err)

	_, err = store.OpenMediaStream(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, remote.ErrObjectNotFound)
}
