package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mocacore/internal/blob/core"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("fail") }

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	assert.Equal(t, core.DriverMemory, s.Driver())

	info, err := s.Put(ctx, "artifacts/s1/cube_copy/r1.png", strings.NewReader("png"), core.PutOptions{
		ContentType: "image/png",
		Metadata:    map[string]string{"section": "cube_copy"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size)
	assert.NotEmpty(t, info.ETag)

	_, err = s.Put(ctx, info.Key, strings.NewReader("again"), core.PutOptions{})
	assert.ErrorIs(t, err, core.ErrExists)

	got, rc, err := s.Get(ctx, info.Key)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "png", string(body))
	assert.Equal(t, "cube_copy", got.Metadata["section"])

	_, err = s.Put(ctx, "artifacts/s2/clock_drawing/r2.png", strings.NewReader("x"), core.PutOptions{})
	require.NoError(t, err)
	list, err := s.List(ctx, core.SessionPrefix("s1"))
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = s.PresignURL(ctx, info.Key, core.SignedURLOptions{})
	assert.ErrorIs(t, err, core.ErrUnsupported)

	ok, err := s.Delete(ctx, info.Key)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = s.Delete(ctx, info.Key)
	assert.False(t, ok)
	_, err = s.Head(ctx, info.Key)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, _, err = s.Get(ctx, info.Key)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestMemoryStorePutErrors(t *testing.T) {
	s := New()
	_, err := s.Put(context.Background(), "k", failingReader{}, core.PutOptions{})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Put(ctx, "k", strings.NewReader("x"), core.PutOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
