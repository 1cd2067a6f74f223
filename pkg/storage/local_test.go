package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir(), URLPrefix: "/files/"})
	require.NoError(t, err)

	key := "communities/42/a.txt"
	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Write(ctx, key, strings.NewReader("hello"), 5, "text/plain"))

	ok, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	url, err := s.GetURL(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "/files/communities/42/a.txt", url)

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))

	_, err = s.GetURL(ctx, key, time.Minute)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorage_TraversalStaysInsideBase(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s, err := NewLocalStorage(LocalConfig{BasePath: base})
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "../../escape.txt", strings.NewReader("x"), 1, ""))

	p, err := s.fullPath("../../escape.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, s.BasePath()))
}

func TestNew_Drivers(t *testing.T) {
	st, err := New(context.Background(), Config{Driver: "none"})
	require.NoError(t, err)
	assert.Nil(t, st)

	st, err = New(context.Background(), Config{Driver: "local", Local: LocalConfig{BasePath: t.TempDir()}})
	require.NoError(t, err)
	assert.NotNil(t, st)

	_, err = New(context.Background(), Config{Driver: "ftp"})
	assert.Error(t, err)
}
