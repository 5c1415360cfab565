package cachebench

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVAdapter_RoundTrip(t *testing.T) {
	t.Parallel()

	backend := newMemKV()
	a := NewKVAdapter(backend)
	key := []byte("/a/b.jpg")

	require.NoError(t, a.Put(key, []byte("hello-world")))
	assert.Equal(t, []byte("hello-world"), backend.values[Digest(key)])
	assert.Equal(t, 1, backend.commits)
	assert.Zero(t, backend.aborts)

	buf := NewPool(1, 4).Get()
	found, err := a.Get(key, buf)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello-world"), buf.Bytes())
}

func TestKVAdapter_Miss(t *testing.T) {
	t.Parallel()

	found, err := NewKVAdapter(newMemKV()).Get([]byte("/a/c.jpg"), NewPool(1, 8).Get())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestKVAdapter_Overwrite(t *testing.T) {
	t.Parallel()

	a := NewKVAdapter(newMemKV())
	key := []byte("k")
	require.NoError(t, a.Put(key, bytes.Repeat([]byte("a"), 100)))
	require.NoError(t, a.Put(key, []byte("short")))

	buf := NewPool(1, 8).Get()
	found, err := a.Get(key, buf)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("short"), buf.Bytes())
}

func TestKVAdapter_EditInProgress(t *testing.T) {
	t.Parallel()

	backend := newMemKV()
	key := []byte("k")
	backend.editing[Digest(key)] = true

	err := NewKVAdapter(backend).Put(key, []byte("v"))
	assert.ErrorIs(t, err, ErrBackendWrite)
	assert.ErrorIs(t, err, ErrEditInProgress)
}

func TestKVAdapter_FailedWriteAborts(t *testing.T) {
	t.Parallel()

	for name, inject := range map[string]func(*memKV){
		"write":  func(m *memKV) { m.writeErr = errInjected },
		"commit": func(m *memKV) { m.commitErr = errInjected },
	} {
		t.Run(name, func(t *testing.T) {
			backend := newMemKV()
			inject(backend)

			err := NewKVAdapter(backend).Put([]byte("k"), []byte("v"))
			assert.ErrorIs(t, err, ErrBackendWrite)
			assert.ErrorIs(t, err, errInjected)
			assert.Equal(t, 1, backend.aborts)
			assert.Empty(t, backend.values)
			assert.Empty(t, backend.editing)
		})
	}
}

func TestKVAdapter_Errors(t *testing.T) {
	t.Parallel()

	t.Run("edit", func(t *testing.T) {
		backend := newMemKV()
		backend.editErr = errInjected
		err := NewKVAdapter(backend).Put([]byte("k"), []byte("v"))
		assert.ErrorIs(t, err, ErrBackendWrite)
		assert.ErrorIs(t, err, errInjected)
	})

	t.Run("flush", func(t *testing.T) {
		backend := newMemKV()
		backend.flushErr = errInjected
		err := NewKVAdapter(backend).Put([]byte("k"), []byte("v"))
		assert.ErrorIs(t, err, ErrBackendWrite)
		// The commit itself went through.
		assert.Equal(t, 1, backend.commits)
		assert.Zero(t, backend.aborts)
	})

	t.Run("get", func(t *testing.T) {
		backend := newMemKV()
		backend.getErr = errInjected
		found, err := NewKVAdapter(backend).Get([]byte("k"), NewPool(1, 8).Get())
		assert.False(t, found)
		assert.ErrorIs(t, err, ErrBackendRead)
		assert.ErrorIs(t, err, errInjected)
	})
}
