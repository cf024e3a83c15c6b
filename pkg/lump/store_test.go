package lump

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddIsIdempotentOnContent(t *testing.T) {
	s := New()
	id1, err := s.Add([]byte("hello"))
	require.NoError(t, err)
	id2, err := s.Add([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, s.Len())
}

func TestGetReturnsStoredBytes(t *testing.T) {
	s := New()
	id, err := s.Add([]byte("payload"))
	require.NoError(t, err)

	data, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), data)
}

func TestGetMissingReturnsFalse(t *testing.T) {
	s := New()
	var zero [32]byte
	_, ok := s.Get(zero)
	assert.False(t, ok)
}

func TestConcurrentAddDoesNotDoubleStore(t *testing.T) {
	s := New()
	const n = 64

	var wg sync.WaitGroup
	results := make([][32]byte, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := s.Add([]byte("same content"))
			require.NoError(t, err)
			results[i] = id
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, results[0], results[i])
	}
	assert.Equal(t, 1, s.Len())
}

func TestDifferentContentProducesDifferentIds(t *testing.T) {
	s := New()
	idA, err := s.Add([]byte("a"))
	require.NoError(t, err)
	idB, err := s.Add([]byte("b"))
	require.NoError(t, err)

	assert.NotEqual(t, idA, idB)
	assert.Equal(t, 2, s.Len())
}
