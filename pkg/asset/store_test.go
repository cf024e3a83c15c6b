package asset

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cuemby/hearthd/pkg/hearth"
	"github.com/cuemby/hearthd/pkg/lump"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	Name string `json:"name"`
}

func TestLoadBuildsAndCaches(t *testing.T) {
	lumps := lump.New()
	id, err := lumps.Add([]byte("hello"))
	require.NoError(t, err)

	s := New(lumps)
	var calls atomic.Int32
	s.Register("upper", func(data []byte) (any, error) {
		calls.Add(1)
		return string(data) + "!", nil
	})

	v1, err := s.Load("upper", id)
	require.NoError(t, err)
	assert.Equal(t, "hello!", v1)

	v2, err := s.Load("upper", id)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLoadMissingLumpFails(t *testing.T) {
	s := New(lump.New())
	s.Register("x", func(data []byte) (any, error) { return data, nil })

	var zero hearth.LumpId
	_, err := s.Load("x", zero)
	assert.ErrorIs(t, err, hearth.ErrLumpNotFound)
}

func TestLoadUnregisteredLoaderFails(t *testing.T) {
	lumps := lump.New()
	id, err := lumps.Add([]byte("x"))
	require.NoError(t, err)

	s := New(lumps)
	_, err = s.Load("nope", id)
	assert.ErrorIs(t, err, hearth.ErrLoaderNotRegistered)
}

func TestFailedBuildIsNotCached(t *testing.T) {
	lumps := lump.New()
	id, err := lumps.Add([]byte("x"))
	require.NoError(t, err)

	s := New(lumps)
	var attempt atomic.Int32
	s.Register("flaky", func(data []byte) (any, error) {
		n := attempt.Add(1)
		if n == 1 {
			return nil, errors.New("boom")
		}
		return "ok", nil
	})

	_, err = s.Load("flaky", id)
	assert.Error(t, err)

	v, err := s.Load("flaky", id)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, int32(2), attempt.Load())
}

func TestConcurrentLoadBuildsOnce(t *testing.T) {
	lumps := lump.New()
	id, err := lumps.Add([]byte("x"))
	require.NoError(t, err)

	s := New(lumps)
	var calls atomic.Int32
	s.Register("slow", func(data []byte) (any, error) {
		calls.Add(1)
		return "built", nil
	})

	const n = 32
	var wg sync.WaitGroup
	results := make([]any, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := s.Load("slow", id)
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.Equal(t, "built", results[i])
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestDuplicateRegistrationKeepsFirst(t *testing.T) {
	lumps := lump.New()
	id, err := lumps.Add([]byte("x"))
	require.NoError(t, err)

	s := New(lumps)
	s.Register("dup", func(data []byte) (any, error) { return "first", nil })
	s.Register("dup", func(data []byte) (any, error) { return "second", nil })

	v, err := s.Load("dup", id)
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestJSONLoader(t *testing.T) {
	lumps := lump.New()
	body, err := json.Marshal(widget{Name: "sprocket"})
	require.NoError(t, err)
	id, err := lumps.Add(body)
	require.NoError(t, err)

	s := New(lumps)
	s.Register("widget", JSONLoader[widget]())

	v, err := s.Load("widget", id)
	require.NoError(t, err)
	w, ok := v.(*widget)
	require.True(t, ok)
	assert.Equal(t, "sprocket", w.Name)
}
