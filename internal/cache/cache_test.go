package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreBasic(t *testing.T) {
	s := New(4, time.Minute)

	_, ok := s.Get("missing")
	assert.False(t, ok)

	s.Set("a", []byte("one"))
	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("one"), got)

	s.Set("a", []byte("two"))
	got, _ = s.Get("a")
	assert.Equal(t, []byte("two"), got)
	assert.Equal(t, 1, s.Len())

	s.Delete("a")
	_, ok = s.Get("a")
	assert.False(t, ok)
}

func TestStoreLRUEviction(t *testing.T) {
	s := New(2, time.Minute)
	s.Set("a", []byte("1"))
	s.Set("b", []byte("2"))

	// Обращение к "a" делает "b" кандидатом на вытеснение
	_, ok := s.Get("a")
	require.True(t, ok)

	s.Set("c", []byte("3"))
	assert.Equal(t, 2, s.Len())

	_, ok = s.Get("b")
	assert.False(t, ok, "least recently used entry must be evicted")
	_, ok = s.Get("a")
	assert.True(t, ok)
	_, ok = s.Get("c")
	assert.True(t, ok)
}

func TestStoreTTL(t *testing.T) {
	s := New(4, time.Minute)
	current := time.Now()
	s.now = func() time.Time { return current }

	s.Set("a", []byte("1"))
	_, ok := s.Get("a")
	require.True(t, ok)

	current = current.Add(2 * time.Minute)
	_, ok = s.Get("a")
	assert.False(t, ok, "expired entry must be a miss")
	assert.Equal(t, 0, s.Len(), "expired entry is removed on access")
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := New(16, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i%8)
			s.Set(key, []byte{byte(i)})
			s.Get(key)
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, s.Len(), 16)
}
