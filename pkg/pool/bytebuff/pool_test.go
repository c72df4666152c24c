package bytebuff

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_GetPut(t *testing.T) {
	p := NewPool()

	buf := p.Get()
	require.NotNil(t, buf)
	_, _ = buf.WriteString("hello")
	assert.Equal(t, "hello", buf.String())
	p.Put(buf)
	p.Put(nil)

	gets, puts := p.Stats()
	assert.Equal(t, uint64(1), gets)
	assert.Equal(t, uint64(1), puts)
}

func TestPool_ReadAll(t *testing.T) {
	p := NewPool()

	t.Run("no limit", func(t *testing.T) {
		buf, err := p.ReadAll(strings.NewReader(`{"name":"ping"}`), 0)
		require.NoError(t, err)
		assert.Equal(t, `{"name":"ping"}`, string(buf.B))
		p.Put(buf)
	})

	t.Run("exact limit", func(t *testing.T) {
		buf, err := p.ReadAll(strings.NewReader("12345"), 5)
		require.NoError(t, err)
		assert.Equal(t, 5, buf.Len())
		p.Put(buf)
	})

	t.Run("over limit", func(t *testing.T) {
		_, err := p.ReadAll(strings.NewReader("123456"), 5)
		assert.ErrorIs(t, err, ErrTooLarge)
	})

	gets, puts := p.Stats()
	assert.Equal(t, gets, puts, "每次 Get 都要归还")
}

func TestPool_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := Get()
			_, _ = buf.WriteString("data")
			Put(buf)
		}()
	}
	wg.Wait()

	gets, puts := Stats()
	assert.GreaterOrEqual(t, gets, uint64(100))
	assert.Equal(t, gets, puts)
}
