package bufpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAllocatesWhenEmpty(t *testing.T) {
	t.Parallel()

	p := New(0)
	assert.Equal(t, DefaultCapacity, p.Capacity())

	b := p.Get(128)
	assert.Len(t, b, 128)
	assert.Equal(t, 0, p.Len())
}

func TestGetReusesWithinRange(t *testing.T) {
	t.Parallel()

	p := New(4)
	orig := make([]byte, 1000)
	p.Put(orig)
	require.Equal(t, 1, p.Len())

	// 1000 is outside [300, 600]
	small := p.Get(300)
	assert.Len(t, small, 300)
	assert.Equal(t, 1, p.Len())

	// 1000 is inside [600, 1200]
	reused := p.Get(600)
	assert.Len(t, reused, 600)
	assert.Equal(t, 1000, cap(reused))
	assert.Same(t, &orig[0], &reused[0])
	assert.Equal(t, 0, p.Len())
}

func TestGetTooSmallNotReused(t *testing.T) {
	t.Parallel()

	p := New(4)
	p.Put(make([]byte, 100))
	b := p.Get(200)
	assert.Len(t, b, 200)
	assert.Equal(t, 1, p.Len())
}

func TestPutBounded(t *testing.T) {
	t.Parallel()

	p := New(3)
	for range 10 {
		p.Put(make([]byte, 64))
	}
	assert.Equal(t, 3, p.Len())

	p.Put(nil)
	assert.Equal(t, 3, p.Len())

	p.Reset()
	assert.Equal(t, 0, p.Len())
}

func TestConcurrentUse(t *testing.T) {
	t.Parallel()

	p := New(DefaultCapacity)
	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				b := p.Get(Threshold + (i*j)%4096)
				b[0] = byte(i)
				p.Put(b)
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, p.Len(), DefaultCapacity)
}
