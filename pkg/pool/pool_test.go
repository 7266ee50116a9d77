package pool

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolResetsOnPut(t *testing.T) {
	p := New(
		func() []byte { return make([]byte, 0, 4) },
		nil,
	)
	b := p.Get()
	require.NotNil(t, b)
	p.Put(b)

	st := p.Stats()
	assert.Equal(t, int64(0), st.InUse)
	assert.Equal(t, int64(1), st.Gets)
	assert.GreaterOrEqual(t, st.Allocated, int64(1))
}

func TestBufferPoolConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buf := GetBuffer()
			assert.Equal(t, 0, buf.Len())
			buf.Write(bytes.Repeat([]byte{byte(i)}, 128))
			PutBuffer(buf)
		}(i)
	}
	wg.Wait()
}

func TestPutBufferDropsOversized(t *testing.T) {
	before := BufferStats().InUse
	buf := GetBuffer()
	buf.Grow(maxRetainedBuffer + 1)
	PutBuffer(buf)
	assert.Equal(t, before, BufferStats().InUse)

	PutBuffer(nil)
}
