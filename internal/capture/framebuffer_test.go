package capture

import (
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameBufferReadIfNew(t *testing.T) {
	fb := NewFrameBuffer()
	img, seq, ok := fb.ReadIfNew(0)
	assert.False(t, ok)
	assert.Nil(t, img)
	assert.Zero(t, seq)
	assert.Nil(t, fb.Read())

	a := image.NewRGBA(image.Rect(0, 0, 1, 1))
	b := image.NewRGBA(image.Rect(0, 0, 2, 2))
	fb.Write(a)
	fb.Write(b)

	img, seq, ok = fb.ReadIfNew(0)
	assert.True(t, ok)
	assert.Same(t, b, img)
	assert.Equal(t, uint64(2), seq)

	_, seq2, ok := fb.ReadIfNew(seq)
	assert.False(t, ok)
	assert.Equal(t, seq, seq2)

	assert.Equal(t, uint64(2), fb.FrameCount())
	assert.False(t, fb.LastFrameTime().IsZero())
}

func TestFrameBufferReset(t *testing.T) {
	fb := NewFrameBuffer()
	fb.Write(image.NewGray(image.Rect(0, 0, 1, 1)))
	fb.MarkDropped()
	assert.Equal(t, uint64(1), fb.Dropped())

	fb.Reset()
	assert.Nil(t, fb.Read())
	assert.Zero(t, fb.FrameCount())
	assert.Zero(t, fb.Dropped())
	assert.True(t, fb.LastFrameTime().IsZero())

	_, total, _ := fb.Stats()
	assert.Zero(t, total)
}

func TestFrameBufferConcurrent(t *testing.T) {
	fb := NewFrameBuffer()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			fb.Write(img)
		}
	}()
	go func() {
		defer wg.Done()
		var last uint64
		for i := 0; i < 1000; i++ {
			if _, seq, ok := fb.ReadIfNew(last); ok {
				assert.Greater(t, seq, last)
				last = seq
			}
		}
	}()
	wg.Wait()
	assert.Equal(t, uint64(1000), fb.FrameCount())
}

func TestBuffers(t *testing.T) {
	b := NewBuffers()
	for _, ch := range Channels {
		assert.NotNil(t, b.Get(ch))
	}
	assert.NotSame(t, b.Get(RGB), b.Get(Depth))

	b.Get(IR).Write(image.NewGray(image.Rect(0, 0, 1, 1)))
	b.Reset()
	assert.Zero(t, b.Get(IR).FrameCount())

	assert.Equal(t, "depth", Depth.String())
	assert.Equal(t, "unknown", Channel(9).String())
}
