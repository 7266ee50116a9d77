package column

import "math/bits"

// Bitmap is a growable validity bitmap, 64 flags per word.
type Bitmap struct {
	words []uint64
	n     int
}

// NewBitmap returns a bitmap with room for capacity flags.
func NewBitmap(capacity int) *Bitmap {
	return &Bitmap{words: make([]uint64, 0, (capacity+63)/64)}
}

// Len returns the number of flags.
func (b *Bitmap) Len() int { return b.n }

// Append adds one flag.
func (b *Bitmap) Append(v bool) {
	if b.n/64 >= len(b.words) {
		b.words = append(b.words, 0)
	}
	b.n++
	b.Set(b.n-1, v)
}

// Set overwrites flag i.
func (b *Bitmap) Set(i int, v bool) {
	word, bit := i/64, uint(i%64)
	if v {
		b.words[word] |= 1 << bit
	} else {
		b.words[word] &^= 1 << bit
	}
}

// Get returns flag i.
func (b *Bitmap) Get(i int) bool {
	return b.words[i/64]&(1<<uint(i%64)) != 0
}

// Count returns the number of set flags.
func (b *Bitmap) Count() int {
	c := 0
	for _, w := range b.words {
		c += bits.OnesCount64(w)
	}
	return c
}

// Reset clears the bitmap, keeping its storage.
func (b *Bitmap) Reset() {
	b.words = b.words[:0]
	b.n = 0
}
