package plot

import (
	"image"
	"sync"
)

// Board holds the most recently rendered compact chart for the display
// scheduler to merge into its frames.
type Board struct {
	mu  sync.RWMutex
	img *image.Gray
}

func NewBoard() *Board {
	return &Board{}
}

func (b *Board) Set(img *image.Gray) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.img = img
}

// Latest returns the current compact chart, or nil if none has been
// rendered yet.
func (b *Board) Latest() *image.Gray {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.img
}
