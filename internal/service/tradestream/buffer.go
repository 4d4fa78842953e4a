package tradestream

import (
	"strings"
	"sync"
	"time"

	"Confluence/internal/domain/models"
)

// Buffer keeps the last N trades per symbol. Same-side trades arriving
// within the coalesce window of the previous one are merged into it, so a
// burst of fills from one aggressive order occupies a single slot.
type Buffer struct {
	mu       sync.RWMutex
	size     int
	coalesce time.Duration
	rings    map[string]*ring
}

type ring struct {
	items []models.Trade
	head  int
	full  bool
}

func NewBuffer(size int, coalesce time.Duration) *Buffer {
	if size <= 0 {
		size = 1000
	}
	return &Buffer{size: size, coalesce: coalesce, rings: make(map[string]*ring)}
}

// Append stores t; it never blocks on readers.
func (b *Buffer) Append(t models.Trade) {
	sym := strings.ToUpper(t.Symbol)
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rings[sym]
	if !ok {
		r = &ring{items: make([]models.Trade, b.size)}
		b.rings[sym] = r
	}

	if last, ok := r.last(); ok && b.coalesce > 0 &&
		last.IsBuyerMaker == t.IsBuyerMaker &&
		t.Timestamp.Sub(last.Timestamp) >= 0 &&
		t.Timestamp.Sub(last.Timestamp) < b.coalesce {
		qty := last.Quantity + t.Quantity
		if qty > 0 {
			last.Price = (last.Price*last.Quantity + t.Price*t.Quantity) / qty
		}
		last.Quantity = qty
		return
	}

	r.items[r.head] = t
	r.head = (r.head + 1) % len(r.items)
	if r.head == 0 {
		r.full = true
	}
}

func (r *ring) last() (*models.Trade, bool) {
	if !r.full && r.head == 0 {
		return nil, false
	}
	i := (r.head - 1 + len(r.items)) % len(r.items)
	return &r.items[i], true
}

// Recent returns up to limit trades for symbol, oldest first.
func (b *Buffer) Recent(symbol string, limit int) []models.Trade {
	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.rings[strings.ToUpper(symbol)]
	if !ok {
		return nil
	}
	n := r.head
	if r.full {
		n = len(r.items)
	}
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]models.Trade, n)
	start := (r.head - n + len(r.items)) % len(r.items)
	for i := 0; i < n; i++ {
		out[i] = r.items[(start+i)%len(r.items)]
	}
	return out
}

// Len reports how many trades are held for symbol.
func (b *Buffer) Len(symbol string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.rings[strings.ToUpper(symbol)]
	if !ok {
		return 0
	}
	if r.full {
		return len(r.items)
	}
	return r.head
}
