package queue

// fifo is a slice-backed queue with amortized O(1) push and pop.
type fifo struct {
	items []Item
	head  int
}

func (f *fifo) len() int {
	return len(f.items) - f.head
}

func (f *fifo) front() *Item {
	if f.len() == 0 {
		return nil
	}
	return &f.items[f.head]
}

func (f *fifo) push(it Item) {
	f.items = append(f.items, it)
}

func (f *fifo) pop() Item {
	it := f.items[f.head]
	f.items[f.head] = Item{}
	f.head++

	switch {
	case f.head == len(f.items):
		f.items = f.items[:0]
		f.head = 0
	case f.head >= 64 && f.head*2 >= len(f.items):
		n := copy(f.items, f.items[f.head:])
		clear(f.items[n:])
		f.items = f.items[:n]
		f.head = 0
	}
	return it
}

// filter keeps the items for which keep reports true, preserving order, and
// returns the number of events removed.
func (f *fifo) filter(keep func(*Item) bool) int {
	kept := f.items[:0]
	removed := 0
	for i := f.head; i < len(f.items); i++ {
		if keep(&f.items[i]) {
			kept = append(kept, f.items[i])
			continue
		}
		removed += f.items[i].Len()
	}
	clear(f.items[len(kept):])
	f.items = kept
	f.head = 0
	return removed
}
