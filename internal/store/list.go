package store

// List is an ordered sequence of byte strings backed by a slice.
// The List itself is NOT thread-safe; concurrency is managed by the Store.
type List struct {
	items [][]byte
}

// NewList creates a new empty List.
func NewList() *List {
	return &List{items: make([][]byte, 0)}
}

// LPush prepends values one at a time from left to right, so
// LPUSH mylist a b c results in c b a (c is head).
// Returns the new length of the list.
func (l *List) LPush(values ...[]byte) int {
	newItems := make([][]byte, len(values)+len(l.items))
	for i, v := range values {
		newItems[len(values)-1-i] = cloneBytes(v)
	}
	copy(newItems[len(values):], l.items)
	l.items = newItems
	return len(l.items)
}

// RPush appends one or more values to the list.
// Returns the new length of the list.
func (l *List) RPush(values ...[]byte) int {
	for _, v := range values {
		l.items = append(l.items, cloneBytes(v))
	}
	return len(l.items)
}

// LPop removes and returns the first element.
func (l *List) LPop() ([]byte, bool) {
	if len(l.items) == 0 {
		return nil, false
	}
	val := l.items[0]
	l.items[0] = nil
	l.items = l.items[1:]
	return val, true
}

// RPop removes and returns the last element.
func (l *List) RPop() ([]byte, bool) {
	if len(l.items) == 0 {
		return nil, false
	}
	last := len(l.items) - 1
	val := l.items[last]
	l.items[last] = nil
	l.items = l.items[:last]
	return val, true
}

// Len returns the number of elements in the list.
func (l *List) Len() int {
	return len(l.items)
}

// Range returns copies of the elements from start to stop (inclusive).
// Negative indices count from the end; out-of-range bounds are clipped.
func (l *List) Range(start, stop int) [][]byte {
	length := len(l.items)
	if length == 0 {
		return nil
	}

	s := l.resolveIndex(start)
	e := l.resolveIndex(stop)

	if s < 0 {
		s = 0
	}
	if e >= length {
		e = length - 1
	}
	if s > e {
		return nil
	}

	result := make([][]byte, e-s+1)
	for i := s; i <= e; i++ {
		result[i-s] = cloneBytes(l.items[i])
	}
	return result
}

// resolveIndex converts a possibly-negative index to a non-negative one.
func (l *List) resolveIndex(index int) int {
	if index < 0 {
		return len(l.items) + index
	}
	return index
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
