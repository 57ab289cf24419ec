package target

// Cache holds a lazily fetched snapshot of tracee state.
//
// Every operation that may change what fetch would return must call
// Invalidate before handing control back to its caller.
type Cache[T any] struct {
	v *T
}

// Invalidate drop the snapshot, the next GetOrPopulate fetches again
func (c *Cache[T]) Invalidate() {
	c.v = nil
}

// Valid reports whether a snapshot is held
func (c *Cache[T]) Valid() bool {
	return c.v != nil
}

// GetOrPopulate return the snapshot, calling fetch if there is none.
// A failed fetch leaves the cache empty.
func (c *Cache[T]) GetOrPopulate(fetch func() (*T, error)) (*T, error) {
	if c.v != nil {
		return c.v, nil
	}
	v, err := fetch()
	if err != nil {
		return nil, err
	}
	c.v = v
	return v, nil
}
