package flatfile

import (
	"go-bstardb/pkg/customerrors"
	"go-bstardb/pkg/types"
)

// cursor walks the keys that were in range when the scan started and reads
// each record on Next. Keys deleted meanwhile are skipped.
type cursor struct {
	e     *Engine
	items []item
	pos   int

	record []byte
	err    error
}

func (c *cursor) Next() bool {
	if c.err != nil {
		return false
	}

	for c.pos+1 < len(c.items) {
		c.pos++
		ok, err := c.load()
		if err != nil {
			c.err = err
			return false
		}
		if ok {
			return true
		}
	}
	c.pos = len(c.items)
	return false
}

func (c *cursor) load() (bool, error) {
	e := c.e
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return false, customerrors.ErrClosed
	}

	it, ok := e.index.Get(c.items[c.pos])
	if !ok {
		return false, nil
	}

	rec, err := e.read(it)
	if err != nil {
		return false, err
	}
	c.record = rec
	return true, nil
}

func (c *cursor) Key() types.DataType { return c.items[c.pos].key }
func (c *cursor) Record() []byte      { return c.record }
func (c *cursor) Err() error          { return c.err }

func (c *cursor) Close() error {
	c.items = nil
	c.record = nil
	c.pos = 0
	return nil
}
