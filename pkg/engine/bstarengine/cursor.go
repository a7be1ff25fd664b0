package bstarengine

import (
	"sync"

	"go-bstardb/pkg/bstar"
	"go-bstardb/pkg/data"
	"go-bstardb/pkg/types"
)

// cursor loads the record of every key the tree cursor yields. The pointer
// is resolved under the engine read lock, so the tree cursor has already
// dropped entries a writer changed in between.
type cursor struct {
	mu   *sync.RWMutex
	data *data.DataFile
	c    *bstar.Cursor[types.DataType]

	record []byte
	err    error
}

func (c *cursor) Next() bool {
	if c.err != nil {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.c.Next() {
		return false
	}
	c.record, c.err = c.data.Get(toData(c.c.Pointer()))
	return c.err == nil
}

func (c *cursor) Key() types.DataType { return c.c.Key() }
func (c *cursor) Record() []byte      { return c.record }

func (c *cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.c.Err()
}

func (c *cursor) Close() error {
	c.record = nil
	return c.c.Close()
}
