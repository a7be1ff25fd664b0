// Package table implements the table catalog: every table keeps its schema
// in a metadata file and its rows in a storage engine keyed by the primary
// key column.
package table

import (
	"path/filepath"
	"sync"

	"go-bstardb/pkg/column"
	"go-bstardb/pkg/customerrors"
	"go-bstardb/pkg/engine"
	"go-bstardb/pkg/types"
	"go-bstardb/util/logger"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// storageName is the base path handed to the engine inside the table dir.
const storageName = "storage"

type Table struct {
	dir  string
	meta *metadata
	pk   *column.Column
	eng  engine.Engine
	log  logger.Logger

	// writers hold it exclusively, multi-row reads share it
	mu sync.RWMutex
}

func openTable(dir string, m *metadata, opts *engine.Options, log logger.Logger) (*Table, error) {
	eng, err := engine.Open(m.Engine, filepath.Join(dir, storageName), opts)
	if err != nil {
		return nil, err
	}

	return &Table{
		dir:  dir,
		meta: m,
		pk:   column.Find(m.Columns, m.PrimaryKey),
		eng:  eng,
		log:  log,
	}, nil
}

func (t *Table) Name() string               { return t.meta.Name }
func (t *Table) ID() uuid.UUID              { return t.meta.ID }
func (t *Table) EngineID() engine.EngineID  { return t.meta.Engine }
func (t *Table) Columns() []*column.Column  { return t.meta.Columns }
func (t *Table) PrimaryKey() *column.Column { return t.pk }
func (t *Table) Count() int64               { return t.eng.Count() }

// Engine exposes the storage engine, e.g. for statistics.
func (t *Table) Engine() engine.Engine { return t.eng }

// Insert stores row. The primary key value is required and must be unique.
func (t *Table) Insert(row types.DataRow) error {
	key, ok := row[t.pk.Name]
	if !ok || key == nil {
		return errors.Wrapf(customerrors.ErrMissingPrimaryKey, "table '%s' column '%s'", t.meta.Name, t.pk.Name)
	}

	rec, err := column.EncodeRow(t.meta.Columns, row)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.eng.Insert(key, rec); err != nil {
		if errors.Is(err, customerrors.ErrDuplicateKey) {
			return errors.Wrapf(err, "primary key value %s exists in '%s'", key, t.meta.Name)
		}
		return err
	}
	return nil
}

// Reset removes every row.
func (t *Table) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.log.Info("resetting table", "table", t.meta.Name)
	return t.eng.Reset()
}

// Reorganize compacts the table storage.
func (t *Table) Reorganize() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eng.Reorganize()
}

func (t *Table) Sync() error {
	return t.eng.Sync()
}

func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eng.Close()
}

// key converts value into the primary key type.
func (t *Table) key(value types.DataType) (types.DataType, error) {
	if value == nil {
		return nil, customerrors.ErrEmptyKey
	}
	if value.GetCode() != t.pk.Typ {
		return nil, errors.Wrapf(types.ErrInvalidType, "primary key '%s' is %v, got %v", t.pk.Name, t.pk.Typ, value.GetCode())
	}
	return types.Convert(t.pk.Meta, value.Value())
}
