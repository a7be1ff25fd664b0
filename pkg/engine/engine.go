// Package engine defines the storage engine abstraction tables are built
// on. Implementations live in subpackages and register themselves from
// init, the way database/sql drivers do:
//
//	import _ "go-bstardb/pkg/engine/bstarengine"
package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go-bstardb/pkg/customerrors"
	"go-bstardb/pkg/types"
	"go-bstardb/util/logger"

	"github.com/pkg/errors"
)

// EngineID selects the implementation that backs a table.
type EngineID uint8

const (
	FlatFile EngineID = iota + 1
	InvertedIndex
	BStar
)

var engineNames = map[EngineID]string{
	FlatFile:      "FlatFile",
	InvertedIndex: "InvertedIndex",
	BStar:         "BStar",
}

func (id EngineID) String() string {
	if name, ok := engineNames[id]; ok {
		return name
	}
	return fmt.Sprintf("EngineID(%d)", uint8(id))
}

func (id EngineID) IsValid() bool {
	_, ok := engineNames[id]
	return ok
}

// ParseEngineID accepts engine names case-insensitively.
func ParseEngineID(s string) (EngineID, error) {
	for id, name := range engineNames {
		if strings.EqualFold(name, s) {
			return id, nil
		}
	}
	return 0, errors.Wrapf(customerrors.ErrUnknownEngine, "'%s'", s)
}

func (id EngineID) MarshalText() ([]byte, error) {
	if !id.IsValid() {
		return nil, errors.Wrapf(customerrors.ErrUnknownEngine, "%d", uint8(id))
	}
	return []byte(id.String()), nil
}

func (id *EngineID) UnmarshalText(text []byte) error {
	v, err := ParseEngineID(string(text))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// Bound limits one side of a range scan. A nil Key means unbounded.
type Bound struct {
	Key       types.DataType
	Inclusive bool
}

// Unbounded is the open bound.
var Unbounded = Bound{}

// Engine stores records under unique keys of one type.
type Engine interface {
	// Search returns the record stored under key or ErrKeyNotFound.
	Search(key types.DataType) ([]byte, error)

	// Insert fails with ErrDuplicateKey when key exists.
	Insert(key types.DataType, record []byte) error

	// Update replaces the record of an existing key.
	Update(key types.DataType, record []byte) error

	// Delete fails with ErrKeyNotFound when key is absent.
	Delete(key types.DataType) error

	// RangeScan yields records with keys between lo and hi in ascending
	// key order.
	RangeScan(lo, hi Bound) (Cursor, error)

	Count() int64

	// Reset drops every record.
	Reset() error

	// Reorganize rewrites the storage compactly.
	Reorganize() error

	Sync() error
	Close() error
}

// Cursor is a forward-only iterator. Key and Record are valid after Next
// returned true.
type Cursor interface {
	Next() bool
	Key() types.DataType
	Record() []byte
	Err() error
	Close() error
}

// Options represents the configuration every engine receives.
type Options struct {
	// KeyMeta describes the key type. Required.
	KeyMeta types.DataTypeMeta

	PageSize        int
	MaxKeySize      int
	NodeCacheSize   int
	RecordCacheSize int64
	SyncWrites      bool
	ReadOnly        bool
	Logger          logger.Logger
}

// Validate checks the options and fills in the logger.
func (o *Options) Validate() error {
	if o == nil || o.KeyMeta == nil {
		return errors.Wrap(customerrors.ErrInvalidOptions, "key meta is required")
	}
	if o.Logger == nil {
		o.Logger = logger.Default()
	}
	return nil
}

// NormalizeKey converts key into the engine's key type so it encodes with
// the expected width. Values the key type can not hold are refused.
func (o *Options) NormalizeKey(key types.DataType) (types.DataType, error) {
	if key == nil {
		return nil, customerrors.ErrEmptyKey
	}
	if key.GetCode() != o.KeyMeta.GetCode() {
		return nil, errors.Wrapf(types.ErrInvalidType, "key of type %v, engine keys are %v", key.GetCode(), o.KeyMeta.GetCode())
	}
	return types.Convert(o.KeyMeta, key.Value())
}

// OpenFunc opens an engine stored at path. Engines that support it treat
// ":memory:" as a request for in-memory storage.
type OpenFunc func(path string, opts *Options) (Engine, error)

var (
	registryMu sync.RWMutex
	registry   = map[EngineID]OpenFunc{}
)

// Register makes an engine implementation available by id. It panics if
// called twice for the same id or with a nil open function.
func Register(id EngineID, open OpenFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if open == nil {
		panic("engine: Register open function is nil")
	}
	if _, dup := registry[id]; dup {
		panic(fmt.Sprintf("engine: Register called twice for %v", id))
	}
	registry[id] = open
}

// Registered returns the ids of the registered engines in ascending order.
func Registered() []EngineID {
	registryMu.RLock()
	defer registryMu.RUnlock()

	ids := make([]EngineID, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Open opens the engine selected by id.
func Open(id EngineID, path string, opts *Options) (Engine, error) {
	if !id.IsValid() {
		return nil, errors.Wrapf(customerrors.ErrUnknownEngine, "%d", uint8(id))
	}

	registryMu.RLock()
	open, ok := registry[id]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(customerrors.ErrNoImplementation, "%v", id)
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return open(path, opts)
}
