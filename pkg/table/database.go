package table

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go-bstardb/config"
	"go-bstardb/pkg/column"
	"go-bstardb/pkg/customerrors"
	"go-bstardb/pkg/engine"
	"go-bstardb/pkg/pager"
	"go-bstardb/util/helpers"
	"go-bstardb/util/logger"
	"go-bstardb/util/timer"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	_ "go-bstardb/pkg/engine/bstarengine"
	_ "go-bstardb/pkg/engine/flatfile"
)

// openConcurrency bounds the number of tables opened or closed at once.
const openConcurrency = 8

// Database is a directory with one subdirectory per table.
type Database struct {
	dir string
	cfg *config.StorageConfig
	log logger.Logger

	mu       sync.Mutex
	tables   map[string]*Table
	stopSync func()
}

// Definition describes a table to create.
type Definition struct {
	Name       string
	Engine     engine.EngineID
	Columns    []*column.Column
	PrimaryKey string
}

func OpenDatabase(dir string, cfg *config.StorageConfig, log logger.Logger) (*Database, error) {
	if cfg == nil {
		cfg = config.NewStorageConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Default()
	}
	if cfg.ReadOnly {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	} else if err := helpers.CreateDir(dir); err != nil {
		return nil, errors.Wrapf(err, "failed to create database dir '%s'", dir)
	}

	db := &Database{
		dir:    dir,
		cfg:    cfg,
		log:    log,
		tables: map[string]*Table{},
	}

	if cfg.SyncIntervalSeconds > 0 {
		db.stopSync = timer.SetInterval(time.Duration(cfg.SyncIntervalSeconds)*time.Second, func() {
			if err := db.Sync(); err != nil {
				db.log.Error("periodic sync failed", "dir", dir, "err", err)
			}
		})
	}
	return db, nil
}

func (db *Database) Dir() string { return db.dir }

// CreateTable writes the table metadata and opens its engine.
func (db *Database) CreateTable(def Definition) (*Table, error) {
	m := &metadata{
		ID:         uuid.New(),
		Name:       def.Name,
		Engine:     def.Engine,
		Columns:    def.Columns,
		PrimaryKey: def.PrimaryKey,
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	if db.cfg.ReadOnly {
		return nil, errors.Wrapf(pager.ErrReadOnly, "can not create table '%s'", def.Name)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	dir := db.tableDir(def.Name)
	if _, err := os.Stat(filepath.Join(dir, metadataFileName)); err == nil {
		return nil, errors.Wrapf(customerrors.ErrTableExists, "'%s'", def.Name)
	}
	if err := helpers.CreateDir(dir); err != nil {
		return nil, err
	}
	if err := writeMeta(dir, m); err != nil {
		return nil, errors.Wrapf(err, "failed to write metadata of '%s'", def.Name)
	}

	t, err := openTable(dir, m, db.engineOptions(m), db.log)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	db.tables[m.Name] = t
	db.log.Info("table created", "table", m.Name, "id", m.ID, "engine", m.Engine)
	return t, nil
}

// OpenTable returns the open table or opens it from disk.
func (db *Database) OpenTable(name string) (*Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.openLocked(name)
}

func (db *Database) openLocked(name string) (*Table, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if t, ok := db.tables[name]; ok {
		return t, nil
	}

	dir := db.tableDir(name)
	m, err := readMeta(dir)
	if err != nil {
		return nil, err
	}

	t, err := openTable(dir, m, db.engineOptions(m), db.log)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open table '%s'", name)
	}
	db.tables[name] = t
	return t, nil
}

// DropTable closes the table and removes its directory.
func (db *Database) DropTable(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if db.cfg.ReadOnly {
		return errors.Wrapf(pager.ErrReadOnly, "can not drop table '%s'", name)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	dir := db.tableDir(name)
	if _, err := os.Stat(filepath.Join(dir, metadataFileName)); os.IsNotExist(err) {
		return errors.Wrapf(customerrors.ErrTableNotFound, "'%s'", name)
	}

	if t, ok := db.tables[name]; ok {
		if err := t.Close(); err != nil {
			return err
		}
		delete(db.tables, name)
	}

	db.log.Info("table dropped", "table", name)
	return os.RemoveAll(dir)
}

// Tables lists the tables on disk in name order.
func (db *Database) Tables() ([]string, error) {
	entries, err := os.ReadDir(db.dir)
	if err != nil {
		return nil, err
	}

	names := []string{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(db.dir, e.Name(), metadataFileName)); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// OpenAll opens every table concurrently and returns them in name order.
func (db *Database) OpenAll(ctx context.Context) ([]*Table, error) {
	names, err := db.Tables()
	if err != nil {
		return nil, err
	}

	db.mu.Lock()
	toOpen := []string{}
	for _, name := range names {
		if _, ok := db.tables[name]; !ok {
			toOpen = append(toOpen, name)
		}
	}
	db.mu.Unlock()

	var mu sync.Mutex
	opened := map[string]*Table{}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(openConcurrency)
	for _, name := range toOpen {
		name := name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			dir := db.tableDir(name)
			m, err := readMeta(dir)
			if err != nil {
				return err
			}
			t, err := openTable(dir, m, db.engineOptions(m), db.log)
			if err != nil {
				return errors.Wrapf(err, "failed to open table '%s'", name)
			}

			mu.Lock()
			opened[name] = t
			mu.Unlock()
			return nil
		})
	}

	err = g.Wait()

	db.mu.Lock()
	defer db.mu.Unlock()

	if err != nil {
		for _, t := range opened {
			_ = t.Close()
		}
		return nil, err
	}

	tables := make([]*Table, 0, len(names))
	for _, name := range names {
		if t, ok := opened[name]; ok {
			if _, raced := db.tables[name]; !raced {
				db.tables[name] = t
			} else {
				_ = t.Close()
			}
		}
		if t, ok := db.tables[name]; ok {
			tables = append(tables, t)
		}
	}
	return tables, nil
}

// Sync flushes every open table.
func (db *Database) Sync() error {
	db.mu.Lock()
	tables := make([]*Table, 0, len(db.tables))
	for _, t := range db.tables {
		tables = append(tables, t)
	}
	db.mu.Unlock()

	var g errgroup.Group
	for _, t := range tables {
		g.Go(t.Sync)
	}
	return g.Wait()
}

// Close stops the periodic sync and closes every open table.
func (db *Database) Close() error {
	if db.stopSync != nil {
		db.stopSync()
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(openConcurrency)
	for _, t := range db.tables {
		g.Go(t.Close)
	}
	db.tables = map[string]*Table{}
	return g.Wait()
}

func (db *Database) tableDir(name string) string {
	return filepath.Join(db.dir, name)
}

func (db *Database) engineOptions(m *metadata) *engine.Options {
	return &engine.Options{
		KeyMeta:         column.Find(m.Columns, m.PrimaryKey).Meta,
		PageSize:        db.cfg.PageSize,
		MaxKeySize:      db.cfg.MaxKeySize,
		NodeCacheSize:   db.cfg.NodeCacheSize,
		RecordCacheSize: db.cfg.RecordCacheSize,
		SyncWrites:      db.cfg.SyncWrites,
		ReadOnly:        db.cfg.ReadOnly,
		Logger:          db.log,
	}
}
