package table

import (
	"encoding/json"
	"os"
	"path/filepath"

	"go-bstardb/pkg/column"
	"go-bstardb/pkg/customerrors"
	"go-bstardb/pkg/engine"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const metadataFileName = "metadata.json"

// metadata represents the metadata for the table stored in a json file.
type metadata struct {
	ID         uuid.UUID        `json:"id"`
	Name       string           `json:"name"`
	Engine     engine.EngineID  `json:"engine"`
	Columns    []*column.Column `json:"columns"`
	PrimaryKey string           `json:"primary_key"`
}

// checkName rejects names that are not a single path element.
func checkName(name string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return errors.Wrapf(customerrors.ErrInvalidOptions, "invalid table name '%s'", name)
	}
	return nil
}

func (m *metadata) validate() error {
	if err := checkName(m.Name); err != nil {
		return err
	}
	if !m.Engine.IsValid() {
		return errors.Wrapf(customerrors.ErrUnknownEngine, "%d", uint8(m.Engine))
	}
	if len(m.Columns) == 0 {
		return errors.Wrapf(customerrors.ErrInvalidOptions, "table '%s' has no columns", m.Name)
	}

	seen := map[string]struct{}{}
	for _, col := range m.Columns {
		if col == nil || col.Name == "" || col.Meta == nil {
			return errors.Wrapf(customerrors.ErrInvalidOptions, "table '%s' has an incomplete column", m.Name)
		}
		if _, dup := seen[col.Name]; dup {
			return errors.Wrapf(customerrors.ErrInvalidOptions, "duplicate column '%s'", col.Name)
		}
		seen[col.Name] = struct{}{}
	}

	if column.Find(m.Columns, m.PrimaryKey) == nil {
		return errors.Wrapf(customerrors.ErrUnknownColumn, "primary key '%s'", m.PrimaryKey)
	}
	return nil
}

func readMeta(dir string) (*metadata, error) {
	d, err := os.ReadFile(filepath.Join(dir, metadataFileName))
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(customerrors.ErrTableNotFound, "'%s'", filepath.Base(dir))
	} else if err != nil {
		return nil, err
	}

	m := &metadata{}
	if err := json.Unmarshal(d, m); err != nil {
		return nil, errors.Wrapf(err, "failed to parse metadata of '%s'", filepath.Base(dir))
	}
	return m, m.validate()
}

// writeMeta replaces the metadata file through a rename so a crash never
// leaves it half written.
func writeMeta(dir string, m *metadata) error {
	d, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	tmp := filepath.Join(dir, metadataFileName+".tmp")
	if err := os.WriteFile(tmp, d, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, metadataFileName))
}
