package column

import (
	"encoding/json"

	"go-bstardb/pkg/types"
)

// Column describes one column of a table: its name and the SQL type used
// to interpret its bytes.
type Column struct {
	Name string             `json:"name"`
	Typ  types.TypeCode     `json:"type"`
	Meta types.DataTypeMeta `json:"meta"`
}

func New(name string, meta types.DataTypeMeta) *Column {
	return &Column{
		Name: name,
		Typ:  meta.GetCode(),
		Meta: meta,
	}
}

func (c *Column) IsFixedSize() bool {
	return c.Meta.IsFixedSize()
}

// Value returns an empty value of the column type.
func (c *Column) Value() types.DataType {
	return types.Type(c.Meta)
}

type column struct {
	Name string          `json:"name"`
	Typ  types.TypeCode  `json:"type"`
	Meta json.RawMessage `json:"meta"`
}

func (c *Column) UnmarshalJSON(data []byte) error {
	col := &column{}
	if err := json.Unmarshal(data, col); err != nil {
		return err
	}

	meta, err := types.Meta(col.Typ)
	if err != nil {
		return err
	}

	c.Name = col.Name
	c.Typ = col.Typ
	c.Meta = meta
	return json.Unmarshal(col.Meta, c.Meta)
}
