package column

import (
	"encoding/json"
	"testing"

	"go-bstardb/pkg/customerrors"
	"go-bstardb/pkg/types"

	"github.com/stretchr/testify/require"
)

func testColumns() []*Column {
	return []*Column{
		New("id", types.MustMeta(types.TYPE_INTEGER, true, 8)),
		New("name", types.MustMeta(types.TYPE_STRING)),
		New("code", types.MustMeta(types.TYPE_VARCHAR, 3)),
		New("score", types.MustMeta(types.TYPE_FLOAT, 8)),
	}
}

func TestRowCodec(t *testing.T) {
	cols := testColumns()
	row := types.DataRow{
		"id":    types.Type(cols[0].Meta).Set(42),
		"name":  types.Type(cols[1].Meta).Set("alice"),
		"score": types.Type(cols[3].Meta).Set(9.5),
	}

	data, err := EncodeRow(cols, row)
	require.NoError(t, err)
	require.Len(t, data, 8+7+5+8)

	got, err := DecodeMap(cols, data)
	require.NoError(t, err)
	require.Equal(t, int64(42), got["id"].Value())
	require.Equal(t, "alice", got["name"].Value())
	require.Equal(t, "", got["code"].Value())
	require.Equal(t, 9.5, got["score"].Value())

	_, err = DecodeRow(cols, append(data, 1))
	require.Error(t, err)
}

func TestRowCodecErrors(t *testing.T) {
	cols := testColumns()

	_, err := EncodeRow(cols, types.DataRow{"nope": types.Type(cols[0].Meta)})
	require.ErrorIs(t, err, customerrors.ErrUnknownColumn)

	_, err = EncodeRow(cols, types.DataRow{"id": types.Type(cols[1].Meta).Set("x")})
	require.ErrorIs(t, err, types.ErrInvalidType)
}

func TestRowCodecConvertsWidth(t *testing.T) {
	cols := []*Column{
		New("id", types.MustMeta(types.TYPE_INTEGER, true, 8)),
		New("n", types.MustMeta(types.TYPE_INTEGER, true, 2)),
		New("code", types.MustMeta(types.TYPE_VARCHAR, 4)),
	}
	wide := types.MustMeta(types.TYPE_INTEGER, true, 8)
	wideCode := types.MustMeta(types.TYPE_VARCHAR, 10)

	data, err := EncodeRow(cols, types.DataRow{
		"id":   types.Type(wide).Set(1),
		"n":    types.Type(wide).Set(5),
		"code": types.Type(wideCode).Set("ab"),
	})
	require.NoError(t, err)
	require.Len(t, data, 8+2+6)

	got, err := DecodeMap(cols, data)
	require.NoError(t, err)
	require.Equal(t, int64(5), got["n"].Value())
	require.Equal(t, "ab", got["code"].Value())

	_, err = EncodeRow(cols, types.DataRow{"n": types.Type(wide).Set(40000)})
	require.ErrorIs(t, err, types.ErrInvalidType)
	_, err = EncodeRow(cols, types.DataRow{"code": types.Type(wideCode).Set("abcdefgh")})
	require.ErrorIs(t, err, types.ErrInvalidType)
}

func TestColumnJSON(t *testing.T) {
	cols := testColumns()
	d, err := json.Marshal(cols)
	require.NoError(t, err)

	var got []*Column
	require.NoError(t, json.Unmarshal(d, &got))
	require.Equal(t, cols, got)
	require.Equal(t, 2, Index(got, "code"))
	require.Nil(t, Find(got, "missing"))
}
