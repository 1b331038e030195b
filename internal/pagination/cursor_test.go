package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merakimarket/meraki/internal/apperr"
)

func TestEncodeDecode(t *testing.T) {
	ts := time.Date(2026, 2, 15, 10, 30, 0, 123456000, time.UTC)

	cursor, err := Decode(Encode(ts, "led_01J0"))
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.True(t, ts.Equal(cursor.CreatedAt))
	assert.Equal(t, "led_01J0", cursor.ID)
}

func TestDecode_Empty(t *testing.T) {
	cursor, err := Decode("")
	assert.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestDecode_Invalid(t *testing.T) {
	for _, in := range []string{"!!!", "bm9waXBl", "YWJjfGlk", "MTIzfA"} {
		_, err := Decode(in)
		assert.ErrorIs(t, err, ErrInvalidCursor, in)
		assert.ErrorIs(t, err, apperr.ErrValidation, in)
	}
}

func TestCursor_After(t *testing.T) {
	ts := time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC)
	c := &Cursor{CreatedAt: ts, ID: "b"}

	assert.True(t, c.After(ts.Add(-time.Second), "z"))
	assert.True(t, c.After(ts, "a"))
	assert.False(t, c.After(ts, "b"))
	assert.False(t, c.After(ts, "c"))
	assert.False(t, c.After(ts.Add(time.Second), "a"))

	var none *Cursor
	assert.True(t, none.After(ts, "anything"))
}

type row struct {
	at time.Time
	id string
}

func TestComputePage(t *testing.T) {
	base := time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC)
	rows := []row{
		{base.Add(3 * time.Minute), "r3"},
		{base.Add(2 * time.Minute), "r2"},
		{base.Add(time.Minute), "r1"},
	}
	key := func(r row) (time.Time, string) { return r.at, r.id }

	page, next, more := ComputePage(rows, 2, key)
	assert.Len(t, page, 2)
	assert.True(t, more)

	c, err := Decode(next)
	require.NoError(t, err)
	assert.Equal(t, "r2", c.ID)

	page, next, more = ComputePage(rows, 3, key)
	assert.Len(t, page, 3)
	assert.Empty(t, next)
	assert.False(t, more)
}
