package idgen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IsUUID(t *testing.T) {
	_, err := uuid.Parse(New())
	require.NoError(t, err)
}

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("off_")
	assert.True(t, strings.HasPrefix(id, "off_"))
	assert.Len(t, id, len("off_")+32)
	assert.NotEqual(t, id, WithPrefix("off_"))
}

func TestSortable_MonotonicOrder(t *testing.T) {
	prev := Sortable("msg_")
	for i := 0; i < 1000; i++ {
		next := Sortable("msg_")
		require.Greater(t, next, prev, "ids must sort in mint order")
		prev = next
	}
}

func TestHex(t *testing.T) {
	assert.Len(t, Hex(16), 32)
}
