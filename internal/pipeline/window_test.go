package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow(t *testing.T) {
	w, err := NewWindow(10, 4)
	require.NoError(t, err)

	assert.False(t, w.Seen("a"))
	w.Mark("a")
	assert.True(t, w.Seen("a"))

	for i := 0; i < 20; i++ {
		w.Mark(fmt.Sprintf("fp-%d", i))
	}
	assert.Equal(t, 10, w.Len(), "capacity bounds the window")
	assert.False(t, w.Seen("a"), "oldest entries are evicted first")

	assert.Equal(t, 6, w.Prune())
	assert.Equal(t, 4, w.Len())
	for i := 16; i < 20; i++ {
		assert.True(t, w.Seen(fmt.Sprintf("fp-%d", i)))
	}
	assert.False(t, w.Seen("fp-15"))
	assert.Zero(t, w.Prune())
}

func TestNewWindowValidatesRetain(t *testing.T) {
	_, err := NewWindow(10, 11)
	assert.Error(t, err)
	_, err = NewWindow(10, 0)
	assert.Error(t, err)
}
