package handle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlePacking(t *testing.T) {
	tests := []struct {
		name       string
		typ        TypeID
		index      uint32
		generation uint16
	}{
		{"small", 1, 0, 0},
		{"mid", 42, 1234, 7},
		{"max", 0xFFFF, MaxIndex, 0xFFFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(tt.typ, tt.index, tt.generation)
			assert.Equal(t, tt.typ, h.Type())
			assert.Equal(t, tt.index, h.Index())
			assert.Equal(t, tt.generation, h.Generation())
			assert.Equal(t, h, FromID(h.ID()))
		})
	}
}

func TestHandleIdentity(t *testing.T) {
	a := New(3, 10, 1)
	b := New(3, 10, 2)

	require.NotEqual(t, a, b, "generation must take part in equality")
	assert.Equal(t, b, a.WithGeneration(2))
	assert.False(t, a.IsDead())
	assert.True(t, Dead.IsDead())
	assert.Equal(t, "handle(dead)", Dead.String())
	assert.Equal(t, "handle(type=3 index=10 gen=1)", a.String())
}
