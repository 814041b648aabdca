package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampLimit(t *testing.T) {
	tests := []struct {
		name     string
		value    int
		expected int
	}{
		{name: "zero uses default", value: 0, expected: 25},
		{name: "negative uses default", value: -3, expected: 25},
		{name: "in range passes through", value: 100, expected: 100},
		{name: "oversized is clamped", value: 9000, expected: 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClampLimit(tt.value, 25, 500))
		})
	}
}

func TestClampOffset(t *testing.T) {
	assert.Equal(t, 0, ClampOffset(-1))
	assert.Equal(t, 0, ClampOffset(0))
	assert.Equal(t, 42, ClampOffset(42))
}

func TestNormalizeOrder(t *testing.T) {
	order, err := NormalizeOrder("", OrderDesc)
	assert.NoError(t, err)
	assert.Equal(t, OrderDesc, order)

	order, err = NormalizeOrder(" ASC ", OrderDesc)
	assert.NoError(t, err)
	assert.Equal(t, OrderAsc, order)

	_, err = NormalizeOrder("sideways", OrderDesc)
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestBuildOffsetPageInfo(t *testing.T) {
	info := BuildOffsetPageInfo(10, 10, 0, OrderDesc, 25)
	assert.True(t, info.HasMore)
	assert.Equal(t, int64(25), info.TotalAvailable)

	info = BuildOffsetPageInfo(5, 10, 20, OrderDesc, 25)
	assert.False(t, info.HasMore)
	assert.Equal(t, 5, info.Returned)
}
