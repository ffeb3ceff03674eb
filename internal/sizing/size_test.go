package sizing

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOverflow = errors.New("overflow")

func TestAddUint64(t *testing.T) {
	t.Parallel()

	sum, ok := AddUint64(1, 2)
	require.True(t, ok)
	assert.Equal(t, uint64(3), sum)

	_, ok = AddUint64(math.MaxUint64, 1)
	assert.False(t, ok)
}

func TestWithin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		off  uint64
		n    uint64
		size int
		want bool
	}{
		{name: "exact fit", off: 2, n: 8, size: 10, want: true},
		{name: "empty at end", off: 10, n: 0, size: 10, want: true},
		{name: "one past end", off: 2, n: 9, size: 10, want: false},
		{name: "offset past end", off: 11, n: 0, size: 10, want: false},
		{name: "overflow", off: math.MaxUint64, n: 2, size: 10, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Within(tt.off, tt.n, tt.size))
		})
	}
}

func TestToInt(t *testing.T) {
	t.Parallel()

	n, err := ToInt(42, errOverflow)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = ToInt(math.MaxUint64, errOverflow)
	require.ErrorIs(t, err, errOverflow)
}

func TestMin(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint64(3), Min(3, 5))
	assert.Equal(t, uint64(5), Min(7, 5))
	assert.Equal(t, uint64(7), Min(7, 0))
}

func TestToInt64(t *testing.T) {
	t.Parallel()

	n, err := ToInt64(1<<40, errOverflow)
	require.NoError(t, err)
	assert.Equal(t, int64(1<<40), n)

	_, err = ToInt64(math.MaxUint64, errOverflow)
	require.ErrorIs(t, err, errOverflow)
}
