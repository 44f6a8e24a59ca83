package gen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCount(t *testing.T) {
	require.Equal(t, 0, Count([]int{}, 1))
	require.Equal(t, 2, Count([]int{1, 2, 1}, 1))
	require.Equal(t, 1, Count([]string{"a", "b"}, "b"))
}

func TestClamp(t *testing.T) {
	require.Equal(t, 0.0, Clamp(-0.5, 0, 1))
	require.Equal(t, 1.0, Clamp(1.5, 0, 1))
	require.Equal(t, 5, Clamp(5, 1, 57))
}
