package utils_test

import (
	"testing"

	"github.com/jrsteele09/movie-ratings/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestValue(t *testing.T) {
	require.Equal(t, "", utils.Value[string](nil))
	require.Equal(t, 3, utils.Value(utils.Ptr(3)))
}

func TestTrimmedOrNil(t *testing.T) {
	require.Nil(t, utils.TrimmedOrNil("   "))
	require.Nil(t, utils.TrimmedOrNil(""))
	require.Equal(t, "Heat", *utils.TrimmedOrNil("  Heat "))
}
