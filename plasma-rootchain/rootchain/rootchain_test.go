package rootchain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlagSet(t *testing.T) {
	require.False(t, FlagSet(nil))
	require.False(t, FlagSet(big.NewInt(1_700_000_000)))

	flagged := SetFlag(1_700_000_000)
	require.True(t, FlagSet(flagged))
	require.Equal(t, uint64(1_700_000_000), new(big.Int).SetBit(flagged, challengeFlagBit, 0).Uint64())
}

func TestClearFlag(t *testing.T) {
	require.Zero(t, ClearFlag(nil))
	require.Equal(t, uint64(1_700_000_000), ClearFlag(big.NewInt(1_700_000_000)))

	flagged := SetFlag(1_700_000_000)
	require.Equal(t, uint64(1_700_000_000), ClearFlag(flagged))
	require.True(t, FlagSet(flagged), "input is left untouched")
}
