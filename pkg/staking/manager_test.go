package staking_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parolabs/governor/pkg/staking"
)

func TestManager(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("stake and list positions", func(t *testing.T) {
		m := staking.NewManager(25_000, 365*24*time.Hour)

		require.NoError(t, m.Stake("alice", big.NewInt(100_000), base))
		require.NoError(t, m.Stake("alice", big.NewInt(50_000), base.Add(time.Hour)))

		positions, err := m.Positions("alice")
		require.NoError(t, err)
		require.Len(t, positions, 2)
		assert.Equal(t, big.NewInt(100_000), positions[0].Amount)
		assert.Equal(t, base.Add(time.Hour), positions[1].StartTime)

		// Mutating the returned slice does not touch stored state.
		positions[0].Amount.SetInt64(1)
		fresh, err := m.Positions("alice")
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(100_000), fresh[0].Amount)
	})

	t.Run("rejects non-positive stakes", func(t *testing.T) {
		m := staking.NewManager(25_000, 365*24*time.Hour)
		assert.Error(t, m.Stake("alice", big.NewInt(0), base))
		assert.Error(t, m.Stake("alice", nil, base))
	})

	t.Run("unstake clears all positions", func(t *testing.T) {
		m := staking.NewManager(25_000, 365*24*time.Hour)
		require.NoError(t, m.Stake("alice", big.NewInt(100_000), base))

		m.Unstake("alice")

		positions, err := m.Positions("alice")
		require.NoError(t, err)
		assert.Empty(t, positions)
	})

	t.Run("multiplier parameters", func(t *testing.T) {
		m := staking.NewManager(25_000, 365*24*time.Hour)
		assert.Equal(t, uint64(25_000), m.MaxMultiplierBps())
		assert.Equal(t, 365*24*time.Hour, m.MaxStakingPeriod())

		m.SetMultiplier(15_000, 180*24*time.Hour)
		assert.Equal(t, uint64(15_000), m.MaxMultiplierBps())
		assert.Equal(t, 180*24*time.Hour, m.MaxStakingPeriod())
	})
}
