package distribution

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDistributor(seed int64) *Distributor {
	return New(1000, 100, 800, rand.New(rand.NewSource(seed)))
}

func TestDistribute_SumInvariant(t *testing.T) {
	d := newTestDistributor(1)

	// Sampled sweep across the supported range (minor units).
	for total := int64(1); total <= 1_000_000; total += 997 {
		items, err := d.Distribute(total)
		require.NoError(t, err, "total=%d", total)
		require.NotEmpty(t, items)

		var sum int64
		for _, item := range items {
			assert.Positive(t, item.PriceMinor, "total=%d", total)
			sum += item.PriceMinor
		}
		assert.Equal(t, total, sum, "total=%d", total)
	}
}

func TestDistribute_SingleItemThreshold(t *testing.T) {
	d := newTestDistributor(2)

	items, err := d.Distribute(100_000) // exactly 1000 units
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(100_000), items[0].PriceMinor)

	items, err = d.Distribute(100_001)
	require.NoError(t, err)
	assert.Greater(t, len(items), 1)
}

func TestDistribute_SplitsLargeTotal(t *testing.T) {
	d := newTestDistributor(3)

	// 1450.50 in a currency with 100 minor units.
	items, err := d.Distribute(145_050)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(items), 2)

	var sum int64
	for _, item := range items {
		require.Positive(t, item.PriceMinor)
		sum += item.PriceMinor
	}
	assert.Equal(t, int64(145_050), sum)
}

func TestDistribute_RejectsNonPositiveTotal(t *testing.T) {
	d := newTestDistributor(4)

	_, err := d.Distribute(0)
	assert.Error(t, err)

	_, err = d.Distribute(-500)
	assert.Error(t, err)
}

func TestDistribute_IterationCapOverflow(t *testing.T) {
	// A degenerate configuration that can only peel 10 units at a time
	// cannot drain a huge total within the cap.
	d := New(1, 10, 10, rand.New(rand.NewSource(5)))

	_, err := d.Distribute(2_000_000)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestDistribute_Deterministic(t *testing.T) {
	a := newTestDistributor(42)
	b := newTestDistributor(42)

	itemsA, err := a.Distribute(567_890)
	require.NoError(t, err)
	itemsB, err := b.Distribute(567_890)
	require.NoError(t, err)

	assert.Equal(t, itemsA, itemsB)
}
