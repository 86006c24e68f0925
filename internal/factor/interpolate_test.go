package factor

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleTable() []ReferencePoint {
	return []ReferencePoint{
		{Threshold: d("5"), Factor: d("1.2750")},
		{Threshold: d("10"), Factor: d("1.2000")},
		{Threshold: d("20"), Factor: d("1.1750")},
		{Threshold: d("50"), Factor: d("1.1550")},
	}
}

func TestInterpolateBetweenRows(t *testing.T) {
	f, err := Interpolate(d("7500000"), sampleTable())
	require.NoError(t, err)
	// 1.2750 - 0.0750 * 2.5 / 5
	assert.True(t, f.Equal(d("1.2375")), "got %s", f)
}

func TestInterpolateAtOrBelowLowestThreshold(t *testing.T) {
	for _, base := range []string{"1", "4999999", "5000000"} {
		f, err := Interpolate(d(base), sampleTable())
		require.NoError(t, err)
		assert.True(t, f.Equal(d("1.2750")), "base %s got %s", base, f)
	}
}

func TestInterpolateExactThreshold(t *testing.T) {
	f, err := Interpolate(d("10000000"), sampleTable())
	require.NoError(t, err)
	assert.True(t, f.Equal(d("1.2000")), "got %s", f)
}

func TestInterpolateClampsAboveTable(t *testing.T) {
	f, err := Interpolate(d("900000000"), sampleTable())
	require.NoError(t, err)
	assert.True(t, f.Equal(d("1.1550")), "got %s", f)
}

func TestInterpolateTruncatesNeverRounds(t *testing.T) {
	table := []ReferencePoint{
		{Threshold: d("10"), Factor: d("1.2000")},
		{Threshold: d("40"), Factor: d("1.1000")},
	}
	// 1.2 - 0.1 * 10/30 = 1.166666...
	f, err := Interpolate(d("20000000"), table)
	require.NoError(t, err)
	assert.True(t, f.Equal(d("1.1666")), "got %s", f)
}

func TestInterpolateUnsortedTable(t *testing.T) {
	table := sampleTable()
	table[0], table[3] = table[3], table[0]
	table[1], table[2] = table[2], table[1]
	f, err := Interpolate(d("7500000"), table)
	require.NoError(t, err)
	assert.True(t, f.Equal(d("1.2375")))
	assert.True(t, table[0].Threshold.Equal(d("50")), "input must not be reordered")
}

func TestInterpolateTableWithoutLowFloor(t *testing.T) {
	table := []ReferencePoint{
		{Threshold: d("10"), Factor: d("1.2000")},
		{Threshold: d("20"), Factor: d("1.1750")},
	}
	f, err := Interpolate(d("3000000"), table)
	require.NoError(t, err)
	assert.True(t, f.Equal(d("1.2000")), "got %s", f)
}

func TestInterpolateEmptyTable(t *testing.T) {
	_, err := Interpolate(d("1000000"), nil)
	assert.ErrorIs(t, err, ErrEmptyReferenceTable)
}

func TestInterpolateMonotonic(t *testing.T) {
	table := sampleTable()
	prev := d("99")
	for base := int64(0); base <= 60_000_000; base += 250_000 {
		f, err := Interpolate(decimal.NewFromInt(base), table)
		require.NoError(t, err)
		assert.True(t, f.LessThanOrEqual(prev), "factor rose at %d", base)
		prev = f
	}
}

func TestComputeTotals(t *testing.T) {
	totals := ComputeTotals(d("7500000"), d("1.2375"))
	assert.True(t, totals.WithFactor.Equal(d("9281250")))
	assert.True(t, totals.WithVAT.Equal(d("9930937.5")))
	assert.True(t, totals.Computed)
}

func TestInterpolateConcurrentCallers(t *testing.T) {
	table := sampleTable()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := Interpolate(d("7500000"), table)
			assert.NoError(t, err)
			assert.True(t, f.Equal(d("1.2375")))
		}()
	}
	wg.Wait()
}
