package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitStandardScaler(t *testing.T) {
	x := [][]float64{
		{1, 5, 10},
		{3, 5, 20},
		{5, 5, 30},
	}
	s, err := fitStandardScaler(x)
	require.NoError(t, err)

	assert.InDeltaSlice(t, []float64{3, 5, 20}, s.Mean, 1e-12)
	// 母標準偏差、定数列はスケール1
	assert.InDelta(t, 1.632993161855452, s.Scale[0], 1e-12)
	assert.Equal(t, 1.0, s.Scale[1])

	out, err := s.transform(x)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, out[1][0], 1e-12)
	for _, row := range out {
		assert.Zero(t, row[1])
	}
	assert.Equal(t, 1.0, x[0][0], "input must not be modified")
}

func TestScalerWidthMismatch(t *testing.T) {
	s, err := fitStandardScaler([][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	_, err = s.transform([][]float64{{1, 2, 3}})
	assert.Error(t, err)

	_, err = fitStandardScaler(nil)
	assert.Error(t, err)
}
