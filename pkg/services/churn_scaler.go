package services

import "fmt"

// standardScaler standardises each feature to zero mean and unit variance.
// Parameters come from fit only; transform never refits.
type standardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// fitStandardScaler computes per-column mean and population standard
// deviation. A constant column gets scale 1 so it maps to zero.
func fitStandardScaler(x [][]float64) (*standardScaler, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("cannot fit scaler on empty matrix")
	}
	cols := len(x[0])
	s := &standardScaler{
		Mean:  make([]float64, cols),
		Scale: make([]float64, cols),
	}
	column := make([]float64, len(x))
	for j := 0; j < cols; j++ {
		for i, row := range x {
			column[i] = row[j]
		}
		s.Mean[j] = calculateMean(column)
		std := calculateStandardDeviation(column)
		if std == 0 {
			std = 1
		}
		s.Scale[j] = std
	}
	return s, nil
}

// transform returns a new standardised matrix; x is left untouched.
func (s *standardScaler) transform(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		if len(row) != len(s.Mean) {
			return nil, fmt.Errorf("scaler expects %d features, row %d has %d", len(s.Mean), i, len(row))
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = scaled
	}
	return out, nil
}
