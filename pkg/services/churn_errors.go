package services

import (
	"fmt"
	"sort"
	"strings"
)

// DataError reports a dataset that cannot be used for training or scoring.
// MissingColumns and NullColumns name the offending columns.
type DataError struct {
	MissingColumns []string
	NullColumns    map[string]int
	Reason         string
}

func (e *DataError) Error() string {
	var parts []string
	if len(e.MissingColumns) > 0 {
		parts = append(parts, "missing columns: "+strings.Join(e.MissingColumns, ", "))
	}
	if len(e.NullColumns) > 0 {
		cols := make([]string, 0, len(e.NullColumns))
		for col := range e.NullColumns {
			cols = append(cols, col)
		}
		sort.Strings(cols)
		nulls := make([]string, 0, len(cols))
		for _, col := range cols {
			nulls = append(nulls, fmt.Sprintf("%s(%d)", col, e.NullColumns[col]))
		}
		parts = append(parts, "null values in columns: "+strings.Join(nulls, ", "))
	}
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	if len(parts) == 0 {
		return "invalid customer data"
	}
	return "invalid customer data: " + strings.Join(parts, "; ")
}

// ModelNotTrainedError is returned when scoring is attempted without a resident
// or persisted model.
type ModelNotTrainedError struct {
	ModelDir string
}

func (e *ModelNotTrainedError) Error() string {
	return fmt.Sprintf("churn model is not trained (no model found in %s): train the model first", e.ModelDir)
}

// CorruptModelError is returned when persisted artifacts exist but cannot be
// read back as a matching model/scaler pair.
type CorruptModelError struct {
	Path string
	Err  error
}

func (e *CorruptModelError) Error() string {
	return fmt.Sprintf("persisted churn model at %s is corrupt or mismatched, retrain to replace it: %v", e.Path, e.Err)
}

func (e *CorruptModelError) Unwrap() error {
	return e.Err
}
