package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRocAUC(t *testing.T) {
	testCases := []struct {
		name     string
		labels   []int
		scores   []float64
		expected float64
	}{
		{"perfect", []int{0, 0, 1, 1}, []float64{0.1, 0.2, 0.8, 0.9}, 1},
		{"inverted", []int{0, 0, 1, 1}, []float64{0.9, 0.8, 0.2, 0.1}, 0},
		{"all tied", []int{0, 1, 0, 1}, []float64{0.5, 0.5, 0.5, 0.5}, 0.5},
		{"partial", []int{0, 1, 0, 1}, []float64{0.1, 0.3, 0.35, 0.8}, 0.75},
	}
	for _, tc := range testCases {
		auc, err := rocAUC(tc.labels, tc.scores)
		require.NoError(t, err, tc.name)
		assert.InDelta(t, tc.expected, auc, 1e-12, tc.name)
	}
}

func TestRocAUCSingleClass(t *testing.T) {
	_, err := rocAUC([]int{1, 1}, []float64{0.2, 0.4})
	var dataErr *DataError
	assert.ErrorAs(t, err, &dataErr)
}

func TestConfusionMatrixAndReport(t *testing.T) {
	actual := []int{0, 0, 0, 1, 1}
	predicted := []int{0, 1, 0, 1, 0}
	cm := confusionMatrix(actual, predicted)
	assert.Equal(t, [2][2]int{{2, 1}, {1, 1}}, cm)

	r := classificationReport(cm)
	assert.InDelta(t, 0.6, r.Accuracy, 1e-12)
	assert.InDelta(t, 2.0/3, r.Classes["0"].Precision, 1e-12)
	assert.InDelta(t, 2.0/3, r.Classes["0"].Recall, 1e-12)
	assert.InDelta(t, 0.5, r.Classes["1"].Precision, 1e-12)
	assert.Equal(t, 2, r.Classes["1"].Support)
	assert.Equal(t, 5, r.WeightedAvg.Support)
	assert.Contains(t, r.Text, "precision")
	assert.Contains(t, r.Text, "weighted avg")
}

func TestClassificationReportZeroDivision(t *testing.T) {
	// 陽性を一度も予測しない場合は0として扱う
	r := classificationReport([2][2]int{{5, 0}, {3, 0}})
	assert.Zero(t, r.Classes["1"].Precision)
	assert.Zero(t, r.Classes["1"].F1Score)
	assert.InDelta(t, 5.0/8, r.Accuracy, 1e-12)
}
