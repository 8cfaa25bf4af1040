package services

import (
	"fmt"
	"math"
	"strings"

	"smartassist-api/pkg/models"
)

// rocAUC computes the area under the ROC curve as the Mann-Whitney rank
// statistic, averaging ranks over tied scores.
func rocAUC(labels []int, scores []float64) (float64, error) {
	if len(labels) != len(scores) {
		return 0, fmt.Errorf("auc: %d labels but %d scores", len(labels), len(scores))
	}
	var nPos, nNeg int
	for _, y := range labels {
		if y == 1 {
			nPos++
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0, &DataError{Reason: "evaluation split must contain both churn classes to compute AUC"}
	}
	ranks := averageRanks(scores)
	var posRankSum float64
	for i, y := range labels {
		if y == 1 {
			posRankSum += ranks[i]
		}
	}
	u := posRankSum - float64(nPos)*float64(nPos+1)/2
	return u / (float64(nPos) * float64(nNeg)), nil
}

// confusionMatrix rows are the actual class, columns the predicted class.
func confusionMatrix(actual, predicted []int) [2][2]int {
	var m [2][2]int
	for i := range actual {
		m[actual[i]][predicted[i]]++
	}
	return m
}

// classificationReport derives per-class precision/recall/F1 from a
// confusion matrix. Undefined ratios are reported as 0.
func classificationReport(cm [2][2]int) models.ClassificationReport {
	report := models.ClassificationReport{Classes: make(map[string]models.ClassMetrics, 2)}

	total := 0
	correct := 0
	perClass := make([]models.ClassMetrics, 2)
	for c := 0; c < 2; c++ {
		tp := cm[c][c]
		support := cm[c][0] + cm[c][1]
		predicted := cm[0][c] + cm[1][c]
		m := models.ClassMetrics{
			Precision: safeDiv(float64(tp), float64(predicted)),
			Recall:    safeDiv(float64(tp), float64(support)),
			Support:   support,
		}
		m.F1Score = safeDiv(2*m.Precision*m.Recall, m.Precision+m.Recall)
		perClass[c] = m
		report.Classes[fmt.Sprintf("%d", c)] = m
		total += support
		correct += tp
	}

	report.Accuracy = safeDiv(float64(correct), float64(total))
	for _, m := range perClass {
		report.MacroAvg.Precision += m.Precision / 2
		report.MacroAvg.Recall += m.Recall / 2
		report.MacroAvg.F1Score += m.F1Score / 2
		w := safeDiv(float64(m.Support), float64(total))
		report.WeightedAvg.Precision += m.Precision * w
		report.WeightedAvg.Recall += m.Recall * w
		report.WeightedAvg.F1Score += m.F1Score * w
	}
	report.MacroAvg.Support = total
	report.WeightedAvg.Support = total
	report.Text = renderClassificationReport(perClass, report)
	return report
}

func renderClassificationReport(perClass []models.ClassMetrics, r models.ClassificationReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%14s %9s %9s %9s %9s\n\n", "", "precision", "recall", "f1-score", "support")
	for c, m := range perClass {
		fmt.Fprintf(&sb, "%14d %9.2f %9.2f %9.2f %9d\n", c, m.Precision, m.Recall, m.F1Score, m.Support)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "%14s %9s %9s %9.2f %9d\n", "accuracy", "", "", r.Accuracy, r.MacroAvg.Support)
	fmt.Fprintf(&sb, "%14s %9.2f %9.2f %9.2f %9d\n", "macro avg", r.MacroAvg.Precision, r.MacroAvg.Recall, r.MacroAvg.F1Score, r.MacroAvg.Support)
	fmt.Fprintf(&sb, "%14s %9.2f %9.2f %9.2f %9d\n", "weighted avg", r.WeightedAvg.Precision, r.WeightedAvg.Recall, r.WeightedAvg.F1Score, r.WeightedAvg.Support)
	return sb.String()
}

func safeDiv(a, b float64) float64 {
	if b == 0 || math.IsNaN(b) {
		return 0
	}
	return a / b
}

// importanceMap pairs importances with feature names.
func importanceMap(importances []float64) map[string]float64 {
	out := make(map[string]float64, len(importances))
	for i, v := range importances {
		if i < len(models.FeatureNames) {
			out[models.FeatureNames[i]] = v
		}
	}
	return out
}
