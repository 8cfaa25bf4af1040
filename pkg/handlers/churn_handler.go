package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"smartassist-api/pkg/models"
	"smartassist-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ChurnHandler はチャーン予測モデルの学習・スコアリングを扱うハンドラです。
type ChurnHandler struct {
	pipeline   *services.ChurnPipeline
	data       *services.CustomerDataService
	monitoring *services.MonitoringService
	logger     zerolog.Logger

	// パイプラインは並行利用できないため学習とスコアリングを直列化する
	mu sync.Mutex
}

// NewChurnHandler は新しいChurnHandlerを生成します。
func NewChurnHandler(pipeline *services.ChurnPipeline, data *services.CustomerDataService, monitoring *services.MonitoringService, logger zerolog.Logger) *ChurnHandler {
	return &ChurnHandler{
		pipeline:   pipeline,
		data:       data,
		monitoring: monitoring,
		logger:     logger.With().Str("component", "churn_handler").Logger(),
	}
}

// ScoreRequest is the JSON body accepted by Score. Customers stay raw so
// absent and null fields are reported instead of defaulting to zero.
type ScoreRequest struct {
	Customers []map[string]json.RawMessage `json:"customers"`
}

// ScoreSummary counts scored rows per risk tier.
type ScoreSummary struct {
	Total          int            `json:"total"`
	ByRiskLevel    map[string]int `json:"by_risk_level"`
	PredictedChurn int            `json:"predicted_churn"`
	AvgProbability float64        `json:"avg_probability"`
}

// Train fits a new model on the uploaded dataset, or on the configured one
// when no file is attached.
func (h *ChurnHandler) Train(c *gin.Context) {
	table, source, err := tableFromRequest(c, h.data)
	if err != nil {
		respondError(c, err)
		return
	}
	ts, err := services.ParseTrainingSet(table)
	if err != nil {
		respondError(c, err)
		return
	}

	h.mu.Lock()
	start := time.Now()
	report, err := h.pipeline.Train(ts)
	elapsed := time.Since(start)
	h.mu.Unlock()

	if h.monitoring != nil {
		auc := 0.0
		if report != nil {
			auc = report.AUC
		}
		h.monitoring.RecordTraining(elapsed, auc, err)
	}
	if err != nil {
		h.logger.Warn().Err(err).Str("source", source).Msg("churn training failed")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"source":  source,
		"report":  report,
	})
}

// Score predicts churn for a JSON customer list, an uploaded file or the
// configured dataset. ?format=csv streams the scored rows as CSV.
func (h *ChurnHandler) Score(c *gin.Context) {
	records, source, err := h.recordsFromRequest(c)
	if err != nil {
		respondError(c, err)
		return
	}

	h.mu.Lock()
	scored, err := h.pipeline.Score(records)
	h.mu.Unlock()
	if err != nil {
		respondError(c, err)
		return
	}

	summary := summarize(scored)
	if h.monitoring != nil {
		h.monitoring.RecordScoring(summary.ByRiskLevel)
	}

	if c.Query("format") == "csv" {
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", `attachment; filename="churn_predictions.csv"`)
		c.Status(http.StatusOK)
		if err := services.WriteScoredCSV(c.Writer, scored); err != nil {
			h.logger.Error().Err(err).Msg("failed to write scored csv")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"source":    source,
		"summary":   summary,
		"customers": scored,
	})
}

// ModelInfo reports whether a model is trained and its feature importances.
func (h *ChurnHandler) ModelInfo(c *gin.Context) {
	h.mu.Lock()
	info, err := h.pipeline.ModelInfo()
	h.mu.Unlock()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *ChurnHandler) recordsFromRequest(c *gin.Context) ([]models.CustomerRecord, string, error) {
	if c.ContentType() == gin.MIMEJSON {
		var req ScoreRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, "", &services.DataError{Reason: fmt.Sprintf("invalid request body: %v", err)}
		}
		if len(req.Customers) == 0 {
			return nil, "", &services.DataError{Reason: "customers must not be empty"}
		}
		records, err := services.ParseCustomerObjects(req.Customers)
		if err != nil {
			return nil, "", err
		}
		return records, "request", nil
	}

	table, source, err := tableFromRequest(c, h.data)
	if err != nil {
		return nil, "", err
	}
	records, err := services.ParseCustomers(table)
	if err != nil {
		return nil, "", err
	}
	if len(records) == 0 {
		return nil, "", &services.DataError{Reason: "dataset has no rows"}
	}
	return records, source, nil
}

func summarize(scored []models.ScoredCustomer) ScoreSummary {
	s := ScoreSummary{
		Total: len(scored),
		ByRiskLevel: map[string]int{
			string(models.RiskLow):    0,
			string(models.RiskMedium): 0,
			string(models.RiskHigh):   0,
		},
	}
	var sum float64
	for _, sc := range scored {
		s.ByRiskLevel[string(sc.RiskLevel)]++
		s.PredictedChurn += sc.ChurnPrediction
		sum += sc.ChurnProbability
	}
	if len(scored) > 0 {
		s.AvgProbability = sum / float64(len(scored))
	}
	return s
}

// isModelNotTrained reports whether err means no model exists yet.
func isModelNotTrained(err error) bool {
	var notTrained *services.ModelNotTrainedError
	return errors.As(err, &notTrained)
}
