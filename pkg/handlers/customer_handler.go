package handlers

import (
	"net/http"
	"strconv"

	"smartassist-api/pkg/models"
	"smartassist-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// CustomerHandler はデータセットの検証・集計を扱うハンドラです。
type CustomerHandler struct {
	data   *services.CustomerDataService
	churn  *ChurnHandler
	logger zerolog.Logger
}

// NewCustomerHandler は新しいCustomerHandlerを生成します。
func NewCustomerHandler(data *services.CustomerDataService, churn *ChurnHandler, logger zerolog.Logger) *CustomerHandler {
	return &CustomerHandler{
		data:   data,
		churn:  churn,
		logger: logger.With().Str("component", "customer_handler").Logger(),
	}
}

// Validate checks a dataset for required columns and nulls. The churn label
// is only required with ?require_label=true.
func (h *CustomerHandler) Validate(c *gin.Context) {
	table, source, err := tableFromRequest(c, h.data)
	if err != nil {
		respondError(c, err)
		return
	}
	requireLabel, _ := strconv.ParseBool(c.DefaultQuery("require_label", "false"))
	result := services.ValidateTable(table, requireLabel)

	status := http.StatusOK
	if !result.Valid {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{
		"success":    result.Valid,
		"source":     source,
		"rows":       len(table.Rows),
		"validation": result,
	})
}

// Metrics aggregates the dataset. Churn rate is included when the dataset
// carries labels and risk figures when a model is trained.
func (h *CustomerHandler) Metrics(c *gin.Context) {
	records, labels, source, err := h.loadRecords(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var scored []models.ScoredCustomer
	if h.churn != nil && len(records) > 0 {
		h.churn.mu.Lock()
		scored, err = h.churn.pipeline.Score(records)
		h.churn.mu.Unlock()
		if err != nil && !isModelNotTrained(err) {
			respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"source":  source,
		"metrics": services.CalculateMetrics(records, labels, scored),
	})
}

// Segments groups customers by spend quartile and tenure band.
func (h *CustomerHandler) Segments(c *gin.Context) {
	records, _, source, err := h.loadRecords(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"source":   source,
		"segments": services.Segments(records),
	})
}

func (h *CustomerHandler) loadRecords(c *gin.Context) ([]models.CustomerRecord, []int, string, error) {
	table, source, err := tableFromRequest(c, h.data)
	if err != nil {
		return nil, nil, "", err
	}
	if services.ValidateTable(table, true).Valid {
		ts, err := services.ParseTrainingSet(table)
		if err != nil {
			return nil, nil, "", err
		}
		return ts.Records, ts.Labels, source, nil
	}
	records, err := services.ParseCustomers(table)
	if err != nil {
		return nil, nil, "", err
	}
	return records, nil, source, nil
}
