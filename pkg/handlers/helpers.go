package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"smartassist-api/pkg/llm"
	"smartassist-api/pkg/services"

	"github.com/gin-gonic/gin"
)

const maxUploadBytes = 10 << 20 // 10MB

var errNoDataset = errors.New("no dataset provided: upload a CSV/XLSX file or configure CUSTOMER_DATA_FILE")

// respondError maps domain errors to HTTP statuses.
func respondError(c *gin.Context, err error) {
	var (
		dataErr    *services.DataError
		notTrained *services.ModelNotTrainedError
		corrupt    *services.CorruptModelError
		apiErr     *llm.APIError
	)
	switch {
	case errors.As(err, &dataErr):
		body := gin.H{"success": false, "error": dataErr.Error()}
		if len(dataErr.MissingColumns) > 0 {
			body["missing_columns"] = dataErr.MissingColumns
		}
		if len(dataErr.NullColumns) > 0 {
			body["null_columns"] = dataErr.NullColumns
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.As(err, &notTrained):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "Model not trained. Please train the model first.", "detail": err.Error()})
	case errors.As(err, &corrupt):
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Persisted model is corrupt. Please retrain the model.", "detail": err.Error()})
	case errors.Is(err, llm.ErrProviderNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": err.Error()})
	case errors.As(err, &apiErr):
		status := http.StatusBadGateway
		if apiErr.RateLimited() {
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{"success": false, "error": "AI provider request failed: " + apiErr.Error()})
	case errors.Is(err, errNoDataset):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	default:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
	}
}

// tableFromRequest reads the multipart "file" field when present and falls
// back to the configured dataset otherwise.
func tableFromRequest(c *gin.Context, data *services.CustomerDataService) (*services.Table, string, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	file, header, err := c.Request.FormFile("file")
	if err == nil {
		defer file.Close()
		table, err := services.ReadTable(file, header.Filename)
		if err != nil {
			return nil, "", err
		}
		return table, header.Filename, nil
	}
	if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
		return nil, "", &services.DataError{Reason: fmt.Sprintf("read upload: %v", err)}
	}

	if data.DefaultDataFile() == "" {
		return nil, "", errNoDataset
	}
	table, err := data.LoadDefault()
	if err != nil {
		return nil, "", fmt.Errorf("%w (%v)", errNoDataset, err)
	}
	return table, data.DefaultDataFile(), nil
}
