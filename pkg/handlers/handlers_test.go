package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	config "smartassist-api/configs"
	"smartassist-api/pkg/llm"
	"smartassist-api/pkg/models"
	"smartassist-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router  *gin.Engine
	admin   *AdminHandler
	dataDir string
}

// newTestServer はテスト用のルーターを組み立てる
func newTestServer(t *testing.T, defaultData string) *testServer {
	t.Helper()
	logger := zerolog.Nop()
	dir := t.TempDir()

	monitoring := services.NewMonitoringService(time.UTC)
	data := services.NewCustomerDataService(defaultData, logger)
	pipeline := services.NewChurnPipeline(filepath.Join(dir, "models"), logger)
	faqs := services.NewFAQService([]models.FAQ{
		{Question: "How do I recharge my plan?", Answer: "Use the app to recharge.", Category: "billing", Keywords: []string{"recharge", "topup"}},
		{Question: "Why is my data slow?", Answer: "Check your data balance.", Category: "network", Keywords: []string{"data", "slow"}},
	}, logger)
	assistant := services.NewAssistantService(llm.Unavailable(), faqs, models.AssistantPrompts{}, logger)

	churn := NewChurnHandler(pipeline, data, monitoring, logger)
	customers := NewCustomerHandler(data, churn, logger)
	chat := NewChatHandler(assistant, services.NewConversationTracker(), monitoring, logger)
	admin := NewAdminHandler(&config.Config{AdminUsername: "admin", AdminPassword: "secret"}, monitoring, logger)
	mon := NewMonitoringHandler(monitoring)

	r := gin.New()
	r.Use(monitoring.LoggingMiddleware())
	r.GET("/health", admin.HealthCheck)
	r.GET("/metrics", mon.Metrics)
	v1 := r.Group("/api/v1")
	v1.Use(admin.MaintenanceMiddleware())
	{
		v1.POST("/churn/train", churn.Train)
		v1.POST("/churn/score", churn.Score)
		v1.GET("/churn/model", churn.ModelInfo)
		v1.POST("/customers/validate", customers.Validate)
		v1.GET("/customers/metrics", customers.Metrics)
		v1.GET("/customers/segments", customers.Segments)
		v1.POST("/chat", chat.Chat)
		v1.POST("/chat/summary", chat.Summary)
		v1.POST("/chat/satisfaction", chat.Satisfaction)
		v1.GET("/chat/metrics", chat.Metrics)
		v1.GET("/faqs/search", chat.SearchFAQs)
		adminGroup := v1.Group("/admin")
		adminGroup.POST("/maintenance/start", admin.StartMaintenance)
		adminGroup.POST("/maintenance/stop", admin.StopMaintenance)
		adminGroup.GET("/health", admin.GetHealthStatus)
		v1.GET("/monitoring/logs", mon.GetLogs)
	}
	return &testServer{router: r, admin: admin, dataDir: dir}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func trainingCSV(t *testing.T, n int) []byte {
	t.Helper()
	ts, err := services.GenerateSyntheticCustomers(n, 0.25, 7)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, services.WriteTrainingCSV(&buf, ts))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, url, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, url string, v interface{}) *http.Request {
	b, _ := json.Marshal(v)
	req := httptest.NewRequest(method, url, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestScoreBeforeTraining(t *testing.T) {
	s := newTestServer(t, "")
	w := s.do(jsonRequest(http.MethodPost, "/api/v1/churn/score", gin.H{
		"customers": []models.CustomerRecord{{CustomerID: "C1", TenureMonths: 3, MonthlySpend: 40}},
	}))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/churn/model", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["trained"])
}

func TestTrainThenScore(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(uploadRequest(t, "/api/v1/churn/train", "customers.csv", trainingCSV(t, 200)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	report := body["report"].(map[string]interface{})
	assert.Equal(t, float64(160), report["train_size"])
	assert.Equal(t, float64(40), report["test_size"])
	assert.Contains(t, report, "auc")

	w = s.do(jsonRequest(http.MethodPost, "/api/v1/churn/score", gin.H{
		"customers": []models.CustomerRecord{
			{CustomerID: "A", TenureMonths: 60, MonthlySpend: 50, DataUsageGB: 20, CallMinutes: 300, Complaints: 0, LastRechargeDays: 3},
			{CustomerID: "B", TenureMonths: 2, MonthlySpend: 90, DataUsageGB: 1, CallMinutes: 10, Complaints: 6, LastRechargeDays: 80},
		},
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decode(t, w)
	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, float64(2), summary["total"])
	rows := body["customers"].([]interface{})
	require.Len(t, rows, 2)
	for _, r := range rows {
		row := r.(map[string]interface{})
		p := row["churn_probability"].(float64)
		assert.True(t, p >= 0 && p <= 1)
		assert.Contains(t, []interface{}{"Low", "Medium", "High"}, row["risk_level"])
	}

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/churn/model", nil))
	require.Equal(t, http.StatusOK, w.Code)
	info := decode(t, w)
	assert.Equal(t, true, info["trained"])
	assert.Len(t, info["feature_importance"], len(models.FeatureNames))

	// CSV出力
	req := uploadRequest(t, "/api/v1/churn/score?format=csv", "customers.csv", trainingCSV(t, 20))
	w = s.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Len(t, lines, 21)
	assert.Contains(t, lines[0], "churn_probability")

	w = s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `smartassist_churn_train_runs_total{status="success"} 1`)
}

func TestScoreJSONNamesMissingFields(t *testing.T) {
	s := newTestServer(t, "")
	require.Equal(t, http.StatusOK, s.do(uploadRequest(t, "/api/v1/churn/train", "c.csv", trainingCSV(t, 200))).Code)

	body := `{"customers":[{"customer_id":"C1","tenure_months":3,"monthly_spend":20,"data_usage_gb":1,"call_minutes":10}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/churn/score", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := s.do(req)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, []interface{}{"complaints", "last_recharge_days"}, decode(t, w)["missing_columns"])

	body = `{"customers":[{"customer_id":"C1","tenure_months":3,"monthly_spend":20,"data_usage_gb":1,"call_minutes":10,"complaints":null,"last_recharge_days":5}]}`
	req = httptest.NewRequest(http.MethodPost, "/api/v1/churn/score", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = s.do(req)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, map[string]interface{}{"complaints": float64(1)}, decode(t, w)["null_columns"])
}

func TestTrainRejectsMissingColumns(t *testing.T) {
	s := newTestServer(t, "")
	csv := "customer_id,tenure_months,monthly_spend,data_usage_gb,call_minutes,last_recharge_days,churn\nC1,1,10,1,1,1,0\n"
	w := s.do(uploadRequest(t, "/api/v1/churn/train", "bad.csv", []byte(csv)))
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, []interface{}{"complaints"}, body["missing_columns"])
}

func TestTrainWithoutDataset(t *testing.T) {
	s := newTestServer(t, "")
	w := s.do(httptest.NewRequest(http.MethodPost, "/api/v1/churn/train", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScoreRejectsNegativeValues(t *testing.T) {
	s := newTestServer(t, "")
	require.Equal(t, http.StatusOK, s.do(uploadRequest(t, "/api/v1/churn/train", "c.csv", trainingCSV(t, 100))).Code)

	w := s.do(jsonRequest(http.MethodPost, "/api/v1/churn/score", gin.H{
		"customers": []models.CustomerRecord{{CustomerID: "X", TenureMonths: -1}},
	}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCustomerEndpointsWithDefaultDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "customers.csv")
	require.NoError(t, os.WriteFile(path, trainingCSV(t, 40), 0o644))
	s := newTestServer(t, path)

	w := s.do(httptest.NewRequest(http.MethodPost, "/api/v1/customers/validate?require_label=true", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(40), decode(t, w)["rows"])

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/customers/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	metrics := decode(t, w)["metrics"].(map[string]interface{})
	assert.Equal(t, float64(40), metrics["total_customers"])
	assert.Equal(t, 0.25, metrics["churn_rate"])
	// モデル未学習ならリスク指標は含まれない
	assert.NotContains(t, metrics, "avg_churn_risk")

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/customers/segments", nil))
	require.Equal(t, http.StatusOK, w.Code)
	segments := decode(t, w)["segments"].(map[string]interface{})
	total := len(segments["new_customers"].([]interface{})) +
		len(segments["established_customers"].([]interface{})) +
		len(segments["loyal_customers"].([]interface{}))
	assert.Equal(t, 40, total)
}

func TestValidateReportsNulls(t *testing.T) {
	s := newTestServer(t, "")
	csv := "customer_id,tenure_months,monthly_spend,data_usage_gb,call_minutes,complaints,last_recharge_days\nC1,1,,1,1,0,1\n"
	w := s.do(uploadRequest(t, "/api/v1/customers/validate", "nulls.csv", []byte(csv)))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	validation := decode(t, w)["validation"].(map[string]interface{})
	assert.Equal(t, false, validation["valid"])
	assert.Equal(t, map[string]interface{}{"monthly_spend": float64(1)}, validation["null_columns"])
}

func TestChatWithoutProvider(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(jsonRequest(http.MethodPost, "/api/v1/chat", models.ChatRequest{Message: "How do I recharge?"}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var reply models.ChatReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, "Use the app to recharge.", reply.Response)
	assert.NotEmpty(t, reply.SessionID)
	assert.Equal(t, llm.ProviderNone, reply.Provider)

	w = s.do(jsonRequest(http.MethodPost, "/api/v1/chat", map[string]string{"message": ""}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(jsonRequest(http.MethodPost, "/api/v1/chat/summary", models.SummaryRequest{
		Conversation: []models.ChatTurn{{Role: "user", Content: "hi"}},
	}))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = s.do(jsonRequest(http.MethodPost, "/api/v1/chat/satisfaction", models.SatisfactionRequest{Score: 6}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(jsonRequest(http.MethodPost, "/api/v1/chat/satisfaction", models.SatisfactionRequest{Score: 4}))
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/chat/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	metrics := decode(t, w)
	conv := metrics["conversations"].(map[string]interface{})
	assert.Equal(t, float64(1), conv["total_conversations"])
	assert.Equal(t, float64(4), conv["avg_satisfaction"])
	assert.Equal(t, float64(2), metrics["faq_count"])
}

func TestSearchFAQs(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/faqs/search", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(httptest.NewRequest(http.MethodGet, "/api/v1/faqs/search?q=slow+data&top_k=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["count"])
	first := body["results"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Why is my data slow?", first["question"])
}

func TestMaintenanceMode(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(jsonRequest(http.MethodPost, "/api/v1/admin/maintenance/start", AdminCredentials{Username: "admin", Password: "wrong"}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(jsonRequest(http.MethodPost, "/api/v1/admin/maintenance/start", AdminCredentials{Username: "admin", Password: "secret"}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, s.admin.InMaintenance())

	assert.Equal(t, http.StatusServiceUnavailable, s.do(httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
	assert.Equal(t, http.StatusServiceUnavailable, s.do(httptest.NewRequest(http.MethodGet, "/api/v1/churn/model", nil)).Code)
	// 管理APIはメンテナンス中も利用可能
	assert.Equal(t, http.StatusOK, s.do(httptest.NewRequest(http.MethodGet, "/api/v1/admin/health", nil)).Code)

	w = s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "smartassist_maintenance_mode 1")

	w = s.do(jsonRequest(http.MethodPost, "/api/v1/admin/maintenance/stop", AdminCredentials{Username: "admin", Password: "secret"}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusOK, s.do(httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
}

func TestMonitoringLogs(t *testing.T) {
	s := newTestServer(t, "")
	s.do(httptest.NewRequest(http.MethodGet, "/api/v1/churn/model", nil))

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/monitoring/logs?period=1h", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/churn/model")
}
