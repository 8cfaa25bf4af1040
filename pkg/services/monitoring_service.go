package services

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsNamespace = "smartassist"
	// logRetention bounds the in-memory request log to the longest dashboard period.
	logRetention = 7 * 24 * time.Hour
)

// LogEntry は単一のリクエストログを表します。
type LogEntry struct {
	Timestamp    time.Time     `json:"timestamp"`
	Path         string        `json:"path"`
	Method       string        `json:"method"`
	StatusCode   int           `json:"status_code"`
	ResponseTime time.Duration `json:"response_time_ns"`
}

// MonitoringService keeps a request log for the dashboard and exports
// Prometheus metrics for HTTP traffic, churn model runs and chat traffic.
type MonitoringService struct {
	mu       sync.RWMutex
	logs     []LogEntry
	location *time.Location
	now      func() time.Time

	registry         *prometheus.Registry
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	trainRuns        *prometheus.CounterVec
	trainDuration    prometheus.Histogram
	modelAUC         prometheus.Gauge
	scoredCustomers  prometheus.Counter
	scoredByRisk     *prometheus.CounterVec
	chatMessages     *prometheus.CounterVec
	chatDuration     prometheus.Histogram
	satisfaction     prometheus.Histogram
	maintenanceState prometheus.Gauge
}

// NewMonitoringService は新しいMonitoringServiceを生成します。
// location is used to label dashboard hour buckets; nil means UTC.
func NewMonitoringService(location *time.Location) *MonitoringService {
	if location == nil {
		location = time.UTC
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &MonitoringService{
		logs:     make([]LogEntry, 0),
		location: location,
		now:      time.Now,
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		trainRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "churn_train_runs_total",
			Help:      "Total number of churn model training runs",
		}, []string{"status"}),
		trainDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "churn_train_duration_seconds",
			Help:      "Histogram of churn model training time",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		modelAUC: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "churn_model_auc",
			Help:      "Evaluation AUC of the most recently trained churn model",
		}),
		scoredCustomers: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "churn_scored_customers_total",
			Help:      "Total number of customers scored",
		}),
		scoredByRisk: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "churn_scored_by_risk_total",
			Help:      "Scored customers by risk level",
		}, []string{"risk_level"}),
		chatMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "chat_messages_total",
			Help:      "Total number of answered chat messages by intent and provider",
		}, []string{"intent", "provider"}),
		chatDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "chat_response_duration_seconds",
			Help:      "Histogram of chat response time",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		satisfaction: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "chat_satisfaction_score",
			Help:      "Customer satisfaction scores (1-5)",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		maintenanceState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "maintenance_mode",
			Help:      "1 while the API is in maintenance mode",
		}),
	}
}

// Registry returns the service's Prometheus registry.
func (s *MonitoringService) Registry() *prometheus.Registry {
	return s.registry
}

// MetricsHandler serves the registry in the Prometheus exposition format.
func (s *MonitoringService) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// LogRequest はリクエストを記録します。
func (s *MonitoringService) LogRequest(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)

	// 保持期間を過ぎたログを先頭から捨てる
	cutoff := s.now().Add(-logRetention)
	drop := 0
	for drop < len(s.logs) && s.logs[drop].Timestamp.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		s.logs = append(s.logs[:0], s.logs[drop:]...)
	}
}

// LoggingMiddleware はリクエスト情報を記録するGinミドルウェアです。
func (s *MonitoringService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		s.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(status)).Inc()
		s.httpDuration.WithLabelValues(route, c.Request.Method).Observe(elapsed.Seconds())

		// 除外するパスプレフィックス
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api/v1/admin") || strings.HasPrefix(path, "/api/v1/monitoring") || path == "/metrics" {
			return
		}
		s.LogRequest(LogEntry{
			Timestamp:    start,
			Path:         path,
			Method:       c.Request.Method,
			StatusCode:   status,
			ResponseTime: elapsed,
		})
	}
}

// RecordTraining records one training attempt. auc is ignored on failure.
func (s *MonitoringService) RecordTraining(duration time.Duration, auc float64, err error) {
	s.trainDuration.Observe(duration.Seconds())
	if err != nil {
		s.trainRuns.WithLabelValues("failed").Inc()
		return
	}
	s.trainRuns.WithLabelValues("success").Inc()
	s.modelAUC.Set(auc)
}

// RecordScoring records scored customers per risk level.
func (s *MonitoringService) RecordScoring(byRisk map[string]int) {
	for level, n := range byRisk {
		s.scoredCustomers.Add(float64(n))
		s.scoredByRisk.WithLabelValues(level).Add(float64(n))
	}
}

// RecordChat records one answered chat message.
func (s *MonitoringService) RecordChat(intent, provider string, responseTime time.Duration) {
	s.chatMessages.WithLabelValues(intent, provider).Inc()
	s.chatDuration.Observe(responseTime.Seconds())
}

// RecordSatisfaction records a satisfaction score.
func (s *MonitoringService) RecordSatisfaction(score int) {
	s.satisfaction.Observe(float64(score))
}

// SetMaintenance mirrors the maintenance flag as a gauge.
func (s *MonitoringService) SetMaintenance(on bool) {
	if on {
		s.maintenanceState.Set(1)
	} else {
		s.maintenanceState.Set(0)
	}
}

// DashboardData はダッシュボードに表示するための集計済みデータです。
type DashboardData struct {
	RequestsOverTime []map[string]interface{} `json:"requestsOverTime"`
	Endpoints        map[string]int           `json:"endpoints"`
	StatusCodes      []map[string]interface{} `json:"statusCodes"`
	AvgResponseTimes []map[string]interface{} `json:"avgResponseTimes"`
	RecentErrors     []LogEntry               `json:"recentErrors"`
}

// GetDashboardData は指定された期間のログを集計してダッシュボード用データを返します。
func (s *MonitoringService) GetDashboardData(periodHours int) DashboardData {
	if periodHours <= 0 {
		periodHours = 24
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now().In(s.location)
	since := now.Add(-time.Duration(periodHours) * time.Hour)

	filtered := make([]LogEntry, 0)
	for _, log := range s.logs {
		if log.Timestamp.After(since) {
			filtered = append(filtered, log)
		}
	}

	// 時間バケットを過去から現在の順に初期化
	requestsOverTime := make([]map[string]interface{}, periodHours)
	bucketIndex := make(map[string]int, periodHours)
	for i := 0; i < periodHours; i++ {
		target := now.Add(-time.Duration(periodHours-1-i) * time.Hour)
		bucketIndex[target.Truncate(time.Hour).Format(time.RFC3339)] = i
		requestsOverTime[i] = map[string]interface{}{"time": target.Format("15:00"), "requests": 0}
	}

	endpoints := make(map[string]int)
	statusCodes := map[string]int{
		"2xx Success":      0,
		"4xx Client Error": 0,
		"5xx Server Error": 0,
	}
	responseTimeSum := make(map[string]time.Duration)
	responseCount := make(map[string]int)

	for _, log := range filtered {
		key := log.Timestamp.In(s.location).Truncate(time.Hour).Format(time.RFC3339)
		if i, ok := bucketIndex[key]; ok {
			requestsOverTime[i]["requests"] = requestsOverTime[i]["requests"].(int) + 1
		}
		endpoints[log.Path]++
		switch {
		case log.StatusCode >= 200 && log.StatusCode < 300:
			statusCodes["2xx Success"]++
		case log.StatusCode >= 400 && log.StatusCode < 500:
			statusCodes["4xx Client Error"]++
		case log.StatusCode >= 500:
			statusCodes["5xx Server Error"]++
		}
		responseTimeSum[log.Path] += log.ResponseTime
		responseCount[log.Path]++
	}

	statusNames := make([]string, 0, len(statusCodes))
	for name := range statusCodes {
		statusNames = append(statusNames, name)
	}
	sort.Strings(statusNames)
	statusCodesSlice := make([]map[string]interface{}, 0, len(statusNames))
	for _, name := range statusNames {
		statusCodesSlice = append(statusCodesSlice, map[string]interface{}{"name": name, "value": statusCodes[name]})
	}

	paths := make([]string, 0, len(responseTimeSum))
	for path := range responseTimeSum {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	avgResponseTimes := make([]map[string]interface{}, 0, len(paths))
	for _, path := range paths {
		avg := responseTimeSum[path].Milliseconds() / int64(responseCount[path])
		avgResponseTimes = append(avgResponseTimes, map[string]interface{}{"endpoint": path, "responseTime": avg})
	}

	// 直近の5xxエラーを新しい順に最大10件
	recentErrors := make([]LogEntry, 0)
	for i := len(filtered) - 1; i >= 0 && len(recentErrors) < 10; i-- {
		if filtered[i].StatusCode >= 500 {
			recentErrors = append(recentErrors, filtered[i])
		}
	}

	return DashboardData{
		RequestsOverTime: requestsOverTime,
		Endpoints:        endpoints,
		StatusCodes:      statusCodesSlice,
		AvgResponseTimes: avgResponseTimes,
		RecentErrors:     recentErrors,
	}
}
