// Package server assembles the HTTP API shared by the standalone server and
// the serverless entry point.
package server

import (
	"net/http"

	config "smartassist-api/configs"
	"smartassist-api/pkg/handlers"
	"smartassist-api/pkg/llm"
	"smartassist-api/pkg/logger"
	"smartassist-api/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// NewRouter wires services and handlers into a gin engine.
func NewRouter(cfg *config.Config, log zerolog.Logger) (*gin.Engine, error) {
	// サービスの初期化
	monitoringService := services.NewMonitoringService(cfg.Location())

	provider := llm.NewProvider(llm.Config{
		Provider:            cfg.AIProvider,
		OpenAIAPIKey:        cfg.OpenAIAPIKey,
		OpenAIModel:         cfg.OpenAIModel,
		OpenAIBaseURL:       cfg.OpenAIBaseURL,
		AnthropicAPIKey:     cfg.AnthropicAPIKey,
		AnthropicModel:      cfg.AnthropicModel,
		AnthropicBaseURL:    cfg.AnthropicBaseURL,
		AzureEndpoint:       cfg.AzureOpenAIEndpoint,
		AzureAPIKey:         cfg.AzureOpenAIAPIKey,
		AzureAPIVersion:     cfg.AzureOpenAIAPIVersion,
		AzureDeploymentName: cfg.AzureOpenAIDeploymentName,
		Timeout:             cfg.AITimeout,
	}, log)

	faqService, err := services.LoadFAQService(cfg.FAQFiles, log)
	if err != nil {
		return nil, err
	}
	prompts, err := config.LoadAssistantPrompts(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}
	assistantService := services.NewAssistantService(provider, faqService, prompts, log)
	tracker := services.NewConversationTracker()

	dataService := services.NewCustomerDataService(cfg.CustomerDataFile, log)
	pipeline := services.NewChurnPipeline(cfg.ModelDir, log)
	// 壊れたモデルがあっても起動は継続し、学習し直せるようにする
	if _, err := pipeline.LoadModel(); err != nil {
		log.Warn().Err(err).Msg("persisted churn model is unusable; retrain via /api/v1/churn/train")
	}

	// ハンドラーの初期化
	churnHandler := handlers.NewChurnHandler(pipeline, dataService, monitoringService, log)
	customerHandler := handlers.NewCustomerHandler(dataService, churnHandler, log)
	chatHandler := handlers.NewChatHandler(assistantService, tracker, monitoringService, log)
	adminHandler := handlers.NewAdminHandler(cfg, monitoringService, log)
	monitoringHandler := handlers.NewMonitoringHandler(monitoringService)

	r := gin.New()

	// ミドルウェアの登録
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(log))
	r.Use(monitoringService.LoggingMiddleware())
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "X-API-KEY")
	r.Use(cors.New(corsConfig))

	// ヘルスチェックエンドポイント
	r.GET("/health", adminHandler.HealthCheck)
	r.GET("/metrics", monitoringHandler.Metrics)

	// APIバージョン1のルートグループ
	v1 := r.Group("/api/v1")
	v1.Use(authMiddleware(cfg.APIKey))
	v1.Use(adminHandler.MaintenanceMiddleware())
	{
		// 管理者向けAPI
		admin := v1.Group("/admin")
		{
			admin.GET("/health-status", adminHandler.GetHealthStatus)
			admin.POST("/maintenance/start", adminHandler.StartMaintenance)
			admin.POST("/maintenance/stop", adminHandler.StopMaintenance)
		}

		// モニタリングAPI
		monitoring := v1.Group("/monitoring")
		{
			monitoring.GET("/logs", monitoringHandler.GetLogs)
		}

		// チャーン予測API
		churn := v1.Group("/churn")
		{
			churn.POST("/train", churnHandler.Train)
			churn.POST("/score", churnHandler.Score)
			churn.GET("/model", churnHandler.ModelInfo)
		}

		// 顧客データAPI
		customers := v1.Group("/customers")
		{
			customers.POST("/validate", customerHandler.Validate)
			customers.GET("/metrics", customerHandler.Metrics)
			customers.GET("/segments", customerHandler.Segments)
		}

		// チャットアシスタントAPI
		chat := v1.Group("/chat")
		{
			chat.POST("", chatHandler.Chat)
			chat.POST("/summary", chatHandler.Summary)
			chat.POST("/satisfaction", chatHandler.Satisfaction)
			chat.GET("/metrics", chatHandler.Metrics)
		}
		v1.GET("/faqs/search", chatHandler.SearchFAQs)
	}

	log.Info().
		Str("ai_provider", provider.Name()).
		Bool("ai_available", provider.Available()).
		Int("faqs", faqService.Count()).
		Bool("model_loaded", pipeline.IsTrained()).
		Msg("services initialised")
	return r, nil
}

// 認証ミドルウェア
func authMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" || apiKey == "default_secret_key" {
			c.Next()
			return
		}
		providedKey := c.GetHeader("X-API-KEY")
		if providedKey != apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
