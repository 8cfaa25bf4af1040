package handler

import (
	"net/http"
	"sync"

	config "smartassist-api/configs"
	"smartassist-api/internal/server"
	"smartassist-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

var (
	app     *gin.Engine
	initErr error
	once    sync.Once
)

// setupApp はGinアプリケーションを初期化します。
// サーバーレス環境では、リクエストごとに初期化が走らないようsync.Onceで一度だけ実行します。
func setupApp() (*gin.Engine, error) {
	once.Do(func() {
		// .envファイルはVercelの環境変数設定から読み込まれるため、ここではgodotenvを呼び出しません。
		cfg := config.LoadConfig()
		log := logger.New(logger.Config{
			Level:       cfg.LogLevel,
			Format:      cfg.LogFormat,
			ServiceName: "smartassist-api",
		})
		gin.SetMode(gin.ReleaseMode)
		app, initErr = server.NewRouter(cfg, log)
		if initErr != nil {
			log.Error().Err(initErr).Msg("failed to initialise serverless handler")
		}
	})
	return app, initErr
}

// Handler はVercelからのすべてのリクエストを処理するエントリーポイントです。
func Handler(w http.ResponseWriter, r *http.Request) {
	app, err := setupApp()
	if err != nil {
		http.Error(w, "service unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	app.ServeHTTP(w, r)
}
