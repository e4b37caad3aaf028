package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"cameralink/internal/camera"
	"cameralink/internal/config"
	"cameralink/internal/library"
	"cameralink/internal/lifecycle"
	"cameralink/internal/presenter"
)

// Controller はナビゲーション操作を受け付けるライフサイクル管理
type Controller interface {
	Status() lifecycle.Status
	Refresh()
	Record()
	Reconfigure()
	CapturePhoto(ctx context.Context) <-chan struct{}
	SetWindowOrientation(o camera.InterfaceOrientation)
}

// Alerts は表示中のアラートを扱う
type Alerts interface {
	Current() (presenter.Alert, bool)
	Acknowledge(id string, index int) error
	Hint() string
}

// Library は保存された写真を参照する
type Library interface {
	Assets(ctx context.Context) ([]library.Asset, error)
	AssetPath(ctx context.Context, id string) (string, error)
}

// Preview はライブ映像を配信する
type Preview interface {
	VideoOrientation() camera.VideoOrientation
	Frames() (<-chan []byte, func())
}

// Dependencies はServerが使う部品
type Dependencies struct {
	Controller Controller
	Alerts     Alerts
	Library    Library
	Preview    Preview
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	deps       Dependencies
	logger     zerolog.Logger
	router     *gin.Engine
	httpServer *http.Server
}

// NewGin は新しいGinベースのServerインスタンスを作成する
func NewGin(cfg *config.Config, deps Dependencies, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		config: cfg,
		deps:   deps,
		logger: logger,
		router: router,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
	s.setupRoutes()
	return s
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	h := &handler{deps: s.deps, logger: s.logger}

	// ヘルスチェックエンドポイント
	s.router.GET("/health", h.HealthCheck)

	// APIエンドポイント
	api := s.router.Group("/api")
	{
		api.GET("/status", h.GetStatus)
		api.POST("/refresh", h.PostRefresh)
		api.POST("/record", h.PostRecord)
		api.POST("/photo", h.PostPhoto)
		api.POST("/reconfigure", h.PostReconfigure)
		api.GET("/alert", h.GetAlert)
		api.POST("/alert/:id/actions/:index", h.PostAlertAction)
		api.PUT("/orientation", h.PutOrientation)
		api.GET("/photos", h.GetPhotos)
		api.GET("/photos/:id", h.GetPhoto)
		api.GET("/preview", h.GetPreview)
	}

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 操作画面
	if assets, err := GetAssetsFS(); err == nil {
		s.router.StaticFS("/assets", assets)
	} else {
		s.logger.Warn().Err(err).Msg("埋め込みアセットを読み込めません")
	}
	s.router.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", getIndexHTML())
	})
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start はサーバーを起動し、ctx がキャンセルされるとシャットダウンする
func (s *Server) Start(ctx context.Context) error {
	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.logger.Info().Str("addr", s.config.ServerAddress()).Msg("HTTPサーバーを起動しています")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info().Msg("コンテキストがキャンセルされました")
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("サーバーをシャットダウンしています...")

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.logger.Info().Msg("サーバーが正常にシャットダウンされました")
	return nil
}

// requestLogger はリクエストをzerologで記録するミドルウェア
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// プレビューは長時間接続のため終了時のみ記録される
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}
