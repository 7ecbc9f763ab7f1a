package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"beamview/internal/archive"
	"beamview/internal/camera"
	"beamview/internal/config"
	"beamview/internal/fleet"
	"beamview/internal/session"
	"beamview/internal/telemetry"
)

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config      *config.Config
	logger      *zap.Logger
	coordinator *fleet.Coordinator
	telemetry   *telemetry.Publisher // 無効な場合は nil
	engine      *gin.Engine
	httpServer  *http.Server

	shutdownOnce sync.Once
	shutdownErr  error
}

// New は新しいServerインスタンスを作成する
//
// publisher が nil の場合、統計情報は外部に送信しない。
func New(cfg *config.Config, discovery camera.Discovery, publisher *telemetry.Publisher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	var stats session.StatsPublisher
	if publisher != nil {
		stats = publisher
	}

	coordinator := fleet.NewCoordinator(
		discovery,
		cfg.FleetConfig(),
		archive.NewPolicy(cfg.Archive),
		stats,
		logger.Named("fleet"),
	)

	s := &Server{
		config:      cfg,
		logger:      logger,
		coordinator: coordinator,
		telemetry:   publisher,
	}
	s.engine = s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      s.engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// Bootstrap は設定からカメラバックエンドとテレメトリを組み立ててServerを作成する
//
// MQTTブローカーに接続できない場合は警告を出し、テレメトリ無しで続行する。
func Bootstrap(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	discovery, err := camera.NewDiscoveryFactory().Create(cfg.Camera.Backend, camera.BackendConfig{
		EmulatedCount: cfg.Camera.EmulatedCount,
	})
	if err != nil {
		return nil, fmt.Errorf("カメラバックエンドの初期化に失敗: %w", err)
	}

	var publisher *telemetry.Publisher
	if cfg.Telemetry.Enabled {
		publisher, err = telemetry.Connect(ctx, cfg.Telemetry, logger.Named("telemetry"))
		if err != nil {
			logger.Warn("MQTTブローカーに接続できません。テレメトリ無しで続行します",
				zap.String("broker", cfg.Telemetry.Broker),
				zap.Error(err),
			)
			publisher = nil
		}
	}

	return New(cfg, discovery, publisher, logger), nil
}

// Coordinator はカメラ群のコーディネーターを返す
func (s *Server) Coordinator() *fleet.Coordinator {
	return s.coordinator
}

// Handler はHTTPハンドラーを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	// ヘルスチェック
	router.GET("/health", s.handleHealth)
	router.GET("/", s.handleRoot)

	api := router.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/devices", s.handleDevices)

	// カメラ
	api.GET("/cameras", s.handleListCameras)
	api.POST("/cameras", s.handleAddCamera)
	cam := api.Group("/cameras/:id")
	cam.GET("", s.handleGetCamera)
	cam.DELETE("", s.handleRemoveCamera)
	cam.PUT("/name", s.handleSetName)
	cam.POST("/start", s.handleStartCamera)
	cam.POST("/stop", s.handleStopCamera)
	cam.PUT("/acquisition", s.handleSetAcquisition)
	cam.PUT("/region", s.handleSetRegion)
	cam.POST("/region/reset", s.handleResetRegion)
	cam.GET("/processing", s.handleGetProcessing)
	cam.PUT("/processing", s.handleSetProcessing)
	cam.POST("/range", s.handleRequestRange)
	cam.POST("/crosshairs", s.handleAddCrosshair)
	cam.PUT("/crosshairs/:cid", s.handleMoveCrosshair)
	cam.DELETE("/crosshairs/:cid", s.handleRemoveCrosshair)
	cam.PUT("/crosshair-mode", s.handleSetCrosshairMode)
	cam.GET("/stats", s.handleStats)
	cam.GET("/image", s.handleImage)
	cam.GET("/stream", s.handleStream)

	// カメラ群
	api.POST("/fleet/start", s.handleStartAll)
	api.POST("/fleet/stop", s.handleStopAll)
	api.GET("/fleet/pacing", s.handleGetPacing)
	api.POST("/fleet/pacing", s.handleRecomputePacing)

	// 保存
	api.GET("/archive/settings", s.handleGetArchiveSettings)
	api.PUT("/archive/settings", s.handleSetArchiveSettings)
	api.GET("/archive/preview", s.handleArchivePreview)
	api.POST("/archive/snapshot", s.handleSnapshot)
	api.GET("/archive/files", s.handleArchiveFiles)

	return router
}

// requestLogger はリクエストをzapで記録するミドルウェア
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("HTTPリクエスト",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// Start はサーバーを起動する
func (s *Server) Start(ctx context.Context) error {
	if err := s.coordinator.Start(ctx); err != nil {
		return fmt.Errorf("再描画スケジューラーの起動に失敗: %w", err)
	}
	s.openStartupCameras(ctx)

	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.logger.Info("HTTPサーバーを起動しています", zap.String("address", s.config.ServerAddress()))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		s.logger.Info("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		s.logger.Info("シグナルを受信しました", zap.String("signal", sig.String()))
	case err := <-shutdownCh:
		_ = s.Shutdown()
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// openStartupCameras は設定で指定されたデバイスを開く。失敗しても起動は続ける
func (s *Server) openStartupCameras(ctx context.Context) {
	for _, index := range s.config.Camera.OpenOnStartup {
		if _, err := s.coordinator.AddCamera(ctx, index); err != nil {
			s.logger.Warn("起動時のカメラ追加に失敗しました", zap.Int("index", index), zap.Error(err))
		}
	}
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.logger.Info("サーバーをシャットダウンしています...")

		// 5秒のタイムアウトを設定
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var errs []error
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("サーバーのシャットダウンに失敗: %w", err))
		}
		if err := s.coordinator.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("カメラの停止に失敗: %w", err))
		}
		if s.telemetry != nil {
			s.telemetry.Close()
		}

		s.shutdownErr = errors.Join(errs...)
		if s.shutdownErr == nil {
			s.logger.Info("サーバーが正常にシャットダウンされました")
		}
	})
	return s.shutdownErr
}
