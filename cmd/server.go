// Package main はBeamviewサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"beamview/internal/camera"
	"beamview/internal/config"
	"beamview/internal/logging"
	"beamview/internal/server"
)

func main() {
	// コマンドラインオプション
	var (
		host     = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port     = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		debug    = flag.Bool("debug", false, "実機の代わりにエミュレートカメラを使用")
		cameras  = flag.Int("cameras", 0, "-debug 時のエミュレートカメラ台数 (デフォルト: 20)")
		logLevel = flag.String("log-level", "", "ログレベル (debug/info/warn/error)")
		help     = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Beamview")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		fmt.Println()
		fmt.Println("このビルドには実機(GigE)のアダプターが含まれていません。")
		fmt.Println("-debug でエミュレートカメラを使用するか、camera.DiscoveryFactory.Register でアダプターを登録してください。")
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *debug {
		cfg.Camera.Backend = camera.BackendEmulated
	}
	if *cameras > 0 {
		cfg.Camera.EmulatedCount = *cameras
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("設定が不正です: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗しました: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// コンテキストを作成
	ctx := context.Background()

	srv, err := server.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("サーバーの作成に失敗しました", zap.Error(err))
	}

	// サーバーを起動
	logger.Info("Beamview サーバーを起動します",
		zap.String("address", cfg.ServerAddress()),
		zap.String("backend", cfg.Camera.Backend),
	)
	if err := srv.Start(ctx); err != nil {
		logger.Fatal("サーバーの起動に失敗しました", zap.Error(err))
	}
}
