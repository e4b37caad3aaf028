// Package main はCameraLinkサーバーコマンドの実装です
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cameralink/internal/app"
	"cameralink/internal/camera"
	"cameralink/internal/config"
	applog "cameralink/internal/log"
)

func main() {
	// コマンドラインオプション
	var (
		configPath  = flag.String("config", "", "設定ファイルのパス (デフォルト: $CAMERALINK_CONFIG)")
		host        = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port        = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		preset      = flag.String("preset", "", "出力品質プリセット (hd1920x1080, hd1280x720 など)")
		orientation = flag.String("orientation", "", "起動時のウィンドウの向き")
		passthrough = flag.Bool("passthrough", false, "キャプチャ音声をスピーカーへ流す")
		help        = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("CameraLink")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	path := *configPath
	if path == "" {
		path = os.Getenv("CAMERALINK_CONFIG")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "設定の読み込みに失敗しました: %v\n", err)
		os.Exit(1)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *preset != "" {
		cfg.Camera.Preset = camera.Preset(*preset)
	}
	if *orientation != "" {
		cfg.Display.Orientation = *orientation
	}
	if *passthrough {
		cfg.Audio.PassthroughEnabled = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "設定が不正です: %v\n", err)
		os.Exit(1)
	}

	// シグナルでキャンセルされるコンテキストを作成
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// アプリケーションを起動
	applog.Configure(applog.Config{Level: cfg.Log.Level})
	mainLog := applog.WithComponent("main")
	mainLog.Info().Str("addr", cfg.ServerAddress()).Msg("CameraLink サーバーを起動します")
	if err := app.Run(ctx, cfg); err != nil {
		var exit *app.ExitError
		if errors.As(err, &exit) {
			os.Exit(exit.Code)
		}
		mainLog.Error().Err(err).Msg("アプリケーションの実行に失敗しました")
		os.Exit(1)
	}
}
