// Package app は各部品を組み立ててアプリケーションを起動する
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"cameralink/internal/audio"
	"cameralink/internal/camera"
	"cameralink/internal/config"
	"cameralink/internal/hotplug"
	"cameralink/internal/library"
	"cameralink/internal/lifecycle"
	applog "cameralink/internal/log"
	"cameralink/internal/permission"
	"cameralink/internal/photo"
	"cameralink/internal/presenter"
	"cameralink/internal/queue"
	"cameralink/internal/server"
)

const shutdownTimeout = 10 * time.Second

// ExitError は致命的なアラートの確認によって終了が要求されたことを表す
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("終了が要求されました (code=%d)", e.Code)
}

// Run は設定に従って全ての部品を起動し、ctx がキャンセルされるまで動作する
// 致命的なアラートで終了が選ばれた場合は *ExitError を返す
func Run(ctx context.Context, cfg *config.Config) error {
	applog.Configure(applog.Config{Level: cfg.Log.Level})
	logger := applog.WithComponent("app")

	orientation, err := cfg.InterfaceOrientation()
	if err != nil {
		return err
	}

	lib, err := library.Open(cfg.Library.Dir, applog.WithComponent("library"))
	if err != nil {
		return fmt.Errorf("写真ライブラリを開けません: %w", err)
	}
	defer func() {
		if err := lib.Close(); err != nil {
			logger.Warn().Err(err).Msg("写真ライブラリのクローズに失敗しました")
		}
	}()

	ui := queue.NewSerial("ui")
	defer ui.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 終了要求はコードを記録してから全体を止める
	var exitCode atomic.Pointer[int]
	terminate := func(code int) {
		logger.Info().Int("code", code).Msg("終了が要求されました")
		exitCode.Store(&code)
		cancel()
	}

	session := camera.NewSession(
		camera.FFmpegStreamerFactory(cfg.Camera.FFmpegPath, cfg.Camera.FPS, applog.WithComponent("capture")),
		applog.WithComponent("session"),
	)
	photoOutput := camera.NewPhotoOutput()
	preview := camera.NewPreview(session)
	pres := presenter.New(ui, applog.WithComponent("presenter"))

	controller := lifecycle.New(lifecycle.Dependencies{
		Session:     session,
		PhotoOutput: photoOutput,
		Preview:     preview,
		Discovery:   camera.NewLinuxDiscovery(cfg.Camera.DevicePattern, cfg.Camera.V4L2CtlPath),
		Window:      camera.NewWindowState(orientation),
		Gate: permission.NewGate(
			permission.NewFileStore(cfg.Permission.StorePath),
			cfg.Prompter(),
			permission.VideoDeviceProbe(cfg.Camera.DevicePattern),
		),
		Audio: audio.NewSession(audio.NewPactlBackend(cfg.Audio.PactlPath), applog.WithComponent("audio")),
		Engine: audio.NewEngine(audio.EngineConfig{
			Enabled:    cfg.Audio.PassthroughEnabled,
			FFmpegPath: cfg.Camera.FFmpegPath,
			Input:      cfg.Audio.PassthroughInput,
		}, applog.WithComponent("passthrough")),
		Presenter: pres,
		Pipeline:  photo.NewPipeline(photoOutput, lib, applog.WithComponent("photo")),
		Terminate: terminate,
		OpenSettings: func() {
			logger.Info().Str("store", cfg.Permission.StorePath).Msg("許可判断を変更するには記録ファイルを編集してください")
		},
	}, lifecycle.Options{
		Preset:             cfg.Camera.Preset,
		RefreshNoticeDelay: cfg.UI.RefreshNoticeDelay,
		RecordNoticeDelay:  cfg.UI.RecordNoticeDelay,
	}, applog.WithComponent("lifecycle"))

	srv := server.NewGin(cfg, server.Dependencies{
		Controller: controller,
		Alerts:     pres,
		Library:    lib,
		Preview:    preview,
	}, applog.WithComponent("server"))

	watcher := hotplug.New(
		filepath.Dir(cfg.Camera.DevicePattern),
		filepath.Base(cfg.Camera.DevicePattern),
		controller.DeviceChanged,
		applog.WithComponent("hotplug"),
	)

	controller.Bootstrap(ctx)
	controller.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		// デバイス監視が使えなくても動作は続ける
		if err := watcher.Run(gctx, nil); err != nil {
			logger.Warn().Err(err).Msg("デバイスの監視を開始できませんでした")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		return controller.Shutdown(sctx)
	})

	err = g.Wait()
	if code := exitCode.Load(); code != nil {
		return errors.Join(&ExitError{Code: *code}, err)
	}
	return err
}
