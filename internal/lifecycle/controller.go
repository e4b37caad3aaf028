// Package lifecycle キャプチャセッションの構成と開始・停止を管理する
//
// # 責務
// - カメラ使用許可の確認とセッション構成の開始
// - セッション構成（入力・出力の接続）
// - セッションの開始・停止・再接続
// - 撮影の受付
//
// # 仕様
//   - セッションへの変更は全て session キューで直列に実行する
//   - 表示（アラート・プレビューの向き）は presenter のUIキューで実行する
//   - 向きの更新はUIキューに投げるだけで、完了は待たない
//   - 利用者に見せる失敗は許可の拒否と構成の失敗のみ。それ以外はログに残す
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"cameralink/internal/audio"
	"cameralink/internal/camera"
	"cameralink/internal/metrics"
	"cameralink/internal/permission"
	"cameralink/internal/photo"
	"cameralink/internal/presenter"
	"cameralink/internal/queue"
)

// Dependencies はControllerが使う部品
type Dependencies struct {
	Session     *camera.Session
	PhotoOutput *camera.PhotoOutput
	Preview     *camera.Preview
	Discovery   camera.Discovery
	Window      *camera.WindowState
	Gate        Authorizer
	Audio       AudioSession
	Engine      PassthroughEngine
	Presenter   *presenter.Presenter
	Pipeline    *photo.Pipeline

	// Terminate は致命的なアラートの確認後に呼ばれる
	Terminate func(code int)
	// OpenSettings は許可拒否アラートで「設定」が選ばれたときに呼ばれる
	OpenSettings func()
}

// Options はControllerの動作設定
type Options struct {
	Preset             camera.Preset
	RefreshNoticeDelay time.Duration
	RecordNoticeDelay  time.Duration
	OperationTimeout   time.Duration
}

// DefaultOptions は既定の動作設定を返す
func DefaultOptions() Options {
	return Options{
		Preset:             camera.PresetHD1920x1080,
		RefreshNoticeDelay: 1 * time.Second,
		RecordNoticeDelay:  2 * time.Second,
		OperationTimeout:   10 * time.Second,
	}
}

// Controller はキャプチャセッションのライフサイクルを管理する
type Controller struct {
	deps   Dependencies
	opts   Options
	logger zerolog.Logger

	sessionQueue *queue.Serial

	// 以下は sessionQueue 上でのみ読み書きする
	// （許可確認のコールバックはキュー停止中に setupResult を書く）
	setupResult      SetupResult
	configured       bool
	isSessionRunning bool

	status atomic.Pointer[Status]
}

// New は新しいControllerを作成する
func New(deps Dependencies, opts Options, logger zerolog.Logger) *Controller {
	if opts.Preset == "" {
		opts.Preset = camera.PresetHD1920x1080
	}
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = DefaultOptions().OperationTimeout
	}
	if deps.Terminate == nil {
		deps.Terminate = func(int) {}
	}

	c := &Controller{
		deps:         deps,
		opts:         opts,
		logger:       logger,
		sessionQueue: queue.NewSerial("session"),
		setupResult:  SetupSuccess,
	}
	c.status.Store(&Status{
		SetupResult: SetupSuccess.String(),
		State:       StateIdle.String(),
	})
	deps.Session.OnStreamError(c.streamFailed)
	return c
}

// streamFailed はストリームの異常終了を sessionQueue 上の状態に反映する
func (c *Controller) streamFailed(err error) {
	c.sessionQueue.Async(func() {
		c.isSessionRunning = c.deps.Session.IsRunning()
		metrics.RecordSessionOp("stream", err)
		metrics.SetSessionRunning(c.isSessionRunning)
		c.logger.Warn().Err(err).Msg("キャプチャストリームが停止しました。更新で再開できます")
		c.publish()
	})
}

// Bootstrap は音声パススルーを開始し、許可を確認してからセッション構成を投入する
func (c *Controller) Bootstrap(ctx context.Context) {
	if err := c.deps.Engine.Start(); err != nil {
		if errors.Is(err, audio.ErrEngineDisabled) {
			c.logger.Debug().Msg("音声パススルーは無効です")
		} else {
			c.logger.Warn().Err(err).Msg("音声パススルーを開始できませんでした")
		}
	}

	if err := c.deps.PhotoOutput.SetPreparedPhotoSettings(camera.DefaultPhotoSettings()); err != nil {
		c.logger.Warn().Err(err).Msg("撮影設定の準備に失敗しました")
	}

	switch state := c.deps.Gate.CheckAuthorization(ctx); state {
	case permission.Authorized:
	case permission.NotDetermined:
		// 確認が終わるまでセッション構成を止める
		c.sessionQueue.Suspend()
		c.deps.Gate.RequestAuthorization(ctx, func(state permission.AuthorizationState) {
			if state != permission.Authorized {
				c.setupResult = SetupNotAuthorized
			}
			c.sessionQueue.Resume()
		})
	default:
		// 以前に拒否されている
		c.setupResult = SetupNotAuthorized
	}

	c.sessionQueue.Async(c.configureSession)
}

// Start はセッションを開始する。構成結果に応じてアラートを表示する
func (c *Controller) Start() {
	c.sessionQueue.Async(c.start)
}

func (c *Controller) start() {
	defer c.publish()

	switch c.setupResult {
	case SetupSuccess:
		err := c.deps.Session.StartRunning()
		c.isSessionRunning = c.deps.Session.IsRunning()
		metrics.RecordSessionOp("start", err)
		metrics.SetSessionRunning(c.isSessionRunning)
		if err != nil {
			c.logger.Error().Err(err).Msg("セッションを開始できませんでした")
		}

		ctx, cancel := c.opContext()
		defer cancel()
		opts := audio.OptionAllowAirPlay | audio.OptionAllowBluetoothA2DP | audio.OptionDefaultToSpeaker
		if err := c.deps.Audio.SetCategory(ctx, audio.CategoryPlayAndRecord, audio.ModeDefault, opts); err != nil {
			c.logger.Warn().Err(err).Msg("音声セッションの設定に失敗しました")
		} else if err := c.deps.Audio.SetActive(ctx, true); err != nil {
			c.logger.Warn().Err(err).Msg("音声セッションの設定に失敗しました")
		}

	case SetupNotAuthorized:
		c.deps.Presenter.SetHint(presenter.SettingsHint)
		c.deps.Presenter.Present(presenter.PermissionDeniedAlert(c.openSettings))

	case SetupConfigurationFailed:
		c.deps.Presenter.Main(func() {
			c.deps.Engine.Stop()
			c.deps.Presenter.Present(presenter.ConfigurationFailedAlert(func() {
				c.logger.Info().Msg("構成に失敗したため終了します")
				c.deps.Terminate(0)
			}))
		})

	default:
		c.logger.Error().Stringer("setup_result", c.setupResult).Msg("不明な構成結果です")
	}
}

func (c *Controller) openSettings() {
	c.deps.Presenter.SetHint(presenter.SettingsHint)
	if c.deps.OpenSettings != nil {
		c.deps.OpenSettings()
	}
}

// Refresh はお知らせを表示し、セッションを停止してから再開する
// デバイスの再検出は行わない
func (c *Controller) Refresh() {
	c.deps.Presenter.Notify(presenter.RefreshedNotice(), c.opts.RefreshNoticeDelay)

	c.sessionQueue.Async(func() {
		if c.isSessionRunning {
			c.deps.Session.StopRunning()
			c.isSessionRunning = c.deps.Session.IsRunning()
			metrics.RecordSessionOp("stop", nil)
		}
		c.publish()

		c.deps.Presenter.Main(c.updatePreviewOrientation)

		c.sessionQueue.Async(func() {
			defer c.publish()
			if c.isSessionRunning || c.setupResult != SetupSuccess {
				return
			}
			err := c.deps.Session.StartRunning()
			c.isSessionRunning = c.deps.Session.IsRunning()
			metrics.RecordSessionOp("refresh", err)
			metrics.SetSessionRunning(c.isSessionRunning)
			if err != nil {
				c.logger.Error().Err(err).Msg("セッションを再開できませんでした")
			}
		})
	})
}

// Reconfigure はデバイスを検出し直してセッションを構成し、開始する
// 許可が拒否されている場合は何もしない
func (c *Controller) Reconfigure() {
	c.sessionQueue.Async(func() {
		if c.setupResult == SetupNotAuthorized {
			c.logger.Warn().Msg("許可がないため再構成しません")
			return
		}
		if c.isSessionRunning {
			c.deps.Session.StopRunning()
			c.isSessionRunning = c.deps.Session.IsRunning()
		}
		c.setupResult = SetupSuccess
		c.configureSession()
		if c.setupResult == SetupSuccess {
			// 以前の構成失敗のアラートが残っていれば閉じる
			c.deps.Presenter.DismissKind(presenter.KindConfigurationFailed)
		}
		c.start()
	})
}

// Record は録画が未実装であることを知らせる
func (c *Controller) Record() {
	c.deps.Presenter.Notify(presenter.RecordingNotice(), c.opts.RecordNoticeDelay)
}

// CapturePhoto は撮影を開始する
// 返されたチャンネルは保存処理の完了時に閉じられる
func (c *Controller) CapturePhoto(ctx context.Context) <-chan struct{} {
	return c.deps.Pipeline.Capture(ctx)
}

// SetWindowOrientation は表示クライアントのウィンドウの向きを更新する
func (c *Controller) SetWindowOrientation(o camera.InterfaceOrientation) {
	c.deps.Window.SetInterfaceOrientation(o)
	c.deps.Presenter.Main(c.updatePreviewOrientation)
}

// DeviceChanged はデバイスの抜き差しを受け取る
// 構成済みのセッションには反映しないため、再構成を促す
func (c *Controller) DeviceChanged(path string, added bool) {
	c.logger.Info().Str("device", path).Bool("added", added).Msg("映像デバイスが変更されました")
	c.deps.Presenter.SetHint(fmt.Sprintf("映像デバイス %s が変更されました。更新または再構成してください", path))
}

// updatePreviewOrientation はUIキュー上で呼ぶ
func (c *Controller) updatePreviewOrientation() {
	o := camera.VideoOrientationFor(c.deps.Window.InterfaceOrientation())
	c.deps.Preview.SetVideoOrientation(o)
	c.logger.Debug().Stringer("video_orientation", o).Msg("プレビューの向きを更新しました")
}

// Status は最新の状態を返す
func (c *Controller) Status() Status {
	return *c.status.Load()
}

// publish は sessionQueue 上で呼ぶ
func (c *Controller) publish() {
	state := StateIdle
	switch {
	case c.isSessionRunning:
		state = StateRunning
	case c.configured && c.setupResult != SetupSuccess:
		state = StateFailed
	}

	c.status.Store(&Status{
		SetupResult:      c.setupResult.String(),
		State:            state.String(),
		Configured:       c.configured,
		Running:          c.isSessionRunning,
		Orientation:      c.deps.Window.InterfaceOrientation().String(),
		VideoOrientation: c.deps.Preview.VideoOrientation().String(),
		Session:          c.deps.Session.Stats(),
	})
}

// Shutdown はセッションと音声パススルーを停止し、キューを閉じる
func (c *Controller) Shutdown(ctx context.Context) error {
	c.sessionQueue.Async(func() {
		c.deps.Session.StopRunning()
		c.isSessionRunning = false
		metrics.SetSessionRunning(false)

		actx, cancel := c.opContext()
		defer cancel()
		if err := c.deps.Audio.SetActive(actx, false); err != nil {
			c.logger.Warn().Err(err).Msg("音声セッションの無効化に失敗しました")
		}
		c.publish()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.sessionQueue.Close()
		c.deps.Engine.Stop()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("シャットダウンがタイムアウトしました: %w", ctx.Err())
	}
}

func (c *Controller) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.opts.OperationTimeout)
}
