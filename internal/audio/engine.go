package audio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrEngineDisabled はパススルーが無効化されている場合のエラー
var ErrEngineDisabled = errors.New("音声パススルーは無効です")

// Engine はキャプチャデバイスの音声をスピーカーへ流すパススルー
// ffmpeg で ALSA 入力を既定の出力へ中継する
type Engine struct {
	mu     sync.Mutex
	logger zerolog.Logger

	enabled    bool
	ffmpegPath string
	input      string // ALSAデバイス（例: hw:1）
	newCmd     func(ctx context.Context) *exec.Cmd

	cancel context.CancelFunc
	done   chan struct{}
	starts int
}

// EngineConfig はEngineの設定
type EngineConfig struct {
	Enabled    bool
	FFmpegPath string
	Input      string
}

// NewEngine は新しいEngineを作成する
func NewEngine(cfg EngineConfig, logger zerolog.Logger) *Engine {
	e := &Engine{
		logger:     logger,
		enabled:    cfg.Enabled,
		ffmpegPath: cfg.FFmpegPath,
		input:      cfg.Input,
	}
	if e.ffmpegPath == "" {
		e.ffmpegPath = "ffmpeg"
	}
	if e.input == "" {
		e.input = "default"
	}
	e.newCmd = func(ctx context.Context) *exec.Cmd {
		return exec.CommandContext(ctx, e.ffmpegPath, e.args()...)
	}
	return e
}

func (e *Engine) args() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "alsa",
		"-i", e.input,
		"-f", "pulse",
		"cameralink",
	}
}

// Start はパススルーを開始する。既に動作中なら何もしない
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return ErrEngineDisabled
	}
	if e.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := e.newCmd(ctx)
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("音声パススルーの起動に失敗: %w", err)
	}

	done := make(chan struct{})
	e.cancel = cancel
	e.done = done
	e.starts++

	go func() {
		defer close(done)
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			e.logger.Warn().Err(err).Msg("音声パススルーが終了しました")
		}
		// 自然終了した場合も次の Start で再起動できるようにする
		e.mu.Lock()
		if e.done == done {
			e.cancel = nil
			e.done = nil
		}
		e.mu.Unlock()
		cancel()
	}()

	e.logger.Info().Str("input", e.input).Msg("音声パススルーを開始しました")
	return nil
}

// Stop はパススルーを停止して終了を待つ
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel = nil
	e.done = nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		e.logger.Warn().Msg("音声パススルーの停止がタイムアウトしました")
	}
	e.logger.Info().Msg("音声パススルーを停止しました")
}

// Reset は停止して再開始する
func (e *Engine) Reset() error {
	e.Stop()
	return e.Start()
}

// Running はパススルーが動作中か返す
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel != nil
}

// Starts は起動に成功した回数を返す
func (e *Engine) Starts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts
}
