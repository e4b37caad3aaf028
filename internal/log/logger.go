// Package log はzerologによる構造化ログの共通設定を提供する
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config はグローバルロガーの設定
type Config struct {
	Level   string    // ログレベル ("debug", "info" など)
	Output  io.Writer // 出力先 (デフォルト: os.Stdout)
	Service string    // 全エントリに付与するサービス名
}

var (
	mu         sync.RWMutex
	base       zerolog.Logger
	configured bool
)

// Configure はグローバルロガーを初期化する
// 2回目以降の呼び出しは設定を上書きする
func Configure(cfg Config) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	} else if env := os.Getenv("LOG_LEVEL"); env != "" {
		if parsed, err := zerolog.ParseLevel(env); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	writer := cfg.Output
	if writer == nil {
		writer = os.Stdout
	}

	service := cfg.Service
	if service == "" {
		service = "cameralink"
	}

	mu.Lock()
	base = zerolog.New(writer).With().
		Timestamp().
		Str("service", service).
		Logger()
	configured = true
	mu.Unlock()
}

// Base は設定済みのベースロガーを返す
func Base() zerolog.Logger {
	mu.RLock()
	ready := configured
	mu.RUnlock()
	if !ready {
		Configure(Config{})
	}

	mu.RLock()
	defer mu.RUnlock()
	return base
}

// WithComponent はコンポーネント名を付与した子ロガーを返す
func WithComponent(component string) zerolog.Logger {
	l := Base()
	return l.With().Str("component", component).Logger()
}

// Nop はテスト用の出力しないロガーを返す
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
