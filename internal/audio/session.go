package audio

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Category は音声セッションの用途
type Category string

const (
	CategoryPlayback      Category = "playback"        // 再生のみ
	CategoryPlayAndRecord Category = "play_and_record" // 再生と録音
)

// Mode は音声セッションの動作モード
type Mode string

const (
	ModeDefault       Mode = "default"
	ModeMoviePlayback Mode = "movie_playback"
)

// Options は音声経路のオプション
type Options uint8

const (
	OptionAllowAirPlay Options = 1 << iota
	OptionAllowBluetoothA2DP
	OptionDefaultToSpeaker
)

func (o Options) String() string {
	var names []string
	if o&OptionAllowAirPlay != 0 {
		names = append(names, "allow_airplay")
	}
	if o&OptionAllowBluetoothA2DP != 0 {
		names = append(names, "allow_bluetooth_a2dp")
	}
	if o&OptionDefaultToSpeaker != 0 {
		names = append(names, "default_to_speaker")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Route は音声経路の設定
type Route struct {
	Category Category
	Mode     Mode
	Options  Options
	Active   bool
}

// Backend は音声経路をホストに反映する
type Backend interface {
	Apply(ctx context.Context, route Route) error
}

// Session はプロセス全体で共有する音声セッション
type Session struct {
	mu      sync.Mutex
	backend Backend
	logger  zerolog.Logger
	route   Route
}

// NewSession は新しいSessionを作成する
func NewSession(backend Backend, logger zerolog.Logger) *Session {
	return &Session{
		backend: backend,
		logger:  logger,
		route:   Route{Category: CategoryPlayback, Mode: ModeDefault},
	}
}

// SetCategory は用途・モード・オプションを設定する
// アクティブな場合は即座に反映する
func (s *Session) SetCategory(ctx context.Context, category Category, mode Mode, options Options) error {
	switch category {
	case CategoryPlayback, CategoryPlayAndRecord:
	default:
		return fmt.Errorf("不明なカテゴリ: %q", category)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.route
	next.Category = category
	next.Mode = mode
	next.Options = options

	if next.Active {
		if err := s.backend.Apply(ctx, next); err != nil {
			return fmt.Errorf("音声カテゴリの設定に失敗: %w", err)
		}
	}
	s.route = next

	s.logger.Debug().
		Str("category", string(category)).
		Str("mode", string(mode)).
		Stringer("options", options).
		Msg("音声カテゴリを設定しました")
	return nil
}

// SetActive は音声セッションを有効化または無効化する
func (s *Session) SetActive(ctx context.Context, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.route
	next.Active = active
	if err := s.backend.Apply(ctx, next); err != nil {
		return fmt.Errorf("音声セッションの切り替えに失敗: %w", err)
	}
	s.route = next
	return nil
}

// Route は現在の音声経路を返す
func (s *Session) Route() Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route
}

// MockBackend はテスト用のBackend
type MockBackend struct {
	mu      sync.Mutex
	applied []Route
	err     error
}

// Apply は経路を記録する
func (m *MockBackend) Apply(_ context.Context, route Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.applied = append(m.applied, route)
	return nil
}

// SetError は以降の Apply が返すエラーを設定する
func (m *MockBackend) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Applied は反映された経路の履歴を返す
func (m *MockBackend) Applied() []Route {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Route(nil), m.applied...)
}
