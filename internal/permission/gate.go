// Package permission はカメラ使用許可の判定（Capability Gate）を担う
//
// # 責務
// - 永続化された許可判断とデバイスアクセス可否から現在の許可状態を返す
// - 未決定の場合に一度だけ利用者へ確認し、その判断を永続化する
//
// # 仕様
//   - Denied は自動で再確認しない（設定の変更を利用者に促す）
//   - 判断の保存後は再確認せず保存済みの判断を返す
//   - カメラデバイスを開く権限がない場合は保存内容にかかわらず Denied とする
package permission

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	applog "cameralink/internal/log"
)

// AuthorizationState はカメラ使用許可の状態
type AuthorizationState int

const (
	NotDetermined AuthorizationState = iota // 未確認
	Authorized                              // 許可済み
	Denied                                  // 拒否済み
)

func (s AuthorizationState) String() string {
	switch s {
	case NotDetermined:
		return "not_determined"
	case Authorized:
		return "authorized"
	case Denied:
		return "denied"
	default:
		return fmt.Sprintf("AuthorizationState(%d)", int(s))
	}
}

// ParseAuthorizationState は文字列から許可状態を復元する
func ParseAuthorizationState(s string) (AuthorizationState, error) {
	switch s {
	case "not_determined", "":
		return NotDetermined, nil
	case "authorized":
		return Authorized, nil
	case "denied":
		return Denied, nil
	default:
		return NotDetermined, fmt.Errorf("不明な許可状態: %q", s)
	}
}

// ErrAccessDenied はデバイスノードを開く権限がないことを表す
var ErrAccessDenied = errors.New("カメラデバイスへのアクセス権限がありません")

// Store は許可判断の永続化を担う
type Store interface {
	Load() (AuthorizationState, error)
	Save(state AuthorizationState) error
}

// Prompter は利用者への許可確認を行う
type Prompter interface {
	Prompt(ctx context.Context) (bool, error)
}

// AccessProbe はカメラデバイスへのOSレベルのアクセス可否を確認する
// ErrAccessDenied を返した場合は Denied として扱う
type AccessProbe func(ctx context.Context) error

// Gate はカメラ使用許可の判定を行う
type Gate struct {
	store    Store
	prompter Prompter
	probe    AccessProbe
	logger   zerolog.Logger

	// 確認ダイアログの多重表示防止
	mu        sync.Mutex
	prompting bool
	waiters   []func(AuthorizationState)
}

// NewGate は新しいGateを作成する
// probe が nil の場合はOSレベルの確認を行わない
func NewGate(store Store, prompter Prompter, probe AccessProbe) *Gate {
	return &Gate{
		store:    store,
		prompter: prompter,
		probe:    probe,
		logger:   applog.WithComponent("permission"),
	}
}

// CheckAuthorization は現在の許可状態を同期的に返す
func (g *Gate) CheckAuthorization(ctx context.Context) AuthorizationState {
	if g.probe != nil {
		if err := g.probe(ctx); errors.Is(err, ErrAccessDenied) {
			g.logger.Warn().Err(err).Msg("デバイスノードを開けないため拒否として扱います")
			return Denied
		}
	}

	state, err := g.store.Load()
	if err != nil {
		g.logger.Warn().Err(err).Msg("許可判断の読み込みに失敗しました。未確認として扱います")
		return NotDetermined
	}
	return state
}

// RequestAuthorization は利用者へ許可を確認し、結果をコールバックで返す
// コールバックは別ゴルーチンから呼ばれる
// 既に判断済みの場合は確認せずに保存済みの判断を返す
func (g *Gate) RequestAuthorization(ctx context.Context, callback func(AuthorizationState)) {
	g.mu.Lock()
	g.waiters = append(g.waiters, callback)
	if g.prompting {
		g.mu.Unlock()
		return
	}
	g.prompting = true
	g.mu.Unlock()

	go func() {
		state := g.resolve(ctx)

		g.mu.Lock()
		waiters := g.waiters
		g.waiters = nil
		g.prompting = false
		g.mu.Unlock()

		for _, w := range waiters {
			w(state)
		}
	}()
}

// resolve は保存済みの判断を確認し、未確認なら利用者に確認する
func (g *Gate) resolve(ctx context.Context) AuthorizationState {
	if state, err := g.store.Load(); err == nil && state != NotDetermined {
		return state
	}

	granted, err := g.prompter.Prompt(ctx)
	if err != nil {
		// 確認できなかった場合は判断を保存しない（次回起動時に再確認）
		g.logger.Error().Err(err).Msg("許可の確認に失敗しました")
		return Denied
	}

	state := Denied
	if granted {
		state = Authorized
	}
	if err := g.store.Save(state); err != nil {
		g.logger.Error().Err(err).Str("state", state.String()).Msg("許可判断の保存に失敗しました")
	}

	g.logger.Info().Str("state", state.String()).Msg("カメラ使用許可が決定しました")
	return state
}
