// Package presenter 表示側（UIキュー）とアラートを扱う
//
// アラートとお知らせは全てUIキュー上で表示・消去する。
// 表示中のアラートは常に1つで、新しいアラートは前のものを置き換える。
// ただし応答待ちのアラートはお知らせでは置き換えない。
package presenter

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"cameralink/internal/metrics"
	"cameralink/internal/queue"
)

var (
	ErrNoAlert       = errors.New("表示中のアラートがありません")
	ErrUnknownAction = errors.New("アラートのアクションが存在しません")
)

// Kind はアラートの種類
type Kind string

const (
	KindPermissionDenied        Kind = "permission_denied"
	KindConfigurationFailed     Kind = "configuration_failed"
	KindRefreshed               Kind = "refreshed"
	KindRecordingNotImplemented Kind = "recording_not_implemented"
)

// ActionStyle はアクションの表示スタイル
type ActionStyle string

const (
	StyleDefault ActionStyle = "default"
	StyleCancel  ActionStyle = "cancel"
)

// Action はアラートのボタン
type Action struct {
	Title   string      `json:"title"`
	Style   ActionStyle `json:"style"`
	handler func()
}

// NewAction はアクションを作成する。handler は nil でもよい
func NewAction(title string, style ActionStyle, handler func()) Action {
	return Action{Title: title, Style: style, handler: handler}
}

// Alert は表示するアラート
type Alert struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	Message     string    `json:"message,omitempty"`
	Actions     []Action  `json:"actions"`
	PresentedAt time.Time `json:"presented_at"`
}

// Presenter はUIキュー上でアラートを管理する
type Presenter struct {
	ui     *queue.Serial
	logger zerolog.Logger

	mu      sync.RWMutex
	current *Alert
	hint    string
}

// New は新しいPresenterを作成する
func New(ui *queue.Serial, logger zerolog.Logger) *Presenter {
	return &Presenter{ui: ui, logger: logger}
}

// Main はタスクをUIキューで非同期に実行する
func (p *Presenter) Main(task func()) {
	if !p.ui.Async(task) {
		p.logger.Warn().Msg("UIキューは閉じられています")
	}
}

// Present はアラートをUIキューで表示する
// アクションを持つアラートの表示中は、アクションのないお知らせは表示しない
func (p *Presenter) Present(alert Alert) {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	p.Main(func() {
		p.present(alert)
	})
}

// present はUIキュー上で呼ぶ
func (p *Presenter) present(alert Alert) {
	alert.PresentedAt = time.Now()

	p.mu.Lock()
	if p.current != nil && len(p.current.Actions) > 0 && len(alert.Actions) == 0 {
		// 応答待ちのアラートはお知らせで置き換えない
		blocking := p.current.Kind
		p.mu.Unlock()
		p.logger.Info().Str("kind", string(alert.Kind)).Str("blocked_by", string(blocking)).Msg("応答待ちのアラートがあるためお知らせを表示しません")
		return
	}
	if p.current != nil {
		p.logger.Debug().Str("replaced", string(p.current.Kind)).Msg("表示中のアラートを置き換えます")
	}
	p.current = &alert
	p.mu.Unlock()

	metrics.RecordAlert(string(alert.Kind))
	p.logger.Info().Str("alert_id", alert.ID).Str("kind", string(alert.Kind)).Str("title", alert.Title).Msg("アラートを表示しました")
}

// Notify はお知らせを表示し、delay 後に自動で閉じる
// 閉じるまでの時間は裏で行う処理の完了とは無関係
func (p *Presenter) Notify(alert Alert, delay time.Duration) string {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	p.Present(alert)
	p.ui.AsyncAfter(delay, func() {
		p.dismiss(alert.ID)
	})
	return alert.ID
}

// dismiss は指定IDのアラートが表示中であれば閉じる
func (p *Presenter) dismiss(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil || p.current.ID != id {
		return false
	}
	p.current = nil
	return true
}

// DismissKind は指定した種類のアラートが表示中であればUIキューで閉じる
func (p *Presenter) DismissKind(kind Kind) {
	p.Main(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.current != nil && p.current.Kind == kind {
			p.logger.Info().Str("alert_id", p.current.ID).Str("kind", string(kind)).Msg("アラートを閉じました")
			p.current = nil
		}
	})
}

// Current は表示中のアラートを返す
func (p *Presenter) Current() (Alert, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.current == nil {
		return Alert{}, false
	}
	alert := *p.current
	alert.Actions = append([]Action(nil), p.current.Actions...)
	return alert, true
}

// Acknowledge はアラートのアクションを選択する
// アラートを閉じてから、アクションのハンドラをUIキューで実行する
func (p *Presenter) Acknowledge(id string, index int) error {
	p.mu.Lock()
	if p.current == nil || p.current.ID != id {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoAlert, id)
	}
	if index < 0 || index >= len(p.current.Actions) {
		p.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownAction, index)
	}
	action := p.current.Actions[index]
	p.current = nil
	p.mu.Unlock()

	p.logger.Info().Str("alert_id", id).Str("action", action.Title).Msg("アラートのアクションが選択されました")
	if action.handler != nil {
		p.Main(action.handler)
	}
	return nil
}

// SetHint は表示クライアントに伝える案内文を設定する
func (p *Presenter) SetHint(hint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hint = hint
}

// Hint は案内文を返す
func (p *Presenter) Hint() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hint
}
