package camera

import (
	"context"
	"errors"
	"fmt"
)

// MediaType はデバイスが扱うメディアの種類
type MediaType string

const (
	MediaVideo MediaType = "video" // 映像
	MediaAudio MediaType = "audio" // 音声
)

// DeviceType はデバイスの接続形態
type DeviceType string

const (
	DeviceTypeExternal DeviceType = "external" // USBなど外部接続（キャプチャカード等）
	DeviceTypeBuiltIn  DeviceType = "builtin"  // 内蔵デバイス
	DeviceTypeUnknown  DeviceType = "unknown"  // 判定不能
)

// Device は検出されたキャプチャデバイスの情報
type Device struct {
	ID     string     `json:"id"`     // 一意識別子（video4linux名やALSAカード名）
	Name   string     `json:"name"`   // 表示名
	Path   string     `json:"path"`   // デバイスパス（例: /dev/video0, ALSAの場合は hw:1）
	Type   DeviceType `json:"type"`   // 接続形態
	Media  MediaType  `json:"media"`  // メディアの種類
	Driver string     `json:"driver"` // ドライバー名
}

// Status はキャプチャセッションの動作状態を表す
type Status string

const (
	StatusInactive Status = "inactive" // 停止中
	StatusActive   Status = "active"   // 動作中
	StatusError    Status = "error"    // エラーが発生
)

// Resolution は解像度を表す
type Resolution struct {
	Width  int // 幅
	Height int // 高さ
}

// Preset はセッションの出力品質プリセット
type Preset string

const (
	PresetHD1920x1080 Preset = "hd1920x1080"
	PresetHD1280x720  Preset = "hd1280x720"
	PresetVGA640x480  Preset = "vga640x480"
)

// Resolution はプリセットに対応する解像度を返す
func (p Preset) Resolution() (Resolution, error) {
	switch p {
	case PresetHD1920x1080:
		return Resolution{Width: 1920, Height: 1080}, nil
	case PresetHD1280x720:
		return Resolution{Width: 1280, Height: 720}, nil
	case PresetVGA640x480:
		return Resolution{Width: 640, Height: 480}, nil
	default:
		return Resolution{}, fmt.Errorf("不明なプリセット: %q", p)
	}
}

// DiscoveryQuery はデバイス検出の条件
type DiscoveryQuery struct {
	Types []DeviceType // 対象とする接続形態（空なら全て）
	Media MediaType    // 対象とするメディア
}

func (q DiscoveryQuery) matches(d Device) bool {
	if d.Media != q.Media {
		return false
	}
	if len(q.Types) == 0 {
		return true
	}
	for _, t := range q.Types {
		if d.Type == t {
			return true
		}
	}
	return false
}

// Discovery はキャプチャデバイスの検出機能を提供する
type Discovery interface {
	// Devices は条件に合うデバイスを検出順に返す
	Devices(ctx context.Context, query DiscoveryQuery) ([]Device, error)

	// DefaultDevice は指定メディアの既定デバイスを返す
	DefaultDevice(ctx context.Context, media MediaType) (*Device, error)

	// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
	IsDeviceAvailable(ctx context.Context, device Device) bool
}

// セッション操作のエラー
var (
	ErrNoDevice          = errors.New("デバイスが見つかりません")
	ErrDeviceUnavailable = errors.New("デバイスが利用できません")
	ErrTransactionActive = errors.New("構成トランザクションが既に開始されています")
	ErrNoTransaction     = errors.New("構成トランザクションが開始されていません")
	ErrCannotAddInput    = errors.New("入力をセッションに追加できません")
	ErrCannotAddOutput   = errors.New("出力をセッションに追加できません")
	ErrSessionNotRunning = errors.New("セッションが動作していません")
	ErrOutputNotAttached = errors.New("出力がセッションに接続されていません")
	ErrNoFrame           = errors.New("フレームがまだ取得されていません")
)
