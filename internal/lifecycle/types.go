package lifecycle

import (
	"context"
	"fmt"

	"cameralink/internal/audio"
	"cameralink/internal/camera"
	"cameralink/internal/permission"
)

// SetupResult はセッション構成の結果
type SetupResult int

const (
	SetupSuccess SetupResult = iota
	SetupNotAuthorized
	SetupConfigurationFailed
)

func (r SetupResult) String() string {
	switch r {
	case SetupSuccess:
		return "success"
	case SetupNotAuthorized:
		return "not_authorized"
	case SetupConfigurationFailed:
		return "configuration_failed"
	default:
		return fmt.Sprintf("SetupResult(%d)", int(r))
	}
}

// State はコントローラーの状態
type State int

const (
	StateIdle State = iota
	StateRunning
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Authorizer はカメラ使用許可の確認を行う
type Authorizer interface {
	CheckAuthorization(ctx context.Context) permission.AuthorizationState
	RequestAuthorization(ctx context.Context, callback func(permission.AuthorizationState))
}

// AudioSession は音声セッションの用途と有効状態を切り替える
type AudioSession interface {
	SetCategory(ctx context.Context, category audio.Category, mode audio.Mode, options audio.Options) error
	SetActive(ctx context.Context, active bool) error
}

// PassthroughEngine は音声パススルー
type PassthroughEngine interface {
	Start() error
	Stop()
}

// Status はコントローラーの状態のスナップショット
type Status struct {
	SetupResult      string              `json:"setup_result"`
	State            string              `json:"state"`
	Configured       bool                `json:"configured"`
	Running          bool                `json:"running"`
	Orientation      string              `json:"interface_orientation"`
	VideoOrientation string              `json:"video_orientation"`
	Session          camera.SessionStats `json:"session"`
}
