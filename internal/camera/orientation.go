package camera

import (
	"fmt"
	"sync"
)

// InterfaceOrientation は表示側（ウィンドウ）の向き
// 値は表示側の生値と一致させている
type InterfaceOrientation int

const (
	InterfaceUnknown            InterfaceOrientation = 0
	InterfacePortrait           InterfaceOrientation = 1
	InterfacePortraitUpsideDown InterfaceOrientation = 2
	InterfaceLandscapeRight     InterfaceOrientation = 3
	InterfaceLandscapeLeft      InterfaceOrientation = 4
)

var interfaceNames = map[InterfaceOrientation]string{
	InterfaceUnknown:            "unknown",
	InterfacePortrait:           "portrait",
	InterfacePortraitUpsideDown: "portrait_upside_down",
	InterfaceLandscapeRight:     "landscape_right",
	InterfaceLandscapeLeft:      "landscape_left",
}

func (o InterfaceOrientation) String() string {
	if name, ok := interfaceNames[o]; ok {
		return name
	}
	return fmt.Sprintf("InterfaceOrientation(%d)", int(o))
}

// ParseInterfaceOrientation は文字列から表示側の向きを返す
func ParseInterfaceOrientation(s string) (InterfaceOrientation, error) {
	for o, name := range interfaceNames {
		if name == s {
			return o, nil
		}
	}
	return InterfaceUnknown, fmt.Errorf("不明な向き: %q", s)
}

// VideoOrientation はプレビュー接続に設定する映像の向き
type VideoOrientation int

const (
	VideoPortrait           VideoOrientation = 1
	VideoPortraitUpsideDown VideoOrientation = 2
	VideoLandscapeRight     VideoOrientation = 3
	VideoLandscapeLeft      VideoOrientation = 4
)

func (o VideoOrientation) String() string {
	switch o {
	case VideoPortrait:
		return "portrait"
	case VideoPortraitUpsideDown:
		return "portrait_upside_down"
	case VideoLandscapeRight:
		return "landscape_right"
	case VideoLandscapeLeft:
		return "landscape_left"
	default:
		return fmt.Sprintf("VideoOrientation(%d)", int(o))
	}
}

// Degrees は縦向きを基準とした時計回りの回転角を返す
func (o VideoOrientation) Degrees() int {
	switch o {
	case VideoPortraitUpsideDown:
		return 180
	case VideoLandscapeRight:
		return 90
	case VideoLandscapeLeft:
		return 270
	default:
		return 0
	}
}

// VideoOrientationFor は表示側の向きを映像の向きに変換する
// 不明な向きは縦向きとする
func VideoOrientationFor(o InterfaceOrientation) VideoOrientation {
	switch o {
	case InterfacePortrait, InterfacePortraitUpsideDown, InterfaceLandscapeRight, InterfaceLandscapeLeft:
		return VideoOrientation(o)
	default:
		return VideoPortrait
	}
}

// WindowState は表示クライアントから報告されたウィンドウの向きを保持する
type WindowState struct {
	mu          sync.RWMutex
	orientation InterfaceOrientation
}

// NewWindowState は初期の向きを指定してWindowStateを作成する
func NewWindowState(initial InterfaceOrientation) *WindowState {
	return &WindowState{orientation: initial}
}

// InterfaceOrientation は現在の向きを返す
func (w *WindowState) InterfaceOrientation() InterfaceOrientation {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.orientation
}

// SetInterfaceOrientation は向きを更新する
func (w *WindowState) SetInterfaceOrientation(o InterfaceOrientation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.orientation = o
}
