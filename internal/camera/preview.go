package camera

import "sync"

// Preview はセッションのライブ映像を表示クライアントへ渡す
// 映像の向きは表示クライアントが回転に使う
type Preview struct {
	session *Session

	mu          sync.RWMutex
	orientation VideoOrientation
}

// NewPreview はセッションに紐づくPreviewを作成する
func NewPreview(session *Session) *Preview {
	return &Preview{session: session, orientation: VideoPortrait}
}

// VideoOrientation は現在の映像の向きを返す
func (p *Preview) VideoOrientation() VideoOrientation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.orientation
}

// SetVideoOrientation は映像の向きを設定する
func (p *Preview) SetVideoOrientation(o VideoOrientation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orientation = o
}

// Frames はプレビュー用のフレームを購読する
func (p *Preview) Frames() (<-chan []byte, func()) {
	return p.session.Subscribe()
}
