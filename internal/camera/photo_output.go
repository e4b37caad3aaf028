package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// PhotoCodec は撮影データのエンコード形式
type PhotoCodec string

const (
	PhotoCodecJPEG PhotoCodec = "jpeg"
)

// PhotoSettings は一回の撮影の設定
type PhotoSettings struct {
	Codec PhotoCodec
	// Timeout はフレームが未取得の場合に次のフレームを待つ時間
	Timeout time.Duration
}

// DefaultPhotoSettings は既定の撮影設定を返す
func DefaultPhotoSettings() PhotoSettings {
	return PhotoSettings{Codec: PhotoCodecJPEG, Timeout: 2 * time.Second}
}

// PhotoResult は撮影結果。Err が nil でなければ Data は空
type PhotoResult struct {
	Data []byte
	Err  error
}

// PhotoOutput はセッションから静止画を取り出す出力
type PhotoOutput struct {
	mu       sync.Mutex
	session  *Session
	prepared PhotoSettings
}

// NewPhotoOutput は新しいPhotoOutputを作成する
func NewPhotoOutput() *PhotoOutput {
	return &PhotoOutput{prepared: DefaultPhotoSettings()}
}

func (p *PhotoOutput) Name() string { return "photo" }

func (p *PhotoOutput) attachedTo() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *PhotoOutput) setSession(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = s
}

// SetPreparedPhotoSettings は撮影前に設定を準備する
func (p *PhotoOutput) SetPreparedPhotoSettings(settings PhotoSettings) error {
	if settings.Codec != PhotoCodecJPEG {
		return fmt.Errorf("未対応のコーデック: %q", settings.Codec)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prepared = settings
	return nil
}

// PreparedPhotoSettings は準備済みの設定を返す
func (p *PhotoOutput) PreparedPhotoSettings() PhotoSettings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prepared
}

// CapturePhoto は一回の撮影を非同期に行う
// 結果は返されたチャンネルに一度だけ送られる
func (p *PhotoOutput) CapturePhoto(settings PhotoSettings) <-chan PhotoResult {
	result := make(chan PhotoResult, 1)
	go func() {
		defer close(result)
		data, err := p.capture(settings)
		result <- PhotoResult{Data: data, Err: err}
	}()
	return result
}

func (p *PhotoOutput) capture(settings PhotoSettings) ([]byte, error) {
	if settings.Codec != PhotoCodecJPEG {
		return nil, fmt.Errorf("未対応のコーデック: %q", settings.Codec)
	}

	session := p.attachedTo()
	if session == nil || !session.hasOutput(p) {
		return nil, ErrOutputNotAttached
	}

	frame, err := session.LatestFrame()
	if err == nil {
		return frame, nil
	}
	if !errors.Is(err, ErrNoFrame) {
		return nil, err
	}

	// 起動直後はフレームが届くまで待つ
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = DefaultPhotoSettings().Timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	frames, unsubscribe := session.Subscribe()
	defer unsubscribe()

	select {
	case frame := <-frames:
		return append([]byte(nil), frame...), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrNoFrame, ctx.Err())
	}
}
