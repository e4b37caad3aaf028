package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Output はセッションに接続する出力
type Output interface {
	// Name は出力の種類名を返す
	Name() string

	attachedTo() *Session
	setSession(s *Session)
}

// sessionConfig はセッションの構成（入力・出力・プリセット）
type sessionConfig struct {
	preset                     Preset
	usesApplicationAudio       bool
	autoConfiguresAudioSession bool
	inputs                     []*DeviceInput
	outputs                    []Output
}

func (c *sessionConfig) clone() *sessionConfig {
	cp := *c
	cp.inputs = append([]*DeviceInput(nil), c.inputs...)
	cp.outputs = append([]Output(nil), c.outputs...)
	return &cp
}

// SessionStats はセッションの状態のスナップショット
type SessionStats struct {
	Preset                      Preset    `json:"preset"`
	UsesApplicationAudioSession bool      `json:"uses_application_audio_session"`
	AutoConfiguresAudioSession  bool      `json:"auto_configures_audio_session"`
	Inputs                      []Device  `json:"inputs"`
	Outputs                     []string  `json:"outputs"`
	InTransaction               bool      `json:"in_transaction"`
	Begins                      int       `json:"begins"`
	Commits                     int       `json:"commits"`
	Running                     bool      `json:"running"`
	Status                      Status    `json:"status"`
	LastError                   string    `json:"last_error,omitempty"`
	LastFrameAt                 time.Time `json:"last_frame_at"`
}

// Session はキャプチャセッション
// 入力・出力の変更は BeginConfiguration/CommitConfiguration で囲み、
// コミット時にまとめて反映する
type Session struct {
	mu     sync.Mutex
	logger zerolog.Logger

	streamerFactory StreamerFactory

	// 構成
	committed *sessionConfig
	staged    *sessionConfig // トランザクション中のみ非nil
	begins    int
	commits   int

	// 実行状態
	running    bool
	status     Status
	lastErr    error
	generation int
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	onStreamError func(err error)

	// フレーム保持用
	frameMu     sync.RWMutex
	latestFrame []byte
	latestAt    time.Time
	subscribers map[int]chan []byte
	nextSubID   int
}

// NewSession は新しいSessionを作成する
func NewSession(factory StreamerFactory, logger zerolog.Logger) *Session {
	return &Session{
		logger:          logger,
		streamerFactory: factory,
		committed: &sessionConfig{
			preset:                     PresetHD1920x1080,
			autoConfiguresAudioSession: true,
		},
		status:      StatusInactive,
		subscribers: make(map[int]chan []byte),
	}
}

// BeginConfiguration は構成トランザクションを開始する
// 既にトランザクション中の場合は ErrTransactionActive を返す
func (s *Session) BeginConfiguration() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.staged != nil {
		return ErrTransactionActive
	}
	s.staged = s.committed.clone()
	s.begins++
	return nil
}

// CommitConfiguration はトランザクション中の変更をまとめて反映する
// 動作中に映像入力が変わった場合はストリームを再接続する
func (s *Session) CommitConfiguration() error {
	s.mu.Lock()
	if s.staged == nil {
		s.mu.Unlock()
		return ErrNoTransaction
	}

	prevVideo := videoInput(s.committed)
	s.committed = s.staged
	s.staged = nil
	s.commits++
	restart := s.running && videoInput(s.committed) != prevVideo
	s.mu.Unlock()

	if restart {
		s.logger.Info().Msg("映像入力が変更されたためストリームを再接続します")
		s.StopRunning()
		if err := s.StartRunning(); err != nil {
			return fmt.Errorf("ストリームの再接続に失敗: %w", err)
		}
	}
	return nil
}

// SetPreset は出力品質プリセットを設定する
func (s *Session) SetPreset(preset Preset) error {
	if _, err := preset.Resolution(); err != nil {
		return err
	}
	return s.mutate(func(c *sessionConfig) error {
		c.preset = preset
		return nil
	})
}

// SetUsesApplicationAudioSession はアプリ側の音声セッションを使うかを設定する
func (s *Session) SetUsesApplicationAudioSession(v bool) error {
	return s.mutate(func(c *sessionConfig) error {
		c.usesApplicationAudio = v
		return nil
	})
}

// SetAutomaticallyConfiguresApplicationAudioSession は音声セッションの自動構成を設定する
func (s *Session) SetAutomaticallyConfiguresApplicationAudioSession(v bool) error {
	return s.mutate(func(c *sessionConfig) error {
		c.autoConfiguresAudioSession = v
		return nil
	})
}

// CanAddInput は入力を追加できるか判定する
// 同じデバイスの二重接続と、同じメディアの入力の複数接続はできない
func (s *Session) CanAddInput(input *DeviceInput) bool {
	if input == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return canAddInput(s.current(), input)
}

func canAddInput(c *sessionConfig, input *DeviceInput) bool {
	for _, in := range c.inputs {
		if in == input || in.device.Path == input.device.Path || in.Media() == input.Media() {
			return false
		}
	}
	return true
}

// AddInput は入力を追加する
func (s *Session) AddInput(input *DeviceInput) error {
	if input == nil {
		return ErrCannotAddInput
	}
	return s.mutate(func(c *sessionConfig) error {
		if !canAddInput(c, input) {
			return fmt.Errorf("%w: %s", ErrCannotAddInput, input.device.Path)
		}
		c.inputs = append(c.inputs, input)
		return nil
	})
}

// RemoveAllInputs は全ての入力を取り外す
func (s *Session) RemoveAllInputs() error {
	return s.mutate(func(c *sessionConfig) error {
		c.inputs = nil
		return nil
	})
}

// CanAddOutput は出力を追加できるか判定する
// 他のセッションに接続済みの出力と、同じ種類の出力の複数接続はできない
func (s *Session) CanAddOutput(output Output) bool {
	if output == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canAddOutput(s.current(), output)
}

func (s *Session) canAddOutput(c *sessionConfig, output Output) bool {
	if owner := output.attachedTo(); owner != nil && owner != s {
		return false
	}
	for _, out := range c.outputs {
		if out == output || out.Name() == output.Name() {
			return false
		}
	}
	return true
}

// AddOutput は出力を追加する
func (s *Session) AddOutput(output Output) error {
	if output == nil {
		return ErrCannotAddOutput
	}
	return s.mutate(func(c *sessionConfig) error {
		if !s.canAddOutput(c, output) {
			return fmt.Errorf("%w: %s", ErrCannotAddOutput, output.Name())
		}
		c.outputs = append(c.outputs, output)
		output.setSession(s)
		return nil
	})
}

// RemoveAllOutputs は全ての出力を取り外す
func (s *Session) RemoveAllOutputs() error {
	return s.mutate(func(c *sessionConfig) error {
		for _, out := range c.outputs {
			out.setSession(nil)
		}
		c.outputs = nil
		return nil
	})
}

// mutate はトランザクション中の構成に変更を適用する
func (s *Session) mutate(fn func(c *sessionConfig) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.staged == nil {
		return ErrNoTransaction
	}
	return fn(s.staged)
}

// current はトランザクション中なら変更中の構成を、そうでなければ確定済みの構成を返す
func (s *Session) current() *sessionConfig {
	if s.staged != nil {
		return s.staged
	}
	return s.committed
}

func videoInput(c *sessionConfig) *DeviceInput {
	for _, in := range c.inputs {
		if in.Media() == MediaVideo {
			return in
		}
	}
	return nil
}

// hasOutput は確定済みの構成に出力が含まれるか判定する
func (s *Session) hasOutput(output Output) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, out := range s.committed.outputs {
		if out == output {
			return true
		}
	}
	return false
}

// OnStreamError はストリームの異常終了でセッションが停止したときに呼ぶ関数を設定する
// 関数はフレーム転送のゴルーチンから呼ばれるため、ブロックしてはならない
func (s *Session) OnStreamError(fn func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStreamError = fn
}

// StartRunning はセッションを開始する
// 映像入力がない場合はエラーを返す
func (s *Session) StartRunning() error {
	// 前回のストリームの終了を待つ
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil // 既に開始済み
	}

	input := videoInput(s.committed)
	if input == nil {
		s.status = StatusError
		return fmt.Errorf("%w: 映像入力が接続されていません", ErrNoDevice)
	}
	res, err := s.committed.preset.Resolution()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	frames := make(chan []byte, 10)
	errs := make(chan error, 5)

	s.generation++
	s.cancel = cancel
	s.running = true
	s.status = StatusActive
	s.lastErr = nil

	s.streamerFactory(input, res).StartStream(ctx, frames, errs)

	s.wg.Add(1)
	go s.forwardFrames(ctx, s.generation, frames, errs)

	s.logger.Info().
		Str("device", input.device.Path).
		Str("preset", string(s.committed.preset)).
		Msg("キャプチャセッションを開始しました")
	return nil
}

// StopRunning はセッションを停止する
func (s *Session) StopRunning() {
	s.mu.Lock()
	cancel := s.cancel
	wasRunning := s.running
	s.cancel = nil
	s.running = false
	if s.status == StatusActive {
		s.status = StatusInactive
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.frameMu.Lock()
	s.latestFrame = nil
	s.frameMu.Unlock()

	if wasRunning {
		s.logger.Info().Msg("キャプチャセッションを停止しました")
	}
}

// IsRunning はセッションが動作中か返す
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// forwardFrames はストリームからのフレームを保持・配信する
func (s *Session) forwardFrames(ctx context.Context, gen int, frames <-chan []byte, errs <-chan error) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case frame := <-frames:
			s.frameMu.Lock()
			s.latestFrame = frame
			s.latestAt = time.Now()
			for _, ch := range s.subscribers {
				offerFrame(ch, frame)
			}
			s.frameMu.Unlock()

		case err := <-errs:
			// ストリームが異常終了した場合はセッションを停止状態にする
			s.logger.Error().Err(err).Msg("キャプチャストリームでエラーが発生しました")
			s.mu.Lock()
			stopped := s.generation == gen && s.running
			if stopped {
				s.running = false
				s.status = StatusError
				s.lastErr = err
				if s.cancel != nil {
					s.cancel()
					s.cancel = nil
				}
			}
			onError := s.onStreamError
			s.mu.Unlock()

			if stopped && onError != nil {
				onError(err)
			}
			return
		}
	}
}

// offerFrame はチャンネルがフルの場合に古いフレームを捨てて送信する
func offerFrame(ch chan []byte, frame []byte) {
	select {
	case ch <- frame:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- frame:
	default:
	}
}

// LatestFrame は最新のJPEGフレームのコピーを返す
func (s *Session) LatestFrame() ([]byte, error) {
	if !s.IsRunning() {
		return nil, ErrSessionNotRunning
	}

	s.frameMu.RLock()
	defer s.frameMu.RUnlock()

	if s.latestFrame == nil {
		return nil, ErrNoFrame
	}
	frame := make([]byte, len(s.latestFrame))
	copy(frame, s.latestFrame)
	return frame, nil
}

// Subscribe はフレームの配信を受け取るチャンネルを返す
// 不要になったら返された関数で購読を解除する
func (s *Session) Subscribe() (<-chan []byte, func()) {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	ch := make(chan []byte, 2)
	s.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.frameMu.Lock()
			delete(s.subscribers, id)
			s.frameMu.Unlock()
		})
	}
}

// Stats はセッションの状態を返す
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	c := s.committed
	stats := SessionStats{
		Preset:                      c.preset,
		UsesApplicationAudioSession: c.usesApplicationAudio,
		AutoConfiguresAudioSession:  c.autoConfiguresAudioSession,
		InTransaction:               s.staged != nil,
		Begins:                      s.begins,
		Commits:                     s.commits,
		Running:                     s.running,
		Status:                      s.status,
	}
	for _, in := range c.inputs {
		stats.Inputs = append(stats.Inputs, in.device)
	}
	for _, out := range c.outputs {
		stats.Outputs = append(stats.Outputs, out.Name())
	}
	if s.lastErr != nil {
		stats.LastError = s.lastErr.Error()
	}
	s.mu.Unlock()

	s.frameMu.RLock()
	stats.LastFrameAt = s.latestAt
	s.frameMu.RUnlock()
	return stats
}
