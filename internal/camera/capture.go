package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Streamer は映像入力からJPEGフレームを連続取得する
type Streamer interface {
	// StartStream はストリーミングを開始する
	// ctx がキャンセルされるとストリームを終了し、frameChan には書き込まなくなる
	StartStream(ctx context.Context, frameChan chan<- []byte, errorChan chan<- error)
}

// StreamerFactory は映像入力とプリセットからStreamerを作成する
type StreamerFactory func(input *DeviceInput, res Resolution) Streamer

// FFmpegStreamerFactory はffmpegでV4L2デバイスを読むStreamerFactoryを返す
func FFmpegStreamerFactory(ffmpegPath string, fps int, logger zerolog.Logger) StreamerFactory {
	return func(input *DeviceInput, res Resolution) Streamer {
		return NewV4L2Capturer(ffmpegPath, input.Device().Path, res.Width, res.Height, fps, logger)
	}
}

// V4L2Capturer はffmpegを使ってV4L2デバイスから画像を取得する
type V4L2Capturer struct {
	ffmpegPath string
	devicePath string
	width      int
	height     int
	fps        int
	logger     zerolog.Logger
}

// NewV4L2Capturer は新しいV4L2Capturerを作成する
func NewV4L2Capturer(ffmpegPath, devicePath string, width, height, fps int, logger zerolog.Logger) *V4L2Capturer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &V4L2Capturer{
		ffmpegPath: ffmpegPath,
		devicePath: devicePath,
		width:      width,
		height:     height,
		fps:        fps,
		logger:     logger,
	}
}

// streamArgs は連続キャプチャ用のffmpeg引数を返す
func (c *V4L2Capturer) streamArgs() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", c.width, c.height),
		"-r", strconv.Itoa(c.fps),
		"-i", c.devicePath,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "2",
		"-",
	}
}

// StartStream は連続キャプチャ用のストリームを開始する
func (c *V4L2Capturer) StartStream(ctx context.Context, frameChan chan<- []byte, errorChan chan<- error) {
	cmd := exec.CommandContext(ctx, c.ffmpegPath, c.streamArgs()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		sendError(ctx, errorChan, fmt.Errorf("stdoutパイプの作成に失敗: %w", err))
		return
	}

	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{buf: &stderr, limit: 4096}

	if err := cmd.Start(); err != nil {
		sendError(ctx, errorChan, fmt.Errorf("ffmpegの起動に失敗: %w", err))
		return
	}
	c.logger.Debug().Str("device", c.devicePath).Int("pid", cmd.Process.Pid).Msg("ffmpegを起動しました")

	go func() {
		err := splitJPEGStream(ctx, stdout, frameChan)
		waitErr := cmd.Wait()

		if ctx.Err() != nil {
			// 停止要求による終了
			return
		}
		if err == nil && waitErr != nil {
			err = fmt.Errorf("ffmpegが終了しました: %w (stderr: %s)", waitErr, strings.TrimSpace(stderr.String()))
		}
		if err != nil {
			sendError(ctx, errorChan, err)
		}
	}()
}

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// splitJPEGStream はMJPEGバイト列をJPEGフレームに分割して送信する
func splitJPEGStream(ctx context.Context, r io.Reader, frameChan chan<- []byte) error {
	buffer := make([]byte, 256*1024)
	var pending []byte

	for {
		n, err := r.Read(buffer)
		if n > 0 {
			pending = append(pending, buffer[:n]...)

			for {
				// JPEGの開始マーカー（FF D8）を探す
				start := bytes.Index(pending, jpegSOI)
				if start == -1 {
					// 末尾の0xFFは次のチャンクのマーカーの一部の可能性がある
					if len(pending) > 0 && pending[len(pending)-1] == 0xFF {
						pending = pending[len(pending)-1:]
					} else {
						pending = pending[:0]
					}
					break
				}

				// JPEGの終了マーカー（FF D9）を探す
				end := bytes.Index(pending[start+2:], jpegEOI)
				if end == -1 {
					// 完全なフレームがまだない
					pending = pending[start:]
					break
				}
				end += start + 2 + len(jpegEOI)

				frame := make([]byte, end-start)
				copy(frame, pending[start:end])

				select {
				case frameChan <- frame:
				case <-ctx.Done():
					return nil
				}

				pending = pending[end:]
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("フレーム読み取りエラー: %w", err)
		}
	}
}

// sendError はエラーを送信する。チャンネルが詰まっている場合は破棄する
func sendError(ctx context.Context, errorChan chan<- error, err error) {
	select {
	case errorChan <- err:
	case <-ctx.Done():
	default:
	}
}

// limitedWriter は先頭から limit バイトまでを保持する
type limitedWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if remain := w.limit - w.buf.Len(); remain > 0 {
		if len(p) > remain {
			w.buf.Write(p[:remain])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}

// MockStreamer はテスト用のStreamer
// Frames を Interval ごとに繰り返し送信する。Err が設定されていれば一巡後に送信して終了する
type MockStreamer struct {
	Frames   [][]byte
	Interval time.Duration
	Err      error

	starts atomic.Int32
}

// StartStream はモックのストリームを開始する
func (m *MockStreamer) StartStream(ctx context.Context, frameChan chan<- []byte, errorChan chan<- error) {
	m.starts.Add(1)
	interval := m.Interval
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for i := 0; ; i++ {
			if len(m.Frames) > 0 {
				select {
				case frameChan <- m.Frames[i%len(m.Frames)]:
				case <-ctx.Done():
					return
				}
			}
			if m.Err != nil && (len(m.Frames) == 0 || i == len(m.Frames)-1) {
				sendError(ctx, errorChan, m.Err)
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Starts はストリームが開始された回数を返す
func (m *MockStreamer) Starts() int {
	return int(m.starts.Load())
}

// MockStreamerFactory は常に同じMockStreamerを返すStreamerFactory
func MockStreamerFactory(m *MockStreamer) StreamerFactory {
	return func(*DeviceInput, Resolution) Streamer {
		return m
	}
}
