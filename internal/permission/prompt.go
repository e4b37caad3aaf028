package permission

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// StaticPrompter は常に同じ回答を返す Prompter
// 非対話環境（systemdサービスなど）で設定から回答を与える場合に使う
type StaticPrompter struct {
	Grant bool

	mu    sync.Mutex
	calls int
}

// Prompt は設定された回答を返す
func (p *StaticPrompter) Prompt(_ context.Context) (bool, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.Grant, nil
}

// Calls は Prompt が呼ばれた回数を返す
func (p *StaticPrompter) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// TerminalPrompter は端末で y/N を確認する Prompter
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer
}

// Prompt は確認メッセージを表示して回答を読み取る
func (p *TerminalPrompter) Prompt(ctx context.Context) (bool, error) {
	if _, err := fmt.Fprint(p.Out, "CameraLink がカメラを使用しようとしています。許可しますか? [y/N]: "); err != nil {
		return false, fmt.Errorf("確認メッセージの表示に失敗: %w", err)
	}

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	// 読み取りは中断できないため、ctx がキャンセルされると入力があるまでこのゴルーチンは残る
	// 確認は起動時に一度だけなので残るのは高々1つ
	go func() {
		line, err := bufio.NewReader(p.In).ReadString('\n')
		ch <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil && !errors.Is(a.err, io.EOF) {
			return false, fmt.Errorf("回答の読み取りに失敗: %w", a.err)
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}

// VideoDeviceProbe は /dev/video* を開けるか確認する AccessProbe を返す
// デバイスが存在しない場合は判定しない（構成時の検出失敗として扱う）
func VideoDeviceProbe(pattern string) AccessProbe {
	return func(_ context.Context) error {
		matches, err := filepath.Glob(pattern)
		if err != nil || len(matches) == 0 {
			return nil
		}

		var lastErr error
		for _, device := range matches {
			f, err := os.OpenFile(device, os.O_RDONLY, 0)
			if err == nil {
				_ = f.Close()
				return nil
			}
			lastErr = err
		}
		if errors.Is(lastErr, os.ErrPermission) {
			return fmt.Errorf("%w: %v", ErrAccessDenied, lastErr)
		}
		return nil
	}
}
