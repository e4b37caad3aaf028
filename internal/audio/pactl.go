package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// PactlBackend はPulseAudio/PipeWireの pactl で音声経路を切り替える
type PactlBackend struct {
	pactlPath string
	run       func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewPactlBackend は新しいPactlBackendを作成する
func NewPactlBackend(pactlPath string) *PactlBackend {
	if pactlPath == "" {
		pactlPath = "pactl"
	}
	return &PactlBackend{
		pactlPath: pactlPath,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// commands は経路に対応する pactl の引数列を返す
func (b *PactlBackend) commands(route Route) [][]string {
	suspend := func(active bool) string {
		if active {
			return "0"
		}
		return "1"
	}

	cmds := [][]string{
		{"suspend-sink", "@DEFAULT_SINK@", suspend(route.Active)},
	}
	// 録音を含む場合のみ入力側を起こす
	recording := route.Active && route.Category == CategoryPlayAndRecord
	cmds = append(cmds, []string{"suspend-source", "@DEFAULT_SOURCE@", suspend(recording)})

	if route.Active && route.Options&OptionDefaultToSpeaker != 0 {
		cmds = append(cmds, []string{"set-sink-mute", "@DEFAULT_SINK@", "0"})
	}
	return cmds
}

// Apply は経路を反映する
func (b *PactlBackend) Apply(ctx context.Context, route Route) error {
	for _, args := range b.commands(route) {
		out, err := b.run(ctx, b.pactlPath, args...)
		if err != nil {
			return fmt.Errorf("pactl %s に失敗: %w (%s)", args[0], err, strings.TrimSpace(string(out)))
		}
	}
	return nil
}
