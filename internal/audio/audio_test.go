package audio

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestSession_SetCategoryAndActivate(t *testing.T) {
	ctx := context.Background()
	backend := &MockBackend{}
	session := NewSession(backend, zerolog.Nop())

	// 非アクティブ時は反映しない
	require.NoError(t, session.SetCategory(ctx, CategoryPlayback, ModeMoviePlayback, 0))
	assert.Empty(t, backend.Applied())

	require.NoError(t, session.SetActive(ctx, true))
	applied := backend.Applied()
	require.Len(t, applied, 1)
	assert.Equal(t, Route{Category: CategoryPlayback, Mode: ModeMoviePlayback, Active: true}, applied[0])

	opts := OptionAllowAirPlay | OptionAllowBluetoothA2DP | OptionDefaultToSpeaker
	require.NoError(t, session.SetCategory(ctx, CategoryPlayAndRecord, ModeDefault, opts))
	applied = backend.Applied()
	require.Len(t, applied, 2)
	assert.Equal(t, CategoryPlayAndRecord, applied[1].Category)
	assert.Equal(t, opts, session.Route().Options)
}

func TestSession_BackendError(t *testing.T) {
	ctx := context.Background()
	backend := &MockBackend{}
	backend.SetError(errors.New("no server"))
	session := NewSession(backend, zerolog.Nop())

	err := session.SetActive(ctx, true)
	require.Error(t, err)
	assert.False(t, session.Route().Active, "失敗時は状態を更新しない")

	assert.Error(t, session.SetCategory(ctx, "karaoke", ModeDefault, 0))
}

func TestOptions_String(t *testing.T) {
	assert.Equal(t, "none", Options(0).String())
	assert.Equal(t, "allow_airplay|default_to_speaker", (OptionAllowAirPlay | OptionDefaultToSpeaker).String())
}

func TestPactlBackend_Commands(t *testing.T) {
	var calls []string
	backend := NewPactlBackend("")
	backend.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		calls = append(calls, name+" "+strings.Join(args, " "))
		return nil, nil
	}

	ctx := context.Background()
	require.NoError(t, backend.Apply(ctx, Route{Category: CategoryPlayback, Active: true}))
	assert.Equal(t, []string{
		"pactl suspend-sink @DEFAULT_SINK@ 0",
		"pactl suspend-source @DEFAULT_SOURCE@ 1",
	}, calls)

	calls = nil
	require.NoError(t, backend.Apply(ctx, Route{Category: CategoryPlayAndRecord, Options: OptionDefaultToSpeaker, Active: true}))
	assert.Equal(t, []string{
		"pactl suspend-sink @DEFAULT_SINK@ 0",
		"pactl suspend-source @DEFAULT_SOURCE@ 0",
		"pactl set-sink-mute @DEFAULT_SINK@ 0",
	}, calls)

	backend.run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("Connection failure"), errors.New("exit status 1")
	}
	err := backend.Apply(ctx, Route{Active: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Connection failure")
}

func TestEngine_Disabled(t *testing.T) {
	engine := NewEngine(EngineConfig{}, zerolog.Nop())
	assert.ErrorIs(t, engine.Start(), ErrEngineDisabled)
	assert.False(t, engine.Running())
	engine.Stop()
}

func TestEngine_StartStopReset(t *testing.T) {
	defer goleak.VerifyNone(t)

	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	engine := NewEngine(EngineConfig{Enabled: true, Input: "hw:1"}, zerolog.Nop())
	assert.Contains(t, engine.args(), "hw:1")
	engine.newCmd = func(ctx context.Context) *exec.Cmd {
		return exec.CommandContext(ctx, "sleep", "30")
	}

	require.NoError(t, engine.Start())
	require.NoError(t, engine.Start(), "二重起動は何もしない")
	assert.True(t, engine.Running())
	assert.Equal(t, 1, engine.Starts())

	require.NoError(t, engine.Reset())
	assert.True(t, engine.Running())
	assert.Equal(t, 2, engine.Starts())

	engine.Stop()
	assert.False(t, engine.Running())
}
