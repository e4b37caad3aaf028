package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cameralink/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Camera.DevicePattern = filepath.Join(dir, "video*")
	cfg.Camera.FFmpegPath = filepath.Join(dir, "missing-ffmpeg")
	cfg.Camera.V4L2CtlPath = filepath.Join(dir, "missing-v4l2-ctl")
	cfg.Audio.PactlPath = filepath.Join(dir, "missing-pactl")
	cfg.Permission.StorePath = filepath.Join(dir, "permission.yaml")
	cfg.Permission.PromptMode = config.PromptGrant
	cfg.Library.Dir = filepath.Join(dir, "library")
	cfg.Log.Level = "error"
	return cfg
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Run(ctx, cfg) }()

	// デバイスがないため構成は失敗するが、サーバーは動作し続ける
	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("Run が終了しませんでした")
	}

	// 許可判断が保存されている
	_, err := os.Stat(cfg.Permission.StorePath)
	assert.NoError(t, err)
}

func TestRun_InvalidLibraryDir(t *testing.T) {
	cfg := testConfig(t)
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	cfg.Library.Dir = file

	err := Run(context.Background(), cfg)
	assert.Error(t, err)
}

func TestExitError(t *testing.T) {
	err := errors.Join(&ExitError{Code: 0}, nil)

	var exit *ExitError
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, 0, exit.Code)
	assert.Contains(t, exit.Error(), "code=0")
}
