package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cameralink/internal/camera"
	"cameralink/internal/permission"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Camera     CameraConfig     `yaml:"camera"`
	Permission PermissionConfig `yaml:"permission"`
	Audio      AudioConfig      `yaml:"audio"`
	Library    LibraryConfig    `yaml:"library"`
	Display    DisplayConfig    `yaml:"display"`
	UI         UIConfig         `yaml:"ui"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// CameraConfig はキャプチャ関連の設定
type CameraConfig struct {
	Preset        camera.Preset `yaml:"preset"`         // 出力品質プリセット
	FPS           int           `yaml:"fps"`            // フレームレート (fps)
	DevicePattern string        `yaml:"device_pattern"` // 映像デバイスのglob (例: /dev/video*)
	FFmpegPath    string        `yaml:"ffmpeg_path"`
	V4L2CtlPath   string        `yaml:"v4l2ctl_path"`
}

// PromptMode はカメラ使用許可の確認方法
type PromptMode string

const (
	PromptTerminal PromptMode = "terminal" // 端末で確認する
	PromptGrant    PromptMode = "grant"    // 確認せずに許可する
	PromptDeny     PromptMode = "deny"     // 確認せずに拒否する
)

// PermissionConfig はカメラ使用許可の設定
type PermissionConfig struct {
	StorePath  string     `yaml:"store_path"`  // 許可判断の保存先
	PromptMode PromptMode `yaml:"prompt_mode"` // 確認方法
}

// AudioConfig は音声の設定
type AudioConfig struct {
	PassthroughEnabled bool   `yaml:"passthrough_enabled"` // キャプチャ音声をスピーカーへ流す
	PassthroughInput   string `yaml:"passthrough_input"`   // ALSA入力デバイス
	PactlPath          string `yaml:"pactl_path"`
}

// LibraryConfig は写真ライブラリの設定
type LibraryConfig struct {
	Dir string `yaml:"dir"`
}

// DisplayConfig は表示クライアントの設定
type DisplayConfig struct {
	Orientation string `yaml:"orientation"` // 起動時のウィンドウの向き
}

// UIConfig はお知らせ表示の設定
type UIConfig struct {
	RefreshNoticeDelay time.Duration `yaml:"refresh_notice_delay"`
	RecordNoticeDelay  time.Duration `yaml:"record_notice_delay"`
}

// LogConfig はログの設定
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Camera: CameraConfig{
			Preset:        camera.PresetHD1920x1080,
			FPS:           30,
			DevicePattern: "/dev/video*",
			FFmpegPath:    "ffmpeg",
			V4L2CtlPath:   "v4l2-ctl",
		},
		Permission: PermissionConfig{
			StorePath:  defaultStorePath(),
			PromptMode: PromptTerminal,
		},
		Audio: AudioConfig{
			PassthroughEnabled: false,
			PassthroughInput:   "default",
			PactlPath:          "pactl",
		},
		Library: LibraryConfig{
			Dir: "./library",
		},
		Display: DisplayConfig{
			Orientation: camera.InterfaceUnknown.String(),
		},
		UI: UIConfig{
			RefreshNoticeDelay: 1 * time.Second,
			RecordNoticeDelay:  2 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultStorePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/cameralink/permission.yaml"
	}
	return "./permission.yaml"
}

// Load は設定を読み込む
// デフォルト値に CAMERALINK_CONFIG のYAMLファイル、環境変数の順に上書きする
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CAMERALINK_CONFIG"))
}

// LoadFile は指定されたYAMLファイルから設定を読み込む。path が空ならファイルは読まない
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
		}
	}

	cfg.applyEnv()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Camera.Preset = camera.Preset(getEnvOrDefault("CAMERA_PRESET", string(c.Camera.Preset)))
	c.Camera.DevicePattern = getEnvOrDefault("CAMERA_DEVICE_PATTERN", c.Camera.DevicePattern)
	c.Permission.StorePath = getEnvOrDefault("PERMISSION_STORE", c.Permission.StorePath)
	c.Permission.PromptMode = PromptMode(getEnvOrDefault("PERMISSION_PROMPT", string(c.Permission.PromptMode)))
	c.Library.Dir = getEnvOrDefault("LIBRARY_DIR", c.Library.Dir)
	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	var errs []error

	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("無効なポート番号: %d", c.Server.Port))
	}

	if _, err := c.Camera.Preset.Resolution(); err != nil {
		errs = append(errs, err)
	}
	if c.Camera.FPS <= 0 {
		errs = append(errs, fmt.Errorf("無効なフレームレート: %d", c.Camera.FPS))
	}

	switch c.Permission.PromptMode {
	case PromptTerminal, PromptGrant, PromptDeny:
	default:
		errs = append(errs, fmt.Errorf("無効な許可確認方法: %q", c.Permission.PromptMode))
	}
	if c.Permission.StorePath == "" {
		errs = append(errs, errors.New("許可判断の保存先が設定されていません"))
	}

	if c.Library.Dir == "" {
		errs = append(errs, errors.New("ライブラリのディレクトリが設定されていません"))
	}

	if _, err := c.InterfaceOrientation(); err != nil {
		errs = append(errs, err)
	}

	if c.UI.RefreshNoticeDelay <= 0 || c.UI.RecordNoticeDelay <= 0 {
		errs = append(errs, errors.New("お知らせの表示時間は正の値が必要です"))
	}

	return errors.Join(errs...)
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// InterfaceOrientation は起動時のウィンドウの向きを返す
func (c *Config) InterfaceOrientation() (camera.InterfaceOrientation, error) {
	return camera.ParseInterfaceOrientation(strings.ToLower(c.Display.Orientation))
}

// Prompter は確認方法に応じた Prompter を返す
func (c *Config) Prompter() permission.Prompter {
	switch c.Permission.PromptMode {
	case PromptGrant:
		return &permission.StaticPrompter{Grant: true}
	case PromptDeny:
		return &permission.StaticPrompter{Grant: false}
	default:
		return &permission.TerminalPrompter{In: os.Stdin, Out: os.Stderr}
	}
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
