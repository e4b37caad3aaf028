package camera

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LinuxDiscovery はLinux環境でのキャプチャデバイス検出を実装する
type LinuxDiscovery struct {
	devicePattern string // 映像デバイスのglobパターン
	sysfsRoot     string // /sys/class/video4linux
	asoundCards   string // /proc/asound/cards
	v4l2ctl       string // v4l2-ctlのパス
}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
func NewLinuxDiscovery(devicePattern, v4l2ctl string) *LinuxDiscovery {
	if devicePattern == "" {
		devicePattern = "/dev/video*"
	}
	if v4l2ctl == "" {
		v4l2ctl = "v4l2-ctl"
	}
	return &LinuxDiscovery{
		devicePattern: devicePattern,
		sysfsRoot:     "/sys/class/video4linux",
		asoundCards:   "/proc/asound/cards",
		v4l2ctl:       v4l2ctl,
	}
}

// Devices は条件に合うデバイスを検出順に返す
func (d *LinuxDiscovery) Devices(ctx context.Context, query DiscoveryQuery) ([]Device, error) {
	var all []Device
	var err error

	switch query.Media {
	case MediaVideo:
		all, err = d.scanVideoDevices(ctx)
	case MediaAudio:
		all, err = d.scanAudioDevices()
	default:
		return nil, fmt.Errorf("サポートされていないメディア: %s", query.Media)
	}
	if err != nil {
		return nil, err
	}

	var devices []Device
	for _, dev := range all {
		if query.matches(dev) {
			devices = append(devices, dev)
		}
	}
	return devices, nil
}

// DefaultDevice は指定メディアの既定デバイスを返す
// 映像は最も番号の小さい利用可能なデバイス、音声はALSAの最初のカード
func (d *LinuxDiscovery) DefaultDevice(ctx context.Context, media MediaType) (*Device, error) {
	devices, err := d.Devices(ctx, DiscoveryQuery{Media: media})
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDevice, media)
	}
	dev := devices[0]
	return &dev, nil
}

// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
func (d *LinuxDiscovery) IsDeviceAvailable(_ context.Context, device Device) bool {
	if device.Media == MediaAudio {
		// ALSAのカードはカード一覧に存在すれば利用可能とみなす
		cards, err := d.scanAudioDevices()
		if err != nil {
			return false
		}
		for _, c := range cards {
			if c.Path == device.Path {
				return true
			}
		}
		return false
	}

	// デバイスファイルの存在確認
	if _, err := os.Stat(device.Path); os.IsNotExist(err) {
		return false
	}

	// デバイスファイルの読み取り権限チェック
	file, err := os.OpenFile(device.Path, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	defer func() {
		_ = file.Close()
	}()

	return isV4L2Device(device.Path)
}

// scanVideoDevices は /dev/video* をスキャンしてメインの映像デバイスを返す
func (d *LinuxDiscovery) scanVideoDevices(ctx context.Context) ([]Device, error) {
	matches, err := filepath.Glob(d.devicePattern)
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	// デバイス番号でソート
	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	var devices []Device
	seenCards := make(map[string]bool)
	for _, match := range matches {
		// コンテキストのキャンセルをチェック
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		if !isV4L2Device(match) {
			continue
		}

		name := d.deviceName(ctx, match)
		// 同じ物理デバイスの複数ノード（メタデータ用ノード等）は最小番号のみ採用
		if name != "" && seenCards[name] {
			continue
		}
		if !d.isCaptureNode(ctx, match) {
			continue
		}
		if name != "" {
			seenCards[name] = true
		} else {
			name = fmt.Sprintf("カメラ %d", extractDeviceNumber(match))
		}

		devices = append(devices, Device{
			ID:     filepath.Base(match),
			Name:   name,
			Path:   match,
			Type:   d.classify(match),
			Media:  MediaVideo,
			Driver: d.driverName(match),
		})
	}

	return devices, nil
}

// classify はsysfsのリンク先からデバイスの接続形態を判定する
// USBバス配下のデバイスを外部接続とみなす
func (d *LinuxDiscovery) classify(device string) DeviceType {
	link, err := filepath.EvalSymlinks(filepath.Join(d.sysfsRoot, filepath.Base(device), "device"))
	if err != nil {
		return DeviceTypeUnknown
	}
	if strings.Contains(link, "/usb") || strings.Contains(link, "/thunderbolt") {
		return DeviceTypeExternal
	}
	return DeviceTypeBuiltIn
}

// driverName はsysfsからドライバー名を取得する
func (d *LinuxDiscovery) driverName(device string) string {
	link, err := os.Readlink(filepath.Join(d.sysfsRoot, filepath.Base(device), "device", "driver"))
	if err != nil {
		return ""
	}
	return filepath.Base(link)
}

// deviceName はv4l2-ctlを使って実際のデバイス名を取得する
func (d *LinuxDiscovery) deviceName(ctx context.Context, device string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, d.v4l2ctl, "--device", device, "--info").Output()
	if err != nil {
		// v4l2-ctlがない環境ではsysfsのnameを使う
		data, err := os.ReadFile(filepath.Join(d.sysfsRoot, filepath.Base(device), "name"))
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(data))
	}
	return parseCardType(string(output))
}

// isCaptureNode はデバイスがカラー映像のキャプチャノードか判定する
func (d *LinuxDiscovery) isCaptureNode(ctx context.Context, device string) bool {
	output, err := exec.CommandContext(ctx, d.v4l2ctl, "--device", device, "--list-formats-ext").Output()
	if err != nil {
		// v4l2-ctlがない場合は判定せずに採用する
		return true
	}
	return hasColorFormat(string(output))
}

// scanAudioDevices は /proc/asound/cards から音声キャプチャカードを返す
func (d *LinuxDiscovery) scanAudioDevices() ([]Device, error) {
	f, err := os.Open(d.asoundCards)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("サウンドカード一覧の読み込みに失敗: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var devices []Device
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if dev, ok := parseAsoundCard(scanner.Text()); ok {
			devices = append(devices, dev)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("サウンドカード一覧の解析に失敗: %w", err)
	}
	return devices, nil
}

var asoundCardLine = regexp.MustCompile(`^\s*(\d+)\s+\[(\S+)\s*\]:\s*(\S+)\s+-\s+(.+)$`)

// parseAsoundCard は /proc/asound/cards の見出し行を解析する
// 例: " 1 [C920           ]: USB-Audio - HD Pro Webcam C920"
func parseAsoundCard(line string) (Device, bool) {
	m := asoundCardLine.FindStringSubmatch(line)
	if m == nil {
		return Device{}, false
	}
	devType := DeviceTypeBuiltIn
	if strings.Contains(m[3], "USB") {
		devType = DeviceTypeExternal
	}
	return Device{
		ID:     m[2],
		Name:   strings.TrimSpace(m[4]),
		Path:   "hw:" + m[1],
		Type:   devType,
		Media:  MediaAudio,
		Driver: m[3],
	}, true
}

// parseCardType は v4l2-ctl --info の出力から "Card type" を抽出する
func parseCardType(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Card type") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 {
				return strings.TrimSpace(parts[1])
			}
		}
	}
	return ""
}

// hasColorFormat はフォーマット一覧がカラー形式を含むか判定する
// グレースケールのみのデバイス（IRカメラ等）とメタデータノードを除外する
func hasColorFormat(formats string) bool {
	return strings.Contains(formats, "YUYV") || strings.Contains(formats, "MJPG") || strings.Contains(formats, "NV12")
}

// isV4L2Device はデバイスパスが /dev/videoN 形式か判定する
func isV4L2Device(device string) bool {
	return strings.HasPrefix(filepath.Base(device), "video") && extractDeviceNumber(device) >= 0
}

var deviceNumberPattern = regexp.MustCompile(`video(\d+)$`)

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	matches := deviceNumberPattern.FindStringSubmatch(device)
	if len(matches) < 2 {
		return -1
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return -1
	}

	return num
}

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	mu      sync.Mutex
	devices []Device
	scans   int
	err     error
}

// NewMockDiscovery は新しいMockDiscoveryを作成する
func NewMockDiscovery(devices ...Device) *MockDiscovery {
	return &MockDiscovery{devices: append([]Device(nil), devices...)}
}

// Devices は条件に合うモックデバイス一覧を返す
func (m *MockDiscovery) Devices(_ context.Context, query DiscoveryQuery) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if query.Media == MediaVideo {
		m.scans++
	}
	if m.err != nil {
		return nil, m.err
	}

	var devices []Device
	for _, d := range m.devices {
		if query.matches(d) {
			devices = append(devices, d)
		}
	}
	return devices, nil
}

// DefaultDevice は指定メディアの最初のモックデバイスを返す
func (m *MockDiscovery) DefaultDevice(ctx context.Context, media MediaType) (*Device, error) {
	devices, err := m.Devices(ctx, DiscoveryQuery{Media: media})
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDevice, media)
	}
	dev := devices[0]
	return &dev, nil
}

// IsDeviceAvailable はモックデバイスが登録されているかチェックする
func (m *MockDiscovery) IsDeviceAvailable(_ context.Context, device Device) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.devices {
		if d.Path == device.Path {
			return true
		}
	}
	return false
}

// AddDevice はテスト用にデバイスを追加する
func (m *MockDiscovery) AddDevice(device Device) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.devices {
		if d.Path == device.Path {
			return
		}
	}
	m.devices = append(m.devices, device)
}

// RemoveDevice はテスト用にデバイスを削除する
func (m *MockDiscovery) RemoveDevice(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, d := range m.devices {
		if d.Path == path {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			return
		}
	}
}

// SetError はテスト用に検出エラーを設定する
func (m *MockDiscovery) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// VideoScans は映像デバイスの検出が行われた回数を返す
func (m *MockDiscovery) VideoScans() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scans
}
