package camera

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"testing/iotest"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

var (
	testVideo = Device{ID: "video0", Name: "Capture", Path: "/dev/video0", Type: DeviceTypeExternal, Media: MediaVideo}
	testMic   = Device{ID: "card0", Name: "PCH", Path: "hw:0", Type: DeviceTypeBuiltIn, Media: MediaAudio}
	testFrame = []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}
)

func newTestInputs(t *testing.T) (*DeviceInput, *DeviceInput) {
	t.Helper()
	ctx := context.Background()
	discovery := NewMockDiscovery(testVideo, testMic)

	video, err := NewDeviceInput(ctx, discovery, testVideo)
	if err != nil {
		t.Fatalf("NewDeviceInput(video) failed: %v", err)
	}
	audio, err := NewDeviceInput(ctx, discovery, testMic)
	if err != nil {
		t.Fatalf("NewDeviceInput(audio) failed: %v", err)
	}
	return video, audio
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSession_Transaction(t *testing.T) {
	session := NewSession(MockStreamerFactory(&MockStreamer{}), zerolog.Nop())
	video, _ := newTestInputs(t)

	// トランザクション外での変更
	if err := session.AddInput(video); !errors.Is(err, ErrNoTransaction) {
		t.Errorf("Expected ErrNoTransaction, got %v", err)
	}
	if err := session.CommitConfiguration(); !errors.Is(err, ErrNoTransaction) {
		t.Errorf("Expected ErrNoTransaction on commit, got %v", err)
	}

	if err := session.BeginConfiguration(); err != nil {
		t.Fatalf("BeginConfiguration failed: %v", err)
	}
	if err := session.BeginConfiguration(); !errors.Is(err, ErrTransactionActive) {
		t.Errorf("Expected ErrTransactionActive, got %v", err)
	}
	if err := session.SetPreset(PresetHD1280x720); err != nil {
		t.Fatalf("SetPreset failed: %v", err)
	}
	if err := session.AddInput(video); err != nil {
		t.Fatalf("AddInput failed: %v", err)
	}

	// コミット前は反映されない
	if stats := session.Stats(); len(stats.Inputs) != 0 || stats.Preset != PresetHD1920x1080 || !stats.InTransaction {
		t.Errorf("Staged changes leaked before commit: %+v", stats)
	}

	if err := session.CommitConfiguration(); err != nil {
		t.Fatalf("CommitConfiguration failed: %v", err)
	}

	stats := session.Stats()
	if len(stats.Inputs) != 1 || stats.Inputs[0].Path != "/dev/video0" {
		t.Errorf("Expected committed video input, got %+v", stats.Inputs)
	}
	if stats.Preset != PresetHD1280x720 {
		t.Errorf("Expected preset hd1280x720, got %s", stats.Preset)
	}
	if stats.Begins != 1 || stats.Commits != 1 || stats.InTransaction {
		t.Errorf("Unexpected transaction counters: %+v", stats)
	}
}

func TestSession_InvalidPreset(t *testing.T) {
	session := NewSession(MockStreamerFactory(&MockStreamer{}), zerolog.Nop())
	if err := session.BeginConfiguration(); err != nil {
		t.Fatal(err)
	}
	if err := session.SetPreset("cinema4k"); err == nil {
		t.Error("Expected error for unknown preset")
	}
}

func TestSession_CanAddInput(t *testing.T) {
	session := NewSession(MockStreamerFactory(&MockStreamer{}), zerolog.Nop())
	video, audio := newTestInputs(t)

	if err := session.BeginConfiguration(); err != nil {
		t.Fatal(err)
	}
	if !session.CanAddInput(video) {
		t.Fatal("Expected video input to be addable")
	}
	if err := session.AddInput(video); err != nil {
		t.Fatal(err)
	}

	// 同じデバイスの二重接続
	if session.CanAddInput(video) {
		t.Error("Expected duplicate input to be rejected")
	}
	// 同じメディアの2つ目の入力
	other := &DeviceInput{device: Device{Path: "/dev/video2", Media: MediaVideo}}
	if session.CanAddInput(other) {
		t.Error("Expected second video input to be rejected")
	}
	if err := session.AddInput(other); !errors.Is(err, ErrCannotAddInput) {
		t.Errorf("Expected ErrCannotAddInput, got %v", err)
	}

	if !session.CanAddInput(audio) {
		t.Error("Expected audio input to be addable")
	}
	if session.CanAddInput(nil) {
		t.Error("Expected nil input to be rejected")
	}

	if err := session.RemoveAllInputs(); err != nil {
		t.Fatal(err)
	}
	if !session.CanAddInput(video) {
		t.Error("Expected video input to be addable after RemoveAllInputs")
	}
}

func TestSession_Outputs(t *testing.T) {
	first := NewSession(MockStreamerFactory(&MockStreamer{}), zerolog.Nop())
	second := NewSession(MockStreamerFactory(&MockStreamer{}), zerolog.Nop())
	output := NewPhotoOutput()

	if err := first.BeginConfiguration(); err != nil {
		t.Fatal(err)
	}
	if err := first.AddOutput(output); err != nil {
		t.Fatalf("AddOutput failed: %v", err)
	}
	if first.CanAddOutput(output) {
		t.Error("Expected duplicate output to be rejected")
	}
	if first.CanAddOutput(NewPhotoOutput()) {
		t.Error("Expected second photo output to be rejected")
	}
	if err := first.CommitConfiguration(); err != nil {
		t.Fatal(err)
	}

	// 他のセッションに接続済みの出力
	if err := second.BeginConfiguration(); err != nil {
		t.Fatal(err)
	}
	if second.CanAddOutput(output) {
		t.Error("Expected output owned by another session to be rejected")
	}
	if err := second.AddOutput(output); !errors.Is(err, ErrCannotAddOutput) {
		t.Errorf("Expected ErrCannotAddOutput, got %v", err)
	}

	if got := first.Stats().Outputs; len(got) != 1 || got[0] != "photo" {
		t.Errorf("Expected [photo], got %v", got)
	}
}

func TestSession_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	streamer := &MockStreamer{Frames: [][]byte{testFrame}}
	session := NewSession(MockStreamerFactory(streamer), zerolog.Nop())

	// 映像入力なしでは開始できない
	if err := session.StartRunning(); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("Expected ErrNoDevice, got %v", err)
	}

	video, _ := newTestInputs(t)
	output := NewPhotoOutput()
	if err := session.BeginConfiguration(); err != nil {
		t.Fatal(err)
	}
	if err := session.AddInput(video); err != nil {
		t.Fatal(err)
	}
	if err := session.AddOutput(output); err != nil {
		t.Fatal(err)
	}
	if err := session.CommitConfiguration(); err != nil {
		t.Fatal(err)
	}

	if err := session.StartRunning(); err != nil {
		t.Fatalf("StartRunning failed: %v", err)
	}
	// 二重開始は何もしない
	if err := session.StartRunning(); err != nil {
		t.Fatalf("second StartRunning failed: %v", err)
	}
	if streamer.Starts() != 1 {
		t.Errorf("Expected 1 stream start, got %d", streamer.Starts())
	}
	if !session.IsRunning() || session.Stats().Status != StatusActive {
		t.Fatalf("Expected running session, got %+v", session.Stats())
	}

	result := <-output.CapturePhoto(DefaultPhotoSettings())
	if result.Err != nil {
		t.Fatalf("CapturePhoto failed: %v", result.Err)
	}
	if !bytes.Equal(result.Data, testFrame) {
		t.Errorf("Unexpected photo data: %x", result.Data)
	}

	session.StopRunning()
	if session.IsRunning() {
		t.Error("Expected session to be stopped")
	}
	if _, err := session.LatestFrame(); !errors.Is(err, ErrSessionNotRunning) {
		t.Errorf("Expected ErrSessionNotRunning, got %v", err)
	}

	result = <-output.CapturePhoto(DefaultPhotoSettings())
	if !errors.Is(result.Err, ErrSessionNotRunning) {
		t.Errorf("Expected ErrSessionNotRunning from capture, got %v", result.Err)
	}
}

func TestSession_StreamErrorStopsSession(t *testing.T) {
	defer goleak.VerifyNone(t)

	streamer := &MockStreamer{Err: errors.New("device unplugged")}
	session := NewSession(MockStreamerFactory(streamer), zerolog.Nop())
	notified := make(chan error, 4)
	session.OnStreamError(func(err error) { notified <- err })
	video, _ := newTestInputs(t)

	if err := session.BeginConfiguration(); err != nil {
		t.Fatal(err)
	}
	if err := session.AddInput(video); err != nil {
		t.Fatal(err)
	}
	if err := session.CommitConfiguration(); err != nil {
		t.Fatal(err)
	}
	if err := session.StartRunning(); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return !session.IsRunning() })

	// 停止は一度だけ通知される
	select {
	case err := <-notified:
		if err == nil || err.Error() != "device unplugged" {
			t.Errorf("Expected stream error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("stream error was not notified")
	}

	stats := session.Stats()
	if stats.Status != StatusError || stats.LastError != "device unplugged" {
		t.Errorf("Expected error status, got %+v", stats)
	}

	// 再開始で復旧できる
	streamer.Err = nil
	streamer.Frames = [][]byte{testFrame}
	if err := session.StartRunning(); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	waitFor(t, func() bool {
		_, err := session.LatestFrame()
		return err == nil
	})
	session.StopRunning()

	// 通常の停止では通知しない
	if len(notified) != 0 {
		t.Errorf("Expected no notification on stop, got %d", len(notified))
	}
}

func TestPhotoOutput_NotAttached(t *testing.T) {
	output := NewPhotoOutput()
	result := <-output.CapturePhoto(DefaultPhotoSettings())
	if !errors.Is(result.Err, ErrOutputNotAttached) {
		t.Errorf("Expected ErrOutputNotAttached, got %v", result.Err)
	}

	if err := output.SetPreparedPhotoSettings(PhotoSettings{Codec: "heic"}); err == nil {
		t.Error("Expected unsupported codec error")
	}
	if err := output.SetPreparedPhotoSettings(PhotoSettings{Codec: PhotoCodecJPEG, Timeout: time.Second}); err != nil {
		t.Errorf("SetPreparedPhotoSettings failed: %v", err)
	}
	if output.PreparedPhotoSettings().Timeout != time.Second {
		t.Error("Expected prepared settings to be stored")
	}
}

func TestSplitJPEGStream(t *testing.T) {
	frameA := []byte{0xFF, 0xD8, 0xAA, 0xFF, 0xD9}
	frameB := []byte{0xFF, 0xD8, 0xBB, 0xBB, 0xFF, 0xD9}
	stream := append([]byte{0x00, 0x11}, frameA...)
	stream = append(stream, 0x22)
	stream = append(stream, frameB...)

	frames := make(chan []byte, 4)
	// 1バイトずつ読ませてマーカーの分断を確認する
	err := splitJPEGStream(context.Background(), iotest.OneByteReader(bytes.NewReader(stream)), frames)
	if err != nil {
		t.Fatalf("splitJPEGStream failed: %v", err)
	}
	close(frames)

	var got [][]byte
	for f := range frames {
		got = append(got, f)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(got))
	}
	if !bytes.Equal(got[0], frameA) || !bytes.Equal(got[1], frameB) {
		t.Errorf("Unexpected frames: %x", got)
	}
}

func TestVideoOrientationFor(t *testing.T) {
	testCases := []struct {
		in   InterfaceOrientation
		want VideoOrientation
	}{
		{InterfacePortrait, VideoPortrait},
		{InterfacePortraitUpsideDown, VideoPortraitUpsideDown},
		{InterfaceLandscapeRight, VideoLandscapeRight},
		{InterfaceLandscapeLeft, VideoLandscapeLeft},
		{InterfaceUnknown, VideoPortrait},
		{InterfaceOrientation(42), VideoPortrait},
	}
	for _, tc := range testCases {
		if got := VideoOrientationFor(tc.in); got != tc.want {
			t.Errorf("VideoOrientationFor(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}

	o, err := ParseInterfaceOrientation("landscape_left")
	if err != nil || o != InterfaceLandscapeLeft {
		t.Errorf("ParseInterfaceOrientation = %v, %v", o, err)
	}
	if _, err := ParseInterfaceOrientation("sideways"); err == nil {
		t.Error("Expected error for unknown orientation")
	}
	if VideoLandscapeRight.Degrees() != 90 {
		t.Errorf("Expected 90 degrees, got %d", VideoLandscapeRight.Degrees())
	}

	preview := NewPreview(NewSession(MockStreamerFactory(&MockStreamer{}), zerolog.Nop()))
	if preview.VideoOrientation() != VideoPortrait {
		t.Error("Expected portrait by default")
	}
	preview.SetVideoOrientation(VideoLandscapeLeft)
	if preview.VideoOrientation() != VideoLandscapeLeft {
		t.Error("Expected orientation to be updated")
	}
}
