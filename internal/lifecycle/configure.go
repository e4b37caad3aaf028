package lifecycle

import (
	"cameralink/internal/audio"
	"cameralink/internal/camera"
	"cameralink/internal/metrics"
)

// configureSession はセッションに入力と出力を接続する
// sessionQueue 上で呼ぶ。どの分岐で戻ってもトランザクションは閉じられる
func (c *Controller) configureSession() {
	defer c.publish()

	if c.setupResult != SetupSuccess {
		return
	}
	c.configured = true

	session := c.deps.Session
	if err := session.BeginConfiguration(); err != nil {
		c.logger.Error().Err(err).Msg("構成トランザクションを開始できませんでした")
		c.setupResult = SetupConfigurationFailed
		metrics.RecordSetupResult(c.setupResult.String())
		return
	}

	fail := func(err error, msg string) {
		c.logger.Error().Err(err).Msg(msg)
		c.setupResult = SetupConfigurationFailed
		c.commit()
	}

	if err := session.SetPreset(c.opts.Preset); err != nil {
		fail(err, "プリセットを設定できませんでした")
		return
	}
	if err := session.SetUsesApplicationAudioSession(true); err != nil {
		fail(err, "音声セッションの設定に失敗しました")
		return
	}

	// 再構成時は入力・出力を作り直す
	if err := session.RemoveAllInputs(); err != nil {
		fail(err, "入力を取り外せませんでした")
		return
	}
	if err := session.RemoveAllOutputs(); err != nil {
		fail(err, "出力を取り外せませんでした")
		return
	}

	ctx, cancel := c.opContext()
	defer cancel()

	// 映像入力
	devices, err := c.deps.Discovery.Devices(ctx, camera.DiscoveryQuery{
		Types: []camera.DeviceType{camera.DeviceTypeExternal},
		Media: camera.MediaVideo,
	})
	if err != nil {
		fail(err, "映像デバイスを検出できませんでした")
		return
	}
	if len(devices) == 0 {
		fail(camera.ErrNoDevice, "外部映像デバイスが利用できません")
		return
	}

	videoInput, err := camera.NewDeviceInput(ctx, c.deps.Discovery, devices[0])
	if err != nil {
		fail(err, "映像入力を作成できませんでした")
		return
	}
	if !session.CanAddInput(videoInput) {
		fail(camera.ErrCannotAddInput, "映像入力をセッションに追加できませんでした")
		return
	}
	if err := session.AddInput(videoInput); err != nil {
		fail(err, "映像入力をセッションに追加できませんでした")
		return
	}
	c.deps.Presenter.Main(c.updatePreviewOrientation)

	// 音声入力（失敗しても映像のみで続行する）
	c.addAudioInput()

	if err := session.SetAutomaticallyConfiguresApplicationAudioSession(false); err != nil {
		c.logger.Warn().Err(err).Msg("音声セッションの自動構成を無効化できませんでした")
	}

	// 写真出力
	if !session.CanAddOutput(c.deps.PhotoOutput) {
		fail(camera.ErrCannotAddOutput, "写真出力をセッションに追加できませんでした")
		return
	}
	if err := session.AddOutput(c.deps.PhotoOutput); err != nil {
		fail(err, "写真出力をセッションに追加できませんでした")
		return
	}

	if err := c.deps.Audio.SetCategory(ctx, audio.CategoryPlayback, audio.ModeMoviePlayback, 0); err != nil {
		c.logger.Warn().Err(err).Msg("音声セッションの設定に失敗しました")
	} else if err := c.deps.Audio.SetActive(ctx, true); err != nil {
		c.logger.Warn().Err(err).Msg("音声セッションの設定に失敗しました")
	}

	c.commit()
	c.logger.Info().
		Str("video", videoInput.Device().Path).
		Str("preset", string(c.opts.Preset)).
		Msg("セッションを構成しました")
}

func (c *Controller) addAudioInput() {
	ctx, cancel := c.opContext()
	defer cancel()

	device, err := c.deps.Discovery.DefaultDevice(ctx, camera.MediaAudio)
	if err != nil {
		c.logger.Warn().Err(err).Msg("音声デバイスが利用できません")
		return
	}
	input, err := camera.NewDeviceInput(ctx, c.deps.Discovery, *device)
	if err != nil {
		c.logger.Warn().Err(err).Msg("音声入力を作成できませんでした")
		return
	}
	if !c.deps.Session.CanAddInput(input) {
		c.logger.Warn().Str("device", device.Path).Msg("音声入力をセッションに追加できませんでした")
		return
	}
	if err := c.deps.Session.AddInput(input); err != nil {
		c.logger.Warn().Err(err).Msg("音声入力をセッションに追加できませんでした")
	}
}

func (c *Controller) commit() {
	if err := c.deps.Session.CommitConfiguration(); err != nil {
		c.logger.Error().Err(err).Msg("構成のコミットに失敗しました")
	}
	metrics.RecordSetupResult(c.setupResult.String())
}
