// Package photo 静止画の撮影から保存までを行う
package photo

import (
	"context"

	"github.com/rs/zerolog"

	"cameralink/internal/camera"
	"cameralink/internal/imaging"
	"cameralink/internal/library"
	"cameralink/internal/metrics"
)

// Capturer は一回の撮影を非同期に行う
type Capturer interface {
	CapturePhoto(settings camera.PhotoSettings) <-chan camera.PhotoResult
}

// Writer はライブラリへの変更を非同期に適用する
type Writer interface {
	PerformChanges(ctx context.Context, changes func(*library.ChangeRequest), completion func(success bool, err error))
}

// Pipeline は撮影・回転・保存を行う
// 失敗はログに残すのみで、再試行やユーザーへの通知はしない
type Pipeline struct {
	capturer Capturer
	writer   Writer
	settings camera.PhotoSettings
	logger   zerolog.Logger
}

// NewPipeline は新しいPipelineを作成する
func NewPipeline(capturer Capturer, writer Writer, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		capturer: capturer,
		writer:   writer,
		settings: camera.DefaultPhotoSettings(),
		logger:   logger,
	}
}

// Capture は一回の撮影を開始する
// 返されたチャンネルは保存処理（成功・失敗とも）の完了時に閉じられる
func (p *Pipeline) Capture(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	results := p.capturer.CapturePhoto(p.settings)

	go func() {
		var result camera.PhotoResult
		select {
		case r, ok := <-results:
			if !ok {
				p.logger.Error().Msg("撮影結果が届きませんでした")
				metrics.RecordPhotoCapture("capture_failed")
				close(done)
				return
			}
			result = r
		case <-ctx.Done():
			p.logger.Warn().Err(ctx.Err()).Msg("撮影を中断しました")
			close(done)
			return
		}
		p.process(ctx, result, done)
	}()
	return done
}

func (p *Pipeline) process(ctx context.Context, result camera.PhotoResult, done chan struct{}) {
	if result.Err != nil {
		p.logger.Error().Err(result.Err).Msg("撮影に失敗しました")
		metrics.RecordPhotoCapture("capture_failed")
		close(done)
		return
	}

	rotated, err := imaging.RotateJPEG(result.Data)
	if err != nil {
		p.logger.Error().Err(err).Msg("撮影画像の変換に失敗しました")
		metrics.RecordPhotoCapture("encode_failed")
		close(done)
		return
	}

	p.writer.PerformChanges(ctx, func(r *library.ChangeRequest) {
		r.CreationRequestForAsset().AddResource(library.ResourceTypePhoto, rotated)
	}, func(success bool, err error) {
		defer close(done)
		if !success || err != nil {
			p.logger.Error().Err(err).Msg("写真の保存に失敗しました")
			metrics.RecordPhotoCapture("save_failed")
			return
		}
		p.logger.Info().Int("bytes", len(rotated)).Msg("写真を保存しました")
		metrics.RecordPhotoCapture("saved")
	})
}
