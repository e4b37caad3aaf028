// Package hotplug 映像デバイスノードの抜き差しを監視する
package hotplug

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"cameralink/internal/metrics"
)

// Handler はデバイスノードの追加（added=true）または削除を受け取る
type Handler func(path string, added bool)

// Watcher はディレクトリ内のデバイスノードの作成・削除を監視する
type Watcher struct {
	dir     string
	pattern string
	handler Handler
	logger  zerolog.Logger
}

// New は新しいWatcherを作成する
// pattern はファイル名に対する filepath.Match のパターン（例: video*）
func New(dir, pattern string, handler Handler, logger zerolog.Logger) *Watcher {
	return &Watcher{dir: dir, pattern: pattern, handler: handler, logger: logger}
}

// Run は ctx がキャンセルされるまで監視する
// 監視を開始できた時点で ready が閉じられる（nil可）
func (w *Watcher) Run(ctx context.Context, ready chan<- struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("ディレクトリ %s を監視できません: %w", w.dir, err)
	}
	if ready != nil {
		close(ready)
	}
	w.logger.Debug().Str("dir", w.dir).Str("pattern", w.pattern).Msg("デバイスの監視を開始しました")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher channel closed")
			}
			w.handle(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			w.logger.Warn().Err(err).Msg("fsnotify watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if ok, _ := filepath.Match(w.pattern, filepath.Base(event.Name)); !ok {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		metrics.RecordHotplug("added")
		w.handler(event.Name, true)
	case event.Has(fsnotify.Remove):
		metrics.RecordHotplug("removed")
		w.handler(event.Name, false)
	}
}
