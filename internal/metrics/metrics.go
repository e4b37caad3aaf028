// Package metrics キャプチャセッションのPrometheusメトリクス
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SetupResultTotal は構成結果ごとの件数
	SetupResultTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cameralink_setup_result_total",
		Help: "Total number of session configurations, by setup result.",
	}, []string{"result"})

	// SessionRunning はセッションが動作中なら1
	SessionRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cameralink_session_running",
		Help: "1 if the capture session is running.",
	})

	// SessionOpsTotal はセッション操作（start/stop/refresh）の件数
	SessionOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cameralink_session_ops_total",
		Help: "Total number of session operations, by operation and outcome.",
	}, []string{"op", "outcome"})

	// PhotoCaptureTotal は撮影の件数
	PhotoCaptureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cameralink_photo_capture_total",
		Help: "Total number of photo captures, by outcome (saved/capture_failed/encode_failed/save_failed).",
	}, []string{"outcome"})

	// AlertsPresentedTotal は表示したアラートの件数
	AlertsPresentedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cameralink_alerts_presented_total",
		Help: "Total number of alerts presented, by kind.",
	}, []string{"kind"})

	// HotplugEventsTotal はデバイスの抜き差しイベントの件数
	HotplugEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cameralink_hotplug_events_total",
		Help: "Total number of video device hotplug events, by op.",
	}, []string{"op"})
)

// RecordSetupResult は構成結果を記録する
func RecordSetupResult(result string) {
	SetupResultTotal.WithLabelValues(result).Inc()
}

// SetSessionRunning はセッションの動作状態を記録する
func SetSessionRunning(running bool) {
	if running {
		SessionRunning.Set(1)
		return
	}
	SessionRunning.Set(0)
}

// RecordSessionOp はセッション操作の結果を記録する
func RecordSessionOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	SessionOpsTotal.WithLabelValues(op, outcome).Inc()
}

// RecordPhotoCapture は撮影の結果を記録する
func RecordPhotoCapture(outcome string) {
	PhotoCaptureTotal.WithLabelValues(outcome).Inc()
}

// RecordAlert はアラートの表示を記録する
func RecordAlert(kind string) {
	AlertsPresentedTotal.WithLabelValues(kind).Inc()
}

// RecordHotplug はデバイスの抜き差しを記録する
func RecordHotplug(op string) {
	HotplugEventsTotal.WithLabelValues(op).Inc()
}
