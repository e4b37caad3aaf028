package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"cameralink/internal/camera"
	"cameralink/internal/library"
	"cameralink/internal/presenter"
)

// ErrorResponse はエラー時のレスポンス
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertResponse は表示中のアラートのレスポンス
type AlertResponse struct {
	Alert presenter.Alert `json:"alert"`
	Hint  string          `json:"hint,omitempty"`
}

// OrientationRequest はウィンドウの向きの報告
type OrientationRequest struct {
	Orientation string `json:"orientation" binding:"required"`
}

type handler struct {
	deps   Dependencies
	logger zerolog.Logger
}

func errorJSON(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// GetStatus はセッション状態取得エンドポイントの実装
func (h *handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Controller.Status())
}

// PostRefresh は映像の再接続を受け付ける
func (h *handler) PostRefresh(c *gin.Context) {
	h.deps.Controller.Refresh()
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// PostRecord は録画を受け付ける（未実装のお知らせを表示する）
func (h *handler) PostRecord(c *gin.Context) {
	h.deps.Controller.Record()
	c.JSON(http.StatusAccepted, gin.H{
		"status": "accepted",
		"notice": presenter.RecordingNotice().Title,
	})
}

// PostPhoto は撮影を受け付ける
// 保存はリクエストとは独立して行われ、失敗しても利用者には通知しない
func (h *handler) PostPhoto(c *gin.Context) {
	h.deps.Controller.CapturePhoto(context.Background())
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// PostReconfigure はデバイスの再検出とセッションの再構成を受け付ける
func (h *handler) PostReconfigure(c *gin.Context) {
	h.deps.Controller.Reconfigure()
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// GetAlert は表示中のアラートを返す
func (h *handler) GetAlert(c *gin.Context) {
	alert, ok := h.deps.Alerts.Current()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, AlertResponse{Alert: alert, Hint: h.deps.Alerts.Hint()})
}

// PostAlertAction はアラートのアクションを選択する
func (h *handler) PostAlertAction(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_index", "アクションの番号が不正です")
		return
	}

	err = h.deps.Alerts.Acknowledge(c.Param("id"), index)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, presenter.ErrNoAlert):
		errorJSON(c, http.StatusNotFound, "alert_not_found", "指定されたアラートは表示されていません")
	case errors.Is(err, presenter.ErrUnknownAction):
		errorJSON(c, http.StatusBadRequest, "action_not_found", "指定されたアクションが見つかりません")
	default:
		errorJSON(c, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// PutOrientation は表示クライアントのウィンドウの向きを受け取る
func (h *handler) PutOrientation(c *gin.Context) {
	var req OrientationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	o, err := camera.ParseInterfaceOrientation(req.Orientation)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_orientation", err.Error())
		return
	}
	h.deps.Controller.SetWindowOrientation(o)
	c.Status(http.StatusNoContent)
}

// GetPhotos は保存された写真の一覧を返す
func (h *handler) GetPhotos(c *gin.Context) {
	assets, err := h.deps.Library.Assets(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("写真一覧の取得に失敗しました")
		errorJSON(c, http.StatusInternalServerError, "library_error", "写真一覧を取得できません")
		return
	}
	if assets == nil {
		assets = []library.Asset{}
	}
	c.JSON(http.StatusOK, gin.H{"photos": assets})
}

// GetPhoto は保存された写真を返す
func (h *handler) GetPhoto(c *gin.Context) {
	path, err := h.deps.Library.AssetPath(c.Request.Context(), c.Param("id"))
	if errors.Is(err, library.ErrAssetNotFound) {
		errorJSON(c, http.StatusNotFound, "photo_not_found", "指定された写真が見つかりません")
		return
	}
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "library_error", err.Error())
		return
	}
	c.Header("Content-Type", "image/jpeg")
	c.File(path)
}

// GetPreview はMJPEGストリーミングエンドポイントの実装
func (h *handler) GetPreview(c *gin.Context) {
	if !h.deps.Controller.Status().Running {
		errorJSON(c, http.StatusServiceUnavailable, "session_not_running", "キャプチャセッションが動作していません")
		return
	}
	h.streamMJPEG(c)
}

// streamMJPEG はMJPEGストリームを配信する
func (h *handler) streamMJPEG(c *gin.Context) {
	orientation := h.deps.Preview.VideoOrientation()

	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("X-Video-Orientation", orientation.String())
	c.Header("X-Video-Rotation", strconv.Itoa(orientation.Degrees()))

	// レスポンスライターを取得
	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	// フレームを購読
	frames, unsubscribe := h.deps.Preview.Frames()
	defer unsubscribe()

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()

	c.Status(http.StatusOK)
	flusher.Flush()

	// ストリーミングループ
	for {
		select {
		case <-clientGone:
			// クライアントが切断された
			return

		case frame, ok := <-frames:
			if !ok {
				return
			}

			// MJPEGフレームを書き込み
			if _, err := fmt.Fprintf(writer, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame)); err != nil {
				return
			}
			if _, err := writer.Write(frame); err != nil {
				return
			}
			if _, err := writer.Write([]byte("\r\n")); err != nil {
				return
			}

			// バッファをフラッシュ
			flusher.Flush()
		}
	}
}
