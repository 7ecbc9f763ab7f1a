package server

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"beamview/internal/archive"
	"beamview/internal/camera"
	"beamview/internal/fleet"
	"beamview/internal/session"
)

// streamPollInterval はMJPEGストリームが表示面の更新を確認する間隔
const streamPollInterval = 20 * time.Millisecond

// streamJPEGQuality はMJPEGストリームのJPEG品質
const streamJPEGQuality = 85

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// handleStatus はステータス確認エンドポイント
func (s *Server) handleStatus(c *gin.Context) {
	sessions := s.coordinator.Sessions()
	running := 0
	for _, sess := range sessions {
		if sess.State() == session.StateRunning {
			running++
		}
	}

	resp := StatusResponse{
		Status: "running",
		Server: ServerInfo{
			Host: s.config.Server.Host,
			Port: s.config.Server.Port,
		},
		Backend:   s.config.Camera.Backend,
		Cameras:   len(sessions),
		Running:   running,
		Pacing:    s.coordinator.Pacing(),
		Timestamp: time.Now(),
	}
	if s.telemetry != nil {
		stats := s.telemetry.Stats()
		resp.Telemetry = &stats
	}
	c.JSON(http.StatusOK, resp)
}

// handleRoot はルートパスのハンドラ
func (s *Server) handleRoot(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, `<!DOCTYPE html>
<html lang="ja">
<head>
    <meta charset="UTF-8">
    <title>Beamview - ビーム観測コンソール</title>
</head>
<body>
    <h1>Beamview ビーム観測コンソール</h1>
    <p>サーバーが正常に起動しています。</p>
    <p>ステータス: <a href="/api/status">/api/status</a></p>
    <p>デバイス一覧: <a href="/api/devices">/api/devices</a></p>
    <p>カメラ一覧: <a href="/api/cameras">/api/cameras</a></p>
    <p>ヘルスチェック: <a href="/health">/health</a></p>
</body>
</html>`)
}

// handleDevices は列挙されたデバイスの一覧を返す
func (s *Server) handleDevices(c *gin.Context) {
	devices, err := s.coordinator.Devices(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, DevicesResponse{Devices: devices})
}

// handleListCameras は開いているカメラの一覧を返す
func (s *Server) handleListCameras(c *gin.Context) {
	sessions := s.coordinator.Sessions()
	infos := make([]session.Info, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.Info())
	}
	c.JSON(http.StatusOK, CamerasResponse{Cameras: infos})
}

// handleAddCamera はデバイスを開いてカメラを追加する
func (s *Server) handleAddCamera(c *gin.Context) {
	var req AddCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}

	sess, err := s.coordinator.AddCamera(c.Request.Context(), *req.Index)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess.Info())
}

// handleGetCamera はカメラの詳細を返す
func (s *Server) handleGetCamera(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Info())
}

// handleRemoveCamera はカメラを停止して解放する
func (s *Server) handleRemoveCamera(c *gin.Context) {
	if err := s.coordinator.RemoveCamera(c.Request.Context(), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleSetName はカメラの表示名を変更する
func (s *Server) handleSetName(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	var req NameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}
	sess.SetName(req.Name)
	c.JSON(http.StatusOK, sess.Info())
}

// handleStartCamera はカメラの取得を開始する
func (s *Server) handleStartCamera(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	if err := sess.Start(); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Info())
}

// handleStopCamera はカメラの取得を停止する
func (s *Server) handleStopCamera(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	if err := sess.Stop(); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Info())
}

// handleSetAcquisition はゲインと露光時間を変更する
//
// 応答はハードウェアから読み直した値で、要求値と異なる場合がある。
func (s *Server) handleSetAcquisition(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	var req AcquisitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}

	cam := sess.Camera()
	resp := AcquisitionResponse{Gain: cam.Gain(), Exposure: cam.Exposure()}
	if req.Gain != nil {
		resp.Gain = sess.SetGain(*req.Gain)
	}
	if req.Exposure != nil {
		resp.Exposure = sess.SetExposure(*req.Exposure)
	}
	c.JSON(http.StatusOK, resp)
}

// handleSetRegion はROIを変更する
func (s *Server) handleSetRegion(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	var req RegionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}

	region, err := sess.SetRegion(req.MinX, req.MinY, req.MaxX, req.MaxY)
	if err != nil {
		s.respondRegionError(c, region, err)
		return
	}
	c.JSON(http.StatusOK, region)
}

// handleResetRegion はROIをセンサー全体に戻す
func (s *Server) handleResetRegion(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	region, err := sess.ResetRegion()
	if err != nil {
		s.respondRegionError(c, region, err)
		return
	}
	c.JSON(http.StatusOK, region)
}

// handleGetProcessing は処理設定を返す
func (s *Server) handleGetProcessing(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Processing())
}

// handleSetProcessing は処理設定を変更する。指定しなかった項目は現在値のまま
func (s *Server) handleSetProcessing(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	p := sess.Processing()
	if err := c.ShouldBindJSON(&p); err != nil {
		s.respondBadRequest(c, err)
		return
	}
	if err := sess.SetProcessing(p); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Processing())
}

// handleRequestRange は表示レンジの変更を要求する
func (s *Server) handleRequestRange(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	var req RangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return
	}
	if err := sess.RequestRange(req.Mode, session.Levels{Min: req.Min, Max: req.Max}); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// handleAddCrosshair は十字線を追加する
func (s *Server) handleAddCrosshair(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	x, y, ok := s.bindPosition(c)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, sess.AddCrosshair(x, y))
}

// handleMoveCrosshair は十字線を移動する
func (s *Server) handleMoveCrosshair(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	id, ok := s.crosshairID(c)
	if !ok {
		return
	}
	x, y, ok := s.bindPosition(c)
	if !ok {
		return
	}

	moved, err := sess.MoveCrosshair(id, x, y)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, moved)
}

// handleRemoveCrosshair は十字線を削除する
func (s *Server) handleRemoveCrosshair(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	id, ok := s.crosshairID(c)
	if !ok {
		return
	}
	if err := sess.RemoveCrosshair(id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleSetCrosshairMode は十字線の操作モードを変更する
func (s *Server) handleSetCrosshairMode(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	var mode session.CrosshairMode
	if err := c.ShouldBindJSON(&mode); err != nil {
		s.respondBadRequest(c, err)
		return
	}
	sess.SetCrosshairMode(mode)
	c.JSON(http.StatusOK, mode)
}

// handleStats は最新の統計情報を返す
func (s *Server) handleStats(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Readout())
}

// handleImage は表示面をPNGで返す
func (s *Server) handleImage(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := sess.RenderPNG(&buf); err != nil {
		s.respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// handleStream は表示面をMJPEGストリームで配信する
func (s *Server) handleStream(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	s.streamMJPEG(c, sess)
}

// streamMJPEG はMJPEGストリームを配信する
//
// 表示面のシーケンス番号が進んだときだけフレームを書き出す。
func (s *Server) streamMJPEG(c *gin.Context, sess *session.Session) {
	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Status(http.StatusOK)

	// ストリームは WriteTimeout の対象外にする
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	var lastSeq uint64
	var buf bytes.Buffer

	// ストリーミングループ
	for {
		select {
		case <-clientGone:
			// クライアントが切断された
			return

		case <-ticker.C:
			_, _, seq := sess.Display()
			if seq == 0 || seq == lastSeq {
				continue
			}
			lastSeq = seq

			buf.Reset()
			if err := sess.RenderJPEG(&buf, streamJPEGQuality); err != nil {
				s.logger.Debug("JPEGエンコードに失敗しました", zap.String("session", sess.ID()), zap.Error(err))
				continue
			}

			// MJPEGフレームを送信
			if _, err := fmt.Fprintf(c.Writer, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", buf.Len()); err != nil {
				return
			}
			if _, err := c.Writer.Write(buf.Bytes()); err != nil {
				return
			}
			if _, err := c.Writer.Write([]byte("\r\n")); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

// handleStartAll は全カメラの取得を開始する
func (s *Server) handleStartAll(c *gin.Context) {
	if err := s.coordinator.StartAll(); err != nil {
		s.respondError(c, err)
		return
	}
	s.handleListCameras(c)
}

// handleStopAll は全カメラの取得を停止する
func (s *Server) handleStopAll(c *gin.Context) {
	if err := s.coordinator.StopAll(); err != nil {
		s.respondError(c, err)
		return
	}
	s.handleListCameras(c)
}

// handleGetPacing は現在のパケット送出スケジュールを返す
func (s *Server) handleGetPacing(c *gin.Context) {
	c.JSON(http.StatusOK, s.coordinator.Pacing())
}

// handleRecomputePacing はスケジュールを再計算して適用する
func (s *Server) handleRecomputePacing(c *gin.Context) {
	c.JSON(http.StatusOK, s.coordinator.RecomputePacing())
}

// handleGetArchiveSettings は保存設定を返す
func (s *Server) handleGetArchiveSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.coordinator.ArchiveSettings())
}

// handleSetArchiveSettings は保存設定を変更する。指定しなかった項目は現在値のまま
func (s *Server) handleSetArchiveSettings(c *gin.Context) {
	settings := s.coordinator.ArchiveSettings()
	if err := c.ShouldBindJSON(&settings); err != nil {
		s.respondBadRequest(c, err)
		return
	}
	if err := s.coordinator.SetArchiveParameters(settings); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.coordinator.ArchiveSettings())
}

// handleArchivePreview は現在の設定で生成されるファイル名の例を返す
func (s *Server) handleArchivePreview(c *gin.Context) {
	c.JSON(http.StatusOK, PreviewResponse{
		Filename: archive.Preview(s.coordinator.ArchiveSettings(), time.Now()),
	})
}

// handleSnapshot は全カメラの最新フレームを保存する
//
// 一部のカメラで失敗した場合も保存できたパスを返す。
func (s *Server) handleSnapshot(c *gin.Context) {
	paths, err := s.coordinator.ArchiveAll(time.Now())
	resp := SnapshotResponse{Paths: paths}
	status := http.StatusOK
	if err != nil {
		s.logger.Error("スナップショットの保存に失敗しました", zap.Error(err))
		resp.Errors = err.Error()
		status = http.StatusInternalServerError
		if len(paths) > 0 {
			status = http.StatusMultiStatus
		}
	}
	c.JSON(status, resp)
}

// handleArchiveFiles は保存済みファイルの一覧を返す
func (s *Server) handleArchiveFiles(c *gin.Context) {
	files, err := archive.List(s.coordinator.ArchiveSettings().Directory)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

// ヘルパー関数

// lookup はパスパラメータのカメラIDからセッションを取得する
func (s *Server) lookup(c *gin.Context) (*session.Session, bool) {
	sess, err := s.coordinator.Session(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return nil, false
	}
	return sess, true
}

// crosshairID はパスパラメータの十字線IDを取得する
func (s *Server) crosshairID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("cid"))
	if err != nil {
		s.respondBadRequest(c, fmt.Errorf("無効な十字線ID: %s", c.Param("cid")))
		return 0, false
	}
	return id, true
}

// bindPosition はリクエストボディから十字線の座標を取得する
func (s *Server) bindPosition(c *gin.Context) (float64, float64, bool) {
	var req CrosshairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, err)
		return 0, 0, false
	}
	if req.X == nil || req.Y == nil {
		s.respondBadRequest(c, errors.New("x と y を指定してください"))
		return 0, 0, false
	}
	return *req.X, *req.Y, true
}

// respondBadRequest はリクエスト不正のエラー応答を返す
func (s *Server) respondBadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error:     "invalid_request",
		Message:   err.Error(),
		Timestamp: time.Now(),
	})
}

// respondError はエラーの種類に応じたステータスでエラー応答を返す
func (s *Server) respondError(c *gin.Context, err error) {
	status, resp := s.errorResponse(c, err)
	c.AbortWithStatusJSON(status, resp)
}

// respondRegionError はROI変更の失敗を、読み直した領域と一緒に返す
func (s *Server) respondRegionError(c *gin.Context, region camera.Region, err error) {
	status, resp := s.errorResponse(c, err)
	c.AbortWithStatusJSON(status, RegionErrorResponse{ErrorResponse: resp, Region: region})
}

func (s *Server) errorResponse(c *gin.Context, err error) (int, ErrorResponse) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("リクエストの処理に失敗しました",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}
	return status, ErrorResponse{
		Error:     code,
		Message:   err.Error(),
		Timestamp: time.Now(),
	}
}

// classifyError はエラーをHTTPステータスとエラーコードに変換する
func classifyError(err error) (int, string) {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.Is(err, fleet.ErrCameraNotFound):
		return http.StatusNotFound, "camera_not_found"
	case errors.Is(err, camera.ErrDeviceNotFound):
		return http.StatusNotFound, "device_not_found"
	case errors.Is(err, session.ErrCrosshairNotFound):
		return http.StatusNotFound, "crosshair_not_found"
	case errors.Is(err, session.ErrNoFrame):
		return http.StatusServiceUnavailable, "no_frame"
	case errors.Is(err, camera.ErrDeviceBusy):
		return http.StatusConflict, "device_busy"
	case errors.Is(err, fleet.ErrAlreadyOpen):
		return http.StatusConflict, "already_open"
	case errors.Is(err, session.ErrNotMovable):
		return http.StatusConflict, "not_movable"
	case errors.Is(err, camera.ErrGrabbing):
		return http.StatusConflict, "grabbing"
	case errors.Is(err, camera.ErrReleased):
		return http.StatusGone, "released"
	case errors.Is(err, camera.ErrOutOfRange):
		return http.StatusUnprocessableEntity, "out_of_range"
	case errors.Is(err, session.ErrInvalidRange),
		errors.Is(err, session.ErrInvalidProcessing),
		errors.As(err, &validationErrs):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
