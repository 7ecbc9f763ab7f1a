package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"beamview/internal/archive"
	"beamview/internal/camera"
	"beamview/internal/config"
	"beamview/internal/fleet"
	"beamview/internal/session"
)

// newTestConfig は小さなエミュレートカメラ向けのテスト設定を作成する
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0 // ランダムポートを使用
	cfg.Camera.Backend = camera.BackendEmulated
	cfg.Camera.EmulatedCount = 3
	cfg.Camera.RedrawPeriod = 10 * time.Millisecond
	cfg.Archive.Directory = t.TempDir()
	return cfg
}

// newTestServer はエミュレートカメラ3台を持つServerを作成し、再描画を開始する
func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := newTestConfig(t)
	emu := camera.DefaultEmulatorConfig(cfg.Camera.EmulatedCount)
	emu.MaxWidth = 64
	emu.MaxHeight = 48
	emu.FramePeriod = 10 * time.Millisecond

	srv := New(cfg, camera.NewEmulatedDiscovery(emu), nil, zaptest.NewLogger(t))
	if err := srv.Coordinator().Start(context.Background()); err != nil {
		t.Fatalf("Failed to start coordinator: %v", err)
	}
	t.Cleanup(func() {
		if err := srv.Shutdown(); err != nil {
			t.Errorf("Shutdown failed: %v", err)
		}
	})
	return srv
}

// doRequest はハンドラーに直接リクエストを送る
func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode %q: %v", rec.Body.String(), err)
	}
	return v
}

// addCamera は index 番目のデバイスを追加してセッション情報を返す
func addCamera(t *testing.T, srv *Server, index int) session.Info {
	t.Helper()
	rec := doRequest(t, srv, http.MethodPost, "/api/cameras", map[string]int{"index": index})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decode[session.Info](t, rec)
}

// waitForFrame は表示面が1回以上更新されるまで待つ
func waitForFrame(t *testing.T, srv *Server, id string) {
	t.Helper()
	sess, err := srv.Coordinator().Session(id)
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, _, seq := sess.Display(); seq > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("表示面が更新されませんでした")
}

func TestHealthAndStatus(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	health := decode[HealthResponse](t, rec)
	if health.Status != "healthy" {
		t.Errorf("Expected healthy, got %s", health.Status)
	}

	addCamera(t, srv, 0)

	rec = doRequest(t, srv, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	status := decode[StatusResponse](t, rec)
	if status.Cameras != 1 || status.Running != 1 {
		t.Errorf("Expected 1 running camera, got %+v", status)
	}
	if status.Backend != camera.BackendEmulated {
		t.Errorf("Expected emulated backend, got %s", status.Backend)
	}
	if status.Telemetry != nil {
		t.Error("Expected no telemetry stats when telemetry is disabled")
	}

	rec = doRequest(t, srv, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Beamview") {
		t.Errorf("Unexpected root page: %d", rec.Code)
	}
}

func TestCameraLifecycle(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/devices", nil)
	devices := decode[DevicesResponse](t, rec)
	if len(devices.Devices) != 3 {
		t.Fatalf("Expected 3 devices, got %d", len(devices.Devices))
	}

	info := addCamera(t, srv, 0)
	if info.Name != "Camera 0" {
		t.Errorf("Expected default name, got %q", info.Name)
	}

	testCases := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"同じデバイスを二重に開く", map[string]int{"index": 0}, http.StatusConflict, "already_open"},
		{"存在しないデバイス", map[string]int{"index": 99}, http.StatusNotFound, "device_not_found"},
		{"index 未指定", map[string]string{}, http.StatusBadRequest, "invalid_request"},
		{"負の index", map[string]int{"index": -1}, http.StatusBadRequest, "invalid_request"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/api/cameras", tc.body)
			if rec.Code != tc.wantStatus {
				t.Fatalf("Expected %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if got := decode[ErrorResponse](t, rec); got.Error != tc.wantCode {
				t.Errorf("Expected error code %s, got %s", tc.wantCode, got.Error)
			}
		})
	}

	rec = doRequest(t, srv, http.MethodPut, "/api/cameras/"+info.ID+"/name", map[string]string{"name": "Screen 1"})
	if got := decode[session.Info](t, rec); got.Name != "Screen 1" {
		t.Errorf("Expected renamed camera, got %q", got.Name)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/cameras/"+info.ID+"/stop", nil)
	if got := decode[session.Info](t, rec); got.State != session.StateStopped {
		t.Errorf("Expected stopped, got %s", got.State)
	}
	rec = doRequest(t, srv, http.MethodPost, "/api/cameras/"+info.ID+"/start", nil)
	if got := decode[session.Info](t, rec); got.State != session.StateRunning {
		t.Errorf("Expected running, got %s", got.State)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/cameras", nil)
	if got := decode[CamerasResponse](t, rec); len(got.Cameras) != 1 {
		t.Errorf("Expected 1 camera, got %d", len(got.Cameras))
	}

	rec = doRequest(t, srv, http.MethodDelete, "/api/cameras/"+info.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodDelete, "/api/cameras/"+info.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for removed camera, got %d", rec.Code)
	}

	// 解放後は同じデバイスを開き直せる
	addCamera(t, srv, 0)
}

func TestFleetPacing(t *testing.T) {
	srv := newTestServer(t)
	addCamera(t, srv, 0)
	addCamera(t, srv, 1)

	rec := doRequest(t, srv, http.MethodGet, "/api/fleet/pacing", nil)
	pacing := decode[fleet.Pacing](t, rec)
	if len(pacing.Assignments) != 2 {
		t.Fatalf("Expected 2 assignments, got %d", len(pacing.Assignments))
	}
	if pacing.Assignments[0].TransmissionDelay != 0 {
		t.Errorf("Expected first camera to have no delay, got %d", pacing.Assignments[0].TransmissionDelay)
	}
	step := 1200 + fleet.DefaultHeaderOverhead
	if pacing.Assignments[1].TransmissionDelay != step {
		t.Errorf("Expected second delay %d, got %d", step, pacing.Assignments[1].TransmissionDelay)
	}
	if pacing.InterPacketDelay != 2*step {
		t.Errorf("Expected inter-packet delay %d, got %d", 2*step, pacing.InterPacketDelay)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/fleet/stop", nil)
	for _, info := range decode[CamerasResponse](t, rec).Cameras {
		if info.State != session.StateStopped {
			t.Errorf("Expected %s to be stopped", info.ID)
		}
	}
	rec = doRequest(t, srv, http.MethodPost, "/api/fleet/start", nil)
	for _, info := range decode[CamerasResponse](t, rec).Cameras {
		if info.State != session.StateRunning {
			t.Errorf("Expected %s to be running", info.ID)
		}
	}
}

func TestCameraControls(t *testing.T) {
	srv := newTestServer(t)
	info := addCamera(t, srv, 0)
	base := "/api/cameras/" + info.ID

	rec := doRequest(t, srv, http.MethodPut, base+"/acquisition", map[string]any{"gain": 10, "exposure": 5.0})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	acq := decode[AcquisitionResponse](t, rec)
	if acq.Gain != 10 || acq.Exposure != 5 {
		t.Errorf("Unexpected acquisition: %+v", acq)
	}

	// 範囲外の値は拒否され、現在値が返る
	rec = doRequest(t, srv, http.MethodPut, base+"/acquisition", map[string]any{"gain": 100000})
	if acq := decode[AcquisitionResponse](t, rec); acq.Gain != 10 {
		t.Errorf("Expected gain to stay 10, got %d", acq.Gain)
	}

	rec = doRequest(t, srv, http.MethodPut, base+"/region", RegionRequest{MinX: 10, MinY: 8, MaxX: 42, MaxY: 40})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	region := decode[camera.Region](t, rec)
	want := camera.Region{OffsetX: 10, OffsetY: 8, Width: 32, Height: 32}
	if region != want {
		t.Errorf("Expected %+v, got %+v", want, region)
	}

	// センサー外の要求は丸められる
	rec = doRequest(t, srv, http.MethodPut, base+"/region", RegionRequest{MinX: -5, MinY: 0, MaxX: 1000, MaxY: 2})
	region = decode[camera.Region](t, rec)
	want = camera.Region{OffsetX: 0, OffsetY: 0, Width: 64, Height: camera.MinDimension}
	if region != want {
		t.Errorf("Expected %+v, got %+v", want, region)
	}

	rec = doRequest(t, srv, http.MethodPost, base+"/region/reset", nil)
	region = decode[camera.Region](t, rec)
	if region.Width != 64 || region.Height != 48 {
		t.Errorf("Expected full sensor, got %+v", region)
	}

	rec = doRequest(t, srv, http.MethodGet, base, nil)
	if got := decode[session.Info](t, rec); got.State != session.StateRunning {
		t.Errorf("Expected camera to keep running after region change, got %s", got.State)
	}

	rec = doRequest(t, srv, http.MethodPut, base+"/processing", map[string]any{"threshold": true, "threshold_percent": 25})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	p := decode[session.Processing](t, rec)
	if !p.Threshold || p.ThresholdPercent != 25 || !p.CalculateStats {
		t.Errorf("Unexpected processing: %+v", p)
	}

	testCases := []struct {
		name string
		path string
		body any
	}{
		{"しきい値が100%を超える", base + "/processing", map[string]any{"threshold_percent": 150}},
		{"校正値が0", base + "/processing", map[string]any{"calibration": true, "calibration_scale": 0}},
		{"手動レンジの上下が逆", base + "/range", map[string]any{"mode": "manual", "min": 10, "max": 5}},
		{"不明なレンジモード", base + "/range", map[string]any{"mode": "log"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			method := http.MethodPut
			if strings.HasSuffix(tc.path, "/range") {
				method = http.MethodPost
			}
			rec := doRequest(t, srv, method, tc.path, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}

	rec = doRequest(t, srv, http.MethodPost, base+"/range", map[string]any{"mode": "manual", "min": 0, "max": 100})
	if rec.Code != http.StatusAccepted {
		t.Errorf("Expected 202, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/cameras/unknown/processing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown camera, got %d", rec.Code)
	}
}

// widthRejectingCamera は幅の変更をハードウェアが拒否するカメラ
type widthRejectingCamera struct {
	camera.Camera
}

func (c *widthRejectingCamera) SetWidth(int) error {
	return camera.ErrOutOfRange
}

// widthRejectingDiscovery は開いたカメラを widthRejectingCamera で包む
type widthRejectingDiscovery struct {
	camera.Discovery
}

func (d *widthRejectingDiscovery) Open(ctx context.Context, serial string, opts camera.OpenOptions) (camera.Camera, error) {
	cam, err := d.Discovery.Open(ctx, serial, opts)
	if err != nil {
		return nil, err
	}
	return &widthRejectingCamera{Camera: cam}, nil
}

func TestSetRegion_ErrorIncludesReadBackRegion(t *testing.T) {
	cfg := newTestConfig(t)
	emu := camera.DefaultEmulatorConfig(1)
	emu.MaxWidth = 64
	emu.MaxHeight = 48
	emu.FramePeriod = 10 * time.Millisecond

	discovery := &widthRejectingDiscovery{Discovery: camera.NewEmulatedDiscovery(emu)}
	srv := New(cfg, discovery, nil, zaptest.NewLogger(t))
	t.Cleanup(func() {
		if err := srv.Shutdown(); err != nil {
			t.Errorf("Shutdown failed: %v", err)
		}
	})
	info := addCamera(t, srv, 0)

	rec := doRequest(t, srv, http.MethodPut, "/api/cameras/"+info.ID+"/region", RegionRequest{MinX: 10, MinY: 8, MaxX: 42, MaxY: 40})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[RegionErrorResponse](t, rec)
	if resp.Error != "out_of_range" {
		t.Errorf("Expected out_of_range, got %s", resp.Error)
	}

	// X軸は幅の書き込みで止まり、Y軸は反映される
	want := camera.Region{OffsetX: 0, OffsetY: 8, Width: 64, Height: 32}
	if resp.Region != want {
		t.Errorf("Expected read-back region %+v, got %+v", want, resp.Region)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/cameras/"+info.ID, nil)
	if got := decode[session.Info](t, rec); got.Region != want {
		t.Errorf("Expected session region %+v, got %+v", want, got.Region)
	}
}

func TestCrosshairs(t *testing.T) {
	srv := newTestServer(t)
	info := addCamera(t, srv, 0)
	base := "/api/cameras/" + info.ID

	rec := doRequest(t, srv, http.MethodPost, base+"/crosshairs", map[string]float64{"x": 10, "y": 20})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	cross := decode[session.Crosshair](t, rec)
	path := fmt.Sprintf("%s/crosshairs/%d", base, cross.ID)

	// 移動モードが無効な間は動かせない
	rec = doRequest(t, srv, http.MethodPut, path, map[string]float64{"x": 1, "y": 2})
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPut, base+"/crosshair-mode", session.CrosshairMode{Movable: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodPut, path, map[string]float64{"x": 1, "y": 2})
	if got := decode[session.Crosshair](t, rec); got.X != 1 || got.Y != 2 {
		t.Errorf("Unexpected crosshair: %+v", got)
	}

	rec = doRequest(t, srv, http.MethodPost, base+"/crosshairs", map[string]float64{"x": 1})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without y, got %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodDelete, base+"/crosshairs/abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid id, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodDelete, path, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}
	rec = doRequest(t, srv, http.MethodDelete, path, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestImageStatsAndArchive(t *testing.T) {
	srv := newTestServer(t)
	info := addCamera(t, srv, 0)
	waitForFrame(t, srv, info.ID)
	base := "/api/cameras/" + info.ID

	rec := doRequest(t, srv, http.MethodGet, base+"/image", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("Failed to decode PNG: %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 48 {
		t.Errorf("Unexpected image size: %v", img.Bounds())
	}

	rec = doRequest(t, srv, http.MethodGet, base+"/stats", nil)
	readout := decode[session.Readout](t, rec)
	if readout.Serial != info.Serial || readout.Units != "px" {
		t.Errorf("Unexpected readout: %+v", readout)
	}

	rec = doRequest(t, srv, http.MethodPut, "/api/archive/settings", map[string]any{
		"archive_prefix":      "beam",
		"archive_shot_number": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	settings := decode[archive.Settings](t, rec)
	if settings.Prefix != "beam" || settings.Format != archive.FormatTIFF {
		t.Errorf("Expected partial update to keep other fields, got %+v", settings)
	}

	rec = doRequest(t, srv, http.MethodPut, "/api/archive/settings", map[string]any{"archive_format": "bmp"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown format, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/archive/preview", nil)
	if got := decode[PreviewResponse](t, rec); !strings.HasPrefix(got.Filename, "beam_") {
		t.Errorf("Unexpected preview: %s", got.Filename)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/archive/snapshot", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	snap := decode[SnapshotResponse](t, rec)
	if len(snap.Paths) != 1 {
		t.Fatalf("Expected 1 saved file, got %v", snap.Paths)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/archive/files", nil)
	files := decode[struct {
		Files []archive.File `json:"files"`
	}](t, rec)
	if len(files.Files) != 1 || files.Files[0].FilePath != snap.Paths[0] {
		t.Errorf("Expected listed file %s, got %+v", snap.Paths[0], files.Files)
	}
}

func TestStreamMJPEG(t *testing.T) {
	srv := newTestServer(t)
	info := addCamera(t, srv, 0)
	waitForFrame(t, srv, info.ID)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/cameras/"+info.ID+"/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "multipart/x-mixed-replace; boundary=frame" {
		t.Errorf("Unexpected Content-Type: %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	boundary, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("Failed to read boundary: %v", err)
	}
	if boundary != "--frame\r\n" {
		t.Errorf("Unexpected boundary line: %q", boundary)
	}
	partType, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("Failed to read part header: %v", err)
	}
	if partType != "Content-Type: image/jpeg\r\n" {
		t.Errorf("Unexpected part header: %q", partType)
	}

	// クライアント切断でストリームが終了する
	cancel()
}

func TestServerStartAndShutdown(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Camera.OpenOnStartup = []int{0, 1, 7}

	srv, err := Bootstrap(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	// 存在しない index 7 は飛ばされる
	deadline := time.Now().Add(2 * time.Second)
	for len(srv.Coordinator().Sessions()) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := len(srv.Coordinator().Sessions()); got != 2 {
		t.Errorf("Expected 2 cameras opened on startup, got %d", got)
	}

	// コンテキストをキャンセルしてサーバーを停止
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("サーバーの起動/停止でエラーが発生しました: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("サーバーの停止がタイムアウトしました")
	}

	if got := len(srv.Coordinator().Sessions()); got != 0 {
		t.Errorf("Expected all cameras released on shutdown, got %d", got)
	}
}

func TestBootstrap_UnknownBackend(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Camera.Backend = camera.BackendGigE

	_, err := Bootstrap(context.Background(), cfg, zaptest.NewLogger(t))
	if !errors.Is(err, camera.ErrBackendNotRegistered) {
		t.Fatalf("Expected ErrBackendNotRegistered, got %v", err)
	}
	if !strings.Contains(err.Error(), "-debug") {
		t.Errorf("Expected a hint to use -debug, got %v", err)
	}
}

func TestClassifyError(t *testing.T) {
	testCases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"カメラなし", fmt.Errorf("wrap: %w", fleet.ErrCameraNotFound), http.StatusNotFound},
		{"使用中", fmt.Errorf("wrap: %w", camera.ErrDeviceBusy), http.StatusConflict},
		{"二重オープン", fleet.ErrAlreadyOpen, http.StatusConflict},
		{"範囲外", camera.ErrOutOfRange, http.StatusUnprocessableEntity},
		{"フレームなし", session.ErrNoFrame, http.StatusServiceUnavailable},
		{"複数エラー", errors.Join(errors.New("x"), camera.ErrGrabbing), http.StatusConflict},
		{"不明なエラー", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got, _ := classifyError(tc.err); got != tc.wantStatus {
				t.Errorf("Expected %d, got %d", tc.wantStatus, got)
			}
		})
	}
}
