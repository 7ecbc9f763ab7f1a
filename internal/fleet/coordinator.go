package fleet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"beamview/internal/archive"
	"beamview/internal/camera"
	"beamview/internal/session"
)

// エラー定義
var (
	ErrCameraNotFound = errors.New("カメラが見つかりません")
	ErrAlreadyOpen    = errors.New("デバイスは既に開かれています")
)

// Config はコーディネーターの設定
type Config struct {
	Trigger      camera.TriggerMode
	PacketSize   int
	Binning      int
	RedrawPeriod time.Duration
	AutoStart    bool
	Pacing       PacingConfig
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Trigger:      camera.TriggerFreerun,
		PacketSize:   1200,
		Binning:      1,
		RedrawPeriod: 50 * time.Millisecond,
		AutoStart:    true,
		Pacing:       DefaultPacingConfig(),
	}
}

// DeviceStatus は列挙されたデバイスとその使用状況
type DeviceStatus struct {
	Index     int    `json:"index"`
	Serial    string `json:"serial_number"`
	Name      string `json:"name"`
	Model     string `json:"model"`
	Open      bool   `json:"open"`
	SessionID string `json:"session_id,omitempty"`
}

// Coordinator は開いているセッション全体を管理する
type Coordinator struct {
	discovery camera.Discovery
	config    Config
	policy    *archive.Policy
	publisher session.StatsPublisher
	logger    *zap.Logger

	sessions map[string]*session.Session
	order    []string // 追加順のセッションID
	pacing   Pacing
	mu       sync.RWMutex

	// 再描画スケジューラー
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewCoordinator は新しいCoordinatorを作成する
func NewCoordinator(discovery camera.Discovery, config Config, policy *archive.Policy, publisher session.StatsPublisher, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RedrawPeriod <= 0 {
		config.RedrawPeriod = DefaultConfig().RedrawPeriod
	}
	if config.Trigger == "" {
		config.Trigger = camera.TriggerFreerun
	}
	if policy == nil {
		policy = archive.NewPolicy(archive.DefaultSettings())
	}

	return &Coordinator{
		discovery: discovery,
		config:    config,
		policy:    policy,
		publisher: publisher,
		logger:    logger,
		sessions:  make(map[string]*session.Session),
	}
}

// Start は共有再描画スケジューラーを開始する
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	c.running = true
	c.stopCh = make(chan struct{})

	c.wg.Add(1)
	go c.redrawLoop(ctx, c.stopCh)

	c.logger.Info("再描画スケジューラーを開始しました", zap.Duration("period", c.config.RedrawPeriod))
	return nil
}

// Stop はスケジューラーを停止し、全カメラを解放する
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		close(c.stopCh)
		c.running = false
	}
	c.mu.Unlock()

	// スケジューラーの終了を待機
	c.wg.Wait()

	var stopErrors []error
	for _, s := range c.Sessions() {
		if err := c.RemoveCamera(ctx, s.ID()); err != nil {
			stopErrors = append(stopErrors, err)
		}
	}
	if len(stopErrors) > 0 {
		return fmt.Errorf("一部のカメラ解放に失敗: %w", errors.Join(stopErrors...))
	}
	return nil
}

// redrawLoop は全セッションの再描画ティックを駆動する
func (c *Coordinator) redrawLoop(ctx context.Context, stopCh chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.RedrawPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.RedrawAll(now)
		}
	}
}

// RedrawAll は全セッションの再描画ティックを1回ずつ実行し、描画した数を返す
func (c *Coordinator) RedrawAll(now time.Time) int {
	drawn := 0
	for _, s := range c.Sessions() {
		if s.RedrawTick(now) {
			drawn++
		}
	}
	return drawn
}

// Devices は列挙されたデバイスとその使用状況を返す
func (c *Coordinator) Devices(ctx context.Context) ([]DeviceStatus, error) {
	devices, err := c.discovery.ScanDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("デバイスの列挙に失敗: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	open := make(map[string]string, len(c.sessions))
	for id, s := range c.sessions {
		open[s.Camera().SerialNumber()] = id
	}

	result := make([]DeviceStatus, 0, len(devices))
	for i, d := range devices {
		id, isOpen := open[d.SerialNumber]
		result = append(result, DeviceStatus{
			Index:     i,
			Serial:    d.SerialNumber,
			Name:      d.Name,
			Model:     d.Model,
			Open:      isOpen,
			SessionID: id,
		})
	}
	return result, nil
}

// AddCamera は index 番目のデバイスを開いてセッションを作成する
//
// デバイスが使用中の場合はエラーを返し、状態は変更しない。
func (c *Coordinator) AddCamera(ctx context.Context, index int) (*session.Session, error) {
	devices, err := c.discovery.ScanDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("デバイスの列挙に失敗: %w", err)
	}
	if index < 0 || index >= len(devices) {
		return nil, fmt.Errorf("%w: index=%d (%d台)", camera.ErrDeviceNotFound, index, len(devices))
	}
	device := devices[index]

	c.mu.Lock()
	for _, s := range c.sessions {
		if s.Camera().SerialNumber() == device.SerialNumber {
			c.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrAlreadyOpen, device.SerialNumber)
		}
	}

	cam, err := c.discovery.Open(ctx, device.SerialNumber, camera.OpenOptions{
		Trigger:    c.config.Trigger,
		PacketSize: c.config.PacketSize,
		Binning:    c.config.Binning,
	})
	if err != nil {
		c.mu.Unlock()
		if errors.Is(err, camera.ErrDeviceBusy) {
			c.logger.Warn("デバイスは他のプロセスで使用中です", zap.String("serial", device.SerialNumber))
		}
		return nil, fmt.Errorf("カメラ %s のオープンに失敗: %w", device.SerialNumber, err)
	}

	if cam.Name() == "" {
		cam.SetName(fmt.Sprintf("Camera %d", index))
	}

	s := session.New(cam, session.Options{
		Logger:        c.logger.With(zap.String("camera", cam.Name())),
		Policy:        c.policy,
		Publisher:     c.publisher,
		OnStateChange: c.onStateChange,
	})
	c.sessions[s.ID()] = s
	c.order = append(c.order, s.ID())
	c.recomputePacingLocked()
	c.mu.Unlock()

	c.logger.Info("カメラを追加しました",
		zap.String("session", s.ID()),
		zap.String("serial", cam.SerialNumber()),
		zap.String("name", cam.Name()),
		zap.String("model", cam.Model()),
	)

	if c.config.AutoStart {
		if err := s.Start(); err != nil {
			c.logger.Error("カメラの自動開始に失敗しました", zap.String("session", s.ID()), zap.Error(err))
		}
	}
	return s, nil
}

// RemoveCamera はセッションを停止してカメラを解放する
func (c *Coordinator) RemoveCamera(ctx context.Context, id string) error {
	c.mu.Lock()
	s, exists := c.sessions[id]
	if !exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrCameraNotFound, id)
	}
	delete(c.sessions, id)
	for i, sid := range c.order {
		if sid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.recomputePacingLocked()
	c.mu.Unlock()

	if err := s.Close(); err != nil {
		return fmt.Errorf("カメラ %s の解放に失敗: %w", id, err)
	}

	c.logger.Info("カメラを削除しました", zap.String("session", id))
	return nil
}

// Sessions は追加順のセッション一覧を返す
func (c *Coordinator) Sessions() []*session.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*session.Session, 0, len(c.order))
	for _, id := range c.order {
		result = append(result, c.sessions[id])
	}
	return result
}

// Session は指定IDのセッションを返す
func (c *Coordinator) Session(id string) (*session.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, exists := c.sessions[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrCameraNotFound, id)
	}
	return s, nil
}

// StartAll は全セッションの取得を開始する
func (c *Coordinator) StartAll() error {
	var errs []error
	for _, s := range c.Sessions() {
		if err := s.Start(); err != nil {
			errs = append(errs, fmt.Errorf("セッション %s: %w", s.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// StopAll は全セッションの取得を停止する
func (c *Coordinator) StopAll() error {
	var errs []error
	for _, s := range c.Sessions() {
		if err := s.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("セッション %s: %w", s.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// onStateChange はセッションの状態遷移通知を受けてペーシングを再計算する
func (c *Coordinator) onStateChange(s *session.Session, state session.State) {
	c.logger.Debug("セッションの状態が変化しました", zap.String("session", s.ID()), zap.String("state", string(state)))

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.sessions[s.ID()]; exists {
		c.recomputePacingLocked()
	}
}

// RecomputePacing はペーシングスケジュールを全体再計算してカメラに書き込む
func (c *Coordinator) RecomputePacing() Pacing {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recomputePacingLocked()
	return c.pacingCopyLocked()
}

// Pacing は現在のペーシングスケジュールを返す
func (c *Coordinator) Pacing() Pacing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pacingCopyLocked()
}

func (c *Coordinator) pacingCopyLocked() Pacing {
	assignments := make([]Assignment, len(c.pacing.Assignments))
	copy(assignments, c.pacing.Assignments)
	return Pacing{Assignments: assignments, InterPacketDelay: c.pacing.InterPacketDelay}
}

// recomputePacingLocked はペーシングを再計算する（ロック済み前提）
func (c *Coordinator) recomputePacingLocked() {
	cams := make([]camera.Camera, len(c.order))
	sizes := make([]int, len(c.order))
	for i, id := range c.order {
		cams[i] = c.sessions[id].Camera()
		sizes[i] = cams[i].PacketSize()
	}
	delays, accepted, interPacket := Plan(sizes, c.config.Pacing, func(i, delay int) bool {
		return c.applyTransmissionDelay(cams[i], delay)
	})

	assignments := make([]Assignment, len(c.order))
	for i, id := range c.order {
		paced := c.applyInterPacketDelay(cams[i], interPacket) && accepted[i]
		assignments[i] = Assignment{
			SessionID:         id,
			Serial:            cams[i].SerialNumber(),
			PacketSize:        sizes[i],
			TransmissionDelay: delays[i],
			Paced:             paced,
		}
	}

	c.pacing = Pacing{Assignments: assignments, InterPacketDelay: interPacket}
	c.logger.Debug("ペーシングを再計算しました", zap.Ints("delays", delays), zap.Int("inter_packet_delay", interPacket))
}

// applyTransmissionDelay は1台分の送信遅延を書き込む。受け付けなければ false を返す
func (c *Coordinator) applyTransmissionDelay(cam camera.Camera, delay int) bool {
	if err := cam.SetTransmissionDelay(delay); err != nil {
		if !errors.Is(err, camera.ErrNotSupported) {
			c.logger.Warn("送信遅延の設定に失敗しました", zap.String("serial", cam.SerialNumber()), zap.Error(err))
		}
		return false
	}
	return true
}

// applyInterPacketDelay は共通のパケット間遅延を書き込む。非対応なら false を返す
func (c *Coordinator) applyInterPacketDelay(cam camera.Camera, interPacket int) bool {
	if err := cam.SetInterPacketDelay(interPacket); err != nil {
		if !errors.Is(err, camera.ErrNotSupported) {
			c.logger.Warn("パケット間遅延の設定に失敗しました", zap.String("serial", cam.SerialNumber()), zap.Error(err))
		}
		return false
	}
	return true
}

// ArchiveSettings は現在の保存設定を返す
func (c *Coordinator) ArchiveSettings() archive.Settings {
	return c.policy.Load()
}

// SetArchiveParameters は保存設定を検証してアトミックに差し替える
//
// ショット番号のオフセットが変わった場合は全セッションのショット番号をリセットする。
func (c *Coordinator) SetArchiveParameters(settings archive.Settings) error {
	prev, err := c.policy.Swap(settings)
	if err != nil {
		return err
	}

	if prev.ShotNumberOffset != settings.ShotNumberOffset {
		for _, s := range c.Sessions() {
			s.ResetShotNumber(settings.ShotNumberOffset)
		}
	}

	c.logger.Info("保存設定を更新しました",
		zap.Bool("archive_mode", settings.Enabled),
		zap.Float64("interval_seconds", settings.IntervalSeconds),
		zap.String("directory", settings.Directory),
	)
	return nil
}

// ArchiveAll は全カメラの最新フレームを一括保存し、保存したパスを返す
//
// 日付サブディレクトリが有効な場合は {dir}/YYYY_MM_DD に保存する。
// フレームがまだ無いカメラは飛ばす。
func (c *Coordinator) ArchiveAll(now time.Time) ([]string, error) {
	settings := c.policy.Load()
	dir := settings.Directory
	if settings.DailySubdirectory {
		dir = archive.DailyDirectory(dir, now)
	}

	paths := []string{}
	var errs []error
	for _, s := range c.Sessions() {
		path, err := s.Snapshot(dir, settings, now)
		if err != nil {
			if errors.Is(err, session.ErrNoFrame) {
				c.logger.Debug("フレームが無いため保存を飛ばしました", zap.String("session", s.ID()))
				continue
			}
			errs = append(errs, fmt.Errorf("セッション %s: %w", s.ID(), err))
			continue
		}
		paths = append(paths, path)
	}
	return paths, errors.Join(errs...)
}
