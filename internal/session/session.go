package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"beamview/internal/archive"
	"beamview/internal/camera"
	"beamview/internal/frame"
)

// Options はセッション作成時の設定
type Options struct {
	Logger        *zap.Logger
	Policy        *archive.Policy
	Publisher     StatsPublisher                 // nil の場合は送信しない
	OnStateChange func(s *Session, state State) // 状態が実際に遷移したときに呼ばれる
	Now           func() time.Time
}

// Session はカメラ1台分の取得パイプライン
type Session struct {
	id        string
	cam       camera.Camera
	slot      *frame.Slot
	logger    *zap.Logger
	policy    *archive.Policy
	publisher StatsPublisher
	notify    func(s *Session, state State)
	createdAt time.Time

	// ハードウェア制御（Start / Stop / ROI 変更）の直列化
	ctrl  sync.Mutex
	state State

	// 表示・処理状態
	mu            sync.Mutex
	processing    Processing
	levels        Levels
	pendingRange  *rangeRequest
	crosshairs    []Crosshair
	nextCrossID   int
	crossMode     CrosshairMode
	region        camera.Region
	display       *frame.Frame
	displaySeq    uint64
	readout       Readout
	lastFrameTime time.Time
	lastArchive   time.Time
	lastPath      string
	shot          int

	// ショット番号の読み出しから保存完了までを直列化する
	archiveMu sync.Mutex

	grabErrors    atomic.Uint64
	archiveErrors atomic.Uint64
}

// New は開かれたカメラから新しいセッションを作成する
func New(cam camera.Camera, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	policy := opts.Policy
	if policy == nil {
		policy = archive.NewPolicy(archive.DefaultSettings())
	}

	id := uuid.New().String()
	created := now()
	s := &Session{
		id:        id,
		cam:       cam,
		slot:      frame.NewSlot(),
		logger:    logger.With(zap.String("session", id), zap.String("serial", cam.SerialNumber())),
		policy:    policy,
		publisher: opts.Publisher,
		notify:    opts.OnStateChange,
		createdAt: created,
		state:     StateStopped,

		processing:  DefaultProcessing(),
		levels:      fullScaleLevels(cam.PixelFormat().BitDepth()),
		region:      camera.ReadRegion(cam),
		lastArchive: created,
		shot:        policy.Load().ShotNumberOffset,
	}
	return s
}

func fullScaleLevels(bitDepth int) Levels {
	f := frame.Frame{BitDepth: bitDepth}
	return Levels{Min: 0, Max: float64(f.FullScale())}
}

// ID はセッションIDを返す
func (s *Session) ID() string { return s.id }

// Camera はカメラハンドルを返す
func (s *Session) Camera() camera.Camera { return s.cam }

// Slot はフレームスロットを返す
func (s *Session) Slot() *frame.Slot { return s.slot }

// State は現在の状態を返す
func (s *Session) State() State {
	s.ctrl.Lock()
	defer s.ctrl.Unlock()
	return s.state
}

// Start は取得を開始する。既に実行中なら何もしない
func (s *Session) Start() error {
	s.ctrl.Lock()
	if s.state == StateRunning {
		s.ctrl.Unlock()
		return nil
	}
	if err := s.startGrabbing(); err != nil {
		s.ctrl.Unlock()
		return err
	}
	s.state = StateRunning
	s.ctrl.Unlock()

	s.logger.Info("取得を開始しました", zap.String("trigger", string(s.cam.TriggerMode())))
	s.notifyState(StateRunning)
	return nil
}

// Stop は取得を停止する。ブリッジは登録されたまま残る
func (s *Session) Stop() error {
	s.ctrl.Lock()
	if s.state == StateStopped {
		s.ctrl.Unlock()
		return nil
	}
	if err := s.cam.StopGrabbing(); err != nil {
		s.ctrl.Unlock()
		return fmt.Errorf("取得の停止に失敗: %w", err)
	}
	s.state = StateStopped
	s.ctrl.Unlock()

	s.logger.Info("取得を停止しました")
	s.notifyState(StateStopped)
	return nil
}

// Close は取得を停止してカメラを解放する
func (s *Session) Close() error {
	if err := s.Stop(); err != nil {
		s.logger.Warn("停止に失敗しました", zap.Error(err))
	}
	if err := s.cam.Release(); err != nil {
		return fmt.Errorf("カメラの解放に失敗: %w", err)
	}
	return nil
}

func (s *Session) notifyState(state State) {
	if s.notify != nil {
		s.notify(s, state)
	}
}

// startGrabbing はブリッジを登録して取得を開始する（ctrl ロック済み前提）
func (s *Session) startGrabbing() error {
	s.cam.RegisterFrameHandler(s.onFrame)
	if err := s.cam.StartGrabbing(); err != nil {
		return fmt.Errorf("取得の開始に失敗: %w", err)
	}
	if s.cam.TriggerMode() == camera.TriggerSoftware {
		go s.requestNext()
	}
	return nil
}

// onFrame はカメラの取得ゴルーチンから呼ばれるフレーム受け渡しブリッジ
func (s *Session) onFrame(result camera.GrabResult) {
	if result.Valid() {
		s.slot.Publish(result.Frame)
	} else {
		s.grabErrors.Add(1)
		s.logger.Warn("無効な取得結果を破棄しました", zap.Error(result.Err))
	}

	if s.cam.TriggerMode() == camera.TriggerSoftware {
		go s.requestNext()
	}
}

// requestNext はソフトウェアトリガーで次のフレームを要求する
func (s *Session) requestNext() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*camera.DefaultTriggerTimeout)
	defer cancel()

	if err := s.cam.RequestFrame(ctx); err != nil {
		if !s.cam.IsGrabbing() {
			return
		}
		if errors.Is(err, camera.ErrTriggerTimeout) {
			s.logger.Warn("トリガー待ちがタイムアウトしました")
			return
		}
		s.logger.Warn("次フレームの要求に失敗しました", zap.Error(err))
	}
}

// RedrawTick は再描画スケジューラーから呼ばれ、利用可能なフレームを処理する
//
// フレームを処理した場合は true を返す。
func (s *Session) RedrawTick(now time.Time) (drawn bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("描画中にパニックが発生しました", zap.Any("panic", r))
			drawn = false
		}
	}()

	if !s.cam.IsGrabbing() {
		return false
	}
	raw, ok := s.slot.TryConsume()
	if !ok {
		return false
	}

	s.mu.Lock()
	proc := s.processing
	s.mu.Unlock()

	work := raw
	if proc.MedianFilter {
		work = frame.MedianFilter(raw, frame.DefaultMedianSize)
	}

	intensity := frame.MeasureIntensity(work)

	if proc.Threshold {
		if work == raw {
			work = raw.Clone()
		}
		frame.ApplyThreshold(work, proc.ThresholdPercent)
	}

	var moments frame.Moments
	units := "px"
	if proc.CalculateStats {
		scale := 1.0
		if proc.Calibration && proc.CalibrationScale > 0 {
			// µm/px を mm/px に変換
			scale = proc.CalibrationScale / 1000
			units = "mm"
		}
		moments = frame.ComputeMoments(work, scale)
	}

	s.mu.Lock()
	s.resolveRangeLocked(work)
	var frameTime float64
	if !s.lastFrameTime.IsZero() {
		frameTime = now.Sub(s.lastFrameTime).Seconds()
		if frameTime > MaxFrameTime.Seconds() {
			frameTime = MaxFrameTime.Seconds()
		}
	}
	s.lastFrameTime = now
	s.display = work
	s.displaySeq++
	s.readout = Readout{
		CameraID:  s.id,
		Name:      s.cam.Name(),
		Serial:    s.cam.SerialNumber(),
		Intensity: intensity,
		Moments:   moments,
		Units:     units,
		FrameTime: frameTime,
		Timestamp: now,
		Region:    s.region,
	}
	readout := s.readout
	s.mu.Unlock()

	if s.publisher != nil && proc.CalculateStats {
		s.publisher.PublishStats(readout)
	}

	s.maybeArchive(now, raw)
	return true
}

// resolveRangeLocked は保留中の表示レンジ要求を適用する（mu ロック済み前提）
func (s *Session) resolveRangeLocked(f *frame.Frame) {
	req := s.pendingRange
	if req == nil {
		return
	}
	s.pendingRange = nil

	switch req.mode {
	case RangeAuto:
		lo, hi := f.Bounds()
		if hi <= lo {
			hi = lo + 1
		}
		s.levels = Levels{Min: float64(lo), Max: float64(hi)}
	case RangeReset:
		s.levels = Levels{Min: 0, Max: float64(f.FullScale())}
	case RangeManual:
		s.levels = req.levels
	}
}

// maybeArchive は保存間隔を過ぎていれば生フレームを保存する
func (s *Session) maybeArchive(now time.Time, raw *frame.Frame) {
	settings := s.policy.Load()
	if !settings.Enabled {
		return
	}

	s.mu.Lock()
	if now.Sub(s.lastArchive) < settings.Interval() {
		s.mu.Unlock()
		return
	}
	// 失敗しても時刻は進め、失敗のたびに再試行しない
	s.lastArchive = now
	s.mu.Unlock()

	path, shot, err := s.archiveFrame(settings.Directory, settings, now, raw)
	if err != nil {
		s.logger.Error("フレームの保存に失敗しました", zap.Error(err))
		return
	}
	s.logger.Debug("フレームを保存しました", zap.String("path", path), zap.Int("shot", shot))
}

// archiveFrame はショット番号を確定させてフレームを保存し、パスと使用した番号を返す
//
// 保存に失敗した場合はショット番号を進めない。
func (s *Session) archiveFrame(dir string, settings archive.Settings, now time.Time, raw *frame.Frame) (string, int, error) {
	s.archiveMu.Lock()
	defer s.archiveMu.Unlock()

	s.mu.Lock()
	shot := s.shot
	s.mu.Unlock()

	filename := archive.Filename(settings, now, s.cam.Name(), shot)
	meta := archive.Metadata{
		Camera:   s.cam.Name(),
		Serial:   s.cam.SerialNumber(),
		Gain:     s.cam.Gain(),
		Exposure: s.cam.Exposure(),
		Shot:     shot,
	}
	path, err := archive.Save(dir, filename, raw, settings, meta)
	if err != nil {
		s.archiveErrors.Add(1)
		return "", shot, err
	}

	s.mu.Lock()
	// 保存中に ResetShotNumber された場合はリセット後の値を優先する
	if settings.ShotNumber && s.shot == shot {
		s.shot = shot + 1
	}
	s.lastPath = path
	s.mu.Unlock()
	return path, shot, nil
}

// Snapshot は最後に受け取ったフレームを指定ディレクトリに保存する
//
// 全カメラ一括保存から呼ばれる。スロットの消費状態は変えない。
func (s *Session) Snapshot(dir string, settings archive.Settings, now time.Time) (string, error) {
	raw := s.slot.Latest()
	if raw == nil {
		return "", ErrNoFrame
	}

	path, _, err := s.archiveFrame(dir, settings, now, raw)
	return path, err
}

// ResetShotNumber はショット番号を指定値に戻す
func (s *Session) ResetShotNumber(offset int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shot = offset
}

// ShotNumber は次に使うショット番号を返す
func (s *Session) ShotNumber() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shot
}

// Readout は最新の統計情報を返す
func (s *Session) Readout() Readout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readout
}

// Info はセッションの状態一覧を返す
func (s *Session) Info() Info {
	binning, err := s.cam.Binning()
	if err != nil {
		binning = 1
	}
	state := s.State()

	s.mu.Lock()
	defer s.mu.Unlock()

	crosshairs := make([]Crosshair, len(s.crosshairs))
	copy(crosshairs, s.crosshairs)

	return Info{
		ID:              s.id,
		Serial:          s.cam.SerialNumber(),
		Name:            s.cam.Name(),
		Model:           s.cam.Model(),
		State:           state,
		Trigger:         s.cam.TriggerMode(),
		PixelFormat:     s.cam.PixelFormat(),
		BitDepth:        s.cam.PixelFormat().BitDepth(),
		Binning:         binning,
		Gain:            s.cam.Gain(),
		Exposure:        s.cam.Exposure(),
		Region:          s.region,
		MaxWidth:        s.cam.MaxWidth(),
		MaxHeight:       s.cam.MaxHeight(),
		PacketSize:      s.cam.PacketSize(),
		Processing:      s.processing,
		Levels:          s.levels,
		Crosshairs:      crosshairs,
		CrosshairMode:   s.crossMode,
		ShotNumber:      s.shot,
		Slot:            s.slot.Stats(),
		GrabErrors:      s.grabErrors.Load(),
		ArchiveErrors:   s.archiveErrors.Load(),
		LastArchivePath: s.lastPath,
		CreatedAt:       s.createdAt,
	}
}
