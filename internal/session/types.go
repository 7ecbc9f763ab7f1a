package session

import (
	"errors"
	"time"

	"beamview/internal/camera"
	"beamview/internal/frame"
)

// エラー定義
var (
	ErrCrosshairNotFound = errors.New("十字線が見つかりません")
	ErrNotMovable        = errors.New("十字線の移動モードが無効です")
	ErrNoFrame           = errors.New("表示できるフレームがありません")
	ErrInvalidRange      = errors.New("表示レンジが不正です")
	ErrInvalidProcessing = errors.New("処理設定が不正です")
)

// State はセッションの状態
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// MaxFrameTime はフレーム間隔表示の上限
const MaxFrameTime = 50 * time.Second

// Processing は再描画時の処理設定
type Processing struct {
	MedianFilter     bool    `json:"median_filter"`
	Threshold        bool    `json:"threshold"`
	ThresholdPercent float64 `json:"threshold_percent" binding:"gte=0,lte=100"`
	CalculateStats   bool    `json:"calculate_stats"`
	Calibration      bool    `json:"calibration"`
	CalibrationScale float64 `json:"calibration_scale" binding:"gte=0"` // µm/px
}

// DefaultProcessing はデフォルトの処理設定を返す
func DefaultProcessing() Processing {
	return Processing{
		ThresholdPercent: 10,
		CalculateStats:   true,
		CalibrationScale: 5.5,
	}
}

// RangeMode は表示レンジの要求種別
type RangeMode string

const (
	RangeAuto   RangeMode = "auto"   // フレームの最小値〜最大値
	RangeReset  RangeMode = "reset"  // 0〜フルスケール
	RangeManual RangeMode = "manual" // 指定値
)

// Levels は表示レンジ
type Levels struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type rangeRequest struct {
	mode   RangeMode
	levels Levels
}

// Crosshair は表示面上の十字線
type Crosshair struct {
	ID int     `json:"id"`
	X  float64 `json:"x"` // センサー座標
	Y  float64 `json:"y"`
}

// CrosshairMode は十字線の操作モード
type CrosshairMode struct {
	Movable   bool `json:"movable"`
	Highlight bool `json:"highlight"`
}

// Readout はライブ表示される統計情報
type Readout struct {
	CameraID  string          `json:"camera_id"`
	Name      string          `json:"name"`
	Serial    string          `json:"serial"`
	Intensity frame.Intensity `json:"intensity"`
	Moments   frame.Moments   `json:"moments"`
	Units     string          `json:"units"`      // px / mm
	FrameTime float64         `json:"frame_time"` // 前フレームからの経過秒
	Timestamp time.Time       `json:"timestamp"`
	Region    camera.Region   `json:"region"`
}

// Info はセッションの状態一覧
type Info struct {
	ID              string             `json:"id"`
	Serial          string             `json:"serial"`
	Name            string             `json:"name"`
	Model           string             `json:"model"`
	State           State              `json:"state"`
	Trigger         camera.TriggerMode `json:"trigger"`
	PixelFormat     camera.PixelFormat `json:"pixel_format"`
	BitDepth        int                `json:"bit_depth"`
	Binning         int                `json:"binning"`
	Gain            int                `json:"gain"`
	Exposure        float64            `json:"exposure"`
	Region          camera.Region      `json:"region"`
	MaxWidth        int                `json:"max_width"`
	MaxHeight       int                `json:"max_height"`
	PacketSize      int                `json:"packet_size"`
	Processing      Processing         `json:"processing"`
	Levels          Levels             `json:"levels"`
	Crosshairs      []Crosshair        `json:"crosshairs"`
	CrosshairMode   CrosshairMode      `json:"crosshair_mode"`
	ShotNumber      int                `json:"shot_number"`
	Slot            frame.SlotStats    `json:"slot"`
	GrabErrors      uint64             `json:"grab_errors"`
	ArchiveErrors   uint64             `json:"archive_errors"`
	LastArchivePath string             `json:"last_archive_path,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// StatsPublisher はビーム統計の送信先
type StatsPublisher interface {
	PublishStats(r Readout)
}
