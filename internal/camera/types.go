package camera

import (
	"context"
	"errors"
	"time"

	"beamview/internal/frame"
)

// エラー定義
var (
	// ErrDeviceBusy はデバイスが他のプロセスに既に確保されていることを表す
	ErrDeviceBusy = errors.New("デバイスは使用中です")
	// ErrNotSupported はカメラがその機能をサポートしていないことを表す
	ErrNotSupported = errors.New("サポートされていない機能です")
	// ErrOutOfRange はハードウェアが値を範囲外として拒否したことを表す
	ErrOutOfRange = errors.New("値が範囲外です")
	// ErrTriggerTimeout はソフトウェアトリガーの準備待ちがタイムアウトしたことを表す
	ErrTriggerTimeout = errors.New("トリガー待ちがタイムアウトしました")
	// ErrGrabbing は取得中に変更できないパラメータを変更しようとしたことを表す
	ErrGrabbing = errors.New("取得中は変更できません")
	// ErrReleased は解放済みのカメラを操作しようとしたことを表す
	ErrReleased = errors.New("カメラは解放済みです")
	// ErrDeviceNotFound は指定したデバイスが存在しないことを表す
	ErrDeviceNotFound = errors.New("デバイスが見つかりません")
	// ErrGrabFailed はハードウェアが無効な取得結果を返したことを表す
	ErrGrabFailed = errors.New("フレームの取得に失敗しました")
)

// TriggerMode はフレーム取得のトリガー方式
type TriggerMode string

const (
	TriggerFreerun  TriggerMode = "freerun"  // 連続取得
	TriggerSoftware TriggerMode = "software" // ホストから1フレームずつ要求
	TriggerHardware TriggerMode = "hardware" // 外部信号で取得
)

// Valid はトリガー方式が既知の値かどうかを返す
func (m TriggerMode) Valid() bool {
	switch m {
	case TriggerFreerun, TriggerSoftware, TriggerHardware:
		return true
	}
	return false
}

// PixelFormat は画素フォーマット
type PixelFormat string

const (
	Mono8  PixelFormat = "Mono8"
	Mono12 PixelFormat = "Mono12"
	Mono16 PixelFormat = "Mono16"
)

// BitDepth は画素フォーマットのビット深度を返す
func (p PixelFormat) BitDepth() int {
	switch p {
	case Mono8:
		return 8
	case Mono16:
		return 16
	default:
		return 12
	}
}

// MinDimension はハードウェアが受け付ける最小の幅・高さ
const MinDimension = 4

// Region はセンサー上の取得領域
type Region struct {
	OffsetX int `json:"offset_x"`
	OffsetY int `json:"offset_y"`
	Width   int `json:"width"`
	Height  int `json:"height"`
}

// MaxX は OffsetX+Width を返す
func (r Region) MaxX() int { return r.OffsetX + r.Width }

// MaxY は OffsetY+Height を返す
func (r Region) MaxY() int { return r.OffsetY + r.Height }

// GrabResult はカメラの取得ゴルーチンから渡される1回分の取得結果
type GrabResult struct {
	Frame *frame.Frame // 取得したフレーム（失敗時は nil）
	Err   error        // 取得失敗時のエラー
}

// Valid は有効な取得結果かどうかを返す
func (r GrabResult) Valid() bool {
	return r.Err == nil && r.Frame != nil
}

// FrameHandler はカメラ内部の取得ゴルーチンから呼び出されるコールバック
type FrameHandler func(result GrabResult)

// OpenOptions はカメラを開く際の設定
type OpenOptions struct {
	Trigger    TriggerMode // トリガー方式（セッション中は固定）
	PacketSize int         // GigEパケットサイズ（バイト）
	Binning    int         // ビニング係数（非対応の場合は無視）
}

// Camera はカメラSDKへの最小限のケイパビリティインターフェース
type Camera interface {
	// 識別情報
	SerialNumber() string
	Name() string
	SetName(name string)
	Model() string

	// 画素情報
	PixelFormat() PixelFormat
	Binning() (int, error)

	// 取得パラメータ（範囲外の場合 ErrOutOfRange）
	Gain() int
	SetGain(value int) error
	Exposure() float64
	SetExposure(ms float64) error

	// 取得領域（センサー範囲を超える値は ErrOutOfRange）
	OffsetX() int
	SetOffsetX(v int) error
	OffsetY() int
	SetOffsetY(v int) error
	Width() int
	SetWidth(v int) error
	Height() int
	SetHeight(v int) error
	MaxWidth() int
	MaxHeight() int

	// ネットワーク帯域の制御（非対応の場合 ErrNotSupported）
	PacketSize() int
	TransmissionDelay() (int, error)
	SetTransmissionDelay(v int) error
	InterPacketDelay() (int, error)
	SetInterPacketDelay(v int) error

	// 取得制御
	TriggerMode() TriggerMode
	StartGrabbing() error
	StopGrabbing() error
	IsGrabbing() bool
	RequestFrame(ctx context.Context) error
	RegisterFrameHandler(handler FrameHandler)
	Release() error
}

// DeviceInfo は列挙されたカメラデバイスの情報
type DeviceInfo struct {
	SerialNumber string `json:"serial_number"`
	Name         string `json:"name"`
	Model        string `json:"model"`
}

// Discovery はカメラデバイスの列挙と接続を担う
type Discovery interface {
	// ScanDevices は利用可能なデバイスを列挙する
	ScanDevices(ctx context.Context) ([]DeviceInfo, error)

	// Open はシリアル番号で指定したデバイスを開く。他で使用中なら ErrDeviceBusy
	Open(ctx context.Context, serial string, opts OpenOptions) (Camera, error)
}

// ReadRegion はカメラから現在の取得領域を読み出す
func ReadRegion(cam Camera) Region {
	return Region{
		OffsetX: cam.OffsetX(),
		OffsetY: cam.OffsetY(),
		Width:   cam.Width(),
		Height:  cam.Height(),
	}
}

// DefaultTriggerTimeout はソフトウェアトリガー準備待ちの既定タイムアウト
const DefaultTriggerTimeout = time.Second
