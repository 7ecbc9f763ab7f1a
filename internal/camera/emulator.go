package camera

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"beamview/internal/frame"
)

// EmulatorModel はエミュレートされたカメラのモデル名
const EmulatorModel = "Emulation"

// EmulatorConfig はエミュレートカメラの設定
type EmulatorConfig struct {
	Count             int           // デバイス数
	MaxWidth          int           // センサー幅
	MaxHeight         int           // センサー高さ
	FramePeriod       time.Duration // フレーム間隔
	PixelFormat       PixelFormat   // 画素フォーマット
	PacingUnsupported bool          // 送信遅延パラメータを非対応にする
}

// DefaultEmulatorConfig はデフォルトのエミュレータ設定を返す
func DefaultEmulatorConfig(count int) EmulatorConfig {
	return EmulatorConfig{
		Count:       count,
		MaxWidth:    640,
		MaxHeight:   480,
		FramePeriod: 50 * time.Millisecond,
		PixelFormat: Mono12,
	}
}

// エミュレータのハードウェア制限
const (
	emulatorMinGain     = 0
	emulatorMaxGain     = 500
	emulatorMinExposure = 0.02
	emulatorMaxExposure = 1000.0
)

// EmulatedDiscovery は実機の代わりに N 台のエミュレートカメラを提供する
type EmulatedDiscovery struct {
	config  EmulatorConfig
	devices []DeviceInfo
	claimed map[string]bool
	mu      sync.Mutex
}

// NewEmulatedDiscovery は新しいEmulatedDiscoveryを作成する
func NewEmulatedDiscovery(config EmulatorConfig) *EmulatedDiscovery {
	if config.MaxWidth < MinDimension {
		config.MaxWidth = 640
	}
	if config.MaxHeight < MinDimension {
		config.MaxHeight = 480
	}
	if config.FramePeriod <= 0 {
		config.FramePeriod = 50 * time.Millisecond
	}
	if config.PixelFormat == "" {
		config.PixelFormat = Mono12
	}

	devices := make([]DeviceInfo, 0, config.Count)
	for i := 0; i < config.Count; i++ {
		devices = append(devices, DeviceInfo{
			SerialNumber: fmt.Sprintf("0815-%04d", i),
			Model:        EmulatorModel,
		})
	}

	return &EmulatedDiscovery{
		config:  config,
		devices: devices,
		claimed: make(map[string]bool),
	}
}

// ScanDevices は利用可能なデバイスを列挙する
func (d *EmulatedDiscovery) ScanDevices(_ context.Context) ([]DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := make([]DeviceInfo, len(d.devices))
	copy(result, d.devices)
	return result, nil
}

// Claim は外部プロセスがデバイスを確保している状態を再現する
func (d *EmulatedDiscovery) Claim(serial string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.claimed[serial] = true
}

// Open は指定したデバイスを開く
func (d *EmulatedDiscovery) Open(_ context.Context, serial string, opts OpenOptions) (Camera, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var info *DeviceInfo
	for i := range d.devices {
		if d.devices[i].SerialNumber == serial {
			info = &d.devices[i]
			break
		}
	}
	if info == nil {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, serial)
	}
	if d.claimed[serial] {
		return nil, fmt.Errorf("%w: %s", ErrDeviceBusy, serial)
	}

	trigger := opts.Trigger
	if trigger == "" {
		trigger = TriggerFreerun
	}
	if !trigger.Valid() {
		return nil, fmt.Errorf("無効なトリガー方式: %s", trigger)
	}

	d.claimed[serial] = true
	cam := newEmulatedCamera(*info, d.config, opts, trigger, func() {
		d.mu.Lock()
		delete(d.claimed, serial)
		d.mu.Unlock()
	})
	return cam, nil
}

// EmulatedCamera はビーム像を合成するソフトウェアカメラ
type EmulatedCamera struct {
	serial     string
	name       string
	format     PixelFormat
	trigger    TriggerMode
	packetSize int
	maxWidth   int
	maxHeight  int
	period     time.Duration

	region    Region
	gain      int
	exposure  float64
	txDelay   int
	ipDelay   int
	pacing    bool
	grabbing  bool
	released  bool
	waiting   bool
	failNext  int
	handler   FrameHandler
	onRelease func()
	mu        sync.Mutex

	triggerCh chan struct{}
	stopCh    chan struct{}
	wg        sync.WaitGroup
	rng       *rand.Rand
}

func newEmulatedCamera(info DeviceInfo, config EmulatorConfig, opts OpenOptions, trigger TriggerMode, onRelease func()) *EmulatedCamera {
	var seed int64
	for _, c := range info.SerialNumber {
		seed = seed*31 + int64(c)
	}

	return &EmulatedCamera{
		serial:     info.SerialNumber,
		name:       info.Name,
		format:     config.PixelFormat,
		trigger:    trigger,
		packetSize: opts.PacketSize,
		maxWidth:   config.MaxWidth,
		maxHeight:  config.MaxHeight,
		period:     config.FramePeriod,
		region: Region{
			Width:  config.MaxWidth,
			Height: config.MaxHeight,
		},
		gain:      0,
		exposure:  1.0,
		pacing:    !config.PacingUnsupported,
		onRelease: onRelease,
		triggerCh: make(chan struct{}, 1),
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// SerialNumber はシリアル番号を返す
func (c *EmulatedCamera) SerialNumber() string { return c.serial }

// Model はモデル名を返す
func (c *EmulatedCamera) Model() string { return EmulatorModel }

// PixelFormat は画素フォーマットを返す
func (c *EmulatedCamera) PixelFormat() PixelFormat { return c.format }

// TriggerMode はトリガー方式を返す
func (c *EmulatedCamera) TriggerMode() TriggerMode { return c.trigger }

// PacketSize はパケットサイズを返す
func (c *EmulatedCamera) PacketSize() int { return c.packetSize }

// MaxWidth はセンサー幅を返す
func (c *EmulatedCamera) MaxWidth() int { return c.maxWidth }

// MaxHeight はセンサー高さを返す
func (c *EmulatedCamera) MaxHeight() int { return c.maxHeight }

// Binning はエミュレータでは非対応
func (c *EmulatedCamera) Binning() (int, error) {
	return 0, ErrNotSupported
}

// Name はユーザー定義名を返す
func (c *EmulatedCamera) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// SetName はユーザー定義名を設定する
func (c *EmulatedCamera) SetName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
}

// Gain はゲインを返す
func (c *EmulatedCamera) Gain() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gain
}

// SetGain はゲインを設定する
func (c *EmulatedCamera) SetGain(value int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value < emulatorMinGain || value > emulatorMaxGain {
		return fmt.Errorf("%w: gain=%d", ErrOutOfRange, value)
	}
	c.gain = value
	return nil
}

// Exposure は露光時間 (ms) を返す
func (c *EmulatedCamera) Exposure() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exposure
}

// SetExposure は露光時間 (ms) を設定する。ハードウェア分解能は1µs
func (c *EmulatedCamera) SetExposure(ms float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if math.IsNaN(ms) || ms < emulatorMinExposure || ms > emulatorMaxExposure {
		return fmt.Errorf("%w: exposure=%v", ErrOutOfRange, ms)
	}
	c.exposure = math.Round(ms*1e3) / 1e3
	return nil
}

// OffsetX はXオフセットを返す
func (c *EmulatedCamera) OffsetX() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.region.OffsetX
}

// OffsetY はYオフセットを返す
func (c *EmulatedCamera) OffsetY() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.region.OffsetY
}

// Width は幅を返す
func (c *EmulatedCamera) Width() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.region.Width
}

// Height は高さを返す
func (c *EmulatedCamera) Height() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.region.Height
}

// SetOffsetX はXオフセットを設定する
func (c *EmulatedCamera) SetOffsetX(v int) error {
	return c.setGeometry(func(r *Region) { r.OffsetX = v })
}

// SetOffsetY はYオフセットを設定する
func (c *EmulatedCamera) SetOffsetY(v int) error {
	return c.setGeometry(func(r *Region) { r.OffsetY = v })
}

// SetWidth は幅を設定する
func (c *EmulatedCamera) SetWidth(v int) error {
	return c.setGeometry(func(r *Region) { r.Width = v })
}

// SetHeight は高さを設定する
func (c *EmulatedCamera) SetHeight(v int) error {
	return c.setGeometry(func(r *Region) { r.Height = v })
}

// setGeometry はレジスタ1つを書き換え、結果がセンサー範囲外なら拒否する
func (c *EmulatedCamera) setGeometry(apply func(r *Region)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.grabbing {
		return ErrGrabbing
	}

	next := c.region
	apply(&next)
	if next.OffsetX < 0 || next.OffsetY < 0 ||
		next.Width < MinDimension || next.Height < MinDimension ||
		next.MaxX() > c.maxWidth || next.MaxY() > c.maxHeight {
		return fmt.Errorf("%w: %+v (センサー %dx%d)", ErrOutOfRange, next, c.maxWidth, c.maxHeight)
	}
	c.region = next
	return nil
}

// TransmissionDelay はフレーム送信遅延を返す
func (c *EmulatedCamera) TransmissionDelay() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pacing {
		return 0, ErrNotSupported
	}
	return c.txDelay, nil
}

// SetTransmissionDelay はフレーム送信遅延を設定する
func (c *EmulatedCamera) SetTransmissionDelay(v int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pacing {
		return ErrNotSupported
	}
	c.txDelay = v
	return nil
}

// InterPacketDelay はパケット間遅延を返す
func (c *EmulatedCamera) InterPacketDelay() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pacing {
		return 0, ErrNotSupported
	}
	return c.ipDelay, nil
}

// SetInterPacketDelay はパケット間遅延を設定する
func (c *EmulatedCamera) SetInterPacketDelay(v int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pacing {
		return ErrNotSupported
	}
	c.ipDelay = v
	return nil
}

// SetPacingSupported は送信遅延パラメータの対応可否を切り替える
func (c *EmulatedCamera) SetPacingSupported(supported bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pacing = supported
}

// FailNextGrabs は次の n 回の取得を無効な結果にする
func (c *EmulatedCamera) FailNextGrabs(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = n
}

// RegisterFrameHandler はフレーム受け取りコールバックを登録する（置き換え）
func (c *EmulatedCamera) RegisterFrameHandler(handler FrameHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// StartGrabbing は取得を開始する
func (c *EmulatedCamera) StartGrabbing() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return ErrReleased
	}
	if c.grabbing {
		return nil
	}

	c.grabbing = true
	c.waiting = false
	c.stopCh = make(chan struct{})

	c.wg.Add(1)
	go c.grabLoop(c.stopCh)
	return nil
}

// StopGrabbing は取得を停止する
func (c *EmulatedCamera) StopGrabbing() error {
	c.mu.Lock()
	if !c.grabbing {
		c.mu.Unlock()
		return nil
	}
	c.grabbing = false
	close(c.stopCh)
	c.mu.Unlock()

	// 取得ゴルーチンの終了を待機
	c.wg.Wait()
	return nil
}

// IsGrabbing は取得中かどうかを返す
func (c *EmulatedCamera) IsGrabbing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grabbing
}

// RequestFrame はソフトウェアトリガーで次のフレームを要求する
//
// 既にトリガー待ちの場合は何もしない。トリガー準備がタイムアウトした場合は
// 待ちフラグを解除して ErrTriggerTimeout を返す。
func (c *EmulatedCamera) RequestFrame(ctx context.Context) error {
	c.mu.Lock()
	if c.trigger != TriggerSoftware {
		c.mu.Unlock()
		return ErrNotSupported
	}
	if !c.grabbing {
		c.mu.Unlock()
		return fmt.Errorf("取得が開始されていません")
	}
	if c.waiting {
		c.mu.Unlock()
		return nil
	}
	c.waiting = true
	c.mu.Unlock()

	timer := time.NewTimer(DefaultTriggerTimeout)
	defer timer.Stop()

	select {
	case c.triggerCh <- struct{}{}:
		return nil
	case <-timer.C:
		c.clearWaiting()
		return ErrTriggerTimeout
	case <-ctx.Done():
		c.clearWaiting()
		return ctx.Err()
	}
}

func (c *EmulatedCamera) clearWaiting() {
	c.mu.Lock()
	c.waiting = false
	c.mu.Unlock()
}

// Release はカメラを解放する
func (c *EmulatedCamera) Release() error {
	if err := c.StopGrabbing(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil
	}
	c.released = true
	if c.onRelease != nil {
		c.onRelease()
	}
	return nil
}

// grabLoop はカメラ内部の取得ゴルーチン
func (c *EmulatedCamera) grabLoop(stopCh chan struct{}) {
	defer c.wg.Done()

	if c.trigger == TriggerSoftware {
		for {
			select {
			case <-stopCh:
				return
			case <-c.triggerCh:
				// 露光と読み出しにかかる時間
				select {
				case <-stopCh:
					return
				case <-time.After(c.period):
				}
				c.clearWaiting()
				c.deliver()
			}
		}
	}

	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			c.deliver()
		}
	}
}

// deliver は1フレーム分を合成してハンドラーに渡す
func (c *EmulatedCamera) deliver() {
	c.mu.Lock()
	handler := c.handler
	if handler == nil {
		c.mu.Unlock()
		return
	}
	if c.failNext > 0 {
		c.failNext--
		c.mu.Unlock()
		handler(GrabResult{Err: ErrGrabFailed})
		return
	}
	region := c.region
	gain := c.gain
	exposure := c.exposure
	c.mu.Unlock()

	handler(GrabResult{Frame: c.synthesize(region, gain, exposure)})
}

// synthesize はガウシアンビームとノイズからなる画像を生成する
func (c *EmulatedCamera) synthesize(region Region, gain int, exposure float64) *frame.Frame {
	f := frame.New(region.Width, region.Height, c.format.BitDepth())
	f.OffsetX = region.OffsetX
	f.OffsetY = region.OffsetY
	f.Timestamp = time.Now()

	full := float64(f.FullScale())
	amplitude := full * 0.6 * exposure * (1 + float64(gain)/100)

	// ビーム中心はセンサー中央付近をゆっくり揺らぐ
	phase := float64(f.Timestamp.UnixNano()) / 1e9
	cx := float64(c.maxWidth)/2 + 8*math.Sin(phase/3)
	cy := float64(c.maxHeight)/2 + 5*math.Cos(phase/4)
	sigma := math.Max(float64(c.maxWidth), float64(c.maxHeight)) / 16

	gx := make([]float64, region.Width)
	for x := range gx {
		d := float64(region.OffsetX+x) - cx
		gx[x] = math.Exp(-d * d / (2 * sigma * sigma))
	}
	gy := make([]float64, region.Height)
	for y := range gy {
		d := float64(region.OffsetY+y) - cy
		gy[y] = math.Exp(-d * d / (2 * sigma * sigma))
	}

	for y := 0; y < region.Height; y++ {
		for x := 0; x < region.Width; x++ {
			v := amplitude*gx[x]*gy[y] + c.rng.Float64()*full*0.01
			if v > full {
				v = full
			}
			f.Pix[y*region.Width+x] = uint16(v)
		}
	}
	return f
}
